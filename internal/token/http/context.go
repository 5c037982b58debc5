package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/allisson/apikeys/internal/token/domain"
)

// authenticationKey is a context key type for storing the authentication result.
type authenticationKey struct{}

// WithAuthentication stores the authentication result in the context.
// This is called by AuthenticationMiddleware after the guard accepts a request.
func WithAuthentication(ctx context.Context, auth *domain.Authentication) context.Context {
	return context.WithValue(ctx, authenticationKey{}, auth)
}

// GetAuthentication retrieves the authentication result from the context.
func GetAuthentication(ctx context.Context) (*domain.Authentication, bool) {
	auth, ok := ctx.Value(authenticationKey{}).(*domain.Authentication)
	return auth, ok && auth != nil
}

// GetToken retrieves the authenticated token from the context.
// Stateful authentications carry the transient token.
func GetToken(ctx context.Context) (*domain.Token, bool) {
	auth, ok := GetAuthentication(ctx)
	if !ok || auth.Token == nil {
		return nil, false
	}
	return auth.Token, true
}

// GetIdentity retrieves the authenticated owner from the context.
func GetIdentity(ctx context.Context) (domain.Owner, bool) {
	auth, ok := GetAuthentication(ctx)
	if !ok {
		return domain.Owner{}, false
	}
	return auth.Identity, true
}

// EnvironmentLabel labels request metrics with the environment of the attached token,
// "none" when the request did not authenticate with one.
func EnvironmentLabel(c *gin.Context) attribute.KeyValue {
	environment := "none"
	if token, ok := GetToken(c.Request.Context()); ok && token.Environment != "" {
		environment = token.Environment
	}
	return attribute.String("environment", environment)
}
