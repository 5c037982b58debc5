// Package http provides the gin request adapter, authentication and capability
// middlewares, per-token rate limiting and audit log handlers for API tokens.
package http

import (
	"strings"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"

	"github.com/allisson/apikeys/internal/token/usecase"
)

const (
	authorizationHeader = "Authorization"
	apiKeyHeader        = "X-API-Key"
	credentialField     = "api_token"
	bearerPrefix        = "bearer "
)

// GinRequest adapts a gin request to usecase.Request.
type GinRequest struct {
	c      *gin.Context
	header string
}

// NewGinRequest creates a request adapter. headerName is the primary credential header;
// an empty name means Authorization.
func NewGinRequest(c *gin.Context, headerName string) *GinRequest {
	if headerName == "" {
		headerName = authorizationHeader
	}
	return &GinRequest{c: c, header: headerName}
}

// BearerCredential returns the credential from the configured header, falling back to
// the X-API-Key header and then the api_token query or form field.
//
// On the Authorization header the "Bearer " scheme is required (case-insensitive).
// On any other header the scheme is optional.
func (r *GinRequest) BearerCredential() string {
	if credential := headerCredential(r.header, r.c.GetHeader(r.header)); credential != "" {
		return credential
	}
	if !strings.EqualFold(r.header, apiKeyHeader) {
		if credential := strings.TrimSpace(r.c.GetHeader(apiKeyHeader)); credential != "" {
			return credential
		}
	}
	if credential := strings.TrimSpace(r.c.Query(credentialField)); credential != "" {
		return credential
	}
	return strings.TrimSpace(r.c.PostForm(credentialField))
}

// RemoteAddr returns the client IP resolved by gin.
func (r *GinRequest) RemoteAddr() string {
	return r.c.ClientIP()
}

// Header returns the named request header.
func (r *GinRequest) Header(name string) string {
	return r.c.GetHeader(name)
}

// RequestID returns the id assigned by the requestid middleware, or "".
func (r *GinRequest) RequestID() string {
	return requestid.Get(r.c)
}

func headerCredential(name, value string) string {
	value = strings.TrimSpace(value)
	if len(value) >= len(bearerPrefix) && strings.EqualFold(value[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(value[len(bearerPrefix):])
	}
	if strings.EqualFold(name, authorizationHeader) {
		return ""
	}
	return value
}

var (
	_ usecase.Request     = (*GinRequest)(nil)
	_ usecase.RequestIDer = (*GinRequest)(nil)
)
