package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/allisson/apikeys/internal/httputil"
	"github.com/allisson/apikeys/internal/token/domain"
	"github.com/allisson/apikeys/internal/token/usecase"
)

// AuthenticationMiddleware runs the guard for every request and stores the result in
// the request context.
//
// Every guard rejection answers the same 401 body; the typed cause is only logged.
// headerName selects the primary credential header (see NewGinRequest).
//
// Usage:
//
//	router.Use(AuthenticationMiddleware(guard, cfg.TokenHeader, logger))
//	router.GET("/charges", RequireAbilities(logger, "charges:read"), handler)
func AuthenticationMiddleware(
	authenticator usecase.Authenticator,
	headerName string,
	logger *slog.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth, err := authenticator.Authenticate(c.Request.Context(), NewGinRequest(c, headerName))
		if err != nil {
			httputil.HandleErrorGin(c, err, logger)
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(WithAuthentication(c.Request.Context(), auth))

		logger.Debug("authentication successful",
			slog.String("owner_kind", auth.Identity.Kind),
			slog.String("owner_id", auth.Identity.ID),
			slog.Bool("stateful", auth.Stateful))

		c.Next()
	}
}

// RequireAbilities rejects requests whose token lacks any of abilities with 403.
// It must run after AuthenticationMiddleware.
func RequireAbilities(logger *slog.Logger, abilities ...string) gin.HandlerFunc {
	return requireToken(logger, func(token *domain.Token) error {
		return domain.CheckAbilities(token, abilities...)
	})
}

// RequireAnyAbility rejects requests whose token grants none of abilities with 403.
func RequireAnyAbility(logger *slog.Logger, abilities ...string) gin.HandlerFunc {
	return requireToken(logger, func(token *domain.Token) error {
		return domain.CheckForAnyAbility(token, abilities...)
	})
}

// RequireTokenType rejects requests whose token type is not one of types with 403.
func RequireTokenType(logger *slog.Logger, types ...string) gin.HandlerFunc {
	return requireToken(logger, func(token *domain.Token) error {
		return domain.CheckTokenType(token, types...)
	})
}

// RequireEnvironment rejects requests whose token environment is not one of
// environments with 403.
func RequireEnvironment(logger *slog.Logger, environments ...string) gin.HandlerFunc {
	return requireToken(logger, func(token *domain.Token) error {
		return domain.CheckEnvironment(token, environments...)
	})
}

// requireToken answers 401 when no token is in the context and the check's error otherwise.
func requireToken(logger *slog.Logger, check func(*domain.Token) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := GetToken(c.Request.Context())

		if err := check(token); err != nil {
			httputil.HandleErrorGin(c, err, logger)
			c.Abort()
			return
		}

		c.Next()
	}
}
