package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/apikeys/internal/token/audit"
	"github.com/allisson/apikeys/internal/token/domain"
	"github.com/allisson/apikeys/internal/token/repository/memory"
	"github.com/allisson/apikeys/internal/token/service"
	"github.com/allisson/apikeys/internal/token/usecase"
	"github.com/allisson/apikeys/internal/token/usecase/mocks"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleAuthentication() *domain.Authentication {
	return &domain.Authentication{
		Identity: domain.Owner{Kind: "user", ID: "42"},
		Token: &domain.Token{
			ID:          domain.MustParseID(domain.IDKindSequential, "7"),
			Owner:       domain.Owner{Kind: "user", ID: "42"},
			Type:        "rk",
			Environment: "test",
			Abilities:   []string{"charges:read", "refunds:create"},
		},
	}
}

// newAuthenticatedRouter runs handlers behind a middleware that injects auth directly.
func newAuthenticatedRouter(auth *domain.Authentication, handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if auth != nil {
			c.Request = c.Request.WithContext(WithAuthentication(c.Request.Context(), auth))
		}
		c.Next()
	})
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/resource", handlers...)
	return router
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthenticationMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := discardLogger()

	t.Run("Success_StoresAuthentication", func(t *testing.T) {
		authenticator := &mocks.MockAuthenticator{}
		auth := sampleAuthentication()
		authenticator.On("Authenticate", mock.Anything, mock.MatchedBy(func(req usecase.Request) bool {
			return req.BearerCredential() == "rk_test_abc"
		})).Return(auth, nil).Once()

		var stored *domain.Authentication
		router := gin.New()
		router.Use(AuthenticationMiddleware(authenticator, "", logger))
		router.GET("/resource", func(c *gin.Context) {
			stored, _ = GetAuthentication(c.Request.Context())
			c.Status(http.StatusNoContent)
		})

		req := httptest.NewRequest(http.MethodGet, "/resource", nil)
		req.Header.Set("Authorization", "Bearer rk_test_abc")
		w := serve(router, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Same(t, auth, stored)
		authenticator.AssertExpectations(t)
	})

	rejections := []struct {
		name string
		err  error
	}{
		{name: "Error_MissingCredential", err: domain.ErrMissingCredential},
		{name: "Error_CredentialNotFound", err: domain.ErrCredentialNotFound},
		{name: "Error_Revoked", err: &domain.TokenRevokedError{RevokedAt: time.Now()}},
		{name: "Error_Expired", err: &domain.TokenExpiredError{ExpiresAt: time.Now()}},
		{name: "Error_IPRestricted", err: &domain.IPRestrictedError{IP: "192.0.2.1"}},
		{name: "Error_DomainRestricted", err: &domain.DomainRestrictedError{Domain: "evil.example"}},
	}
	for _, tt := range rejections {
		t.Run(tt.name, func(t *testing.T) {
			authenticator := &mocks.MockAuthenticator{}
			authenticator.On("Authenticate", mock.Anything, mock.Anything).Return(nil, tt.err).Once()

			reached := false
			router := gin.New()
			router.Use(AuthenticationMiddleware(authenticator, "", logger))
			router.GET("/resource", func(c *gin.Context) { reached = true })

			w := serve(router, httptest.NewRequest(http.MethodGet, "/resource", nil))

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String())
			assert.False(t, reached)
		})
	}
}

func TestAuthenticationMiddleware_WithGuard(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tokens := memory.NewTokenRepository()
	audits := memory.NewAuditLogRepository()
	codec := service.NewCodec(service.NewBase58Generator(), service.NewSHA256Hasher())
	guard := usecase.NewGuard(
		domain.IDKindSequential,
		tokens,
		codec,
		audit.NewRepositorySink(audits),
		discardLogger(),
		usecase.WithGuardClock(func() time.Time { return now }),
	)

	store := func(t *testing.T, id string, revokedAt *time.Time) string {
		t.Helper()
		plaintext, err := codec.Generate("sk", "live")
		require.NoError(t, err)
		require.NoError(t, tokens.Create(ctx, &domain.Token{
			ID:          domain.MustParseID(domain.IDKindSequential, id),
			Owner:       domain.Owner{Kind: "team", ID: "9"},
			Type:        "sk",
			Environment: "live",
			Prefix:      "sk",
			TokenHash:   codec.Hash(plaintext),
			Abilities:   []string{"*"},
			RevokedAt:   revokedAt,
		}))
		return plaintext
	}
	active := store(t, "1", nil)
	revokedAt := now.Add(-time.Minute)
	revoked := store(t, "2", &revokedAt)

	router := gin.New()
	router.Use(AuthenticationMiddleware(guard, "Authorization", discardLogger()))
	router.GET("/resource", RequireEnvironment(discardLogger(), "live"), func(c *gin.Context) {
		identity, _ := GetIdentity(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"owner": identity.ID})
	})

	request := func(credential string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/resource", nil)
		req.Header.Set("Authorization", "Bearer "+credential)
		return serve(router, req)
	}

	t.Run("Success_Active", func(t *testing.T) {
		w := request(active)

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "9", body["owner"])
	})

	t.Run("Error_RevokedAndUnknownLookAlike", func(t *testing.T) {
		revokedResponse := request(revoked)
		unknownResponse := request("sk_live_doesnotexist")

		assert.Equal(t, http.StatusUnauthorized, revokedResponse.Code)
		assert.Equal(t, http.StatusUnauthorized, unknownResponse.Code)
		assert.Equal(t, revokedResponse.Body.String(), unknownResponse.Body.String())
	})
}

func TestCapabilityMiddlewares(t *testing.T) {
	logger := discardLogger()

	tests := []struct {
		name         string
		auth         *domain.Authentication
		middleware   gin.HandlerFunc
		expectedCode int
	}{
		{
			name:         "Abilities_Granted",
			auth:         sampleAuthentication(),
			middleware:   RequireAbilities(logger, "charges:read", "refunds:create"),
			expectedCode: http.StatusOK,
		},
		{
			name:         "Abilities_Missing",
			auth:         sampleAuthentication(),
			middleware:   RequireAbilities(logger, "charges:read", "charges:write"),
			expectedCode: http.StatusForbidden,
		},
		{
			name:         "AnyAbility_Granted",
			auth:         sampleAuthentication(),
			middleware:   RequireAnyAbility(logger, "charges:write", "charges:read"),
			expectedCode: http.StatusOK,
		},
		{
			name:         "AnyAbility_Missing",
			auth:         sampleAuthentication(),
			middleware:   RequireAnyAbility(logger, "charges:write", "customers:read"),
			expectedCode: http.StatusForbidden,
		},
		{
			name:         "TokenType_Allowed",
			auth:         sampleAuthentication(),
			middleware:   RequireTokenType(logger, "sk", "rk"),
			expectedCode: http.StatusOK,
		},
		{
			name:         "TokenType_Rejected",
			auth:         sampleAuthentication(),
			middleware:   RequireTokenType(logger, "sk"),
			expectedCode: http.StatusForbidden,
		},
		{
			name:         "Environment_Allowed",
			auth:         sampleAuthentication(),
			middleware:   RequireEnvironment(logger, "test"),
			expectedCode: http.StatusOK,
		},
		{
			name:         "Environment_Rejected",
			auth:         sampleAuthentication(),
			middleware:   RequireEnvironment(logger, "live"),
			expectedCode: http.StatusForbidden,
		},
		{
			name: "Transient_PassesEverything",
			auth: &domain.Authentication{
				Identity: domain.Owner{Kind: "user", ID: "1"},
				Token:    domain.TransientToken(),
				Stateful: true,
			},
			middleware:   RequireTokenType(logger, "sk"),
			expectedCode: http.StatusOK,
		},
		{
			name:         "NoAuthentication_Unauthorized",
			auth:         nil,
			middleware:   RequireAbilities(logger, "charges:read"),
			expectedCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newAuthenticatedRouter(tt.auth, tt.middleware)

			w := serve(router, httptest.NewRequest(http.MethodGet, "/resource", nil))

			assert.Equal(t, tt.expectedCode, w.Code)
		})
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()

	_, ok := GetAuthentication(ctx)
	assert.False(t, ok)
	_, ok = GetToken(ctx)
	assert.False(t, ok)
	_, ok = GetIdentity(ctx)
	assert.False(t, ok)

	auth := sampleAuthentication()
	ctx = WithAuthentication(ctx, auth)

	token, ok := GetToken(ctx)
	assert.True(t, ok)
	assert.Same(t, auth.Token, token)
	identity, ok := GetIdentity(ctx)
	assert.True(t, ok)
	assert.Equal(t, "42", identity.ID)
}

func TestEnvironmentLabel(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newContext := func(auth *domain.Authentication) *gin.Context {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/resource", nil)
		if auth != nil {
			c.Request = c.Request.WithContext(WithAuthentication(c.Request.Context(), auth))
		}
		return c
	}

	label := EnvironmentLabel(newContext(sampleAuthentication()))
	assert.Equal(t, "environment", string(label.Key))
	assert.Equal(t, "test", label.Value.AsString())

	assert.Equal(t, "none", EnvironmentLabel(newContext(nil)).Value.AsString())
}
