package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/apikeys/internal/token/domain"
	"github.com/allisson/apikeys/internal/token/repository/memory"
)

func TestAuditLogHandler_ListHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	repo := memory.NewAuditLogRepository()
	tokenID := domain.MustParseID(domain.IDKindSequential, "7")
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &domain.AuditLogEntry{
			ID:        uuid.Must(uuid.NewV7()),
			Event:     domain.EventAuthenticated,
			TokenID:   &tokenID,
			IPAddress: "10.0.0.1",
			CreatedAt: createdAt.Add(time.Duration(i) * time.Minute),
		}))
	}

	handler := NewAuditLogHandler(repo, discardLogger())
	router := gin.New()
	router.GET("/v1/token-audit-logs", handler.ListHandler)

	t.Run("Success_Paginated", func(t *testing.T) {
		w := serve(router, httptest.NewRequest(http.MethodGet, "/v1/token-audit-logs?offset=1&limit=1", nil))

		require.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Data []struct {
				Event     string    `json:"event"`
				TokenID   string    `json:"token_id"`
				CreatedAt time.Time `json:"created_at"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		require.Len(t, response.Data, 1)
		assert.Equal(t, "authenticated", response.Data[0].Event)
		assert.Equal(t, "7", response.Data[0].TokenID)
		assert.True(t, response.Data[0].CreatedAt.Equal(createdAt.Add(time.Minute)))
	})

	t.Run("Error_InvalidLimit", func(t *testing.T) {
		w := serve(router, httptest.NewRequest(http.MethodGet, "/v1/token-audit-logs?limit=500", nil))

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, w.Body.String(), "validation_error")
	})
}
