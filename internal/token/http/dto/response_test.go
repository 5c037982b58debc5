package dto

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/apikeys/internal/token/domain"
)

func TestMapAuditLogsToListResponse(t *testing.T) {
	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tokenID := domain.MustParseID(domain.IDKindSequential, "7")
	entryID := uuid.Must(uuid.NewV7())

	t.Run("Success_WithToken", func(t *testing.T) {
		response := MapAuditLogsToListResponse([]*domain.AuditLogEntry{{
			ID:        entryID,
			Event:     domain.EventAuthenticated,
			TokenID:   &tokenID,
			IPAddress: "10.0.0.1",
			Metadata:  map[string]any{"ip_address": "10.0.0.1"},
			CreatedAt: createdAt,
		}})

		require.Len(t, response.Data, 1)
		item := response.Data[0]
		assert.Equal(t, entryID.String(), item.ID)
		assert.Equal(t, "authenticated", item.Event)
		require.NotNil(t, item.TokenID)
		assert.Equal(t, "7", *item.TokenID)
		assert.Equal(t, "10.0.0.1", item.IPAddress)
		assert.Equal(t, createdAt, item.CreatedAt)
	})

	t.Run("Success_WithoutToken", func(t *testing.T) {
		response := MapAuditLogsToListResponse([]*domain.AuditLogEntry{{ID: entryID, Event: domain.EventFailed}})

		require.Len(t, response.Data, 1)
		assert.Nil(t, response.Data[0].TokenID)
	})

	t.Run("Success_EmptyIsNotNil", func(t *testing.T) {
		response := MapAuditLogsToListResponse(nil)

		assert.NotNil(t, response.Data)
		assert.Empty(t, response.Data)
	})
}
