package mysql

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/apikeys/internal/token/domain"
)

var auditLogColumns = []string{
	"id", "event", "token_id", "ip_address", "user_agent", "request_id", "metadata", "created_at",
}

func createMockAuditLogRepository(t *testing.T) (*MySQLAuditLogRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewMySQLAuditLogRepository(db, domain.IDKindSequential), mock
}

func TestMySQLAuditLogRepository_Create(t *testing.T) {
	ctx := context.Background()
	entryID := uuid.Must(uuid.NewV7())
	binaryID, err := entryID.MarshalBinary()
	require.NoError(t, err)

	t.Run("Success_WithMetadata", func(t *testing.T) {
		repo, mock := createMockAuditLogRepository(t)
		id := tokenID
		entry := &domain.AuditLogEntry{
			ID:        entryID,
			Event:     domain.EventRotated,
			TokenID:   &id,
			IPAddress: "10.0.0.1",
			UserAgent: "curl/8.0",
			RequestID: "req-1",
			Metadata:  map[string]any{"new_token_id": "8"},
			CreatedAt: fixedNow,
		}
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO token_audit_logs`)).
			WithArgs(binaryID, "rotated", "7", "10.0.0.1", "curl/8.0", "req-1",
				[]byte(`{"new_token_id":"8"}`), fixedNow).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(ctx, entry))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success_WithoutTokenOrMetadata", func(t *testing.T) {
		repo, mock := createMockAuditLogRepository(t)
		entry := &domain.AuditLogEntry{ID: entryID, Event: domain.EventFailed, CreatedAt: fixedNow}
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO token_audit_logs`)).
			WithArgs(binaryID, "failed", nil, "", "", "", []byte(nil), fixedNow).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(ctx, entry))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_Exec", func(t *testing.T) {
		repo, mock := createMockAuditLogRepository(t)
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO token_audit_logs`)).
			WillReturnError(errors.New("disk full"))

		err := repo.Create(ctx, &domain.AuditLogEntry{ID: entryID, Event: domain.EventCreated})

		assert.ErrorContains(t, err, "failed to create audit log")
	})
}

func TestMySQLAuditLogRepository_List(t *testing.T) {
	ctx := context.Background()
	query := regexp.QuoteMeta(`FROM token_audit_logs ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`)

	t.Run("Success", func(t *testing.T) {
		repo, mock := createMockAuditLogRepository(t)
		first, second := uuid.Must(uuid.NewV7()), uuid.Must(uuid.NewV7())
		firstBytes, _ := first.MarshalBinary()
		secondBytes, _ := second.MarshalBinary()

		rows := sqlmock.NewRows(auditLogColumns).
			AddRow(secondBytes, "ip_blocked", "7", "8.8.8.8", "", "", nil, fixedNow).
			AddRow(firstBytes, "created", nil, "", "", "", []byte(`{"token_type":"sk"}`), fixedNow)
		mock.ExpectQuery(query).WithArgs(10, 0).WillReturnRows(rows)

		entries, err := repo.List(ctx, 0, 10)

		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, second, entries[0].ID)
		assert.Equal(t, domain.EventIPBlocked, entries[0].Event)
		require.NotNil(t, entries[0].TokenID)
		assert.Equal(t, tokenID, *entries[0].TokenID)
		assert.Nil(t, entries[0].Metadata)
		assert.Nil(t, entries[1].TokenID)
		assert.Equal(t, map[string]any{"token_type": "sk"}, entries[1].Metadata)
	})

	t.Run("Error_BadID", func(t *testing.T) {
		repo, mock := createMockAuditLogRepository(t)
		rows := sqlmock.NewRows(auditLogColumns).AddRow([]byte("short"), "created", nil, "", "", "", nil, fixedNow)
		mock.ExpectQuery(query).WithArgs(10, 0).WillReturnRows(rows)

		_, err := repo.List(ctx, 0, 10)

		assert.ErrorContains(t, err, "failed to unmarshal audit log id")
	})

	t.Run("Error_Query", func(t *testing.T) {
		repo, mock := createMockAuditLogRepository(t)
		mock.ExpectQuery(query).WillReturnError(errors.New("timeout"))

		_, err := repo.List(ctx, 0, 10)

		assert.ErrorContains(t, err, "failed to list audit logs")
	})
}
