package mysql

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/allisson/apikeys/internal/database"
	apperrors "github.com/allisson/apikeys/internal/errors"
	"github.com/allisson/apikeys/internal/token/domain"
)

// MySQLAuditLogRepository implements token audit log persistence for MySQL using
// BINARY(16) for entry ids.
type MySQLAuditLogRepository struct {
	db     *sql.DB
	idKind domain.IDKind
}

// Create inserts a new audit log entry. Nil metadata is stored as NULL.
func (m *MySQLAuditLogRepository) Create(ctx context.Context, entry *domain.AuditLogEntry) error {
	querier := database.GetTx(ctx, m.db)

	id, err := entry.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal audit log id")
	}

	metadata, err := marshalMetadata(entry.Metadata)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal audit log metadata")
	}

	query := `INSERT INTO token_audit_logs
			  (id, event, token_id, ip_address, user_agent, request_id, metadata, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		string(entry.Event),
		nullableID(entry.TokenID),
		entry.IPAddress,
		entry.UserAgent,
		entry.RequestID,
		metadata,
		entry.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create audit log")
	}
	return nil
}

// List retrieves audit log entries newest first with pagination.
func (m *MySQLAuditLogRepository) List(ctx context.Context, offset, limit int) ([]*domain.AuditLogEntry, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, event, token_id, ip_address, user_agent, request_id, metadata, created_at
			  FROM token_audit_logs
			  ORDER BY created_at DESC, id DESC
			  LIMIT ? OFFSET ?`

	rows, err := querier.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list audit logs")
	}
	defer func() {
		_ = rows.Close()
	}()

	entries := make([]*domain.AuditLogEntry, 0)
	for rows.Next() {
		var entry domain.AuditLogEntry
		var id []byte
		var event string
		var tokenID sql.NullString
		var metadata []byte

		err := rows.Scan(
			&id,
			&event,
			&tokenID,
			&entry.IPAddress,
			&entry.UserAgent,
			&entry.RequestID,
			&metadata,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan audit log")
		}

		if entry.ID, err = uuid.FromBytes(id); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal audit log id")
		}
		entry.Event = domain.EventKind(event)
		if entry.TokenID, err = parseNullableID(m.idKind, tokenID); err != nil {
			return nil, apperrors.Wrap(err, "failed to parse audit log token id")
		}
		if entry.Metadata, err = unmarshalMetadata(metadata); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal audit log metadata")
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate audit logs")
	}
	return entries, nil
}

// NewMySQLAuditLogRepository creates a new MySQL audit log repository.
func NewMySQLAuditLogRepository(db *sql.DB, idKind domain.IDKind) *MySQLAuditLogRepository {
	return &MySQLAuditLogRepository{db: db, idKind: idKind}
}
