package repository

import (
	"context"
	"database/sql"

	"github.com/allisson/apikeys/internal/database"
	apperrors "github.com/allisson/apikeys/internal/errors"
	"github.com/allisson/apikeys/internal/token/domain"
)

// PostgreSQLAuditLogRepository implements token audit log persistence for PostgreSQL.
// Uses native UUID ids with transaction support via database.GetTx().
type PostgreSQLAuditLogRepository struct {
	db     *sql.DB
	idKind domain.IDKind
}

// Create inserts a new audit log entry. Nil metadata is stored as NULL.
func (p *PostgreSQLAuditLogRepository) Create(ctx context.Context, entry *domain.AuditLogEntry) error {
	querier := database.GetTx(ctx, p.db)

	metadata, err := marshalMetadata(entry.Metadata)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal audit log metadata")
	}

	query := `INSERT INTO token_audit_logs
			  (id, event, token_id, ip_address, user_agent, request_id, metadata, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = querier.ExecContext(
		ctx,
		query,
		entry.ID,
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

// List retrieves audit log entries newest first with pagination. Returns an empty slice
// when nothing matches.
func (p *PostgreSQLAuditLogRepository) List(
	ctx context.Context,
	offset, limit int,
) ([]*domain.AuditLogEntry, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, event, token_id, ip_address, user_agent, request_id, metadata, created_at
			  FROM token_audit_logs
			  ORDER BY created_at DESC, id DESC
			  LIMIT $1 OFFSET $2`

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
		var event string
		var tokenID sql.NullString
		var metadata []byte

		err := rows.Scan(
			&entry.ID,
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

		entry.Event = domain.EventKind(event)
		if entry.TokenID, err = parseNullableID(p.idKind, tokenID); err != nil {
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

// NewPostgreSQLAuditLogRepository creates a new PostgreSQL audit log repository.
func NewPostgreSQLAuditLogRepository(db *sql.DB, idKind domain.IDKind) *PostgreSQLAuditLogRepository {
	return &PostgreSQLAuditLogRepository{db: db, idKind: idKind}
}
