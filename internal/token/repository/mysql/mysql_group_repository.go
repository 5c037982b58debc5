package mysql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/allisson/apikeys/internal/database"
	apperrors "github.com/allisson/apikeys/internal/errors"
	"github.com/allisson/apikeys/internal/token/domain"
)

// MySQLGroupRepository implements token group persistence for MySQL.
type MySQLGroupRepository struct {
	db     *sql.DB
	idKind domain.IDKind
}

// CreateGroup inserts a new token group.
func (m *MySQLGroupRepository) CreateGroup(ctx context.Context, group *domain.TokenGroup) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO token_groups (id, name, owner_kind, owner_id, created_at) VALUES (?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(
		ctx,
		query,
		group.ID.String(),
		group.Name,
		group.Owner.Kind,
		group.Owner.ID,
		group.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create token group")
	}
	return nil
}

// FindGroupByID retrieves a token group. Returns ErrGroupNotFound if not found.
func (m *MySQLGroupRepository) FindGroupByID(ctx context.Context, id domain.ID) (*domain.TokenGroup, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, name, owner_kind, owner_id, created_at FROM token_groups WHERE id = ?`

	var group domain.TokenGroup
	var rawID string

	err := querier.QueryRowContext(ctx, query, id.String()).Scan(
		&rawID,
		&group.Name,
		&group.Owner.Kind,
		&group.Owner.ID,
		&group.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrGroupNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get token group")
	}

	if group.ID, err = domain.ParseID(m.idKind, rawID); err != nil {
		return nil, apperrors.Wrap(err, "failed to parse token group id")
	}
	return &group, nil
}

// NewMySQLGroupRepository creates a new MySQL token group repository.
func NewMySQLGroupRepository(db *sql.DB, idKind domain.IDKind) *MySQLGroupRepository {
	return &MySQLGroupRepository{db: db, idKind: idKind}
}
