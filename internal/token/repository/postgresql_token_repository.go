package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/allisson/apikeys/internal/database"
	apperrors "github.com/allisson/apikeys/internal/errors"
	"github.com/allisson/apikeys/internal/token/domain"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint violations.
const uniqueViolation = "23505"

// PostgreSQLTokenRepository implements token persistence for PostgreSQL with transaction
// support via database.GetTx(). Abilities and allow-lists are TEXT[] columns.
type PostgreSQLTokenRepository struct {
	db     *sql.DB
	idKind domain.IDKind
	now    func() time.Time
}

// Create inserts a new token. A duplicate id or hash yields ErrTokenAlreadyExists.
func (p *PostgreSQLTokenRepository) Create(ctx context.Context, token *domain.Token) error {
	querier := database.GetTx(ctx, p.db)

	metadata, err := marshalMetadata(token.Metadata)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal token metadata")
	}

	query := `INSERT INTO api_tokens (` + tokenColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err = querier.ExecContext(
		ctx,
		query,
		token.ID.String(),
		token.Owner.Kind,
		token.Owner.ID,
		token.Type,
		token.Environment,
		token.Name,
		token.Prefix,
		token.TokenHash,
		pq.Array(nonNil(token.Abilities)),
		metadata,
		pq.Array(nonNil(token.AllowedIPs)),
		pq.Array(nonNil(token.AllowedDomains)),
		nullableInt(token.RateLimitPerMinute),
		token.LastUsedAt,
		token.ExpiresAt,
		token.RevokedAt,
		nullableID(token.GroupID),
		nullableID(token.ParentID),
		token.CreatedAt,
		token.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.ErrTokenAlreadyExists
		}
		return apperrors.Wrap(err, "failed to create token")
	}
	return nil
}

// FindByHash retrieves a token by digest. Returns ErrTokenNotFound if not found.
func (p *PostgreSQLTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*domain.Token, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + tokenColumns + ` FROM api_tokens WHERE token_hash = $1`

	token, err := p.scanToken(querier.QueryRowContext(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get token by hash")
	}
	return token, nil
}

// FindByID retrieves a token by id. Returns ErrTokenNotFound if not found.
func (p *PostgreSQLTokenRepository) FindByID(ctx context.Context, id domain.ID) (*domain.Token, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + tokenColumns + ` FROM api_tokens WHERE id = $1`

	token, err := p.scanToken(querier.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get token")
	}
	return token, nil
}

// Update writes the non-nil fields and updated_at to a single token.
// Returns ErrTokenNotFound when no row matches.
func (p *PostgreSQLTokenRepository) Update(
	ctx context.Context,
	token *domain.Token,
	fields domain.TokenFields,
) error {
	querier := database.GetTx(ctx, p.db)

	set, args := p.assignments(fields)
	args = append(args, token.ID.String())
	query := fmt.Sprintf(`UPDATE api_tokens SET %s WHERE id = $%d`, set, len(args))

	result, err := querier.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.Wrap(err, "failed to update token")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to get affected rows")
	}
	if rows == 0 {
		return domain.ErrTokenNotFound
	}
	return nil
}

// BulkUpdateByGroup writes fields to every group member passing filter in one statement.
func (p *PostgreSQLTokenRepository) BulkUpdateByGroup(
	ctx context.Context,
	groupID domain.ID,
	filter domain.GroupFilter,
	fields domain.TokenFields,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	set, args := p.assignments(fields)
	args = append(args, groupID.String())
	query := fmt.Sprintf(`UPDATE api_tokens SET %s WHERE group_id = $%d`, set, len(args))
	if filter.Prefixes != nil {
		args = append(args, pq.Array(filter.Prefixes))
		query += fmt.Sprintf(` AND prefix = ANY($%d)`, len(args))
	}

	result, err := querier.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to update token group")
	}
	return result.RowsAffected()
}

// BulkUpdateByIDs writes fields to every listed token in one statement.
func (p *PostgreSQLTokenRepository) BulkUpdateByIDs(
	ctx context.Context,
	ids []domain.ID,
	fields domain.TokenFields,
) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	querier := database.GetTx(ctx, p.db)

	set, args := p.assignments(fields)
	args = append(args, pq.Array(idStrings(ids)))
	query := fmt.Sprintf(`UPDATE api_tokens SET %s WHERE id = ANY($%d)`, set, len(args))

	result, err := querier.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to update tokens")
	}
	return result.RowsAffected()
}

// ListByGroup returns group members passing filter ordered by creation time.
func (p *PostgreSQLTokenRepository) ListByGroup(
	ctx context.Context,
	groupID domain.ID,
	filter domain.GroupFilter,
) ([]*domain.Token, error) {
	querier := database.GetTx(ctx, p.db)

	args := []any{groupID.String()}
	query := `SELECT ` + tokenColumns + ` FROM api_tokens WHERE group_id = $1`
	if filter.Prefixes != nil {
		args = append(args, pq.Array(filter.Prefixes))
		query += ` AND prefix = ANY($2)`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	return p.queryTokens(ctx, querier, query, args...)
}

// Descendants returns every token reachable through parent_id links from token using a
// recursive query, optionally preceded by token itself.
func (p *PostgreSQLTokenRepository) Descendants(
	ctx context.Context,
	token *domain.Token,
	hierarchyType string,
	includeSelf bool,
) ([]*domain.Token, error) {
	if hierarchyType != domain.HierarchyParent {
		return nil, &domain.InvalidConfigurationError{Field: "hierarchy_type", Constraint: "must be parent"}
	}
	querier := database.GetTx(ctx, p.db)

	query := `WITH RECURSIVE descendants (id) AS (
				  SELECT id FROM api_tokens WHERE parent_id = $1
				  UNION
				  SELECT t.id FROM api_tokens t JOIN descendants d ON t.parent_id = d.id
			  )
			  SELECT ` + qualifiedTokenColumns("t") + `
			  FROM api_tokens t JOIN descendants d ON t.id = d.id
			  ORDER BY t.created_at ASC, t.id ASC`

	tokens, err := p.queryTokens(ctx, querier, query, token.ID.String())
	if err != nil {
		return nil, err
	}

	if includeSelf {
		self, err := p.FindByID(ctx, token.ID)
		if err != nil {
			return nil, err
		}
		tokens = append([]*domain.Token{self}, tokens...)
	}
	return tokens, nil
}

// NextSequentialID draws the next value of token_id_seq, shared by tokens and groups.
func (p *PostgreSQLTokenRepository) NextSequentialID(ctx context.Context) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	var next int64
	if err := querier.QueryRowContext(ctx, `SELECT nextval('token_id_seq')`).Scan(&next); err != nil {
		return 0, apperrors.Wrap(err, "failed to get next token id")
	}
	return next, nil
}

// assignments builds the SET clause for fields. Placeholders start at $1.
func (p *PostgreSQLTokenRepository) assignments(fields domain.TokenFields) (string, []any) {
	var columns []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		columns = append(columns, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if fields.RevokedAt != nil {
		add("revoked_at", fields.RevokedAt.UTC())
	}
	if fields.LastUsedAt != nil {
		add("last_used_at", fields.LastUsedAt.UTC())
	}
	add("updated_at", p.now().UTC())

	return strings.Join(columns, ", "), args
}

func (p *PostgreSQLTokenRepository) queryTokens(
	ctx context.Context,
	querier database.Querier,
	query string,
	args ...any,
) ([]*domain.Token, error) {
	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list tokens")
	}
	defer func() {
		_ = rows.Close()
	}()

	tokens := make([]*domain.Token, 0)
	for rows.Next() {
		token, err := p.scanToken(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan token")
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate tokens")
	}
	return tokens, nil
}

func (p *PostgreSQLTokenRepository) scanToken(row scanner) (*domain.Token, error) {
	var (
		token     domain.Token
		id        string
		metadata  []byte
		rateLimit sql.NullInt64
		groupID   sql.NullString
		parentID  sql.NullString
	)

	err := row.Scan(
		&id,
		&token.Owner.Kind,
		&token.Owner.ID,
		&token.Type,
		&token.Environment,
		&token.Name,
		&token.Prefix,
		&token.TokenHash,
		pq.Array(&token.Abilities),
		&metadata,
		pq.Array(&token.AllowedIPs),
		pq.Array(&token.AllowedDomains),
		&rateLimit,
		&token.LastUsedAt,
		&token.ExpiresAt,
		&token.RevokedAt,
		&groupID,
		&parentID,
		&token.CreatedAt,
		&token.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if token.ID, err = domain.ParseID(p.idKind, id); err != nil {
		return nil, err
	}
	if token.GroupID, err = parseNullableID(p.idKind, groupID); err != nil {
		return nil, err
	}
	if token.ParentID, err = parseNullableID(p.idKind, parentID); err != nil {
		return nil, err
	}
	if token.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return nil, err
	}
	if rateLimit.Valid {
		limit := int(rateLimit.Int64)
		token.RateLimitPerMinute = &limit
	}
	if token.Abilities == nil {
		token.Abilities = []string{}
	}
	return &token, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// NewPostgreSQLTokenRepository creates a new PostgreSQL token repository. idKind is used
// to parse stored identifiers.
func NewPostgreSQLTokenRepository(db *sql.DB, idKind domain.IDKind) *PostgreSQLTokenRepository {
	return &PostgreSQLTokenRepository{db: db, idKind: idKind, now: time.Now}
}
