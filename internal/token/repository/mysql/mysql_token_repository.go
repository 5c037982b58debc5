// Package mysql provides MySQL storage for tokens, token groups and audit log entries.
// Abilities and allow-lists are JSON columns and audit ids are BINARY(16).
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/allisson/apikeys/internal/database"
	apperrors "github.com/allisson/apikeys/internal/errors"
	"github.com/allisson/apikeys/internal/token/domain"
)

// duplicateEntry is the MySQL error number for unique key violations.
const duplicateEntry = 1062

const tokenColumns = `id, owner_kind, owner_id, type, environment, name, prefix, token_hash, abilities,
	metadata, allowed_ips, allowed_domains, rate_limit_per_minute, last_used_at, expires_at,
	revoked_at, group_id, parent_id, created_at, updated_at`

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// MySQLTokenRepository implements token persistence for MySQL with transaction support
// via database.GetTx().
type MySQLTokenRepository struct {
	db     *sql.DB
	idKind domain.IDKind
	now    func() time.Time
}

// Create inserts a new token. A duplicate id or hash yields ErrTokenAlreadyExists.
func (m *MySQLTokenRepository) Create(ctx context.Context, token *domain.Token) error {
	querier := database.GetTx(ctx, m.db)

	abilities, err := marshalList(token.Abilities)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal token abilities")
	}
	allowedIPs, err := marshalList(token.AllowedIPs)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal token allowed ips")
	}
	allowedDomains, err := marshalList(token.AllowedDomains)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal token allowed domains")
	}
	metadata, err := marshalMetadata(token.Metadata)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal token metadata")
	}

	query := `INSERT INTO api_tokens (` + tokenColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

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
		abilities,
		metadata,
		allowedIPs,
		allowedDomains,
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
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == duplicateEntry {
			return domain.ErrTokenAlreadyExists
		}
		return apperrors.Wrap(err, "failed to create token")
	}
	return nil
}

// FindByHash retrieves a token by digest. Returns ErrTokenNotFound if not found.
func (m *MySQLTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*domain.Token, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + tokenColumns + ` FROM api_tokens WHERE token_hash = ?`

	token, err := m.scanToken(querier.QueryRowContext(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get token by hash")
	}
	return token, nil
}

// FindByID retrieves a token by id. Returns ErrTokenNotFound if not found.
func (m *MySQLTokenRepository) FindByID(ctx context.Context, id domain.ID) (*domain.Token, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + tokenColumns + ` FROM api_tokens WHERE id = ?`

	token, err := m.scanToken(querier.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get token")
	}
	return token, nil
}

// Update writes the non-nil fields and updated_at to a single token. Returns
// ErrTokenNotFound when no row matches, which relies on the clientFoundRows
// connection flag set by database.Connect.
func (m *MySQLTokenRepository) Update(ctx context.Context, token *domain.Token, fields domain.TokenFields) error {
	querier := database.GetTx(ctx, m.db)

	set, args := m.assignments(fields)
	args = append(args, token.ID.String())
	query := `UPDATE api_tokens SET ` + set + ` WHERE id = ?`

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
func (m *MySQLTokenRepository) BulkUpdateByGroup(
	ctx context.Context,
	groupID domain.ID,
	filter domain.GroupFilter,
	fields domain.TokenFields,
) (int64, error) {
	if filter.Prefixes != nil && len(filter.Prefixes) == 0 {
		return 0, nil
	}
	querier := database.GetTx(ctx, m.db)

	set, args := m.assignments(fields)
	args = append(args, groupID.String())
	query := `UPDATE api_tokens SET ` + set + ` WHERE group_id = ?`
	if filter.Prefixes != nil {
		query += ` AND prefix IN (` + placeholders(len(filter.Prefixes)) + `)`
		args = appendStrings(args, filter.Prefixes)
	}

	result, err := querier.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to update token group")
	}
	return result.RowsAffected()
}

// BulkUpdateByIDs writes fields to every listed token in one statement.
func (m *MySQLTokenRepository) BulkUpdateByIDs(
	ctx context.Context,
	ids []domain.ID,
	fields domain.TokenFields,
) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	querier := database.GetTx(ctx, m.db)

	set, args := m.assignments(fields)
	for _, id := range ids {
		args = append(args, id.String())
	}
	query := `UPDATE api_tokens SET ` + set + ` WHERE id IN (` + placeholders(len(ids)) + `)`

	result, err := querier.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to update tokens")
	}
	return result.RowsAffected()
}

// ListByGroup returns group members passing filter ordered by creation time.
func (m *MySQLTokenRepository) ListByGroup(
	ctx context.Context,
	groupID domain.ID,
	filter domain.GroupFilter,
) ([]*domain.Token, error) {
	if filter.Prefixes != nil && len(filter.Prefixes) == 0 {
		return []*domain.Token{}, nil
	}
	querier := database.GetTx(ctx, m.db)

	args := []any{groupID.String()}
	query := `SELECT ` + tokenColumns + ` FROM api_tokens WHERE group_id = ?`
	if filter.Prefixes != nil {
		query += ` AND prefix IN (` + placeholders(len(filter.Prefixes)) + `)`
		args = appendStrings(args, filter.Prefixes)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	return m.queryTokens(ctx, querier, query, args...)
}

// Descendants returns every token reachable through parent_id links from token using a
// recursive common table expression, optionally preceded by token itself.
func (m *MySQLTokenRepository) Descendants(
	ctx context.Context,
	token *domain.Token,
	hierarchyType string,
	includeSelf bool,
) ([]*domain.Token, error) {
	if hierarchyType != domain.HierarchyParent {
		return nil, &domain.InvalidConfigurationError{Field: "hierarchy_type", Constraint: "must be parent"}
	}
	querier := database.GetTx(ctx, m.db)

	query := `WITH RECURSIVE descendants (id) AS (
				  SELECT id FROM api_tokens WHERE parent_id = ?
				  UNION
				  SELECT t.id FROM api_tokens t JOIN descendants d ON t.parent_id = d.id
			  )
			  SELECT ` + tokenColumns + `
			  FROM api_tokens WHERE id IN (SELECT id FROM descendants)
			  ORDER BY created_at ASC, id ASC`

	tokens, err := m.queryTokens(ctx, querier, query, token.ID.String())
	if err != nil {
		return nil, err
	}

	if includeSelf {
		self, err := m.FindByID(ctx, token.ID)
		if err != nil {
			return nil, err
		}
		tokens = append([]*domain.Token{self}, tokens...)
	}
	return tokens, nil
}

// NextSequentialID draws the next id from the token_id_sequence AUTO_INCREMENT column,
// shared by tokens and groups. The row is removed right away; the counter keeps advancing.
func (m *MySQLTokenRepository) NextSequentialID(ctx context.Context) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	result, err := querier.ExecContext(ctx, `INSERT INTO token_id_sequence () VALUES ()`)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to get next token id")
	}
	next, err := result.LastInsertId()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to read next token id")
	}

	if _, err := querier.ExecContext(ctx, `DELETE FROM token_id_sequence WHERE id = ?`, next); err != nil {
		return 0, apperrors.Wrap(err, "failed to trim token id sequence")
	}
	return next, nil
}

func (m *MySQLTokenRepository) assignments(fields domain.TokenFields) (string, []any) {
	var columns []string
	var args []any

	if fields.RevokedAt != nil {
		columns = append(columns, "revoked_at = ?")
		args = append(args, fields.RevokedAt.UTC())
	}
	if fields.LastUsedAt != nil {
		columns = append(columns, "last_used_at = ?")
		args = append(args, fields.LastUsedAt.UTC())
	}
	columns = append(columns, "updated_at = ?")
	args = append(args, m.now().UTC())

	return strings.Join(columns, ", "), args
}

func (m *MySQLTokenRepository) queryTokens(
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
		token, err := m.scanToken(rows)
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

func (m *MySQLTokenRepository) scanToken(row scanner) (*domain.Token, error) {
	var (
		token          domain.Token
		id             string
		abilities      []byte
		metadata       []byte
		allowedIPs     []byte
		allowedDomains []byte
		rateLimit      sql.NullInt64
		groupID        sql.NullString
		parentID       sql.NullString
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
		&abilities,
		&metadata,
		&allowedIPs,
		&allowedDomains,
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

	if token.ID, err = domain.ParseID(m.idKind, id); err != nil {
		return nil, err
	}
	if token.GroupID, err = parseNullableID(m.idKind, groupID); err != nil {
		return nil, err
	}
	if token.ParentID, err = parseNullableID(m.idKind, parentID); err != nil {
		return nil, err
	}
	if token.Abilities, err = unmarshalList(abilities); err != nil {
		return nil, err
	}
	if token.AllowedIPs, err = unmarshalList(allowedIPs); err != nil {
		return nil, err
	}
	if token.AllowedDomains, err = unmarshalList(allowedDomains); err != nil {
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

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func appendStrings(args []any, values []string) []any {
	for _, v := range values {
		args = append(args, v)
	}
	return args
}

func marshalList(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}

func unmarshalList(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values, nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return nil, nil
	}
	return json.Marshal(metadata)
}

func unmarshalMetadata(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}

func nullableID(id *domain.ID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func parseNullableID(kind domain.IDKind, value sql.NullString) (*domain.ID, error) {
	if !value.Valid {
		return nil, nil
	}
	id, err := domain.ParseID(kind, value.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func nullableInt(value *int) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*value), Valid: true}
}

// NewMySQLTokenRepository creates a new MySQL token repository. idKind is used to parse
// stored identifiers.
func NewMySQLTokenRepository(db *sql.DB, idKind domain.IDKind) *MySQLTokenRepository {
	return &MySQLTokenRepository{db: db, idKind: idKind, now: time.Now}
}
