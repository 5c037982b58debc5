// Package repository provides PostgreSQL storage for tokens, token groups and audit log
// entries. The mysql and memory subpackages provide the other storage drivers.
package repository

import (
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/allisson/apikeys/internal/token/domain"
)

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const tokenColumns = `id, owner_kind, owner_id, type, environment, name, prefix, token_hash, abilities,
	metadata, allowed_ips, allowed_domains, rate_limit_per_minute, last_used_at, expires_at,
	revoked_at, group_id, parent_id, created_at, updated_at`

// qualifiedTokenColumns returns tokenColumns with every column prefixed by alias.
func qualifiedTokenColumns(alias string) string {
	columns := strings.Split(tokenColumns, ",")
	for i, column := range columns {
		columns[i] = alias + "." + strings.TrimSpace(column)
	}
	return strings.Join(columns, ", ")
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

func idStrings(ids []domain.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
