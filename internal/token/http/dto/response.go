// Package dto provides data transfer objects for token HTTP responses.
package dto

import (
	"time"

	"github.com/allisson/apikeys/internal/token/domain"
)

// AuditLogResponse represents an audit log entry in API responses.
type AuditLogResponse struct {
	ID        string         `json:"id"`
	Event     string         `json:"event"`
	TokenID   *string        `json:"token_id"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// MapAuditLogToResponse converts a domain audit log entry to an API response.
func MapAuditLogToResponse(entry *domain.AuditLogEntry) AuditLogResponse {
	var tokenID *string
	if entry.TokenID != nil {
		id := entry.TokenID.String()
		tokenID = &id
	}
	return AuditLogResponse{
		ID:        entry.ID.String(),
		Event:     string(entry.Event),
		TokenID:   tokenID,
		IPAddress: entry.IPAddress,
		UserAgent: entry.UserAgent,
		RequestID: entry.RequestID,
		Metadata:  entry.Metadata,
		CreatedAt: entry.CreatedAt,
	}
}

// ListAuditLogsResponse represents a paginated list of audit log entries.
type ListAuditLogsResponse struct {
	Data []AuditLogResponse `json:"data"`
}

// MapAuditLogsToListResponse converts domain audit log entries to a list API response.
func MapAuditLogsToListResponse(entries []*domain.AuditLogEntry) ListAuditLogsResponse {
	responses := make([]AuditLogResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, MapAuditLogToResponse(entry))
	}
	return ListAuditLogsResponse{Data: responses}
}
