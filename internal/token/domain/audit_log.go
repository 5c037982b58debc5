package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind is the kind of a token lifecycle event.
type EventKind string

const (
	EventCreated       EventKind = "created"
	EventAuthenticated EventKind = "authenticated"
	EventRevoked       EventKind = "revoked"
	EventRotated       EventKind = "rotated"
	EventFailed        EventKind = "failed"
	EventRateLimited   EventKind = "rate_limited"
	EventIPBlocked     EventKind = "ip_blocked"
	EventDomainBlocked EventKind = "domain_blocked"
	EventExpired       EventKind = "expired"
	EventDerived       EventKind = "derived"
)

// EventKinds lists every event kind in declaration order.
var EventKinds = []EventKind{
	EventCreated,
	EventAuthenticated,
	EventRevoked,
	EventRotated,
	EventFailed,
	EventRateLimited,
	EventIPBlocked,
	EventDomainBlocked,
	EventExpired,
	EventDerived,
}

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	for _, kind := range EventKinds {
		if kind == k {
			return true
		}
	}
	return false
}

// AuditLogEntry is an append-only record of a token lifecycle event.
// Entries are only created by audit sinks and never carry plaintext credentials.
type AuditLogEntry struct {
	ID        uuid.UUID
	Event     EventKind
	TokenID   *ID
	IPAddress string
	UserAgent string
	RequestID string
	Metadata  map[string]any
	CreatedAt time.Time
}
