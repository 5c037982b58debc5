// Package audit provides the sinks that record token lifecycle events.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/apikeys/internal/errors"
	"github.com/allisson/apikeys/internal/token/domain"
)

// Driver names used as registry keys.
const (
	DriverNull     = "null"
	DriverLog      = "log"
	DriverDatabase = "database"
)

// Sink records a lifecycle event for token. token is nil for events without a subject.
type Sink interface {
	Log(ctx context.Context, token *domain.Token, kind domain.EventKind, metadata map[string]any) error
}

// Repository persists audit log entries.
type Repository interface {
	Create(ctx context.Context, entry *domain.AuditLogEntry) error
}

// NoOpSink discards every event.
type NoOpSink struct{}

// NewNoOpSink creates a sink that records nothing.
func NewNoOpSink() NoOpSink {
	return NoOpSink{}
}

func (NoOpSink) Log(context.Context, *domain.Token, domain.EventKind, map[string]any) error {
	return nil
}

// LoggerSink writes one structured log record per event.
type LoggerSink struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLoggerSink creates a sink that logs events at info level.
func NewLoggerSink(logger *slog.Logger) *LoggerSink {
	return &LoggerSink{logger: logger, level: slog.LevelInfo}
}

func (s *LoggerSink) Log(
	ctx context.Context,
	token *domain.Token,
	kind domain.EventKind,
	metadata map[string]any,
) error {
	attrs := []slog.Attr{slog.String("event", string(kind))}
	if token != nil {
		attrs = append(attrs, tokenAttrs(token)...)
	}
	if len(metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", metadata))
	}
	s.logger.LogAttrs(ctx, s.level, "token audit event", attrs...)
	return nil
}

// tokenAttrs never includes the hash or any plaintext.
func tokenAttrs(token *domain.Token) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("token_type", token.Type),
		slog.String("environment", token.Environment),
	}
	if !token.ID.IsZero() {
		attrs = append(attrs, slog.String("token_id", token.ID.String()))
	}
	if !token.Owner.IsZero() {
		attrs = append(attrs, slog.String("owner_kind", token.Owner.Kind), slog.String("owner_id", token.Owner.ID))
	}
	if token.Transient {
		attrs = append(attrs, slog.Bool("transient", true))
	}
	return attrs
}

// RepositorySink persists each event as an AuditLogEntry.
type RepositorySink struct {
	repo Repository
	now  func() time.Time
}

// NewRepositorySink creates a sink backed by repo.
func NewRepositorySink(repo Repository) *RepositorySink {
	return &RepositorySink{repo: repo, now: time.Now}
}

// Log builds an entry with a UUIDv7 id. The ip_address, user_agent and request_id
// metadata keys are moved into dedicated entry fields.
func (s *RepositorySink) Log(
	ctx context.Context,
	token *domain.Token,
	kind domain.EventKind,
	metadata map[string]any,
) error {
	id, err := uuid.NewV7()
	if err != nil {
		return apperrors.Wrap(err, "failed to generate audit log id")
	}

	entry := &domain.AuditLogEntry{
		ID:        id,
		Event:     kind,
		CreatedAt: s.now().UTC(),
	}
	if token != nil && !token.Transient && !token.ID.IsZero() {
		tokenID := token.ID
		entry.TokenID = &tokenID
	}

	rest := maps.Clone(metadata)
	entry.IPAddress = liftString(rest, domain.AuditKeyIPAddress)
	entry.UserAgent = liftString(rest, domain.AuditKeyUserAgent)
	entry.RequestID = liftString(rest, domain.AuditKeyRequestID)
	if len(rest) > 0 {
		entry.Metadata = rest
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		return apperrors.Wrap(err, "failed to create audit log")
	}
	return nil
}

func liftString(metadata map[string]any, key string) string {
	v, ok := metadata[key]
	if !ok {
		return ""
	}
	delete(metadata, key)
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
