// Package usecase implements the authentication guard and the token lifecycle operations.
package usecase

import (
	"context"

	"github.com/allisson/apikeys/internal/token/domain"
)

// TokenRepository defines persistence operations for tokens.
// Implementations must support transaction-aware operations via context propagation.
type TokenRepository interface {
	// Create stores a new token. Returns ErrTokenAlreadyExists on a duplicate hash.
	Create(ctx context.Context, token *domain.Token) error

	// FindByHash retrieves a token by digest. Returns ErrTokenNotFound if not found.
	FindByHash(ctx context.Context, tokenHash string) (*domain.Token, error)

	// FindByID retrieves a token by id. Returns ErrTokenNotFound if not found.
	FindByID(ctx context.Context, id domain.ID) (*domain.Token, error)

	// Update writes the non-nil fields to a single token.
	Update(ctx context.Context, token *domain.Token, fields domain.TokenFields) error

	// BulkUpdateByGroup writes fields to every group member passing filter in one statement.
	BulkUpdateByGroup(
		ctx context.Context,
		groupID domain.ID,
		filter domain.GroupFilter,
		fields domain.TokenFields,
	) (int64, error)

	// BulkUpdateByIDs writes fields to every listed token in one statement.
	BulkUpdateByIDs(ctx context.Context, ids []domain.ID, fields domain.TokenFields) (int64, error)

	// ListByGroup returns group members passing filter.
	ListByGroup(ctx context.Context, groupID domain.ID, filter domain.GroupFilter) ([]*domain.Token, error)

	// Descendants returns every token derived from token, optionally including token.
	Descendants(
		ctx context.Context,
		token *domain.Token,
		hierarchyType string,
		includeSelf bool,
	) ([]*domain.Token, error)
}

// GroupRepository defines persistence operations for token groups.
type GroupRepository interface {
	CreateGroup(ctx context.Context, group *domain.TokenGroup) error

	// FindGroupByID returns ErrGroupNotFound if not found.
	FindGroupByID(ctx context.Context, id domain.ID) (*domain.TokenGroup, error)
}

// AuditLogRepository defines persistence operations for audit log entries.
type AuditLogRepository interface {
	Create(ctx context.Context, entry *domain.AuditLogEntry) error

	// List returns entries newest first.
	List(ctx context.Context, offset, limit int) ([]*domain.AuditLogEntry, error)
}

// Request is the transport adapter the guard reads credentials and request context from.
type Request interface {
	// BearerCredential returns the conventional credential, or "" when absent.
	BearerCredential() string

	// RemoteAddr returns the client IP address.
	RemoteAddr() string

	// Header returns the named header value, or "" when absent.
	Header(name string) string
}

// RequestIDer is optionally implemented by a Request that carries a request id.
type RequestIDer interface {
	RequestID() string
}

// StatefulSource resolves an identity from existing request state (a session
// equivalent) before any bearer credential is considered.
type StatefulSource interface {
	Identity(ctx context.Context, req Request) (domain.Owner, bool)
}

// StatefulSourceFunc adapts a function to StatefulSource.
type StatefulSourceFunc func(ctx context.Context, req Request) (domain.Owner, bool)

// Identity calls f(ctx, req).
func (f StatefulSourceFunc) Identity(ctx context.Context, req Request) (domain.Owner, bool) {
	return f(ctx, req)
}

// CredentialExtractor returns the raw credential presented by req, or "".
type CredentialExtractor func(req Request) string

// Authenticator authenticates a request.
type Authenticator interface {
	// Authenticate runs the guard pipeline. Every rejection wraps errors.ErrUnauthorized.
	Authenticate(ctx context.Context, req Request) (*domain.Authentication, error)
}

// TokenUseCase defines the token lifecycle operations.
type TokenUseCase interface {
	// Issue creates a token and returns it with its plaintext.
	//
	// Security Note: the returned PlainText is only available once and must never be
	// logged or stored by the caller.
	Issue(ctx context.Context, input *domain.IssueTokenInput) (*domain.NewlyIssuedToken, error)

	// CreateGroup creates an empty token group.
	CreateGroup(ctx context.Context, name string, owner domain.Owner) (*domain.TokenGroup, error)

	// IssueGroup creates a group and issues every input into it in one transaction.
	IssueGroup(
		ctx context.Context,
		name string,
		owner domain.Owner,
		inputs []*domain.IssueTokenInput,
	) (*domain.TokenGroup, []*domain.NewlyIssuedToken, error)

	// Derive issues a child token whose abilities are covered by the parent.
	Derive(ctx context.Context, parentID domain.ID, input *domain.IssueTokenInput) (*domain.NewlyIssuedToken, error)

	// Revoke applies the named revocation strategy (empty uses the default) and returns
	// the ids of the affected tokens.
	Revoke(ctx context.Context, tokenID domain.ID, strategyName string) ([]domain.ID, error)

	// PreviewRevocation returns the tokens Revoke would affect without mutating anything.
	PreviewRevocation(ctx context.Context, tokenID domain.ID, strategyName string) ([]*domain.Token, error)

	// Rotate issues a replacement with the same attributes and applies the named
	// rotation strategy to the old token.
	Rotate(ctx context.Context, tokenID domain.ID, strategyName string) (*domain.NewlyIssuedToken, error)

	// IsRotatedTokenValid reports whether a rotated token is still accepted by the strategy.
	IsRotatedTokenValid(ctx context.Context, tokenID domain.ID, strategyName string) (bool, error)
}
