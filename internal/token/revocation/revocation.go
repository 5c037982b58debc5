// Package revocation implements the token revocation strategies. Each strategy decides
// which tokens a revocation affects and writes the revocation timestamp through the
// storage collaborator with set-based updates.
package revocation

import (
	"context"
	"time"

	"github.com/allisson/apikeys/internal/token/domain"
)

// Strategy names used as registry keys.
const (
	StrategyNone               = "none"
	StrategyCascade            = "cascade"
	StrategyPartialCascade     = "partial_cascade"
	StrategyCascadeDescendants = "cascade_descendants"
	StrategyTimed              = "timed"
)

// Repository is the storage collaborator used by revocation strategies.
type Repository interface {
	// Update writes fields to a single token.
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

	// Descendants returns every token derived from token in the hierarchy, optionally including token.
	Descendants(
		ctx context.Context,
		token *domain.Token,
		hierarchyType string,
		includeSelf bool,
	) ([]*domain.Token, error)
}

// Strategy revokes tokens and previews the tokens a revocation would affect.
type Strategy interface {
	Name() string

	// Revoke applies the revocation and updates the passed token in place.
	Revoke(ctx context.Context, token *domain.Token) error

	// AffectedTokens returns the tokens Revoke would touch without mutating anything.
	AffectedTokens(ctx context.Context, token *domain.Token) ([]*domain.Token, error)
}

// Option configures a strategy.
type Option func(*base)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *base) {
		b.now = now
	}
}

type base struct {
	repo Repository
	now  func() time.Time
}

func newBase(repo Repository, opts []Option) base {
	b := base{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// revokeSingle marks only token as revoked at revokedAt.
func (b *base) revokeSingle(ctx context.Context, token *domain.Token, revokedAt time.Time) error {
	fields := domain.TokenFields{RevokedAt: &revokedAt}
	if err := b.repo.Update(ctx, token, fields); err != nil {
		return err
	}
	token.ApplyFields(fields, b.now())
	return nil
}

// revokeGroup marks every group member passing filter as revoked in one set-based update.
func (b *base) revokeGroup(ctx context.Context, token *domain.Token, filter domain.GroupFilter) error {
	now := b.now()
	fields := domain.TokenFields{RevokedAt: &now}
	if _, err := b.repo.BulkUpdateByGroup(ctx, *token.GroupID, filter, fields); err != nil {
		return err
	}
	if filter.Matches(token) {
		token.ApplyFields(fields, now)
	}
	return nil
}
