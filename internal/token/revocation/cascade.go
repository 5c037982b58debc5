package revocation

import (
	"context"

	"github.com/allisson/apikeys/internal/token/domain"
)

// Cascade revokes every token in the token's group, or the token alone when ungrouped.
type Cascade struct {
	base
}

// NewCascade creates the group cascade strategy.
func NewCascade(repo Repository, opts ...Option) *Cascade {
	return &Cascade{base: newBase(repo, opts)}
}

func (s *Cascade) Name() string { return StrategyCascade }

func (s *Cascade) Revoke(ctx context.Context, token *domain.Token) error {
	if token.GroupID == nil {
		return s.revokeSingle(ctx, token, s.now())
	}
	return s.revokeGroup(ctx, token, domain.GroupFilter{})
}

func (s *Cascade) AffectedTokens(ctx context.Context, token *domain.Token) ([]*domain.Token, error) {
	if token.GroupID == nil {
		return []*domain.Token{token}, nil
	}
	return s.repo.ListByGroup(ctx, *token.GroupID, domain.GroupFilter{})
}

// PartialCascade revokes the group members whose prefix is in a configured set.
// An ungrouped token is always revoked regardless of its prefix. A grouped token whose
// prefix is not in the set is left untouched, so an empty set revokes nothing.
type PartialCascade struct {
	base
	prefixes []string
}

// NewPartialCascade creates the prefix filtered group cascade strategy.
func NewPartialCascade(repo Repository, prefixes []string, opts ...Option) *PartialCascade {
	set := make([]string, len(prefixes))
	copy(set, prefixes)
	return &PartialCascade{base: newBase(repo, opts), prefixes: set}
}

func (s *PartialCascade) Name() string { return StrategyPartialCascade }

// Prefixes returns the configured prefix set.
func (s *PartialCascade) Prefixes() []string {
	out := make([]string, len(s.prefixes))
	copy(out, s.prefixes)
	return out
}

func (s *PartialCascade) filter() domain.GroupFilter {
	// Non-nil so that an empty configuration selects no member.
	return domain.GroupFilter{Prefixes: s.Prefixes()}
}

func (s *PartialCascade) Revoke(ctx context.Context, token *domain.Token) error {
	if token.GroupID == nil {
		return s.revokeSingle(ctx, token, s.now())
	}
	return s.revokeGroup(ctx, token, s.filter())
}

func (s *PartialCascade) AffectedTokens(ctx context.Context, token *domain.Token) ([]*domain.Token, error) {
	if token.GroupID == nil {
		return []*domain.Token{token}, nil
	}
	return s.repo.ListByGroup(ctx, *token.GroupID, s.filter())
}
