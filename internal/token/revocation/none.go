package revocation

import (
	"context"

	"github.com/allisson/apikeys/internal/token/domain"
)

// None revokes only the given token.
type None struct {
	base
}

// NewNone creates the single-token revocation strategy.
func NewNone(repo Repository, opts ...Option) *None {
	return &None{base: newBase(repo, opts)}
}

func (s *None) Name() string { return StrategyNone }

// Revoke sets the revocation timestamp to now. Calling it again moves the timestamp forward.
func (s *None) Revoke(ctx context.Context, token *domain.Token) error {
	return s.revokeSingle(ctx, token, s.now())
}

func (s *None) AffectedTokens(_ context.Context, token *domain.Token) ([]*domain.Token, error) {
	return []*domain.Token{token}, nil
}
