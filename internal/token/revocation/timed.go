package revocation

import (
	"context"
	"time"

	"github.com/allisson/apikeys/internal/token/domain"
)

// Timed schedules the revocation of the token a fixed delay in the future.
type Timed struct {
	base
	delay time.Duration
}

// NewTimed creates the delayed revocation strategy. delayMinutes must be positive.
func NewTimed(repo Repository, delayMinutes int, opts ...Option) (*Timed, error) {
	if delayMinutes <= 0 {
		return nil, &domain.InvalidConfigurationError{
			Field:      "delay_minutes",
			Constraint: "must be greater than 0",
		}
	}
	return &Timed{base: newBase(repo, opts), delay: time.Duration(delayMinutes) * time.Minute}, nil
}

func (s *Timed) Name() string { return StrategyTimed }

// Delay returns the configured revocation delay.
func (s *Timed) Delay() time.Duration { return s.delay }

// Revoke sets the revocation timestamp to now plus the delay. Each call reschedules
// relative to the current time.
func (s *Timed) Revoke(ctx context.Context, token *domain.Token) error {
	return s.revokeSingle(ctx, token, s.now().Add(s.delay))
}

func (s *Timed) AffectedTokens(_ context.Context, token *domain.Token) ([]*domain.Token, error) {
	return []*domain.Token{token}, nil
}
