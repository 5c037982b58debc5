// Package rotation implements the old-token validity policies applied when a token is
// replaced by a newly issued one.
package rotation

import (
	"context"
	"time"

	"github.com/allisson/apikeys/internal/token/domain"
)

// Strategy names used as registry keys.
const (
	StrategyImmediate   = "immediate"
	StrategyGracePeriod = "grace_period"
	StrategyDualValid   = "dual_valid"
)

// Repository is the storage collaborator used by rotation strategies.
type Repository interface {
	Update(ctx context.Context, token *domain.Token, fields domain.TokenFields) error
}

// Strategy decides what happens to the old token when it is rotated.
type Strategy interface {
	Name() string

	// Rotate applies the strategy to oldToken after newToken was issued.
	Rotate(ctx context.Context, oldToken, newToken *domain.Token) error

	// IsOldTokenValid reports, at call time, whether oldToken is still accepted.
	IsOldTokenValid(oldToken *domain.Token) bool

	// GracePeriodMinutes returns the grace window, or nil when the strategy has none.
	GracePeriodMinutes() *int
}

// Option configures a strategy.
type Option func(*clock)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *clock) {
		c.now = now
	}
}

type clock struct {
	now func() time.Time
}

func newClock(opts []Option) clock {
	c := clock{now: time.Now}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func setRevokedAt(ctx context.Context, repo Repository, token *domain.Token, revokedAt, now time.Time) error {
	fields := domain.TokenFields{RevokedAt: &revokedAt}
	if err := repo.Update(ctx, token, fields); err != nil {
		return err
	}
	token.ApplyFields(fields, now)
	return nil
}

// Immediate revokes the old token at rotation time.
type Immediate struct {
	clock
	repo Repository
}

// NewImmediate creates the immediate invalidation strategy.
func NewImmediate(repo Repository, opts ...Option) *Immediate {
	return &Immediate{clock: newClock(opts), repo: repo}
}

func (s *Immediate) Name() string { return StrategyImmediate }

func (s *Immediate) Rotate(ctx context.Context, oldToken, _ *domain.Token) error {
	now := s.now()
	return setRevokedAt(ctx, s.repo, oldToken, now, now)
}

// IsOldTokenValid always returns false. The old token never survives this strategy.
func (s *Immediate) IsOldTokenValid(_ *domain.Token) bool {
	return false
}

func (s *Immediate) GracePeriodMinutes() *int { return nil }

// GracePeriod keeps the old token valid for a fixed window after rotation.
type GracePeriod struct {
	clock
	repo    Repository
	minutes int
}

// NewGracePeriod creates the grace period strategy. minutes must be positive.
func NewGracePeriod(repo Repository, minutes int, opts ...Option) (*GracePeriod, error) {
	if minutes <= 0 {
		return nil, &domain.InvalidConfigurationError{
			Field:      "grace_period_minutes",
			Constraint: "must be greater than 0",
		}
	}
	return &GracePeriod{clock: newClock(opts), repo: repo, minutes: minutes}, nil
}

func (s *GracePeriod) Name() string { return StrategyGracePeriod }

// Rotate schedules the old token's revocation at now plus the grace window.
func (s *GracePeriod) Rotate(ctx context.Context, oldToken, _ *domain.Token) error {
	now := s.now()
	return setRevokedAt(ctx, s.repo, oldToken, now.Add(time.Duration(s.minutes)*time.Minute), now)
}

// IsOldTokenValid reports whether the revocation is unset or still in the future.
func (s *GracePeriod) IsOldTokenValid(oldToken *domain.Token) bool {
	return !oldToken.IsRevoked(s.now())
}

func (s *GracePeriod) GracePeriodMinutes() *int {
	minutes := s.minutes
	return &minutes
}

// DualValid keeps both tokens valid indefinitely. It never mutates the old token and
// defers to whatever revocation is already set on it.
type DualValid struct {
	clock
}

// NewDualValid creates the dual validity strategy.
func NewDualValid(opts ...Option) *DualValid {
	return &DualValid{clock: newClock(opts)}
}

func (s *DualValid) Name() string { return StrategyDualValid }

func (s *DualValid) Rotate(_ context.Context, _, _ *domain.Token) error {
	return nil
}

func (s *DualValid) IsOldTokenValid(oldToken *domain.Token) bool {
	return !oldToken.IsRevoked(s.now())
}

func (s *DualValid) GracePeriodMinutes() *int { return nil }
