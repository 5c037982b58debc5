package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/allisson/apikeys/internal/errors"
)

// Token lifecycle errors.
var (
	// ErrTokenNotFound indicates no stored token matches the requested id or hash.
	ErrTokenNotFound = errors.Wrap(errors.ErrNotFound, "token not found")

	// ErrGroupNotFound indicates no stored group matches the requested id.
	ErrGroupNotFound = errors.Wrap(errors.ErrNotFound, "token group not found")

	// ErrTokenAlreadyExists indicates a token with the same hash is already stored.
	ErrTokenAlreadyExists = errors.Wrap(errors.ErrConflict, "token already exists")

	// ErrInvalidPlaintextSegment indicates a prefix or environment is empty or contains the delimiter.
	ErrInvalidPlaintextSegment = errors.Wrap(errors.ErrInvalidInput, "prefix and environment must be non-empty and free of '_'")

	// ErrInvalidSecret indicates a secret generator produced a value its own validator rejects.
	ErrInvalidSecret = errors.Wrap(errors.ErrInvalidInput, "generated secret failed validation")
)

// Authentication errors. All of them wrap ErrUnauthorized.
var (
	// ErrMissingCredential indicates the request carried no credential at all.
	ErrMissingCredential = errors.Wrap(errors.ErrUnauthorized, "missing credential")

	// ErrCredentialNotFound indicates the presented credential is malformed or matches no token.
	// It also matches ErrTokenNotFound.
	ErrCredentialNotFound = fmt.Errorf("%w: %w", errors.ErrUnauthorized, ErrTokenNotFound)

	// ErrUnauthenticated indicates a capability check ran without an attached token.
	ErrUnauthenticated = errors.Wrap(errors.ErrUnauthorized, "unauthenticated")
)

// TokenRevokedError is returned when the token's revocation timestamp has passed.
type TokenRevokedError struct {
	RevokedAt time.Time
}

func (e *TokenRevokedError) Error() string {
	return fmt.Sprintf("token revoked at %s", e.RevokedAt.UTC().Format(time.RFC3339))
}

func (e *TokenRevokedError) Unwrap() error { return errors.ErrUnauthorized }

// TokenExpiredError is returned when the token's effective expiry has passed.
type TokenExpiredError struct {
	ExpiresAt time.Time
}

func (e *TokenExpiredError) Error() string {
	return fmt.Sprintf("token expired at %s", e.ExpiresAt.UTC().Format(time.RFC3339))
}

func (e *TokenExpiredError) Unwrap() error { return errors.ErrUnauthorized }

// IPRestrictedError is returned when the client address is not in the token's allow-list.
type IPRestrictedError struct {
	IP      string
	Allowed []string
}

func (e *IPRestrictedError) Error() string {
	return fmt.Sprintf("ip %q not allowed (allowed: %s)", e.IP, strings.Join(e.Allowed, ", "))
}

func (e *IPRestrictedError) Unwrap() error { return errors.ErrUnauthorized }

// DomainRestrictedError is returned when the request origin is not in the token's allow-list.
// Domain is empty when neither Origin nor Referer was sent.
type DomainRestrictedError struct {
	Domain  string
	Allowed []string
}

func (e *DomainRestrictedError) Error() string {
	if e.Domain == "" {
		return fmt.Sprintf("request has no origin (allowed: %s)", strings.Join(e.Allowed, ", "))
	}
	return fmt.Sprintf("domain %q not allowed (allowed: %s)", e.Domain, strings.Join(e.Allowed, ", "))
}

func (e *DomainRestrictedError) Unwrap() error { return errors.ErrUnauthorized }

// MissingAbilityError is returned when the token lacks one or more required abilities.
type MissingAbilityError struct {
	Required []string
	Missing  []string
	Any      bool // set when any one of Required would have been enough
}

func (e *MissingAbilityError) Error() string {
	if e.Any {
		return fmt.Sprintf("token needs at least one of: %s", strings.Join(e.Required, ", "))
	}
	return fmt.Sprintf("token is missing abilities: %s", strings.Join(e.Missing, ", "))
}

func (e *MissingAbilityError) Unwrap() error { return errors.ErrForbidden }

// InvalidTokenTypeError is returned when the token type is not one of the accepted types.
type InvalidTokenTypeError struct {
	Required []string
	Actual   string
}

func (e *InvalidTokenTypeError) Error() string {
	return fmt.Sprintf("token type %q not accepted (required: %s)", e.Actual, strings.Join(e.Required, ", "))
}

func (e *InvalidTokenTypeError) Unwrap() error { return errors.ErrForbidden }

// InvalidEnvironmentError is returned when the token environment is not one of the accepted ones.
type InvalidEnvironmentError struct {
	Required []string
	Actual   string
}

func (e *InvalidEnvironmentError) Error() string {
	return fmt.Sprintf(
		"token environment %q not accepted (required: %s)",
		e.Actual,
		strings.Join(e.Required, ", "),
	)
}

func (e *InvalidEnvironmentError) Unwrap() error { return errors.ErrForbidden }

// RateLimitExceededError is returned when a token exceeds its per-minute request budget.
type RateLimitExceededError struct {
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit of %d requests per minute exceeded, retry after %s", e.Limit, e.RetryAfter)
}

func (e *RateLimitExceededError) Unwrap() error { return errors.ErrTooManyRequests }

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds, at least 1.
func (e *RateLimitExceededError) RetryAfterSeconds() int {
	seconds := int(math.Ceil(e.RetryAfter.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}

// InvalidConfigurationError is returned when a configuration value or strategy parameter is invalid.
type InvalidConfigurationError struct {
	Field      string
	Constraint string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Constraint)
}

func (e *InvalidConfigurationError) Unwrap() error { return errors.ErrInvalidInput }

// InvalidPrimaryKeyValueError is returned when a manually assigned id does not fit the id kind.
type InvalidPrimaryKeyValueError struct {
	Expected string
	Actual   string
}

func (e *InvalidPrimaryKeyValueError) Error() string {
	return fmt.Sprintf("invalid primary key value: expected %s, got %s", e.Expected, e.Actual)
}

func (e *InvalidPrimaryKeyValueError) Unwrap() error { return errors.ErrInvalidInput }
