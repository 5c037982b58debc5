// Package service provides the token codec and its pluggable building blocks:
// secret generators, digest hashers and identifier generators.
package service

import (
	"context"

	"github.com/allisson/apikeys/internal/token/domain"
)

// SecretGenerator produces the random secret segment of a plaintext token.
type SecretGenerator interface {
	// Name is the registry key of the generator.
	Name() string

	// Generate creates a new cryptographically secure secret.
	Generate() (string, error)

	// Validate checks that secret has the shape this generator produces.
	Validate(secret string) error
}

// Hasher computes the persisted digest of a plaintext token.
// Implementations must be fast and deterministic, and Verify must run in constant time.
type Hasher interface {
	Name() string
	Hash(plaintext string) string
	Verify(plaintext, digest string) bool
}

// IDGenerator assigns identifiers to new tokens and groups.
type IDGenerator interface {
	Kind() domain.IDKind
	NewID(ctx context.Context) (domain.ID, error)
}

// SequenceSource hands out the shared sequential id space of tokens and groups.
// SQL backends draw from the database so that every process sharing it gets distinct
// values; values are never reused, though rolled back transactions leave gaps.
type SequenceSource interface {
	NextSequentialID(ctx context.Context) (int64, error)
}
