package service

import (
	"strings"

	apperrors "github.com/allisson/apikeys/internal/errors"
	"github.com/allisson/apikeys/internal/token/domain"
)

// Codec generates, parses, hashes and verifies plaintext tokens of the form
// {prefix}_{environment}_{secret}.
type Codec struct {
	generator SecretGenerator
	hasher    Hasher
}

// NewCodec creates a codec from a secret generator and a digest hasher.
func NewCodec(generator SecretGenerator, hasher Hasher) *Codec {
	return &Codec{generator: generator, hasher: hasher}
}

// Generator returns the configured secret generator.
func (c *Codec) Generator() SecretGenerator { return c.generator }

// Hasher returns the configured digest hasher.
func (c *Codec) Hasher() Hasher { return c.hasher }

// Generate creates a fresh plaintext. Prefix and environment must be non-empty and
// must not contain the segment delimiter.
func (c *Codec) Generate(prefix, environment string) (string, error) {
	if !validSegment(prefix) || !validSegment(environment) {
		return "", domain.ErrInvalidPlaintextSegment
	}

	secret, err := c.generator.Generate()
	if err != nil {
		return "", apperrors.Wrap(err, "failed to generate secret")
	}
	if err := c.generator.Validate(secret); err != nil {
		return "", apperrors.Wrap(domain.ErrInvalidSecret, err.Error())
	}

	return strings.Join([]string{prefix, environment, secret}, domain.SegmentDelimiter), nil
}

// Parse splits plaintext into its components. Returns nil when plaintext does not
// have exactly three non-empty segments or the secret fails generator validation.
func (c *Codec) Parse(plaintext string) *domain.TokenComponents {
	parts := strings.Split(plaintext, domain.SegmentDelimiter)
	if len(parts) != 3 {
		return nil
	}
	for _, part := range parts {
		if part == "" {
			return nil
		}
	}
	if err := c.generator.Validate(parts[2]); err != nil {
		return nil
	}

	return &domain.TokenComponents{
		Prefix:      parts[0],
		Environment: parts[1],
		Secret:      parts[2],
		Raw:         plaintext,
	}
}

// Hash returns the storage digest of plaintext.
func (c *Codec) Hash(plaintext string) string {
	return c.hasher.Hash(plaintext)
}

// Verify reports whether plaintext matches digest using constant-time comparison.
func (c *Codec) Verify(plaintext, digest string) bool {
	return c.hasher.Verify(plaintext, digest)
}

func validSegment(s string) bool {
	return s != "" && !strings.Contains(s, domain.SegmentDelimiter)
}
