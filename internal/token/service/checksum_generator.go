package service

import (
	"crypto/rand"
	"errors"
	"fmt"
	"hash/crc32"
	"math/big"
)

const (
	alphanumericChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	checksumEntropyLength = 40
	checksumLength        = 8
	checksumSecretLength  = checksumEntropyLength + checksumLength
)

type checksumGenerator struct{}

// NewChecksumGenerator creates a generator of 40 alphanumeric characters followed by the
// 8-character CRC32 (IEEE) hex checksum of those characters. The checksum allows
// rejecting mistyped or forged secrets before a storage lookup.
func NewChecksumGenerator() SecretGenerator {
	return &checksumGenerator{}
}

func (g *checksumGenerator) Name() string { return GeneratorChecksum }

// Generate creates a new 48-character secret.
func (g *checksumGenerator) Generate() (string, error) {
	entropy := make([]byte, checksumEntropyLength)
	charsLen := big.NewInt(int64(len(alphanumericChars)))

	for i := range entropy {
		n, err := rand.Int(rand.Reader, charsLen)
		if err != nil {
			return "", fmt.Errorf("failed to generate random character: %w", err)
		}
		entropy[i] = alphanumericChars[n.Int64()]
	}

	return string(entropy) + checksum(string(entropy)), nil
}

// Validate checks the length and recomputes the checksum.
func (g *checksumGenerator) Validate(secret string) error {
	if len(secret) != checksumSecretLength {
		return fmt.Errorf("secret must be exactly %d characters", checksumSecretLength)
	}

	entropy, sum := secret[:checksumEntropyLength], secret[checksumEntropyLength:]
	if checksum(entropy) != sum {
		return errors.New("secret checksum mismatch")
	}
	return nil
}

func checksum(entropy string) string {
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE([]byte(entropy)))
}
