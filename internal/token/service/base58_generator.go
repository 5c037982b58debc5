package service

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// base58Alphabet is the Bitcoin alphabet without 0, O, I and l.
const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

const base58EntropyBytes = 32

type base58Generator struct{}

// NewBase58Generator creates a generator of 32-byte random secrets encoded with the
// visually unambiguous 58-symbol alphabet.
func NewBase58Generator() SecretGenerator {
	return &base58Generator{}
}

func (g *base58Generator) Name() string { return GeneratorBase58 }

// Generate reads 32 random bytes and encodes them as base58.
func (g *base58Generator) Generate() (string, error) {
	buf := make([]byte, base58EntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base58.Encode(buf), nil
}

// Validate checks that the secret is non-empty and uses only base58 symbols.
func (g *base58Generator) Validate(secret string) error {
	if secret == "" {
		return errors.New("secret cannot be empty")
	}
	for _, c := range secret {
		if !strings.ContainsRune(base58Alphabet, c) {
			return errors.New("secret must contain only base58 characters")
		}
	}
	return nil
}
