package service

import (
	"errors"

	"github.com/google/uuid"
)

type uuidGenerator struct{}

// NewUUIDGenerator creates a secret generator producing random UUIDv4 strings.
func NewUUIDGenerator() SecretGenerator {
	return &uuidGenerator{}
}

func (g *uuidGenerator) Name() string { return GeneratorUUID }

// Generate creates a new UUIDv4 secret.
func (g *uuidGenerator) Generate() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Validate checks if the secret is a valid UUID.
func (g *uuidGenerator) Validate(secret string) error {
	if _, err := uuid.Parse(secret); err != nil {
		return errors.New("invalid UUID format")
	}
	return nil
}
