package service

import (
	"context"
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid"

	"github.com/allisson/apikeys/internal/token/domain"
)

type sequentialIDGenerator struct {
	source SequenceSource
}

// NewSequentialIDGenerator creates an auto-increment generator backed by source.
func NewSequentialIDGenerator(source SequenceSource) IDGenerator {
	return &sequentialIDGenerator{source: source}
}

func (g *sequentialIDGenerator) Kind() domain.IDKind { return domain.IDKindSequential }

func (g *sequentialIDGenerator) NewID(ctx context.Context) (domain.ID, error) {
	n, err := g.source.NextSequentialID(ctx)
	if err != nil {
		return domain.ID{}, err
	}
	return domain.NewID(domain.IDKindSequential, n)
}

type uuidIDGenerator struct{}

// NewUUIDIDGenerator creates a generator of time-ordered UUIDv7 identifiers.
func NewUUIDIDGenerator() IDGenerator {
	return &uuidIDGenerator{}
}

func (g *uuidIDGenerator) Kind() domain.IDKind { return domain.IDKindUUID }

func (g *uuidIDGenerator) NewID(_ context.Context) (domain.ID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return domain.ID{}, err
	}
	return domain.NewID(domain.IDKindUUID, id)
}

type ulidIDGenerator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewULIDIDGenerator creates a generator of ULIDs that are strictly increasing within
// the same millisecond.
func NewULIDIDGenerator() IDGenerator {
	return &ulidIDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

func (g *ulidIDGenerator) Kind() domain.IDKind { return domain.IDKindULID }

func (g *ulidIDGenerator) NewID(_ context.Context) (domain.ID, error) {
	// Monotonic entropy is not safe for concurrent use.
	g.mu.Lock()
	id, err := ulid.New(ulid.Timestamp(g.now()), g.entropy)
	g.mu.Unlock()
	if err != nil {
		return domain.ID{}, err
	}
	return domain.NewID(domain.IDKindULID, id)
}

// NewIDGenerator returns the generator for kind. Sequential generators draw from
// sequence, which must be set for that kind.
func NewIDGenerator(kind domain.IDKind, sequence SequenceSource) (IDGenerator, error) {
	switch kind {
	case domain.IDKindSequential:
		if sequence == nil {
			return nil, &domain.InvalidConfigurationError{
				Field:      "id_strategy",
				Constraint: "sequential ids require a storage backed sequence",
			}
		}
		return NewSequentialIDGenerator(sequence), nil
	case domain.IDKindUUID:
		return NewUUIDIDGenerator(), nil
	case domain.IDKindULID:
		return NewULIDIDGenerator(), nil
	default:
		return nil, &domain.InvalidConfigurationError{
			Field:      "id_strategy",
			Constraint: "must be one of sequential, uuid, ulid",
		}
	}
}
