package app

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/apikeys/internal/config"
	"github.com/allisson/apikeys/internal/registry"
	"github.com/allisson/apikeys/internal/token/domain"
	"github.com/allisson/apikeys/internal/token/repository/memory"
	"github.com/allisson/apikeys/internal/token/revocation"
)

func newTestRegistries(t *testing.T, mutate func(cfg *config.Config)) (*Registries, error) {
	t.Helper()
	cfg := memoryConfig()
	if mutate != nil {
		mutate(cfg)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRegistries(cfg, memory.NewTokenRepository(), memory.NewAuditLogRepository(), logger)
}

func TestNewRegistries(t *testing.T) {
	t.Run("Success_BuiltIns", func(t *testing.T) {
		r, err := newTestRegistries(t, nil)
		require.NoError(t, err)

		assert.Equal(t, []string{"base58", "checksum", "uuid"}, r.Generators.All())
		assert.Equal(t, []string{"sha256", "sha512", "blake2b"}, r.Hashers.All())
		assert.Equal(
			t,
			[]string{"none", "cascade", "partial_cascade", "cascade_descendants", "timed"},
			r.Revocation.All(),
		)
		assert.Equal(t, []string{"immediate", "grace_period", "dual_valid"}, r.Rotation.All())
		assert.Equal(t, []string{"null", "log", "database"}, r.AuditDrivers.All())
		assert.Equal(t, []string{"sk", "pk", "rk"}, r.TokenTypes.All())
	})

	t.Run("Success_TokenTypeDefaults", func(t *testing.T) {
		r, err := newTestRegistries(t, nil)
		require.NoError(t, err)

		secret, err := r.TokenTypes.Get(TokenTypeSecret)
		require.NoError(t, err)
		assert.Equal(t, []string{domain.WildcardAbility}, secret.DefaultAbilities)

		restricted, err := r.TokenTypes.Get(TokenTypeRestricted)
		require.NoError(t, err)
		assert.Empty(t, restricted.DefaultAbilities)
	})

	t.Run("Success_ConfiguredDefaults", func(t *testing.T) {
		r, err := newTestRegistries(t, func(cfg *config.Config) {
			cfg.TokenGenerator = "checksum"
			cfg.TokenHasher = "blake2b"
			cfg.RevocationStrategy = "cascade"
			cfg.RotationStrategy = "grace_period"
			cfg.AuditDriver = "null"
		})
		require.NoError(t, err)

		assert.Equal(t, "checksum", r.Generators.DefaultName())
		assert.Equal(t, "blake2b", r.Hashers.DefaultName())
		assert.Equal(t, "cascade", r.Revocation.DefaultName())
		assert.Equal(t, "grace_period", r.Rotation.DefaultName())
		assert.Equal(t, "null", r.AuditDrivers.DefaultName())
	})

	t.Run("Success_EmptyNameKeepsFirstRegistered", func(t *testing.T) {
		r, err := newTestRegistries(t, func(cfg *config.Config) {
			cfg.RotationStrategy = ""
		})
		require.NoError(t, err)

		assert.Equal(t, "immediate", r.Rotation.DefaultName())
	})

	t.Run("Success_StrategiesAndCodec", func(t *testing.T) {
		r, err := newTestRegistries(t, nil)
		require.NoError(t, err)

		strategies := r.Strategies()
		assert.Same(t, r.Revocation, strategies.Revocation)
		assert.Same(t, r.Rotation, strategies.Rotation)
		assert.Same(t, r.TokenTypes, strategies.TokenTypes)

		codec, err := r.Codec()
		require.NoError(t, err)
		assert.Equal(t, "base58", codec.Generator().Name())
		assert.Equal(t, "sha256", codec.Hasher().Name())
		plainText, err := codec.Generate(TokenTypeSecret, "live")
		require.NoError(t, err)
		assert.Contains(t, plainText, "sk_live_")
	})

	t.Run("Success_TimedDelayFromConfig", func(t *testing.T) {
		r, err := newTestRegistries(t, func(cfg *config.Config) {
			cfg.RevocationDelayMinutes = 15
		})
		require.NoError(t, err)

		strategy, err := r.Revocation.Get(revocation.StrategyTimed)
		require.NoError(t, err)
		timed, ok := strategy.(*revocation.Timed)
		require.True(t, ok)
		assert.Equal(t, 15*time.Minute, timed.Delay())
	})

	t.Run("Error_UnknownName", func(t *testing.T) {
		_, err := newTestRegistries(t, func(cfg *config.Config) {
			cfg.RevocationStrategy = "explode"
		})

		var notRegistered *registry.NotRegisteredError
		require.True(t, errors.As(err, &notRegistered))
		assert.Equal(t, "revocation strategy", notRegistered.Kind)
		assert.Equal(t, "explode", notRegistered.Name)
	})

	t.Run("Error_InvalidTimedDelay", func(t *testing.T) {
		_, err := newTestRegistries(t, func(cfg *config.Config) {
			cfg.RevocationDelayMinutes = 0
		})

		var invalid *domain.InvalidConfigurationError
		assert.True(t, errors.As(err, &invalid))
	})

	t.Run("Error_InvalidGraceMinutes", func(t *testing.T) {
		_, err := newTestRegistries(t, func(cfg *config.Config) {
			cfg.RotationGraceMinutes = -1
		})

		var invalid *domain.InvalidConfigurationError
		assert.True(t, errors.As(err, &invalid))
	})
}
