package app

import (
	"fmt"
	"log/slog"

	"github.com/allisson/apikeys/internal/config"
	"github.com/allisson/apikeys/internal/registry"
	"github.com/allisson/apikeys/internal/token/audit"
	"github.com/allisson/apikeys/internal/token/domain"
	"github.com/allisson/apikeys/internal/token/revocation"
	"github.com/allisson/apikeys/internal/token/rotation"
	"github.com/allisson/apikeys/internal/token/service"
	"github.com/allisson/apikeys/internal/token/usecase"
)

// Token type names of the built-in key families.
const (
	TokenTypeSecret      = "sk"
	TokenTypePublishable = "pk"
	TokenTypeRestricted  = "rk"
)

// Registries holds every named building block selectable through configuration.
// They are built once at startup and only read afterwards.
type Registries struct {
	Generators   *registry.Registry[service.SecretGenerator]
	Hashers      *registry.Registry[service.Hasher]
	Revocation   *registry.Registry[revocation.Strategy]
	Rotation     *registry.Registry[rotation.Strategy]
	AuditDrivers *registry.Registry[audit.Sink]
	TokenTypes   *registry.Registry[domain.TokenType]
}

// NewRegistries registers the built-in implementations and selects the configured
// defaults. An unknown configured name yields a registry.NotRegisteredError.
func NewRegistries(
	cfg *config.Config,
	tokenRepo usecase.TokenRepository,
	auditRepo audit.Repository,
	logger *slog.Logger,
) (*Registries, error) {
	r := &Registries{
		Generators:   registry.New[service.SecretGenerator]("secret generator"),
		Hashers:      registry.New[service.Hasher]("hasher"),
		Revocation:   registry.New[revocation.Strategy]("revocation strategy"),
		Rotation:     registry.New[rotation.Strategy]("rotation strategy"),
		AuditDrivers: registry.New[audit.Sink]("audit driver"),
		TokenTypes:   registry.New[domain.TokenType]("token type"),
	}

	for _, generator := range []service.SecretGenerator{
		service.NewBase58Generator(),
		service.NewChecksumGenerator(),
		service.NewUUIDGenerator(),
	} {
		r.Generators.Register(generator.Name(), generator)
	}

	for _, hasher := range []service.Hasher{
		service.NewSHA256Hasher(),
		service.NewSHA512Hasher(),
		service.NewBLAKE2bHasher(),
	} {
		r.Hashers.Register(hasher.Name(), hasher)
	}

	if err := r.registerRevocation(cfg, tokenRepo); err != nil {
		return nil, err
	}
	if err := r.registerRotation(cfg, tokenRepo); err != nil {
		return nil, err
	}

	r.AuditDrivers.Register(audit.DriverNull, audit.NewNoOpSink())
	r.AuditDrivers.Register(audit.DriverLog, audit.NewLoggerSink(logger))
	r.AuditDrivers.Register(audit.DriverDatabase, audit.NewRepositorySink(auditRepo))

	r.TokenTypes.Register(TokenTypeSecret, domain.TokenType{
		Name:             TokenTypeSecret,
		Description:      "Secret key with full account access",
		DefaultAbilities: []string{domain.WildcardAbility},
	})
	r.TokenTypes.Register(TokenTypePublishable, domain.TokenType{
		Name:             TokenTypePublishable,
		Description:      "Publishable key safe to embed in client code",
		DefaultAbilities: []string{"read"},
	})
	r.TokenTypes.Register(TokenTypeRestricted, domain.TokenType{
		Name:        TokenTypeRestricted,
		Description: "Restricted key granted only explicit abilities",
	})

	defaults := []struct {
		name       string
		setDefault func(string) error
	}{
		{cfg.TokenGenerator, r.Generators.SetDefault},
		{cfg.TokenHasher, r.Hashers.SetDefault},
		{cfg.RevocationStrategy, r.Revocation.SetDefault},
		{cfg.RotationStrategy, r.Rotation.SetDefault},
		{cfg.AuditDriver, r.AuditDrivers.SetDefault},
	}
	for _, d := range defaults {
		if d.name == "" {
			continue
		}
		if err := d.setDefault(d.name); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Strategies returns the registries consumed by the token use case.
func (r *Registries) Strategies() usecase.Strategies {
	return usecase.Strategies{
		Revocation: r.Revocation,
		Rotation:   r.Rotation,
		TokenTypes: r.TokenTypes,
	}
}

// Codec builds a codec from the default generator and hasher.
func (r *Registries) Codec() (*service.Codec, error) {
	generator, err := r.Generators.Default()
	if err != nil {
		return nil, err
	}
	hasher, err := r.Hashers.Default()
	if err != nil {
		return nil, err
	}
	return service.NewCodec(generator, hasher), nil
}

func (r *Registries) registerRevocation(cfg *config.Config, repo revocation.Repository) error {
	r.Revocation.Register(revocation.StrategyNone, revocation.NewNone(repo))
	r.Revocation.Register(revocation.StrategyCascade, revocation.NewCascade(repo))
	r.Revocation.Register(
		revocation.StrategyPartialCascade,
		revocation.NewPartialCascade(repo, cfg.RevocationPartialPrefixes),
	)
	r.Revocation.Register(
		revocation.StrategyCascadeDescendants,
		revocation.NewCascadeDescendants(repo, domain.HierarchyParent),
	)

	timed, err := revocation.NewTimed(repo, cfg.RevocationDelayMinutes)
	if err != nil {
		return fmt.Errorf("failed to create timed revocation strategy: %w", err)
	}
	r.Revocation.Register(revocation.StrategyTimed, timed)
	return nil
}

func (r *Registries) registerRotation(cfg *config.Config, repo rotation.Repository) error {
	r.Rotation.Register(rotation.StrategyImmediate, rotation.NewImmediate(repo))

	grace, err := rotation.NewGracePeriod(repo, cfg.RotationGraceMinutes)
	if err != nil {
		return fmt.Errorf("failed to create grace period rotation strategy: %w", err)
	}
	r.Rotation.Register(rotation.StrategyGracePeriod, grace)
	r.Rotation.Register(rotation.StrategyDualValid, rotation.NewDualValid())
	return nil
}
