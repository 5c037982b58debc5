package usecase

import (
	"context"
	"maps"
	"slices"
	"time"

	validation "github.com/jellydator/validation"

	"github.com/allisson/apikeys/internal/config"
	"github.com/allisson/apikeys/internal/database"
	apperrors "github.com/allisson/apikeys/internal/errors"
	"github.com/allisson/apikeys/internal/registry"
	"github.com/allisson/apikeys/internal/token/audit"
	"github.com/allisson/apikeys/internal/token/domain"
	"github.com/allisson/apikeys/internal/token/revocation"
	"github.com/allisson/apikeys/internal/token/rotation"
	"github.com/allisson/apikeys/internal/token/service"
	appValidation "github.com/allisson/apikeys/internal/validation"
)

// Strategies holds the registries the lifecycle operations resolve names against.
type Strategies struct {
	Revocation *registry.Registry[revocation.Strategy]
	Rotation   *registry.Registry[rotation.Strategy]
	TokenTypes *registry.Registry[domain.TokenType]
}

// TokenUseCaseOption configures the token use case.
type TokenUseCaseOption func(*tokenUseCase)

// WithClock overrides the time source.
func WithClock(now func() time.Time) TokenUseCaseOption {
	return func(t *tokenUseCase) {
		t.now = now
	}
}

// tokenUseCase implements TokenUseCase.
type tokenUseCase struct {
	config     *config.Config
	txManager  database.TxManager
	tokenRepo  TokenRepository
	groupRepo  GroupRepository
	codec      *service.Codec
	idGen      service.IDGenerator
	sink       audit.Sink
	strategies Strategies
	now        func() time.Time
}

// Issue validates input, generates the plaintext and persists the token hash. Abilities
// default to the token type defaults when input.Abilities is nil.
func (t *tokenUseCase) Issue(
	ctx context.Context,
	input *domain.IssueTokenInput,
) (*domain.NewlyIssuedToken, error) {
	var issued *domain.NewlyIssuedToken
	err := t.txManager.WithTx(ctx, func(ctx context.Context) error {
		var err error
		issued, err = t.issue(ctx, input, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return issued, nil
}

// CreateGroup creates an empty token group.
func (t *tokenUseCase) CreateGroup(
	ctx context.Context,
	name string,
	owner domain.Owner,
) (*domain.TokenGroup, error) {
	if err := validation.Validate(name, validation.Required, appValidation.NotBlank, validation.Length(1, 255)); err != nil {
		return nil, appValidation.WrapValidationError(apperrors.Wrap(err, "name"))
	}

	id, err := t.idGen.NewID(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to generate group id")
	}

	group := &domain.TokenGroup{
		ID:        id,
		Name:      name,
		Owner:     owner,
		CreatedAt: t.now().UTC(),
	}
	if err := t.groupRepo.CreateGroup(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

// IssueGroup creates a group and issues every input into it within one transaction.
// Inputs without an owner inherit the group owner.
func (t *tokenUseCase) IssueGroup(
	ctx context.Context,
	name string,
	owner domain.Owner,
	inputs []*domain.IssueTokenInput,
) (*domain.TokenGroup, []*domain.NewlyIssuedToken, error) {
	var group *domain.TokenGroup
	var issued []*domain.NewlyIssuedToken

	err := t.txManager.WithTx(ctx, func(ctx context.Context) error {
		var err error
		group, err = t.CreateGroup(ctx, name, owner)
		if err != nil {
			return err
		}

		issued = make([]*domain.NewlyIssuedToken, 0, len(inputs))
		for _, input := range inputs {
			memberInput := *input
			groupID := group.ID
			memberInput.GroupID = &groupID
			if memberInput.Owner.IsZero() {
				memberInput.Owner = owner
			}

			token, err := t.issue(ctx, &memberInput, nil)
			if err != nil {
				return err
			}
			issued = append(issued, token)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return group, issued, nil
}

// Derive issues a child of parentID. The child inherits the parent's owner, type and
// environment when the input leaves them empty, and its abilities default to the
// parent's. Requesting an ability the parent lacks yields MissingAbilityError.
func (t *tokenUseCase) Derive(
	ctx context.Context,
	parentID domain.ID,
	input *domain.IssueTokenInput,
) (*domain.NewlyIssuedToken, error) {
	var issued *domain.NewlyIssuedToken

	err := t.txManager.WithTx(ctx, func(ctx context.Context) error {
		parent, err := t.tokenRepo.FindByID(ctx, parentID)
		if err != nil {
			return err
		}

		now := t.now()
		if parent.IsRevoked(now) {
			return &domain.TokenRevokedError{RevokedAt: *parent.RevokedAt}
		}
		if parent.IsExpired(now, t.config.TokenExpiration) {
			return &domain.TokenExpiredError{ExpiresAt: *parent.EffectiveExpiry(t.config.TokenExpiration)}
		}

		childInput := *input
		childInput.ParentID = &parent.ID
		if childInput.Owner.IsZero() {
			childInput.Owner = parent.Owner
		}
		if childInput.Type == "" {
			childInput.Type = parent.Type
		}
		if childInput.Environment == "" {
			childInput.Environment = parent.Environment
		}
		if childInput.Abilities == nil {
			childInput.Abilities = slices.Clone(parent.Abilities)
		}
		if err := domain.CheckAbilities(parent, childInput.Abilities...); err != nil {
			return err
		}

		issued, err = t.issue(ctx, &childInput, map[string]any{"parent_token_id": parent.ID.String()})
		if err != nil {
			return err
		}

		return t.sink.Log(ctx, parent, domain.EventDerived, map[string]any{
			"child_token_id": issued.Token.ID.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	return issued, nil
}

// Revoke applies the revocation strategy inside a transaction and emits a revoked event
// for every affected token.
func (t *tokenUseCase) Revoke(ctx context.Context, tokenID domain.ID, strategyName string) ([]domain.ID, error) {
	strategy, err := t.strategies.Revocation.Resolve(strategyName)
	if err != nil {
		return nil, err
	}

	var ids []domain.ID
	err = t.txManager.WithTx(ctx, func(ctx context.Context) error {
		token, err := t.tokenRepo.FindByID(ctx, tokenID)
		if err != nil {
			return err
		}

		affected, err := strategy.AffectedTokens(ctx, token)
		if err != nil {
			return err
		}
		if err := strategy.Revoke(ctx, token); err != nil {
			return err
		}

		metadata := map[string]any{"strategy": strategy.Name()}
		if token.RevokedAt != nil {
			metadata["revoked_at"] = token.RevokedAt.UTC().Format(time.RFC3339)
		}

		ids = make([]domain.ID, 0, len(affected))
		for _, a := range affected {
			if a.ID == token.ID {
				a = token
			}
			if err := t.sink.Log(ctx, a, domain.EventRevoked, maps.Clone(metadata)); err != nil {
				return err
			}
			ids = append(ids, a.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// PreviewRevocation returns the tokens the strategy would revoke.
func (t *tokenUseCase) PreviewRevocation(
	ctx context.Context,
	tokenID domain.ID,
	strategyName string,
) ([]*domain.Token, error) {
	strategy, err := t.strategies.Revocation.Resolve(strategyName)
	if err != nil {
		return nil, err
	}

	token, err := t.tokenRepo.FindByID(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	return strategy.AffectedTokens(ctx, token)
}

// Rotate issues a replacement carrying the old token's attributes, then applies the
// rotation strategy to the old token. A revoked token cannot be rotated.
func (t *tokenUseCase) Rotate(
	ctx context.Context,
	tokenID domain.ID,
	strategyName string,
) (*domain.NewlyIssuedToken, error) {
	strategy, err := t.strategies.Rotation.Resolve(strategyName)
	if err != nil {
		return nil, err
	}

	var issued *domain.NewlyIssuedToken
	err = t.txManager.WithTx(ctx, func(ctx context.Context) error {
		old, err := t.tokenRepo.FindByID(ctx, tokenID)
		if err != nil {
			return err
		}
		if old.IsRevoked(t.now()) {
			return &domain.TokenRevokedError{RevokedAt: *old.RevokedAt}
		}

		issued, err = t.issue(ctx, replacementInput(old), map[string]any{"rotated_from": old.ID.String()})
		if err != nil {
			return err
		}

		if err := strategy.Rotate(ctx, old, issued.Token); err != nil {
			return err
		}

		metadata := map[string]any{
			"new_token_id": issued.Token.ID.String(),
			"strategy":     strategy.Name(),
		}
		if minutes := strategy.GracePeriodMinutes(); minutes != nil {
			metadata["grace_period_minutes"] = *minutes
		} else {
			metadata["grace_period_minutes"] = nil
		}
		return t.sink.Log(ctx, old, domain.EventRotated, metadata)
	})
	if err != nil {
		return nil, err
	}
	return issued, nil
}

// IsRotatedTokenValid evaluates the strategy's old token validity at call time.
func (t *tokenUseCase) IsRotatedTokenValid(
	ctx context.Context,
	tokenID domain.ID,
	strategyName string,
) (bool, error) {
	strategy, err := t.strategies.Rotation.Resolve(strategyName)
	if err != nil {
		return false, err
	}

	token, err := t.tokenRepo.FindByID(ctx, tokenID)
	if err != nil {
		return false, err
	}
	return strategy.IsOldTokenValid(token), nil
}

// issue validates, builds and persists a token and emits the created event.
func (t *tokenUseCase) issue(
	ctx context.Context,
	input *domain.IssueTokenInput,
	auditMetadata map[string]any,
) (*domain.NewlyIssuedToken, error) {
	now := t.now()

	if err := t.validateIssueInput(input, now); err != nil {
		return nil, err
	}

	if input.GroupID != nil {
		if _, err := t.groupRepo.FindGroupByID(ctx, *input.GroupID); err != nil {
			return nil, err
		}
	}

	tokenType, err := t.strategies.TokenTypes.Get(input.Type)
	if err != nil {
		return nil, err
	}
	abilities := input.Abilities
	if abilities == nil {
		abilities = tokenType.DefaultAbilities
	}

	id, err := t.idGen.NewID(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to generate token id")
	}

	plainText, err := t.codec.Generate(input.Type, input.Environment)
	if err != nil {
		return nil, err
	}

	token := &domain.Token{
		ID:                 id,
		Owner:              input.Owner,
		Type:               input.Type,
		Environment:        input.Environment,
		Name:               input.Name,
		Prefix:             input.Type,
		TokenHash:          t.codec.Hash(plainText),
		Abilities:          slices.Clone(abilities),
		Metadata:           maps.Clone(input.Metadata),
		AllowedIPs:         slices.Clone(input.AllowedIPs),
		AllowedDomains:     slices.Clone(input.AllowedDomains),
		RateLimitPerMinute: input.RateLimitPerMinute,
		ExpiresAt:          input.ExpiresAt,
		GroupID:            input.GroupID,
		ParentID:           input.ParentID,
		CreatedAt:          now.UTC(),
		UpdatedAt:          now.UTC(),
	}
	if token.Abilities == nil {
		token.Abilities = []string{}
	}

	if err := t.tokenRepo.Create(ctx, token); err != nil {
		return nil, err
	}

	metadata := map[string]any{
		"token_type":  token.Type,
		"environment": token.Environment,
	}
	maps.Copy(metadata, auditMetadata)
	if err := t.sink.Log(ctx, token, domain.EventCreated, metadata); err != nil {
		return nil, err
	}

	return &domain.NewlyIssuedToken{Token: token, PlainText: plainText}, nil
}

func (t *tokenUseCase) validateIssueInput(input *domain.IssueTokenInput, now time.Time) error {
	environments := make([]any, 0, len(t.config.TokenEnvironments))
	for _, env := range t.config.TokenEnvironments {
		environments = append(environments, env)
	}

	err := validation.ValidateStruct(input,
		validation.Field(&input.Name,
			validation.Required,
			appValidation.NotBlank,
			validation.Length(1, 255),
		),
		validation.Field(&input.Type,
			validation.Required,
			appValidation.PlaintextSegment,
			validation.By(func(value any) error {
				if !t.strategies.TokenTypes.Has(value.(string)) {
					return validation.NewError("validation_token_type", "must be a registered token type")
				}
				return nil
			}),
		),
		validation.Field(&input.Environment,
			validation.Required,
			appValidation.PlaintextSegment,
			validation.In(environments...).Error("must be an allowed environment"),
		),
		validation.Field(&input.Abilities, validation.Each(validation.Required, appValidation.NoWhitespace)),
		validation.Field(&input.AllowedIPs, validation.Each(validation.Required, appValidation.IPOrCIDR)),
		validation.Field(&input.AllowedDomains, validation.Each(validation.Required, appValidation.Host)),
		validation.Field(&input.RateLimitPerMinute, validation.By(func(value any) error {
			if limit, _ := value.(*int); limit != nil && *limit <= 0 {
				return validation.NewError("validation_rate_limit", "must be greater than 0")
			}
			return nil
		})),
		validation.Field(&input.ExpiresAt, validation.By(func(value any) error {
			if expiresAt, _ := value.(*time.Time); expiresAt != nil && !expiresAt.After(now) {
				return validation.NewError("validation_expires_at", "must be in the future")
			}
			return nil
		})),
	)
	return appValidation.WrapValidationError(err)
}

// replacementInput copies the attributes a rotated token carries over.
func replacementInput(old *domain.Token) *domain.IssueTokenInput {
	abilities := slices.Clone(old.Abilities)
	if abilities == nil {
		abilities = []string{}
	}
	return &domain.IssueTokenInput{
		Name:               old.Name,
		Type:               old.Type,
		Environment:        old.Environment,
		Owner:              old.Owner,
		Abilities:          abilities,
		Metadata:           maps.Clone(old.Metadata),
		AllowedIPs:         slices.Clone(old.AllowedIPs),
		AllowedDomains:     slices.Clone(old.AllowedDomains),
		RateLimitPerMinute: old.RateLimitPerMinute,
		ExpiresAt:          old.ExpiresAt,
		GroupID:            old.GroupID,
		ParentID:           old.ParentID,
	}
}

// NewTokenUseCase creates a new TokenUseCase with the provided dependencies.
func NewTokenUseCase(
	cfg *config.Config,
	txManager database.TxManager,
	tokenRepo TokenRepository,
	groupRepo GroupRepository,
	codec *service.Codec,
	idGen service.IDGenerator,
	sink audit.Sink,
	strategies Strategies,
	opts ...TokenUseCaseOption,
) TokenUseCase {
	t := &tokenUseCase{
		config:     cfg,
		txManager:  txManager,
		tokenRepo:  tokenRepo,
		groupRepo:  groupRepo,
		codec:      codec,
		idGen:      idGen,
		sink:       sink,
		strategies: strategies,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}
