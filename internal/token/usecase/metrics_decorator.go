package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/allisson/apikeys/internal/metrics"
	"github.com/allisson/apikeys/internal/token/domain"
)

func metricStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// tokenUseCaseWithMetrics decorates TokenUseCase with metrics instrumentation.
type tokenUseCaseWithMetrics struct {
	next    TokenUseCase
	metrics metrics.BusinessMetrics
}

// NewTokenUseCaseWithMetrics wraps a TokenUseCase with metrics recording.
func NewTokenUseCaseWithMetrics(useCase TokenUseCase, m metrics.BusinessMetrics) TokenUseCase {
	return &tokenUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (t *tokenUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := metricStatus(err)
	t.metrics.RecordOperation(ctx, operation, status)
	t.metrics.RecordDuration(ctx, operation, time.Since(start), status)
}

// Issue records metrics for token issuance.
func (t *tokenUseCaseWithMetrics) Issue(
	ctx context.Context,
	input *domain.IssueTokenInput,
) (*domain.NewlyIssuedToken, error) {
	start := time.Now()
	issued, err := t.next.Issue(ctx, input)
	t.record(ctx, "token_issue", start, err)
	return issued, err
}

// CreateGroup records metrics for group creation.
func (t *tokenUseCaseWithMetrics) CreateGroup(
	ctx context.Context,
	name string,
	owner domain.Owner,
) (*domain.TokenGroup, error) {
	start := time.Now()
	group, err := t.next.CreateGroup(ctx, name, owner)
	t.record(ctx, "group_create", start, err)
	return group, err
}

// IssueGroup records metrics for group issuance.
func (t *tokenUseCaseWithMetrics) IssueGroup(
	ctx context.Context,
	name string,
	owner domain.Owner,
	inputs []*domain.IssueTokenInput,
) (*domain.TokenGroup, []*domain.NewlyIssuedToken, error) {
	start := time.Now()
	group, issued, err := t.next.IssueGroup(ctx, name, owner, inputs)
	t.record(ctx, "group_issue", start, err)
	return group, issued, err
}

// Derive records metrics for child token issuance.
func (t *tokenUseCaseWithMetrics) Derive(
	ctx context.Context,
	parentID domain.ID,
	input *domain.IssueTokenInput,
) (*domain.NewlyIssuedToken, error) {
	start := time.Now()
	issued, err := t.next.Derive(ctx, parentID, input)
	t.record(ctx, "token_derive", start, err)
	return issued, err
}

// Revoke records metrics for token revocation.
func (t *tokenUseCaseWithMetrics) Revoke(
	ctx context.Context,
	tokenID domain.ID,
	strategyName string,
) ([]domain.ID, error) {
	start := time.Now()
	ids, err := t.next.Revoke(ctx, tokenID, strategyName)
	t.record(ctx, "token_revoke", start, err)
	return ids, err
}

// PreviewRevocation records metrics for revocation previews.
func (t *tokenUseCaseWithMetrics) PreviewRevocation(
	ctx context.Context,
	tokenID domain.ID,
	strategyName string,
) ([]*domain.Token, error) {
	start := time.Now()
	tokens, err := t.next.PreviewRevocation(ctx, tokenID, strategyName)
	t.record(ctx, "token_revoke_preview", start, err)
	return tokens, err
}

// Rotate records metrics for token rotation.
func (t *tokenUseCaseWithMetrics) Rotate(
	ctx context.Context,
	tokenID domain.ID,
	strategyName string,
) (*domain.NewlyIssuedToken, error) {
	start := time.Now()
	issued, err := t.next.Rotate(ctx, tokenID, strategyName)
	t.record(ctx, "token_rotate", start, err)
	return issued, err
}

// IsRotatedTokenValid records metrics for rotated token validity checks.
func (t *tokenUseCaseWithMetrics) IsRotatedTokenValid(
	ctx context.Context,
	tokenID domain.ID,
	strategyName string,
) (bool, error) {
	start := time.Now()
	valid, err := t.next.IsRotatedTokenValid(ctx, tokenID, strategyName)
	t.record(ctx, "token_rotation_check", start, err)
	return valid, err
}

// authenticatorWithMetrics decorates Authenticator with metrics instrumentation.
type authenticatorWithMetrics struct {
	next    Authenticator
	metrics metrics.BusinessMetrics
}

// NewAuthenticatorWithMetrics wraps an Authenticator with metrics recording.
func NewAuthenticatorWithMetrics(authenticator Authenticator, m metrics.BusinessMetrics) Authenticator {
	return &authenticatorWithMetrics{
		next:    authenticator,
		metrics: m,
	}
}

// Authenticate records metrics for authentication attempts.
func (a *authenticatorWithMetrics) Authenticate(ctx context.Context, req Request) (*domain.Authentication, error) {
	start := time.Now()
	authentication, err := a.next.Authenticate(ctx, req)

	status := metricStatus(err)
	a.metrics.RecordOperation(ctx, "authenticate", status)
	a.metrics.RecordDuration(ctx, "authenticate", time.Since(start), status)
	if err != nil {
		a.metrics.RecordAuthenticationFailure(ctx, failureReason(err))
	}

	return authentication, err
}

// failureReason maps a guard error to a low-cardinality metric label.
func failureReason(err error) string {
	var (
		revoked *domain.TokenRevokedError
		expired *domain.TokenExpiredError
		ip      *domain.IPRestrictedError
		origin  *domain.DomainRestrictedError
	)
	switch {
	case errors.Is(err, domain.ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, domain.ErrCredentialNotFound):
		return "not_found"
	case errors.As(err, &revoked):
		return "revoked"
	case errors.As(err, &expired):
		return "expired"
	case errors.As(err, &ip):
		return "ip_blocked"
	case errors.As(err, &origin):
		return "domain_blocked"
	default:
		return "error"
	}
}
