package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/allisson/apikeys/internal/errors"
	"github.com/allisson/apikeys/internal/token/audit"
	"github.com/allisson/apikeys/internal/token/domain"
	"github.com/allisson/apikeys/internal/token/service"
)

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithStatefulSource appends a source consulted before any bearer credential.
func WithStatefulSource(source StatefulSource) GuardOption {
	return func(g *Guard) {
		g.statefulSources = append(g.statefulSources, source)
	}
}

// WithCredentialExtractor overrides how the raw credential is read from the request.
func WithCredentialExtractor(extractor CredentialExtractor) GuardOption {
	return func(g *Guard) {
		g.extract = extractor
	}
}

// WithTokenExpiration sets the global lifetime applied to tokens without an explicit
// expiry. Zero disables it.
func WithTokenExpiration(ttl time.Duration) GuardOption {
	return func(g *Guard) {
		g.ttl = ttl
	}
}

// WithGuardClock overrides the time source.
func WithGuardClock(now func() time.Time) GuardOption {
	return func(g *Guard) {
		g.now = now
	}
}

// Guard authenticates requests presenting opaque bearer tokens.
//
// The pipeline locates a credential (stateful sources first, then the extractor),
// verifies it against storage and checks, in order, revocation, expiry, the IP
// allow-list and the domain allow-list. Accepted requests update last_used_at and emit an
// authenticated audit event; rejections with a known token emit the matching event.
type Guard struct {
	idKind          domain.IDKind
	tokenRepo       TokenRepository
	codec           *service.Codec
	sink            audit.Sink
	logger          *slog.Logger
	statefulSources []StatefulSource
	extract         CredentialExtractor
	ttl             time.Duration
	now             func() time.Time
}

// NewGuard creates a Guard. idKind is used to parse the {id}|{plaintext} lookup form.
func NewGuard(
	idKind domain.IDKind,
	tokenRepo TokenRepository,
	codec *service.Codec,
	sink audit.Sink,
	logger *slog.Logger,
	opts ...GuardOption,
) *Guard {
	g := &Guard{
		idKind:    idKind,
		tokenRepo: tokenRepo,
		codec:     codec,
		sink:      sink,
		logger:    logger,
		extract:   func(req Request) string { return req.BearerCredential() },
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authenticate runs the guard pipeline for req.
func (g *Guard) Authenticate(ctx context.Context, req Request) (*domain.Authentication, error) {
	for _, source := range g.statefulSources {
		if owner, ok := source.Identity(ctx, req); ok {
			return &domain.Authentication{Identity: owner, Token: domain.TransientToken(), Stateful: true}, nil
		}
	}

	raw := strings.TrimSpace(g.extract(req))
	if raw == "" {
		g.logger.Debug("authentication rejected", slog.String("reason", "missing credential"))
		return nil, domain.ErrMissingCredential
	}

	token, err := g.verify(ctx, req, raw)
	if err != nil {
		return nil, err
	}

	now := g.now()

	if token.IsRevoked(now) {
		return nil, g.reject(ctx, req, token, domain.EventRevoked, &domain.TokenRevokedError{RevokedAt: *token.RevokedAt})
	}

	if token.IsExpired(now, g.ttl) {
		expiresAt := *token.EffectiveExpiry(g.ttl)
		return nil, g.reject(ctx, req, token, domain.EventExpired, &domain.TokenExpiredError{ExpiresAt: expiresAt})
	}

	if ip := req.RemoteAddr(); !token.IsIPAllowed(ip) {
		return nil, g.reject(ctx, req, token, domain.EventIPBlocked, &domain.IPRestrictedError{
			IP:      ip,
			Allowed: token.AllowedIPs,
		})
	}

	if token.HasDomainRestrictions() {
		if host := requestHost(req); !token.IsDomainAllowed(host) {
			return nil, g.reject(ctx, req, token, domain.EventDomainBlocked, &domain.DomainRestrictedError{
				Domain:  host,
				Allowed: token.AllowedDomains,
			})
		}
	}

	fields := domain.TokenFields{LastUsedAt: &now}
	if err := g.tokenRepo.Update(ctx, token, fields); err != nil {
		return nil, apperrors.Wrap(err, "failed to record token usage")
	}
	token.ApplyFields(fields, now)

	if err := g.sink.Log(ctx, token, domain.EventAuthenticated, requestMetadata(req)); err != nil {
		return nil, apperrors.Wrap(err, "failed to audit authentication")
	}

	return &domain.Authentication{Identity: token.Owner, Token: token}, nil
}

// verify resolves raw to a stored token. Malformed and unmatched credentials both yield
// ErrCredentialNotFound.
func (g *Guard) verify(ctx context.Context, req Request, raw string) (*domain.Token, error) {
	if idPart, plaintext, ok := strings.Cut(raw, domain.LookupSeparator); ok {
		id, err := domain.ParseID(g.idKind, idPart)
		if err != nil {
			g.logger.Debug("authentication rejected", slog.String("reason", "malformed lookup id"))
			return nil, domain.ErrCredentialNotFound
		}

		token, err := g.tokenRepo.FindByID(ctx, id)
		if err != nil {
			return nil, g.notFound(err)
		}

		if !g.codec.Verify(plaintext, token.TokenHash) {
			return nil, g.reject(ctx, req, token, domain.EventFailed, domain.ErrCredentialNotFound)
		}
		return token, nil
	}

	if g.codec.Parse(raw) == nil {
		g.logger.Debug("authentication rejected", slog.String("reason", "malformed credential"))
		return nil, domain.ErrCredentialNotFound
	}

	token, err := g.tokenRepo.FindByHash(ctx, g.codec.Hash(raw))
	if err != nil {
		return nil, g.notFound(err)
	}
	return token, nil
}

func (g *Guard) notFound(err error) error {
	if errors.Is(err, domain.ErrTokenNotFound) {
		g.logger.Debug("authentication rejected", slog.String("reason", "token not found"))
		return domain.ErrCredentialNotFound
	}
	return apperrors.Wrap(err, "failed to look up token")
}

// reject emits the audit event for a rejection and returns cause. An audit failure is
// logged and does not replace cause.
func (g *Guard) reject(
	ctx context.Context,
	req Request,
	token *domain.Token,
	kind domain.EventKind,
	cause error,
) error {
	g.logger.Debug(
		"authentication rejected",
		slog.String("reason", string(kind)),
		slog.String("token_id", token.ID.String()),
		slog.Any("error", cause),
	)

	if err := g.sink.Log(ctx, token, kind, requestMetadata(req)); err != nil {
		g.logger.Error(
			"failed to audit authentication rejection",
			slog.String("event", string(kind)),
			slog.String("token_id", token.ID.String()),
			slog.Any("error", err),
		)
	}
	return cause
}

// requestHost returns host[:port] of the Origin header, falling back to Referer.
func requestHost(req Request) string {
	for _, name := range []string{"Origin", "Referer"} {
		if value := strings.TrimSpace(req.Header(name)); value != "" {
			return stripToHost(value)
		}
	}
	return ""
}

func stripToHost(value string) string {
	if i := strings.Index(value, "://"); i >= 0 {
		value = value[i+3:]
	}
	if i := strings.IndexAny(value, "/?#"); i >= 0 {
		value = value[:i]
	}
	if i := strings.LastIndex(value, "@"); i >= 0 {
		value = value[i+1:]
	}
	return value
}

func requestMetadata(req Request) map[string]any {
	metadata := map[string]any{
		domain.AuditKeyIPAddress: req.RemoteAddr(),
	}
	if ua := req.Header("User-Agent"); ua != "" {
		metadata[domain.AuditKeyUserAgent] = ua
	}
	if r, ok := req.(RequestIDer); ok {
		if id := r.RequestID(); id != "" {
			metadata[domain.AuditKeyRequestID] = id
		}
	}
	return metadata
}

var _ Authenticator = (*Guard)(nil)
