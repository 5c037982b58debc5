package http

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/allisson/apikeys/internal/httputil"
	"github.com/allisson/apikeys/internal/token/audit"
	"github.com/allisson/apikeys/internal/token/domain"
)

const (
	defaultCleanupInterval = 5 * time.Minute
	defaultIdleTimeout     = time.Hour
)

// RateLimitOption configures TokenRateLimitMiddleware.
type RateLimitOption func(*tokenRateLimiterStore)

// WithRateLimitClock overrides the time source used for limiter decisions.
func WithRateLimitClock(now func() time.Time) RateLimitOption {
	return func(s *tokenRateLimiterStore) {
		s.now = now
	}
}

// WithStaleLimiterCleanup sets how often idle limiters are swept and how long a
// limiter may stay unused before it is removed.
func WithStaleLimiterCleanup(interval, idleTimeout time.Duration) RateLimitOption {
	return func(s *tokenRateLimiterStore) {
		s.cleanupInterval = interval
		s.idleTimeout = idleTimeout
	}
}

// tokenRateLimiterStore holds per-token rate limiters with automatic cleanup.
type tokenRateLimiterStore struct {
	limiters        sync.Map // map[string]*tokenRateLimiterEntry (token id -> limiter)
	now             func() time.Time
	cleanupInterval time.Duration
	idleTimeout     time.Duration
}

// tokenRateLimiterEntry holds a rate limiter, the limit it was built for and the last
// access time for cleanup.
type tokenRateLimiterEntry struct {
	limiter    *rate.Limiter
	limit      int
	lastAccess time.Time
	mu         sync.Mutex
}

// TokenRateLimitMiddleware enforces each token's rate_limit_per_minute.
//
// It must run after AuthenticationMiddleware. Tokens without a limit and the transient
// token pass through. Each limited token gets a token bucket refilling limit/60 per
// second with a burst of limit, so a fresh token may spend its whole minute at once.
//
// A rejected request emits a rate_limited audit event and answers 429 with a
// Retry-After header. The stale limiter sweep stops when ctx is done.
func TokenRateLimitMiddleware(
	ctx context.Context,
	sink audit.Sink,
	logger *slog.Logger,
	opts ...RateLimitOption,
) gin.HandlerFunc {
	store := &tokenRateLimiterStore{
		now:             time.Now,
		cleanupInterval: defaultCleanupInterval,
		idleTimeout:     defaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(store)
	}

	go store.cleanupStale(ctx)

	return func(c *gin.Context) {
		token, ok := GetToken(c.Request.Context())
		if !ok {
			httputil.HandleErrorGin(c, domain.ErrUnauthenticated, logger)
			c.Abort()
			return
		}

		if token.Transient || token.RateLimitPerMinute == nil || *token.RateLimitPerMinute <= 0 {
			c.Next()
			return
		}

		limit := *token.RateLimitPerMinute
		retryAfter, allowed := store.allow(token.ID.String(), limit)
		if allowed {
			c.Next()
			return
		}

		rateErr := &domain.RateLimitExceededError{Limit: limit, RetryAfter: retryAfter}

		logger.Debug("token rate limit exceeded",
			slog.String("token_id", token.ID.String()),
			slog.Int("limit", limit),
			slog.Int("retry_after", rateErr.RetryAfterSeconds()))

		metadata := rateLimitMetadata(NewGinRequest(c, ""), limit, rateErr.RetryAfterSeconds())
		if err := sink.Log(c.Request.Context(), token, domain.EventRateLimited, metadata); err != nil {
			logger.Error("failed to audit rate limit rejection",
				slog.String("token_id", token.ID.String()),
				slog.Any("error", err))
		}

		httputil.HandleErrorGin(c, rateErr, logger)
		c.Abort()
	}
}

// allow consumes one request from the token's bucket. When the bucket is empty it
// returns the delay until the next request would be accepted.
func (s *tokenRateLimiterStore) allow(tokenID string, limit int) (time.Duration, bool) {
	now := s.now()
	limiter := s.getLimiter(tokenID, limit, now)

	if limiter.AllowN(now, 1) {
		return 0, true
	}

	reservation := limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	reservation.CancelAt(now)
	return delay, false
}

// getLimiter retrieves or creates a limiter for a token. A changed limit replaces the
// limiter and resets the bucket.
func (s *tokenRateLimiterStore) getLimiter(tokenID string, limit int, now time.Time) *rate.Limiter {
	val, ok := s.limiters.Load(tokenID)
	if !ok {
		val, _ = s.limiters.LoadOrStore(tokenID, &tokenRateLimiterEntry{
			limiter: newTokenLimiter(limit),
			limit:   limit,
		})
	}

	entry := val.(*tokenRateLimiterEntry)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.limit != limit {
		entry.limiter = newTokenLimiter(limit)
		entry.limit = limit
	}
	entry.lastAccess = now
	return entry.limiter
}

func newTokenLimiter(limitPerMinute int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(float64(limitPerMinute)/60), limitPerMinute)
}

// cleanupStale removes limiters that haven't been accessed recently.
func (s *tokenRateLimiterStore) cleanupStale(ctx context.Context) {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(s.now().Add(-s.idleTimeout))
		}
	}
}

func (s *tokenRateLimiterStore) sweep(threshold time.Time) {
	s.limiters.Range(func(key, value any) bool {
		entry := value.(*tokenRateLimiterEntry)
		entry.mu.Lock()
		shouldDelete := entry.lastAccess.Before(threshold)
		entry.mu.Unlock()

		if shouldDelete {
			s.limiters.Delete(key)
		}
		return true
	})
}

func rateLimitMetadata(req *GinRequest, limit, retryAfter int) map[string]any {
	metadata := map[string]any{
		domain.AuditKeyIPAddress: req.RemoteAddr(),
		"limit":                  limit,
		"retry_after_seconds":    retryAfter,
	}
	if ua := req.Header("User-Agent"); ua != "" {
		metadata[domain.AuditKeyUserAgent] = ua
	}
	if id := req.RequestID(); id != "" {
		metadata[domain.AuditKeyRequestID] = id
	}
	return metadata
}
