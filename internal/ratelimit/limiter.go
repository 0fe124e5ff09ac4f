// Package ratelimit implements tiered fixed-window admission control.
// Counters live behind a CounterStore so a single instance can use the
// in-process map while horizontal deployments share redis.
package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/concordia-platform/ai-monitor-go/internal/domain"
	"github.com/concordia-platform/ai-monitor-go/internal/infra/observability"

	"go.uber.org/zap"
)

// CounterStore increments the fixed-window counter for key, creating
// it with the window expiry on first touch. Returns the post-increment
// count and the remaining window. Implementations must make the
// increment atomic.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, remaining time.Duration, err error)
}

// Tier is a preconfigured admission policy.
type Tier struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Preconfigured tiers. Auth is deliberately tight to blunt credential
// stuffing; AI protects expensive upstream calls. The general limit is
// configurable.
func DefaultTiers(generalLimit int) (general, auth, ai Tier) {
	if generalLimit <= 0 {
		generalLimit = 60
	}
	general = Tier{Name: "general", Limit: generalLimit, Window: time.Minute}
	auth = Tier{Name: "auth", Limit: 5, Window: time.Minute}
	ai = Tier{Name: "ai", Limit: 10, Window: time.Minute}
	return general, auth, ai
}

// Limiter answers fixed-window admission checks against a counter
// store. If the store is unreachable it fails open: availability is
// prioritized over strict quota enforcement.
//
// Known fixed-window limitation: a caller straddling a window boundary
// can send up to 2x the limit. Accepted trade-off, not fixed here.
type Limiter struct {
	store   CounterStore
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewLimiter creates a limiter over the given counter store.
func NewLimiter(store CounterStore, metrics *observability.Metrics, logger *zap.Logger) *Limiter {
	return &Limiter{store: store, metrics: metrics, logger: logger}
}

// Check admits or rejects one request for identifier under the given
// limit and window.
func (l *Limiter) Check(ctx context.Context, identifier string, limit int, window time.Duration) domain.RateLimitResult {
	count, remaining, err := l.store.Incr(ctx, identifier, window)
	if err != nil {
		// Fail open: an unreachable counter store must not take the
		// service down with it.
		l.logger.Warn("ratelimit: counter store unreachable, failing open",
			zap.String("identifier", identifier),
			zap.Error(err),
		)
		l.metrics.IncrExternalError("ratelimit_store")
		return domain.RateLimitResult{
			Allowed:      true,
			Limit:        limit,
			Remaining:    limit,
			ResetSeconds: int(window.Seconds()),
		}
	}

	resetSeconds := int(math.Ceil(remaining.Seconds()))
	result := domain.RateLimitResult{
		Allowed:      count <= int64(limit),
		Limit:        limit,
		Remaining:    int(math.Max(0, float64(int64(limit)-count))),
		ResetSeconds: resetSeconds,
		Count:        count,
	}
	if !result.Allowed {
		result.RetryAfter = resetSeconds
	}
	return result
}
