package security

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/archoncouncil/api/internal/metrics"
	"github.com/archoncouncil/api/pkg/logger"
)

// MaxBlockMultiplier caps progressive lockout at five times the base block.
const MaxBlockMultiplier = 5

// Rule is a fixed-window limit for one route.
type Rule struct {
	MaxRequests int
	Window      time.Duration
	// BlockDuration is the base lockout for authentication routes. Zero disables lockout.
	BlockDuration time.Duration
}

// RateLimiter counts requests per route:identifier in fixed windows and
// locks out callers of authentication routes that keep exceeding the limit.
type RateLimiter struct {
	mu     sync.Mutex
	store  Store
	now    func() time.Time
	logger *logger.Logger
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithClock replaces the time source.
func WithClock(now func() time.Time) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.now = now
	}
}

// NewRateLimiter creates a limiter over store.
func NewRateLimiter(store Store, log *logger.Logger, opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		store:  store,
		now:    time.Now,
		logger: log.With("component", "rate_limiter"),
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// IsAuthRoute reports whether route gets progressive lockout.
func IsAuthRoute(route string) bool {
	return strings.Contains(route, "auth")
}

// Key returns the store key for identifier on route.
func Key(route, identifier string) string {
	return route + ":" + identifier
}

// Check counts one request from identifier on route.
// Store failures are logged and the request is allowed.
func (rl *RateLimiter) Check(ctx context.Context, identifier, route string, rule Rule) Decision {
	key := Key(route, identifier)
	escalate := IsAuthRoute(route) && rule.BlockDuration > 0
	now := rl.now()

	var (
		entry   Entry
		blocked bool
		err     error
	)
	if atomic, ok := rl.store.(AtomicStore); ok {
		entry, blocked, err = atomic.Hit(ctx, key, rule, escalate, now)
	} else {
		entry, blocked, err = rl.hit(ctx, key, rule, escalate, now)
	}
	if err != nil {
		metrics.RateLimitStoreErrors.WithLabelValues("hit").Inc()
		rl.logger.Error("rate limit store failed, allowing request", "key", truncateKey(key), "error", err)
		return Allow()
	}

	if blocked {
		rl.logger.Warn("rate limit blocked", "key", truncateKey(key), "until", entry.BlockedUntil)
		return Decision{Kind: KindRateLimited, RetryAfter: entry.BlockedUntil.Sub(now)}
	}

	if entry.Count > rule.MaxRequests {
		rl.logger.Warn("rate limit exceeded", "key", truncateKey(key), "count", entry.Count)
		return Deny(KindRateLimitExceeded)
	}
	return Allow()
}

// hit runs one limiter step against a plain Store under the limiter lock.
func (rl *RateLimiter) hit(ctx context.Context, key string, rule Rule, escalate bool, now time.Time) (Entry, bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, found, err := rl.store.Get(ctx, key)
	if err != nil {
		return Entry{}, false, err
	}

	next, blocked := Step(entry, found, rule, escalate, now)
	if blocked {
		return entry, true, nil
	}
	if err := rl.store.Set(ctx, key, next); err != nil {
		return Entry{}, false, err
	}
	return next, false, nil
}

// Step applies one request to entry and returns the new entry. If the entry
// is blocked at now it is returned unchanged with blocked set: a blocked
// caller never resets or extends its own block.
func Step(entry Entry, found bool, rule Rule, escalate bool, now time.Time) (next Entry, blocked bool) {
	if found && entry.Blocked(now) {
		return entry, true
	}

	if !found || now.After(entry.ResetAt) {
		entry = Entry{Count: 0, ResetAt: now.Add(rule.Window)}
	}

	entry.Count++

	if entry.Count > rule.MaxRequests && escalate {
		multiplier := min(entry.Count-rule.MaxRequests, MaxBlockMultiplier)
		entry.BlockedUntil = now.Add(rule.BlockDuration * time.Duration(multiplier))
	}
	return entry, false
}

// Sweep drops expired entries from the store.
func (rl *RateLimiter) Sweep(ctx context.Context) (int, error) {
	n, err := rl.store.Sweep(ctx, rl.now())
	if err != nil {
		metrics.RateLimitStoreErrors.WithLabelValues("sweep").Inc()
		return 0, err
	}
	metrics.RateLimitSweptTotal.Add(float64(n))
	if ms, ok := rl.store.(*MemoryStore); ok {
		metrics.RateLimitEntries.Set(float64(ms.Len()))
	}
	return n, nil
}

func truncateKey(key string) string {
	if len(key) > 20 {
		return key[:20] + "***"
	}
	return key + "***"
}
