package security

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archoncouncil/api/pkg/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(store Store, clock *fakeClock) *RateLimiter {
	return NewRateLimiter(store, logger.NewNop(), WithClock(clock.Now))
}

func TestRateLimiter_FixedWindow(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	rl := newTestLimiter(NewMemoryStore(), clock)
	rule := Rule{MaxRequests: 3, Window: time.Second}

	for i := 1; i <= 3; i++ {
		d := rl.Check(ctx, "1.2.3.4", "archon-decision", rule)
		assert.True(t, d.Allowed(), "request %d should pass", i)
	}

	d := rl.Check(ctx, "1.2.3.4", "archon-decision", rule)
	assert.False(t, d.Allowed())
	assert.Equal(t, "rate_limit_exceeded", d.Reason())
	assert.Equal(t, http.StatusTooManyRequests, d.StatusCode())

	clock.Advance(time.Second + time.Millisecond)
	d = rl.Check(ctx, "1.2.3.4", "archon-decision", rule)
	assert.True(t, d.Allowed())

	entry, ok, err := rl.store.Get(ctx, Key("archon-decision", "1.2.3.4"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, entry.Count)
}

func TestRateLimiter_WindowBoundaryIsInclusive(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	rl := newTestLimiter(NewMemoryStore(), clock)
	rule := Rule{MaxRequests: 1, Window: time.Second}

	assert.True(t, rl.Check(ctx, "ip", "r", rule).Allowed())
	clock.Advance(time.Second)
	// now == resetAt still belongs to the old window
	assert.False(t, rl.Check(ctx, "ip", "r", rule).Allowed())
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	rl := newTestLimiter(NewMemoryStore(), newFakeClock())
	rule := Rule{MaxRequests: 1, Window: time.Minute}

	assert.True(t, rl.Check(ctx, "1.1.1.1", "archon-decision", rule).Allowed())
	assert.True(t, rl.Check(ctx, "2.2.2.2", "archon-decision", rule).Allowed())
	assert.True(t, rl.Check(ctx, "1.1.1.1", "elevenlabs-tts", rule).Allowed())
	assert.False(t, rl.Check(ctx, "1.1.1.1", "archon-decision", rule).Allowed())
}

func TestRateLimiter_NonAuthRouteNeverBlocks(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore()
	rl := newTestLimiter(store, clock)
	rule := Rule{MaxRequests: 1, Window: time.Minute, BlockDuration: time.Hour}

	rl.Check(ctx, "ip", "archon-decision", rule)
	rl.Check(ctx, "ip", "archon-decision", rule)
	rl.Check(ctx, "ip", "archon-decision", rule)

	entry, _, _ := store.Get(ctx, Key("archon-decision", "ip"))
	assert.True(t, entry.BlockedUntil.IsZero())

	clock.Advance(time.Minute + time.Millisecond)
	assert.True(t, rl.Check(ctx, "ip", "archon-decision", rule).Allowed())
}

func TestRateLimiter_ProgressiveBlock(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore()
	rl := newTestLimiter(store, clock)
	rule := Rule{MaxRequests: 5, Window: 15 * time.Minute, BlockDuration: 300 * time.Second}
	key := Key("auth-validate", "9.9.9.9")

	for i := 0; i < 5; i++ {
		require.True(t, rl.Check(ctx, "9.9.9.9", "auth-validate", rule).Allowed())
	}

	start := clock.Now()
	d := rl.Check(ctx, "9.9.9.9", "auth-validate", rule)
	assert.Equal(t, KindRateLimitExceeded, d.Kind)

	entry, _, _ := store.Get(ctx, key)
	assert.Equal(t, 6, entry.Count)
	assert.Equal(t, start.Add(300*time.Second), entry.BlockedUntil)

	// A 7th call inside the block is rejected by the block itself and
	// neither counts nor extends the block.
	clock.Advance(10 * time.Second)
	d = rl.Check(ctx, "9.9.9.9", "auth-validate", rule)
	assert.Equal(t, KindRateLimited, d.Kind)
	assert.Equal(t, "rate_limited:290s", d.Reason())
	assert.Equal(t, 290, d.Err().RetryAfter)

	entry, _, _ = store.Get(ctx, key)
	assert.Equal(t, 6, entry.Count)
	assert.Equal(t, start.Add(300*time.Second), entry.BlockedUntil)

	// Once the block clears inside the same window, the next excess
	// request escalates with multiplier min(7-5, 5) = 2.
	clock.Advance(291 * time.Second)
	now := clock.Now()
	d = rl.Check(ctx, "9.9.9.9", "auth-validate", rule)
	assert.Equal(t, KindRateLimitExceeded, d.Kind)
	entry, _, _ = store.Get(ctx, key)
	assert.Equal(t, 7, entry.Count)
	assert.Equal(t, now.Add(600*time.Second), entry.BlockedUntil)
}

func TestStep_MultiplierCap(t *testing.T) {
	now := time.Now()
	rule := Rule{MaxRequests: 1, Window: time.Hour, BlockDuration: time.Minute}

	entry := Entry{Count: 20, ResetAt: now.Add(time.Hour)}
	next, blocked := Step(entry, true, rule, true, now)
	assert.False(t, blocked)
	assert.Equal(t, 21, next.Count)
	assert.Equal(t, now.Add(5*time.Minute), next.BlockedUntil)
}

func TestStep_RetryAfterRoundsUp(t *testing.T) {
	now := time.Now()
	entry := Entry{Count: 9, ResetAt: now.Add(time.Hour), BlockedUntil: now.Add(1500 * time.Millisecond)}
	_, blocked := Step(entry, true, Rule{MaxRequests: 1, Window: time.Hour}, true, now)
	assert.True(t, blocked)

	d := Decision{Kind: KindRateLimited, RetryAfter: 1500 * time.Millisecond}
	assert.Equal(t, "rate_limited:2s", d.Reason())
}

func TestIsAuthRoute(t *testing.T) {
	assert.True(t, IsAuthRoute("auth-validate"))
	assert.True(t, IsAuthRoute("oauth"))
	assert.False(t, IsAuthRoute("archon-decision"))
}

type failingStore struct{ MemoryStore }

func (f *failingStore) Get(context.Context, string) (Entry, bool, error) {
	return Entry{}, false, errors.New("connection refused")
}

func TestRateLimiter_FailsOpenOnStoreError(t *testing.T) {
	rl := newTestLimiter(&failingStore{}, newFakeClock())
	d := rl.Check(context.Background(), "ip", "auth-validate", Rule{MaxRequests: 1, Window: time.Minute})
	assert.True(t, d.Allowed())
}

func TestRateLimiter_Concurrent(t *testing.T) {
	ctx := context.Background()
	rl := newTestLimiter(NewMemoryStore(), newFakeClock())
	rule := Rule{MaxRequests: 50, Window: time.Minute}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Check(ctx, "ip", "archon-decision", rule).Allowed() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}

func TestRateLimiter_Sweep(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore()
	rl := newTestLimiter(store, clock)

	rl.Check(ctx, "a", "archon-decision", Rule{MaxRequests: 5, Window: time.Minute})
	for i := 0; i < 3; i++ {
		rl.Check(ctx, "b", "auth-validate", Rule{MaxRequests: 1, Window: time.Minute, BlockDuration: time.Hour})
	}
	require.Equal(t, 2, store.Len())

	clock.Advance(2 * time.Minute)
	n, err := rl.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, store.Len(), "blocked entry survives until its block ends")

	clock.Advance(3 * time.Hour)
	n, err = rl.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, store.Len())
}
