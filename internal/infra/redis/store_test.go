package redis

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archoncouncil/api/internal/security"
	"github.com/archoncouncil/api/pkg/logger"
)

// setupTestStore connects to REDIS_ADDR (default localhost:6379) and skips
// when no server is reachable.
func setupTestStore(t *testing.T) *RateLimitStore {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	rc := goredis.NewClient(&goredis.Options{Addr: addr, DialTimeout: 500 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		t.Skipf("Skipping redis store test: redis not available: %v", err)
	}

	client := NewFromClient(rc, logger.NewNop())
	t.Cleanup(func() { _ = client.Close() })

	return NewRateLimitStore(client, "archon:test:"+uuid.NewString()+":")
}

func TestEntryFromMillis(t *testing.T) {
	e := entryFromMillis(3, 1_700_000_060_000, 0)
	assert.Equal(t, 3, e.Count)
	assert.Equal(t, time.UnixMilli(1_700_000_060_000), e.ResetAt)
	assert.True(t, e.BlockedUntil.IsZero())

	e = entryFromMillis(7, 1_700_000_060_000, 1_700_000_300_000)
	assert.Equal(t, time.UnixMilli(1_700_000_300_000), e.BlockedUntil)
}

func TestRateLimitStore_HitMatchesStep(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	rule := security.Rule{MaxRequests: 2, Window: time.Minute, BlockDuration: time.Minute}
	now := time.UnixMilli(time.Now().UnixMilli())

	var (
		local security.Entry
		found bool
	)
	for i := 0; i < 6; i++ {
		want, wantBlocked := security.Step(local, found, rule, true, now)
		got, blocked, err := store.Hit(ctx, "auth-validate:1.2.3.4", rule, true, now)
		require.NoError(t, err)

		assert.Equal(t, wantBlocked, blocked, "step %d", i)
		assert.Equal(t, want.Count, got.Count, "step %d", i)
		assert.True(t, want.ResetAt.Equal(got.ResetAt), "step %d", i)
		assert.True(t, want.BlockedUntil.Equal(got.BlockedUntil), "step %d", i)

		if !wantBlocked {
			local, found = want, true
		}
		now = now.Add(time.Second)
	}
}

func TestRateLimitStore_GetSetReset(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	now := time.UnixMilli(time.Now().UnixMilli())
	entry := security.Entry{Count: 4, ResetAt: now.Add(time.Minute), BlockedUntil: now.Add(2 * time.Minute)}
	require.NoError(t, store.Set(ctx, "k", entry))

	got, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 4, got.Count)
	assert.True(t, entry.ResetAt.Equal(got.ResetAt))
	assert.True(t, entry.BlockedUntil.Equal(got.BlockedUntil))

	require.NoError(t, store.Reset(ctx, "k"))
	_, found, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRateLimitStore_ConcurrentHitsAreAtomic(t *testing.T) {
	store := setupTestStore(t)
	limiter := security.NewRateLimiter(store, logger.NewNop())
	rule := security.Rule{MaxRequests: 25, Window: time.Minute}

	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Check(context.Background(), "9.9.9.9", "archon-decision", rule).Allowed() {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(25), allowed.Load())
}
