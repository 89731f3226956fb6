package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/archoncouncil/api/internal/security"
)

// hitScript applies one request to a rate limit hash. It mirrors
// security.Step: a blocked key is returned unchanged, an expired window
// resets count and block, and escalation sets blocked_until to
// now + block * min(count - max, max_multiplier).
//
// Returns {count, reset_at, blocked_until, blocked}.
var hitScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])
	local max_requests = tonumber(ARGV[3])
	local escalate = tonumber(ARGV[4])
	local block_ms = tonumber(ARGV[5])
	local max_multiplier = tonumber(ARGV[6])

	local h = redis.call('HMGET', key, 'count', 'reset_at', 'blocked_until')
	local count = tonumber(h[1])
	local reset_at = tonumber(h[2])
	local blocked_until = tonumber(h[3]) or 0

	if count ~= nil and blocked_until > 0 and now < blocked_until then
		return {count, reset_at, blocked_until, 1}
	end

	if count == nil or now > reset_at then
		count = 0
		reset_at = now + window_ms
		blocked_until = 0
	end

	count = count + 1

	if count > max_requests and escalate == 1 then
		local multiplier = math.min(count - max_requests, max_multiplier)
		blocked_until = now + block_ms * multiplier
	end

	redis.call('HSET', key, 'count', count, 'reset_at', reset_at, 'blocked_until', blocked_until)
	redis.call('PEXPIRE', key, math.max(reset_at, blocked_until) - now + 1)

	return {count, reset_at, blocked_until, 0}
`)

// RateLimitStore is a security.AtomicStore shared by every API instance.
type RateLimitStore struct {
	client *Client
	prefix string
}

var _ security.AtomicStore = (*RateLimitStore)(nil)

// NewRateLimitStore creates a store whose keys are namespaced by prefix.
func NewRateLimitStore(client *Client, prefix string) *RateLimitStore {
	return &RateLimitStore{client: client, prefix: prefix}
}

func (s *RateLimitStore) key(k string) string {
	return s.prefix + k
}

// Hit implements security.AtomicStore.
func (s *RateLimitStore) Hit(ctx context.Context, key string, rule security.Rule, escalate bool, now time.Time) (security.Entry, bool, error) {
	esc := 0
	if escalate {
		esc = 1
	}

	res, err := hitScript.Run(ctx, s.client.client, []string{s.key(key)},
		now.UnixMilli(),
		rule.Window.Milliseconds(),
		rule.MaxRequests,
		esc,
		rule.BlockDuration.Milliseconds(),
		security.MaxBlockMultiplier,
	).Int64Slice()
	if err != nil {
		return security.Entry{}, false, fmt.Errorf("redis rate limit hit: %w", err)
	}
	if len(res) != 4 {
		return security.Entry{}, false, fmt.Errorf("redis rate limit hit: unexpected reply length %d", len(res))
	}

	return entryFromMillis(res[0], res[1], res[2]), res[3] == 1, nil
}

// Get implements security.Store.
func (s *RateLimitStore) Get(ctx context.Context, key string) (security.Entry, bool, error) {
	vals, err := s.client.client.HMGet(ctx, s.key(key), "count", "reset_at", "blocked_until").Result()
	if err != nil {
		return security.Entry{}, false, fmt.Errorf("redis rate limit get: %w", err)
	}
	if len(vals) != 3 || vals[0] == nil {
		return security.Entry{}, false, nil
	}

	nums := make([]int64, 3)
	for i, v := range vals {
		if v == nil {
			continue
		}
		str, ok := v.(string)
		if !ok {
			return security.Entry{}, false, fmt.Errorf("redis rate limit get: unexpected field type %T", v)
		}
		n, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return security.Entry{}, false, fmt.Errorf("redis rate limit get: %w", err)
		}
		nums[i] = n
	}
	return entryFromMillis(nums[0], nums[1], nums[2]), true, nil
}

// Set implements security.Store.
func (s *RateLimitStore) Set(ctx context.Context, key string, entry security.Entry) error {
	var blockedUntil int64
	if !entry.BlockedUntil.IsZero() {
		blockedUntil = entry.BlockedUntil.UnixMilli()
	}

	expireAt := entry.ResetAt
	if entry.BlockedUntil.After(expireAt) {
		expireAt = entry.BlockedUntil
	}

	k := s.key(key)
	_, err := s.client.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, "count", entry.Count, "reset_at", entry.ResetAt.UnixMilli(), "blocked_until", blockedUntil)
		pipe.PExpireAt(ctx, k, expireAt.Add(time.Millisecond))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis rate limit set: %w", err)
	}
	return nil
}

// Sweep implements security.Store. Keys expire through their TTL, so there
// is nothing to remove.
func (s *RateLimitStore) Sweep(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

// Reset deletes the state for key. Used by the admin CLI to lift a lockout.
func (s *RateLimitStore) Reset(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("key is required")
	}
	if err := s.client.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis rate limit reset: %w", err)
	}
	return nil
}

func entryFromMillis(count, resetAt, blockedUntil int64) security.Entry {
	e := security.Entry{
		Count:   int(count),
		ResetAt: time.UnixMilli(resetAt),
	}
	if blockedUntil > 0 {
		e.BlockedUntil = time.UnixMilli(blockedUntil)
	}
	return e
}
