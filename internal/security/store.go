package security

import (
	"context"
	"sync"
	"time"
)

// Entry is the rate limit state of one route:identifier key.
type Entry struct {
	Count   int
	ResetAt time.Time
	// BlockedUntil is zero when the key is not blocked.
	BlockedUntil time.Time
}

// Blocked reports whether the entry rejects requests at now.
func (e Entry) Blocked(now time.Time) bool {
	return !e.BlockedUntil.IsZero() && now.Before(e.BlockedUntil)
}

// Expired reports whether both the window and any block are over at now.
func (e Entry) Expired(now time.Time) bool {
	return now.After(e.ResetAt) && !e.Blocked(now)
}

// Store holds rate limit entries.
type Store interface {
	// Get returns the entry for key and whether it exists.
	Get(ctx context.Context, key string) (Entry, bool, error)
	// Set replaces the entry for key.
	Set(ctx context.Context, key string, entry Entry) error
	// Sweep removes entries that are expired at now and returns how many were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// AtomicStore is implemented by stores that run one limiter step as a
// single atomic operation, such as a shared cache evaluating a script.
type AtomicStore interface {
	Store
	// Hit applies one request to key under rule. blocked reports that the key
	// was already blocked, in which case the entry is returned unchanged.
	Hit(ctx context.Context, key string, rule Rule, escalate bool, now time.Time) (entry Entry, blocked bool, err error)
}

// MemoryStore is a process-local Store. Entries are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, key string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
	return nil
}

// Sweep implements Store.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, e := range s.entries {
		if e.Expired(now) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var _ Store = (*MemoryStore)(nil)
