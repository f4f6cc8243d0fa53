package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process CounterStore. It is intended for tests and
// single-replica deployments; production deployments should use RedisStore
// so that replicas share one set of counters.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	value     int64
	expiresAt time.Time // zero means no expiry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
	}
}

// lookup returns the live entry for key, dropping it first if it has
// expired. Caller must hold mu.
func (s *MemoryStore) lookup(key string) (*memoryEntry, bool) {
	ent, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if !ent.expiresAt.IsZero() && !time.Now().Before(ent.expiresAt) {
		delete(s.entries, key)
		return nil, false
	}
	return ent, true
}

// Get implements CounterStore.
func (s *MemoryStore) Get(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.lookup(key)
	if !ok {
		return 0, &ErrKeyNotFound{Key: key}
	}
	return ent.value, nil
}

// Set implements CounterStore.
func (s *MemoryStore) Set(ctx context.Context, key string, value int64, expiration time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ent := &memoryEntry{value: value}
	if expiration > 0 {
		ent.expiresAt = time.Now().Add(expiration)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = ent
	return nil
}

// TTL implements CounterStore.
func (s *MemoryStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.lookup(key)
	if !ok {
		return 0, &ErrKeyNotFound{Key: key}
	}
	if ent.expiresAt.IsZero() {
		return 0, nil
	}

	ttl := time.Until(ent.expiresAt)
	if ttl < 0 {
		ttl = 0
	}
	return ttl, nil
}

// Delete implements CounterStore.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// IncrementWithExpiry implements AtomicIncrementer. The read, increment,
// and expiry assignment happen under one lock, so concurrent callers never
// observe the same pre-increment value.
func (s *MemoryStore) IncrementWithExpiry(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.lookup(key)
	if !ok {
		ent = &memoryEntry{}
		if expiration > 0 {
			ent.expiresAt = time.Now().Add(expiration)
		}
		s.entries[key] = ent
	}
	ent.value += delta
	return ent.value, nil
}

// Close implements CounterStore.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*memoryEntry)
	return nil
}
