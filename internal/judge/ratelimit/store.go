package ratelimit

import (
	"context"
	"sync"
	"time"

	"codejudge/internal/common/cache"
)

// RedisCounterStore keeps counters in the shared cache so every replica sees the same window.
type RedisCounterStore struct {
	counters cache.CounterOps
}

func NewRedisCounterStore(counters cache.CounterOps) *RedisCounterStore {
	return &RedisCounterStore{counters: counters}
}

func (s *RedisCounterStore) IncrementWithExpiry(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	return s.counters.IncrWithExpire(ctx, key, window)
}

const (
	memorySweepThreshold = 4096
	memorySweepInterval  = time.Minute
)

// MemoryCounterStore is a process-local store for single-instance deployments.
// Expired keys are swept at most once per memorySweepInterval.
type MemoryCounterStore struct {
	mu        sync.Mutex
	now       func() time.Time
	entries   map[string]memoryEntry
	nextSweep time.Time
}

type memoryEntry struct {
	count     int64
	expiresAt time.Time
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{now: time.Now, entries: make(map[string]memoryEntry)}
}

// WithClock replaces the time source, for tests.
func (s *MemoryCounterStore) WithClock(now func() time.Time) *MemoryCounterStore {
	s.now = now
	return s
}

func (s *MemoryCounterStore) IncrementWithExpiry(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[key]
	if !ok || !now.Before(e.expiresAt) {
		e = memoryEntry{expiresAt: now.Add(window)}
	}
	e.count++
	s.entries[key] = e

	if len(s.entries) > memorySweepThreshold && !now.Before(s.nextSweep) {
		s.evictExpired(now)
		s.nextSweep = now.Add(memorySweepInterval)
	}
	return e.count, e.expiresAt.Sub(now), nil
}

func (s *MemoryCounterStore) evictExpired(now time.Time) {
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}
