package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemoryCounterStoreSweepsOncePerInterval(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryCounterStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i <= memorySweepThreshold; i++ {
		if _, _, err := s.IncrementWithExpiry(ctx, fmt.Sprintf("user:%d", i), time.Second); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}
	if got := len(s.entries); got != memorySweepThreshold+1 {
		t.Fatalf("entries = %d, want %d", got, memorySweepThreshold+1)
	}

	// Everything above has expired, but the last sweep was too recent.
	now = now.Add(2 * time.Second)
	if _, _, err := s.IncrementWithExpiry(ctx, "late", time.Second); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if got := len(s.entries); got != memorySweepThreshold+2 {
		t.Fatalf("entries = %d, want no sweep before the interval", got)
	}

	now = now.Add(memorySweepInterval)
	count, ttl, err := s.IncrementWithExpiry(ctx, "fresh", time.Minute)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if count != 1 || ttl != time.Minute {
		t.Fatalf("count = %d ttl = %v", count, ttl)
	}
	if got := len(s.entries); got != 1 {
		t.Fatalf("entries = %d, want only the live key after the sweep", got)
	}
}
