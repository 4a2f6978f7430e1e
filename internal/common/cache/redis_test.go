package cache_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"codejudge/internal/common/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("new cache failed: %v", err)
	}
	return c, mr
}

func TestIncrWithExpireSetsTTLOnFirstHitOnly(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	count, ttl, err := c.IncrWithExpire(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("incr failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	mr.FastForward(20 * time.Second)
	count, ttl, err = c.IncrWithExpire(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("incr failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}
	if ttl > 40*time.Second {
		t.Fatalf("expected window not to be extended, ttl=%v", ttl)
	}

	mr.FastForward(41 * time.Second)
	count, _, err = c.IncrWithExpire(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("incr failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected new window to start at 1, got %d", count)
	}
}

func TestIncrWithExpireRejectsNonPositiveTTL(t *testing.T) {
	c, _ := newTestCache(t)
	if _, _, err := c.IncrWithExpire(context.Background(), "k", 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}

type item struct {
	Name string `json:"name"`
}

func TestGetWithCached(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	calls := 0
	load := func(result *item, err error) func(context.Context) (*item, error) {
		return func(context.Context) (*item, error) {
			calls++
			return result, err
		}
	}
	isEmpty := func(v *item) bool { return v == nil }
	marshal := func(v *item) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	}
	unmarshal := func(s string) (*item, error) {
		var v item
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, err
		}
		return &v, nil
	}

	got, err := cache.GetWithCached(ctx, c, "item:1", time.Minute, time.Second, isEmpty, marshal, unmarshal, load(&item{Name: "a"}, nil))
	if err != nil || got == nil || got.Name != "a" {
		t.Fatalf("unexpected first load: %+v %v", got, err)
	}
	got, err = cache.GetWithCached(ctx, c, "item:1", time.Minute, time.Second, isEmpty, marshal, unmarshal, load(nil, errors.New("must not be called")))
	if err != nil || got == nil || got.Name != "a" {
		t.Fatalf("expected cached value, got %+v %v", got, err)
	}
	if calls != 1 {
		t.Fatalf("expected one load, got %d", calls)
	}

	got, err = cache.GetWithCached(ctx, c, "item:missing", time.Minute, time.Minute, isEmpty, marshal, unmarshal, load(nil, nil))
	if err != nil || got != nil {
		t.Fatalf("expected empty result, got %+v %v", got, err)
	}
	raw, _ := c.Get(ctx, "item:missing")
	if raw != cache.NullCacheValue {
		t.Fatalf("expected null marker, got %q", raw)
	}
}
