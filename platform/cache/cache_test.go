package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	c := NewMemoryWithClock(clock)
	ctx := context.Background()

	if _, ok := c.Get(ctx, "statuses"); ok {
		t.Fatal("empty cache should miss")
	}

	c.Set(ctx, "statuses", []byte(`[{"id":"NEW"}]`), 24*time.Hour)

	value, ok := c.Get(ctx, "statuses")
	if !ok {
		t.Fatal("expected cache hit before expiry")
	}
	if string(value) != `[{"id":"NEW"}]` {
		t.Fatalf("unexpected cached value: %s", value)
	}

	now = now.Add(23 * time.Hour)
	if _, ok := c.Get(ctx, "statuses"); !ok {
		t.Fatal("expected cache hit at 23h")
	}

	now = now.Add(2 * time.Hour)
	if _, ok := c.Get(ctx, "statuses"); ok {
		t.Fatal("expected cache miss after TTL")
	}

	// Expired entry must be evicted, not resurrected
	if _, ok := c.Get(ctx, "statuses"); ok {
		t.Fatal("expired entry should stay evicted")
	}
}

func TestMemoryOverwrite(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	c.Set(ctx, "k", []byte("first"), time.Minute)
	c.Set(ctx, "k", []byte("second"), time.Minute)

	value, ok := c.Get(ctx, "k")
	if !ok || string(value) != "second" {
		t.Fatalf("expected last write to win, got %q ok=%v", value, ok)
	}
}

func TestRedisExpiry(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	c := NewRedisWithClient(client)
	ctx := context.Background()

	if _, ok := c.Get(ctx, "statuses"); ok {
		t.Fatal("empty cache should miss")
	}

	c.Set(ctx, "statuses", []byte("cached"), time.Hour)

	value, ok := c.Get(ctx, "statuses")
	if !ok || string(value) != "cached" {
		t.Fatalf("expected hit, got %q ok=%v", value, ok)
	}

	srv.FastForward(2 * time.Hour)
	if _, ok := c.Get(ctx, "statuses"); ok {
		t.Fatal("expected miss after TTL elapsed")
	}
}
