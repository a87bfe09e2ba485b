package cache

import (
	"context"
	"testing"
	"time"
)

func TestLocalCache(t *testing.T) {
	ctx := context.Background()

	t.Run("GetSetRoundTrip", func(t *testing.T) {
		c := NewLocalCache(time.Minute)

		if _, ok, err := c.Get(ctx, "missing"); err != nil || ok {
			t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
		}

		if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
			t.Fatalf("unexpected error on set: %v", err)
		}
		got, ok, err := c.Get(ctx, "k")
		if err != nil || !ok {
			t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
		}
		if string(got) != "v" {
			t.Errorf("expected v, got %q", got)
		}
	})

	t.Run("ExpiredEntriesMiss", func(t *testing.T) {
		c := NewLocalCache(time.Minute)
		now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		c.now = func() time.Time { return now }

		_ = c.Set(ctx, "k", []byte("v"), 10*time.Second)
		now = now.Add(10 * time.Second)

		if _, ok, _ := c.Get(ctx, "k"); ok {
			t.Error("expected expired entry to miss")
		}
		if c.Len() != 0 {
			t.Errorf("expired entry should be evicted on read, len=%d", c.Len())
		}
	})

	t.Run("ValuesAreCopied", func(t *testing.T) {
		c := NewLocalCache(0)
		buf := []byte("abc")
		_ = c.Set(ctx, "k", buf, 0)
		buf[0] = 'x'

		got, _, _ := c.Get(ctx, "k")
		if string(got) != "abc" {
			t.Errorf("cache should hold its own copy, got %q", got)
		}
	})

	t.Run("Close", func(t *testing.T) {
		c := NewLocalCache(0)
		_ = c.Set(ctx, "k", []byte("v"), 0)
		if err := c.Close(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.Len() != 0 {
			t.Error("expected entries to be dropped")
		}
	})
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(0)

	type price struct {
		In  float64 `json:"in"`
		Out float64 `json:"out"`
	}

	if err := SetJSON(ctx, c, "p", price{In: 0.005, Out: 0.015}, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok, err := GetJSON[price](ctx, c, "p")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got.In != 0.005 || got.Out != 0.015 {
		t.Errorf("unexpected value %+v", got)
	}

	_ = c.Set(ctx, "bad", []byte("{"), 0)
	if _, _, err := GetJSON[price](ctx, c, "bad"); err == nil {
		t.Error("expected decode error")
	}
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	if _, err := NewRedisCache(context.Background(), RedisConfig{URL: "not-a-url"}); err == nil {
		t.Error("expected error for invalid URL")
	}
}
