package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryCacheRoundTripTyped(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	type point struct {
		ID    int     `json:"id"`
		Price float64 `json:"price"`
	}
	in := []point{{ID: 1, Price: 100.5}, {ID: 2, Price: 99.25}}
	if err := mc.Set(ctx, "series:1", in, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	var out []point
	if err := mc.Get(ctx, "series:1", &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(out) != 2 || out[1].Price != 99.25 {
		t.Fatalf("unexpected decode %+v", out)
	}
}

func TestMemoryCacheMissAndExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	var v int
	if err := mc.Get(ctx, "absent", &v); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}

	if err := mc.Set(ctx, "short", 7, time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := mc.Get(ctx, "short", &v); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expired entry to miss, got %v", err)
	}
}

func TestMemoryCacheTryLock(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	ok, err := mc.TryLock(ctx, "model_lock:m", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first lock: ok=%v err=%v", ok, err)
	}
	ok, err = mc.TryLock(ctx, "model_lock:m", time.Minute)
	if err != nil || ok {
		t.Fatalf("second lock must fail: ok=%v err=%v", ok, err)
	}
	if err := mc.Unlock(ctx, "model_lock:m"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	ok, err = mc.TryLock(ctx, "model_lock:m", time.Minute)
	if err != nil || !ok {
		t.Fatalf("relock after unlock: ok=%v err=%v", ok, err)
	}
}

func TestGenerateKeyWithParams(t *testing.T) {
	if got := GenerateKeyWithParams("prices:series", 42); got != "prices:series:42" {
		t.Fatalf("unexpected key %q", got)
	}
}
