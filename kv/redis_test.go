package kv

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStoreTest(t *testing.T) (*RedisStore, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewRedisStore(rdb), mr, rdb
}

func TestRedisStoreRoundTripAndExpiry(t *testing.T) {
	s, mr, _ := newRedisStoreTest(t)
	ctx := context.Background()

	if err := s.SetWithTTL(ctx, "otp:a", []byte{1, 2, 3}, 10*time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := s.Get(ctx, "otp:a")
	if err != nil || len(got) != 3 {
		t.Fatalf("get = %v, %v", got, err)
	}

	ttl, err := s.TTL(ctx, "otp:a")
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 0 || ttl > 10*time.Second {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	mr.FastForward(11 * time.Second)
	if _, err := s.Get(ctx, "otp:a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStoreTTLSentinels(t *testing.T) {
	s, _, rdb := newRedisStoreTest(t)
	ctx := context.Background()

	if ttl, err := s.TTL(ctx, "missing"); err != nil || ttl != TTLMissing {
		t.Fatalf("missing ttl = %v, %v", ttl, err)
	}
	if err := rdb.Set(ctx, "forever", "1", 0).Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if ttl, err := s.TTL(ctx, "forever"); err != nil || ttl != TTLNoExpiry {
		t.Fatalf("persistent ttl = %v, %v", ttl, err)
	}
}

func TestRedisStoreRejectsNonPositiveTTL(t *testing.T) {
	s, mr, _ := newRedisStoreTest(t)
	if err := s.SetWithTTL(context.Background(), "k", []byte("v"), 0); !errors.Is(err, ErrInvalidTTL) {
		t.Fatalf("expected ErrInvalidTTL, got %v", err)
	}
	if mr.Exists("k") {
		t.Fatal("key must not be written without ttl")
	}
}

func TestRedisStoreDeleteAndScan(t *testing.T) {
	s, _, _ := newRedisStoreTest(t)
	ctx := context.Background()
	for i := 0; i < 1200; i++ {
		key := "draft:p1:" + time.Duration(i).String()
		if err := s.SetWithTTL(ctx, key, []byte("x"), time.Minute); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	_ = s.SetWithTTL(ctx, "draft:p2:1", []byte("x"), time.Minute)

	keys, err := s.KeysMatching(ctx, "draft:p1:*")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(keys) != 1200 {
		t.Fatalf("scanned %d keys, want 1200", len(keys))
	}

	n, err := s.Delete(ctx, keys...)
	if err != nil || n != 1200 {
		t.Fatalf("delete = %d, %v", n, err)
	}
	n, err = s.Delete(ctx)
	if err != nil || n != 0 {
		t.Fatalf("empty delete = %d, %v", n, err)
	}

	rest, _ := s.KeysMatching(ctx, "draft:*")
	sort.Strings(rest)
	if len(rest) != 1 || rest[0] != "draft:p2:1" {
		t.Fatalf("unexpected remaining keys %v", rest)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	s := NewRedisStore(rdb)
	mr.Close()

	if _, err := s.Get(context.Background(), "k"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestRedisStoreCompareAndSwap(t *testing.T) {
	s, mr, _ := newRedisStoreTest(t)
	ctx := context.Background()
	old := []byte{1, 0, 0, 255}
	if err := s.SetWithTTL(ctx, "otp:a", old, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	if ok, err := s.CompareAndSwap(ctx, "otp:a", []byte{9}, []byte{2}, time.Minute); err != nil || ok {
		t.Fatalf("stale swap = %v, %v", ok, err)
	}
	if ok, err := s.CompareAndSwap(ctx, "otp:a", old, []byte{2, 0}, 20*time.Second); err != nil || !ok {
		t.Fatalf("swap = %v, %v", ok, err)
	}
	got, _ := s.Get(ctx, "otp:a")
	if len(got) != 2 || got[0] != 2 {
		t.Fatalf("value = %v", got)
	}
	if ttl := mr.TTL("otp:a"); ttl != 20*time.Second {
		t.Fatalf("ttl = %v, want 20s", ttl)
	}
	if ok, err := s.CompareAndSwap(ctx, "otp:missing", nil, []byte{1}, time.Minute); err != nil || ok {
		t.Fatalf("missing swap = %v, %v", ok, err)
	}
	if mr.Exists("otp:missing") {
		t.Fatal("swap must not create keys")
	}
}

func TestRedisStoreCompareAndDelete(t *testing.T) {
	s, mr, _ := newRedisStoreTest(t)
	ctx := context.Background()
	_ = s.SetWithTTL(ctx, "otp:a", []byte("v1"), time.Minute)

	if ok, err := s.CompareAndDelete(ctx, "otp:a", []byte("v0")); err != nil || ok {
		t.Fatalf("stale delete = %v, %v", ok, err)
	}
	if ok, err := s.CompareAndDelete(ctx, "otp:a", []byte("v1")); err != nil || !ok {
		t.Fatalf("delete = %v, %v", ok, err)
	}
	if mr.Exists("otp:a") {
		t.Fatal("key still present")
	}
}
