package revocation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/fleetAuth/kv"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newRegistryTest(t *testing.T) (*Registry, *miniredis.Miniredis, *redis.Client, *testClock) {
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
	clk := &testClock{t: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}
	return NewRegistry(kv.NewRedisStore(rdb), "", clk.Now), mr, rdb, clk
}

func TestRevokeUsesRemainingLifetime(t *testing.T) {
	reg, mr, _, clk := newRegistryTest(t)
	ctx := context.Background()

	issued := clk.Now()
	expiry := issued.Add(15 * time.Minute)
	clk.Advance(10 * time.Minute)

	wrote, err := reg.Revoke(ctx, "token-a", expiry)
	if err != nil || !wrote {
		t.Fatalf("revoke = %v, %v", wrote, err)
	}
	revoked, err := reg.IsRevoked(ctx, "token-a")
	if err != nil || !revoked {
		t.Fatalf("isRevoked = %v, %v", revoked, err)
	}

	ttl := mr.TTL(reg.Key("token-a"))
	if ttl != 5*time.Minute {
		t.Fatalf("ttl = %v, want remaining 5m (not full 15m)", ttl)
	}

	mr.FastForward(5 * time.Minute)
	if revoked, _ := reg.IsRevoked(ctx, "token-a"); revoked {
		t.Fatal("entry should self-expire with the token")
	}
}

func TestRevokeExpiredTokenIsNoop(t *testing.T) {
	reg, mr, _, clk := newRegistryTest(t)
	ctx := context.Background()

	for _, exp := range []time.Time{clk.Now(), clk.Now().Add(-time.Minute)} {
		wrote, err := reg.Revoke(ctx, "old-token", exp)
		if err != nil || wrote {
			t.Fatalf("revoke expired = %v, %v", wrote, err)
		}
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("expected no entries, got %v", mr.Keys())
	}
}

func TestKeyNeverContainsRawToken(t *testing.T) {
	reg, _, _, _ := newRegistryTest(t)
	token := "eyJhbGciOiJIUzI1NiJ9.payload.signature"
	key := reg.Key(token)
	if strings.Contains(key, token) || strings.Contains(key, "payload") {
		t.Fatalf("key leaks token: %s", key)
	}
	if len(key) != len("rvk:")+64 {
		t.Fatalf("unexpected key length %d", len(key))
	}
}

func TestUnrevokeAndCount(t *testing.T) {
	reg, _, _, clk := newRegistryTest(t)
	ctx := context.Background()
	exp := clk.Now().Add(time.Hour)

	_, _ = reg.Revoke(ctx, "t1", exp)
	_, _ = reg.Revoke(ctx, "t2", exp)
	if n, err := reg.Count(ctx); err != nil || n != 2 {
		t.Fatalf("count = %d, %v", n, err)
	}

	if err := reg.Unrevoke(ctx, "t1"); err != nil {
		t.Fatalf("unrevoke: %v", err)
	}
	if err := reg.Unrevoke(ctx, "t1"); err != nil {
		t.Fatalf("second unrevoke: %v", err)
	}
	if revoked, _ := reg.IsRevoked(ctx, "t1"); revoked {
		t.Fatal("t1 should no longer be revoked")
	}
	if n, _ := reg.Count(ctx); n != 1 {
		t.Fatalf("count after unrevoke = %d", n)
	}
}

func TestSweepStaleRemovesUnboundedAndLaggingEntries(t *testing.T) {
	reg, _, rdb, clk := newRegistryTest(t)
	ctx := context.Background()

	_, _ = reg.Revoke(ctx, "live", clk.Now().Add(time.Hour))
	_, _ = reg.Revoke(ctx, "lagging", clk.Now().Add(time.Minute))
	if err := rdb.Set(ctx, reg.Key("forever"), "x", 0).Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := rdb.Set(ctx, "other:keep", "x", 0).Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Registry clock moves past the lagging entry's natural expiry while the
	// store has not expired it yet.
	clk.Advance(2 * time.Minute)
	if revoked, _ := reg.IsRevoked(ctx, "lagging"); revoked {
		t.Fatal("entry past natural expiry must not count as revoked")
	}

	removed, err := reg.SweepStale(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if revoked, _ := reg.IsRevoked(ctx, "live"); !revoked {
		t.Fatal("live entry must survive sweep")
	}
	if n, _ := rdb.Exists(ctx, "other:keep").Result(); n != 1 {
		t.Fatal("sweep must stay inside the registry prefix")
	}
}

func TestRevokeRejectsEmptyToken(t *testing.T) {
	reg, _, _, clk := newRegistryTest(t)
	if _, err := reg.Revoke(context.Background(), "", clk.Now().Add(time.Hour)); err != ErrEmptyToken {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
}
