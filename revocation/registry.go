package revocation

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/MrEthical07/fleetAuth/internal"
	"github.com/MrEthical07/fleetAuth/kv"
)

// DefaultKeyPrefix namespaces revocation entries.
const DefaultKeyPrefix = "rvk"

// ErrEmptyToken is returned when an empty token is revoked.
var ErrEmptyToken = errors.New("revocation: empty token")

// Registry is the token blacklist. It holds no state besides the store.
type Registry struct {
	store  kv.Store
	prefix string
	now    func() time.Time
}

// NewRegistry returns a registry over store. Empty prefix and nil now take
// defaults.
func NewRegistry(store kv.Store, prefix string, now func() time.Time) *Registry {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if now == nil {
		now = time.Now
	}
	return &Registry{store: store, prefix: prefix, now: now}
}

// Key returns the store key for token. The raw token never appears in it.
func (r *Registry) Key(token string) string {
	return r.prefix + ":" + internal.HashSecretHex(token)
}

// Revoke blacklists token until naturalExpiry. It reports whether an entry
// was written; tokens already past their expiry are skipped.
//
// The stored value is the natural expiry in unix millis so that maintenance
// can detect stale entries even when store expiry lags.
//
//	Performance: 1 store write.
func (r *Registry) Revoke(ctx context.Context, token string, naturalExpiry time.Time) (bool, error) {
	if token == "" {
		return false, ErrEmptyToken
	}
	ttl := naturalExpiry.Sub(r.now())
	if ttl <= 0 {
		return false, nil
	}

	var marker [8]byte
	binary.BigEndian.PutUint64(marker[:], uint64(naturalExpiry.UnixMilli()))
	if err := r.store.SetWithTTL(ctx, r.Key(token), marker[:], ttl); err != nil {
		return false, err
	}
	return true, nil
}

// IsRevoked reports whether token is blacklisted. An entry whose recorded
// natural expiry has passed counts as absent.
//
//	Performance: 1 store read.
func (r *Registry) IsRevoked(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	data, err := r.store.Get(ctx, r.Key(token))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if exp, ok := decodeMarker(data); ok && !r.now().Before(exp) {
		return false, nil
	}
	return true, nil
}

// Unrevoke removes token from the registry. Removing an absent entry is not
// an error.
func (r *Registry) Unrevoke(ctx context.Context, token string) error {
	_, err := r.store.Delete(ctx, r.Key(token))
	return err
}

// Count returns the number of entries currently stored.
//
//	Performance: O(n) prefix scan.
func (r *Registry) Count(ctx context.Context) (int, error) {
	keys, err := r.store.KeysMatching(ctx, r.prefix+":*")
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// SweepStale deletes entries that have no expiry, a non-positive TTL, or a
// recorded natural expiry in the past. It returns the number removed and is
// safe to run alongside normal traffic.
//
//	Performance: O(n) prefix scan plus one TTL read per entry.
func (r *Registry) SweepStale(ctx context.Context) (int, error) {
	keys, err := r.store.KeysMatching(ctx, r.prefix+":*")
	if err != nil {
		return 0, err
	}

	now := r.now()
	var stale []string
	for _, key := range keys {
		ttl, err := r.store.TTL(ctx, key)
		if err != nil {
			return 0, err
		}
		if ttl == kv.TTLMissing {
			continue
		}
		if ttl == kv.TTLNoExpiry || ttl <= 0 {
			stale = append(stale, key)
			continue
		}
		data, err := r.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, kv.ErrNotFound) {
				continue
			}
			return 0, err
		}
		if exp, ok := decodeMarker(data); ok && !now.Before(exp) {
			stale = append(stale, key)
		}
	}

	if len(stale) == 0 {
		return 0, nil
	}
	n, err := r.store.Delete(ctx, stale...)
	return int(n), err
}

func decodeMarker(data []byte) (time.Time, bool) {
	if len(data) != 8 {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(binary.BigEndian.Uint64(data))), true
}
