package kv

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by Get when the key does not exist or has expired.
	ErrNotFound = errors.New("kv: key not found")
	// ErrUnavailable wraps transport or server failures.
	ErrUnavailable = errors.New("kv: store unavailable")
	// ErrInvalidTTL is returned when a write is attempted without a positive TTL.
	ErrInvalidTTL = errors.New("kv: ttl must be > 0")
)

const (
	// TTLNoExpiry is reported by TTL for a key that exists without an expiry.
	TTLNoExpiry time.Duration = -1
	// TTLMissing is reported by TTL for a key that does not exist.
	TTLMissing time.Duration = -2
)

// Store is the TTL key-value capability. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes the given keys and reports how many existed.
	Delete(ctx context.Context, keys ...string) (int64, error)
	// TTL returns the remaining lifetime, or TTLNoExpiry / TTLMissing.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// KeysMatching returns keys matching a Redis-style glob pattern.
	KeysMatching(ctx context.Context, pattern string) ([]string, error)
	// CompareAndSwap writes value with ttl only while key still holds old.
	// A missing key never matches.
	CompareAndSwap(ctx context.Context, key string, old, value []byte, ttl time.Duration) (bool, error)
	// CompareAndDelete removes key only while it still holds old.
	CompareAndDelete(ctx context.Context, key string, old []byte) (bool, error)
}

// EscapePattern escapes glob metacharacters so that s matches only itself
// when embedded in a KeysMatching pattern.
func EscapePattern(s string) string {
	if !strings.ContainsAny(s, `*?[]\{}`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\', '{', '}':
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
