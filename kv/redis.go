package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatchSize = 500

// compareAndSwapLua rewrites KEYS[1] only while it still holds ARGV[1].
//
// ARGV[1] = expected value
// ARGV[2] = replacement value
// ARGV[3] = ttl in milliseconds
var compareAndSwapLua = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// compareAndDeleteLua deletes KEYS[1] only while it still holds ARGV[1].
var compareAndDeleteLua = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur ~= ARGV[1] then
  return 0
end
redis.call('DEL', KEYS[1])
return 1
`)

// RedisStore implements [Store] on a go-redis client.
type RedisStore struct {
	redis redis.UniversalClient
}

// NewRedisStore wraps an existing client. The store does not own the client's
// lifecycle; closing it is the caller's responsibility.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{redis: client}
}

// Get returns the raw value for key or [ErrNotFound].
//
//	Performance: 1 Redis GET.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return data, nil
}

// SetWithTTL stores value with the given TTL. Sub-second TTLs are sent with
// millisecond precision by go-redis.
//
//	Performance: 1 Redis SET.
func (s *RedisStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	if err := s.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Delete removes keys. Deleting nothing is not an error.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.redis.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// CompareAndSwap replaces the value of key when it still equals old. The
// TTL is rounded up to whole milliseconds.
//
//	Performance: 1 Lua script (GET + SET).
func (s *RedisStore) CompareAndSwap(ctx context.Context, key string, old, value []byte, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	ms := (ttl + time.Millisecond - 1).Milliseconds()
	n, err := compareAndSwapLua.Run(ctx, s.redis, []string{key}, old, value, ms).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n == 1, nil
}

// CompareAndDelete removes key when its value still equals old.
//
//	Performance: 1 Lua script (GET + DEL).
func (s *RedisStore) CompareAndDelete(ctx context.Context, key string, old []byte) (bool, error) {
	n, err := compareAndDeleteLua.Run(ctx, s.redis, []string{key}, old).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n == 1, nil
}

// TTL returns the remaining lifetime of key using PTTL.
func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.redis.PTTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// go-redis reports -1/-2 as raw durations, which line up with
	// TTLNoExpiry and TTLMissing.
	return ttl, nil
}

// KeysMatching walks the keyspace with SCAN MATCH. Callers must pass a
// prefix-anchored pattern; the store never issues KEYS.
//
//	Performance: O(n) over the scanned keyspace; maintenance paths only.
func (s *RedisStore) KeysMatching(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		out    []string
	)
	seen := make(map[string]struct{})

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		for _, k := range keys {
			// SCAN may return a key more than once across iterations.
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return out, nil
}
