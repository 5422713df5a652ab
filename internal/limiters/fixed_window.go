package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRateLimited        = errors.New("rate limited")
	ErrLimiterUnavailable = errors.New("limiter unavailable")
)

// FixedWindowConfig sets the budget for one namespace.
type FixedWindowConfig struct {
	Namespace string
	Max       int
	Window    time.Duration
}

// FixedWindow counts calls per subject with INCR and starts the window with
// EXPIRE on the first call.
type FixedWindow struct {
	redis  redis.UniversalClient
	config FixedWindowConfig
}

func NewFixedWindow(redisClient redis.UniversalClient, cfg FixedWindowConfig) *FixedWindow {
	return &FixedWindow{
		redis:  redisClient,
		config: cfg,
	}
}

// Key returns the counter key for subject.
func (l *FixedWindow) Key(subject string) string {
	return "rl:" + l.config.Namespace + ":" + subject
}

// Allow records one call for subject and returns ErrRateLimited once the
// window budget is spent.
func (l *FixedWindow) Allow(ctx context.Context, subject string) error {
	if l == nil || l.config.Max <= 0 {
		return nil
	}
	key := l.Key(subject)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
		}
	}

	if count > int64(l.config.Max) {
		return ErrRateLimited
	}

	return nil
}

// Remaining returns the calls left in the current window.
func (l *FixedWindow) Remaining(ctx context.Context, subject string) (int, error) {
	if l == nil {
		return 0, nil
	}
	count, err := l.redis.Get(ctx, l.Key(subject)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return l.config.Max, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	left := int64(l.config.Max) - count
	if left < 0 {
		left = 0
	}
	return int(left), nil
}

// Reset clears the counter for subject.
func (l *FixedWindow) Reset(ctx context.Context, subject string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.Key(subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	return nil
}
