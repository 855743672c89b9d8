// Package enforce applies mitigation decisions at the perimeter. Enforcement
// state lives in Redis with a TTL, so entries lapse on their own even if the
// expiry sweeper never gets to them.
package enforce

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefixes read by the perimeter interceptor.
const (
	blockKeyPrefix     = "blocked_ip:"
	challengeKeyPrefix = "require_captcha:"
	throttleKeyPrefix  = "rate_limit_strict:"
)

// Enforcer is the enforcement-point interface the executor drives.
type Enforcer interface {
	ApplyBlock(ctx context.Context, identity string, duration time.Duration) error
	RemoveBlock(ctx context.Context, identity string) error
	ApplyChallenge(ctx context.Context, identity string, duration time.Duration) error
	RemoveChallenge(ctx context.Context, identity string) error
	ApplyThrottle(ctx context.Context, identity string, duration time.Duration) error
	RemoveThrottle(ctx context.Context, identity string) error
	IsBlocked(ctx context.Context, identity string) (bool, error)
	ListBlocked(ctx context.Context) ([]string, error)
}

// RedisEnforcer implements Enforcer over Redis keys.
type RedisEnforcer struct {
	client *redis.Client
}

// NewRedisEnforcer creates an enforcer from a Redis URL.
func NewRedisEnforcer(redisURL string, poolSize int) (*RedisEnforcer, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if poolSize > 0 {
		opt.PoolSize = poolSize
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisEnforcer{client: client}, nil
}

// NewRedisEnforcerWithClient wraps an existing client. Used by tests and by
// callers that share one connection pool.
func NewRedisEnforcerWithClient(client *redis.Client) *RedisEnforcer {
	return &RedisEnforcer{client: client}
}

// apply SETs a marker with the enforcement duration as TTL. Re-applying to
// the same identity just resets the expiry.
func (e *RedisEnforcer) apply(ctx context.Context, prefix, identity string, duration time.Duration) error {
	if err := e.client.Set(ctx, prefix+identity, time.Now().UTC().Format(time.RFC3339), duration).Err(); err != nil {
		return fmt.Errorf("failed to set %s%s: %w", prefix, identity, err)
	}
	return nil
}

func (e *RedisEnforcer) remove(ctx context.Context, prefix, identity string) error {
	if err := e.client.Del(ctx, prefix+identity).Err(); err != nil {
		return fmt.Errorf("failed to delete %s%s: %w", prefix, identity, err)
	}
	return nil
}

// ApplyBlock denies all traffic from the identity for the duration.
func (e *RedisEnforcer) ApplyBlock(ctx context.Context, identity string, duration time.Duration) error {
	return e.apply(ctx, blockKeyPrefix, identity, duration)
}

// RemoveBlock lifts a block. Removing an absent block is not an error.
func (e *RedisEnforcer) RemoveBlock(ctx context.Context, identity string) error {
	return e.remove(ctx, blockKeyPrefix, identity)
}

// ApplyChallenge requires a CAPTCHA from the identity for the duration.
func (e *RedisEnforcer) ApplyChallenge(ctx context.Context, identity string, duration time.Duration) error {
	return e.apply(ctx, challengeKeyPrefix, identity, duration)
}

// RemoveChallenge lifts a CAPTCHA requirement.
func (e *RedisEnforcer) RemoveChallenge(ctx context.Context, identity string) error {
	return e.remove(ctx, challengeKeyPrefix, identity)
}

// ApplyThrottle puts the identity under strict rate limiting for the duration.
func (e *RedisEnforcer) ApplyThrottle(ctx context.Context, identity string, duration time.Duration) error {
	return e.apply(ctx, throttleKeyPrefix, identity, duration)
}

// RemoveThrottle lifts strict rate limiting.
func (e *RedisEnforcer) RemoveThrottle(ctx context.Context, identity string) error {
	return e.remove(ctx, throttleKeyPrefix, identity)
}

// IsBlocked reports whether an active block marker exists for the identity.
func (e *RedisEnforcer) IsBlocked(ctx context.Context, identity string) (bool, error) {
	n, err := e.client.Exists(ctx, blockKeyPrefix+identity).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check block for %s: %w", identity, err)
	}
	return n > 0, nil
}

// ListBlocked returns the identities with active block markers.
func (e *RedisEnforcer) ListBlocked(ctx context.Context) ([]string, error) {
	var (
		out    []string
		cursor uint64
	)
	for {
		keys, next, err := e.client.Scan(ctx, cursor, blockKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan blocked identities: %w", err)
		}
		for _, k := range keys {
			out = append(out, k[len(blockKeyPrefix):])
		}
		cursor = next
		if cursor == 0 {
			return out, nil
		}
	}
}

// Close releases the Redis client.
func (e *RedisEnforcer) Close() error {
	return e.client.Close()
}
