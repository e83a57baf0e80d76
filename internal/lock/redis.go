package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"collabtodo/internal/metrics"
)

// releaseScript deletes the key only if it still holds our token, so a lock
// that expired and was taken by someone else is never released by us.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RedisConfig tunes a Redis locker.
type RedisConfig struct {
	// Prefix is prepended to every key.
	Prefix string
	// TTL bounds how long a crashed holder can block others.
	TTL time.Duration
	// Timeout bounds the wait for a busy key.
	Timeout time.Duration
	// RetryInterval is the pause between acquisition attempts.
	RetryInterval time.Duration
}

// DefaultRedisConfig returns the settings used when none are given.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Prefix:        "collabtodo:lock:",
		TTL:           10 * time.Second,
		Timeout:       3 * time.Second,
		RetryInterval: 25 * time.Millisecond,
	}
}

// Redis is a Locker shared by every instance that talks to the same Redis.
type Redis struct {
	client redis.UniversalClient
	config RedisConfig
	logger *slog.Logger
}

var _ Locker = (*Redis)(nil)

// NewRedis creates a Redis backed locker.
func NewRedis(client redis.UniversalClient, config RedisConfig, logger *slog.Logger) *Redis {
	defaults := DefaultRedisConfig()
	if config.Prefix == "" {
		config.Prefix = defaults.Prefix
	}
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = defaults.RetryInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, config: config, logger: logger}
}

// Lock polls SET NX PX until the key is acquired or the wait is over.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	redisKey := r.config.Prefix + key
	token := uuid.NewString()
	start := time.Now()

	ticker := time.NewTicker(r.config.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.config.TTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, waitError("redis", key, ctx.Err())
			}
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			metrics.LockWaitDuration.WithLabelValues("redis").Observe(time.Since(start).Seconds())
			var once sync.Once
			return func() {
				once.Do(func() { r.release(redisKey, token) })
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, waitError("redis", key, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (r *Redis) release(redisKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, r.client, []string{redisKey}, token).Err(); err != nil {
		r.logger.Warn("failed to release task lock",
			slog.String("key", redisKey),
			slog.String("error", err.Error()))
	}
}
