package sweep

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/stockledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// deleteIfOwner removes the lease key only while it still carries our holder token,
// so a replica whose lease expired cannot free a lease another replica now holds.
var deleteIfOwner = redis.NewScript(`
local holder = redis.call("get", KEYS[1])
if holder == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0
`)

// Lock hands out a lease on the scheduled sweep so only one replica runs it per tick.
type Lock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, bool, error)
}

// Release gives a lease back. Releasing an expired or taken-over lease is a no-op.
type Release func(ctx context.Context) error

type redisLock struct {
	client redis.UniversalClient
	holder string
}

func newRedisLock(client redis.UniversalClient) *redisLock {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "stockledger"
	}
	return &redisLock{client: client, holder: host}
}

// Acquire stores "<hostname>/<uuid>" under key so the current owner is visible in redis.
func (l *redisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (Release, bool, error) {
	if ttl <= 0 {
		return nil, false, fmt.Errorf("sweep lease %q: ttl must be positive", key)
	}
	token := l.holder + "/" + uuid.NewString()
	acquired, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("sweep lease %q: %w", key, err)
	}
	if !acquired {
		return nil, false, nil
	}
	return func(ctx context.Context) error {
		return deleteIfOwner.Run(ctx, l.client, []string{key}, token).Err()
	}, true, nil
}

// ProvideLock returns nil when no redis address is configured; sweeps then rely on
// the in-process guard alone.
func ProvideLock(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Lock {
	if !cfg.Redis.Enabled() {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	log = log.Named("sweep")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("redis unreachable, scheduled sweeps will run unguarded until it recovers",
					zap.String("addr", cfg.Redis.Addr),
					zap.Error(err),
				)
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	log.Info("redis sweep lease enabled", zap.String("addr", cfg.Redis.Addr))
	return newRedisLock(client)
}
