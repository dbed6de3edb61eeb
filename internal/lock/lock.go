package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/config"
)

var ErrHeld = errors.New("lock is held by another run")

// Release gives a lock back. It is safe to call after the lock expired.
type Release func(ctx context.Context) error

type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// Noop grants every lock; used when no redis is configured.
type Noop struct{}

func (Noop) Acquire(context.Context, string) (Release, error) {
	return func(context.Context) error { return nil }, nil
}

// Deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.SugaredLogger
}

func NewRedis(client *redis.Client, ttl time.Duration, logger *zap.SugaredLogger) *Redis {
	return &Redis{client: client, ttl: ttl, logger: logger}
}

// New returns a redis locker when an address is configured and Noop otherwise.
func New(ctx context.Context, cfg config.Redis, logger *zap.SugaredLogger) (Locker, func() error, error) {
	if cfg.Addr == "" {
		return Noop{}, func() error { return nil }, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	logger.Infow("Redis connected", "addr", cfg.Addr, "db", cfg.DB)
	return NewRedis(client, cfg.LockTTL, logger), client.Close, nil
}

func (r *Redis) Acquire(ctx context.Context, key string) (Release, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("acquire %s: %w", key, ErrHeld)
	}
	r.logger.Debugw("Lock acquired", "key", key, "ttl", r.ttl)
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("release %s: %w", key, err)
		}
		return nil
	}, nil
}
