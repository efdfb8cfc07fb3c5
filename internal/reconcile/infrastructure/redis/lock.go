package redis

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"scentroute-cloud/internal/config"
)

// NewClient builds a client from config. It returns nil when no address is set.
func NewClient(cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Locker takes per-key locks with SET NX.
type Locker struct {
	client *redis.Client
	owner  string
}

// NewLocker constructs a Locker.
func NewLocker(client *redis.Client) (*Locker, error) {
	if client == nil {
		return nil, errors.New("redis locker: nil client")
	}
	owner, _ := os.Hostname()
	if owner == "" {
		owner = "scentroute"
	}
	return &Locker{client: client, owner: owner}, nil
}

// TryLock reports whether the caller now holds key.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, l.owner, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Ping checks connectivity.
func (l *Locker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
