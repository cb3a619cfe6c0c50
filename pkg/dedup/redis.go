package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	URL       string
	KeyPrefix string
	TTL       time.Duration
}

type redisGuard struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedis shares seen keys across consumer instances.
func NewRedis(ctx context.Context, cfg RedisConfig) (Guard, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisWithClient(client, cfg.KeyPrefix, cfg.TTL), nil
}

func NewRedisWithClient(client redis.UniversalClient, prefix string, ttl time.Duration) Guard {
	if prefix == "" {
		prefix = "notification:dedup:"
	}
	return &redisGuard{client: client, prefix: prefix, ttl: ttl}
}

func (g *redisGuard) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.prefix+key, 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup acquire: %w", err)
	}
	return ok, nil
}

func (g *redisGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, g.prefix+key).Err(); err != nil {
		return fmt.Errorf("dedup release: %w", err)
	}
	return nil
}

func (g *redisGuard) Close() error {
	return g.client.Close()
}
