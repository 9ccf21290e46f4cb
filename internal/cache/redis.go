package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/passkeyhq/passkey-backend/internal/domain"
	"github.com/passkeyhq/passkey-backend/pkg/config"
)

// RedisCache is a Redis-backed ChallengeCache. Expiry is enforced by the
// key TTL, and GETDEL makes consumption atomic across replicas of the
// service.
type RedisCache struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg *config.RedisConfig, logger *zap.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisCache{
		client: client,
		prefix: cfg.KeyPrefix,
		logger: logger.Named("redis_cache"),
	}, nil
}

func (c *RedisCache) Put(ctx context.Context, challenge *domain.Challenge, ttl time.Duration) error {
	challenge.ExpiresAt = time.Now().Add(ttl)

	data, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %w", err)
	}

	if err := c.client.Set(ctx, c.prefix+challenge.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}
	return nil
}

func (c *RedisCache) Take(ctx context.Context, id string) (*domain.Challenge, error) {
	data, err := c.client.GetDel(ctx, c.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to take challenge: %w", err)
	}

	var challenge domain.Challenge
	if err := json.Unmarshal(data, &challenge); err != nil {
		return nil, fmt.Errorf("failed to unmarshal challenge: %w", err)
	}

	// The key TTL already bounds the lifetime; this guards against clock
	// drift between writers.
	if challenge.IsExpired() {
		return nil, ErrNotFound
	}
	return &challenge, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
