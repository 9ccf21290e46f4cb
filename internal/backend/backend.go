package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/passkeyhq/passkey-backend/internal/cache"
	"github.com/passkeyhq/passkey-backend/internal/storage"
	"github.com/passkeyhq/passkey-backend/internal/storage/memory"
	"github.com/passkeyhq/passkey-backend/internal/storage/mongodb"
	"github.com/passkeyhq/passkey-backend/pkg/config"
)

// NewStore creates a storage backend based on configuration
func NewStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Storage.Type {
	case "memory":
		logger.Info("using in-memory storage")
		return memory.NewStore(), nil

	case "mongodb":
		logger.Info("using MongoDB storage",
			zap.String("database", cfg.Storage.MongoDB.Database))
		store, err := mongodb.NewStore(ctx, &cfg.Storage.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("failed to create MongoDB store: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}
}

// NewChallengeCache creates a challenge cache based on configuration
func NewChallengeCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.ChallengeCache, error) {
	switch cfg.Cache.Type {
	case "memory":
		logger.Info("using in-memory challenge cache")
		return cache.NewMemoryCache(), nil

	case "redis":
		logger.Info("using Redis challenge cache",
			zap.String("address", cfg.Cache.Redis.Address))
		c, err := cache.NewRedisCache(ctx, &cfg.Cache.Redis, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis cache: %w", err)
		}
		return c, nil

	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Cache.Type)
	}
}
