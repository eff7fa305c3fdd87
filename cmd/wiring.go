package main

import (
	"fmt"

	"go.uber.org/zap"

	"story-o-matic/server/internal/config"
	"story-o-matic/server/internal/interfaces"
	"story-o-matic/server/internal/storage"
)

// openStore connects the key-value store named by storage.driver.
func openStore(cfg config.StorageConfig, logger *zap.Logger) (interfaces.KeyValueStore, error) {
	switch cfg.Driver {
	case config.StorageRedis:
		store, err := storage.NewRedisStore(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Info("Redis connected successfully", zap.String("host", cfg.Redis.Host), zap.Int("port", cfg.Redis.Port))
		return store, nil
	case config.StorageMySQL:
		store, err := storage.NewMySQLStore(cfg.MySQL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
		}
		logger.Info("MySQL connected successfully", zap.String("host", cfg.MySQL.Host), zap.String("database", cfg.MySQL.Database))
		return store, nil
	default:
		logger.Warn("Using in-memory storage; stories are lost on exit")
		return storage.NewMemoryStore(), nil
	}
}

// openRepository opens the configured store and wraps it in a story repository.
func openRepository(cfg *config.Config, logger *zap.Logger) (*storage.Repository, func(), error) {
	kv, err := openStore(cfg.Storage, logger)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := kv.Close(); err != nil {
			logger.Warn("Failed to close store", zap.Error(err))
		}
	}
	return storage.NewRepository(kv, cfg.Storage.KeyPrefix), closeFn, nil
}
