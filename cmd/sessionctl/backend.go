package main

import (
	"context"
	"fmt"

	"github.com/MrEthical07/goSession/config"
	"github.com/MrEthical07/goSession/store"
	"github.com/redis/go-redis/v9"
)

func openBackend(ctx context.Context, cfg config.StoreConfig) (store.Backend, func() error, error) {
	switch cfg.Kind {
	case config.StoreMemory:
		return store.NewMemoryBackend(), nil, nil
	case config.StoreFile:
		b, err := store.NewFileBackend(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return b, nil, nil
	case config.StoreSQLite:
		b, err := store.OpenSQLiteBackend(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	case config.StoreRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return store.NewRedisBackend(client), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
}
