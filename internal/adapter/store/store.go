// Package store selects the domain.KVStore backend from configuration.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/store/boltstore"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/store/filestore"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/store/memstore"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/store/redisstore"
	"github.com/fairyhunter13/airdrop-analyzer/internal/config"
	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

// Open returns the configured backend and a close func that is always non-nil.
func Open(ctx context.Context, cfg config.Config) (domain.KVStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.StoreBackend {
	case config.StoreFile, "":
		s, err := filestore.New(cfg.DataDir)
		if err != nil {
			return nil, noop, fmt.Errorf("op=store.Open: %w", err)
		}
		slog.Info("kv store ready", slog.String("backend", config.StoreFile), slog.String("dir", cfg.DataDir))
		return s, noop, nil
	case config.StoreRedis:
		s, rdb, err := redisstore.Dial(ctx, cfg.RedisURL, cfg.StoreKeyPrefix)
		if err != nil {
			return nil, noop, fmt.Errorf("op=store.Open: %w", err)
		}
		slog.Info("kv store ready", slog.String("backend", config.StoreRedis), slog.String("prefix", cfg.StoreKeyPrefix))
		return s, rdb.Close, nil
	case config.StoreBolt:
		s, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, noop, fmt.Errorf("op=store.Open: %w", err)
		}
		slog.Info("kv store ready", slog.String("backend", config.StoreBolt), slog.String("path", cfg.BoltPath))
		return s, s.Close, nil
	case config.StoreMemory:
		s, err := memstore.New(cfg.MemoryStoreSize)
		if err != nil {
			return nil, noop, fmt.Errorf("op=store.Open: %w", err)
		}
		slog.Warn("kv store is in-memory; key pool and cache reset on restart")
		return s, noop, nil
	default:
		return nil, noop, fmt.Errorf("op=store.Open: %w: backend %q", domain.ErrInvalidArgument, cfg.StoreBackend)
	}
}
