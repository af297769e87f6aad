// Package app wires adapters into the processes in cmd/.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/ai/keypool"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/ai/openrouter"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/ai/resolver"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/ai/resultcache"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/ratelimit"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/store"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/store/redisstore"
	"github.com/fairyhunter13/airdrop-analyzer/internal/config"
	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

// Runtime holds the orchestration components shared by every process.
type Runtime struct {
	Store    domain.KVStore
	Pool     *keypool.Pool
	Resolver *resolver.Resolver
	Cache    *resultcache.Cache
	Client   *openrouter.Client
	// Limiter is nil unless AI_RATE_LIMIT_PER_MIN is set on the redis backend.
	Limiter  *ratelimit.Limiter

	closeStore func() error
}

// NewRuntime opens the KV store, loads the credential pool and catalog and
// builds the orchestrating client. Keys from OPENROUTER_API_KEYS are added
// to the pool; keys already persisted keep their usage metadata.
func NewRuntime(ctx context.Context, cfg config.Config) (*Runtime, error) {
	kv, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rt, err := newRuntimeWithStore(ctx, cfg, kv)
	if err != nil {
		_ = closeStore()
		return nil, err
	}
	rt.closeStore = closeStore
	return rt, nil
}

func newRuntimeWithStore(ctx context.Context, cfg config.Config, kv domain.KVStore) (*Runtime, error) {
	pool, err := keypool.New(ctx, kv)
	if err != nil {
		return nil, fmt.Errorf("op=app.NewRuntime: %w", err)
	}
	added := 0
	for _, k := range cfg.OpenRouterAPIKeys {
		ok, err := pool.Add(ctx, k)
		if err != nil && !errors.Is(err, domain.ErrInvalidArgument) {
			return nil, fmt.Errorf("op=app.NewRuntime: %w", err)
		}
		if ok {
			added++
		}
	}

	cat, err := resolver.LoadCatalog(cfg.ModelsFile)
	if err != nil {
		return nil, fmt.Errorf("op=app.NewRuntime: %w", err)
	}
	if len(cfg.FallbackModels) > 0 {
		cat.Fallback = cfg.FallbackModels
		if err := cat.Validate(); err != nil {
			return nil, fmt.Errorf("op=app.NewRuntime: %w", err)
		}
	}
	res := resolver.New(cat)
	cache := resultcache.New(kv, resultcache.WithTTL(cfg.CacheTTL))
	opts := openrouter.OptionsFromConfig(cfg)
	var limiter *ratelimit.Limiter
	if rs, ok := kv.(*redisstore.Store); ok {
		limiter = ratelimit.New(rs.Client(), ratelimit.PerMinute(cfg.AIRateLimitPerMin),
			ratelimit.WithPrefix(cfg.StoreKeyPrefix+"rate:"))
	} else if cfg.AIRateLimitPerMin > 0 {
		slog.Warn("AI_RATE_LIMIT_PER_MIN ignored without the redis store backend")
	}
	if limiter != nil {
		opts.Limiter = limiter
	}
	client := openrouter.New(pool, res, cache, opts)

	total, available := pool.Counts()
	slog.Info("orchestration runtime ready",
		slog.Int("keys_total", total),
		slog.Int("keys_available", available),
		slog.Int("keys_seeded", added),
		slog.Bool("prefer_free", client.PreferFree()),
		slog.Int("fallback_models", len(cat.Fallback)),
		slog.Bool("rate_limited", limiter != nil))

	return &Runtime{Store: kv, Pool: pool, Resolver: res, Cache: cache, Client: client, Limiter: limiter}, nil
}

// Close releases the KV store.
func (r *Runtime) Close() error {
	if r.closeStore == nil {
		return nil
	}
	return r.closeStore()
}
