package openrouter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/ai/keypool"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/ai/resolver"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/ai/resultcache"
	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

// AddKey inserts a credential. Duplicates report false without error.
func (c *Client) AddKey(ctx context.Context, key string) (bool, error) {
	added, err := c.pool.Add(ctx, key)
	if err != nil {
		return false, fmt.Errorf("op=openrouter.AddKey: %w", err)
	}
	c.publishAvailability()
	return added, nil
}

// RemoveKey deletes a credential by full key or hint.
func (c *Client) RemoveKey(ctx context.Context, keyOrHint string) error {
	if err := c.pool.Remove(ctx, keyOrHint); err != nil {
		return fmt.Errorf("op=openrouter.RemoveKey: %w", err)
	}
	c.dropCredential(keyOrHint)
	c.publishAvailability()
	return nil
}

// MarkKeyLimited flags a credential exhausted by hand.
func (c *Client) MarkKeyLimited(ctx context.Context, keyOrHint string) error {
	if err := c.pool.MarkExhausted(ctx, keyOrHint); err != nil {
		return fmt.Errorf("op=openrouter.MarkKeyLimited: %w", err)
	}
	c.dropCredential(keyOrHint)
	c.publishAvailability()
	return nil
}

// ListKeys returns masked credential status, reloaded first so keys and
// flags written by other processes show up. A failed reload serves the last
// roster seen.
func (c *Client) ListKeys(ctx context.Context) []keypool.KeyStatus {
	if err := c.pool.Refresh(ctx); err != nil {
		slog.Warn("key pool refresh failed", slog.Any("error", err))
	}
	c.publishAvailability()
	return c.pool.Status()
}

// ResetKeys clears every exhausted flag.
func (c *Client) ResetKeys(ctx context.Context) error {
	if err := c.pool.ResetAll(ctx); err != nil {
		return fmt.Errorf("op=openrouter.ResetKeys: %w", err)
	}
	c.credMu.Lock()
	if c.credSpent {
		c.credKey, c.credSpent = "", false
	}
	c.credMu.Unlock()
	c.publishAvailability()
	return nil
}

// SetPreferFree toggles free-tier resolution for subsequent requests.
func (c *Client) SetPreferFree(on bool) {
	if c.preferFree.Swap(on) != on {
		slog.Info("model preference changed", slog.Bool("prefer_free", on))
	}
}

// PreferFree reports the current preference.
func (c *Client) PreferFree() bool { return c.preferFree.Load() }

// ClearExpiredCache sweeps stale and corrupt cache entries.
func (c *Client) ClearExpiredCache(ctx context.Context) (int, error) {
	if c.cache == nil {
		return 0, fmt.Errorf("op=openrouter.ClearExpiredCache: %w: analysis cache disabled", domain.ErrNotFound)
	}
	n, err := c.cache.SweepExpired(ctx)
	if err != nil {
		return n, fmt.Errorf("op=openrouter.ClearExpiredCache: %w", err)
	}
	return n, nil
}

// CacheStats summarises the analysis cache.
func (c *Client) CacheStats(ctx context.Context) (resultcache.Stats, error) {
	if c.cache == nil {
		return resultcache.Stats{}, fmt.Errorf("op=openrouter.CacheStats: %w: analysis cache disabled", domain.ErrNotFound)
	}
	st, err := c.cache.Stats(ctx)
	if err != nil {
		return st, fmt.Errorf("op=openrouter.CacheStats: %w", err)
	}
	return st, nil
}

// ModelsView is the admin listing of the catalog.
type ModelsView struct {
	Free       []resolver.ModelInfo `json:"free"`
	Paid       []resolver.ModelInfo `json:"paid"`
	Fallback   []string             `json:"fallback"`
	Remembered map[string]string    `json:"remembered"`
	PreferFree bool                 `json:"prefer_free"`
}

// Models lists the catalog plus the current success memory.
func (c *Client) Models() ModelsView {
	free, paid := c.resolver.Catalog().Models()
	return ModelsView{
		Free:       free,
		Paid:       paid,
		Fallback:   c.resolver.Fallback(),
		Remembered: c.resolver.Remembered(),
		PreferFree: c.PreferFree(),
	}
}
