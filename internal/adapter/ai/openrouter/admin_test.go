package openrouter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/ai/keypool"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/ai/resolver"
	"github.com/fairyhunter13/airdrop-analyzer/internal/config"
	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

func TestAdmin_KeyLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "http://127.0.0.1:1", nil)

	added, err := f.client.AddKey(ctx, keyA)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = f.client.AddKey(ctx, keyA)
	require.NoError(t, err)
	assert.False(t, added)
	_, err = f.client.AddKey(ctx, " ")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.client.AddKey(ctx, keyB)
	require.NoError(t, err)
	require.Len(t, f.client.ListKeys(context.Background()), 2)

	require.NoError(t, f.client.MarkKeyLimited(ctx, keypool.Hint(keyA)))
	_, available := f.pool.Counts()
	assert.Equal(t, 1, available)

	require.NoError(t, f.client.RemoveKey(ctx, keyB))
	assert.ErrorIs(t, f.client.RemoveKey(ctx, keyB), domain.ErrNotFound)
	assert.ErrorIs(t, f.client.MarkKeyLimited(ctx, "missing-key-value"), domain.ErrNotFound)

	require.NoError(t, f.client.ResetKeys(ctx))
	keys := f.client.ListKeys(context.Background())
	require.Len(t, keys, 1)
	assert.False(t, keys[0].LimitReached)
	assert.NotContains(t, keys[0].Hint, "aaaaaaaaaaaaaaaa")
}

func TestAdmin_RemovingHeldKeyReselects(t *testing.T) {
	be := newBackend(t, func(c call, n int) (int, string) { return 200, completionBody("ok") })
	f := newFixture(t, be.srv.URL, nil, keyA, keyB)
	ctx := context.Background()

	_, err := f.client.ChatCompletion(ctx, domain.ChatRequest{Messages: userMsg("hi"), Model: "fast"})
	require.NoError(t, err)
	held := be.Calls()[0].Key

	require.NoError(t, f.client.RemoveKey(ctx, held))
	_, err = f.client.ChatCompletion(ctx, domain.ChatRequest{Messages: userMsg("hi"), Model: "fast"})
	require.NoError(t, err)
	assert.NotEqual(t, held, be.Calls()[1].Key)
}

func TestAdmin_ModelsAndCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "http://127.0.0.1:1", nil, keyA)

	f.res.RememberSuccess("smart", resolver.LlamaFree, false)
	view := f.client.Models()
	assert.NotEmpty(t, view.Free)
	assert.NotEmpty(t, view.Paid)
	assert.Equal(t, resolver.DefaultCatalog().Fallback, view.Fallback)
	assert.Equal(t, map[string]string{"smart": resolver.LlamaFree}, view.Remembered)
	assert.False(t, view.PreferFree)

	n, err := f.client.ClearExpiredCache(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	noCache := New(f.pool, f.res, nil, Options{})
	_, err = noCache.ClearExpiredCache(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = noCache.CacheStats(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Config{
		AppEnv:            "test",
		OpenRouterBaseURL: "http://example.test/api/v1/",
		OpenRouterReferer: "ref",
		OpenRouterTitle:   "title",
		PreferFreeModels:  true,
		MaxAttempts:       4,
		TransportRetries:  1,
		RequestTimeout:    3 * time.Second,
	}
	o := OptionsFromConfig(cfg)
	assert.Equal(t, 4, o.MaxAttempts)
	assert.Equal(t, 5*time.Millisecond, o.BackoffInitial)
	assert.True(t, o.PreferFree)

	o.applyDefaults()
	assert.Equal(t, "http://example.test/api/v1", o.BaseURL)
	assert.NotNil(t, o.HTTPClient)
	assert.NotNil(t, o.Classifier)
	assert.NotNil(t, o.Sleep)

	var zero Options
	zero.applyDefaults()
	assert.Equal(t, 5, zero.MaxAttempts)
	assert.Equal(t, 60*time.Second, zero.RequestTimeout)
}
