package redisstore

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return New(rdb, "airdrop:"), mr
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	_, err := s.Get(ctx, "nope")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	require.NoError(t, s.Put(ctx, "analysis-1", []byte("one")))
	require.NoError(t, s.Put(ctx, "analysis-2", []byte("two")))
	require.NoError(t, s.Put(ctx, "openrouter_keys", []byte("[]")))
	assert.True(t, mr.Exists("airdrop:analysis-1"))

	got, err := s.Get(ctx, "analysis-2")
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	keys, err := s.Keys(ctx, "analysis-")
	require.NoError(t, err)
	assert.Equal(t, []string{"analysis-1", "analysis-2"}, keys)

	require.NoError(t, s.Delete(ctx, "analysis-1"))
	keys, err = s.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"analysis-2", "openrouter_keys"}, keys)
}

func TestStore_KeysIgnoresOtherPrefixes(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)
	require.NoError(t, mr.Set("someone-else:analysis-9", "x"))
	require.NoError(t, s.Put(ctx, "analysis-1", []byte("one")))

	keys, err := s.Keys(ctx, "analysis-")
	require.NoError(t, err)
	assert.Equal(t, []string{"analysis-1"}, keys)
}

func TestStore_ErrorWhenServerDown(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)
	mr.Close()

	_, err := s.Get(ctx, "k")
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrNotFound))
}
