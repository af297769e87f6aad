package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := New(0)
	require.NoError(t, err)

	_, err = s.Get(ctx, "k")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	v := []byte("value")
	require.NoError(t, s.Put(ctx, "k", v))
	v[0] = 'X'
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "value", string(got), "stored bytes must not alias the caller's slice")

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStore_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	s, err := New(2)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "a", []byte("1")))
	require.NoError(t, s.Put(ctx, "b", []byte("2")))
	require.NoError(t, s.Put(ctx, "c", []byte("3")))

	keys, err := s.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, keys)
}
