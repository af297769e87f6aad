package postsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

const opportunities = `{
  "top_opportunities": [
    {"id": "a", "text": "low score post", "score": 10, "author": {"username": "u1", "followers_count": 300}},
    {"id": 42, "text": "high score post", "score": 55, "tweet_url": "https://x.com/u2/status/42",
     "created_at": "2025-02-01T10:00:00.123456", "author": {"name": "U Two", "username": "u2", "followers": 9000, "verified": true}},
    {"id": "c", "text": "mid score post", "score": 30, "author": {"username": "u3"}}
  ]
}`

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "posts.json")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestFileSource_FetchPosts(t *testing.T) {
	src := NewFileSource(writeFile(t, opportunities))

	posts, err := src.FetchPosts(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "42", posts[0].ID)
	assert.Equal(t, "c", posts[1].ID)

	top := posts[0]
	assert.Equal(t, domain.Author{Name: "U Two", Username: "u2", Followers: 9000, Verified: true}, top.Author)
	assert.Equal(t, "https://x.com/u2/status/42", top.URL)
	assert.Equal(t, time.Date(2025, 2, 1, 10, 0, 0, 123456000, time.UTC), top.PostedAt)
	assert.Equal(t, "https://twitter.com/u3/status/c", posts[1].URL)

	all, err := src.FetchPosts(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 300, all[2].Author.Followers)
}

func TestParsePosts_BareArray(t *testing.T) {
	posts, err := ParsePosts([]byte(`[{"id":"x","text":"hello airdrop"}]`))
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "hello airdrop", posts[0].Text)
}

func TestParsePosts_Invalid(t *testing.T) {
	_, err := ParsePosts([]byte(`{not json`))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = ParsePosts([]byte(`{"posts": []}`))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestFileSource_Errors(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "missing.json")).FetchPosts(context.Background(), 1)
	assert.ErrorContains(t, err, "op=postsource.read")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewFileSource(writeFile(t, "[]")).FetchPosts(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
