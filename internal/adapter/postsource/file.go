// Package postsource provides domain.PostSource implementations.
package postsource

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/tidwall/gjson"

	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

// FileSource serves posts from a JSON file. The file holds either a bare
// array of posts or an object with a "top_opportunities" array. Author
// follower counts may appear as "followers" or "followers_count".
type FileSource struct {
	Path string
}

// NewFileSource returns a FileSource reading path.
func NewFileSource(path string) *FileSource { return &FileSource{Path: path} }

var _ domain.PostSource = (*FileSource)(nil)

// FetchPosts returns up to limit posts ordered by descending score.
func (s *FileSource) FetchPosts(ctx context.Context, limit int) ([]domain.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("op=postsource.read: %w", err)
	}
	posts, err := ParsePosts(b)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].Score > posts[j].Score })
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

// ParsePosts decodes a posts document.
func ParsePosts(b []byte) ([]domain.Post, error) {
	if !gjson.ValidBytes(b) {
		return nil, fmt.Errorf("op=postsource.parse: %w: invalid JSON", domain.ErrInvalidArgument)
	}
	list := gjson.ParseBytes(b)
	if !list.IsArray() {
		list = list.Get("top_opportunities")
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("op=postsource.parse: %w: no posts array", domain.ErrInvalidArgument)
	}

	var out []domain.Post
	list.ForEach(func(_, v gjson.Result) bool {
		out = append(out, postFrom(v))
		return true
	})
	return out, nil
}

func postFrom(v gjson.Result) domain.Post {
	a := v.Get("author")
	p := domain.Post{
		ID:   v.Get("id").String(),
		Text: v.Get("text").String(),
		URL:  v.Get("tweet_url").String(),
		Author: domain.Author{
			Name:      a.Get("name").String(),
			Username:  a.Get("username").String(),
			Followers: int(a.Get("followers").Int()),
			Verified:  a.Get("verified").Bool(),
		},
		Score: v.Get("score").Float(),
	}
	if p.Author.Followers == 0 {
		p.Author.Followers = int(a.Get("followers_count").Int())
	}
	if p.URL == "" && p.ID != "" && p.Author.Username != "" {
		p.URL = fmt.Sprintf("https://twitter.com/%s/status/%s", p.Author.Username, p.ID)
	}
	if ts := v.Get("created_at").String(); ts != "" {
		if t, err := parseTime(ts); err == nil {
			p.PostedAt = t
		}
	}
	return p
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", time.RubyDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}
