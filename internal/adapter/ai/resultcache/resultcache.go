// Package resultcache stores project analyses keyed by a fingerprint of the
// project identity, valid for a fixed TTL after they were cached.
package resultcache

import (
	"context"
	"crypto/md5" //nolint:gosec // cache key, not a security boundary
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

// KeyPrefix namespaces cache records inside the shared KV store.
const KeyPrefix = "analysis-"

// DefaultTTL is how long an analysis stays fresh.
const DefaultTTL = 7 * 24 * time.Hour

// Identity is the subset of project fields that decides cache hits.
type Identity struct {
	ProjectName   string
	TokenSymbol   string
	WebsiteURL    string
	TwitterHandle string
}

// IdentityOf extracts the identity fields from a project.
func IdentityOf(f domain.ProjectFields) Identity {
	return Identity{
		ProjectName:   f.ProjectName,
		TokenSymbol:   f.TokenSymbol,
		WebsiteURL:    f.WebsiteURL,
		TwitterHandle: f.TwitterHandle,
	}
}

// Fingerprint is the hex MD5 of the labelled, normalised identity fields.
// Labels keep values from bleeding across field boundaries.
func Fingerprint(id Identity) string {
	parts := make([]string, 0, 4)
	for _, f := range [...]struct{ label, value string }{
		{"project_name", id.ProjectName},
		{"token_symbol", id.TokenSymbol},
		{"website_url", id.WebsiteURL},
		{"twitter_handle", id.TwitterHandle},
	} {
		v := normalize(f.value)
		if v == "" {
			continue
		}
		parts = append(parts, f.label+"="+v)
	}
	sum := md5.Sum([]byte(strings.Join(parts, "\x1f"))) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Entry is the persisted record.
type Entry struct {
	CachedAt    time.Time       `json:"cached_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	ProjectName string          `json:"project_name"`
	TokenSymbol string          `json:"token_symbol"`
	Analysis    json.RawMessage `json:"analysis"`
}

// EntrySummary describes one record in Stats.
type EntrySummary struct {
	Fingerprint string    `json:"fingerprint"`
	ProjectName string    `json:"project_name,omitempty"`
	TokenSymbol string    `json:"token_symbol,omitempty"`
	CachedAt    time.Time `json:"cached_at,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
	SizeBytes   int       `json:"size_bytes"`
	Expired     bool      `json:"expired"`
	Corrupt     bool      `json:"corrupt,omitempty"`
}

// Stats is a read-only snapshot of the cache. Corrupt entries count as expired.
type Stats struct {
	Total          int            `json:"total_cached"`
	Active         int            `json:"active"`
	Expired        int            `json:"expired"`
	TotalSizeBytes int64          `json:"total_size_bytes"`
	Entries        []EntrySummary `json:"entries"`
}

// Cache is safe for concurrent use to the extent its KVStore is.
type Cache struct {
	store domain.KVStore
	ttl   time.Duration
	now   func() time.Time
}

// Option customises a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New builds a Cache over store.
func New(store domain.KVStore, opts ...Option) *Cache {
	c := &Cache{store: store, ttl: DefaultTTL, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// TTL returns the configured freshness window.
func (c *Cache) TTL() time.Duration { return c.ttl }

func storeKey(fp string) string { return KeyPrefix + fp }

// Get returns the cached analysis when an entry exists and is younger than
// the TTL. Stale or unreadable entries are reported as a miss and left for
// SweepExpired.
func (c *Cache) Get(ctx context.Context, id Identity) (map[string]any, bool, error) {
	fp := Fingerprint(id)
	raw, err := c.store.Get(ctx, storeKey(fp))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("op=resultcache.Get: %w", err)
	}
	e, analysis, ok := decode(raw)
	if !ok {
		slog.Warn("corrupt analysis cache entry", slog.String("fingerprint", fp))
		return nil, false, nil
	}
	if !c.fresh(e) {
		return nil, false, nil
	}
	return analysis, true, nil
}

// Put upserts the entry for id; last write wins.
func (c *Cache) Put(ctx context.Context, id Identity, analysis map[string]any) error {
	payload, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("op=resultcache.Put: %w", err)
	}
	now := c.now().UTC()
	e := Entry{
		CachedAt:    now,
		ExpiresAt:   now.Add(c.ttl),
		ProjectName: id.ProjectName,
		TokenSymbol: id.TokenSymbol,
		Analysis:    payload,
	}
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("op=resultcache.Put: %w", err)
	}
	if err := c.store.Put(ctx, storeKey(Fingerprint(id)), b); err != nil {
		return fmt.Errorf("op=resultcache.Put: %w", err)
	}
	return nil
}

// SweepExpired deletes stale and corrupt entries and returns how many went.
func (c *Cache) SweepExpired(ctx context.Context) (int, error) {
	keys, err := c.store.Keys(ctx, KeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("op=resultcache.SweepExpired: %w", err)
	}
	removed := 0
	for _, k := range keys {
		raw, err := c.store.Get(ctx, k)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("op=resultcache.SweepExpired: %w", err)
		}
		if e, _, ok := decode(raw); ok && c.fresh(e) {
			continue
		}
		if err := c.store.Delete(ctx, k); err != nil {
			return removed, fmt.Errorf("op=resultcache.SweepExpired: %w", err)
		}
		removed++
	}
	return removed, nil
}

// Stats reads every entry without changing any.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	keys, err := c.store.Keys(ctx, KeyPrefix)
	if err != nil {
		return Stats{}, fmt.Errorf("op=resultcache.Stats: %w", err)
	}
	st := Stats{Entries: make([]EntrySummary, 0, len(keys))}
	for _, k := range keys {
		raw, err := c.store.Get(ctx, k)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return Stats{}, fmt.Errorf("op=resultcache.Stats: %w", err)
		}
		sum := EntrySummary{Fingerprint: strings.TrimPrefix(k, KeyPrefix), SizeBytes: len(raw)}
		if e, _, ok := decode(raw); ok {
			sum.ProjectName = e.ProjectName
			sum.TokenSymbol = e.TokenSymbol
			sum.CachedAt = e.CachedAt
			sum.ExpiresAt = e.ExpiresAt
			sum.Expired = !c.fresh(e)
		} else {
			sum.Corrupt = true
			sum.Expired = true
		}
		st.Total++
		st.TotalSizeBytes += int64(len(raw))
		if sum.Expired {
			st.Expired++
		} else {
			st.Active++
		}
		st.Entries = append(st.Entries, sum)
	}
	sort.Slice(st.Entries, func(i, j int) bool {
		return st.Entries[i].CachedAt.After(st.Entries[j].CachedAt)
	})
	return st, nil
}

// RunPeriodicSweep calls SweepExpired every interval until ctx is done.
func (c *Cache) RunPeriodicSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := c.SweepExpired(ctx)
			if err != nil {
				slog.Error("analysis cache sweep failed", slog.Any("error", err))
				continue
			}
			slog.Info("analysis cache sweep done", slog.Int("removed", n))
		}
	}
}

func (c *Cache) fresh(e Entry) bool {
	return c.now().Sub(e.CachedAt) < c.ttl
}

// decode rejects records whose analysis is not a JSON object, so Get,
// SweepExpired and Stats agree on what is corrupt.
func decode(raw []byte) (Entry, map[string]any, bool) {
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, nil, false
	}
	if e.CachedAt.IsZero() {
		return Entry{}, nil, false
	}
	var analysis map[string]any
	if err := json.Unmarshal(e.Analysis, &analysis); err != nil || analysis == nil {
		return Entry{}, nil, false
	}
	return e, analysis, true
}
