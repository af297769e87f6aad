// Package keypool rotates OpenRouter API keys, picking the least used
// non-exhausted key and persisting usage metadata after every change.
package keypool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

// StoreKey is the record holding the whole pool.
const StoreKey = "openrouter_keys"

// Credential is one API key with its usage metadata.
type Credential struct {
	Key          string     `json:"key"`
	LimitReached bool       `json:"limit_reached"`
	LastUsed     *time.Time `json:"last_used"`
	UsageCount   int        `json:"usage_count"`
}

// Hint returns a display form that never reveals the whole secret.
func (c Credential) Hint() string { return Hint(c.Key) }

// Hint masks a key as "sk-or-v1...abcd".
func Hint(key string) string {
	if len(key) <= 12 {
		return strings.Repeat("*", len(key))
	}
	return key[:8] + "..." + key[len(key)-4:]
}

// KeyStatus is the admin view of a credential.
type KeyStatus struct {
	Hint         string     `json:"key_hint"`
	LimitReached bool       `json:"limit_reached"`
	LastUsed     *time.Time `json:"last_used"`
	UsageCount   int        `json:"usage_count"`
}

// Pool is safe for concurrent use. Every mutation is a read-modify-write of
// the persisted roster through KVStore.Update, so processes sharing one
// store see each other's keys and flags. creds is the last roster seen.
type Pool struct {
	mu    sync.Mutex
	creds []Credential
	store domain.KVStore
	now   func() time.Time
}

// Option customises a Pool.
type Option func(*Pool)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// New loads persisted state from store. A missing record yields an empty
// pool; an unreadable record is logged and replaced on the next mutation.
func New(ctx context.Context, store domain.KVStore, opts ...Option) (*Pool, error) {
	p := &Pool{store: store, now: time.Now}
	for _, o := range opts {
		o(p)
	}
	if err := p.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("op=keypool.New: %w", err)
	}
	return p, nil
}

// Refresh reloads the roster written by other processes. A missing record
// keeps the current view.
func (p *Pool) Refresh(ctx context.Context) error {
	raw, err := p.store.Get(ctx, StoreKey)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil
	case err != nil:
		return err
	}
	loaded, err := decode(raw)
	if err != nil {
		slog.Warn("key pool state unreadable, keeping current view", slog.Any("error", err))
		return nil
	}
	p.mu.Lock()
	p.creds = loaded
	p.mu.Unlock()
	return nil
}

func decode(raw []byte) ([]Credential, error) {
	var loaded []Credential
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return nil, err
	}
	out := make([]Credential, 0, len(loaded))
	seen := make(map[string]struct{}, len(loaded))
	for _, c := range loaded {
		if c.Key == "" {
			continue
		}
		if _, dup := seen[c.Key]; dup {
			continue
		}
		seen[c.Key] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

// mutateLocked applies fn to the freshest persisted roster and writes the
// result when fn reports a change. fn may run more than once. When the store
// fails, fn is applied to the in-memory roster so selection keeps working,
// and the store error is returned.
func (p *Pool) mutateLocked(ctx context.Context, fn func([]Credential) ([]Credential, bool)) error {
	var next []Credential
	err := p.store.Update(ctx, StoreKey, func(cur []byte, found bool) ([]byte, error) {
		base := p.creds
		if found {
			loaded, err := decode(cur)
			if err != nil {
				slog.Warn("key pool state unreadable, rewriting from memory", slog.Any("error", err))
			} else {
				base = loaded
			}
		}
		out, changed := fn(append([]Credential(nil), base...))
		next = out
		if !changed {
			return nil, nil
		}
		return json.MarshalIndent(out, "", "  ")
	})
	if err != nil {
		p.creds, _ = fn(append([]Credential(nil), p.creds...))
		return err
	}
	p.creds = next
	return nil
}

func indexOf(creds []Credential, keyOrHint string) int {
	for i, c := range creds {
		if c.Key == keyOrHint {
			return i
		}
	}
	for i, c := range creds {
		if c.Hint() == keyOrHint {
			return i
		}
	}
	return -1
}

// SelectNext returns the non-exhausted credential with the lowest
// (usage_count, last_used), never-used first, and records the use.
// ok is false when every credential is exhausted or the pool is empty.
func (p *Pool) SelectNext(ctx context.Context) (Credential, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now().UTC()
	var (
		picked Credential
		ok     bool
	)
	err := p.mutateLocked(ctx, func(creds []Credential) ([]Credential, bool) {
		picked, ok = Credential{}, false
		best := -1
		for i := range creds {
			if creds[i].LimitReached {
				continue
			}
			if best < 0 || less(&creds[i], &creds[best]) {
				best = i
			}
		}
		if best < 0 {
			return creds, false
		}
		creds[best].UsageCount++
		creds[best].LastUsed = &now
		picked, ok = creds[best], true
		return creds, true
	})
	if err != nil {
		slog.Warn("key pool persist failed after selection", slog.String("key", picked.Hint()), slog.Any("error", err))
	}
	return picked, ok
}

func less(a, b *Credential) bool {
	if a.UsageCount != b.UsageCount {
		return a.UsageCount < b.UsageCount
	}
	switch {
	case a.LastUsed == nil && b.LastUsed == nil:
		return false
	case a.LastUsed == nil:
		return true
	case b.LastUsed == nil:
		return false
	default:
		return a.LastUsed.Before(*b.LastUsed)
	}
}

// MarkExhausted flags a key (or its hint) as over quota. Idempotent.
func (p *Pool) MarkExhausted(ctx context.Context, keyOrHint string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	missing := false
	err := p.mutateLocked(ctx, func(creds []Credential) ([]Credential, bool) {
		i := indexOf(creds, keyOrHint)
		missing = i < 0
		if missing || creds[i].LimitReached {
			return creds, false
		}
		creds[i].LimitReached = true
		return creds, true
	})
	if err != nil {
		return fmt.Errorf("op=keypool.MarkExhausted: %w", err)
	}
	if missing {
		return fmt.Errorf("op=keypool.MarkExhausted: %w", domain.ErrNotFound)
	}
	return nil
}

// ResetAll clears every exhausted flag.
func (p *Pool) ResetAll(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.mutateLocked(ctx, func(creds []Credential) ([]Credential, bool) {
		changed := false
		for i := range creds {
			if creds[i].LimitReached {
				creds[i].LimitReached = false
				changed = true
			}
		}
		return creds, changed
	})
	if err != nil {
		return fmt.Errorf("op=keypool.ResetAll: %w", err)
	}
	return nil
}

// Add inserts a fresh key. Adding a key already present is a no-op and
// reports added=false.
func (p *Pool) Add(ctx context.Context, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("op=keypool.Add: %w: empty key", domain.ErrInvalidArgument)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	added := false
	err := p.mutateLocked(ctx, func(creds []Credential) ([]Credential, bool) {
		added = false
		for _, c := range creds {
			if c.Key == key {
				return creds, false
			}
		}
		added = true
		return append(creds, Credential{Key: key}), true
	})
	if err != nil {
		return added, fmt.Errorf("op=keypool.Add: %w", err)
	}
	return added, nil
}

// Remove deletes a key, matched verbatim or by hint.
func (p *Pool) Remove(ctx context.Context, keyOrHint string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	missing := false
	err := p.mutateLocked(ctx, func(creds []Credential) ([]Credential, bool) {
		i := indexOf(creds, keyOrHint)
		missing = i < 0
		if missing {
			return creds, false
		}
		return append(creds[:i], creds[i+1:]...), true
	})
	if err != nil {
		return fmt.Errorf("op=keypool.Remove: %w", err)
	}
	if missing {
		return fmt.Errorf("op=keypool.Remove: %w", domain.ErrNotFound)
	}
	return nil
}

// Status lists every credential by hint, ordered as stored.
func (p *Pool) Status() []KeyStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]KeyStatus, 0, len(p.creds))
	for _, c := range p.creds {
		out = append(out, KeyStatus{
			Hint:         c.Hint(),
			LimitReached: c.LimitReached,
			LastUsed:     c.LastUsed,
			UsageCount:   c.UsageCount,
		})
	}
	return out
}

// Counts returns the total and non-exhausted key counts.
func (p *Pool) Counts() (total, available int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.creds {
		if !c.LimitReached {
			available++
		}
	}
	return len(p.creds), available
}

// RunPeriodicReset clears exhausted flags every interval until ctx is done.
func (p *Pool) RunPeriodicReset(ctx context.Context, interval time.Duration) {
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
			if err := p.ResetAll(ctx); err != nil {
				slog.Error("periodic key reset failed", slog.Any("error", err))
				continue
			}
			total, _ := p.Counts()
			slog.Info("periodic key reset done", slog.Int("keys", total))
		}
	}
}
