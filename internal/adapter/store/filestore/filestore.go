// Package filestore persists key/value records as one JSON file per key.
package filestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

const ext = ".json"

// Lock files guard Update across processes sharing the directory. A lock
// older than lockStale belongs to a crashed holder and is broken.
const (
	lockPoll  = 5 * time.Millisecond
	lockStale = 10 * time.Second
)

// Store keeps each value in <dir>/<key>.json. Writes go through a temp file
// and rename so readers never observe a torn value.
type Store struct {
	dir string
}

// New creates dir when missing.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("op=filestore.New: %w: empty dir", domain.ErrInvalidArgument)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("op=filestore.New: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("%w: bad key %q", domain.ErrInvalidArgument, key)
	}
	return filepath.Join(s.dir, key+ext), nil
}

// Get implements domain.KVStore.
func (s *Store) Get(_ domain.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, fmt.Errorf("op=filestore.Get: %w", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("op=filestore.Get: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("op=filestore.Get: %w", err)
	}
	return b, nil
}

// Put implements domain.KVStore.
func (s *Store) Put(_ domain.Context, key string, value []byte) error {
	p, err := s.path(key)
	if err != nil {
		return fmt.Errorf("op=filestore.Put: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("op=filestore.Put: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("op=filestore.Put: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("op=filestore.Put: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("op=filestore.Put: %w", err)
	}
	return nil
}

// Update implements domain.KVStore under a per-key lock file.
func (s *Store) Update(ctx domain.Context, key string, fn domain.UpdateFunc) error {
	if _, err := s.path(key); err != nil {
		return fmt.Errorf("op=filestore.Update: %w", err)
	}
	unlock, err := s.lock(ctx, key)
	if err != nil {
		return fmt.Errorf("op=filestore.Update: %w", err)
	}
	defer unlock()

	cur, err := s.Get(ctx, key)
	found := err == nil
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("op=filestore.Update: %w", err)
	}
	next, err := fn(cur, found)
	if err != nil {
		return fmt.Errorf("op=filestore.Update: %w", err)
	}
	if next == nil {
		return nil
	}
	return s.Put(ctx, key, next)
}

func (s *Store) lock(ctx domain.Context, key string) (func(), error) {
	p := filepath.Join(s.dir, "."+key+".lock")
	for {
		f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_ = f.Close()
			return func() { _ = os.Remove(p) }, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		if fi, statErr := os.Stat(p); statErr == nil && time.Since(fi.ModTime()) > lockStale {
			_ = os.Remove(p)
			continue
		}
		t := time.NewTimer(lockPoll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// Delete implements domain.KVStore. Deleting a missing key is not an error.
func (s *Store) Delete(_ domain.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return fmt.Errorf("op=filestore.Delete: %w", err)
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("op=filestore.Delete: %w", err)
	}
	return nil
}

// Keys implements domain.KVStore.
func (s *Store) Keys(_ domain.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("op=filestore.Keys: %w", err)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
			continue
		}
		key := strings.TrimSuffix(name, ext)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
