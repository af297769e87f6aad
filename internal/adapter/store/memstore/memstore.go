// Package memstore is a bounded in-process domain.KVStore used in tests and
// single-process deployments that can afford to lose state on restart.
package memstore

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

// DefaultSize bounds the store when New is given a non-positive size.
const DefaultSize = 4096

// Store evicts the least recently used key once full.
type Store struct {
	cache *lru.Cache[string, []byte]
	mu    sync.Mutex // serialises Update
}

// New builds a store holding at most size keys.
func New(size int) (*Store, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("op=memstore.New: %w", err)
	}
	return &Store{cache: c}, nil
}

// Get implements domain.KVStore.
func (s *Store) Get(_ domain.Context, key string) ([]byte, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, fmt.Errorf("op=memstore.Get: %w", domain.ErrNotFound)
	}
	return clone(v), nil
}

// Put implements domain.KVStore.
func (s *Store) Put(_ domain.Context, key string, value []byte) error {
	s.cache.Add(key, clone(value))
	return nil
}

// Delete implements domain.KVStore.
func (s *Store) Delete(_ domain.Context, key string) error {
	s.cache.Remove(key)
	return nil
}

// Keys implements domain.KVStore.
func (s *Store) Keys(_ domain.Context, prefix string) ([]string, error) {
	var out []string
	for _, k := range s.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Update implements domain.KVStore.
func (s *Store) Update(_ domain.Context, key string, fn domain.UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, found := s.cache.Get(key)
	next, err := fn(clone(cur), found)
	if err != nil {
		return fmt.Errorf("op=memstore.Update: %w", err)
	}
	if next != nil {
		s.cache.Add(key, clone(next))
	}
	return nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
