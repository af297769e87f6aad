// Package redisstore implements domain.KVStore on Redis strings.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

const (
	scanBatch     = 200
	// updateRetries bounds optimistic WATCH retries under contention.
	updateRetries = 100
)

// Store namespaces every key with prefix.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
}

// New wraps an existing client.
func New(rdb redis.UniversalClient, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

// Client returns the underlying client, used for readiness pings.
func (s *Store) Client() redis.UniversalClient { return s.rdb }

// Dial parses a redis:// URL and pings the server.
func Dial(ctx context.Context, url, prefix string) (*Store, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("op=redisstore.Dial: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("op=redisstore.Dial: %w", err)
	}
	return New(rdb, prefix), rdb, nil
}

// Get implements domain.KVStore.
func (s *Store) Get(ctx domain.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("op=redisstore.Get: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("op=redisstore.Get: %w", err)
	}
	return b, nil
}

// Put implements domain.KVStore. Values never expire on the Redis side;
// cache expiry is decided by the caller from cached_at.
func (s *Store) Put(ctx domain.Context, key string, value []byte) error {
	if err := s.rdb.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("op=redisstore.Put: %w", err)
	}
	return nil
}

// Delete implements domain.KVStore.
func (s *Store) Delete(ctx domain.Context, key string) error {
	if err := s.rdb.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("op=redisstore.Delete: %w", err)
	}
	return nil
}

// Update implements domain.KVStore with WATCH/MULTI, retrying when another
// client writes the key between the read and the commit.
func (s *Store) Update(ctx domain.Context, key string, fn domain.UpdateFunc) error {
	k := s.prefix + key
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, k).Bytes()
		found := true
		if errors.Is(err, redis.Nil) {
			cur, found, err = nil, false, nil
		}
		if err != nil {
			return err
		}
		next, err := fn(cur, found)
		if err != nil || next == nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, next, 0)
			return nil
		})
		return err
	}
	for i := 0; i < updateRetries; i++ {
		err := s.rdb.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("op=redisstore.Update: %w", err)
		}
		return nil
	}
	return fmt.Errorf("op=redisstore.Update: %w", redis.TxFailedErr)
}

// Keys implements domain.KVStore using SCAN so large keyspaces do not block the server.
func (s *Store) Keys(ctx domain.Context, prefix string) ([]string, error) {
	var (
		cursor uint64
		out    []string
	)
	match := s.prefix + prefix + "*"
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("op=redisstore.Keys: %w", err)
		}
		for _, k := range keys {
			out = append(out, strings.TrimPrefix(k, s.prefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(out)
	return out, nil
}
