// Package boltstore implements domain.KVStore on an embedded bbolt file.
package boltstore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

var bucketName = []byte("kv")

// Store wraps a single bucket. bbolt serialises writers, so every Put is atomic.
type Store struct {
	db *bolt.DB
}

// Open creates the database file and bucket when missing.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("op=boltstore.Open: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("op=boltstore.Open: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("op=boltstore.Open: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the file lock.
func (s *Store) Close() error { return s.db.Close() }

// Get implements domain.KVStore.
func (s *Store) Get(_ domain.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v == nil {
			return domain.ErrNotFound
		}
		out = make([]byte, len(v))
		copy(out, v)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("op=boltstore.Get: %w", err)
	}
	return out, nil
}

// Put implements domain.KVStore.
func (s *Store) Put(_ domain.Context, key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("op=boltstore.Put: %w: empty key", domain.ErrInvalidArgument)
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("op=boltstore.Put: %w", err)
	}
	return nil
}

// Delete implements domain.KVStore.
func (s *Store) Delete(_ domain.Context, key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("op=boltstore.Delete: %w", err)
	}
	return nil
}

// Update implements domain.KVStore inside one bbolt write transaction.
func (s *Store) Update(_ domain.Context, key string, fn domain.UpdateFunc) error {
	if key == "" {
		return fmt.Errorf("op=boltstore.Update: %w: empty key", domain.ErrInvalidArgument)
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		v := b.Get([]byte(key))
		var cur []byte
		if v != nil {
			cur = make([]byte, len(v))
			copy(cur, v)
		}
		next, err := fn(cur, v != nil)
		if err != nil || next == nil {
			return err
		}
		return b.Put([]byte(key), next)
	})
	if err != nil {
		return fmt.Errorf("op=boltstore.Update: %w", err)
	}
	return nil
}

// Keys implements domain.KVStore. Keys come back in byte order.
func (s *Store) Keys(_ domain.Context, prefix string) ([]string, error) {
	var out []string
	p := []byte(prefix)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			out = append(out, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("op=boltstore.Keys: %w", err)
	}
	return out, nil
}
