// Package boltstore is the durable storage.Backend, a single bbolt bucket
// of opaque envelopes keyed by the same opaque strings the in-memory
// backend uses. Grounded almost file-for-file on
// pkg/mcp/infrastructure/persistence/session/bolt.go.
package boltstore

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/agentrpc/corerpc/errs"
	"github.com/agentrpc/corerpc/storage"
)

var bucketName = []byte("corerpc_storage")

// envelope is the on-disk representation of a storage.Entry.
type envelope struct {
	Data      []byte     `json:"data"`
	Version   int64      `json:"version"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Store is a bbolt-backed storage.Backend.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the bbolt database at path and ensures
// the storage bucket exists.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errs.Internal("open bbolt database", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errs.Internal("create storage bucket", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(_ context.Context, key string) (storage.Entry, error) {
	var out storage.Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketName).Get([]byte(key))
		if raw == nil {
			return errs.NotFound(key)
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return errs.Internal("decode stored entry", err)
		}
		out = storage.Entry{Data: env.Data, Version: env.Version, ExpiresAt: env.ExpiresAt}
		return nil
	})
	if err != nil {
		return storage.Entry{}, err
	}
	return out, nil
}

func (s *Store) Put(_ context.Context, key string, data []byte, expiresAt *time.Time) (int64, error) {
	var version int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)

		version = 1
		if raw := b.Get([]byte(key)); raw != nil {
			var existing envelope
			if err := json.Unmarshal(raw, &existing); err != nil {
				return errs.Internal("decode stored entry", err)
			}
			version = existing.Version + 1
		}

		encoded, err := json.Marshal(envelope{Data: data, Version: version, ExpiresAt: expiresAt})
		if err != nil {
			return errs.Internal("encode entry", err)
		}
		return b.Put([]byte(key), encoded)
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (s *Store) PutIfVersion(_ context.Context, key string, data []byte, expectedVersion int64, expiresAt *time.Time) (int64, error) {
	var version int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)

		raw := b.Get([]byte(key))
		if raw == nil {
			return errs.NotFound(key)
		}
		var existing envelope
		if err := json.Unmarshal(raw, &existing); err != nil {
			return errs.Internal("decode stored entry", err)
		}
		if existing.Version != expectedVersion {
			return errs.ConcurrentModification(key, expectedVersion, existing.Version)
		}

		version = existing.Version + 1
		encoded, err := json.Marshal(envelope{Data: data, Version: version, ExpiresAt: expiresAt})
		if err != nil {
			return errs.Internal("encode entry", err)
		}
		return b.Put([]byte(key), encoded)
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	var existed bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		existed = b.Get([]byte(key)) != nil
		if !existed {
			return nil
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}

func (s *Store) ListByPrefix(_ context.Context, prefix string) ([]storage.KeyedEntry, error) {
	var out []storage.KeyedEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(k, raw []byte) error {
			key := string(k)
			if !strings.HasPrefix(key, prefix) {
				return nil
			}
			var env envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				return errs.Internal("decode stored entry", err)
			}
			out = append(out, storage.KeyedEntry{
				Key:   key,
				Entry: storage.Entry{Data: env.Data, Version: env.Version, ExpiresAt: env.ExpiresAt},
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) CleanupExpired(_ context.Context) (int, error) {
	now := time.Now()
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		var staleKeys [][]byte
		err := b.ForEach(func(k, raw []byte) error {
			var env envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				return errs.Internal("decode stored entry", err)
			}
			if env.ExpiresAt != nil && now.After(*env.ExpiresAt) {
				staleKeys = append(staleKeys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range staleKeys {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

var _ storage.Backend = (*Store)(nil)
