// Package memstore is the in-memory conforming storage.Backend: a sharded
// concurrent map with per-entry versioning, grounded on the original
// InMemoryBackend (crates/pmcp-tasks/src/store/memory.rs) and the package-level sharded map pattern's
// general "locked map of per-ID state" shape (pkg/mcp/domain/session).
//
// Sharding spreads lock contention across shardCount buckets keyed by an
// FNV hash of the key, so independent owners/tasks rarely contend for the
// same mutex (spec.md §5: "Task store ... each operation takes a single
// backend entry lock (per-key) for its duration").
package memstore

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/agentrpc/corerpc/errs"
	"github.com/agentrpc/corerpc/storage"
)

const shardCount = 16

type record struct {
	data      []byte
	version   int64
	expiresAt *time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*record
}

// Store is a sharded, in-process storage.Backend.
type Store struct {
	shards [shardCount]*shard
}

// New constructs an empty in-memory backend.
func New() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*record)}
	}
	return s
}

func (s *Store) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

func (s *Store) Get(_ context.Context, key string) (storage.Entry, error) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	r, ok := sh.entries[key]
	if !ok {
		return storage.Entry{}, errs.NotFound(key)
	}
	return entryFromRecord(r), nil
}

func (s *Store) Put(_ context.Context, key string, data []byte, expiresAt *time.Time) (int64, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	next := int64(1)
	if existing, ok := sh.entries[key]; ok {
		next = existing.version + 1
	}
	sh.entries[key] = &record{data: cloneBytes(data), version: next, expiresAt: expiresAt}
	return next, nil
}

func (s *Store) PutIfVersion(_ context.Context, key string, data []byte, expectedVersion int64, expiresAt *time.Time) (int64, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	existing, ok := sh.entries[key]
	if !ok {
		return 0, errs.NotFound(key)
	}
	if existing.version != expectedVersion {
		return 0, errs.ConcurrentModification(key, expectedVersion, existing.version)
	}

	next := existing.version + 1
	sh.entries[key] = &record{data: cloneBytes(data), version: next, expiresAt: expiresAt}
	return next, nil
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.entries[key]; !ok {
		return false, nil
	}
	delete(sh.entries, key)
	return true, nil
}

func (s *Store) ListByPrefix(_ context.Context, prefix string) ([]storage.KeyedEntry, error) {
	var out []storage.KeyedEntry
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k, r := range sh.entries {
			if strings.HasPrefix(k, prefix) {
				out = append(out, storage.KeyedEntry{Key: k, Entry: entryFromRecord(r)})
			}
		}
		sh.mu.RUnlock()
	}
	return out, nil
}

func (s *Store) CleanupExpired(_ context.Context) (int, error) {
	now := time.Now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, r := range sh.entries {
			if r.expiresAt != nil && now.After(*r.expiresAt) {
				delete(sh.entries, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

func entryFromRecord(r *record) storage.Entry {
	return storage.Entry{Data: cloneBytes(r.data), Version: r.version, ExpiresAt: r.expiresAt}
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var _ storage.Backend = (*Store)(nil)
