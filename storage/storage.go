// Package storage defines the opaque key/versioned-bytes backend that the
// task store (package task) builds its domain logic on top of (spec.md
// §4.A). Backends are deliberately dumb: no JSON awareness beyond the
// expiry timestamp needed for cleanup_expired.
package storage

import (
	"context"
	"time"
)

// Entry is a stored value plus its CAS version and optional expiry. The
// backend tracks ExpiresAt itself (rather than parsing the opaque Data) so
// CleanupExpired can run without any domain knowledge.
type Entry struct {
	Data      []byte
	Version   int64
	ExpiresAt *time.Time
}

// KeyedEntry pairs a key with its Entry, returned by ListByPrefix.
type KeyedEntry struct {
	Key string
	Entry
}

// Backend is the storage contract of spec.md §4.A. Keys are opaque strings;
// by convention the task store uses "owner_id/task_id" (see task.MakeKey).
type Backend interface {
	// Get fetches the current value and version for key. Returns an
	// *errs.Error with Code CodeNotFound if the key does not exist.
	Get(ctx context.Context, key string) (Entry, error)

	// Put writes unconditionally and returns the new version.
	Put(ctx context.Context, key string, data []byte, expiresAt *time.Time) (int64, error)

	// PutIfVersion writes only if the stored version equals expectedVersion.
	// Returns an *errs.Error with Code CodeConcurrentModification on
	// mismatch (carrying expected/actual versions in Context).
	PutIfVersion(ctx context.Context, key string, data []byte, expectedVersion int64, expiresAt *time.Time) (int64, error)

	// Delete removes key, reporting whether anything was removed.
	Delete(ctx context.Context, key string) (bool, error)

	// ListByPrefix returns every entry whose key starts with prefix, in
	// unspecified order.
	ListByPrefix(ctx context.Context, prefix string) ([]KeyedEntry, error)

	// CleanupExpired removes every entry whose ExpiresAt has elapsed and
	// returns the number removed.
	CleanupExpired(ctx context.Context) (int, error)
}
