// Package task implements the generic Task Store domain layer (spec.md
// §4.B) over any storage.Backend (§4.A). All domain intelligence -- state
// machine validation, owner isolation, variable merge with null-deletion,
// size/depth/string-length enforcement, TTL hard-reject, cursor pagination
// -- lives here; backends stay dumb opaque key/value stores.
//
// Grounded nearly line-for-line on crates/pmcp-tasks/src/store/generic.rs
// (GenericTaskStore<B: StorageBackend>), translated from a generic Rust
// struct over a trait to a Go struct over the storage.Backend interface.
package task

import "time"

// Status is one of the four states of the task state machine (spec.md §3).
type Status string

const (
	StatusWorking   Status = "working"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether s permits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// validTransitions enumerates the only edges the state machine allows.
// Every edge originates at StatusWorking; terminal states are sinks.
var validTransitions = map[Status]bool{
	StatusCompleted: true,
	StatusFailed:    true,
	StatusCancelled: true,
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s Status) CanTransitionTo(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	return validTransitions[next]
}

// Record is the task record of spec.md §3, keyed by (OwnerID, TaskID).
type Record struct {
	TaskID         string         `json:"task_id"`
	OwnerID        string         `json:"owner_id"`
	RequestMethod  string         `json:"request_method"`
	Status         Status         `json:"status"`
	StatusMessage  *string        `json:"status_message,omitempty"`
	Variables      map[string]any `json:"variables"`
	Result         any            `json:"result,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	LastUpdatedAt  time.Time      `json:"last_updated_at"`
	TTLMillis      *int64         `json:"ttl_ms,omitempty"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
	PollIntervalMS *int64         `json:"poll_interval_ms,omitempty"`

	// Version is not part of the serialized envelope; it is stamped from
	// the storage.Entry's CAS version on every read.
	Version int64 `json:"-"`
}

// IsExpired reports whether the record has passed its ExpiresAt, if any.
func (r *Record) IsExpired() bool {
	return r.ExpiresAt != nil && time.Now().After(*r.ExpiresAt)
}

// MakeKey builds the opaque storage key "owner_id/task_id" (spec.md §4.A).
func MakeKey(ownerID, taskID string) string {
	return ownerID + "/" + taskID
}

// MakePrefix builds the prefix used for an owner's list/count scans.
func MakePrefix(ownerID string) string {
	return ownerID + "/"
}
