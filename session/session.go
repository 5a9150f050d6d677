// Package session implements the Session Manager and Event Store of
// spec.md §4.D: an in-memory session map with per-session SSE sender
// channels, and an append-only, globally-ordered event log supporting
// replay-after-ID resumability.
//
// Grounded on the domain/session package for the general "manager
// owns a locked map of per-ID state" shape, and on
// src/server/streamable_http_server.rs for the exact session-lifecycle and
// replay semantics a plain REST transport never needed.
package session

import (
	"sync"

	"github.com/agentrpc/corerpc/errs"
)

// Record is the session record of spec.md §3: created on first
// initialization (stateful) or first SSE GET (implicit init), destroyed on
// DELETE or transport shutdown.
type Record struct {
	ID                        string
	Initialized               bool
	NegotiatedProtocolVersion string
}

// Manager owns the session map and per-session SSE sender channels. Per
// spec.md §5 ("Writers to a channel never block the session map"), channel
// sends happen after releasing the map lock.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Record
	streams  map[string]chan []byte
}

// NewManager constructs an empty session map.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Record),
		streams:  make(map[string]chan []byte),
	}
}

// Create registers a new, uninitialized session record for id.
func (m *Manager) Create(id string) *Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := &Record{ID: id}
	m.sessions[id] = rec
	return rec
}

// Get returns the session record for id, if any.
func (m *Manager) Get(id string) (*Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[id]
	return rec, ok
}

// MarkInitialized transitions the session to initialized with the
// negotiated protocol version (spec.md §4.E step 6).
func (m *Manager) MarkInitialized(id, negotiatedVersion string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[id]
	if !ok {
		return errs.New(errs.CodeNotFound).Messagef("unknown session %q", id).Build()
	}
	rec.Initialized = true
	rec.NegotiatedProtocolVersion = negotiatedVersion
	return nil
}

// Delete removes the session record and, if present, its SSE stream.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	if ch, ok := m.streams[id]; ok {
		close(ch)
		delete(m.streams, id)
	}
}

// RegisterStream opens an SSE sender channel for id. Fails if a stream is
// already open for this session (spec.md §4.E GET step 3, HTTP 409).
func (m *Manager) RegisterStream(id string) (<-chan []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.streams[id]; exists {
		return nil, errs.New(errs.CodeTransport).Messagef("session %q already has an open stream", id).Build()
	}
	ch := make(chan []byte, 16)
	m.streams[id] = ch
	return ch, nil
}

// HasStream reports whether id currently has an open SSE stream.
func (m *Manager) HasStream(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.streams[id]
	return ok
}

// CloseStream closes and removes id's SSE stream, if any.
func (m *Manager) CloseStream(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.streams[id]; ok {
		close(ch)
		delete(m.streams, id)
	}
}

// Send forwards message to id's stream without holding the session map
// lock during the (potentially blocking) channel write, reporting whether a
// live stream was found.
func (m *Manager) Send(id string, message []byte) bool {
	m.mu.RLock()
	ch, ok := m.streams[id]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	ch <- message
	return true
}
