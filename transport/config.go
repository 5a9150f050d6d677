// Package transport implements the streamable HTTP transport of spec.md
// §4.E: a single endpoint handling POST/GET/DELETE/OPTIONS, stateful or
// stateless session modes, and JSON or SSE response framing.
//
// Grounded on pkg/mcp/core/transport/http.go for router
// construction (chi.Router, CORS, structured logging) generalized from a
// multi-route REST tool API down to the spec's single endpoint, and on
// src/server/streamable_http_server.rs for the exact state-machine
// semantics (session header handling, Last-Event-ID replay, response mode
// selection) a plain REST transport doesn't need.
package transport

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agentrpc/corerpc/middleware"
	"github.com/agentrpc/corerpc/rpc"
	"github.com/agentrpc/corerpc/session"
)

// ResponseMode selects how a POST response is framed on the wire.
type ResponseMode int

const (
	ResponseModeJSON ResponseMode = iota
	ResponseModeSSE
)

// Config configures a Transport instance. A nil SessionIDGenerator means
// stateless mode (spec.md §4.E "Mode selection").
type Config struct {
	// Path is the single endpoint this transport serves. Default "/".
	Path string

	// SessionIDGenerator, when non-nil, puts the transport in stateful
	// mode: session IDs are tracked and SSE GET is permitted.
	SessionIDGenerator func() string

	// ResponseMode chooses JSON or SSE framing for POST responses.
	ResponseMode ResponseMode

	// SupportedProtocolVersions is the set of mcp-protocol-version values
	// this server accepts; an unrecognized header value is rejected with
	// JSON-RPC code -32600 (spec.md §9).
	SupportedProtocolVersions []string

	// DefaultProtocolVersion is stamped on responses when no version was
	// negotiated yet.
	DefaultProtocolVersion string

	// CORSOrigins configures allowed origins; empty or ["*"] allows any
	// origin without credentials, matching the setupCORS pattern.
	CORSOrigins []string

	// OnSessionClosed is invoked (if non-nil) when DELETE tears down a
	// session, per spec.md §4.E DELETE algorithm.
	OnSessionClosed func(sessionID string)

	Logger zerolog.Logger
}

// IsStateful reports whether this transport tracks sessions.
func (c Config) IsStateful() bool { return c.SessionIDGenerator != nil }

func (c Config) isSupportedVersion(version string) bool {
	for _, v := range c.SupportedProtocolVersions {
		if v == version {
			return true
		}
	}
	return false
}

// Transport wires the session manager, event store, middleware chain, and
// JSON-RPC dispatcher into the single streamable endpoint.
type Transport struct {
	config     Config
	sessions   *session.Manager
	events     *session.EventStore
	middleware *middleware.Chain
	dispatcher *rpc.Dispatcher
	logger     zerolog.Logger
}

// New constructs a Transport. sessions/events may be freshly constructed
// callers; chain/dispatcher are shared with the rest of the server.
func New(cfg Config, sessions *session.Manager, events *session.EventStore, chain *middleware.Chain, dispatcher *rpc.Dispatcher) *Transport {
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	return &Transport{
		config:     cfg,
		sessions:   sessions,
		events:     events,
		middleware: chain,
		dispatcher: dispatcher,
		logger:     cfg.Logger.With().Str("component", "transport").Logger(),
	}
}

// acceptContains implements spec.md §9's "treat any substring match as
// acceptance, not strict MIME parsing" rule for the Accept header.
func acceptContains(header, substr string) bool {
	return strings.Contains(strings.ToLower(header), substr)
}

var _ http.Handler = (*Transport)(nil)
