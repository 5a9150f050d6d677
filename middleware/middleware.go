// Package middleware implements the priority-ordered HTTP middleware chain
// of spec.md §4.C: hooks run before/after the transport processes a request,
// with best-effort error notification and conditional execution.
//
// Grounded on src/server/http_middleware.rs's ServerHttpMiddleware trait /
// ServerHttpMiddlewareChain, translated from async trait objects to Go
// interfaces over *http.Request/ResponseRecorder.
package middleware

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RequestContext carries per-request metadata through the chain, mirroring
// ServerHttpContext (request_id, start_time, session_id).
type RequestContext struct {
	RequestID string
	SessionID string
	StartTime time.Time
}

// Elapsed returns the time since the request began.
func (c RequestContext) Elapsed() time.Duration { return time.Since(c.StartTime) }

// NewRequestContext builds a fresh context with a generated request ID.
func NewRequestContext() *RequestContext {
	return &RequestContext{RequestID: uuid.NewString(), StartTime: time.Now()}
}

// Middleware is the server HTTP middleware contract of spec.md §4.C.
// Default priority is 50; ShouldExecute defaults to true. Implementations
// embed Base to inherit those defaults without repeating boilerplate.
type Middleware interface {
	OnRequest(ctx context.Context, req *http.Request, rc *RequestContext) error
	OnResponse(ctx context.Context, resp *ResponseSnapshot, rc *RequestContext) error
	OnError(ctx context.Context, err error, rc *RequestContext)
	Priority() int
	ShouldExecute(ctx context.Context, rc *RequestContext) bool
}

// ResponseSnapshot is the mutable outbound-response view middleware can
// inspect or amend before the transport writes it to the wire.
type ResponseSnapshot struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Base supplies the trait's default method bodies so concrete middleware
// only needs to override what it cares about.
type Base struct{}

func (Base) OnRequest(context.Context, *http.Request, *RequestContext) error      { return nil }
func (Base) OnResponse(context.Context, *ResponseSnapshot, *RequestContext) error { return nil }
func (Base) OnError(context.Context, error, *RequestContext)                      {}
func (Base) Priority() int                                                       { return 50 }
func (Base) ShouldExecute(context.Context, *RequestContext) bool                  { return true }

// Chain executes registered Middleware in priority order (lower first),
// grounded on ServerHttpMiddlewareChain.
type Chain struct {
	mu          sync.Mutex
	middlewares []Middleware
}

// NewChain constructs an empty chain.
func NewChain() *Chain { return &Chain{} }

// Add registers m and re-sorts the chain by ascending priority.
func (c *Chain) Add(m Middleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middlewares = append(c.middlewares, m)
	sort.SliceStable(c.middlewares, func(i, j int) bool {
		return c.middlewares[i].Priority() < c.middlewares[j].Priority()
	})
}

func (c *Chain) snapshot() []Middleware {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Middleware, len(c.middlewares))
	copy(out, c.middlewares)
	return out
}

// RunOnRequest executes every applicable middleware's OnRequest hook in
// priority order, stopping at the first error.
func (c *Chain) RunOnRequest(ctx context.Context, req *http.Request, rc *RequestContext) error {
	for _, m := range c.snapshot() {
		if !m.ShouldExecute(ctx, rc) {
			continue
		}
		if err := m.OnRequest(ctx, req, rc); err != nil {
			return err
		}
	}
	return nil
}

// RunOnResponse executes every applicable middleware's OnResponse hook in
// priority order, stopping at the first error.
func (c *Chain) RunOnResponse(ctx context.Context, resp *ResponseSnapshot, rc *RequestContext) error {
	for _, m := range c.snapshot() {
		if !m.ShouldExecute(ctx, rc) {
			continue
		}
		if err := m.OnResponse(ctx, resp, rc); err != nil {
			return err
		}
	}
	return nil
}

// RunOnError notifies every applicable middleware of err on a best-effort
// basis: OnError never aborts the chain (it has no error return), matching
// the original's "let _ = middleware.on_error(...)" policy.
func (c *Chain) RunOnError(ctx context.Context, err error, rc *RequestContext) {
	for _, m := range c.snapshot() {
		if !m.ShouldExecute(ctx, rc) {
			continue
		}
		m.OnError(ctx, err, rc)
	}
}
