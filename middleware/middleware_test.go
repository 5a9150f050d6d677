package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrpc/corerpc/middleware"
)

func zerologDiscard() zerolog.Logger { return zerolog.Nop() }

type recordingMiddleware struct {
	middleware.Base
	name     string
	priority int
	calls    *[]string
}

func (m recordingMiddleware) OnRequest(context.Context, *http.Request, *middleware.RequestContext) error {
	*m.calls = append(*m.calls, m.name)
	return nil
}

func (m recordingMiddleware) Priority() int { return m.priority }

func TestChainRunsInPriorityOrder(t *testing.T) {
	var calls []string
	chain := middleware.NewChain()
	chain.Add(recordingMiddleware{name: "logging", priority: 90, calls: &calls})
	chain.Add(recordingMiddleware{name: "auth", priority: 10, calls: &calls})
	chain.Add(recordingMiddleware{name: "ratelimit", priority: 50, calls: &calls})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rc := middleware.NewRequestContext()
	require.NoError(t, chain.RunOnRequest(context.Background(), req, rc))

	assert.Equal(t, []string{"auth", "ratelimit", "logging"}, calls)
}

type erroringMiddleware struct {
	middleware.Base
	err error
}

func (m erroringMiddleware) OnRequest(context.Context, *http.Request, *middleware.RequestContext) error {
	return m.err
}

type neverCalledMiddleware struct {
	middleware.Base
	called *bool
}

func (m neverCalledMiddleware) OnRequest(context.Context, *http.Request, *middleware.RequestContext) error {
	*m.called = true
	return nil
}

func (m neverCalledMiddleware) Priority() int { return 100 }

func TestChainStopsAtFirstRequestError(t *testing.T) {
	called := false
	chain := middleware.NewChain()
	chain.Add(erroringMiddleware{err: errors.New("boom")})
	chain.Add(neverCalledMiddleware{called: &called})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	err := chain.RunOnRequest(context.Background(), req, middleware.NewRequestContext())
	require.Error(t, err)
	assert.False(t, called)
}

type conditionalMiddleware struct {
	middleware.Base
	execute bool
	calls   *[]string
}

func (m conditionalMiddleware) OnRequest(context.Context, *http.Request, *middleware.RequestContext) error {
	*m.calls = append(*m.calls, "ran")
	return nil
}

func (m conditionalMiddleware) ShouldExecute(context.Context, *middleware.RequestContext) bool {
	return m.execute
}

func TestChainSkipsMiddlewareThatShouldNotExecute(t *testing.T) {
	var calls []string
	chain := middleware.NewChain()
	chain.Add(conditionalMiddleware{execute: false, calls: &calls})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, chain.RunOnRequest(context.Background(), req, middleware.NewRequestContext()))
	assert.Empty(t, calls)
}

func TestChainOnErrorIsBestEffortAndRunsEveryMiddleware(t *testing.T) {
	var calls []string
	chain := middleware.NewChain()
	chain.Add(recordingErrorMiddleware{name: "first", calls: &calls})
	chain.Add(recordingErrorMiddleware{name: "second", calls: &calls})

	chain.RunOnError(context.Background(), errors.New("boom"), middleware.NewRequestContext())
	assert.ElementsMatch(t, []string{"first", "second"}, calls)
}

type recordingErrorMiddleware struct {
	middleware.Base
	name  string
	calls *[]string
}

func (m recordingErrorMiddleware) OnError(context.Context, error, *middleware.RequestContext) {
	*m.calls = append(*m.calls, m.name)
}

func TestLoggingMiddlewareRedactsAuthorizationHeader(t *testing.T) {
	var buf bytes.Buffer
	mw := middleware.NewLoggingMiddleware(zerolog.New(&buf))

	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	req.Header.Set("Authorization", "Bearer super-secret-token")

	err := mw.OnRequest(context.Background(), req, middleware.NewRequestContext())
	require.NoError(t, err)
	// The auth scheme is kept (show_auth_scheme defaults to true); the
	// credential itself never reaches the log line.
	assert.Contains(t, buf.String(), "Bearer [REDACTED]")
	assert.NotContains(t, buf.String(), "secret")
}

func TestLoggingMiddlewareDefaultPriorityIsNinety(t *testing.T) {
	mw := middleware.NewLoggingMiddleware(zerologDiscard())
	assert.Equal(t, 90, mw.Priority())
}

func TestLoggingMiddlewareNeverLogsStreamingBodies(t *testing.T) {
	var buf bytes.Buffer
	mw := middleware.NewLoggingMiddleware(zerolog.New(&buf)).WithMaxBodyBytes(1024)
	resp := &middleware.ResponseSnapshot{
		Status:  200,
		Headers: http.Header{"Content-Type": []string{"text/event-stream"}},
		Body:    []byte("data: hello\n\n"),
	}
	require.NoError(t, mw.OnResponse(context.Background(), resp, middleware.NewRequestContext()))
	assert.NotContains(t, buf.String(), `"body"`)
	assert.NotContains(t, buf.String(), "hello")
}
