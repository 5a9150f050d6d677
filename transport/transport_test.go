package transport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrpc/corerpc/middleware"
	"github.com/agentrpc/corerpc/rpc"
	"github.com/agentrpc/corerpc/session"
	"github.com/agentrpc/corerpc/transport"
)

func testDispatcher(t *testing.T) *rpc.Dispatcher {
	t.Helper()
	d := rpc.NewDispatcher()
	d.Register(rpc.MethodInitialize, func(ctx context.Context, params json.RawMessage) (any, error) {
		return map[string]string{"protocolVersion": "2025-03-26"}, nil
	})
	d.Register(rpc.MethodToolsList, func(ctx context.Context, params json.RawMessage) (any, error) {
		return map[string]any{"tools": []string{}}, nil
	})
	return d
}

func sessionID() func() string {
	var n int
	return func() string {
		n++
		return "sess-" + strconv.Itoa(n)
	}
}

func newStatefulTransport(t *testing.T) *transport.Transport {
	t.Helper()
	return transport.New(transport.Config{
		Path:                      "/rpc",
		SessionIDGenerator:        sessionID(),
		ResponseMode:              transport.ResponseModeJSON,
		SupportedProtocolVersions: []string{"2025-03-26"},
		DefaultProtocolVersion:    "2025-03-26",
	}, session.NewManager(), session.NewEventStore(), middleware.NewChain(), testDispatcher(t))
}

func newStatelessTransport(t *testing.T) *transport.Transport {
	t.Helper()
	return transport.New(transport.Config{
		Path:                      "/rpc",
		ResponseMode:              transport.ResponseModeJSON,
		SupportedProtocolVersions: []string{"2025-03-26"},
		DefaultProtocolVersion:    "2025-03-26",
	}, session.NewManager(), session.NewEventStore(), middleware.NewChain(), testDispatcher(t))
}

func TestStatelessInitializeReturnsNoSessionHeader(t *testing.T) {
	tr := newStatelessTransport(t)
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	tr.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("mcp-session-id"))
	assert.Equal(t, "2025-03-26", rec.Header().Get("mcp-protocol-version"))
}

func TestStatefulInitializeThenToolsListRoundTrip(t *testing.T) {
	tr := newStatefulTransport(t)

	initReq := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`))
	initReq.Header.Set("Content-Type", "application/json")
	initReq.Header.Set("Accept", "application/json")
	initRec := httptest.NewRecorder()
	tr.ServeHTTP(initRec, initReq)

	require.Equal(t, http.StatusOK, initRec.Code)
	sid := initRec.Header().Get("mcp-session-id")
	require.NotEmpty(t, sid)

	listReq := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(`{"jsonrpc":"2.0","id":2,"method":"tools/list","params":{}}`))
	listReq.Header.Set("Content-Type", "application/json")
	listReq.Header.Set("Accept", "application/json")
	listReq.Header.Set("mcp-session-id", sid)
	listRec := httptest.NewRecorder()
	tr.ServeHTTP(listRec, listReq)

	require.Equal(t, http.StatusOK, listRec.Code)
	assert.Equal(t, sid, listRec.Header().Get("mcp-session-id"))
}

func TestStatefulUnknownSessionReturns404(t *testing.T) {
	tr := newStatefulTransport(t)

	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("mcp-session-id", "does-not-exist")
	rec := httptest.NewRecorder()

	tr.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWrongContentTypeReturns415(t *testing.T) {
	tr := newStatelessTransport(t)
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	tr.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestWrongAcceptReturns406(t *testing.T) {
	tr := newStatelessTransport(t)
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/plain")
	rec := httptest.NewRecorder()

	tr.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotAcceptable, rec.Code)
}

func TestNotificationReturns202WithNoBody(t *testing.T) {
	tr := newStatelessTransport(t)
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	tr.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestDeleteUnknownSessionReturns404(t *testing.T) {
	tr := newStatefulTransport(t)
	req := httptest.NewRequest(http.MethodDelete, "/rpc", nil)
	req.Header.Set("mcp-session-id", "does-not-exist")
	rec := httptest.NewRecorder()

	tr.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteKnownSessionInvokesCallback(t *testing.T) {
	var closed int32
	mgr := session.NewManager()
	mgr.Create("s1")

	tr := transport.New(transport.Config{
		Path:               "/rpc",
		SessionIDGenerator:  func() string { return "s1" },
		SupportedProtocolVersions: []string{"2025-03-26"},
		DefaultProtocolVersion:    "2025-03-26",
		OnSessionClosed: func(sessionID string) {
			atomic.AddInt32(&closed, 1)
		},
	}, mgr, session.NewEventStore(), middleware.NewChain(), testDispatcher(t))

	req := httptest.NewRequest(http.MethodDelete, "/rpc", nil)
	req.Header.Set("mcp-session-id", "s1")
	rec := httptest.NewRecorder()

	tr.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&closed))

	_, ok := mgr.Get("s1")
	assert.False(t, ok)
}

func TestGetRejectsNonStreamAccept(t *testing.T) {
	tr := newStatefulTransport(t)
	req := httptest.NewRequest(http.MethodGet, "/rpc", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	tr.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotAcceptable, rec.Code)
}

func TestGetRejectedInStatelessMode(t *testing.T) {
	tr := newStatelessTransport(t)
	req := httptest.NewRequest(http.MethodGet, "/rpc", nil)
	req.Header.Set("Accept", "text/event-stream")
	rec := httptest.NewRecorder()

	tr.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandlerMountsUnderConfiguredPath(t *testing.T) {
	tr := newStatelessTransport(t)
	srv := httptest.NewServer(tr.Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/rpc", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
