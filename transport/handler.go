package transport

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/agentrpc/corerpc/errs"
	"github.com/agentrpc/corerpc/middleware"
	"github.com/agentrpc/corerpc/protocol"
	"github.com/agentrpc/corerpc/rpc"
)

const (
	headerSessionID      = "mcp-session-id"
	headerProtocolVer    = "mcp-protocol-version"
	headerLastEventID    = "last-event-id"
)

// responseRecorder buffers a handler's output so the middleware chain can
// inspect (and amend) it via RunOnResponse before it reaches the wire.
// Streaming SSE responses bypass the recorder entirely -- OnResponse hooks
// see once-per-request snapshots, not once-per-event ones.
type responseRecorder struct {
	header http.Header
	status int
	body   []byte
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{header: make(http.Header), status: http.StatusOK}
}

func (rr *responseRecorder) Header() http.Header { return rr.header }
func (rr *responseRecorder) WriteHeader(status int) { rr.status = status }
func (rr *responseRecorder) Write(b []byte) (int, error) {
	rr.body = append(rr.body, b...)
	return len(b), nil
}

var _ http.ResponseWriter = (*responseRecorder)(nil)

func (rr *responseRecorder) flushTo(w http.ResponseWriter) {
	dst := w.Header()
	for k, v := range rr.header {
		dst[k] = v
	}
	w.WriteHeader(rr.status)
	_, _ = w.Write(rr.body)
}

// ServeHTTP dispatches to the method-specific algorithm of spec.md §4.E.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := middleware.NewRequestContext()
	if err := t.middleware.RunOnRequest(r.Context(), r, rc); err != nil {
		t.middleware.RunOnError(r.Context(), err, rc)
		writeErrorBody(w, http.StatusBadRequest, nil, err)
		return
	}

	// GET opens a long-lived SSE stream: its response can't be buffered
	// and replayed through RunOnResponse, so it writes straight to w.
	if r.Method == http.MethodGet {
		t.handleGet(w, r, rc)
		return
	}

	rr := newResponseRecorder()
	switch r.Method {
	case http.MethodPost:
		t.handlePost(rr, r, rc)
	case http.MethodDelete:
		t.handleDelete(rr, r, rc)
	case http.MethodOptions:
		t.handleOptions(rr, r)
	default:
		writeErrorBody(rr, http.StatusMethodNotAllowed, nil, fmt.Errorf("method not allowed: %s", r.Method))
	}

	snapshot := &middleware.ResponseSnapshot{Status: rr.status, Headers: rr.header, Body: rr.body}
	if err := t.middleware.RunOnResponse(r.Context(), snapshot, rc); err != nil {
		t.middleware.RunOnError(r.Context(), err, rc)
	}
	rr.status, rr.header, rr.body = snapshot.Status, snapshot.Headers, snapshot.Body
	rr.flushTo(w)
}

func (t *Transport) handleOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, "+headerSessionID+", "+headerProtocolVer+", "+headerLastEventID)
	w.WriteHeader(http.StatusOK)
}

// handlePost implements the nine-step POST algorithm of spec.md §4.E.
func (t *Transport) handlePost(w http.ResponseWriter, r *http.Request, rc *middleware.RequestContext) {
	// Step 1: header validation.
	if !acceptContains(r.Header.Get("Content-Type"), "application/json") {
		writeErrorBody(w, http.StatusUnsupportedMediaType, nil, fmt.Errorf("Content-Type must be application/json"))
		return
	}
	accept := r.Header.Get("Accept")
	if !acceptContains(accept, "application/json") && !acceptContains(accept, "text/event-stream") {
		writeErrorBody(w, http.StatusNotAcceptable, nil, fmt.Errorf("Accept must include application/json or text/event-stream"))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErrorBody(w, http.StatusBadRequest, nil, err)
		return
	}

	// Step 2: parse body.
	req, resp, err := rpc.ParseMessage(body)
	if err != nil {
		writeErrorBody(w, http.StatusBadRequest, nil, err)
		return
	}
	if resp != nil {
		// Incoming response to a server-initiated request: 202, no body.
		w.WriteHeader(http.StatusAccepted)
		return
	}

	// Step 3: extract session/version headers.
	sessionID := r.Header.Get(headerSessionID)
	protocolVersion := r.Header.Get(headerProtocolVer)

	isInit := req.Method == rpc.MethodInitialize

	var sessID string
	if isInit {
		// Step 4.
		if t.config.IsStateful() {
			if sessionID != "" {
				if existing, ok := t.sessions.Get(sessionID); ok && existing.Initialized {
					writeErrorBody(w, http.StatusBadRequest, nil, fmt.Errorf("session %q already initialized", sessionID))
					return
				}
				sessID = sessionID
			} else {
				sessID = t.config.SessionIDGenerator()
			}
			if _, ok := t.sessions.Get(sessID); !ok {
				t.sessions.Create(sessID)
			}
		}
	} else {
		// Step 5.
		if t.config.IsStateful() {
			if sessionID == "" {
				writeErrorBody(w, http.StatusNotFound, nil, fmt.Errorf("missing %s", headerSessionID))
				return
			}
			existing, ok := t.sessions.Get(sessionID)
			if !ok {
				writeErrorBody(w, http.StatusNotFound, nil, fmt.Errorf("unknown session %q", sessionID))
				return
			}
			sessID = sessionID

			if protocolVersion != "" && existing.NegotiatedProtocolVersion != "" && protocolVersion != existing.NegotiatedProtocolVersion {
				writeErrorBody(w, http.StatusBadRequest, nil, fmt.Errorf("protocol version %q does not match negotiated %q", protocolVersion, existing.NegotiatedProtocolVersion))
				return
			}
		}
		if protocolVersion != "" && !t.config.isSupportedVersion(protocolVersion) {
			writeErrorBody(w, http.StatusBadRequest, nil, errs.Transportf("unsupported protocol version %q", protocolVersion))
			return
		}
	}

	// Step 6: dispatch. Notifications still run their handler for side
	// effects, but the transport never writes their result to the wire.
	extra := protocol.Extra{
		RequestID: rc.RequestID,
		SessionID: sessID,
		Cancelled: func() bool { return r.Context().Err() != nil },
	}
	ctx := protocol.WithExtra(r.Context(), extra)
	dispatched := t.dispatcher.Dispatch(ctx, req)

	if req.IsNotification() {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	negotiatedVersion := protocolVersion
	if isInit && t.config.IsStateful() && dispatched.Error == nil {
		if version := extractProtocolVersion(dispatched.Result); version != "" {
			negotiatedVersion = version
			_ = t.sessions.MarkInitialized(sessID, version)
		}
	}
	if negotiatedVersion == "" {
		negotiatedVersion = t.config.DefaultProtocolVersion
	}

	// Step 7: record in event store (stateful only).
	respBytes, _ := json.Marshal(dispatched)
	if t.config.IsStateful() && t.events != nil {
		t.events.StoreEvent(sessID, respBytes)
	}

	// Step 9: response headers.
	if t.config.IsStateful() && sessID != "" {
		w.Header().Set(headerSessionID, sessID)
	}
	w.Header().Set(headerProtocolVer, negotiatedVersion)

	// Step 8: response mode.
	if t.config.ResponseMode == ResponseModeSSE {
		t.writeSSEResponse(w, sessID, respBytes)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(respBytes)
}

func (t *Transport) writeSSEResponse(w http.ResponseWriter, sessID string, payload []byte) {
	if sessID != "" && t.sessions.HasStream(sessID) {
		t.sessions.Send(sessID, payload)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	event := payload
	eventID := ""
	if t.events != nil {
		e := t.events.StoreEvent(sessID, payload)
		eventID = e.EventID
		event = e.Message
	}
	fmt.Fprintf(w, "id: %s\nevent: message\ndata: %s\n\n", eventID, event)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// handleGet implements the SSE subscription algorithm of spec.md §4.E.
func (t *Transport) handleGet(w http.ResponseWriter, r *http.Request, rc *middleware.RequestContext) {
	if !acceptContains(r.Header.Get("Accept"), "text/event-stream") {
		writeErrorBody(w, http.StatusNotAcceptable, nil, fmt.Errorf("Accept must be text/event-stream"))
		return
	}
	if !t.config.IsStateful() {
		writeErrorBody(w, http.StatusMethodNotAllowed, nil, fmt.Errorf("SSE subscription requires stateful mode"))
		return
	}

	sessionID := r.Header.Get(headerSessionID)
	if sessionID == "" {
		sessionID = t.config.SessionIDGenerator()
		t.sessions.Create(sessionID)
	} else if _, ok := t.sessions.Get(sessionID); !ok {
		t.sessions.Create(sessionID)
	}

	if t.sessions.HasStream(sessionID) {
		writeErrorBody(w, http.StatusConflict, nil, fmt.Errorf("session %q already has an open stream", sessionID))
		return
	}

	ch, err := t.sessions.RegisterStream(sessionID)
	if err != nil {
		writeErrorBody(w, http.StatusConflict, nil, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(headerSessionID, sessionID)
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)

	if lastEventID := r.Header.Get(headerLastEventID); lastEventID != "" && t.events != nil {
		for _, event := range t.events.ReplayEventsAfter(lastEventID) {
			fmt.Fprintf(w, "id: %s\nevent: message\ndata: %s\n\n", event.EventID, event.Message)
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	for msg := range ch {
		eventID := ""
		if t.events != nil {
			eventID = t.events.StoreEvent(sessionID, msg).EventID
		}
		fmt.Fprintf(w, "id: %s\nevent: message\ndata: %s\n\n", eventID, msg)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// handleDelete implements the session-termination algorithm of spec.md §4.E.
func (t *Transport) handleDelete(w http.ResponseWriter, r *http.Request, rc *middleware.RequestContext) {
	if !t.config.IsStateful() {
		writeErrorBody(w, http.StatusMethodNotAllowed, nil, fmt.Errorf("DELETE requires stateful mode"))
		return
	}
	sessionID := r.Header.Get(headerSessionID)
	if sessionID == "" {
		writeErrorBody(w, http.StatusNotFound, nil, fmt.Errorf("missing %s", headerSessionID))
		return
	}
	if _, ok := t.sessions.Get(sessionID); !ok {
		writeErrorBody(w, http.StatusNotFound, nil, fmt.Errorf("unknown session %q", sessionID))
		return
	}

	t.sessions.CloseStream(sessionID)
	t.sessions.Delete(sessionID)
	if t.config.OnSessionClosed != nil {
		t.config.OnSessionClosed(sessionID)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func writeErrorBody(w http.ResponseWriter, status int, id rpc.ID, err error) {
	resp := rpc.NewErrorResponse(id, err)
	data, marshalErr := json.Marshal(resp)
	if marshalErr != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func extractProtocolVersion(result json.RawMessage) string {
	if len(result) == 0 {
		return ""
	}
	var decoded struct {
		ProtocolVersion string `json:"protocolVersion"`
	}
	if err := json.Unmarshal(result, &decoded); err != nil {
		return ""
	}
	return decoded.ProtocolVersion
}
