package rpc

import (
	"context"
	"encoding/json"
	"sync"
)

// Handler processes one request's params and returns a JSON-serializable
// result, or an error (typically an *errs.Error, mapped to a JSON-RPC code
// by NewErrorResponse).
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Method name constants for the protocol surface of spec.md §6.
const (
	MethodInitialize               = "initialize"
	MethodToolsList                = "tools/list"
	MethodToolsCall                = "tools/call"
	MethodPromptsList              = "prompts/list"
	MethodPromptsGet               = "prompts/get"
	MethodResourcesList            = "resources/list"
	MethodResourcesRead            = "resources/read"
	MethodResourcesSubscribe       = "resources/subscribe"
	MethodResourcesUnsubscribe     = "resources/unsubscribe"
	MethodResourcesTemplatesList   = "resources/templates/list"
	MethodCompletionComplete       = "completion/complete"
	MethodLoggingSetLevel          = "logging/setLevel"
	MethodPing                     = "ping"
	MethodSamplingCreateMessage    = "sampling/createMessage"
	MethodElicitationResponse      = "elicitation/response"
	MethodTasksGet                 = "tasks/get"
	MethodTasksResult              = "tasks/result"
	MethodTasksList                = "tasks/list"
	MethodTasksCancel              = "tasks/cancel"
)

// Dispatcher routes a parsed Request to a registered Handler by method
// string (spec.md §4.F).
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewDispatcher constructs an empty method registry.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register binds method to handler, overwriting any previous registration.
func (d *Dispatcher) Register(method string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[method] = handler
}

// Dispatch resolves req.Method and invokes its handler, producing a
// Response. Unknown methods fail with CodeMethodNotFound. Notifications
// (req.IsNotification()) still run the handler (for side effects) but
// callers of Dispatch should not write the returned Response to the wire
// for notifications -- the transport layer decides that per spec.md §4.E
// ("Notifications ... return 202 Accepted with no body").
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) *Response {
	d.mu.RLock()
	handler, ok := d.handlers[req.Method]
	d.mu.RUnlock()

	if !ok {
		return &Response{
			JSONRPC: Version,
			ID:      req.ID,
			Error: &ErrorObject{
				Code:    CodeMethodNotFound,
				Message: "method not found: " + req.Method,
			},
		}
	}

	result, err := handler(ctx, req.Params)
	if err != nil {
		return NewErrorResponse(req.ID, err)
	}

	resp, err := NewResultResponse(req.ID, result)
	if err != nil {
		return NewErrorResponse(req.ID, err)
	}
	return resp
}
