// Package rpc implements the JSON-RPC 2.0 envelope and dispatcher of
// spec.md §4.F: parsing/serializing request|notification|response messages
// and routing method strings to registered handlers.
//
// Grounded on pkg/mcp/core/transport/http_types.go's request/response
// envelope types, combined with the protocol framing documented in
// original_source's streamable_http_server.rs.
package rpc

import (
	"encoding/json"

	"github.com/agentrpc/corerpc/errs"
)

const Version = "2.0"

// JSON-RPC 2.0 standard error codes (spec.md §4.F table).
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// ID is a JSON-RPC request identifier: a string, a number, or absent
// (notification). Stored as raw JSON so round-tripping preserves the
// caller's original type.
type ID = json.RawMessage

// Request is a JSON-RPC request or notification (no ID).
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether this message carries no ID.
func (r *Request) IsNotification() bool { return len(r.ID) == 0 }

// Response is a JSON-RPC response, carrying exactly one of Result or Error.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject is the JSON-RPC error member.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// NewResultResponse builds a successful response for id.
func NewResultResponse(id ID, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, errs.Internal("marshal result", err)
	}
	return &Response{JSONRPC: Version, ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error response for id from err, using err's
// errs.Code -> JSON-RPC code mapping when err is an *errs.Error.
func NewErrorResponse(id ID, err error) *Response {
	code := CodeInternalError
	message := err.Error()
	var data any
	if richErr, ok := err.(*errs.Error); ok {
		code = richErr.JSONRPCCode()
		message = richErr.Message
		if len(richErr.Context) > 0 {
			data = richErr.Context
		}
	}
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Error:   &ErrorObject{Code: code, Message: message, Data: data},
	}
}

// ParseMessage decodes a single incoming JSON-RPC message. A message with a
// "method" member is a Request (or notification, if ID is absent); anything
// else is parsed as a Response (reply to a server-initiated request).
func ParseMessage(body []byte) (*Request, *Response, error) {
	var probe struct {
		Method *string `json:"method"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, nil, errs.New(errs.CodeTransport).
			Message("invalid JSON-RPC payload").
			Cause(err).
			Build()
	}

	if probe.Method != nil {
		var req Request
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, nil, errs.New(errs.CodeTransport).Message("invalid request").Cause(err).Build()
		}
		if req.JSONRPC == "" {
			req.JSONRPC = Version
		}
		return &req, nil, nil
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, nil, errs.New(errs.CodeTransport).Message("invalid response").Cause(err).Build()
	}
	return nil, &resp, nil
}
