// Package errs implements the task-store / transport error taxonomy.
//
// Every error the core surfaces is an *Error carrying a stable Code, a
// human message, structured Context, and an optional wrapped Cause. The
// shape is a trimmed-down RichError: no severity, no source location
// capture, no suggestions list -- just what downstream callers (the
// transport's JSON-RPC encoder, the task store's error remapping) actually
// switch on.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Code is a stable, comparable error classification.
type Code string

const (
	CodeNotFound               Code = "NOT_FOUND"
	CodeInvalidTransition      Code = "INVALID_TRANSITION"
	CodeExpired                Code = "EXPIRED"
	CodeNotReady               Code = "NOT_READY"
	CodeConcurrentModification Code = "CONCURRENT_MODIFICATION"
	CodeVariableSizeExceeded   Code = "VARIABLE_SIZE_EXCEEDED"
	CodeResourceExhausted      Code = "RESOURCE_EXHAUSTED"
	CodeStoreError             Code = "STORE_ERROR"
	CodeTransport              Code = "TRANSPORT"
	CodeValidation             Code = "VALIDATION"
	CodeInternal               Code = "INTERNAL"
)

// Error is the concrete error type produced by every package in this module.
type Error struct {
	Code      Code
	Message   string
	Context   map[string]any
	Cause     error
	Timestamp time.Time
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is makes errors.Is match any *Error target carrying the same Code, e.g.
// errors.Is(err, errs.New(errs.CodeNotFound).Build()).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// JSONRPCCode maps this error's Code onto a JSON-RPC 2.0 error code.
// Validation, Transport and Internal (and any unknown Code) map onto the
// standard codes -32602, -32600 and -32603 (see rpc.Code*); the task-store
// taxonomy lives in the implementation-defined server-error band
// -32000..-32099.
func (e *Error) JSONRPCCode() int {
	switch e.Code {
	case CodeValidation:
		return -32602
	case CodeTransport:
		return -32600
	case CodeInternal:
		return -32603
	case CodeNotFound:
		return -32001
	case CodeInvalidTransition:
		return -32002
	case CodeExpired:
		return -32003
	case CodeNotReady:
		return -32004
	case CodeConcurrentModification:
		return -32005
	case CodeVariableSizeExceeded:
		return -32006
	case CodeResourceExhausted:
		return -32007
	case CodeStoreError:
		return -32008
	default:
		return -32603
	}
}

// Builder is a fluent constructor for *Error, grounded on pkg/mcp's
// RichError ErrorBuilder.
type Builder struct {
	err *Error
}

// New starts a builder for the given code.
func New(code Code) *Builder {
	return &Builder{err: &Error{Code: code, Timestamp: time.Now()}}
}

func (b *Builder) Message(msg string) *Builder {
	b.err.Message = msg
	return b
}

func (b *Builder) Messagef(format string, args ...any) *Builder {
	b.err.Message = fmt.Sprintf(format, args...)
	return b
}

func (b *Builder) Context(key string, value any) *Builder {
	if b.err.Context == nil {
		b.err.Context = make(map[string]any)
	}
	b.err.Context[key] = value
	return b
}

func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

func (b *Builder) Build() *Error { return b.err }

// ---- Typed constructors for the spec's taxonomy (§7) ----

// NotFound covers both a genuinely missing record and an owner mismatch --
// the two are intentionally indistinguishable to callers (leakage
// prevention, spec.md invariant #2).
func NotFound(taskID string) *Error {
	return New(CodeNotFound).
		Messagef("task %q not found", taskID).
		Context("task_id", taskID).
		Build()
}

func InvalidTransition(taskID, from, to string) *Error {
	return New(CodeInvalidTransition).
		Messagef("invalid transition for task %q: %s -> %s", taskID, from, to).
		Context("task_id", taskID).
		Context("from", from).
		Context("to", to).
		Build()
}

func Expired(taskID string, expiredAt time.Time) *Error {
	return New(CodeExpired).
		Messagef("task %q expired at %s", taskID, expiredAt.UTC().Format(time.RFC3339Nano)).
		Context("task_id", taskID).
		Context("expired_at", expiredAt).
		Build()
}

func NotReady(taskID, currentStatus string) *Error {
	return New(CodeNotReady).
		Messagef("task %q result not ready (status=%s)", taskID, currentStatus).
		Context("task_id", taskID).
		Context("current_status", currentStatus).
		Build()
}

func ConcurrentModification(key string, expected, actual int64) *Error {
	return New(CodeConcurrentModification).
		Messagef("version conflict on %q: expected %d, actual %d", key, expected, actual).
		Context("key", key).
		Context("expected_version", expected).
		Context("actual_version", actual).
		Build()
}

func VariableSizeExceeded(limit, actual int) *Error {
	return New(CodeVariableSizeExceeded).
		Messagef("merged variables size %d exceeds limit %d", actual, limit).
		Context("limit_bytes", limit).
		Context("actual_bytes", actual).
		Build()
}

func ResourceExhausted(suggestedAction string) *Error {
	b := New(CodeResourceExhausted).Message("resource exhausted")
	if suggestedAction != "" {
		b = b.Context("suggested_action", suggestedAction)
	}
	return b.Build()
}

func StoreErrorf(format string, args ...any) *Error {
	return New(CodeStoreError).Messagef(format, args...).Build()
}

func Validation(msg string) *Error {
	return New(CodeValidation).Message(msg).Build()
}

func Validationf(format string, args ...any) *Error {
	return New(CodeValidation).Messagef(format, args...).Build()
}

func Internal(msg string, cause error) *Error {
	return New(CodeInternal).Message(msg).Cause(cause).Build()
}

func Transportf(format string, args ...any) *Error {
	return New(CodeTransport).Messagef(format, args...).Build()
}

// CodeOf extracts the Code from err if it is (or wraps) an *Error, and
// CodeInternal otherwise.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
