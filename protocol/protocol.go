// Package protocol declares the external collaborator interfaces of
// spec.md §6: handlers the core consumes but never implements, plus the
// two abstractions that resolve the workflow engine's cyclic dependency on
// tool execution and task tracking (spec.md §9 "Cyclic interfaces between
// components").
//
// Grounded on src/server/middleware_executor.rs and src/server/tasks.rs for
// MiddlewareExecutor/TaskRouter's single-method shape, and on
// pkg/mcp/api/interfaces.go's small handler interfaces for keeping each
// contract to one or two methods rather than deep trait hierarchies.
package protocol

import (
	"context"
	"encoding/json"
)

// Extra carries per-call metadata through handler invocations: cancellation,
// request/session identity, auth context, and an optional progress
// reporter, mirroring RequestHandlerExtra.
type Extra struct {
	RequestID  string
	SessionID  string
	AuthInfo   map[string]any
	Metadata   map[string]any
	Cancelled  func() bool
	OnProgress func(current, total int, message string)
}

// IsCancelled reports whether the caller has requested cancellation.
func (e Extra) IsCancelled() bool {
	return e.Cancelled != nil && e.Cancelled()
}

// ReportProgress forwards a fire-and-forget progress update, if a reporter
// is configured. Progress reporting is never allowed to fail a caller.
func (e Extra) ReportProgress(current, total int, message string) {
	if e.OnProgress != nil {
		e.OnProgress(current, total, message)
	}
}

// extraKey is the unexported context key the transport layer uses to carry
// a request's Extra down to the dispatcher's Handler, since rpc.Handler's
// signature is (ctx, params) only -- Extra rides in ctx rather than
// widening that signature for every method.
type extraKey struct{}

// WithExtra returns a context carrying extra, retrievable via ExtraFromContext.
func WithExtra(ctx context.Context, extra Extra) context.Context {
	return context.WithValue(ctx, extraKey{}, extra)
}

// ExtraFromContext retrieves the Extra stored by WithExtra, if any.
func ExtraFromContext(ctx context.Context) (Extra, bool) {
	extra, ok := ctx.Value(extraKey{}).(Extra)
	return extra, ok
}

// ToolHandler executes one named tool.
type ToolHandler interface {
	Handle(ctx context.Context, args json.RawMessage, extra Extra) (any, error)
}

// PromptInfo is a prompt's registration metadata (spec.md §6).
type PromptInfo struct {
	Name        string
	Description string
	Arguments   []PromptArgument
}

// PromptArgument describes one named prompt argument.
type PromptArgument struct {
	Name        string
	Description string
	Required    bool
}

// Role is a conversation turn's speaker, mirroring PromptMessage::role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// PromptMessage is one turn of a prompt result's conversation trace.
type PromptMessage struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// PromptResult is the reply to a `prompts/get` call: a description plus the
// full conversation trace, and an optional `_meta` payload (spec.md §6).
type PromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
	Meta        map[string]any  `json:"_meta,omitempty"`
}

// PromptHandler answers `prompts/get` and, optionally, contributes to
// `prompts/list` via Metadata.
type PromptHandler interface {
	Handle(ctx context.Context, args map[string]string, extra Extra) (*PromptResult, error)
	Metadata() *PromptInfo
}

// ResourceContent is one piece of fetched resource content; only text
// content is embedded into workflow messages (spec.md §4.G).
type ResourceContent struct {
	URI  string
	Text string
}

// ResourcePage is one page of `resources/list`.
type ResourcePage struct {
	Resources  []string
	NextCursor string
}

// ResourceHandler reads and lists resources addressed by URI.
type ResourceHandler interface {
	Read(ctx context.Context, uri string, extra Extra) ([]ResourceContent, error)
	List(ctx context.Context, cursor string, extra Extra) (ResourcePage, error)
}

// MiddlewareExecutor routes a tool call through the server's full
// middleware chain (OAuth injection, rate limiting, logging) so workflow
// steps and top-level `tools/call` requests share identical behavior.
type MiddlewareExecutor interface {
	ExecuteToolWithMiddleware(ctx context.Context, toolName string, params json.RawMessage, extra Extra) (any, error)
}

// TaskCapabilities describes what a TaskRouter implementation supports,
// advertised to clients during capability negotiation.
type TaskCapabilities struct {
	SupportsCancel bool
	SupportsList   bool
}

// TaskRouter is the workflow engine's sole view of durable task tracking.
// It never references MiddlewareExecutor, and vice versa, breaking the
// cyclic dependency spec.md §9 calls out.
type TaskRouter interface {
	ResolveOwner(ctx context.Context, extra Extra) (string, error)
	CreateWorkflowTask(ctx context.Context, ownerID, goal string) (taskID string, err error)
	SetTaskVariables(ctx context.Context, taskID, ownerID string, variables map[string]any) error
	CompleteWorkflowTask(ctx context.Context, taskID, ownerID string, result any) error
	Capabilities() TaskCapabilities
}

// IdentityProvider is the external OIDC-style collaborator of spec.md §6.
// Only ValidateToken, Discovery, and JWKS are required; the rest support
// optional flows (authorization code exchange, token revocation, dynamic
// client registration) a given deployment may not need.
type IdentityProvider interface {
	ID() string
	DisplayName() string
	Issuer() string
	ValidateToken(ctx context.Context, token string) (map[string]any, error)
	Discovery(ctx context.Context) (map[string]any, error)
	JWKS(ctx context.Context) (json.RawMessage, error)

	AuthorizationURL(ctx context.Context, state, redirectURI string) (string, error)
	ExchangeCode(ctx context.Context, code, redirectURI string) (map[string]any, error)
	RefreshToken(ctx context.Context, refreshToken string) (map[string]any, error)
	RegisterClient(ctx context.Context, metadata map[string]any) (map[string]any, error)
	RevokeToken(ctx context.Context, token string) error
	IntrospectToken(ctx context.Context, token string) (map[string]any, error)
	UserInfo(ctx context.Context, token string) (map[string]any, error)
}
