package main

import (
	"context"
	"encoding/json"

	"github.com/agentrpc/corerpc/errs"
	"github.com/agentrpc/corerpc/logging"
	"github.com/agentrpc/corerpc/protocol"
	"github.com/agentrpc/corerpc/rpc"
	"github.com/agentrpc/corerpc/task"
	"github.com/agentrpc/corerpc/workflow"
	"github.com/agentrpc/corerpc/workflow/taskworkflow"
)

// serverComponents is every collaborator the method handlers close over.
// Built once by buildServer and never mutated afterward.
type serverComponents struct {
	toolInfos        map[string]workflow.ToolInfo
	executor         protocol.MiddlewareExecutor
	resources        *staticResources
	prompt           *taskworkflow.Wrapper
	promptDef        *workflow.Definition
	tasks            task.Store
	protocolVersions []string
	defaultVersion   string
}

func mustExtra(ctx context.Context) protocol.Extra {
	extra, ok := protocol.ExtraFromContext(ctx)
	if !ok {
		return protocol.Extra{}
	}
	return extra
}

func registerHandlers(dispatcher *rpc.Dispatcher, c *serverComponents) {
	dispatcher.Register(rpc.MethodInitialize, c.handleInitialize)
	dispatcher.Register(rpc.MethodPing, c.handlePing)
	dispatcher.Register(rpc.MethodToolsList, c.handleToolsList)
	dispatcher.Register(rpc.MethodToolsCall, c.handleToolsCall)
	dispatcher.Register(rpc.MethodPromptsList, c.handlePromptsList)
	dispatcher.Register(rpc.MethodPromptsGet, c.handlePromptsGet)
	dispatcher.Register(rpc.MethodResourcesList, c.handleResourcesList)
	dispatcher.Register(rpc.MethodResourcesRead, c.handleResourcesRead)
	dispatcher.Register(rpc.MethodResourcesTemplatesList, c.handleResourcesTemplatesList)
	dispatcher.Register(rpc.MethodResourcesSubscribe, c.handleResourcesUnsupported)
	dispatcher.Register(rpc.MethodResourcesUnsubscribe, c.handleResourcesUnsupported)
	dispatcher.Register(rpc.MethodLoggingSetLevel, c.handleLoggingSetLevel)
	dispatcher.Register(rpc.MethodTasksGet, c.handleTasksGet)
	dispatcher.Register(rpc.MethodTasksResult, c.handleTasksResult)
	dispatcher.Register(rpc.MethodTasksList, c.handleTasksList)
	dispatcher.Register(rpc.MethodTasksCancel, c.handleTasksCancel)
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      map[string]any `json:"serverInfo"`
}

func (c *serverComponents) handleInitialize(ctx context.Context, params json.RawMessage) (any, error) {
	var req struct {
		ProtocolVersion string `json:"protocolVersion"`
	}
	_ = json.Unmarshal(params, &req)

	version := c.defaultVersion
	for _, v := range c.protocolVersions {
		if v == req.ProtocolVersion {
			version = req.ProtocolVersion
			break
		}
	}

	return initializeResult{
		ProtocolVersion: version,
		Capabilities: map[string]any{
			"tools":     map[string]any{},
			"prompts":   map[string]any{},
			"resources": map[string]any{},
			"tasks":     map[string]any{"supportsCancel": true, "supportsList": true},
		},
		ServerInfo: map[string]any{"name": "corerpc-demo", "version": "0.1.0"},
	}, nil
}

func (c *serverComponents) handlePing(ctx context.Context, params json.RawMessage) (any, error) {
	return map[string]any{}, nil
}

func (c *serverComponents) handleToolsList(ctx context.Context, params json.RawMessage) (any, error) {
	tools := make([]map[string]any, 0, len(c.toolInfos))
	for _, info := range c.toolInfos {
		tools = append(tools, map[string]any{
			"name":        info.Name,
			"description": info.Description,
			"inputSchema": info.InputSchema,
		})
	}
	return map[string]any{"tools": tools}, nil
}

func (c *serverComponents) handleToolsCall(ctx context.Context, params json.RawMessage) (any, error) {
	var req struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errs.Validationf("invalid tools/call params: %v", err)
	}
	if _, known := c.toolInfos[req.Name]; !known {
		return nil, unknownToolError(req.Name)
	}
	result, err := c.executor.ExecuteToolWithMiddleware(ctx, req.Name, req.Arguments, mustExtra(ctx))
	if err != nil {
		return nil, err
	}
	return map[string]any{"content": result}, nil
}

func (c *serverComponents) handlePromptsList(ctx context.Context, params json.RawMessage) (any, error) {
	args := make([]map[string]any, 0, len(c.promptDef.Arguments()))
	for name, spec := range c.promptDef.Arguments() {
		args = append(args, map[string]any{
			"name":        name,
			"description": spec.Description,
			"required":    spec.Required,
		})
	}
	return map[string]any{"prompts": []map[string]any{{
		"name":        c.promptDef.Name(),
		"description": c.promptDef.Description(),
		"arguments":   args,
	}}}, nil
}

func (c *serverComponents) handlePromptsGet(ctx context.Context, params json.RawMessage) (any, error) {
	var req struct {
		Name      string            `json:"name"`
		Arguments map[string]string `json:"arguments"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errs.Validationf("invalid prompts/get params: %v", err)
	}
	if req.Name != c.promptDef.Name() {
		return nil, errs.New(errs.CodeNotFound).Messagef("unknown prompt %q", req.Name).Build()
	}
	return c.prompt.Handle(ctx, req.Arguments, mustExtra(ctx))
}

func (c *serverComponents) handleResourcesList(ctx context.Context, params json.RawMessage) (any, error) {
	var req struct {
		Cursor string `json:"cursor"`
	}
	_ = json.Unmarshal(params, &req)
	page, err := c.resources.List(ctx, req.Cursor, mustExtra(ctx))
	if err != nil {
		return nil, err
	}
	return map[string]any{"resources": page.Resources, "nextCursor": page.NextCursor}, nil
}

func (c *serverComponents) handleResourcesRead(ctx context.Context, params json.RawMessage) (any, error) {
	var req struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errs.Validationf("invalid resources/read params: %v", err)
	}
	contents, err := c.resources.Read(ctx, req.URI, mustExtra(ctx))
	if err != nil {
		return nil, err
	}
	return map[string]any{"contents": contents}, nil
}

// handleResourcesTemplatesList reports no URI templates: staticResources
// serves a fixed document set, not parameterized ones.
func (c *serverComponents) handleResourcesTemplatesList(ctx context.Context, params json.RawMessage) (any, error) {
	return map[string]any{"resourceTemplates": []any{}}, nil
}

// handleResourcesUnsupported answers resources/subscribe and
// resources/unsubscribe: staticResources never changes, so there is
// nothing to subscribe to.
func (c *serverComponents) handleResourcesUnsupported(ctx context.Context, params json.RawMessage) (any, error) {
	return nil, errs.New(errs.CodeValidation).Message("resource subscriptions are not supported").Build()
}

func (c *serverComponents) handleLoggingSetLevel(ctx context.Context, params json.RawMessage) (any, error) {
	var req struct {
		Level string `json:"level"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errs.Validationf("invalid logging/setLevel params: %v", err)
	}
	if err := logging.SetLevel(req.Level); err != nil {
		return nil, errs.Validationf("unknown log level %q", req.Level)
	}
	return map[string]any{}, nil
}

func (c *serverComponents) handleTasksGet(ctx context.Context, params json.RawMessage) (any, error) {
	var req struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errs.Validationf("invalid tasks/get params: %v", err)
	}
	return c.tasks.Get(ctx, req.TaskID, taskOwner(ctx))
}

func (c *serverComponents) handleTasksResult(ctx context.Context, params json.RawMessage) (any, error) {
	var req struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errs.Validationf("invalid tasks/result params: %v", err)
	}
	result, err := c.tasks.GetResult(ctx, req.TaskID, taskOwner(ctx))
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": result}, nil
}

func (c *serverComponents) handleTasksList(ctx context.Context, params json.RawMessage) (any, error) {
	var req struct {
		Cursor string `json:"cursor"`
		Limit  *int   `json:"limit"`
	}
	_ = json.Unmarshal(params, &req)
	page, err := c.tasks.List(ctx, task.ListOptions{OwnerID: taskOwner(ctx), Cursor: req.Cursor, Limit: req.Limit})
	if err != nil {
		return nil, err
	}
	return map[string]any{"tasks": page.Tasks, "nextCursor": page.NextCursor}, nil
}

func (c *serverComponents) handleTasksCancel(ctx context.Context, params json.RawMessage) (any, error) {
	var req struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errs.Validationf("invalid tasks/cancel params: %v", err)
	}
	return c.tasks.Cancel(ctx, req.TaskID, taskOwner(ctx))
}

// taskOwner mirrors taskrouter.Router.ResolveOwner's fallback so direct
// tasks/* calls use the same owner identity a workflow-created task did.
func taskOwner(ctx context.Context) string {
	extra := mustExtra(ctx)
	if extra.SessionID != "" {
		return extra.SessionID
	}
	return task.AnonymousPrincipal
}
