package workflow

// ToolInfo is the registry metadata the engine needs about a tool: its
// description (for plan rendering) and input schema (for the handoff
// schema-satisfaction check). Resolved by name from a ToolInfo map supplied
// at Engine construction, mirroring the crate's `HashMap<Arc<str>,
// ToolInfo>` tool registry.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// executionContext stores step results (bindings) accumulated as a
// workflow invocation runs. Owned by exactly one invocation (spec.md §5
// "Workflow execution context: strictly owned by one invocation").
type executionContext struct {
	bindings map[string]any
}

func newExecutionContext() *executionContext {
	return &executionContext{bindings: map[string]any{}}
}

func (c *executionContext) store(name string, value any) {
	c.bindings[name] = value
}

func (c *executionContext) get(name string) (any, bool) {
	v, ok := c.bindings[name]
	return v, ok
}
