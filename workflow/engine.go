package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agentrpc/corerpc/errs"
	"github.com/agentrpc/corerpc/protocol"
)

// Engine runs one Definition's sequential step loop, resolving tool
// parameters from prompt arguments, constants, and prior step outputs, and
// executing tools either through an injected protocol.MiddlewareExecutor or
// (absent one) a direct map of protocol.ToolHandler implementations.
//
// Mirrors WorkflowPromptHandler from
// src/server/workflow/prompt_handler.rs. Depends only on the protocol
// package's interfaces, never on a concrete dispatcher or task store, per
// spec.md §9's cyclic-interfaces design note.
type Engine struct {
	workflow  *Definition
	tools     map[string]ToolInfo
	executor  protocol.MiddlewareExecutor
	handlers  map[string]protocol.ToolHandler
	resources protocol.ResourceHandler
}

// NewEngine builds an Engine for workflow, given the registry of tool
// metadata it may call. executor and resources may be nil; a nil executor
// falls back to handlers (set via WithToolHandler), which is primarily
// useful for tests that don't need the full middleware chain.
func NewEngine(workflow *Definition, tools map[string]ToolInfo) *Engine {
	return &Engine{
		workflow: workflow,
		tools:    tools,
		handlers: map[string]protocol.ToolHandler{},
	}
}

// WithMiddlewareExecutor routes tool execution through executor, which runs
// a tool's full middleware chain (spec.md §4.F). Returns e for chaining.
func (e *Engine) WithMiddlewareExecutor(executor protocol.MiddlewareExecutor) *Engine {
	e.executor = executor
	return e
}

// WithToolHandler registers a direct handler for toolName, used when no
// MiddlewareExecutor is configured. Returns e for chaining.
func (e *Engine) WithToolHandler(toolName string, handler protocol.ToolHandler) *Engine {
	e.handlers[toolName] = handler
	return e
}

// WithResourceHandler configures the reader used to fetch a step's
// resources. Returns e for chaining.
func (e *Engine) WithResourceHandler(resources protocol.ResourceHandler) *Engine {
	e.resources = resources
	return e
}

// Handle runs the workflow's step loop to completion or to a handoff point,
// per spec.md §4.G. A handoff is never reported as an error: it is a
// PromptResult whose trace stops short, after the assistant message
// explaining why the workflow can't proceed automatically. Cancellation is
// the one exception -- it surfaces as an Internal error naming the step the
// workflow was about to run, per spec.md §5.
func (e *Engine) Handle(ctx context.Context, args map[string]string, extra protocol.Extra) (*protocol.PromptResult, error) {
	return e.HandleWithObserver(ctx, args, extra, nil)
}

// HandleWithObserver runs Handle's step loop exactly as Handle does, but
// additionally reports one StepEvent per visited step to observer, which
// may be nil. Observer is a per-call argument rather than engine state so
// that a single Engine can safely serve concurrent requests each tracked by
// a different observer -- package taskworkflow uses this to attach durable,
// per-invocation progress tracking without touching Engine's shared fields.
func (e *Engine) HandleWithObserver(ctx context.Context, args map[string]string, extra protocol.Extra, observer StepObserver) (*protocol.PromptResult, error) {
	notify := func(event StepEvent) {
		if observer != nil {
			observer(event)
		}
	}

	if err := e.checkRequiredArguments(args); err != nil {
		return nil, err
	}

	ec := newExecutionContext()
	messages := []protocol.PromptMessage{
		createUserIntent(e.workflow, args),
		e.createAssistantPlan(),
	}

	total := len(e.workflow.Steps())
	for i, step := range e.workflow.Steps() {
		if extra.IsCancelled() {
			notify(StepEvent{Index: i, Step: step, Outcome: StepSkipped})
			return nil, errs.Internal(fmt.Sprintf("cancelled at %s", step.Name()), nil)
		}
		extra.ReportProgress(i, total, fmt.Sprintf("running step %q", step.Name()))

		if guidance, ok := step.Guidance(); ok {
			messages = append(messages, protocol.PromptMessage{
				Role: protocol.RoleAssistant,
				Text: substituteArguments(guidance, args),
			})
		}

		preBindings, err := e.resolveTemplateBindings(step.TemplateBindings(), args, ec)
		if err != nil {
			notify(e.dependencyFailureEvent(i, step, err))
			messages = append(messages, handoffMessage("unable to resolve resources for step %q: %s", step.Name(), err))
			return &protocol.PromptResult{Description: e.workflow.Description(), Messages: messages}, nil
		}

		fetchPreTool := !templateBindingsUseStepOutputs(step.TemplateBindings())
		if fetchPreTool {
			resourceMsgs, ok := e.fetchStepResources(ctx, step, preBindings, extra)
			messages = append(messages, resourceMsgs...)
			if !ok {
				notify(StepEvent{Index: i, Step: step, Outcome: StepFailed, PauseKind: PauseToolError,
					Err: errors.New("resource fetch failed"), Retryable: true})
				return &protocol.PromptResult{Description: e.workflow.Description(), Messages: messages}, nil
			}
		}

		if step.IsResourceOnly() {
			notify(StepEvent{Index: i, Step: step, Outcome: StepCompleted})
			continue
		}

		messages = append(messages, createToolCallAnnouncement(step))

		params, err := e.resolveToolParameters(step, args, ec)
		if err != nil {
			notify(e.dependencyFailureEvent(i, step, err))
			messages = append(messages, handoffMessage("cannot run step %q: %s", step.Name(), err))
			return &protocol.PromptResult{Description: e.workflow.Description(), Messages: messages}, nil
		}

		satisfied, missing, err := e.paramsSatisfyToolSchema(step, params)
		if err != nil {
			return nil, err
		}
		if !satisfied {
			notify(StepEvent{Index: i, Step: step, Outcome: StepFailed, PauseKind: PauseSchemaMismatch, MissingFields: missing})
			messages = append(messages, handoffMessage(
				"step %q is missing required parameters for tool %q: %v", step.Name(), step.Tool().Name, missing))
			return &protocol.PromptResult{Description: e.workflow.Description(), Messages: messages}, nil
		}

		result, err := e.executeTool(ctx, step.Tool().Name, params, extra)
		if err != nil {
			notify(StepEvent{Index: i, Step: step, Outcome: StepFailed, PauseKind: PauseToolError, Err: err, Retryable: isRetryableToolError(err)})
			messages = append(messages, protocol.PromptMessage{
				Role: protocol.RoleUser,
				Text: fmt.Sprintf("Error executing tool %q: %s", step.Tool().Name, err),
			})
			return &protocol.PromptResult{Description: e.workflow.Description(), Messages: messages}, nil
		}
		messages = append(messages, protocol.PromptMessage{
			Role: protocol.RoleUser,
			Text: fmt.Sprintf("Tool %q returned:\n%s", step.Tool().Name, marshalPretty(result)),
		})

		if binding, ok := step.Binding(); ok {
			ec.store(binding, result)
		}

		if !fetchPreTool {
			postBindings, err := e.resolveTemplateBindings(step.TemplateBindings(), args, ec)
			if err != nil {
				notify(e.dependencyFailureEvent(i, step, err))
				messages = append(messages, handoffMessage("unable to resolve resources for step %q: %s", step.Name(), err))
				return &protocol.PromptResult{Description: e.workflow.Description(), Messages: messages}, nil
			}
			resourceMsgs, ok := e.fetchStepResources(ctx, step, postBindings, extra)
			messages = append(messages, resourceMsgs...)
			if !ok {
				notify(StepEvent{Index: i, Step: step, Outcome: StepFailed, PauseKind: PauseToolError,
					Err: errors.New("resource fetch failed"), Retryable: true})
				return &protocol.PromptResult{Description: e.workflow.Description(), Messages: messages}, nil
			}
		}

		notify(StepEvent{Index: i, Step: step, Outcome: StepCompleted, Result: result})
	}

	extra.ReportProgress(total, total, "workflow complete")

	return &protocol.PromptResult{
		Description: e.workflow.Description(),
		Messages:    messages,
	}, nil
}

// isRetryableToolError reports whether the same step is worth retrying
// unmodified: validation-shaped failures (bad input the step already sent)
// are not, everything else -- including plain errors from handlers that
// never wrap *errs.Error -- is treated as potentially transient.
func isRetryableToolError(err error) bool {
	var richErr *errs.Error
	if errors.As(err, &richErr) {
		switch richErr.Code {
		case errs.CodeValidation, errs.CodeNotFound, errs.CodeInvalidTransition:
			return false
		}
	}
	return true
}

// dependencyFailureEvent classifies a resolution error into the matching
// StepEvent, used wherever resolveToolParameters or resolveTemplateBindings
// fails during Handle.
func (e *Engine) dependencyFailureEvent(index int, step *Step, err error) StepEvent {
	var paramErr *unresolvedParamError
	if errors.As(err, &paramErr) {
		return StepEvent{
			Index: index, Step: step, Outcome: StepFailed,
			PauseKind: PauseUnresolvableParams, MissingParam: paramErr.param, Err: err,
		}
	}

	var bindingErr *unresolvedBindingError
	if errors.As(err, &bindingErr) {
		event := StepEvent{
			Index: index, Step: step, Outcome: StepFailed,
			PauseKind: PauseUnresolvedDependency, MissingOutput: bindingErr.binding, Err: err,
		}
		if producing, ok := findProducingStep(e.workflow.Steps(), bindingErr.binding); ok {
			event.ProducingStep = producing
		}
		return event
	}

	return StepEvent{Index: index, Step: step, Outcome: StepFailed, PauseKind: PauseUnresolvedDependency, Err: err}
}

func (e *Engine) checkRequiredArguments(args map[string]string) error {
	for name, spec := range e.workflow.Arguments() {
		if !spec.Required {
			continue
		}
		if _, ok := args[name]; !ok {
			return errs.Validationf("missing required argument: %s", name)
		}
	}
	return nil
}

func (e *Engine) executeTool(ctx context.Context, toolName string, params map[string]any, extra protocol.Extra) (any, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	if e.executor != nil {
		return e.executor.ExecuteToolWithMiddleware(ctx, toolName, raw, extra)
	}
	handler, ok := e.handlers[toolName]
	if !ok {
		return nil, errs.Internal("no handler registered for tool: "+toolName, nil)
	}
	return handler.Handle(ctx, raw, extra)
}

// fetchStepResources reads step's configured resources, rendering each as a
// user message on success, or an "Error fetching resource" user message
// (which breaks the step loop per spec.md §4.G) on failure. Returns the
// messages produced and whether the loop may continue.
func (e *Engine) fetchStepResources(ctx context.Context, step *Step, bindings map[string]string, extra protocol.Extra) ([]protocol.PromptMessage, bool) {
	if len(step.Resources()) == 0 {
		return nil, true
	}
	if e.resources == nil {
		return []protocol.PromptMessage{{
			Role: protocol.RoleUser,
			Text: fmt.Sprintf("Error fetching resource for step %q: no resource reader configured", step.Name()),
		}}, false
	}

	var out []protocol.PromptMessage
	for _, handle := range step.Resources() {
		uri := renderURITemplate(handle.URI, bindings)
		contents, err := e.resources.Read(ctx, uri, extra)
		if err != nil {
			out = append(out, protocol.PromptMessage{
				Role: protocol.RoleUser,
				Text: fmt.Sprintf("Error fetching resource %s: %s", uri, err),
			})
			return out, false
		}
		for _, c := range contents {
			out = append(out, protocol.PromptMessage{
				Role: protocol.RoleUser,
				Text: fmt.Sprintf("Resource content from %s:\n%s", c.URI, c.Text),
			})
		}
	}
	return out, true
}

func renderURITemplate(template string, bindings map[string]string) string {
	result := template
	for key, value := range bindings {
		result = strings.ReplaceAll(result, "{"+key+"}", value)
	}
	return result
}

func createUserIntent(def *Definition, args map[string]string) protocol.PromptMessage {
	var b strings.Builder
	b.WriteString(def.Description())
	if len(args) > 0 {
		b.WriteString("\n\nArguments:\n")
		for name := range def.Arguments() {
			value, ok := args[name]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "- %s: %s\n", name, value)
		}
	}
	return protocol.PromptMessage{Role: protocol.RoleUser, Text: b.String()}
}

func (e *Engine) createAssistantPlan() protocol.PromptMessage {
	var b strings.Builder
	b.WriteString("Plan:\n")
	for i, step := range e.workflow.Steps() {
		if step.IsResourceOnly() {
			fmt.Fprintf(&b, "%d. %s (fetch resources)\n", i+1, step.Name())
			continue
		}
		fmt.Fprintf(&b, "%d. %s (call %s)\n", i+1, step.Name(), step.Tool().Name)
	}
	return protocol.PromptMessage{Role: protocol.RoleAssistant, Text: b.String()}
}

func createToolCallAnnouncement(step *Step) protocol.PromptMessage {
	return protocol.PromptMessage{
		Role: protocol.RoleAssistant,
		Text: fmt.Sprintf("Calling tool %q for step %q.", step.Tool().Name, step.Name()),
	}
}

func handoffMessage(format string, args ...any) protocol.PromptMessage {
	return protocol.PromptMessage{
		Role: protocol.RoleAssistant,
		Text: "Unable to continue automatically: " + fmt.Sprintf(format, args...),
	}
}
