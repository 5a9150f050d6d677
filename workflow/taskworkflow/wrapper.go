package taskworkflow

import (
	"context"

	"github.com/agentrpc/corerpc/protocol"
	"github.com/agentrpc/corerpc/workflow"
)

const (
	varProgress    = "_workflow.progress"
	varPauseReason = "_workflow.pause_reason"
)

func varResult(stepName string) string {
	return "_workflow.result." + stepName
}

// Wrapper adds durable task-backed progress to a workflow.Engine, per
// spec.md §4.H. It depends only on protocol.TaskRouter, never on a
// concrete task store, so it and the engine can be tested and composed
// independently of each other (spec.md §9).
type Wrapper struct {
	engine *workflow.Engine
	def    *workflow.Definition
	router protocol.TaskRouter
}

// New builds a Wrapper running def through engine, backed by router for
// durable task tracking. router may be nil, in which case Handle degrades
// to running engine directly with no task created.
func New(engine *workflow.Engine, def *workflow.Definition, router protocol.TaskRouter) *Wrapper {
	return &Wrapper{engine: engine, def: def, router: router}
}

// Handle runs the wrapped workflow, creating a durable task to track its
// progress when a TaskRouter is configured. Any failure to create the task
// or resolve its owner degrades gracefully to running the inner engine with
// no task tracking at all, rather than failing the call outright.
func (w *Wrapper) Handle(ctx context.Context, args map[string]string, extra protocol.Extra) (*protocol.PromptResult, error) {
	if w.router == nil {
		return w.engine.Handle(ctx, args, extra)
	}

	ownerID, err := w.router.ResolveOwner(ctx, extra)
	if err != nil {
		return w.engine.Handle(ctx, args, extra)
	}

	taskID, err := w.router.CreateWorkflowTask(ctx, ownerID, w.def.Description())
	if err != nil {
		return w.engine.Handle(ctx, args, extra)
	}

	progress := newWorkflowProgress(w.def)
	results := map[string]any{}
	bindingResults := map[string]any{}
	var pauseReason *PauseReason
	var failedStepCount int

	observer := func(event workflow.StepEvent) {
		if event.Index < 0 || event.Index >= len(progress.Steps) {
			return
		}
		switch event.Outcome {
		case workflow.StepCompleted:
			progress.Steps[event.Index].Status = StepCompleted
			if event.Result != nil && event.Step != nil {
				results[event.Step.Name()] = event.Result
				if binding, ok := event.Step.Binding(); ok {
					bindingResults[binding] = event.Result
				}
			}
		case workflow.StepFailed:
			progress.Steps[event.Index].Status = StepFailed
			pauseReason = classifyPauseReason(event)
			failedStepCount++
		case workflow.StepSkipped:
			progress.Steps[event.Index].Status = StepSkipped
		}
	}

	result, err := w.engine.HandleWithObserver(ctx, args, extra, observer)
	if err != nil {
		return nil, err
	}

	if pauseReason != nil {
		result.Messages = append(result.Messages, buildHandoffMessage(w.def, progress, args, bindingResults, pauseReason))
	}

	stepsCompleted := 0
	variables := map[string]any{varProgress: progress}
	for _, sp := range progress.Steps {
		if sp.Status == StepCompleted {
			stepsCompleted++
		}
	}
	for name, value := range results {
		variables[varResult(name)] = value
	}
	if pauseReason != nil {
		variables[varPauseReason] = pauseReason
	}

	// Batch variable writes are best-effort: a task-store failure here
	// still lets the caller see the workflow's conversation trace, just
	// without durable progress for this invocation.
	_ = w.router.SetTaskVariables(ctx, taskID, ownerID, variables)

	stepsMeta := make([]map[string]any, len(progress.Steps))
	for i, sp := range progress.Steps {
		stepsMeta[i] = map[string]any{"name": sp.Name, "status": sp.Status}
	}

	meta := map[string]any{
		"task_id": taskID,
		"steps":   stepsMeta,
	}

	if pauseReason == nil && failedStepCount == 0 {
		completion := map[string]any{"completed": true, "steps_completed": stepsCompleted}
		_ = w.router.CompleteWorkflowTask(ctx, taskID, ownerID, completion)
		meta["task_status"] = "completed"
	} else {
		// A step paused or failed but the task itself is still in progress
		// (awaiting a retry or out-of-band resolution), matching the
		// "working"|"completed" enum spec.md §6 defines -- there is no
		// separate "paused" task status.
		meta["task_status"] = "working"
		meta["pause_reason"] = pauseReason
	}

	if result.Meta == nil {
		result.Meta = map[string]any{}
	}
	for k, v := range meta {
		result.Meta[k] = v
	}

	return result, nil
}

// Variable key names, exported for callers that need to read task state
// back out without importing this package's internals.
var (
	ProgressVariable = varProgress
	PauseVariable    = varPauseReason
)
