// Package taskworkflow wraps a workflow.Engine with durable progress
// tracking via a protocol.TaskRouter: one task per workflow invocation, one
// batch variable write per invocation, and a structured pause reason recorded
// whenever the inner engine hands off instead of completing.
//
// The original crate's src/server/workflow/task_prompt_handler.rs is a thin
// re-export in the filtered source this module was built from, so this
// package is grounded directly on spec.md §4.H/§6's prose description of
// the wrapper's responsibilities rather than on a literal translation.
package taskworkflow

import "github.com/agentrpc/corerpc/workflow"

// StepStatus is the durable status of one workflow step, recorded in
// WorkflowProgress and batch-written as a task variable once the engine run
// ends.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepProgress is one step's entry in a WorkflowProgress snapshot.
type StepProgress struct {
	Name   string     `json:"name"`
	Status StepStatus `json:"status"`
}

// WorkflowProgress is the `_workflow.progress` task variable's value: a
// durable snapshot of which steps have run and how they ended, readable by
// any client polling the task while the workflow is paused or still
// running.
type WorkflowProgress struct {
	Goal          string         `json:"goal"`
	Steps         []StepProgress `json:"steps"`
	SchemaVersion int            `json:"schema_version"`
}

func newWorkflowProgress(def *workflow.Definition) *WorkflowProgress {
	steps := make([]StepProgress, len(def.Steps()))
	for i, s := range def.Steps() {
		steps[i] = StepProgress{Name: s.Name(), Status: StepPending}
	}
	return &WorkflowProgress{Goal: def.Description(), Steps: steps, SchemaVersion: 1}
}

// PauseReason is the `_workflow.pause_reason` task variable's value,
// recorded the moment the inner engine hands off. Exactly one of the
// Type-specific field groups is populated; Type names which one, matching
// the tagged-by-"type", camelCase-field wire shapes spec.md §6 defines:
//
//	unresolvableParams{blockedStep, missingParam, suggestedTool}
//	schemaMismatch{blockedStep, missingFields[], suggestedTool}
//	toolError{failedStep, error, retryable, suggestedTool}
//	unresolvedDependency{blockedStep, missingOutput, producingStep, suggestedTool}
type PauseReason struct {
	Type string `json:"type"`

	BlockedStep   string   `json:"blockedStep,omitempty"`
	MissingParam  string   `json:"missingParam,omitempty"`
	MissingFields []string `json:"missingFields,omitempty"`
	FailedStep    string   `json:"failedStep,omitempty"`
	Error         string   `json:"error,omitempty"`
	Retryable     bool     `json:"retryable,omitempty"`
	MissingOutput string   `json:"missingOutput,omitempty"`
	ProducingStep string   `json:"producingStep,omitempty"`
	SuggestedTool string   `json:"suggestedTool,omitempty"`
}

const (
	typeUnresolvableParams   = "unresolvableParams"
	typeSchemaMismatch       = "schemaMismatch"
	typeToolError            = "toolError"
	typeUnresolvedDependency = "unresolvedDependency"
)

// suggestedToolFor names the tool a retry of event's step would call, if the
// step runs a tool at all (resource-only steps have none).
func suggestedToolFor(event workflow.StepEvent) string {
	if event.Step == nil {
		return ""
	}
	if tool := event.Step.Tool(); tool != nil {
		return tool.Name
	}
	return ""
}

// classifyPauseReason translates the workflow engine's internal StepEvent
// into the durable, wire-shaped PauseReason spec.md §6 defines.
func classifyPauseReason(event workflow.StepEvent) *PauseReason {
	stepName := ""
	if event.Step != nil {
		stepName = event.Step.Name()
	}
	suggestedTool := suggestedToolFor(event)

	switch event.PauseKind {
	case workflow.PauseUnresolvableParams:
		return &PauseReason{
			Type: typeUnresolvableParams, BlockedStep: stepName,
			MissingParam: event.MissingParam, SuggestedTool: suggestedTool,
		}

	case workflow.PauseSchemaMismatch:
		return &PauseReason{
			Type: typeSchemaMismatch, BlockedStep: stepName,
			MissingFields: event.MissingFields, SuggestedTool: suggestedTool,
		}

	case workflow.PauseToolError:
		errText := ""
		if event.Err != nil {
			errText = event.Err.Error()
		}
		return &PauseReason{
			Type: typeToolError, FailedStep: stepName,
			Error: errText, Retryable: event.Retryable, SuggestedTool: suggestedTool,
		}

	case workflow.PauseUnresolvedDependency:
		return &PauseReason{
			Type: typeUnresolvedDependency, BlockedStep: stepName,
			MissingOutput: event.MissingOutput, ProducingStep: event.ProducingStep,
			SuggestedTool: suggestedTool,
		}

	default:
		errText := ""
		if event.Err != nil {
			errText = event.Err.Error()
		}
		return &PauseReason{Type: typeToolError, FailedStep: stepName, Error: errText, SuggestedTool: suggestedTool}
	}
}
