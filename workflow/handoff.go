package workflow

import "fmt"

// PauseKind classifies why a workflow step could not be resolved or
// executed deterministically, mirroring the four handoff causes of spec.md
// §4.H/§6: unresolvable prompt-argument parameters, a tool-input-schema
// mismatch, a failing tool call, or a reference to a step output that was
// never produced.
type PauseKind int

const (
	// PauseNone means the step completed; no pause occurred.
	PauseNone PauseKind = iota
	PauseUnresolvableParams
	PauseSchemaMismatch
	PauseToolError
	PauseUnresolvedDependency
)

// StepOutcome is the terminal state of one step after a Handle invocation,
// mirroring the Pending|Completed|Failed|Skipped taxonomy of spec.md §4.H.
type StepOutcome int

const (
	StepCompleted StepOutcome = iota
	StepFailed
	StepSkipped
)

// StepEvent is reported to a StepObserver once per step the loop actually
// visits. A workflow.Engine consumer with no interest in per-step
// bookkeeping (the common case) never sets one; the Task-Aware wrapper in
// package taskworkflow is the only consumer that does.
type StepEvent struct {
	Index   int
	Step    *Step
	Outcome StepOutcome

	// Populated only when Outcome == StepCompleted and the step ran a tool.
	Result any

	// Populated only when Outcome == StepFailed.
	PauseKind     PauseKind
	MissingParam  string
	MissingFields []string
	MissingOutput string
	ProducingStep string
	Err           error

	// Retryable is set only for PauseToolError and reports whether the same
	// step is worth retrying unmodified -- true for transient/internal tool
	// failures, false for errors classified as the caller's own input being
	// invalid (retrying with the same arguments would fail again).
	Retryable bool
}

// StepObserver receives one StepEvent per step visited by Handle, in step
// order. Observers must not block; Handle calls them synchronously inline
// with the step loop.
type StepObserver func(event StepEvent)

// unresolvedParamError reports that a step's prompt-argument parameter
// could not be resolved because the caller never supplied it.
type unresolvedParamError struct {
	step  string
	param string
	arg   string
}

func (e *unresolvedParamError) Error() string {
	return fmt.Sprintf("step %q: missing required argument %q for parameter %q", e.step, e.arg, e.param)
}

// unresolvedBindingError reports that a step's parameter references a
// StepOutput binding no earlier step produced.
type unresolvedBindingError struct {
	step    string
	param   string
	binding string
}

func (e *unresolvedBindingError) Error() string {
	return fmt.Sprintf("step %q: parameter %q references unresolved binding %q", e.step, e.param, e.binding)
}

// findProducingStep returns the name of the step (if any) in steps whose
// Bind() target matches binding, used to populate StepEvent.ProducingStep
// for an UnresolvedDependency pause.
func findProducingStep(steps []*Step, binding string) (string, bool) {
	for _, s := range steps {
		if b, ok := s.Binding(); ok && b == binding {
			return s.Name(), true
		}
	}
	return "", false
}
