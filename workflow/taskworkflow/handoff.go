package taskworkflow

import (
	"fmt"
	"strings"

	"github.com/agentrpc/corerpc/protocol"
	"github.com/agentrpc/corerpc/workflow"
)

// describePause renders the human-facing explanation of why the workflow
// paused, never mentioning the task ID, matching spec.md §4.H point 6(a).
func describePause(reason *PauseReason) string {
	switch reason.Type {
	case typeUnresolvableParams:
		return fmt.Sprintf("Step %q is missing required argument %q.", reason.BlockedStep, reason.MissingParam)
	case typeSchemaMismatch:
		return fmt.Sprintf("Step %q is missing required parameters for its tool: %v.", reason.BlockedStep, reason.MissingFields)
	case typeToolError:
		if reason.Retryable {
			return fmt.Sprintf("Step %q failed: %s. This looks retryable.", reason.FailedStep, reason.Error)
		}
		return fmt.Sprintf("Step %q failed: %s.", reason.FailedStep, reason.Error)
	case typeUnresolvedDependency:
		return fmt.Sprintf("Step %q depends on step %q's output, which never completed.", reason.BlockedStep, reason.ProducingStep)
	default:
		return "The workflow could not continue."
	}
}

// renderArgPlaceholder renders one step argument as either its resolved
// value or a placeholder describing what would resolve it, matching the
// `<output from BINDING>` / `<field 'F' from BINDING>` / `<prompt arg NAME>`
// forms spec.md §4.H point 6(b) specifies.
func renderArgPlaceholder(source workflow.DataSource, args map[string]string, bindingResults map[string]any) string {
	switch source.Kind {
	case workflow.KindPromptArg:
		if v, ok := args[source.Name]; ok {
			return v
		}
		return fmt.Sprintf("<prompt arg %s>", source.Name)

	case workflow.KindStepOutput:
		if source.HasField {
			if bound, ok := bindingResults[source.Binding]; ok {
				if field, err := workflow.ExtractField(bound, source.Field); err == nil {
					return workflow.ValueToString(field)
				}
			}
			return fmt.Sprintf("<field '%s' from %s>", source.Field, source.Binding)
		}
		if bound, ok := bindingResults[source.Binding]; ok {
			return workflow.ValueToString(bound)
		}
		return fmt.Sprintf("<output from %s>", source.Binding)

	case workflow.KindConstant:
		return workflow.ValueToString(source.Value)

	default:
		return ""
	}
}

// remainingStepEntry pairs a step with its durable progress snapshot for
// rendering in a handoff message's remaining-steps list.
type remainingStepEntry struct {
	step   *workflow.Step
	status StepStatus
}

// remainingSteps returns every step that has not completed, in definition
// order, then reorders it so the failed step leads when reason is a
// retryable toolError (spec.md §4.H point 6).
func remainingSteps(def *workflow.Definition, progress *WorkflowProgress, reason *PauseReason) []remainingStepEntry {
	steps := def.Steps()
	var remaining []remainingStepEntry
	for i, sp := range progress.Steps {
		if sp.Status == StepCompleted || sp.Status == StepSkipped {
			continue
		}
		if i >= len(steps) {
			continue
		}
		remaining = append(remaining, remainingStepEntry{step: steps[i], status: sp.Status})
	}

	if reason != nil && reason.Type == typeToolError && reason.Retryable {
		for i, entry := range remaining {
			if entry.step.Name() == reason.FailedStep {
				reordered := make([]remainingStepEntry, 0, len(remaining))
				reordered = append(reordered, entry)
				reordered = append(reordered, remaining[:i]...)
				reordered = append(reordered, remaining[i+1:]...)
				return reordered
			}
		}
	}
	return remaining
}

// renderRemainingStep renders one line (plus an optional guidance line) for
// a remaining step, listing its tool call with resolved-or-placeholder
// arguments. A step already marked failed is tagged so the reader knows
// which entry to retry.
func renderRemainingStep(b *strings.Builder, index int, entry remainingStepEntry, args map[string]string, bindingResults map[string]any) {
	step := entry.step
	tag := ""
	if entry.status == StepFailed {
		tag = " [failed]"
	}
	if step.IsResourceOnly() {
		fmt.Fprintf(b, "%d. %s%s (fetch resources)\n", index, step.Name(), tag)
	} else {
		parts := make([]string, 0, len(step.Arguments()))
		for name, source := range step.Arguments() {
			parts = append(parts, fmt.Sprintf("%s: %s", name, renderArgPlaceholder(source, args, bindingResults)))
		}
		fmt.Fprintf(b, "%d. %s%s: call %s(%s)\n", index, step.Name(), tag, step.Tool().Name, strings.Join(parts, ", "))
	}
	if guidance, ok := step.Guidance(); ok {
		fmt.Fprintf(b, "   guidance: %s\n", guidance)
	}
}

// buildHandoffMessage constructs the single assistant handoff message
// spec.md §4.H point 6 requires: what happened, followed by a numbered list
// of remaining steps with resolved-or-placeholder arguments and guidance,
// the failed step first when it is a retryable tool error.
func buildHandoffMessage(def *workflow.Definition, progress *WorkflowProgress, args map[string]string, bindingResults map[string]any, reason *PauseReason) protocol.PromptMessage {
	var b strings.Builder
	b.WriteString(describePause(reason))
	b.WriteString("\n\nRemaining steps:\n")
	for i, entry := range remainingSteps(def, progress, reason) {
		renderRemainingStep(&b, i+1, entry, args, bindingResults)
	}
	return protocol.PromptMessage{Role: protocol.RoleAssistant, Text: b.String()}
}
