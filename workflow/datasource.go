// Package workflow implements the sequential workflow execution engine of
// spec.md §4.G: a server-side step loop that resolves tool parameters from
// prompt arguments, constants, and prior step outputs, executes tools
// through an injected protocol.MiddlewareExecutor, and hands off to the
// calling LLM the moment a step cannot be resolved deterministically.
//
// Grounded line-for-line on src/server/workflow/prompt_handler.rs's
// WorkflowPromptHandler: the DataSource resolution rules, the handoff
// conditions, the message-trace shape, and the pre/post-tool resource
// fetch ordering all mirror that file's behavior.
package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentrpc/corerpc/errs"
)

// DataSourceKind tags which variant of DataSource is populated.
type DataSourceKind int

const (
	// KindPromptArg draws a parameter from the caller-supplied prompt
	// arguments by name.
	KindPromptArg DataSourceKind = iota
	// KindStepOutput draws a parameter from a prior step's stored binding,
	// optionally narrowed to one field of it.
	KindStepOutput
	// KindConstant supplies a literal value, with `{arg}` substitution
	// applied when the literal is itself a string.
	KindConstant
)

// DataSource is one of PromptArg(name) | StepOutput{binding, field?} |
// Constant(value), spec.md §4.G's parameter resolution sources.
type DataSource struct {
	Kind     DataSourceKind
	Name     string // PromptArg: the prompt argument name
	Binding  string // StepOutput: the binding name written by a prior step
	Field    string // StepOutput: optional field (dot path in template bindings, single key in tool params)
	HasField bool
	Value    any // Constant: the literal value
}

// PromptArg builds a DataSource reading prompt argument name.
func PromptArg(name string) DataSource { return DataSource{Kind: KindPromptArg, Name: name} }

// StepOutput builds a DataSource reading the entire value bound under
// binding by a prior step.
func StepOutput(binding string) DataSource {
	return DataSource{Kind: KindStepOutput, Binding: binding}
}

// StepOutputField builds a DataSource reading one field of the value bound
// under binding by a prior step. Resource template bindings walk field as a
// dot path; tool-parameter resolution looks it up as a single top-level key.
func StepOutputField(binding, field string) DataSource {
	return DataSource{Kind: KindStepOutput, Binding: binding, Field: field, HasField: true}
}

// Constant builds a DataSource supplying a literal value.
func Constant(value any) DataSource { return DataSource{Kind: KindConstant, Value: value} }

// substituteArguments replaces every `{key}` occurrence in template with
// args[key], matching WorkflowPromptHandler::substitute_arguments.
func substituteArguments(template string, args map[string]string) string {
	result := template
	for key, value := range args {
		result = strings.ReplaceAll(result, "{"+key+"}", value)
	}
	return result
}

// valueToString renders a resolved JSON value as a template-substitution
// string: strings pass through, scalars stringify plainly, everything else
// is serialized as JSON.
func valueToString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return "null"
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64, int, int64:
		return fmt.Sprintf("%v", t)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(raw)
	}
}

// ValueToString exposes valueToString for callers outside this package that
// need to render a resolved DataSource value as handoff-message text (the
// task-aware wrapper's remaining-steps listing).
func ValueToString(v any) string { return valueToString(v) }

// ExtractField exposes extractField for callers outside this package that
// need to resolve a StepOutputField source's value for display, without
// duplicating the dot-path walk.
func ExtractField(value any, fieldPath string) (any, error) {
	return extractField(value, fieldPath)
}

// extractField walks field's dot-path through value, which must be a
// map[string]any at every traversed level.
func extractField(value any, fieldPath string) (any, error) {
	current := value
	for _, part := range strings.Split(fieldPath, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, errs.Validationf("field %q not found in path %q", part, fieldPath)
		}
		next, ok := obj[part]
		if !ok {
			return nil, errs.Validationf("field %q not found in path %q", part, fieldPath)
		}
		current = next
	}
	return current, nil
}
