package workflow

import (
	"encoding/json"

	"github.com/agentrpc/corerpc/errs"
)

// resolveToolParameters builds the JSON object passed to a step's tool,
// applying each argument's DataSource in turn. Mirrors
// WorkflowPromptHandler::resolve_tool_parameters.
func (e *Engine) resolveToolParameters(step *Step, args map[string]string, ctx *executionContext) (map[string]any, error) {
	params := map[string]any{}

	for name, source := range step.Arguments() {
		value, skip, err := e.resolveParamValue(step, name, source, args, ctx)
		if err != nil {
			return nil, err
		}
		if skip {
			continue
		}
		params[name] = value
	}

	return params, nil
}

func (e *Engine) resolveParamValue(step *Step, paramName string, source DataSource, args map[string]string, ctx *executionContext) (value any, skip bool, err error) {
	switch source.Kind {
	case KindPromptArg:
		v, ok := args[source.Name]
		if ok {
			return v, false, nil
		}
		spec, known := e.workflow.Arguments()[source.Name]
		required := !known || spec.Required
		if required {
			return nil, false, &unresolvedParamError{step: step.Name(), param: paramName, arg: source.Name}
		}
		return nil, true, nil

	case KindConstant:
		if s, ok := source.Value.(string); ok {
			return substituteArguments(s, args), false, nil
		}
		return source.Value, false, nil

	case KindStepOutput:
		bound, ok := ctx.get(source.Binding)
		if !ok {
			return nil, false, &unresolvedBindingError{step: step.Name(), param: paramName, binding: source.Binding}
		}
		if !source.HasField {
			return bound, false, nil
		}
		obj, ok := bound.(map[string]any)
		if !ok {
			return nil, false, errs.Validationf("field %q not found in binding %q", source.Field, source.Binding)
		}
		field, ok := obj[source.Field]
		if !ok {
			return nil, false, errs.Validationf("field %q not found in binding %q", source.Field, source.Binding)
		}
		return field, false, nil

	default:
		return nil, false, errs.Internal("unknown DataSource kind", nil)
	}
}

// resolveDataSourceToString resolves source to a string for template
// interpolation, mirroring resolve_data_source_to_string.
func (e *Engine) resolveDataSourceToString(source DataSource, args map[string]string, ctx *executionContext) (string, error) {
	switch source.Kind {
	case KindPromptArg:
		v, ok := args[source.Name]
		if !ok {
			return "", errs.Validationf("missing prompt argument: %s", source.Name)
		}
		return v, nil

	case KindStepOutput:
		bound, ok := ctx.get(source.Binding)
		if !ok {
			return "", errs.Validationf("step binding not found: %s", source.Binding)
		}
		if !source.HasField {
			return valueToString(bound), nil
		}
		field, err := extractField(bound, source.Field)
		if err != nil {
			return "", err
		}
		return valueToString(field), nil

	case KindConstant:
		return valueToString(source.Value), nil

	default:
		return "", errs.Internal("unknown DataSource kind", nil)
	}
}

// resolveTemplateBindings resolves a step's URI template variables.
func (e *Engine) resolveTemplateBindings(bindings map[string]DataSource, args map[string]string, ctx *executionContext) (map[string]string, error) {
	resolved := map[string]string{}
	for name, source := range bindings {
		v, err := e.resolveDataSourceToString(source, args, ctx)
		if err != nil {
			return nil, err
		}
		resolved[name] = v
	}
	return resolved, nil
}

// templateBindingsUseStepOutputs reports whether any binding in bindings
// reads a step output, meaning any resources using them must be fetched
// AFTER tool execution (spec.md §4.G).
func templateBindingsUseStepOutputs(bindings map[string]DataSource) bool {
	for _, source := range bindings {
		if source.Kind == KindStepOutput {
			return true
		}
	}
	return false
}

// paramsSatisfyToolSchema reports whether params contains every field the
// tool's JSON Schema marks required, and names the ones that don't.
func (e *Engine) paramsSatisfyToolSchema(step *Step, params map[string]any) (ok bool, missing []string, err error) {
	info, known := e.tools[step.Tool().Name]
	if !known {
		return false, nil, errs.Internal("tool not found in registry: "+step.Tool().Name, nil)
	}

	required, hasRequired := info.InputSchema["required"].([]any)
	if !hasRequired {
		return true, nil, nil
	}
	for _, r := range required {
		name, isStr := r.(string)
		if !isStr {
			continue
		}
		if _, present := params[name]; !present {
			missing = append(missing, name)
		}
	}
	return len(missing) == 0, missing, nil
}

func marshalPretty(v any) string {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(raw)
}

func marshalParams(params map[string]any) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, errs.Internal("failed to marshal tool parameters", err)
	}
	return raw, nil
}
