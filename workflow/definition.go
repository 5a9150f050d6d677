package workflow

// ToolHandle references a registered tool by name, mirroring ToolHandle in
// the original crate.
type ToolHandle struct{ Name string }

// ResourceHandle is one resource URI a step fetches, with optional template
// variables resolved from the step's TemplateBindings.
type ResourceHandle struct{ URI string }

// ArgumentSpec describes one workflow-level prompt argument.
type ArgumentSpec struct {
	Description string
	Required    bool
}

// Step is one entry of a Definition's sequential plan: either a tool call
// (Tool != nil) or a resource-only fetch (Tool == nil).
type Step struct {
	name             string
	tool             *ToolHandle
	arguments        map[string]DataSource
	binding          string
	hasBinding       bool
	guidance         string
	hasGuidance      bool
	resources        []ResourceHandle
	templateBindings map[string]DataSource
}

// NewStep builds a tool-executing step named name invoking tool.
func NewStep(name string, tool ToolHandle) *Step {
	return &Step{
		name:             name,
		tool:             &tool,
		arguments:        map[string]DataSource{},
		templateBindings: map[string]DataSource{},
	}
}

// NewResourceStep builds a resource-only step with no tool invocation.
func NewResourceStep(name string) *Step {
	return &Step{
		name:             name,
		arguments:        map[string]DataSource{},
		templateBindings: map[string]DataSource{},
	}
}

// Arg maps a tool parameter name to the DataSource that resolves it.
func (s *Step) Arg(name string, source DataSource) *Step {
	s.arguments[name] = source
	return s
}

// Bind names the execution-context binding this step's tool result is
// stored under, for later steps to reference via StepOutput.
func (s *Step) Bind(name string) *Step {
	s.binding, s.hasBinding = name, true
	return s
}

// WithGuidance attaches a narrative template (with `{arg}` placeholders)
// shown before this step runs, whether or not the step itself executes.
func (s *Step) WithGuidance(text string) *Step {
	s.guidance, s.hasGuidance = text, true
	return s
}

// Resource appends a resource this step fetches.
func (s *Step) Resource(handle ResourceHandle) *Step {
	s.resources = append(s.resources, handle)
	return s
}

// TemplateBinding maps a `{var}` placeholder usable in this step's resource
// URIs to the DataSource that resolves it.
func (s *Step) TemplateBinding(name string, source DataSource) *Step {
	s.templateBindings[name] = source
	return s
}

// Name returns the step's identifier, used in progress reporting and plan
// rendering.
func (s *Step) Name() string { return s.name }

// Tool returns the step's tool handle, or nil for a resource-only step.
func (s *Step) Tool() *ToolHandle { return s.tool }

// IsResourceOnly reports whether this step has no tool to execute.
func (s *Step) IsResourceOnly() bool { return s.tool == nil }

// Binding returns the execution-context key this step's result is stored
// under, if any.
func (s *Step) Binding() (string, bool) { return s.binding, s.hasBinding }

// Guidance returns this step's narrative template, if any.
func (s *Step) Guidance() (string, bool) { return s.guidance, s.hasGuidance }

// Resources returns the resources this step fetches.
func (s *Step) Resources() []ResourceHandle { return s.resources }

// TemplateBindings returns this step's URI template variable resolutions.
func (s *Step) TemplateBindings() map[string]DataSource { return s.templateBindings }

// Arguments returns this step's tool-parameter resolutions.
func (s *Step) Arguments() map[string]DataSource { return s.arguments }

// Definition is a named, sequential plan of Steps plus the prompt
// arguments it accepts, mirroring SequentialWorkflow.
type Definition struct {
	name        string
	description string
	arguments   map[string]ArgumentSpec
	steps       []*Step
}

// NewDefinition builds an empty workflow named name with description.
func NewDefinition(name, description string) *Definition {
	return &Definition{name: name, description: description, arguments: map[string]ArgumentSpec{}}
}

// Argument registers one prompt-level argument.
func (d *Definition) Argument(name, description string, required bool) *Definition {
	d.arguments[name] = ArgumentSpec{Description: description, Required: required}
	return d
}

// AddStep appends step to the sequential plan.
func (d *Definition) AddStep(step *Step) *Definition {
	d.steps = append(d.steps, step)
	return d
}

// Name returns the workflow's registration name.
func (d *Definition) Name() string { return d.name }

// Description returns the workflow's human-readable goal, used both as the
// PromptResult description and in the user-intent message.
func (d *Definition) Description() string { return d.description }

// Arguments returns the workflow's declared prompt arguments.
func (d *Definition) Arguments() map[string]ArgumentSpec { return d.arguments }

// Steps returns the workflow's sequential plan.
func (d *Definition) Steps() []*Step { return d.steps }
