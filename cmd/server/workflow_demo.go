package main

import "github.com/agentrpc/corerpc/workflow"

// buildResearchWorkflow is the demo SequentialWorkflow exposed as the
// "research" prompt: echo the topic back unchanged, then
// count the words in that statement. Two steps, one binding, enough to
// exercise both prompt-argument resolution and step-output resolution in
// the same run.
func buildResearchWorkflow() *workflow.Definition {
	return workflow.NewDefinition("research", "Echo a topic and report its word count").
		Argument("topic", "the topic to research", true).
		AddStep(workflow.NewStep("restate", workflow.ToolHandle{Name: "echo"}).
			WithGuidance("Restate the requested topic before analyzing it.").
			Arg("message", workflow.PromptArg("topic")).
			Bind("restated")).
		AddStep(workflow.NewStep("count", workflow.ToolHandle{Name: "word_count"}).
			Arg("text", workflow.StepOutputField("restated", "echoed")).
			Bind("word_count"))
}
