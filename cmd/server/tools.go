package main

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/agentrpc/corerpc/errs"
	"github.com/agentrpc/corerpc/protocol"
	"github.com/agentrpc/corerpc/workflow"
)

// echoTool is the simplest possible protocol.ToolHandler: it proves a
// tools/call round-trip and a workflow step can both reach a handler
// registered at the composition root, without any domain logic to obscure
// the wiring.
type echoTool struct{}

type echoParams struct {
	Message string `json:"message"`
}

func (echoTool) Handle(ctx context.Context, args json.RawMessage, extra protocol.Extra) (any, error) {
	var params echoParams
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, errs.Validationf("invalid echo parameters: %v", err)
	}
	if params.Message == "" {
		return nil, errs.Validationf("message is required")
	}
	return map[string]any{"echoed": params.Message}, nil
}

func (echoTool) Info() workflow.ToolInfo {
	return workflow.ToolInfo{
		Name:        "echo",
		Description: "Returns its message argument unchanged.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"message": map[string]any{"type": "string"}},
			"required":   []any{"message"},
		},
	}
}

// wordCountTool is the second demo tool: it consumes the first step's
// bound output (a workflow.StepOutput data source), proving step-to-step
// binding resolution end-to-end rather than just prompt-argument passing.
type wordCountTool struct{}

type wordCountParams struct {
	Text string `json:"text"`
}

func (wordCountTool) Handle(ctx context.Context, args json.RawMessage, extra protocol.Extra) (any, error) {
	var params wordCountParams
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, errs.Validationf("invalid word_count parameters: %v", err)
	}
	words := strings.Fields(params.Text)
	return map[string]any{"count": len(words)}, nil
}

func (wordCountTool) Info() workflow.ToolInfo {
	return workflow.ToolInfo{
		Name:        "word_count",
		Description: "Counts the whitespace-separated words in text.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"text": map[string]any{"type": "string"}},
			"required":   []any{"text"},
		},
	}
}

// registerDemoTools wires the demo handlers into both the flat handler map
// tools/call serves directly, and the ToolInfo registry the workflow engine
// consults for plan rendering and schema checks.
func registerDemoTools() (map[string]protocol.ToolHandler, map[string]workflow.ToolInfo) {
	handlers := map[string]protocol.ToolHandler{
		"echo":       echoTool{},
		"word_count": wordCountTool{},
	}
	infos := map[string]workflow.ToolInfo{
		"echo":       echoTool{}.Info(),
		"word_count": wordCountTool{}.Info(),
	}
	return handlers, infos
}
