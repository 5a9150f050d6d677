package main

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/agentrpc/corerpc/errs"
	"github.com/agentrpc/corerpc/protocol"
)

func unknownToolError(name string) error {
	return errs.New(errs.CodeNotFound).Messagef("unknown tool %q", name).Build()
}

// toolExecutor is this composition root's protocol.MiddlewareExecutor: it
// gives tools/call and workflow steps the same tool-invocation path (one
// handler lookup, one structured log line per call) so neither caller can
// drift from the other's behavior. OAuth injection and rate limiting
// aren't implemented -- no IdentityProvider or limiter ships in this
// composition (see DESIGN.md), so the only cross-cutting concern this
// executor actually has to apply is logging.
type toolExecutor struct {
	handlers map[string]protocol.ToolHandler
	logger   zerolog.Logger
}

func newToolExecutor(handlers map[string]protocol.ToolHandler, logger zerolog.Logger) *toolExecutor {
	return &toolExecutor{handlers: handlers, logger: logger}
}

func (e *toolExecutor) ExecuteToolWithMiddleware(ctx context.Context, toolName string, params json.RawMessage, extra protocol.Extra) (any, error) {
	handler, ok := e.handlers[toolName]
	if !ok {
		e.logger.Warn().Str("tool", toolName).Msg("tool not found")
		return nil, unknownToolError(toolName)
	}

	e.logger.Debug().Str("tool", toolName).Str("request_id", extra.RequestID).Msg("tool call starting")
	result, err := handler.Handle(ctx, params, extra)
	if err != nil {
		e.logger.Error().Str("tool", toolName).Err(err).Msg("tool call failed")
		return nil, err
	}
	e.logger.Debug().Str("tool", toolName).Msg("tool call completed")
	return result, nil
}

var _ protocol.MiddlewareExecutor = (*toolExecutor)(nil)
