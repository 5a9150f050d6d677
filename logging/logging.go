// Package logging provides the zerolog setup shared by every component.
//
// Grounded on pkg/logger (level-routed console writer) and
// pkg/mcp/core/transport/http.go's per-component child-logger pattern. The
// package-level Base is only the root New derives from: components receive
// a child logger scoped by component name as an injected dependency.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Base is the process-wide root logger. Components should call New to get
// a scoped child rather than using Base directly.
var Base = zerolog.New(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: time.RFC3339,
}).With().Timestamp().Logger()

// New returns a child logger tagged with component.
func New(component string) zerolog.Logger {
	return Base.With().Str("component", component).Logger()
}

// SetLevel adjusts the global minimum level, used by the logging/setLevel
// JSON-RPC method (§6).
func SetLevel(level string) error {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(parsed)
	return nil
}
