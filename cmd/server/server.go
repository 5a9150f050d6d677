// Package main is the composition root of the JSON-RPC agent/tool
// protocol core: it wires storage, the task store, the session manager,
// the HTTP middleware chain, the workflow engine and its task-aware
// wrapper, and the streamable HTTP transport into one running server, and
// exposes that wiring as a cobra CLI.
//
// Grounded on cmd.go's cobra.Command tree for the CLI shape, generalized
// from a single generate/test client into a long-running server command.
package main

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/agentrpc/corerpc/logging"
	"github.com/agentrpc/corerpc/middleware"
	"github.com/agentrpc/corerpc/rpc"
	"github.com/agentrpc/corerpc/session"
	"github.com/agentrpc/corerpc/storage"
	"github.com/agentrpc/corerpc/storage/boltstore"
	"github.com/agentrpc/corerpc/storage/memstore"
	"github.com/agentrpc/corerpc/task"
	"github.com/agentrpc/corerpc/taskrouter"
	"github.com/agentrpc/corerpc/transport"
	"github.com/agentrpc/corerpc/workflow"
	"github.com/agentrpc/corerpc/workflow/taskworkflow"
	"github.com/google/uuid"
)

// serveConfig holds every flag-controlled knob of the serve command.
type serveConfig struct {
	addr        string
	storeKind   string
	boltPath    string
	logLevel    string
	stateless   bool
}

func buildStorageBackend(cfg serveConfig) (storage.Backend, error) {
	switch cfg.storeKind {
	case "memory":
		return memstore.New(), nil
	case "bolt":
		backend, err := boltstore.Open(cfg.boltPath)
		if err != nil {
			return nil, fmt.Errorf("open bolt store at %q: %w", cfg.boltPath, err)
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown store kind %q (want \"memory\" or \"bolt\")", cfg.storeKind)
	}
}

// buildServer assembles the full dependency graph described by SPEC_FULL.md
// and returns the http.Handler ready to be served, plus the logger used
// throughout so the caller can log startup/shutdown around it.
func buildServer(cfg serveConfig) (http.Handler, zerolog.Logger, error) {
	logger := logging.New("server")
	if err := logging.SetLevel(cfg.logLevel); err != nil {
		return nil, logger, fmt.Errorf("invalid log level %q: %w", cfg.logLevel, err)
	}

	backend, err := buildStorageBackend(cfg)
	if err != nil {
		return nil, logger, err
	}

	taskStore := task.NewStore(backend, task.WithSecurity(task.SecurityConfig{
		AllowAnonymous:   true,
		MaxTasksPerOwner: 1000,
	}))

	handlers, toolInfos := registerDemoTools()
	executor := newToolExecutor(handlers, logging.New("tools"))

	resources := newStaticResources()
	def := buildResearchWorkflow()
	engine := workflow.NewEngine(def, toolInfos).WithMiddlewareExecutor(executor).WithResourceHandler(resources)
	router := taskrouter.New(taskStore)
	wrapper := taskworkflow.New(engine, def, router)

	components := &serverComponents{
		toolInfos:        toolInfos,
		executor:         executor,
		resources:        resources,
		prompt:           wrapper,
		promptDef:        def,
		tasks:            taskStore,
		protocolVersions: []string{"2025-03-26", "2024-11-05"},
		defaultVersion:   "2025-03-26",
	}

	dispatcher := rpc.NewDispatcher()
	registerHandlers(dispatcher, components)

	chain := middleware.NewChain()
	chain.Add(middleware.NewLoggingMiddleware(logging.New("http")))

	sessions := session.NewManager()
	events := session.NewEventStore()

	transportCfg := transport.Config{
		Path:                      "/mcp",
		ResponseMode:              transport.ResponseModeJSON,
		SupportedProtocolVersions: components.protocolVersions,
		DefaultProtocolVersion:    components.defaultVersion,
		Logger:                    logging.New("transport"),
	}
	if !cfg.stateless {
		transportCfg.SessionIDGenerator = func() string { return uuid.NewString() }
	}

	t := transport.New(transportCfg, sessions, events, chain, dispatcher)
	return t.Handler(), logger, nil
}
