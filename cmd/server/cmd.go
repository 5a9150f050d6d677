package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// Execute builds and runs the root cobra command, mirroring
// rootCmd-plus-subcommands tree (cmd.go's Execute) generalized from a
// one-shot generate/test CLI to a long-running serve command.
func Execute() {
	var cfg serveConfig

	var rootCmd = &cobra.Command{
		Use:   "corerpc-server",
		Short: "Reference server for the JSON-RPC agent/tool protocol core",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	var serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the streamable HTTP transport",
		Long:  `The serve command wires storage, the task store, the workflow engine, and the streamable HTTP transport into one running server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			handler, logger, err := buildServer(cfg)
			if err != nil {
				return fmt.Errorf("build server: %w", err)
			}
			logger.Info().Str("addr", cfg.addr).Str("store", cfg.storeKind).Bool("stateless", cfg.stateless).Msg("starting server")
			if err := http.ListenAndServe(cfg.addr, handler); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}

	serveCmd.Flags().StringVar(&cfg.addr, "addr", ":8080", "address to listen on")
	serveCmd.Flags().StringVar(&cfg.storeKind, "store", "memory", `storage backend: "memory" or "bolt"`)
	serveCmd.Flags().StringVar(&cfg.boltPath, "bolt-path", "corerpc.db", "bbolt database path (used when --store=bolt)")
	serveCmd.Flags().StringVar(&cfg.logLevel, "log-level", "info", "minimum log level")
	serveCmd.Flags().BoolVar(&cfg.stateless, "stateless", false, "run the transport in stateless mode (no session tracking)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.Execute()
}
