package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/muurk/dbscout/internal/discovery"
	"github.com/muurk/dbscout/internal/server"
)

// Serve command flags
var (
	serveHost     string
	servePort     int
	serveLogLevel string
	servePassword string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (default: from config, 127.0.0.1)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default: from config, 8080)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&servePassword, "password", "", "SQL password for handshakes (default: $"+passwordEnvVar+")")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve discovery over HTTP and WebSocket",
	Long: `Start an HTTP server that runs discoveries on request.

Endpoints:
  GET    /api/interfaces            local IPv4 addresses
  POST   /api/discovery?address=IP  start a run (409 while one is active)
  GET    /api/discovery             run state and last completion
  DELETE /api/discovery             cancel the active run
  GET    /ws                        stream of run events as JSON`,
	Example: `  # Listen on the configured address
  dbscout serve

  # Listen on all interfaces with debug logging
  dbscout serve --host 0.0.0.0 --port 9000 --log-level debug`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	cfg := &server.Config{
		Host:     registry.Server.Host,
		Port:     registry.Server.Port,
		LogLevel: serveLogLevel,
	}
	if serveHost != "" {
		cfg.Host = serveHost
	}
	if servePort > 0 {
		cfg.Port = servePort
	}

	coord := discovery.NewCoordinator(registry.Options(sqlPassword(servePassword)), discovery.Dependencies{})
	srv, err := server.New(cfg, coord)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "dbscout server listening on http://%s\n", cfg.Addr())
	return srv.Start()
}
