// Dbscout finds SQL Server instances on the local network.
//
// It sweeps the /24 subnet of a local address with ICMP, probes the usual
// SQL Server ports, asks every reachable host's SQL Server Browser service
// for its named instances and logs into each instance it finds to read the
// server version.
//
// Usage:
//
//	dbscout [command] [flags]
//
// Running without arguments performs a scan of the preferred local subnet.
// See 'dbscout --help' for available commands.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/dbscout/internal/config"
	"github.com/muurk/dbscout/internal/logging"
	"github.com/muurk/dbscout/internal/version"
)

// passwordEnvVar supplies the SQL password when --password is not given
const passwordEnvVar = "DBSCOUT_SQL_PASSWORD"

func main() {
	defer logging.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dbscout",
	Short: "SQL Server network discovery",
	Long: `Find SQL Server instances on the local /24 subnet.

dbscout pings every address of the subnet, probes the common SQL Server
ports on each reachable host, queries the SQL Server Browser service for
named instances and attempts a login to read each server's version.

If no command is specified, a scan of the preferred local subnet runs.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.InitializeFromEnv()
	},
	RunE: runScan,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("dbscout {{.Version}}\n")

	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().StringVar(&versionFormat, "format", "text", "Output format (text, json, yaml)")
}

var versionFormat string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionFormat == "text" {
			fmt.Fprintf(cmd.OutOrStdout(), "dbscout %s\n", version.Full())
			return nil
		}
		return writeStructured(cmd.OutOrStdout(), versionFormat, version.Get())
	},
}

// writeStructured encodes v as json or yaml
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		return nil
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// loadRegistry loads the user configuration
func loadRegistry() (*config.Registry, error) {
	registry, err := config.LoadRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return registry, nil
}

// sqlPassword returns the flag value, falling back to the environment
func sqlPassword(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(passwordEnvVar)
}
