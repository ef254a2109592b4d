package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/dbscout/internal/config"
	"github.com/muurk/dbscout/internal/netif"
	"github.com/muurk/dbscout/internal/protocol"
	"github.com/muurk/dbscout/internal/sqlserver"
	"github.com/muurk/dbscout/internal/ui"
)

// Flags shared by the non-scan commands
var (
	outputFormat  string
	lookupTimeout int
	useName       string
	useVerify     bool
	useUser       string
	usePassword   string
	configForce   bool
)

func init() {
	rootCmd.AddCommand(interfacesCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(useCmd)
	rootCmd.AddCommand(connectionsCmd)
	rootCmd.AddCommand(configCmd)

	for _, c := range []*cobra.Command{interfacesCmd, lookupCmd, connectionsCmd} {
		c.Flags().StringVar(&outputFormat, "format", "detailed", "Output format (detailed, json, yaml)")
	}

	lookupCmd.Flags().IntVar(&lookupTimeout, "timeout", int(protocol.DefaultTimeout/time.Millisecond), "Browser query timeout in milliseconds")

	useCmd.Flags().StringVar(&useName, "name", "", "Connection name (default: the descriptor)")
	useCmd.Flags().BoolVar(&useVerify, "verify", true, "Log in before saving to confirm the instance is reachable")
	useCmd.Flags().StringVar(&useUser, "user", "", "SQL login (default: the configured username)")
	useCmd.Flags().StringVar(&usePassword, "password", "", "SQL password (default: $"+passwordEnvVar+")")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")
}

// interfacesCmd lists the local addresses a scan can start from
var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List local IPv4 addresses usable for a scan",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addrs := netif.ListLocalAddresses()
		if outputFormat != "detailed" {
			return writeStructured(cmd.OutOrStdout(), outputFormat, addrs)
		}

		p := ui.NewPrinter(cmd.OutOrStdout())
		if len(addrs) == 0 {
			p.PrintResult(ui.NewWarningResult("No usable IPv4 interfaces").
				AddDetail("Hint", "Connect to a network or pass --address to scan"))
			return nil
		}

		preferred := netif.Preferred(addrs)
		for _, a := range addrs {
			marker := "  "
			if a.IP == preferred {
				marker = ui.SuccessMarker + " "
			}
			p.Println(fmt.Sprintf("%s%-15s  %s", marker, a.IP, a.Description))
		}
		return nil
	},
}

// lookupCmd queries one host's SQL Server Browser service
var lookupCmd = &cobra.Command{
	Use:   "lookup HOST [INSTANCE]",
	Short: "Query a host's SQL Server Browser service",
	Long: `Send a SQL Server Browser request to UDP port 1434 of HOST and print
the instances it advertises. With INSTANCE, only that named instance is
requested.`,
	Example: `  # List all instances on a host
  dbscout lookup 192.168.1.40

  # Ask for a single named instance
  dbscout lookup 192.168.1.40 SQLEXPRESS`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runLookup,
}

func runLookup(cmd *cobra.Command, args []string) error {
	client := protocol.NewClient(time.Duration(lookupTimeout) * time.Millisecond)
	ctx := cmd.Context()

	var (
		resp *protocol.Response
		err  error
	)
	if len(args) == 2 {
		resp, err = client.QueryInstance(ctx, args[0], args[1])
	} else {
		resp, err = client.Query(ctx, args[0])
	}
	if err != nil {
		return fmt.Errorf("browser query to %s failed: %w", args[0], err)
	}

	if outputFormat != "detailed" {
		return writeStructured(cmd.OutOrStdout(), outputFormat, resp.Records)
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	if len(resp.Records) == 0 {
		p.PrintResult(ui.NewWarningResult("No instances advertised").AddDetail("Host", args[0]))
		return nil
	}
	for _, rec := range resp.Records {
		target := sqlserver.Target{Host: args[0], Instance: rec.InstanceName, Port: rec.Port}
		r := ui.NewSuccessResult(target.Descriptor()).
			AddDetail("Server", rec.ServerName).
			AddDetail("Instance", rec.InstanceName).
			AddDetail("Port", fmt.Sprintf("%d", rec.Port))
		keys := make([]string, 0, len(rec.Properties))
		for k := range rec.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			r.AddDetail(k, rec.Properties[k])
		}
		p.PrintResult(r)
	}
	if resp.LengthMismatch() {
		p.Println(ui.WarningMarker + " reply length field did not match the payload")
	}
	return nil
}

// useCmd saves a connection as the active one
var useCmd = &cobra.Command{
	Use:   "use DESCRIPTOR",
	Short: "Select a SQL Server instance as the active connection",
	Long: `Store DESCRIPTOR as the active connection in the config file.

DESCRIPTOR is the form printed by 'dbscout scan': host:port,
host\instance,port or host\instance. Unless --verify=false is given, a login
is attempted first and the server version is stored with the connection.`,
	Example: `  dbscout use 192.168.1.40:1433
  dbscout use 'buildbox\SQLEXPRESS,49823' --name dev --user sa`,
	Args: cobra.ExactArgs(1),
	RunE: runUse,
}

func runUse(cmd *cobra.Command, args []string) error {
	target, err := sqlserver.ParseDescriptor(args[0])
	if err != nil {
		return fmt.Errorf("invalid descriptor %q: %w", args[0], err)
	}

	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	user := useUser
	if user == "" {
		user = registry.SQL.Username
	}

	conn := config.NewConnection(target)
	conn.Username = user

	if useVerify {
		version, err := verifyTarget(cmd.Context(), registry, target, user)
		if err != nil {
			return err
		}
		conn.Version = version
	}

	name := useName
	if name == "" {
		name = conn.Descriptor
	}
	if err := registry.UseConnection(name, conn); err != nil {
		return err
	}
	if err := registry.Save(); err != nil {
		return err
	}

	r := ui.NewSuccessResult("Connection saved").
		AddDetail("Name", name).
		AddDetail("Descriptor", conn.Descriptor)
	if conn.Version != "" {
		r.AddDetail("Version", conn.Version)
	}
	ui.NewPrinter(cmd.OutOrStdout()).PrintResult(r)
	return nil
}

// verifyTarget logs into target and returns its version
func verifyTarget(ctx context.Context, registry *config.Registry, target sqlserver.Target, user string) (string, error) {
	opts := registry.Discovery.Options()
	client := sqlserver.NewClient(sqlserver.Credentials{User: user, Password: sqlPassword(usePassword)}, opts.LoginTimeout)

	version, err := client.Handshake(ctx, target)
	if err != nil {
		return "", fmt.Errorf("cannot log into %s (%s); use --verify=false to save anyway: %w",
			target.Descriptor(), sqlserver.Classify(err), err)
	}
	return version, nil
}

// connectionsCmd lists saved connections
var connectionsCmd = &cobra.Command{
	Use:   "connections",
	Short: "List saved connections",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadRegistry()
		if err != nil {
			return err
		}
		if outputFormat != "detailed" {
			return writeStructured(cmd.OutOrStdout(), outputFormat, registry.Connections)
		}

		p := ui.NewPrinter(cmd.OutOrStdout())
		names := registry.ConnectionNames()
		if len(names) == 0 {
			p.Println("No saved connections. Use 'dbscout use DESCRIPTOR' or 'dbscout scan --pick'.")
			return nil
		}
		for _, name := range names {
			conn := registry.Connections[name]
			marker := "  "
			if name == registry.Active {
				marker = ui.SuccessMarker + " "
			}
			line := fmt.Sprintf("%s%-20s %s", marker, name, conn.Descriptor)
			if conn.Version != "" {
				line += "  " + conn.Version
			}
			p.Println(line)
		}
		return nil
	},
}

// configCmd groups config file commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or create the config file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadRegistry()
		if err != nil {
			return err
		}
		data, err := registry.Marshal()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.CreateDefaultConfig(configForce)
		if err != nil {
			return fmt.Errorf("%w (use --force to overwrite)", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.GetConfigPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (not created yet)\n", path)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}
