package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/muurk/dbscout/internal/config"
	"github.com/muurk/dbscout/internal/discovery"
	"github.com/muurk/dbscout/internal/sqlserver"
	"github.com/muurk/dbscout/internal/ui"
)

// Scan command flags
var (
	scanAddress    string
	scanTimeoutMs  int
	scanPings      int
	scanSQLChecks  int
	scanPort       int
	scanCommon     bool
	scanNamed      bool
	scanNoMDNS     bool
	scanPrivileged bool
	scanUser       string
	scanPassword   string
	scanFormat     string
	scanPlain      bool
	scanAll        bool
	scanPick       bool
	scanSaveAs     string
)

func init() {
	rootCmd.AddCommand(scanCmd)

	for _, fs := range []*pflag.FlagSet{scanCmd.Flags(), rootCmd.Flags()} {
		fs.StringVar(&scanAddress, "address", "", "Local IPv4 address whose /24 is scanned (default: auto-detect)")
		fs.IntVar(&scanTimeoutMs, "timeout", 0, "Ping and connect timeout in milliseconds")
		fs.IntVar(&scanPings, "pings", 0, "Maximum concurrent pings")
		fs.IntVar(&scanSQLChecks, "sql-checks", 0, "Maximum concurrent port probes and handshakes")
		fs.IntVar(&scanPort, "port", 0, "Primary SQL Server port")
		fs.BoolVar(&scanCommon, "common-ports", true, "Also probe the common SQL Server ports")
		fs.BoolVar(&scanNamed, "named-instances", true, "Query the SQL Server Browser service for named instances")
		fs.BoolVar(&scanNoMDNS, "no-mdns", false, "Skip mDNS host name enrichment")
		fs.BoolVar(&scanPrivileged, "privileged", false, "Use raw ICMP sockets (requires elevated privileges)")
		fs.StringVar(&scanUser, "user", "", "SQL login for the handshake (default: integrated authentication)")
		fs.StringVar(&scanPassword, "password", "", "SQL password (default: $"+passwordEnvVar+")")
		fs.StringVar(&scanFormat, "format", "detailed", "Output format (detailed, compact, json, yaml)")
		fs.BoolVar(&scanPlain, "plain", false, "Line-oriented progress instead of the interactive view")
		fs.BoolVar(&scanAll, "all", false, "Also list reachable hosts without SQL Server")
		fs.BoolVar(&scanPick, "pick", false, "Choose an instance after the scan and save it as the active connection")
		fs.StringVar(&scanSaveAs, "name", "", "Connection name used with --pick (default: the descriptor)")
	}
}

// scanCmd runs one discovery
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the local subnet for SQL Server instances",
	Long: `Scan the /24 subnet of a local IPv4 address for SQL Server instances.

The scan runs four stages: an ICMP sweep, a TCP probe of the SQL Server
ports, a SQL Server Browser query for named instances, and mDNS host name
enrichment. Press q or Ctrl-C to cancel; hosts found so far are still shown.

Flags override the values stored in the config file.`,
	Example: `  # Scan the preferred local subnet
  dbscout scan

  # Scan the subnet of a specific address with SQL authentication
  dbscout scan --address 192.168.1.20 --user sa

  # Quick scan of the default port only, JSON output for scripting
  dbscout scan --common-ports=false --named-instances=false --format json

  # Pick an instance from the results and save it
  dbscout scan --pick`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

// scanFlags is the subset of scan flags that override stored preferences
type scanFlags struct {
	timeoutMs  int
	pings      int
	sqlChecks  int
	port       int
	common     bool
	named      bool
	noMDNS     bool
	privileged bool
	user       string
	password   string
}

// scanOptions overlays the flags the user set onto the stored preferences
func scanOptions(registry *config.Registry, flags *pflag.FlagSet, f scanFlags) discovery.Options {
	opts := registry.Options(sqlPassword(f.password))

	if f.timeoutMs > 0 {
		opts.Timeout = time.Duration(f.timeoutMs) * time.Millisecond
	}
	if f.pings > 0 {
		opts.MaxConcurrentPings = f.pings
	}
	if f.sqlChecks > 0 {
		opts.MaxConcurrentSQLChecks = f.sqlChecks
	}
	if f.port > 0 {
		opts.SQLPort = f.port
	}
	if flags.Changed("common-ports") {
		opts.ScanCommonSQLPorts = f.common
	}
	if flags.Changed("named-instances") {
		opts.ScanForNamedInstances = f.named
	}
	if f.noMDNS {
		opts.ResolveMDNSNames = false
	}
	if flags.Changed("privileged") {
		opts.PrivilegedPing = f.privileged
	}
	if f.user != "" {
		opts.Credentials.User = f.user
	}
	return opts
}

func runScan(cmd *cobra.Command, args []string) error {
	switch scanFormat {
	case "detailed", "compact", "json", "yaml":
	default:
		return fmt.Errorf("unsupported format %q (use detailed, compact, json or yaml)", scanFormat)
	}

	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	opts := scanOptions(registry, cmd.Flags(), scanFlags{
		timeoutMs:  scanTimeoutMs,
		pings:      scanPings,
		sqlChecks:  scanSQLChecks,
		port:       scanPort,
		common:     scanCommon,
		named:      scanNamed,
		noMDNS:     scanNoMDNS,
		privileged: scanPrivileged,
		user:       scanUser,
		password:   scanPassword,
	})

	address := scanAddress
	if address == "" {
		address = registry.Discovery.DefaultAddress
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coord := discovery.NewCoordinator(opts, discovery.Dependencies{})
	events, ok := coord.Start(ctx, address)
	if !ok {
		return discovery.ErrAlreadyRunning
	}

	structured := scanFormat == "json" || scanFormat == "yaml"
	label := "Scanning the local subnet"
	if address != "" {
		label = fmt.Sprintf("Scanning the subnet of %s", address)
	}

	// Structured output keeps stdout clean; progress goes to stderr
	progressOut := os.Stdout
	if structured {
		progressOut = os.Stderr
	}

	completion, err := ui.RunScan(ctx, ui.ScanConfig{
		Label:  label,
		Events: events,
		Cancel: coord.Cancel,
		Output: progressOut,
		Plain:  scanPlain,
	})
	if err != nil {
		return err
	}

	if structured {
		if err := writeStructured(cmd.OutOrStdout(), scanFormat, completion); err != nil {
			return err
		}
	} else {
		ui.NewPrinter(cmd.OutOrStdout()).PrintCompletion(completion, scanFormat == "compact", scanAll)
	}

	if completion.Outcome == discovery.OutcomeFailed {
		if completion.Err != nil {
			return fmt.Errorf("discovery failed: %w", completion.Err)
		}
		return fmt.Errorf("discovery failed: %s", completion.Error)
	}

	if scanPick && completion.Outcome == discovery.OutcomeCompleted {
		return pickAndSave(registry, completion.Nodes, opts.Credentials.User)
	}
	return nil
}

// pickAndSave lets the user choose an instance and stores it as active
func pickAndSave(registry *config.Registry, nodes []discovery.Node, user string) error {
	if !ui.IsTerminal(os.Stdout) {
		return fmt.Errorf("--pick needs an interactive terminal")
	}

	choice, err := ui.PickInstance(nodes, os.Stdout)
	if errors.Is(err, ui.ErrNoSelection) {
		fmt.Println("No connection selected.")
		return nil
	}
	if err != nil {
		return err
	}

	conn, err := connectionFromChoice(choice, user)
	if err != nil {
		return err
	}
	name := scanSaveAs
	if name == "" {
		name = conn.Descriptor
	}
	if err := registry.UseConnection(name, conn); err != nil {
		return err
	}
	if err := registry.Save(); err != nil {
		return err
	}

	ui.NewPrinter(nil).PrintResult(ui.NewSuccessResult("Connection saved").
		AddDetail("Name", name).
		AddDetail("Descriptor", conn.Descriptor).
		AddDetail("Version", conn.Version))
	return nil
}

// connectionFromChoice converts a picked instance into a saved connection
func connectionFromChoice(choice ui.Choice, user string) (*config.Connection, error) {
	target, err := sqlserver.ParseDescriptor(choice.Instance.Descriptor)
	if err != nil {
		return nil, fmt.Errorf("invalid descriptor %q: %w", choice.Instance.Descriptor, err)
	}
	conn := config.NewConnection(target)
	conn.ServerName = choice.Instance.ServerName
	conn.Version = choice.Instance.Version
	conn.Username = user
	return conn, nil
}
