// Package ui provides terminal UI components for the dbscout CLI.
//
// This package uses Bubble Tea, Bubbles and Lipgloss to follow a discovery
// run live and to render its results. Components:
//
//   - Header: Command banner showing the subnet and scan parameters
//   - Progress: Per-stage step list with a bar for the active stage
//   - ScanModel: Bubble Tea model that consumes a run's event channel
//   - Result: Success/warning/failure summary boxes
//   - Node rendering: detailed blocks or a compact table of instances
//   - PickerModel: list for choosing one discovered instance
//
// # Usage Pattern
//
//	events, ok := coord.Start(ctx, address)
//	if !ok {
//	    return discovery.ErrAlreadyRunning
//	}
//	completion, err := ui.RunScan(ctx, ui.ScanConfig{
//	    Label:  "Scanning 192.168.1.0/24",
//	    Events: events,
//	    Cancel: coord.Cancel,
//	})
//	ui.NewPrinter(os.Stdout).PrintCompletion(completion, false, false)
//
// When stdout is not a terminal, or Plain is set, RunScan prints one line
// per stage and one per finding instead of redrawing.
//
// # Logging Integration
//
// Logging is controlled via the DBSCOUT_LOG_LEVEL environment variable.
// When unset or empty, zap logging is silent so the curated UI output is
// displayed cleanly.
package ui
