// Package logging provides structured logging for dbscout.
//
// This package wraps a zap logger with convenience functions for the logging
// patterns used by the discovery engine, the CLI and the HTTP surface.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Per-probe outcomes, browser-protocol payload dumps
//   - Info: Stage transitions, run start and completion, server lifecycle
//   - Warn: Non-fatal issues (unusable interfaces, dropped clients)
//   - Error: Failed runs and startup failures
//
// # Structured Logging
//
// All log functions use structured fields for queryability:
//
//	logging.Info("Node discovered",
//	    zap.String("run_id", runID),
//	    zap.String("address", "192.168.1.20"),
//	    zap.Int64("rtt_ms", 3),
//	)
//
// # Configuration
//
// CLI commands stay silent unless DBSCOUT_LOG_LEVEL is set, so the terminal
// progress view is not interleaved with log lines:
//
//	if err := logging.InitializeFromEnv(); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// The serve command initializes from its --log-level flag instead. Output is
// written to stderr in zap's console encoding.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. The underlying zap logger
// handles synchronization automatically. Initialize and SetLogger are meant
// to be called once at startup.
package logging
