// Package config provides user configuration management for dbscout.
//
// This package manages a YAML-based configuration file that stores discovery
// preferences, the SQL Server login name and the connections a user has
// selected from scan results. The configuration follows OS-specific
// conventions for storage location.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/dbscout/config.yaml or $HOME/.config/dbscout/config.yaml
//   - macOS: $HOME/.config/dbscout/config.yaml
//   - Windows: %LOCALAPPDATA%\dbscout\config.yaml
//
// # Security
//
// IMPORTANT: This package NEVER stores SQL Server passwords. They are read
// from the --password flag or the DBSCOUT_SQL_PASSWORD environment variable.
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	opts := registry.Options(os.Getenv("DBSCOUT_SQL_PASSWORD"))
//
//	target, _ := sqlserver.ParseDescriptor(`10.0.0.20\SQLEXPRESS`)
//	registry.UseConnection("reporting", config.NewConnection(target))
//
//	// Save changes atomically
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// The global registry uses sync.Once for safe initialization across goroutines.
// File operations are protected by a mutex to ensure atomic writes.
package config
