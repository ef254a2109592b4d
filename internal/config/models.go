package config

import (
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/muurk/dbscout/internal/discovery"
	"github.com/muurk/dbscout/internal/sqlserver"
)

// CurrentVersion is the config file schema version
const CurrentVersion = 1

// Registry represents the entire user configuration file.
// This stores discovery preferences and the connections a user has picked.
type Registry struct {
	Version     int                    `yaml:"version"`
	Discovery   *DiscoveryPrefs        `yaml:"discovery,omitempty"`
	SQL         *SQLPrefs              `yaml:"sql,omitempty"`
	Server      *ServerPrefs           `yaml:"server,omitempty"`
	Connections map[string]*Connection `yaml:"connections,omitempty"` // Keyed by connection name
	Active      string                 `yaml:"active,omitempty"`      // Name of the selected connection
}

// DiscoveryPrefs holds the defaults for a discovery run.
type DiscoveryPrefs struct {
	DefaultAddress         string `yaml:"default_address,omitempty"` // Empty means auto-detect
	TimeoutMs              int    `yaml:"timeout_ms"`
	LoginTimeoutSeconds    int    `yaml:"login_timeout_seconds"`
	MaxConcurrentPings     int    `yaml:"max_concurrent_pings"`
	MaxConcurrentSQLChecks int    `yaml:"max_concurrent_sql_checks"`
	SQLPort                int    `yaml:"sql_port"`
	ScanCommonSQLPorts     bool   `yaml:"scan_common_sql_ports"`
	ScanForNamedInstances  bool   `yaml:"scan_for_named_instances"`
	ResolveHostnames       bool   `yaml:"resolve_hostnames"`
	ResolveMDNSNames       bool   `yaml:"resolve_mdns_names"`
	MDNSWindowMs           int    `yaml:"mdns_window_ms"`
	PrivilegedPing         *bool  `yaml:"privileged_ping,omitempty"` // Nil selects the platform default
}

// SQLPrefs holds the login used for handshakes.
// Note: Passwords are NEVER stored - they come from a flag or the environment.
type SQLPrefs struct {
	Username string `yaml:"username,omitempty"`
	// Password is NEVER stored in config file for security reasons
}

// ServerPrefs holds defaults for the HTTP/WebSocket server.
type ServerPrefs struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Connection is a SQL Server instance the user selected.
type Connection struct {
	Descriptor string    `yaml:"descriptor"`
	Host       string    `yaml:"host"`
	Instance   string    `yaml:"instance,omitempty"`
	Port       int       `yaml:"port,omitempty"`
	ServerName string    `yaml:"server_name,omitempty"`
	Version    string    `yaml:"version,omitempty"`
	Username   string    `yaml:"username,omitempty"`
	SelectedAt time.Time `yaml:"selected_at"`
}

// Target returns the connection as a handshake target.
func (c *Connection) Target() sqlserver.Target {
	return sqlserver.Target{Host: c.Host, Instance: c.Instance, Port: c.Port}
}

// NewConnection builds a connection entry from a target.
func NewConnection(target sqlserver.Target) *Connection {
	return &Connection{
		Descriptor: target.Descriptor(),
		Host:       target.Host,
		Instance:   target.Instance,
		Port:       target.Port,
		SelectedAt: time.Now(),
	}
}

// DefaultDiscoveryPrefs mirrors discovery.DefaultOptions.
func DefaultDiscoveryPrefs() *DiscoveryPrefs {
	opts := discovery.DefaultOptions()
	return &DiscoveryPrefs{
		TimeoutMs:              int(opts.Timeout / time.Millisecond),
		LoginTimeoutSeconds:    int(opts.LoginTimeout / time.Second),
		MaxConcurrentPings:     opts.MaxConcurrentPings,
		MaxConcurrentSQLChecks: opts.MaxConcurrentSQLChecks,
		SQLPort:                opts.SQLPort,
		ScanCommonSQLPorts:     opts.ScanCommonSQLPorts,
		ScanForNamedInstances:  opts.ScanForNamedInstances,
		ResolveHostnames:       opts.ResolveHostnames,
		ResolveMDNSNames:       opts.ResolveMDNSNames,
		MDNSWindowMs:           int(opts.MDNSWindow / time.Millisecond),
	}
}

// DefaultServerPrefs returns the server defaults.
func DefaultServerPrefs() *ServerPrefs {
	return &ServerPrefs{
		Host: "127.0.0.1",
		Port: 8080,
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     CurrentVersion,
		Discovery:   DefaultDiscoveryPrefs(),
		SQL:         &SQLPrefs{},
		Server:      DefaultServerPrefs(),
		Connections: make(map[string]*Connection),
	}
}

// fillDefaults initializes sections missing from a loaded file.
func (r *Registry) fillDefaults() {
	if r.Discovery == nil {
		r.Discovery = DefaultDiscoveryPrefs()
	}
	if r.SQL == nil {
		r.SQL = &SQLPrefs{}
	}
	if r.Server == nil {
		r.Server = DefaultServerPrefs()
	}
	if r.Connections == nil {
		r.Connections = make(map[string]*Connection)
	}
}

// Options converts the preferences into discovery options. Zero values fall
// back to the discovery defaults.
func (p *DiscoveryPrefs) Options() discovery.Options {
	opts := discovery.DefaultOptions()
	if p == nil {
		return opts
	}
	if p.TimeoutMs > 0 {
		opts.Timeout = time.Duration(p.TimeoutMs) * time.Millisecond
	}
	if p.LoginTimeoutSeconds > 0 {
		opts.LoginTimeout = time.Duration(p.LoginTimeoutSeconds) * time.Second
	}
	if p.MaxConcurrentPings > 0 {
		opts.MaxConcurrentPings = p.MaxConcurrentPings
	}
	if p.MaxConcurrentSQLChecks > 0 {
		opts.MaxConcurrentSQLChecks = p.MaxConcurrentSQLChecks
	}
	if p.SQLPort > 0 {
		opts.SQLPort = p.SQLPort
	}
	if p.MDNSWindowMs > 0 {
		opts.MDNSWindow = time.Duration(p.MDNSWindowMs) * time.Millisecond
	}
	opts.ScanCommonSQLPorts = p.ScanCommonSQLPorts
	opts.ScanForNamedInstances = p.ScanForNamedInstances
	opts.ResolveHostnames = p.ResolveHostnames
	opts.ResolveMDNSNames = p.ResolveMDNSNames
	if p.PrivilegedPing != nil {
		opts.PrivilegedPing = *p.PrivilegedPing
	} else {
		opts.PrivilegedPing = runtime.GOOS == "windows"
	}
	return opts
}

// Options builds discovery options from the registry, including the stored
// username. The password must be supplied by the caller.
func (r *Registry) Options(password string) discovery.Options {
	opts := r.Discovery.Options()
	if r.SQL != nil {
		opts.Credentials = sqlserver.Credentials{User: r.SQL.Username, Password: password}
	}
	return opts
}

// UseConnection stores conn under name and marks it active.
func (r *Registry) UseConnection(name string, conn *Connection) error {
	if name == "" {
		return fmt.Errorf("connection name must not be empty")
	}
	if conn == nil || conn.Host == "" {
		return fmt.Errorf("connection %q has no host", name)
	}
	if r.Connections == nil {
		r.Connections = make(map[string]*Connection)
	}
	r.Connections[name] = conn
	r.Active = name
	return nil
}

// ActiveConnection returns the selected connection, or nil.
func (r *Registry) ActiveConnection() *Connection {
	if r.Active == "" {
		return nil
	}
	return r.Connections[r.Active]
}

// RemoveConnection deletes a saved connection. It reports whether it existed.
func (r *Registry) RemoveConnection(name string) bool {
	if _, ok := r.Connections[name]; !ok {
		return false
	}
	delete(r.Connections, name)
	if r.Active == name {
		r.Active = ""
	}
	return true
}

// ConnectionNames returns the saved connection names in sorted order.
func (r *Registry) ConnectionNames() []string {
	names := make([]string, 0, len(r.Connections))
	for name := range r.Connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
