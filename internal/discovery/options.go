package discovery

import (
	"fmt"
	"runtime"
	"time"

	"github.com/muurk/dbscout/internal/sqlserver"
)

const (
	// DefaultTimeout bounds each ping, port connect and UDP exchange
	DefaultTimeout = 500 * time.Millisecond

	// DefaultLoginTimeout bounds each database handshake
	DefaultLoginTimeout = 5 * time.Second

	// DefaultMaxConcurrentPings is the sweep pool size
	DefaultMaxConcurrentPings = 50

	// DefaultMaxConcurrentSQLChecks is the port probe pool size
	DefaultMaxConcurrentSQLChecks = 10

	// DefaultMDNSWindow is how long mDNS names are collected
	DefaultMDNSWindow = 2 * time.Second
)

// CommonSQLPorts is probed when ScanCommonSQLPorts is set
var CommonSQLPorts = []int{1433, 1434, 2433, 4022}

// Options configures a discovery run
type Options struct {
	Timeout                time.Duration `json:"timeout" yaml:"timeout"`
	LoginTimeout           time.Duration `json:"login_timeout" yaml:"login_timeout"`
	MaxConcurrentPings     int           `json:"max_concurrent_pings" yaml:"max_concurrent_pings"`
	MaxConcurrentSQLChecks int           `json:"max_concurrent_sql_checks" yaml:"max_concurrent_sql_checks"`
	SQLPort                int           `json:"sql_port" yaml:"sql_port"`
	ScanCommonSQLPorts     bool          `json:"scan_common_sql_ports" yaml:"scan_common_sql_ports"`
	ScanForNamedInstances  bool          `json:"scan_for_named_instances" yaml:"scan_for_named_instances"`

	// ScanLocalSubnetOnly must be true; cross-subnet scanning is not supported
	ScanLocalSubnetOnly bool `json:"scan_local_subnet_only" yaml:"scan_local_subnet_only"`

	ResolveHostnames bool          `json:"resolve_hostnames" yaml:"resolve_hostnames"`
	ResolveMDNSNames bool          `json:"resolve_mdns_names" yaml:"resolve_mdns_names"`
	MDNSWindow       time.Duration `json:"mdns_window" yaml:"mdns_window"`

	// PrivilegedPing uses raw ICMP sockets instead of unprivileged UDP pings
	PrivilegedPing bool `json:"privileged_ping" yaml:"privileged_ping"`

	// Credentials for the handshake; never serialized
	Credentials sqlserver.Credentials `json:"-" yaml:"-"`
}

// DefaultOptions returns the default discovery settings
func DefaultOptions() Options {
	return Options{
		Timeout:                DefaultTimeout,
		LoginTimeout:           DefaultLoginTimeout,
		MaxConcurrentPings:     DefaultMaxConcurrentPings,
		MaxConcurrentSQLChecks: DefaultMaxConcurrentSQLChecks,
		SQLPort:                sqlserver.DefaultPort,
		ScanCommonSQLPorts:     true,
		ScanForNamedInstances:  true,
		ScanLocalSubnetOnly:    true,
		ResolveHostnames:       true,
		ResolveMDNSNames:       true,
		MDNSWindow:             DefaultMDNSWindow,
		PrivilegedPing:         runtime.GOOS == "windows",
	}
}

// Validate checks option ranges
func (o Options) Validate() error {
	if o.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", o.Timeout)
	}
	if o.LoginTimeout <= 0 {
		return fmt.Errorf("login timeout must be positive, got %v", o.LoginTimeout)
	}
	if o.MaxConcurrentPings < 1 {
		return fmt.Errorf("max concurrent pings must be at least 1, got %d", o.MaxConcurrentPings)
	}
	if o.MaxConcurrentSQLChecks < 1 {
		return fmt.Errorf("max concurrent SQL checks must be at least 1, got %d", o.MaxConcurrentSQLChecks)
	}
	if o.SQLPort < 1 || o.SQLPort > 65535 {
		return fmt.Errorf("SQL port must be between 1 and 65535, got %d", o.SQLPort)
	}
	if !o.ScanLocalSubnetOnly {
		return fmt.Errorf("scanning outside the local subnet is not supported")
	}
	if o.ResolveMDNSNames && o.MDNSWindow <= 0 {
		return fmt.Errorf("mDNS window must be positive, got %v", o.MDNSWindow)
	}
	return nil
}

// Ports returns the candidate TCP ports for the port stage
func (o Options) Ports() []int {
	if o.ScanCommonSQLPorts {
		ports := make([]int, len(CommonSQLPorts))
		copy(ports, CommonSQLPorts)
		return ports
	}
	return []int{o.SQLPort}
}
