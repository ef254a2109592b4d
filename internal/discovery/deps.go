package discovery

import (
	"context"
	"net"
	"os"

	"github.com/muurk/dbscout/internal/netif"
	"github.com/muurk/dbscout/internal/protocol"
	"github.com/muurk/dbscout/internal/sqlserver"
)

// NameResolver performs reverse DNS lookups. *net.Resolver satisfies it.
type NameResolver interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// Dialer opens TCP connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Handshaker logs into a SQL Server target and returns its version.
// *sqlserver.Client satisfies it.
type Handshaker interface {
	Handshake(ctx context.Context, target sqlserver.Target) (string, error)
}

// BrowserQuerier asks a host's browser service for its instances.
// *protocol.Client satisfies it.
type BrowserQuerier interface {
	Query(ctx context.Context, host string) (*protocol.Response, error)
}

// Dependencies are the network collaborators of a run. Nil fields get
// production defaults built from Options.
type Dependencies struct {
	Pinger        Pinger
	Resolver      NameResolver
	Dialer        Dialer
	Handshaker    Handshaker
	Browser       BrowserQuerier
	Hostnames     HostnameSource
	Interfaces    func() []netif.Address
	LocalHostname func() (string, error)
}

func (d Dependencies) withDefaults(opts Options) Dependencies {
	if d.Pinger == nil {
		d.Pinger = &ICMPPinger{Privileged: opts.PrivilegedPing}
	}
	if d.Resolver == nil {
		d.Resolver = net.DefaultResolver
	}
	if d.Dialer == nil {
		d.Dialer = &net.Dialer{Timeout: opts.Timeout}
	}
	if d.Handshaker == nil {
		d.Handshaker = sqlserver.NewClient(opts.Credentials, opts.LoginTimeout)
	}
	if d.Browser == nil {
		d.Browser = protocol.NewClient(opts.Timeout)
	}
	if d.Hostnames == nil && opts.ResolveMDNSNames {
		d.Hostnames = NewMDNSNamer()
	}
	if d.Interfaces == nil {
		d.Interfaces = netif.ListLocalAddresses
	}
	if d.LocalHostname == nil {
		d.LocalHostname = os.Hostname
	}
	return d
}
