package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/dbscout/internal/logging"
)

const (
	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."
)

// DefaultMDNSServices are browsed for host names. Windows and Samba hosts
// announce _smb._tcp, macOS announces _device-info._tcp, Linux desktops
// running avahi announce _workstation._tcp.
var DefaultMDNSServices = []string{
	"_workstation._tcp",
	"_smb._tcp",
	"_device-info._tcp",
}

// HostnameSource collects an IPv4 address to hostname map
type HostnameSource interface {
	Collect(ctx context.Context, window time.Duration) (map[string]string, error)
}

// MDNSNamer collects host names from mDNS service announcements
type MDNSNamer struct {
	Services []string
	Domain   string
}

// NewMDNSNamer creates a namer browsing DefaultMDNSServices
func NewMDNSNamer() *MDNSNamer {
	return &MDNSNamer{
		Services: DefaultMDNSServices,
		Domain:   ServiceDomain,
	}
}

// Collect browses every service for window and returns the names seen.
// A service that cannot be browsed is logged and skipped.
func (m *MDNSNamer) Collect(ctx context.Context, window time.Duration) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	var (
		mu      sync.Mutex
		names   = make(map[string]string)
		wg      sync.WaitGroup
		started int
	)

	for _, service := range m.Services {
		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			logging.Warn("Failed to create mDNS resolver",
				zap.String("service", service),
				zap.Error(err),
			)
			continue
		}

		entries := make(chan *zeroconf.ServiceEntry)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range entries {
				addr, host, ok := parseHostEntry(entry)
				if !ok {
					continue
				}
				mu.Lock()
				if _, seen := names[addr]; !seen {
					names[addr] = host
				}
				mu.Unlock()
			}
		}()

		if err := resolver.Browse(ctx, service, m.Domain, entries); err != nil {
			logging.Warn("Failed to browse mDNS service",
				zap.String("service", service),
				zap.Error(err),
			)
			continue
		}
		started++
	}

	// Every browse closes its entries channel once ctx is done
	<-ctx.Done()
	wg.Wait()

	if started == 0 && len(m.Services) > 0 {
		return names, fmt.Errorf("failed to browse any mDNS service")
	}
	return names, nil
}

// parseHostEntry extracts (IPv4, short hostname) from a service entry.
func parseHostEntry(entry *zeroconf.ServiceEntry) (string, string, bool) {
	if entry == nil || len(entry.AddrIPv4) == 0 {
		return "", "", false
	}
	host := trimLocal(entry.HostName)
	if host == "" {
		host = trimLocal(entry.Instance)
	}
	if host == "" {
		return "", "", false
	}
	return entry.AddrIPv4[0].String(), host, true
}

func trimLocal(name string) string {
	name = strings.TrimSuffix(name, ".")
	name = strings.TrimSuffix(name, ".local")
	return name
}
