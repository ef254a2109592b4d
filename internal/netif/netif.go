// Package netif enumerates the local IPv4 addresses usable as a discovery
// starting point.
package netif

import (
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"

	"github.com/muurk/dbscout/internal/logging"
)

// Address is one IPv4 unicast address bound to a usable interface.
type Address struct {
	IP          string `json:"ip" yaml:"ip"`
	Interface   string `json:"interface" yaml:"interface"`
	Description string `json:"description" yaml:"description"`
}

// String returns "ip (interface)".
func (a Address) String() string {
	return fmt.Sprintf("%s (%s)", a.IP, a.Interface)
}

// interfaceSource is swapped in tests.
var interfaceSource = systemInterfaces

// iface is the subset of net.Interface data the filter needs.
type iface struct {
	Name         string
	Flags        net.Flags
	MTU          int
	HardwareAddr net.HardwareAddr
	Addrs        []net.Addr
}

func systemInterfaces() ([]iface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	out := make([]iface, 0, len(ifaces))
	for _, ifi := range ifaces {
		addrs, err := ifi.Addrs()
		if err != nil {
			logging.Warn("Skipping interface with unreadable addresses",
				zap.String("interface", ifi.Name),
				zap.Error(err),
			)
			continue
		}
		out = append(out, iface{
			Name:         ifi.Name,
			Flags:        ifi.Flags,
			MTU:          ifi.MTU,
			HardwareAddr: ifi.HardwareAddr,
			Addrs:        addrs,
		})
	}
	return out, nil
}

// ListLocalAddresses returns every IPv4 unicast address bound to an interface
// that is up and not loopback. Enumeration failures are logged and produce an
// empty list; callers treat empty as "cannot discover".
func ListLocalAddresses() []Address {
	ifaces, err := interfaceSource()
	if err != nil {
		logging.Warn("Failed to enumerate network interfaces", zap.Error(err))
		return nil
	}
	return filterAddresses(ifaces)
}

func filterAddresses(ifaces []iface) []Address {
	var out []Address
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		for _, a := range ifi.Addrs {
			ip := addrIP(a)
			if ip == nil {
				continue
			}
			v4 := ip.To4()
			if v4 == nil || v4.IsLoopback() || v4.IsMulticast() || v4.IsUnspecified() || v4.Equal(net.IPv4bcast) {
				continue
			}
			out = append(out, Address{
				IP:          v4.String(),
				Interface:   ifi.Name,
				Description: describe(ifi),
			})
		}
	}
	return out
}

func addrIP(a net.Addr) net.IP {
	switch v := a.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	default:
		return nil
	}
}

// describe builds a human-readable description; Go has no portable access to
// the OS adapter description.
func describe(ifi iface) string {
	parts := []string{ifi.Flags.String()}
	if ifi.MTU > 0 {
		parts = append(parts, fmt.Sprintf("mtu %d", ifi.MTU))
	}
	if len(ifi.HardwareAddr) > 0 {
		parts = append(parts, ifi.HardwareAddr.String())
	}
	return strings.Join(parts, ", ")
}

// Preferred picks the address a discovery run should start from: the first
// private (RFC 1918) address, else the first routable address, else the
// first link-local address, else "".
func Preferred(addrs []Address) string {
	for _, a := range addrs {
		if ip := net.ParseIP(a.IP); ip != nil && ip.IsPrivate() {
			return a.IP
		}
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a.IP); ip != nil && !ip.IsLinkLocalUnicast() {
			return a.IP
		}
	}
	if len(addrs) > 0 {
		return addrs[0].IP
	}
	return ""
}

// Contains reports whether ip is one of addrs.
func Contains(addrs []Address, ip string) bool {
	for _, a := range addrs {
		if a.IP == ip {
			return true
		}
	}
	return false
}
