package sqlserver

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	// DefaultInstanceName labels an instance reached on a bare port
	DefaultInstanceName = "DEFAULT"

	// ServerDefaultInstance is the name SQL Server itself gives the default instance
	ServerDefaultInstance = "MSSQLSERVER"
)

// Target identifies one SQL Server endpoint.
type Target struct {
	Host string
	// Instance is empty for an unnamed (default) instance
	Instance string
	// Port is zero when only the instance name is known
	Port int
}

// Named reports whether the target addresses a named instance.
func (t Target) Named() bool {
	return t.Instance != "" &&
		!strings.EqualFold(t.Instance, DefaultInstanceName) &&
		!strings.EqualFold(t.Instance, ServerDefaultInstance)
}

// Descriptor returns the connection descriptor users paste into tools:
// "host:port", "host\instance,port" or "host\instance".
func (t Target) Descriptor() string {
	switch {
	case !t.Named():
		return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
	case t.Port > 0:
		return fmt.Sprintf("%s\\%s,%d", t.Host, t.Instance, t.Port)
	default:
		return fmt.Sprintf("%s\\%s", t.Host, t.Instance)
	}
}

// String implements fmt.Stringer
func (t Target) String() string {
	return t.Descriptor()
}

// ParseDescriptor is the inverse of Descriptor.
func ParseDescriptor(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Target{}, fmt.Errorf("empty descriptor")
	}

	if host, rest, ok := strings.Cut(s, `\`); ok {
		if host == "" || rest == "" {
			return Target{}, fmt.Errorf("invalid descriptor %q", s)
		}
		instance, rawPort, hasPort := strings.Cut(rest, ",")
		t := Target{Host: host, Instance: instance}
		if hasPort {
			port, err := parsePort(rawPort)
			if err != nil {
				return Target{}, fmt.Errorf("invalid descriptor %q: %w", s, err)
			}
			t.Port = port
		}
		return t, nil
	}

	host, rawPort, err := net.SplitHostPort(s)
	if err != nil {
		// Bare host means the default port
		return Target{Host: s, Port: DefaultPort}, nil
	}
	port, err := parsePort(rawPort)
	if err != nil {
		return Target{}, fmt.Errorf("invalid descriptor %q: %w", s, err)
	}
	return Target{Host: host, Port: port}, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}
