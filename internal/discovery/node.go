package discovery

import (
	"fmt"
	"time"
)

// Instance is one SQL Server instance found on a node
type Instance struct {
	// ServerName is the server's own name (browser reply or resolved hostname)
	ServerName string `json:"server_name" yaml:"server_name"`

	// InstanceName is "DEFAULT" for instances reached on a bare port
	InstanceName string `json:"instance_name" yaml:"instance_name"`

	Port int `json:"port" yaml:"port"`

	// Version is the first line of @@VERSION, empty when inaccessible
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	Accessible                   bool `json:"accessible" yaml:"accessible"`
	IsNamedInstance              bool `json:"is_named_instance" yaml:"is_named_instance"`
	DiscoveredViaBrowserProtocol bool `json:"discovered_via_browser_protocol" yaml:"discovered_via_browser_protocol"`

	// LastError is set when the server rejected the login or database
	LastError string `json:"last_error,omitempty" yaml:"last_error,omitempty"`

	// Descriptor is the connection string a user would type
	Descriptor string `json:"descriptor" yaml:"descriptor"`

	// Properties holds extra browser reply fields (Version, IsClustered, np)
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// String returns a human-readable string representation of the instance
func (i *Instance) String() string {
	state := "accessible"
	if !i.Accessible {
		state = "inaccessible"
	}
	return fmt.Sprintf("%s (%s)", i.Descriptor, state)
}

// GetProperty retrieves a property value by key, or returns empty string if not found
func (i *Instance) GetProperty(key string) string {
	if i.Properties == nil {
		return ""
	}
	return i.Properties[key]
}

// Node is one reachable host on the scanned subnet
type Node struct {
	// Address is the dotted IPv4 address, unique within a run
	Address string `json:"address" yaml:"address"`

	// Hostname is the resolved name, or Address when resolution failed
	Hostname string `json:"hostname" yaml:"hostname"`

	Responding     bool  `json:"responding" yaml:"responding"`
	ResponseTimeMs int64 `json:"response_time_ms" yaml:"response_time_ms"`

	// IsLocalMachine marks the scanning host; exactly one per run
	IsLocalMachine bool `json:"is_local_machine" yaml:"is_local_machine"`

	// Instances is unique by (InstanceName, Port)
	Instances []Instance `json:"instances" yaml:"instances"`

	DiscoveredAt time.Time `json:"discovered_at" yaml:"discovered_at"`
}

// String returns a human-readable string representation of the node
func (n *Node) String() string {
	if n.Hostname != "" && n.Hostname != n.Address {
		return fmt.Sprintf("%s (%s)", n.Hostname, n.Address)
	}
	return n.Address
}

// HasInstances reports whether any SQL Server instance was found
func (n *Node) HasInstances() bool {
	return len(n.Instances) > 0
}

// AccessibleCount returns the number of instances that accepted a login
func (n *Node) AccessibleCount() int {
	count := 0
	for _, inst := range n.Instances {
		if inst.Accessible {
			count++
		}
	}
	return count
}

func (n *Node) clone() Node {
	out := *n
	if n.Instances != nil {
		out.Instances = make([]Instance, len(n.Instances))
		for i, inst := range n.Instances {
			out.Instances[i] = inst
			if inst.Properties != nil {
				props := make(map[string]string, len(inst.Properties))
				for k, v := range inst.Properties {
					props[k] = v
				}
				out.Instances[i].Properties = props
			}
		}
	}
	return out
}

// CountInstances totals the instances across nodes
func CountInstances(nodes []Node) int {
	total := 0
	for i := range nodes {
		total += len(nodes[i].Instances)
	}
	return total
}
