package discovery

import (
	"bytes"
	"net"
	"sort"
	"sync"
)

// nodeSet is the per-run aggregate. Every mutation and every count read goes
// through mu.
type nodeSet struct {
	mu    sync.Mutex
	order []string
	nodes map[string]*Node
}

func newNodeSet() *nodeSet {
	return &nodeSet{nodes: make(map[string]*Node)}
}

// add inserts n unless its address is already present. It returns the node
// count after the call and whether n was inserted.
func (s *nodeSet) add(n Node) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.nodes[n.Address]; exists {
		return len(s.nodes), false
	}
	stored := n
	s.nodes[n.Address] = &stored
	s.order = append(s.order, n.Address)
	return len(s.nodes), true
}

func (s *nodeSet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}

// hasPort reports whether addr already has any instance on port.
func (s *nodeSet) hasPort(addr string, port int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[addr]
	if !ok {
		return false
	}
	for _, inst := range n.Instances {
		if inst.Port == port {
			return true
		}
	}
	return false
}

// hasInstance reports whether addr already has (name, port).
func (s *nodeSet) hasInstance(addr, name string, port int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[addr]
	if !ok {
		return false
	}
	return findInstance(n, name, port)
}

func findInstance(n *Node, name string, port int) bool {
	for _, inst := range n.Instances {
		if inst.InstanceName == name && inst.Port == port {
			return true
		}
	}
	return false
}

// addDefault appends inst keyed on port alone.
func (s *nodeSet) addDefault(addr string, inst Instance) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[addr]
	if !ok {
		return false
	}
	for _, existing := range n.Instances {
		if existing.Port == inst.Port {
			return false
		}
	}
	n.Instances = append(n.Instances, inst)
	return true
}

// addNamed appends inst keyed on (InstanceName, Port).
func (s *nodeSet) addNamed(addr string, inst Instance) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[addr]
	if !ok {
		return false
	}
	if findInstance(n, inst.InstanceName, inst.Port) {
		return false
	}
	n.Instances = append(n.Instances, inst)
	return true
}

// applyHostnames replaces bare-address hostnames with names from the map.
// It returns how many nodes changed.
func (s *nodeSet) applyHostnames(names map[string]string) int {
	if len(names) == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for addr, n := range s.nodes {
		name, ok := names[addr]
		if !ok || name == "" {
			continue
		}
		if n.Hostname == "" || n.Hostname == n.Address {
			n.Hostname = name
			changed++
		}
	}
	return changed
}

// snapshot returns deep copies in insertion order.
func (s *nodeSet) snapshot() []Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Node, 0, len(s.order))
	for _, addr := range s.order {
		out = append(out, s.nodes[addr].clone())
	}
	return out
}

// sorted returns a snapshot with the local node first, then by address.
func (s *nodeSet) sorted() []Node {
	nodes := s.snapshot()
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].IsLocalMachine != nodes[j].IsLocalMachine {
			return nodes[i].IsLocalMachine
		}
		return compareIPv4(nodes[i].Address, nodes[j].Address) < 0
	})
	return nodes
}

func compareIPv4(a, b string) int {
	ipA, ipB := net.ParseIP(a).To4(), net.ParseIP(b).To4()
	if ipA == nil || ipB == nil {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	}
	return bytes.Compare(ipA, ipB)
}
