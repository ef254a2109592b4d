package discovery

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/muurk/dbscout/internal/netif"
	"github.com/muurk/dbscout/internal/protocol"
	"github.com/muurk/dbscout/internal/sqlserver"
)

// fakePinger answers for the addresses in up and records every probe.
type fakePinger struct {
	mu     sync.Mutex
	up     map[string]time.Duration
	probed []string
	delay  time.Duration
	panics string
	onPing func(addr string)

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (p *fakePinger) Ping(ctx context.Context, addr string, timeout time.Duration) (time.Duration, bool, error) {
	cur := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		old := p.maxInFlight.Load()
		if cur <= old || p.maxInFlight.CompareAndSwap(old, cur) {
			break
		}
	}

	p.mu.Lock()
	p.probed = append(p.probed, addr)
	p.mu.Unlock()

	if p.onPing != nil {
		p.onPing(addr)
	}
	if addr == p.panics {
		panic("pinger exploded")
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	rtt, ok := p.up[addr]
	return rtt, ok, nil
}

func (p *fakePinger) probes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.probed))
	copy(out, p.probed)
	return out
}

type fakeResolver struct {
	names map[string]string

	mu     sync.Mutex
	lookup []string
}

func (r *fakeResolver) LookupAddr(ctx context.Context, addr string) ([]string, error) {
	r.mu.Lock()
	r.lookup = append(r.lookup, addr)
	r.mu.Unlock()
	if name, ok := r.names[addr]; ok {
		return []string{name + "."}, nil
	}
	return nil, errors.New("no PTR record")
}

func (r *fakeResolver) lookups() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lookup))
	copy(out, r.lookup)
	return out
}

// fakeDialer treats "addr:port" keys in open as listening.
type fakeDialer struct {
	open map[string]bool
}

func (d *fakeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if d.open[address] {
		client, server := net.Pipe()
		_ = server.Close()
		return client, nil
	}
	return nil, &net.OpError{Op: "dial", Net: network, Err: errors.New("connection refused")}
}

// fakeHandshaker returns per-descriptor results; unknown targets fail with
// a non-recordable error.
type fakeHandshaker struct {
	mu       sync.Mutex
	versions map[string]string
	errs     map[string]error
	calls    []string
}

func (h *fakeHandshaker) callsFor(desc string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.calls {
		if c == desc {
			n++
		}
	}
	return n
}

func (h *fakeHandshaker) Handshake(ctx context.Context, target sqlserver.Target) (string, error) {
	desc := target.Descriptor()
	h.mu.Lock()
	h.calls = append(h.calls, desc)
	h.mu.Unlock()

	if v, ok := h.versions[desc]; ok {
		return v, nil
	}
	if err, ok := h.errs[desc]; ok {
		return "", err
	}
	return "", &sqlserver.ProbeError{Class: sqlserver.ClassRefused, Target: desc, Message: "refused"}
}

// fakeBrowser replies with raw datagrams per host.
type fakeBrowser struct {
	replies map[string][]byte
	queried atomic.Int32
}

func (b *fakeBrowser) Query(ctx context.Context, host string) (*protocol.Response, error) {
	b.queried.Add(1)
	data, ok := b.replies[host]
	if !ok {
		return nil, errors.New("i/o timeout")
	}
	return protocol.ParseResponse(data)
}

type fakeHostnames struct {
	names map[string]string
}

func (f *fakeHostnames) Collect(ctx context.Context, window time.Duration) (map[string]string, error) {
	return f.names, nil
}

func authFailure(desc string) error {
	return &sqlserver.ProbeError{Class: sqlserver.ClassAuthFailed, Number: 18456, Target: desc, Message: "Login failed"}
}

func hostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.ResolveMDNSNames = false
	opts.Timeout = 50 * time.Millisecond
	return opts
}

func testDeps(p *fakePinger) Dependencies {
	return Dependencies{
		Pinger:        p,
		Resolver:      &fakeResolver{},
		Dialer:        &fakeDialer{},
		Handshaker:    &fakeHandshaker{},
		Browser:       &fakeBrowser{},
		Interfaces:    func() []netif.Address { return []netif.Address{{IP: "10.0.0.5", Interface: "eth0"}} },
		LocalHostname: func() (string, error) { return "scanner", nil },
	}
}

// collector is a concurrency-safe Sink
type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) sink(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}
