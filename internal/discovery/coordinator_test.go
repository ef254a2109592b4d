package discovery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/dbscout/internal/netif"
	"github.com/muurk/dbscout/internal/protocol"
	"github.com/muurk/dbscout/internal/sqlserver"
)

func findNode(t *testing.T, nodes []Node, addr string) Node {
	t.Helper()
	for _, n := range nodes {
		if n.Address == addr {
			return n
		}
	}
	t.Fatalf("node %s not found in %v", addr, nodes)
	return Node{}
}

func findInstanceBy(n Node, name string, port int) (Instance, bool) {
	for _, inst := range n.Instances {
		if inst.InstanceName == name && inst.Port == port {
			return inst, true
		}
	}
	return Instance{}, false
}

func TestRun_SweepsEveryAddressExceptLocal(t *testing.T) {
	p := &fakePinger{}
	c := NewCoordinator(testOptions(), testDeps(p))

	ev, err := c.Run(context.Background(), "10.0.0.5", nil)
	require.NoError(t, err)

	probes := p.probes()
	assert.Len(t, probes, 254)
	assert.NotContains(t, probes, "10.0.0.5")
	assert.Contains(t, probes, "10.0.0.1")
	assert.Contains(t, probes, "10.0.0.255")

	require.Len(t, ev.Nodes, 1)
	local := ev.Nodes[0]
	assert.Equal(t, "10.0.0.5", local.Address)
	assert.True(t, local.IsLocalMachine)
	assert.True(t, local.Responding)
	assert.Equal(t, "scanner", local.Hostname)
}

func TestRun_PingConcurrencyBounded(t *testing.T) {
	p := &fakePinger{delay: 5 * time.Millisecond}
	opts := testOptions()
	opts.MaxConcurrentPings = 5
	c := NewCoordinator(opts, testDeps(p))

	_, err := c.Run(context.Background(), "10.0.0.5", nil)
	require.NoError(t, err)

	peak := p.maxInFlight.Load()
	assert.LessOrEqual(t, peak, int32(5))
	assert.Greater(t, peak, int32(0))
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	p := &fakePinger{}
	c := NewCoordinator(testOptions(), testDeps(p))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ev, err := c.Run(ctx, "10.0.0.5", nil)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCancelled, ev.Outcome)
	assert.False(t, ev.Succeeded)
	assert.Contains(t, ev.Message, "cancelled")
	assert.ErrorIs(t, ev.Err, ErrCancelled)
	require.Len(t, ev.Nodes, 1)
	assert.True(t, ev.Nodes[0].IsLocalMachine)
	assert.Empty(t, p.probes())
	assert.Equal(t, StateIdle, c.State())
}

func TestRun_SingleLocalHostNoSQL(t *testing.T) {
	opts := testOptions()
	opts.ScanCommonSQLPorts = false
	c := NewCoordinator(opts, testDeps(&fakePinger{}))

	ev, err := c.Run(context.Background(), "10.0.0.5", nil)
	require.NoError(t, err)

	assert.True(t, ev.Succeeded)
	assert.Equal(t, OutcomeCompleted, ev.Outcome)
	assert.Len(t, ev.Nodes, 1)
	assert.Equal(t, 0, ev.InstanceCount())
	assert.Empty(t, ev.Error)
}

func TestRun_ClassifiesInstances(t *testing.T) {
	p := &fakePinger{up: map[string]time.Duration{"10.0.0.20": 3 * time.Millisecond}}
	deps := testDeps(p)
	deps.Resolver = &fakeResolver{names: map[string]string{"10.0.0.20": "db20.lan"}}
	deps.Dialer = &fakeDialer{open: map[string]bool{
		hostPort("10.0.0.20", 1433): true,
		hostPort("10.0.0.20", 2433): true,
		hostPort("10.0.0.20", 4022): true,
	}}
	deps.Handshaker = &fakeHandshaker{
		versions: map[string]string{
			"10.0.0.20:1433":            "Microsoft SQL Server 2019 (RTM)",
			`10.0.0.20\SQLEXPRESS,1533`: "Microsoft SQL Server 2017 (RTM)",
		},
		errs: map[string]error{
			"10.0.0.20:2433": authFailure("10.0.0.20:2433"),
		},
	}
	record := "ServerName;DB20;InstanceName;SQLEXPRESS;IsClustered;No;tcp;1533;;;"
	deps.Browser = &fakeBrowser{replies: map[string][]byte{
		"10.0.0.20": protocol.EncodePayload(record + record),
	}}

	c := NewCoordinator(testOptions(), deps)
	ev, err := c.Run(context.Background(), "10.0.0.5", nil)
	require.NoError(t, err)
	require.True(t, ev.Succeeded, ev.Message)

	require.Len(t, ev.Nodes, 2)
	assert.True(t, ev.Nodes[0].IsLocalMachine, "local node sorts first")

	node := findNode(t, ev.Nodes, "10.0.0.20")
	assert.Equal(t, "db20.lan", node.Hostname)
	assert.Equal(t, int64(3), node.ResponseTimeMs)
	require.Len(t, node.Instances, 3)

	def, ok := findInstanceBy(node, sqlserver.DefaultInstanceName, 1433)
	require.True(t, ok)
	assert.True(t, def.Accessible)
	assert.Equal(t, "Microsoft SQL Server 2019 (RTM)", def.Version)
	assert.Equal(t, "10.0.0.20:1433", def.Descriptor)
	assert.Equal(t, "db20.lan", def.ServerName)

	denied, ok := findInstanceBy(node, sqlserver.DefaultInstanceName, 2433)
	require.True(t, ok)
	assert.False(t, denied.Accessible)
	assert.NotEmpty(t, denied.LastError)

	_, ok = findInstanceBy(node, sqlserver.DefaultInstanceName, 4022)
	assert.False(t, ok, "non-recordable handshake failure must not produce an instance")

	named, ok := findInstanceBy(node, "SQLEXPRESS", 1533)
	require.True(t, ok)
	assert.True(t, named.IsNamedInstance)
	assert.True(t, named.DiscoveredViaBrowserProtocol)
	assert.Equal(t, "DB20", named.ServerName)
	assert.Equal(t, `10.0.0.20\SQLEXPRESS,1533`, named.Descriptor)
	assert.Equal(t, "No", named.GetProperty(protocol.KeyIsClustered))

	assert.Equal(t, 3, ev.InstanceCount())
}

func TestRun_UnexpectedBrowserReplyIsolated(t *testing.T) {
	p := &fakePinger{up: map[string]time.Duration{
		"10.0.0.20": time.Millisecond,
		"10.0.0.21": time.Millisecond,
	}}
	deps := testDeps(p)
	deps.Handshaker = &fakeHandshaker{versions: map[string]string{
		`10.0.0.20\BAD,1600`: "should never be asked",
		`10.0.0.21\PROD,1601`: "Microsoft SQL Server 2022",
	}}
	deps.Browser = &fakeBrowser{replies: map[string][]byte{
		"10.0.0.20": append([]byte{0x04, 0x00, 0x00}, "ServerName;A;InstanceName;BAD;tcp;1600;;;"...),
		"10.0.0.21": protocol.EncodePayload("ServerName;B;InstanceName;PROD;tcp;1601;;;"),
	}}

	c := NewCoordinator(testOptions(), deps)
	ev, err := c.Run(context.Background(), "10.0.0.5", nil)
	require.NoError(t, err)
	require.True(t, ev.Succeeded)

	assert.Empty(t, findNode(t, ev.Nodes, "10.0.0.20").Instances)
	good := findNode(t, ev.Nodes, "10.0.0.21")
	require.Len(t, good.Instances, 1)
	assert.Equal(t, "PROD", good.Instances[0].InstanceName)
}

func TestRun_NamedInstancesDisabled(t *testing.T) {
	p := &fakePinger{up: map[string]time.Duration{"10.0.0.20": time.Millisecond}}
	deps := testDeps(p)
	browser := &fakeBrowser{}
	deps.Browser = browser

	opts := testOptions()
	opts.ScanForNamedInstances = false
	c := NewCoordinator(opts, deps)

	_, err := c.Run(context.Background(), "10.0.0.5", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(0), browser.queried.Load())
}

func TestRun_ProgressMonotonicPerStage(t *testing.T) {
	up := make(map[string]time.Duration)
	for i := 1; i <= 40; i++ {
		up[fmt.Sprintf("10.0.0.%d", i)] = time.Millisecond
	}
	p := &fakePinger{up: up, delay: time.Millisecond}
	col := &collector{}
	c := NewCoordinator(testOptions(), testDeps(p))

	_, err := c.Run(context.Background(), "10.0.0.5", col.sink)
	require.NoError(t, err)

	events := col.all()
	require.NotEmpty(t, events)
	last := make(map[Stage]int)
	completions := 0
	for i, e := range events {
		if e.Type == EventCompletion {
			completions++
			assert.Equal(t, len(events)-1, i, "completion must be the final event")
			continue
		}
		require.NotNil(t, e.Progress)
		assert.GreaterOrEqual(t, e.Progress.Current, last[e.Progress.Stage], "stage %s went backwards", e.Progress.Stage)
		last[e.Progress.Stage] = e.Progress.Current
	}
	assert.Equal(t, 1, completions)
	assert.Equal(t, 40, last[StageSweep], "local node plus 39 remote hosts")
	assert.Equal(t, 40*len(CommonSQLPorts), last[StagePorts])
	assert.Equal(t, 40, last[StageBrowser])
}

func TestStart_ReentrancyIsNoop(t *testing.T) {
	p := &fakePinger{delay: 20 * time.Millisecond}
	c := NewCoordinator(testOptions(), testDeps(p))

	events, ok := c.Start(context.Background(), "10.0.0.5")
	require.True(t, ok)
	require.NotNil(t, events)
	assert.Equal(t, StateRunning, c.State())

	second, ok := c.Start(context.Background(), "10.0.0.5")
	assert.False(t, ok)
	assert.Nil(t, second)

	_, err := c.Run(context.Background(), "10.0.0.5", nil)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.ErrorIs(t, c.SetOptions(testOptions()), ErrAlreadyRunning)

	var final *CompletionEvent
	for e := range events {
		if e.Type == EventCompletion {
			final = e.Completion
		}
	}
	require.NotNil(t, final)
	assert.True(t, final.Succeeded)
	assert.Equal(t, StateIdle, c.State())
	require.NotNil(t, c.Last())
	assert.Equal(t, OutcomeCompleted, c.Last().Outcome)

	// a new run may start once idle
	again, ok := c.Start(context.Background(), "10.0.0.5")
	require.True(t, ok)
	for range again {
	}
}

func TestCancel_MidRun(t *testing.T) {
	up := make(map[string]time.Duration)
	for i := 1; i <= 255; i++ {
		up[fmt.Sprintf("10.0.0.%d", i)] = time.Millisecond
	}
	p := &fakePinger{up: up, delay: 10 * time.Millisecond}
	opts := testOptions()
	opts.MaxConcurrentPings = 2
	c := NewCoordinator(opts, testDeps(p))

	events, ok := c.Start(context.Background(), "10.0.0.5")
	require.True(t, ok)

	var all []Event
	progress := 0
	for e := range events {
		all = append(all, e)
		if e.Type == EventProgress {
			progress++
			if progress == 4 {
				c.Cancel()
			}
		}
	}

	require.NotEmpty(t, all)
	final := all[len(all)-1]
	require.Equal(t, EventCompletion, final.Type)
	assert.Equal(t, OutcomeCancelled, final.Completion.Outcome)
	assert.False(t, final.Completion.Succeeded)
	assert.Contains(t, final.Completion.Message, "cancelled")
	for _, e := range all[:len(all)-1] {
		assert.Equal(t, EventProgress, e.Type)
		assert.Equal(t, final.RunID, e.RunID)
	}
	assert.Less(t, len(p.probes()), 254, "cancellation should stop new probes")
	assert.True(t, final.Completion.Nodes[0].IsLocalMachine)
	assert.Equal(t, StateIdle, c.State())
}

func TestCancel_WhenIdleIsNoop(t *testing.T) {
	c := NewCoordinator(testOptions(), testDeps(&fakePinger{}))
	c.Cancel()
	assert.Equal(t, StateIdle, c.State())
}

func TestRun_WorkerPanicBecomesFailed(t *testing.T) {
	p := &fakePinger{panics: "10.0.0.7"}
	c := NewCoordinator(testOptions(), testDeps(p))

	ev, err := c.Run(context.Background(), "10.0.0.5", nil)
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, ev.Outcome)
	assert.False(t, ev.Succeeded)
	assert.Contains(t, ev.Error, "pinger exploded")
	var pe *PanicError
	assert.True(t, errors.As(ev.Err, &pe))
	assert.Equal(t, StateIdle, c.State())

	// the coordinator is usable again
	p.panics = ""
	ev, err = c.Run(context.Background(), "10.0.0.5", nil)
	require.NoError(t, err)
	assert.True(t, ev.Succeeded)
}

func TestRun_SinkPanicBecomesFailed(t *testing.T) {
	c := NewCoordinator(testOptions(), testDeps(&fakePinger{}))
	calls := 0
	ev, err := c.Run(context.Background(), "10.0.0.5", func(e Event) {
		calls++
		if calls == 1 {
			panic(errors.New("consumer bug"))
		}
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, ev.Outcome)
	assert.Contains(t, ev.Message, "consumer bug")
}

func TestRun_AddressResolution(t *testing.T) {
	tests := []struct {
		name       string
		address    string
		interfaces []netif.Address
		wantFail   bool
	}{
		{"no interfaces", "", nil, true},
		{"not an address", "not-an-ip", nil, true},
		{"ipv6", "fe80::1", nil, true},
		{"loopback", "127.0.0.1", nil, true},
		{"network address", "10.0.0.0", nil, true},
		{"broadcast address", "10.0.0.255", nil, true},
		{"explicit host", "10.0.0.254", nil, false},
		{"auto detected", "", []netif.Address{{IP: "10.0.0.5"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := testDeps(&fakePinger{})
			deps.Interfaces = func() []netif.Address { return tt.interfaces }
			c := NewCoordinator(testOptions(), deps)

			ev, err := c.Run(context.Background(), tt.address, nil)
			require.NoError(t, err)
			if !tt.wantFail {
				assert.True(t, ev.Succeeded)
				return
			}
			assert.Equal(t, OutcomeFailed, ev.Outcome)
			var are *AddressResolutionError
			assert.True(t, errors.As(ev.Err, &are), "error = %v", ev.Err)
			assert.Empty(t, ev.Nodes)
			assert.Equal(t, StateIdle, c.State())
		})
	}
}

func TestRun_InvalidOptions(t *testing.T) {
	opts := testOptions()
	opts.ScanLocalSubnetOnly = false
	c := NewCoordinator(opts, testDeps(&fakePinger{}))

	ev, err := c.Run(context.Background(), "10.0.0.5", nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, ev.Outcome)
	assert.Contains(t, ev.Error, "local subnet")
}

func TestRun_MDNSEnrichment(t *testing.T) {
	p := &fakePinger{up: map[string]time.Duration{
		"10.0.0.20": time.Millisecond,
		"10.0.0.21": time.Millisecond,
	}}
	deps := testDeps(p)
	deps.Resolver = &fakeResolver{names: map[string]string{"10.0.0.21": "dns-name"}}
	deps.Hostnames = &fakeHostnames{names: map[string]string{
		"10.0.0.20": "nas",
		"10.0.0.21": "ignored",
	}}
	opts := testOptions()
	opts.ResolveMDNSNames = true
	col := &collector{}
	c := NewCoordinator(opts, deps)

	ev, err := c.Run(context.Background(), "10.0.0.5", col.sink)
	require.NoError(t, err)

	assert.Equal(t, "nas", findNode(t, ev.Nodes, "10.0.0.20").Hostname)
	assert.Equal(t, "dns-name", findNode(t, ev.Nodes, "10.0.0.21").Hostname)

	var enriched bool
	for _, e := range col.all() {
		if e.Progress != nil && e.Progress.Stage == StageEnrich {
			enriched = true
		}
	}
	assert.True(t, enriched)
}

func TestRun_AdvertisedDefaultInstanceNotDuplicated(t *testing.T) {
	p := &fakePinger{up: map[string]time.Duration{
		"10.0.0.20": time.Millisecond,
		"10.0.0.21": time.Millisecond,
	}}
	deps := testDeps(p)
	deps.Dialer = &fakeDialer{open: map[string]bool{hostPort("10.0.0.20", 1433): true}}
	hs := &fakeHandshaker{versions: map[string]string{
		"10.0.0.20:1433": "Microsoft SQL Server 2019 (RTM)",
		"10.0.0.21:1433": "Microsoft SQL Server 2016 (SP3)",
	}}
	deps.Handshaker = hs
	deps.Browser = &fakeBrowser{replies: map[string][]byte{
		"10.0.0.20": protocol.EncodePayload("ServerName;DB20;InstanceName;MSSQLSERVER;tcp;1433;;;"),
		"10.0.0.21": protocol.EncodePayload("ServerName;DB21;InstanceName;MSSQLSERVER;tcp;1433;;;"),
	}}

	c := NewCoordinator(testOptions(), deps)
	ev, err := c.Run(context.Background(), "10.0.0.5", nil)
	require.NoError(t, err)
	require.True(t, ev.Succeeded, ev.Message)

	// Port stage already recorded 1433; the browser entry names the same endpoint
	node := findNode(t, ev.Nodes, "10.0.0.20")
	require.Len(t, node.Instances, 1)
	assert.Equal(t, sqlserver.DefaultInstanceName, node.Instances[0].InstanceName)
	assert.Equal(t, 1, hs.callsFor("10.0.0.20:1433"))

	// Only the browser saw it; it is still a default instance
	other := findNode(t, ev.Nodes, "10.0.0.21")
	require.Len(t, other.Instances, 1)
	inst := other.Instances[0]
	assert.Equal(t, "MSSQLSERVER", inst.InstanceName)
	assert.False(t, inst.IsNamedInstance)
	assert.True(t, inst.DiscoveredViaBrowserProtocol)
	assert.Equal(t, "10.0.0.21:1433", inst.Descriptor)
}

func TestRun_SweepProgressNeverExceedsTotal(t *testing.T) {
	up := make(map[string]time.Duration)
	for i := 1; i <= 255; i++ {
		up[fmt.Sprintf("10.0.0.%d", i)] = time.Millisecond
	}
	opts := testOptions()
	opts.ScanCommonSQLPorts = false
	opts.ScanForNamedInstances = false
	col := &collector{}
	c := NewCoordinator(opts, testDeps(&fakePinger{up: up}))

	ev, err := c.Run(context.Background(), "10.0.0.5", col.sink)
	require.NoError(t, err)
	require.True(t, ev.Succeeded)
	require.Len(t, ev.Nodes, 255)

	last := 0
	for _, e := range col.all() {
		if e.Type != EventProgress || e.Progress.Stage != StageSweep {
			continue
		}
		assert.Equal(t, 255, e.Progress.Total)
		assert.LessOrEqual(t, e.Progress.Current, e.Progress.Total)
		last = e.Progress.Current
	}
	assert.Equal(t, 255, last, "local node plus 254 answering hosts")
}

func TestCancel_SkipsReverseLookupForInFlightPings(t *testing.T) {
	p := &fakePinger{up: map[string]time.Duration{"10.0.0.20": time.Millisecond}}
	resolver := &fakeResolver{names: map[string]string{"10.0.0.20": "db20.lan"}}
	deps := testDeps(p)
	deps.Resolver = resolver
	c := NewCoordinator(testOptions(), deps)
	p.onPing = func(addr string) {
		if addr == "10.0.0.20" {
			c.Cancel()
		}
	}

	ev, err := c.Run(context.Background(), "10.0.0.5", nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, ev.Outcome)

	node := findNode(t, ev.Nodes, "10.0.0.20")
	assert.Equal(t, "10.0.0.20", node.Hostname, "name falls back to the address")
	assert.NotContains(t, resolver.lookups(), "10.0.0.20")
}
