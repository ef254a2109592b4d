package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/muurk/dbscout/internal/logging"
	"github.com/muurk/dbscout/internal/netif"
)

// eventBuffer is the channel capacity returned by Start
const eventBuffer = 256

// State is the coordinator lifecycle state
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

// String returns a human-readable name for the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func outcomeState(o Outcome) State {
	switch o {
	case OutcomeCompleted:
		return StateCompleted
	case OutcomeCancelled:
		return StateCancelled
	default:
		return StateFailed
	}
}

// Coordinator runs at most one discovery at a time
type Coordinator struct {
	opts Options
	deps Dependencies

	mu     sync.Mutex
	state  State
	runID  string
	cancel context.CancelFunc
	last   *CompletionEvent
}

// NewCoordinator creates a coordinator. Zero-value Dependencies select the
// real network implementations.
func NewCoordinator(opts Options, deps Dependencies) *Coordinator {
	return &Coordinator{
		opts: opts,
		deps: deps,
	}
}

// Options returns the options used for the next run
func (c *Coordinator) Options() Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// SetOptions replaces the options. It fails while a run is in progress.
func (c *Coordinator) SetOptions(opts Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateRunning {
		return ErrAlreadyRunning
	}
	c.opts = opts
	return nil
}

// State returns the current lifecycle state
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RunID returns the ID of the current or most recent run
func (c *Coordinator) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID
}

// Last returns the completion of the most recent finished run, or nil
func (c *Coordinator) Last() *CompletionEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	last := *c.last
	return &last
}

// Start begins a run in the background. The returned channel carries
// progress events followed by exactly one completion, then closes. A call
// while a run is in progress is a no-op returning (nil, false).
func (c *Coordinator) Start(ctx context.Context, address string) (<-chan Event, bool) {
	ch := make(chan Event, eventBuffer)
	r, runCtx, ok := c.begin(ctx, func(e Event) { ch <- e })
	if !ok {
		logging.Debug("Discovery start ignored, already running")
		return nil, false
	}

	go func() {
		defer close(ch)
		c.execute(runCtx, r, address)
	}()
	return ch, true
}

// Run performs a discovery synchronously, delivering events to sink.
func (c *Coordinator) Run(ctx context.Context, address string, sink Sink) (CompletionEvent, error) {
	if sink == nil {
		sink = func(Event) {}
	}
	r, runCtx, ok := c.begin(ctx, sink)
	if !ok {
		return CompletionEvent{}, ErrAlreadyRunning
	}
	return c.execute(runCtx, r, address), nil
}

// Cancel requests cooperative cancellation of the current run. New work
// stops immediately; in-flight probes finish on their own timeouts.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning || c.cancel == nil {
		return
	}
	logging.Info("Discovery cancellation requested", zap.String("run_id", c.runID))
	c.cancel()
}

func (c *Coordinator) begin(parent context.Context, sink Sink) (*run, context.Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateRunning {
		return nil, nil, false
	}

	ctx, cancel := context.WithCancel(parent)
	opts := c.opts
	r := &run{
		id:     uuid.NewString(),
		opts:   opts,
		deps:   c.deps.withDefaults(opts),
		set:    newNodeSet(),
		sink:   sink,
		cancel: cancel,
		start:  time.Now(),
	}
	c.state = StateRunning
	c.runID = r.id
	c.cancel = cancel
	logging.LogStage(r.id, "run", "start")
	return r, ctx, true
}

// end records the outcome and returns to Idle before the completion event
// is delivered, so a consumer reacting to it can start a new run.
func (c *Coordinator) end(r *run, ev CompletionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = outcomeState(ev.Outcome)
	logging.LogStage(r.id, "run", c.state.String(),
		zap.Int("nodes", len(ev.Nodes)),
		zap.Int("instances", ev.InstanceCount()),
		zap.Duration("duration", ev.Duration),
	)
	last := ev
	c.last = &last
	c.cancel = nil
	c.state = StateIdle
	r.cancel()
}

func (c *Coordinator) execute(ctx context.Context, r *run, address string) (result CompletionEvent) {
	defer func() {
		if v := recover(); v != nil {
			err := &PanicError{Value: v, Stack: debug.Stack()}
			logging.Error("Discovery pipeline panicked",
				zap.String("run_id", r.id),
				zap.Any("panic", v),
				zap.ByteString("stack", err.Stack),
			)
			r.fail(err)
			result = c.finish(r, OutcomeFailed)
		}
	}()

	if err := r.opts.Validate(); err != nil {
		r.fail(fmt.Errorf("invalid options: %w", err))
		return c.finish(r, OutcomeFailed)
	}

	base, err := resolveAddress(address, r.deps.Interfaces)
	if err != nil {
		r.fail(err)
		return c.finish(r, OutcomeFailed)
	}
	logging.Info("Discovery started",
		zap.String("run_id", r.id),
		zap.String("address", base.String()),
	)

	r.startHostnames(ctx)

	r.sweep(ctx, base)
	if outcome, stop := r.checkpoint(ctx); stop {
		return c.finish(r, outcome)
	}

	nodes := r.set.snapshot()
	r.probePorts(ctx, nodes)
	if outcome, stop := r.checkpoint(ctx); stop {
		return c.finish(r, outcome)
	}

	if r.opts.ScanForNamedInstances {
		r.discoverNamed(ctx, nodes)
		if outcome, stop := r.checkpoint(ctx); stop {
			return c.finish(r, outcome)
		}
	}

	r.applyHostnames()
	return c.finish(r, OutcomeCompleted)
}

// finish builds and emits the single completion event of r.
func (c *Coordinator) finish(r *run, outcome Outcome) CompletionEvent {
	r.waitHostnames()

	nodes := r.set.sorted()
	ev := CompletionEvent{
		Nodes:     nodes,
		Succeeded: outcome == OutcomeCompleted,
		Outcome:   outcome,
		Duration:  time.Since(r.start),
	}
	switch outcome {
	case OutcomeCompleted:
		ev.Message = completedMessage(nodes)
	case OutcomeCancelled:
		ev.Err = ErrCancelled
		ev.Message = fmt.Sprintf("Discovery cancelled: %d host(s) found before cancellation", len(nodes))
	default:
		ev.Err = r.failure()
		if ev.Err == nil {
			ev.Err = errors.New("unknown failure")
		}
		ev.Message = fmt.Sprintf("Discovery failed: %v", ev.Err)
	}
	if ev.Err != nil {
		ev.Error = ev.Err.Error()
	}

	c.end(r, ev)
	r.complete(ev)
	return ev
}

func resolveAddress(address string, interfaces func() []netif.Address) (net.IP, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		address = netif.Preferred(interfaces())
		if address == "" {
			return nil, &AddressResolutionError{Reason: "no active IPv4 interface found"}
		}
	}
	ip := net.ParseIP(address).To4()
	if ip == nil {
		return nil, &AddressResolutionError{Address: address, Reason: "not an IPv4 address"}
	}
	if ip.IsLoopback() || ip.IsUnspecified() || ip.IsMulticast() {
		return nil, &AddressResolutionError{Address: address, Reason: "not a usable unicast address"}
	}
	if ip[3] == 0 || ip[3] == 255 {
		return nil, &AddressResolutionError{Address: address, Reason: "network or broadcast address of its /24"}
	}
	return ip, nil
}
