package discovery

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/dbscout/internal/logging"
)

// run holds the state of one discovery run
type run struct {
	id     string
	opts   Options
	deps   Dependencies
	set    *nodeSet
	sink   Sink
	cancel context.CancelFunc
	start  time.Time

	// emitMu serializes sink calls and the counters they report
	emitMu sync.Mutex
	closed bool

	failMu  sync.Mutex
	failErr error

	mdnsWG    sync.WaitGroup
	mdnsNames map[string]string
}

// progress calls next under emitMu and emits its result when non-nil.
// Nothing is emitted once the completion has been sent.
func (r *run) progress(next func() *ProgressEvent) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	if r.closed {
		return
	}
	if p := next(); p != nil {
		r.sink(Event{
			Type:     EventProgress,
			RunID:    r.id,
			Time:     time.Now(),
			Progress: p,
		})
	}
}

func (r *run) complete(ev CompletionEvent) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.sink(Event{
		Type:       EventCompletion,
		RunID:      r.id,
		Time:       time.Now(),
		Completion: &ev,
	})
}

// fail records the first failure and stops new work.
func (r *run) fail(err error) {
	r.failMu.Lock()
	if r.failErr == nil {
		r.failErr = err
	}
	r.failMu.Unlock()
	r.cancel()
}

func (r *run) failure() error {
	r.failMu.Lock()
	defer r.failMu.Unlock()
	return r.failErr
}

// checkpoint reports whether the pipeline must stop and with which outcome.
func (r *run) checkpoint(ctx context.Context) (Outcome, bool) {
	if r.failure() != nil {
		return OutcomeFailed, true
	}
	if ctx.Err() != nil {
		return OutcomeCancelled, true
	}
	return "", false
}

// safely runs fn, turning a panic into a run failure.
func (r *run) safely(fn func()) {
	defer func() {
		if v := recover(); v != nil {
			logging.Error("Discovery worker panicked",
				zap.String("run_id", r.id),
				zap.Any("panic", v),
			)
			r.fail(&PanicError{Value: v, Stack: debug.Stack()})
		}
	}()
	fn()
}

// spawn runs fn on a new goroutine tracked by wg.
func (r *run) spawn(wg *sync.WaitGroup, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.safely(fn)
	}()
}

// startHostnames collects mDNS names alongside the sweep.
func (r *run) startHostnames(ctx context.Context) {
	if !r.opts.ResolveMDNSNames || r.deps.Hostnames == nil {
		return
	}
	r.spawn(&r.mdnsWG, func() {
		names, err := r.deps.Hostnames.Collect(ctx, r.opts.MDNSWindow)
		if err != nil {
			logging.Warn("mDNS name collection failed",
				zap.String("run_id", r.id),
				zap.Error(err),
			)
		}
		r.mdnsNames = names
	})
}

func (r *run) waitHostnames() {
	r.mdnsWG.Wait()
}

// applyHostnames replaces bare-address hostnames with collected mDNS names.
func (r *run) applyHostnames() {
	r.waitHostnames()
	if len(r.mdnsNames) == 0 {
		return
	}
	changed := r.set.applyHostnames(r.mdnsNames)
	r.progress(func() *ProgressEvent {
		return &ProgressEvent{
			Stage:   StageEnrich,
			Current: 1,
			Total:   1,
			Message: fmt.Sprintf("Applied %d mDNS host name(s)", changed),
		}
	})
}
