package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/muurk/dbscout/internal/logging"
)

const reverseLookupTimeout = 2 * time.Second

// sweepTargets returns every address .1-.255 in base's /24 except base.
func sweepTargets(base net.IP) []string {
	v4 := base.To4()
	targets := make([]string, 0, 254)
	for i := 1; i <= 255; i++ {
		if byte(i) == v4[3] {
			continue
		}
		targets = append(targets, net.IPv4(v4[0], v4[1], v4[2], byte(i)).String())
	}
	return targets
}

// insertLocal adds the scanning host without probing it.
func (r *run) insertLocal(base net.IP, total int) {
	addr := base.String()
	hostname := addr
	if name, err := r.deps.LocalHostname(); err == nil && name != "" {
		hostname = name
	}
	node := Node{
		Address:        addr,
		Hostname:       hostname,
		Responding:     true,
		IsLocalMachine: true,
		DiscoveredAt:   time.Now(),
	}
	r.progress(func() *ProgressEvent {
		count, added := r.set.add(node)
		if !added {
			return nil
		}
		return &ProgressEvent{
			Stage:   StageSweep,
			Current: count,
			Total:   total,
			Message: fmt.Sprintf("Local machine %s", node.String()),
			Node:    &node,
		}
	})
}

// sweep pings the /24 around base. It returns once every started probe has
// finished; cancellation only stops new probes from starting.
func (r *run) sweep(ctx context.Context, base net.IP) {
	targets := sweepTargets(base)
	// The local node counts toward Current, so it counts toward Total too
	total := len(targets) + 1
	r.insertLocal(base, total)

	logging.LogStage(r.id, string(StageSweep), "start")
	sem := semaphore.NewWeighted(int64(r.opts.MaxConcurrentPings))
	var wg sync.WaitGroup
	for _, addr := range targets {
		if ctx.Err() != nil {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		r.spawn(&wg, func() {
			defer sem.Release(1)
			r.pingHost(ctx, addr, total)
		})
	}
	wg.Wait()
	logging.LogStage(r.id, string(StageSweep), "done")
}

func (r *run) pingHost(ctx context.Context, addr string, total int) {
	opCtx := context.WithoutCancel(ctx)
	rtt, ok, err := r.deps.Pinger.Ping(opCtx, addr, r.opts.Timeout)
	logging.LogProbe("ping", addr, 0, ok, err)
	if !ok {
		return
	}

	// Reverse DNS outlives the ping timeout; skip it once cancelled
	hostname := addr
	if ctx.Err() == nil {
		hostname = r.reverseLookup(opCtx, addr)
	}

	node := Node{
		Address:        addr,
		Hostname:       hostname,
		Responding:     true,
		ResponseTimeMs: rtt.Milliseconds(),
		DiscoveredAt:   time.Now(),
	}
	r.progress(func() *ProgressEvent {
		count, added := r.set.add(node)
		if !added {
			return nil
		}
		return &ProgressEvent{
			Stage:   StageSweep,
			Current: count,
			Total:   total,
			Message: fmt.Sprintf("Found %s", node.String()),
			Node:    &node,
		}
	})
}

// reverseLookup returns the first PTR name for addr, or addr itself.
func (r *run) reverseLookup(ctx context.Context, addr string) string {
	if !r.opts.ResolveHostnames {
		return addr
	}
	ctx, cancel := context.WithTimeout(ctx, reverseLookupTimeout)
	defer cancel()
	names, err := r.deps.Resolver.LookupAddr(ctx, addr)
	if err != nil || len(names) == 0 {
		return addr
	}
	name := strings.TrimSuffix(names[0], ".")
	if name == "" {
		return addr
	}
	return name
}
