package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/muurk/dbscout/internal/logging"
)

// probePorts checks every (node, port) pair through one shared pool and hands
// open ports straight to resolveDefault from the same worker.
func (r *run) probePorts(ctx context.Context, nodes []Node) {
	ports := r.opts.Ports()
	total := len(nodes) * len(ports)
	if total == 0 {
		return
	}

	logging.LogStage(r.id, string(StagePorts), "start")
	sem := semaphore.NewWeighted(int64(r.opts.MaxConcurrentSQLChecks))
	var (
		wg       sync.WaitGroup
		finished int // guarded by r.emitMu
	)

enqueue:
	for _, node := range nodes {
		for _, port := range ports {
			if ctx.Err() != nil {
				break enqueue
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				break enqueue
			}
			r.spawn(&wg, func() {
				defer sem.Release(1)
				msg := fmt.Sprintf("Checked %s:%d", node.Address, port)
				found := 0
				if r.portOpen(ctx, node.Address, port) {
					if inst, added := r.resolveDefault(ctx, node, port); added {
						msg = fmt.Sprintf("Found SQL Server at %s", inst.Descriptor)
						found = 1
					}
				}
				r.progress(func() *ProgressEvent {
					finished++
					return &ProgressEvent{
						Stage:   StagePorts,
						Current: finished,
						Total:   total,
						Message: msg,
						Found:   found,
					}
				})
			})
		}
	}
	wg.Wait()
	logging.LogStage(r.id, string(StagePorts), "done")
}

// portOpen reports whether a TCP connect succeeds within Timeout.
func (r *run) portOpen(ctx context.Context, addr string, port int) bool {
	dialCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.Timeout)
	defer cancel()

	conn, err := r.deps.Dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
	if err != nil {
		logging.LogProbe("tcp", addr, port, false, err)
		return false
	}
	_ = conn.Close()
	logging.LogProbe("tcp", addr, port, true, nil)
	return true
}
