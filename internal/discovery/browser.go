package discovery

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/muurk/dbscout/internal/logging"
	"github.com/muurk/dbscout/internal/protocol"
)

// discoverNamed queries every node's browser service concurrently. One
// node's failure never affects the others.
func (r *run) discoverNamed(ctx context.Context, nodes []Node) {
	if len(nodes) == 0 {
		return
	}

	logging.LogStage(r.id, string(StageBrowser), "start")
	total := len(nodes)
	queried := 0 // guarded by r.emitMu

	var g errgroup.Group
	for _, node := range nodes {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			r.safely(func() {
				found := r.queryBrowser(ctx, node)
				r.progress(func() *ProgressEvent {
					queried++
					return &ProgressEvent{
						Stage:   StageBrowser,
						Current: queried,
						Total:   total,
						Message: fmt.Sprintf("Queried %s: %d named instance(s)", node.Address, found),
						Found:   found,
					}
				})
			})
			return nil
		})
	}
	_ = g.Wait()
	logging.LogStage(r.id, string(StageBrowser), "done")
}

// queryBrowser returns how many new instances the node's reply produced.
func (r *run) queryBrowser(ctx context.Context, node Node) int {
	resp, err := r.deps.Browser.Query(context.WithoutCancel(ctx), node.Address)
	logging.LogProbe("browser", node.Address, protocol.BrowserPort, err == nil, err)
	if err != nil {
		return 0
	}

	found := 0
	for _, rec := range resp.Records {
		if ctx.Err() != nil {
			break
		}
		if _, added := r.resolveNamed(ctx, node, rec); added {
			found++
		}
	}
	return found
}
