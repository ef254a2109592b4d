package discovery

import (
	"context"
	"fmt"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// Pinger sends one reachability probe. A missing reply is (false, nil).
type Pinger interface {
	Ping(ctx context.Context, address string, timeout time.Duration) (time.Duration, bool, error)
}

// ICMPPinger pings with ICMP echo requests
type ICMPPinger struct {
	// Privileged selects raw sockets; required on Windows
	Privileged bool
}

// Ping implements Pinger
func (p *ICMPPinger) Ping(ctx context.Context, address string, timeout time.Duration) (time.Duration, bool, error) {
	pinger, err := probing.NewPinger(address)
	if err != nil {
		return 0, false, fmt.Errorf("create pinger for %s: %w", address, err)
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(p.Privileged)

	if err := pinger.RunWithContext(ctx); err != nil {
		return 0, false, fmt.Errorf("ping %s: %w", address, err)
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, false, nil
	}
	return stats.AvgRtt, true, nil
}
