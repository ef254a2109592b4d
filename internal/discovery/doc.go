// Package discovery finds SQL Server instances on the local /24 subnet.
//
// A run is a pipeline of bounded-concurrency stages:
//  1. Sweep: ICMP ping every address of the subnet (MaxConcurrentPings workers)
//  2. Ports: TCP connect to candidate ports on every reachable host
//     (MaxConcurrentSQLChecks workers); each open port gets a login handshake
//  3. Browser: query UDP 1434 on every reachable host and handshake each
//     advertised named instance
//  4. Enrich: replace bare-address host names with names seen over mDNS
//
// The scanning host is inserted first, without a probe, so it is present in
// every result, including cancelled ones.
//
// # Usage Example
//
//	coord := discovery.NewCoordinator(discovery.DefaultOptions(), discovery.Dependencies{})
//	events, ok := coord.Start(ctx, "")
//	if !ok {
//	    return discovery.ErrAlreadyRunning
//	}
//	for ev := range events {
//	    switch ev.Type {
//	    case discovery.EventProgress:
//	        fmt.Println(ev.Progress.Message)
//	    case discovery.EventCompletion:
//	        fmt.Println(ev.Completion.Message)
//	    }
//	}
//
// The channel must be drained until it closes; workers block on a full
// channel.
//
// # Lifecycle
//
// Idle → Running → Completed | Cancelled | Failed → Idle. Start while Running
// returns false. Cancel stops new work at once; probes already in flight run
// to their own timeouts, so a cancelled run finishes within about one
// timeout. Panics anywhere in the pipeline become a Failed completion.
//
// # Classification
//
// A successful login marks an instance accessible. Login rejections and
// unavailable databases still prove a server is present and are recorded
// as inaccessible. Any other handshake failure records nothing.
//
// # Thread Safety
//
// Coordinator methods are safe for concurrent use. A Sink passed to Run is
// never called concurrently within one run.
package discovery
