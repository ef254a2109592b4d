// Package server exposes discovery over HTTP and streams run events over
// WebSocket.
//
// # Endpoints
//
//	GET    /api/interfaces            local IPv4 addresses usable as scan anchors
//	GET    /api/discovery             current state, run ID and last completion
//	POST   /api/discovery?address=IP  start a run (202), 409 while one is running
//	DELETE /api/discovery             request cancellation (202)
//	GET    /ws                        WebSocket event stream
//
// Every discovery.Event of a run started through the API is broadcast as a
// JSON text message to all WebSocket clients. Clients that cannot keep up
// are disconnected instead of stalling the run.
//
// # Usage Example
//
//	coord := discovery.NewCoordinator(opts, discovery.Dependencies{})
//	srv, err := server.New(&server.Config{Host: "127.0.0.1", Port: 8080}, coord)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Start blocks until SIGINT/SIGTERM or a listener error
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Keepalive
//
// The server pings each client every 54s and drops it if no pong arrives
// within 60s. Every write carries a 10s deadline.
//
// # Graceful Shutdown
//
// On SIGINT or SIGTERM the server cancels any active run, stops accepting
// requests, closes WebSocket clients and waits for in-flight work.
package server
