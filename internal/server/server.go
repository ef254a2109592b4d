package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/dbscout/internal/discovery"
	"github.com/muurk/dbscout/internal/logging"
	"github.com/muurk/dbscout/internal/netif"
)

// shutdownTimeout bounds a graceful shutdown
const shutdownTimeout = 10 * time.Second

// Config holds the server configuration
type Config struct {
	Host     string
	Port     int
	LogLevel string
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Discoverer runs discovery on behalf of HTTP clients.
// *discovery.Coordinator satisfies it.
type Discoverer interface {
	Start(ctx context.Context, address string) (<-chan discovery.Event, bool)
	Cancel()
	State() discovery.State
	RunID() string
	Last() *discovery.CompletionEvent
}

// Server exposes discovery over HTTP and streams run events over WebSocket
type Server struct {
	config     *Config
	discoverer Discoverer
	interfaces func() []netif.Address
	hub        *Hub
	httpServer *http.Server
	listener   net.Listener

	// Runs outlive the request that started them
	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a new Server instance
func New(config *Config, d Discoverer) (*Server, error) {
	if d == nil {
		return nil, errors.New("server requires a discoverer")
	}
	if err := logging.Initialize(config.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:     config,
		discoverer: d,
		interfaces: netif.ListLocalAddresses,
		hub:        NewHub(),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
	s.httpServer = &http.Server{
		Addr:              config.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Hub returns the WebSocket broadcast hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start starts the server and blocks until shutdown
func (s *Server) Start() error {
	addr := s.config.Addr()
	logging.Info("Starting dbscout server",
		zap.String("addr", addr),
		zap.String("log_level", s.config.LogLevel),
	)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.listener = listener

	logging.Info("Server listening for connections", zap.String("addr", listener.Addr().String()))

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.httpServer.Serve(listener)
	}()

	select {
	case <-sigChan:
		logging.Info("Shutdown signal received, stopping server...")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(ctx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	}
}

// startRun begins a discovery and forwards its events to the hub
func (s *Server) startRun(address string) (string, bool) {
	events, ok := s.discoverer.Start(s.baseCtx, address)
	if !ok {
		return "", false
	}
	runID := s.discoverer.RunID()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for ev := range events {
			s.hub.Broadcast(ev)
		}
		logging.Debug("Run event stream closed", zap.String("run_id", runID))
	}()
	return runID, true
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")

	// Cancel any active run so its event forwarder finishes
	s.discoverer.Cancel()
	s.baseCancel()

	var err error
	if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
		logging.Error("Error shutting down HTTP server", zap.Error(shutdownErr))
		err = shutdownErr
	}
	s.hub.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All connections closed gracefully")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
	}

	logging.Sync()
	return err
}

// GetActiveConnections returns the number of connected WebSocket clients
func (s *Server) GetActiveConnections() int {
	return s.hub.Count()
}
