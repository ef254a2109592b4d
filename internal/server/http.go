package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/muurk/dbscout/internal/discovery"
	"github.com/muurk/dbscout/internal/logging"
	"github.com/muurk/dbscout/internal/netif"
)

// RunStatus is the body returned by the discovery endpoints
type RunStatus struct {
	State discovery.State            `json:"state"`
	RunID string                     `json:"run_id,omitempty"`
	Last  *discovery.CompletionEvent `json:"last,omitempty"`
}

// errorBody is the JSON shape for error responses
type errorBody struct {
	Error string `json:"error"`
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/interfaces", s.handleInterfaces)
	mux.HandleFunc("GET /api/discovery", s.handleStatus)
	mux.HandleFunc("POST /api/discovery", s.handleStart)
	mux.HandleFunc("DELETE /api/discovery", s.handleCancel)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return logRequests(mux)
}

func (s *Server) handleInterfaces(w http.ResponseWriter, r *http.Request) {
	addrs := s.interfaces()
	if addrs == nil {
		addrs = []netif.Address{}
	}
	writeJSON(w, http.StatusOK, addrs)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	runID, ok := s.startRun(address)
	if !ok {
		writeError(w, http.StatusConflict, discovery.ErrAlreadyRunning)
		return
	}
	logging.Info("Discovery started over HTTP",
		zap.String("run_id", runID),
		zap.String("address", address),
		zap.String("remote_addr", r.RemoteAddr),
	)
	writeJSON(w, http.StatusAccepted, RunStatus{State: discovery.StateRunning, RunID: runID})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.discoverer.Cancel()
	writeJSON(w, http.StatusAccepted, s.status())
}

// status snapshots the discoverer
func (s *Server) status() RunStatus {
	return RunStatus{
		State: s.discoverer.State(),
		RunID: s.discoverer.RunID(),
		Last:  s.discoverer.Last(),
	}
}

// writeJSON writes v with the given status code
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("Failed to encode response", zap.Error(err))
	}
}

// writeError writes an error body
func writeError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// statusRecorder captures the response code for logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// logRequests logs every request at debug level
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// WebSocket upgrades need the raw writer for hijacking
		if r.URL.Path == "/ws" {
			logging.Debug("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
			)
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Int("status", rec.status),
		)
	})
}
