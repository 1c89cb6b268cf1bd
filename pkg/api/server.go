package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/embedtools/rtospy/pkg/rtos"
)

// Refresher is what the server needs from the snapshot orchestrator plus
// its run-state control: halt, refresh, resume, read.
type Refresher interface {
	Refresh() error
	Snapshot() *rtos.Snapshot
	DetectionState() (rtos.DetectionState, string)
}

// Server exposes the last published snapshot over HTTP as JSON.
type Server struct {
	port int
	ref  Refresher
	log  *zap.Logger

	// Refresh drives one halt/collect/resume cycle through a
	// non-reentrant orchestrator and a single debug connection, so
	// concurrent requests take turns.
	refreshMu sync.Mutex
}

func NewServer(port int, ref Refresher, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{port: port, ref: ref, log: log}
}

func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.HandleFunc("/status", s.handleStatus)
	s.log.Info("http api listening", zap.Int("port", s.port))
	return http.ListenAndServe(fmt.Sprintf(":%d", s.port), mux)
}

// handleSnapshot triggers a collection pass and returns the resulting
// snapshot. With refresh=0 the last published snapshot is returned
// without touching the target.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") != "0" {
		s.refreshMu.Lock()
		err := s.ref.Refresh()
		s.refreshMu.Unlock()
		if err != nil {
			http.Error(w, fmt.Sprintf("refresh failed: %v", err), http.StatusBadGateway)
			return
		}
	}
	snap := s.ref.Snapshot()
	if snap == nil {
		http.Error(w, "no snapshot published yet", http.StatusNotFound)
		return
	}
	writeJSON(w, snap)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state, reason := s.ref.DetectionState()
	writeJSON(w, map[string]string{
		"detection": state.String(),
		"reason":    reason,
	})
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, fmt.Sprintf("failed to encode response: %v", err), http.StatusInternalServerError)
	}
}
