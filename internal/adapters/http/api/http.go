// Package api exposes the operational HTTP surface: health, service
// statistics, and Prometheus metrics. The correlation data path never passes
// through HTTP; this is observability only.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/skysieve/mlatd/pkg/metrics"
)

// Server wires the HTTP routes.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
}

// NewServer creates the API server.
func NewServer(statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
	}
}

// Register attaches all routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("/stats", s.statsHandler.HandleStats)
	mux.Handle("/metrics", metrics.Handler())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
