// Package inspect serves a read-only HTTP view of a parameter set and the
// training metrics.
package inspect

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"spikeprop/internal/model"
	"spikeprop/internal/training"
)

type parametersResponse struct {
	Names      model.LayerNames `json:"names"`
	Parameters model.Parameters `json:"parameters"`
}

// Server holds the parameter set it exposes. Update may be called while
// requests are being served.
type Server struct {
	mu      sync.RWMutex
	set     model.ParameterSet
	metrics *training.Collector
	logger  *zap.Logger
}

func NewServer(set model.ParameterSet, metrics *training.Collector, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		set:     set,
		metrics: metrics,
		logger:  logger,
	}
}

func (s *Server) Update(set model.ParameterSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = set
}

func (s *Server) snapshot() model.ParameterSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set
}

// Routes builds the router. /metrics is only mounted when a collector was
// given.
func (s *Server) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(s.logger))

	router.Get("/health", s.health)
	router.Get("/size", s.size)
	router.Get("/parameters", s.parameters)
	if s.metrics != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}
	return router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// size answers [input, hidden, output].
func (s *Server) size(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.snapshot().Topology.Sizes())
}

func (s *Server) parameters(w http.ResponseWriter, r *http.Request) {
	set := s.snapshot()
	s.respondJSON(w, http.StatusOK, parametersResponse{
		Names:      set.Names,
		Parameters: set.Parameters,
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}
