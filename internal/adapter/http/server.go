package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/climate-region-stats/internal/pipeline"
	"github.com/couchcryptid/climate-region-stats/internal/store"
)

// RunReporter exposes the outcome of the most recent run.
type RunReporter interface {
	LatestRun() (pipeline.Report, bool)
	LatestManifest(variable string) (*store.Manifest, bool)
}

// Server exposes health, readiness, metrics, and run diagnostics endpoints.
type Server struct {
	httpServer *http.Server
	runs       RunReporter
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /api/v1/runs routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, runs RunReporter, logger *slog.Logger) *Server {
	router := mux.NewRouter()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		runs:   runs,
		logger: logger,
	}

	router.HandleFunc("/healthz", sharedobs.LivenessHandler()).Methods(http.MethodGet)
	router.HandleFunc("/readyz", sharedobs.ReadinessHandler(ready)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/api/v1/runs/latest", s.handleLatestRun).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/runs/latest/manifest/{variable}", s.handleManifest).Methods(http.MethodGet)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleLatestRun(w http.ResponseWriter, _ *http.Request) {
	report, ok := s.runs.LatestRun()
	if !ok {
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "no run has finished yet"})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, report)
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	variable := mux.Vars(r)["variable"]
	m, ok := s.runs.LatestManifest(variable)
	if !ok {
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "no manifest for variable " + variable})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, m)
}
