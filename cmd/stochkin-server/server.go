package main

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/daniacca/stochkin/internal/kinetics"
	"github.com/daniacca/stochkin/internal/observability"
)

// Server represents the HTTP server for stochkin
type Server struct {
	manager       *kinetics.Manager
	notifications *kinetics.NotificationManager
	metrics       *observability.Collector
	logger        *zap.SugaredLogger

	// ensembleWorkers bounds replicate concurrency of synchronous ensembles.
	ensembleWorkers int
}

// NewServer wires a server around a run manager. The manager's notification
// manager, if any, backs the /notifiers endpoints.
func NewServer(manager *kinetics.Manager, metrics *observability.Collector, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Server{
		manager:       manager,
		notifications: manager.Notifications(),
		metrics:       metrics,
		logger:        logger,
	}
}

// SetEnsembleWorkers sets how many ensemble replicates run at once.
func (s *Server) SetEnsembleWorkers(n int) {
	s.ensembleWorkers = n
}

// Handler returns the routed and instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern, route string, h http.HandlerFunc) {
		mux.Handle(pattern, s.metrics.InstrumentHandler(route, h))
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	handle("GET /models", "/models", s.handleListModels)
	handle("POST /models/{id}", "/models/{id}", s.handlePutModel)
	handle("PUT /models/{id}", "/models/{id}", s.handlePutModel)
	handle("GET /models/{id}", "/models/{id}", s.handleGetModel)
	handle("DELETE /models/{id}", "/models/{id}", s.handleDeleteModel)
	handle("POST /models/{id}/runs", "/models/{id}/runs", s.handleStartRun)
	handle("POST /models/{id}/ensembles", "/models/{id}/ensembles", s.handleEnsemble)

	handle("GET /runs", "/runs", s.handleListRuns)
	handle("GET /runs/{id}", "/runs/{id}", s.handleGetRun)
	handle("DELETE /runs/{id}", "/runs/{id}", s.handleDeleteRun)
	handle("GET /runs/{id}/trajectory", "/runs/{id}/trajectory", s.handleTrajectory)
	handle("POST /runs/{id}/cancel", "/runs/{id}/cancel", s.handleCancelRun)

	handle("GET /notifiers", "/notifiers", s.handleListNotifiers)
	handle("POST /notifiers", "/notifiers", s.handleRegisterNotifier)
	handle("DELETE /notifiers/{id}", "/notifiers/{id}", s.handleUnregisterNotifier)
	handle("GET /ws/{id}", "/ws/{id}", s.handleWebSocket)

	return mux
}
