// Package server exposes the RMSE and TCR calculators and the recording
// store over a REST API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chrissnell/ibimetrics/internal/batch"
	"github.com/chrissnell/ibimetrics/internal/log"
	"github.com/chrissnell/ibimetrics/internal/metrics"
	"github.com/chrissnell/ibimetrics/internal/store"
	"github.com/chrissnell/ibimetrics/pkg/config"
	"github.com/chrissnell/ibimetrics/pkg/responseformat"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RecordingStore is the subset of store.Store the API needs
type RecordingStore interface {
	batch.Source
	batch.Sink
	SaveRecording(ctx context.Context, rec store.Recording) error
	Evaluations(ctx context.Context, recording string) ([]store.Evaluation, error)
}

// Server is the REST API server
type Server struct {
	cfg       *config.ConfigData
	store     RecordingStore
	evaluator *batch.Evaluator
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	formatter *responseformat.Formatter
	logger    *zap.SugaredLogger
	http      http.Server
}

// New creates a Server. st may be nil, in which case the recording
// endpoints answer 503.
func New(cfg *config.ConfigData, st RecordingStore, logger *zap.SugaredLogger) *Server {
	logger = log.OrNop(logger)
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	s := &Server{
		cfg:       cfg,
		store:     st,
		evaluator: batch.NewEvaluator(cfg.RMSEParams(), cfg.TCRParams(), cfg.Batch.Workers, logger, m),
		registry:  registry,
		metrics:   m,
		formatter: responseformat.NewFormatter(),
		logger:    logger,
	}
	s.http.Addr = fmt.Sprintf("%v:%v", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	s.http.Handler = s.Handler()
	s.http.ReadHeaderTimeout = 10 * time.Second
	return s
}

// Handler returns the API router
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(log.HTTPMiddleware(s.logger))

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/rmse", s.handleRMSE).Methods(http.MethodPost)
	api.HandleFunc("/tcr", s.handleTCR).Methods(http.MethodPost)
	api.HandleFunc("/recordings", s.handleListRecordings).Methods(http.MethodGet)
	api.HandleFunc("/recordings/{name}", s.handleGetRecording).Methods(http.MethodGet)
	api.HandleFunc("/recordings/{name}", s.handlePutRecording).Methods(http.MethodPut)
	api.HandleFunc("/recordings/{name}/evaluate", s.handleEvaluate).Methods(http.MethodPost)
	api.HandleFunc("/recordings/{name}/evaluations", s.handleEvaluations).Methods(http.MethodGet)

	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	return router
}

// Start serves until ctx is cancelled. wg is released once the listener has stopped.
func (s *Server) Start(ctx context.Context, wg *sync.WaitGroup) {
	s.logger.Infof("Starting REST server on %s", s.http.Addr)
	wg.Add(1)

	go func() {
		defer wg.Done()
		if err := s.http.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Errorf("REST server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down the REST server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.http.Shutdown(shutdownCtx)
	}()
}
