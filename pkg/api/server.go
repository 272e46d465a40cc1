// Package api exposes a procedure.Session over HTTP and provides the
// matching client, so a benchmark binding can drive a remote rowbench server
// exactly as it drives an in-process one.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ssargent/rowbench/pkg/procedure"
)

const shutdownTimeout = 10 * time.Second

// Server handles procedure calls against a session
type Server struct {
	session procedure.Session
	config  ServerConfig
	metrics *Metrics
	logger  *zap.Logger
	started time.Time
}

// NewServer creates a new API server
func NewServer(session procedure.Session, config ServerConfig, metrics *Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	return &Server{
		session: session,
		config:  config,
		metrics: metrics,
		logger:  logger,
		started: time.Now(),
	}
}

// Routes builds the router. gatherer backs /metrics.
func (s *Server) Routes(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{HeaderRequestID},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// unprotected for scraping
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apiKeyMiddleware(s.config.APIKey))

		r.Get("/health", s.metrics.InstrumentHandler("GET", "/api/v1/health", s.handleHealth))

		r.Post("/procedures/{name}",
			s.metrics.InstrumentHandler("POST", "/api/v1/procedures/{name}", s.handleCall))
		r.Post("/procedures/{name}/all-partitions",
			s.metrics.InstrumentHandler("POST", "/api/v1/procedures/{name}/all-partitions", s.handleCallAllPartitions))
	})

	return r
}

// StartServer serves session on config.Port until ctx is cancelled
func StartServer(ctx context.Context, session procedure.Session, config ServerConfig, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := NewMetrics(reg)

	server := NewServer(session, config, metrics, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           server.Routes(reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting rowbench server",
			zap.String("addr", httpServer.Addr),
			zap.String("metrics", fmt.Sprintf("http://localhost:%d/metrics", config.Port)))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down rowbench server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		return nil
	}
}
