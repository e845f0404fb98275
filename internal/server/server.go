// Package server serves the GraphQL API, health and metrics over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/NYTimes/gziphandler"
	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/tournevent/postershop/internal/graphql"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 30 * time.Second
	limiterCleanup  = time.Minute
	limiterTTL      = 3 * time.Minute
)

// Config holds server configuration.
type Config struct {
	Port           int
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server is the HTTP server for the storefront fulfillment API.
type Server struct {
	config   Config
	resolver *graphql.Resolver
	gatherer prometheus.Gatherer
	logger   *otelzap.Logger
	limiter  *RateLimiter
	handler  http.Handler
}

// New creates a new server instance. Metrics are served from gatherer.
func New(ctx context.Context, cfg Config, resolver *graphql.Resolver, gatherer prometheus.Gatherer, logger *otelzap.Logger) *Server {
	s := &Server{
		config:   cfg,
		resolver: resolver,
		gatherer: gatherer,
		logger:   logger,
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{DisableCompression: true})).Methods(http.MethodGet)
	router.HandleFunc("/graphql", s.handleGraphQL).Methods(http.MethodPost)
	router.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)

	var handler http.Handler = gziphandler.GzipHandler(router)
	if cfg.RateLimitRPS > 0 {
		s.limiter = NewRateLimiter(ctx, cfg.RateLimitRPS, max(cfg.RateLimitBurst, 1), limiterCleanup, limiterTTL)
		handler = s.limiter.Middleware()(handler)
	}
	s.handler = requestLogger(logger)(handler)
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.config.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		if s.limiter != nil {
			s.limiter.Shutdown()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusMethodNotAllowed, &graphql.Response{
		Errors: []graphql.GraphQLError{{Message: "Method not allowed, use POST"}},
	})
}

func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeJSON(w, http.StatusRequestEntityTooLarge, &graphql.Response{
			Errors: []graphql.GraphQLError{{Message: "Request body too large"}},
		})
		return
	}

	var req graphql.Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, &graphql.Response{
			Errors: []graphql.GraphQLError{{Message: "Invalid JSON: " + err.Error()}},
		})
		return
	}
	if req.Query == "" {
		s.writeJSON(w, http.StatusBadRequest, &graphql.Response{
			Errors: []graphql.GraphQLError{{Message: "query is required"}},
		})
		return
	}

	resp := s.resolver.Execute(r.Context(), req)
	status := http.StatusOK
	if resp.Data == nil && len(resp.Errors) > 0 {
		status = http.StatusBadRequest
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}
