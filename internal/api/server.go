// Package api serves the rcloud HTTP API.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	v1 "github.com/jbweber/rcloud/api/v1"
	"github.com/jbweber/rcloud/internal/config"
	"github.com/jbweber/rcloud/internal/metrics"
	"github.com/jbweber/rcloud/internal/vm"
)

// ShutdownTimeout bounds how long in-flight requests may run after shutdown
// starts.
const ShutdownTimeout = 30 * time.Second

// VMManager is the VM lifecycle surface the handlers call. It is satisfied
// by *vm.Manager.
type VMManager interface {
	Create(ctx context.Context, spec vm.Spec) (string, error)
	List(ctx context.Context) ([]vm.Info, error)
	Get(ctx context.Context, idOrName string) (vm.Info, error)
	Start(ctx context.Context, idOrName string) error
	Stop(ctx context.Context, idOrName string) error
	Destroy(ctx context.Context, idOrName string) error
	ListBaseImages() ([]string, error)
}

// Server routes HTTP requests to a VMManager.
type Server struct {
	mgr     VMManager
	cfg     *config.Config
	version string

	metrics *metrics.Metrics
	log     logr.Logger

	router *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger. The default discards.
func WithLogger(log logr.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithMetrics records request metrics and serves them on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a Server. version is reported by /health and /status.
func NewServer(mgr VMManager, cfg *config.Config, version string, opts ...Option) *Server {
	s := &Server{
		mgr:     mgr,
		cfg:     cfg,
		version: version,
		log:     logr.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusNotFound, "no route for "+req.Method+" "+req.URL.Path)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method "+req.Method+" not allowed on "+req.URL.Path)
	})

	// Routes sit on the root router with full paths so that a method
	// mismatch reaches MethodNotAllowedHandler instead of NotFoundHandler.
	p := v1.BasePath
	r.HandleFunc(p+"/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc(p+"/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc(p+"/vms", s.handleCreateVM).Methods(http.MethodPost)
	r.HandleFunc(p+"/vms", s.handleListVMs).Methods(http.MethodGet)
	r.HandleFunc(p+"/vms/{id}", s.handleGetVM).Methods(http.MethodGet)
	r.HandleFunc(p+"/vms/{id}", s.handleDestroyVM).Methods(http.MethodDelete)
	r.HandleFunc(p+"/vms/{id}/start", s.handleStartVM).Methods(http.MethodPost)
	r.HandleFunc(p+"/vms/{id}/stop", s.handleStopVM).Methods(http.MethodPost)
	r.HandleFunc(p+"/images", s.handleListImages).Methods(http.MethodGet)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	r.Use(s.instrument)
	return r
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully,
// giving in-flight requests up to ShutdownTimeout to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("API server listening", "addr", ln.Addr().String(), "version", s.version)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down API server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down API server: %w", err)
		}
		s.log.Info("API server stopped")
		return nil
	})
	return g.Wait()
}
