// Package server exposes the agent loop over HTTP: a blocking run endpoint,
// server-sent events, a WebSocket stream and run status lookups.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/auth"
	"github.com/haasonsaas/conductor/internal/observability"
	"github.com/haasonsaas/conductor/internal/policy"
	"github.com/haasonsaas/conductor/internal/ratelimit"
)

// APIPrefix is the mount point of every agent route.
const APIPrefix = "/api/v1"

// MaxMessageLength bounds the message field of a run request, in characters.
const MaxMessageLength = 10000

// Runtime is the part of the server that changes on a config reload.
type Runtime struct {
	Loop   *agent.Loop
	Limits agent.Limits

	// Restrained enables the abuse, rate and policy checks.
	Restrained bool
	Policy     *policy.Engine
}

// Options configures a Server.
type Options struct {
	Addr            string
	Version         string
	CORSOrigins     []string
	ShutdownTimeout time.Duration

	Runtime Runtime
	Auth    *auth.Service
	Limiter *ratelimit.Limiter
	Abuse   *ratelimit.AbuseChecker

	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer
	Tracer   *observability.Tracer
	Logger   *slog.Logger
}

// Server is the HTTP front end. Reload swaps the runtime without dropping
// connections; runs already in flight finish on the loop they started with.
type Server struct {
	opts    Options
	runtime atomic.Pointer[Runtime]
	runs    *runIndex
	logger  *slog.Logger

	httpServer *http.Server
	listener   net.Listener
}

// New creates a server. Nil collaborators disable their checks.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Auth == nil {
		opts.Auth = auth.NewService(auth.Config{})
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		opts:   opts,
		runs:   newRunIndex(maxTrackedRuns),
		logger: opts.Logger.With("component", "server"),
	}
	s.Reload(opts.Runtime)
	return s
}

// Reload installs a new runtime for subsequent requests.
func (s *Server) Reload(rt Runtime) {
	if rt.Policy == nil {
		rt.Policy = policy.NewEngine(nil)
	}
	s.runtime.Store(&rt)
}

func (s *Server) current() *Runtime {
	return s.runtime.Load()
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	protect := auth.Middleware(s.opts.Auth, s.opts.Logger)

	mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET "+APIPrefix+"/health", s.handleHealth)
	mux.Handle("POST "+APIPrefix+"/agent/run", protect(http.HandlerFunc(s.handleRun)))
	mux.Handle("POST "+APIPrefix+"/agent/run/stream", protect(http.HandlerFunc(s.handleStream)))
	mux.Handle("GET "+APIPrefix+"/agent/ws", protect(s.newWSHandler()))
	mux.Handle("GET "+APIPrefix+"/agent/status/{run_id}", protect(http.HandlerFunc(s.handleStatus)))

	var h http.Handler = mux
	h = s.instrument(h)
	h = cors(s.opts.CORSOrigins)(h)
	return h
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.httpServer = server
	s.listener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("starting http server", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.opts.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and waits for active ones to finish.
func (s *Server) Shutdown(ctx context.Context) {
	if s.httpServer == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http server shutdown error", "error", err)
	}
	s.httpServer = nil
}
