package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/weeklype/tenantrouter/pkg/logger"
)

type stopHook struct {
	name string
	fn   func(context.Context) error
}

type config struct {
	addr              string
	readTimeout       time.Duration
	readHeaderTimeout time.Duration
	writeTimeout      time.Duration
	idleTimeout       time.Duration
	shutdownTimeout   time.Duration
	logger            *slog.Logger
	startHooks        []StartHook
	stopHooks         []stopHook
}

func defaultConfig() *config {
	return &config{
		addr:              ":8080",
		readHeaderTimeout: 5 * time.Second,
		shutdownTimeout:   5 * time.Second,
	}
}

// Server wraps http.Server with graceful shutdown and logging.
type Server struct {
	cfg      *config
	mu       sync.Mutex
	srv      *http.Server
	once     sync.Once
	draining atomic.Bool
}

// New returns a configured Server.
func New(opts ...Option) *Server {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.Discard()
	}
	return &Server{cfg: cfg}
}

// Draining reports whether shutdown has begun.
func (s *Server) Draining() bool {
	return s.draining.Load()
}

// Ready is a readiness probe that fails once shutdown has begun.
func (s *Server) Ready(context.Context) error {
	if s.Draining() {
		return ErrDraining
	}
	return nil
}

// Run starts the HTTP server and blocks until ctx is cancelled, a
// termination signal arrives, or the listener fails.
// It returns ErrStart wrapped with the underlying error if the server fails to start.
func (s *Server) Run(ctx context.Context, handler http.Handler) error {
	if handler == nil {
		handler = http.NotFoundHandler()
	}

	s.mu.Lock()
	if s.srv != nil {
		s.mu.Unlock()
		return errors.Join(ErrStart, errors.New("server already running"))
	}
	cfg := s.cfg
	srv := &http.Server{
		Addr:              cfg.addr,
		Handler:           handler,
		ReadTimeout:       cfg.readTimeout,
		ReadHeaderTimeout: cfg.readHeaderTimeout,
		WriteTimeout:      cfg.writeTimeout,
		IdleTimeout:       cfg.idleTimeout,
		ErrorLog:          slog.NewLogLogger(cfg.logger.Handler(), slog.LevelError),
	}
	s.srv = srv
	s.mu.Unlock()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.addr)
	if err != nil {
		return errors.Join(ErrStart, err)
	}
	addr := ln.Addr().String()
	cfg.logger.InfoContext(ctx, "http server listening", slog.String("addr", addr))

	for _, h := range cfg.startHooks {
		h(ctx, addr)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	var runErr, shutdownErr error
	select {
	case <-sigCtx.Done():
		cfg.logger.InfoContext(ctx, "http server shutting down", slog.String("addr", addr))
		shutdownErr = s.Shutdown(context.WithoutCancel(ctx))
		runErr = <-errCh
	case runErr = <-errCh:
	}

	if runErr != nil && !errors.Is(runErr, http.ErrServerClosed) {
		return errors.Join(ErrStart, runErr)
	}
	return shutdownErr
}

// Shutdown drains in-flight requests, then runs the stop hooks. Only the
// first call does any work; later calls return nil.
// Any error from http.Server.Shutdown or a stop hook is wrapped with ErrShutdown.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	s.once.Do(func() {
		s.draining.Store(true)

		s.mu.Lock()
		srv := s.srv
		s.mu.Unlock()

		if srv != nil {
			drainCtx, cancel := context.WithTimeout(ctx, s.cfg.shutdownTimeout)
			if err := srv.Shutdown(drainCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs = append(errs, err)
			}
			cancel()
		}

		hookCtx, cancel := context.WithTimeout(ctx, s.cfg.shutdownTimeout)
		defer cancel()
		for i := len(s.cfg.stopHooks) - 1; i >= 0; i-- {
			h := s.cfg.stopHooks[i]
			if err := h.fn(hookCtx); err != nil {
				s.cfg.logger.ErrorContext(ctx, "stop hook failed",
					slog.String("hook", h.name),
					logger.Error(err),
				)
				errs = append(errs, err)
			}
		}
	})

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrShutdown}, errs...)...)
	}
	return nil
}
