// Package keepalive serves the tiny HTTP surface that uptime monitors poll
// to keep the bot's host from idling it out.
package keepalive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// AliveText is returned from GET /.
const AliveText = "Бот работает и готов к приему сообщений!"

const shutdownTimeout = 5 * time.Second

// Server answers liveness probes. It runs on its own goroutine and shares
// nothing with the voice pipeline except the read-only metrics handler.
type Server struct {
	addr    string
	logger  *slog.Logger
	handler http.Handler
	server  *http.Server
	ready   chan struct{}
	bound   string
}

type Config struct {
	Host    string
	Port    int
	Logger  *slog.Logger
	Metrics http.Handler // optional; served at MetricsPath
	// MetricsPath defaults to /metrics.
	MetricsPath string
}

func New(cfg Config) *Server {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, AliveText)
	})
	r.Head("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, "ok")
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, cfg.MetricsPath, cfg.Metrics)
	}

	return &Server{
		addr:    net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		logger:  cfg.Logger,
		handler: r,
		ready:   make(chan struct{}),
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.handler }

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound address. Valid after Ready is closed.
func (s *Server) Addr() string { return s.bound }

// Start listens and serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("keep-alive listen %s: %w", s.addr, err)
	}
	s.bound = ln.Addr().String()
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	close(s.ready)
	s.logger.Info("keep-alive server started", "addr", s.bound)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("keep-alive shutdown: %w", err)
	}
	s.logger.Info("keep-alive server stopped")
	return nil
}
