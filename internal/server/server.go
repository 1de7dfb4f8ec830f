package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"mt5-command-server/internal/config"
	"mt5-command-server/internal/handler"
	"mt5-command-server/internal/logs"
	"mt5-command-server/internal/middleware"
	"mt5-command-server/internal/procexec"
	"mt5-command-server/internal/scripts"
	"mt5-command-server/internal/terminal"

	"github.com/rs/zerolog/log"
)

// Server wires the command endpoints to an MT5 installation and serves them over HTTP.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
}

// New prepares the directories and builds the handler chain. runner may be nil to use real processes.
func New(cfg *config.Config, runner procexec.Runner) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := scripts.NewStore(cfg.MT5.ScriptsDir)
	if err := store.EnsureDir(); err != nil {
		return nil, fmt.Errorf("failed to create scripts directory: %w", err)
	}
	if err := os.MkdirAll(cfg.MT5.LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	if runner == nil {
		runner = procexec.NewExecRunner()
	}

	term := terminal.New(store, runner, terminal.Config{
		Compiler:       cfg.MT5.Compiler,
		Terminal:       cfg.MT5.Terminal,
		Launcher:       cfg.MT5.Launcher,
		CompileTimeout: cfg.MT5.CompileTimeout,
		ExecuteTimeout: cfg.MT5.ExecuteTimeout,
		LockTimeout:    cfg.MT5.LockTimeout,
	})

	limiter := middleware.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)

	router := http.NewServeMux()
	handler.Routes(router, handler.New(term, logs.NewReader(cfg.MT5.LogsDir, cfg.Logs.Suffix, cfg.Logs.TailLines)), limiter.Limit)

	return &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Addr:              cfg.Listen,
			Handler:           middleware.RequestID(middleware.AccessLog(handler.WithErrorEnvelope(router))),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      cfg.WriteTimeout(),
			IdleTimeout:       120 * time.Second,
		},
	}, nil
}

// Run listens on the configured address until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, listener)
}

func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	log.Info().
		Str("listen", listener.Addr().String()).
		Str("scripts_dir", s.cfg.MT5.ScriptsDir).
		Str("logs_dir", s.cfg.MT5.LogsDir).
		Msg("server starting")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}
