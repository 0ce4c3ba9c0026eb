package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yigit/coursereg/internal/bootstrap"
	"github.com/yigit/coursereg/internal/config"
)

// Server holds the state for the HTTP server.
type Server struct {
	config *config.Config
	router *gin.Engine
	deps   *bootstrap.Dependencies
	logger zerolog.Logger
	http   *http.Server

	hubCancel context.CancelFunc
	hubDone   chan struct{}
}

// NewServer creates and initializes a new server instance by calling bootstrap functions.
func NewServer(configPath string) (*Server, error) {
	cfg, lgr, err := bootstrap.LoadConfigAndSetupLogger(configPath, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to load config or setup logger: %w", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	backend, err := bootstrap.SetupBackend(cfg, lgr, true)
	if err != nil {
		return nil, err
	}

	deps, err := bootstrap.BuildDependencies(cfg, backend, lgr)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("failed to setup dependencies: %w", err)
	}

	return New(cfg, deps, lgr), nil
}

// New assembles a server from already built dependencies.
func New(cfg *config.Config, deps *bootstrap.Dependencies, lgr zerolog.Logger) *Server {
	return &Server{
		config: cfg,
		router: bootstrap.SetupRouter(cfg, deps, lgr),
		deps:   deps,
		logger: lgr,
	}
}

// Handler starts the websocket hub and returns the HTTP handler without
// listening, so the server can be mounted on another listener.
func (s *Server) Handler() http.Handler {
	s.startHub()
	return s.router
}

// startHub runs the websocket hub until Shutdown.
func (s *Server) startHub() {
	if s.hubCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.hubCancel = cancel
	s.hubDone = make(chan struct{})
	go func() {
		defer close(s.hubDone)
		s.deps.Hub.Run(ctx)
	}()
}

// Run starts the HTTP server and handles graceful shutdown.
func (s *Server) Run() error {
	s.logger.Info().Str("port", s.config.Server.Port).Str("backend", s.deps.Backend.Mode).Msg("Starting server...")
	s.startHub()

	s.http = &http.Server{
		Addr:              ":" + s.config.Server.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Channel to listen for errors starting the server
	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info().Str("addr", s.http.Addr).Msg("HTTP server listening")
		serverErrors <- s.http.ListenAndServe()
	}()

	osSignals := make(chan os.Signal, 1)
	signal.Notify(osSignals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(osSignals)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			_ = s.Shutdown(context.Background())
			return fmt.Errorf("error starting server: %w", err)
		}
	case sig := <-osSignals:
		s.logger.Info().Str("signal", sig.String()).Msg("Received OS signal, initiating shutdown...")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully stops the server and closes resources.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	shutdownError := false

	if s.http != nil {
		s.logger.Info().Msg("Shutting down HTTP server...")
		if err := s.http.Shutdown(ctx); err != nil {
			s.logger.Error().Err(err).Msg("HTTP server shutdown error")
			shutdownError = true
		} else {
			s.logger.Info().Msg("HTTP server gracefully stopped.")
		}
	}

	// Hijacked websocket connections are not covered by http.Server.Shutdown.
	if s.hubCancel != nil {
		s.hubCancel()
		<-s.hubDone
	}

	s.deps.RegistrationService.Close()

	s.logger.Info().Msg("Closing registration backend...")
	s.deps.Backend.Close()

	s.logger.Info().Msg("Server shutdown process complete.")
	if shutdownError {
		return errors.New("server shutdown completed with errors")
	}
	return nil
}
