package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"

	"github.com/emmdurin/georchestra-gateway/internal/logger"
)

// Server is the gateway HTTP server: the resolution pipeline mounted in
// front of the downstream proxy handler, plus the health and metrics
// endpoints.
//
// The server supports graceful shutdown with a bounded timeout.
type Server struct {
	server       *http.Server
	config       ServerConfig
	shutdownOnce sync.Once
}

// NewServer creates the gateway HTTP server.
//
// downstream consumes requests after identity resolution; pass nil to use
// the backend configured in config.BackendURL, or a 502 responder when no
// backend is configured either.
//
// The server is created in a stopped state. Call Start() to begin serving
// requests.
func NewServer(config ServerConfig, pipeline *Pipeline, downstream http.Handler) (*Server, error) {
	config.applyDefaults()

	if downstream == nil && config.BackendURL != "" {
		backend, err := url.Parse(config.BackendURL)
		if err != nil {
			return nil, fmt.Errorf("invalid backend URL %q: %w", config.BackendURL, err)
		}
		downstream = httputil.NewSingleHostReverseProxy(backend)
	}

	router := NewRouter(config, pipeline, downstream)

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      router,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		config: config,
	}, nil
}

// Start starts the gateway HTTP server and blocks until the context is
// cancelled or an error occurs. Cancellation triggers graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "port", s.config.Port)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("gateway shutdown signal received")
		// Fresh context: the cancelled one would abort shutdown immediately.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("gateway server failed: %w", err)
	}
}

// Stop initiates graceful shutdown. Safe to call multiple times and
// concurrently with Start().
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("gateway shutdown error: %w", err)
			logger.Error("gateway shutdown error", logger.Err(err))
		} else {
			logger.Info("gateway stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server is configured to listen on.
func (s *Server) Port() int {
	return s.config.Port
}
