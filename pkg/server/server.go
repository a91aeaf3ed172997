package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/gtriggiano/ip-lookup-service/pkg/config"
)

const (
	defaultGracefulShutdownTimeout = 5 * time.Second
	readHeaderTimeout              = 5 * time.Second
)

// Server wraps the public HTTP listener.
type Server struct {
	cfg             config.ServerConfig
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *zap.Logger
}

// NewServer builds the HTTP server for handler. A non-positive
// shutdownTimeout falls back to five seconds.
func NewServer(cfg config.ServerConfig, handler http.Handler, shutdownTimeout time.Duration, logger *zap.Logger) *Server {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultGracefulShutdownTimeout
	}
	return &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
	}
}

// Start begins serving and blocks until context cancellation or server error.
// onReady runs once the listener is bound.
func (s *Server) Start(ctx context.Context, onReady func()) error {
	listener, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on address '%s': %w", s.cfg.Address, err)
	}
	return s.Serve(ctx, listener, onReady)
}

// Serve runs the server on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener, onReady func()) error {
	if onReady != nil {
		onReady()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown", zap.Error(err))
			_ = s.httpServer.Close()
		}
	}()

	s.logger.Info("http server listening", zap.String("addr", listener.Addr().String()))
	err := s.httpServer.Serve(listener)
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}
