package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/systmms/gcpkit/internal/logging"
)

// ServerConfig holds configuration for the metrics HTTP server.
type ServerConfig struct {
	Enabled      bool
	Listen       string
	Path         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns the default metrics server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Enabled:      false,
		Listen:       "127.0.0.1:9090",
		Path:         "/metrics",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server exposes the default Prometheus registry over HTTP.
type Server struct {
	config   ServerConfig
	logger   *logging.Logger
	server   *http.Server
	listener net.Listener
}

// NewServer creates a metrics server. Nothing listens until Start.
func NewServer(config ServerConfig, logger *logging.Logger) *Server {
	return &Server{config: config, logger: logger}
}

// Start binds the listener and serves in the background. It is a no-op when
// the server is disabled.
func (s *Server) Start() error {
	if !s.config.Enabled {
		return nil
	}

	InitMetrics()

	mux := http.NewServeMux()
	mux.Handle(s.config.Path, promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return err
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// Metrics are non-critical; the command keeps running.
			s.logger.Warn("metrics server error: %v", err)
		}
	}()

	s.logger.Debug("Serving metrics on http://%s%s", ln.Addr(), s.config.Path)
	return nil
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Addr returns the bound address, or "" if the server is not running.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
