// Package server exposes the sync loop's health and metrics over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jwulff/mainstream-sync/internal/domain"
	"github.com/jwulff/mainstream-sync/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":9090"

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 5 * time.Second

	// staleIntervals is how many sync intervals may pass without a success
	// before /healthz reports unhealthy.
	staleIntervals = 3
)

// StateProvider reports the sync loop state.
type StateProvider interface {
	State() domain.SyncState
	Interval() time.Duration
}

// Config holds the server section of the configuration.
type Config struct {
	Enable bool   `mapstructure:"enable" yaml:"enable"`
	Addr   string `mapstructure:"addr" yaml:"addr"`
}

// NewRouter builds the gin engine serving /healthz and /metrics.
func NewRouter(states StateProvider, gatherer prometheus.Gatherer, now func() time.Time, logger *zap.Logger) *gin.Engine {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/healthz", func(c *gin.Context) {
		state := states.State()
		status := http.StatusOK
		if !state.Healthy(now(), staleIntervals*states.Interval()) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, state)
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler(gatherer)))

	return r
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// Server runs the status endpoints until its context is done.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// New creates a server on addr. An empty addr uses DefaultAddr.
func New(addr string, handler http.Handler, logger *zap.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.Named("server"),
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.srv.Addr
}

// Run listens until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		s.logger.Info("status server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("status server stopped")
	return nil
}
