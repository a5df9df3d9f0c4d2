// Package status serves coordinator snapshots over HTTP.
//
// The frame loop publishes a network.Status after every frame; HTTP handlers
// only ever read the last published snapshot, so serving a request never
// touches the coordinator.
package status

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roach88/lockstep/internal/network"
)

// Server is the HTTP status endpoint.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	snapshot   atomic.Pointer[network.Status]
	logger     *slog.Logger
	done       chan struct{}
}

// New creates a status server. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		router: router,
		logger: logger,
	}

	router.Use(s.loggingMiddleware(), gin.Recovery())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/status", s.handleStatus)
		v1.GET("/peers", s.handlePeers)
	}

	s.router.GET("/healthz", s.handleHealth)
}

// loggingMiddleware logs every request at debug level.
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("status request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"code", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

// Publish replaces the served snapshot. Safe to call from any goroutine.
func (s *Server) Publish(st network.Status) {
	s.snapshot.Store(&st)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on l in the background.
func (s *Server) Start(l net.Listener) {
	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.done = make(chan struct{})

	s.logger.Info("status endpoint listening", "addr", l.Addr().String())
	go func() {
		defer close(s.done)
		if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status endpoint failed", "error", err)
		}
	}()
}

// ListenAndStart listens on addr and serves in the background.
func (s *Server) ListenAndStart(addr string) (net.Addr, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.Start(l)
	return l.Addr(), nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	err := s.httpServer.Shutdown(ctx)
	<-s.done
	return err
}
