// Package api exposes the session to the dashboard UI: read-only JSON views
// of channels, metrics, alerts, agents and queue counts, a command endpoint,
// and a WebSocket stream relaying live messages.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/console/internal/core"
)

// Server serves the dashboard API for one session.
type Server struct {
	session *core.Session
	source  core.Source
	logger  *zap.Logger
	engine  *gin.Engine
}

// New creates a server. A nil source disables POST /api/refresh.
func New(session *core.Session, source core.Source, logger *zap.Logger) *Server {
	s := &Server{
		session: session,
		source:  source,
		logger:  logger,
		engine:  gin.New(),
	}
	s.engine.Use(gin.Recovery(), requestLogger(logger))
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/healthz", s.health)

	api := r.Group("/api")
	api.GET("/channels", s.listChannels)
	api.POST("/channels/:name/connect", s.connectChannel)
	api.POST("/channels/:name/disconnect", s.disconnectChannel)

	api.GET("/metrics", s.listMetrics)
	api.GET("/metrics/:name", s.metricHistory)
	api.GET("/alerts", s.listAlerts)

	api.GET("/agents", s.listAgents)
	api.GET("/agents/:name", s.agentDetail)
	api.POST("/agents/:name/:action", s.dispatchCommand)

	api.GET("/queue", s.queueStatus)
	api.POST("/refresh", s.refresh)
	api.GET("/stream", s.stream)
}

// Handler returns the HTTP handler for the API.
func (s *Server) Handler() http.Handler { return s.engine }

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// requestLogger logs each request through zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			logger.Warn("API request failed", append(fields, zap.String("errors", c.Errors.String()))...)
			return
		}
		logger.Debug("API request", fields...)
	}
}
