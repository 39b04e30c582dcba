package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"outage-ingester/internal/clock"
	"outage-ingester/internal/config"
	"outage-ingester/internal/coordinator"
	"outage-ingester/internal/sink"
)

type Options struct {
	Server      config.Server
	Coordinator *coordinator.Coordinator
	Clock       clock.Clock
	// Notifications backs /api/v1/notifications; optional.
	Notifications *sink.Memory
	Gatherer      prometheus.Gatherer
	Log           *zap.Logger
	// Window is the default range of event queries.
	Window time.Duration
}

// Server is the host-facing query surface.
type Server struct {
	opts   Options
	log    *zap.Logger
	engine *gin.Engine
	server *http.Server
}

func New(opts Options) *Server {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{Location: time.Local}
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Window <= 0 {
		opts.Window = 24 * time.Hour
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{opts: opts, log: opts.Log.Named("api"), engine: gin.New()}
	s.engine.Use(s.recovery(), s.accessLog())
	s.routes()
	s.server = &http.Server{
		Addr:         opts.Server.ListenAddress,
		Handler:      s.engine,
		ReadTimeout:  opts.Server.ReadTimeout,
		WriteTimeout: opts.Server.WriteTimeout,
		IdleTimeout:  opts.Server.IdleTimeout,
	}
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))

	v1 := s.engine.Group("/api/v1")
	v1.GET("/zones", s.listZones)
	v1.GET("/zones/:id", s.zoneStatus)
	v1.GET("/zones/:id/events", s.zoneEvents)
	v1.GET("/zones/:id/scheduled", s.zoneScheduled)
	v1.GET("/zones/:id/groups", s.zoneGroups)
	v1.GET("/notifications", s.notifications)
}

func (s *Server) Handler() http.Handler { return s.engine }

// Serve blocks until Shutdown; a clean shutdown returns nil.
func (s *Server) Serve() error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error { return s.server.Shutdown(ctx) }

func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		s.log.Error("handler panic", zap.Any("recovered", recovered), zap.String("path", c.Request.URL.Path))
		abort(c, http.StatusInternalServerError, "INTERNAL_ERROR", "an unexpected error occurred")
	})
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}
