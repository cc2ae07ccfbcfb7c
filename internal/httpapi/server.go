// Package httpapi is the thin HTTP boundary of the event log: the
// status-change ingress endpoint, the project event listing, and the
// ambient health/metrics endpoints (spec.md §4.6, §6).
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/renku-io/event-log/internal/domain"
	"github.com/renku-io/event-log/internal/eventdb"
	"github.com/renku-io/event-log/internal/gauges"
)

// Server is the HTTP API server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	store      *eventdb.Store
	consumers  map[domain.Category]*Consumer
	metrics    *gauges.Prometheus
	log        *slog.Logger
}

// NewServer builds a Server with every route registered. consumers maps
// each category named in an inbound envelope's categoryName to the
// Consumer that applies it.
func NewServer(ginMode, addr string, store *eventdb.Store, consumers map[domain.Category]*Consumer, metrics *gauges.Prometheus, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	gin.SetMode(ginMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:    engine,
		store:     store,
		consumers: consumers,
		metrics:   metrics,
		log:       log,
	}
	s.routes()
	s.httpServer = &http.Server{Addr: addr, Handler: engine}
	return s
}

func (s *Server) routes() {
	s.engine.POST("/events", s.postEvent)
	s.engine.GET("/events", s.getEvents)
	s.engine.GET("/healthz", s.health)
	if s.metrics != nil {
		handler := promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})
		s.engine.GET("/metrics", gin.WrapH(handler))
	}
}

// Run starts serving and blocks until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
