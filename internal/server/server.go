// Package server exposes Prometheus metrics and a health probe for
// `lapse watch`.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status tracks the last completed scan for /healthz.
type Status struct {
	mu       sync.RWMutex
	lastScan time.Time
	domains  int
	errors   int
}

// Record stores the summary of a finished scan.
func (s *Status) Record(at time.Time, domains, errs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastScan, s.domains, s.errors = at, domains, errs
}

type health struct {
	Status   string     `json:"status"`
	LastScan *time.Time `json:"last_scan,omitempty"`
	Domains  int        `json:"domains"`
	Errors   int        `json:"errors"`
}

func (s *Status) snapshot() health {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := health{Status: "starting", Domains: s.domains, Errors: s.errors}
	if !s.lastScan.IsZero() {
		at := s.lastScan.UTC()
		h.Status = "ok"
		h.LastScan = &at
	}
	return h
}

// NewRouter serves GET /metrics from gatherer and GET /healthz from status.
func NewRouter(gatherer prometheus.Gatherer, status *Status, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, status.snapshot())
	})
	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down metrics server: %w", err)
		}
		return nil
	}
}
