package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmcleod/irongate/internal/logger"
)

// StatusFunc reports live server state for the admin endpoint.
type StatusFunc func() Status

// Status is the body of GET /status.
type Status struct {
	Addr           string `json:"addr"`
	ActiveSessions int    `json:"active_sessions"`
	AllowListSize  int    `json:"allow_list_size"`
}

// Status returns a snapshot for the admin endpoint. Safe from any goroutine.
func (s *Server) Status() Status {
	st := Status{ActiveSessions: s.ActiveSessions(), AllowListSize: s.AllowListSize()}
	if a := s.Addr(); a != nil {
		st.Addr = a.String()
	}
	return st
}

// NewAdminRouter serves health, status, and Prometheus metrics.
//
// Routes:
//   - GET /health  - liveness probe
//   - GET /status  - session and allow-list counts
//   - GET /metrics - Prometheus exposition
func NewAdminRouter(gatherer prometheus.Gatherer, status StatusFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status())
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debug("admin request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// Admin is the HTTP side server. It runs on its own goroutine and only reads
// goroutine-safe state.
type Admin struct {
	srv *http.Server
	ln  net.Listener
}

// StartAdmin listens on addr and serves h in the background.
func StartAdmin(addr string, h http.Handler) (*Admin, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("admin listen on %s: %w", addr, err)
	}
	a := &Admin{
		ln: ln,
		srv: &http.Server{
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
	go func() {
		if err := a.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server failed", logger.KeyError, err)
		}
	}()
	logger.Info("admin endpoint listening", logger.KeyAddr, ln.Addr().String())
	return a, nil
}

// Addr returns the bound admin address.
func (a *Admin) Addr() net.Addr { return a.ln.Addr() }

// Shutdown gracefully stops the admin server.
func (a *Admin) Shutdown(ctx context.Context) error {
	return a.srv.Shutdown(ctx)
}
