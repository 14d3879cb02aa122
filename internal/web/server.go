// Package web serves the daemon's HTTP listener: the Cloud API webhook,
// prometheus metrics, and a health probe.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Mounter registers routes on the router.
type Mounter interface {
	Routes(r chi.Router)
}

// HealthFunc reports component states for /healthz.
type HealthFunc func() map[string]string

// Server is the HTTP listener.
type Server struct {
	addr    string
	router  chi.Router
	server  *http.Server
	logger  *zap.Logger
	metrics http.Handler
	health  HealthFunc
}

// New builds the router. webhook, metrics, and health may be nil.
func New(addr string, webhook Mounter, metrics http.Handler, health HealthFunc, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		addr:    addr,
		logger:  logger,
		metrics: metrics,
		health:  health,
	}
	s.router = s.setupRouter(webhook)
	return s
}

func (s *Server) setupRouter(webhook Mounter) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	if webhook != nil {
		webhook.Routes(r)
	}
	return r
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.logger.Info("http server starting", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("http server stopping")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.health != nil {
		for k, v := range s.health() {
			body[k] = v
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimw.GetReqID(r.Context())),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
