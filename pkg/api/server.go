// Package api exposes the replication service over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"page-replica/pkg/replicate"
)

// Server wraps the HTTP listener and its routes
type Server struct {
	httpServer *http.Server
	log        *logrus.Logger
}

func NewServer(addr string, svc *replicate.Service, log *logrus.Logger) *Server {
	h := &Handler{svc: svc, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)
	r.Post("/api/replicate", h.Replicate)

	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: r,
			// Replication jobs fetch dozens of assets; give them room
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		log: log,
	}
}

// Start blocks serving requests until the listener fails or Shutdown runs
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("HTTP server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests within the context deadline
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// requestLogger emits one structured line per request
func requestLogger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.WithFields(logrus.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
			}).Info("Request handled")
		})
	}
}
