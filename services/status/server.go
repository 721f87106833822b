package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"sjsage522/dealnotifier/logger"
	"sjsage522/dealnotifier/services/worker"
)

// ReportSource exposes the most recent run report
type ReportSource interface {
	LastReport() *worker.RunReport
}

// Server serves liveness and last-run information over HTTP
type Server struct {
	srv *http.Server
}

// NewRouter builds the status routes
func NewRouter(reports ReportSource) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		report := reports.LastReport()
		if report == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "no run yet"})
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	return r
}

// NewServer creates a status server listening on addr
func NewServer(addr string, reports ReportSource) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(reports),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves in the background until Shutdown is called
func (s *Server) Start() {
	go func() {
		logger.LogInfo("status", "Status server listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogError("status", err, "Status server stopped")
		}
	}()
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.LogError("status", err, "Failed to encode response")
	}
}
