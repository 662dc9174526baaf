// Package server exposes archived analysis runs over HTTP: listing,
// run detail, cycle detail, and rendered text reports.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/realtime-session-analyzer/internal/storage"
)

type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger
	store  storage.RunStore
}

func New(port int, logger *slog.Logger, store storage.RunStore) *Server {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "session-analyzer")
	})

	s := &Server{
		Router: r,
		Port:   port,
		logger: logger,
		store:  store,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.Get("/healthz", s.handleHealth)
	s.Router.Get("/runs", s.handleListRuns)
	s.Router.Get("/runs/{id}", s.handleGetRun)
	s.Router.Get("/runs/{id}/cycles", s.handleGetCycles)
	s.Router.Get("/runs/{id}/report", s.handleGetReport)
}

func (s *Server) Start() error {
	s.logger.Info("starting report server", slog.Int("port", s.Port))
	return http.ListenAndServe(fmt.Sprintf(":%d", s.Port), s.Router)
}
