package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/realtime-session-analyzer/internal/report"
	"github.com/tjfontaine/realtime-session-analyzer/internal/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context())
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []storage.RunSummary{}
	}
	s.respondJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetCycles(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	cycles := run.Cycles
	if cycles == nil {
		cycles = []storage.Cycle{}
	}
	s.respondJSON(w, http.StatusOK, cycles)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := report.RenderRun(w, run); err != nil {
		s.logger.Error("render report", slog.String("run_id", run.ID), slog.Any("error", err))
	}
}

func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (*storage.Run, bool) {
	id := chi.URLParam(r, "id")
	AddLogField(r.Context(), "run_id", id)
	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, r, http.StatusNotFound, err)
		return nil, false
	}
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, err)
		return nil, false
	}
	return run, true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("encode response", slog.Any("error", err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, err error) {
	AddLogField(r.Context(), "error", err.Error())
	s.respondJSON(w, status, map[string]string{"error": err.Error()})
}
