// Package server is the wire-protocol adapter: it translates inbound HTTP
// messages into scheduler operations and serializes results back into
// response envelopes. It never reaches into scheduler internals.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/dpetranov/coopsched/pkg/models"
	"github.com/dpetranov/coopsched/pkg/scheduler"
)

// Engine is the scheduler surface the adapter consumes. *scheduler.Scheduler
// satisfies it.
type Engine interface {
	AddTask(cfg models.TaskConfig) (string, error)
	CancelTask(id string) bool
	TaskInfo(id string) (models.TaskInfo, bool)
	TaskResult(id string) (any, error, bool)
	Stats() models.Stats
}

// Server exposes the scheduler over HTTP.
type Server struct {
	router chi.Router
	engine Engine
	logger *logrus.Logger
}

// New creates a Server with all routes registered.
func New(engine Engine, logger *logrus.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		engine: engine,
		logger: logger,
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/commands", s.handleCommand)
		r.Get("/stats", s.handleStats)
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.handleAddTask)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleTaskInfo)
				r.Delete("/", s.handleCancelTask)
				r.Get("/result", s.handleTaskResult)
			})
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

func (s *Server) handleAddTask(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := s.engine.AddTask(req.TaskConfig())
	if err != nil {
		s.logger.Warnf("admission rejected: %v", err)
		writeError(w, admissionStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"task_id": id})
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.engine.CancelTask(id) {
		writeError(w, http.StatusNotFound, "unknown task id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

func (s *Server) handleTaskInfo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, ok := s.engine.TaskInfo(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown task id")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleTaskResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	value, cause, ok := s.engine.TaskResult(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no result available")
		return
	}
	resp := TaskResultResponse{TaskID: id, Result: value}
	if cause != nil {
		resp.Error = cause.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// admissionStatus maps admission reasons onto HTTP status codes.
func admissionStatus(err error) int {
	ae, ok := scheduler.IsAdmissionError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch ae.Reason {
	case scheduler.ReasonPoolFull:
		return http.StatusTooManyRequests
	case scheduler.ReasonDuplicateID:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
