// Package http serves the task control surface over HTTP.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aretw0/stagecraft/internal/logging"
	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/tasks"
)

// Tasks is the task layer as seen by the HTTP surface.
type Tasks interface {
	Submit(ctx context.Context, agents []string, vars map[string]any) (*domain.Task, error)
	Get(ctx context.Context, id string) (*domain.Task, error)
	List(ctx context.Context) ([]*domain.Task, error)
	Active() []string
	Stop(ctx context.Context, id string) error
}

// Resolver answers pending human confirmations by run id.
type Resolver interface {
	Resolve(runID string, approved bool) error
}

// Server routes HTTP requests to the task layer.
type Server struct {
	tasks    Tasks
	resolver Resolver
	streams  *StreamManager
	metrics  http.Handler
	version  string
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithResolver enables POST /tasks/{id}/confirm.
func WithResolver(r Resolver) Option {
	return func(s *Server) { s.resolver = r }
}

// WithStreams enables GET /tasks/{id}/events. The manager's hooks must include streams.Hooks().
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) { s.streams = sm }
}

// WithMetrics mounts h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewHandler creates the HTTP handler of the task API.
func NewHandler(t Tasks, opts ...Option) http.Handler {
	s := &Server{tasks: t, logger: logging.NewNop(), version: "dev"}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", s.submit)
		r.Get("/", s.list)
		r.Get("/{id}", s.get)
		r.Delete("/{id}", s.stop)
		r.Post("/{id}/confirm", s.confirm)
		r.Get("/{id}/events", s.events)
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SubmitRequest is the body of POST /tasks.
type SubmitRequest struct {
	Agents  []string       `json:"agents"`
	Context map[string]any `json:"context,omitempty"`
}

// SubmitResponse is the body answered by POST /tasks.
type SubmitResponse struct {
	ID     string        `json:"id"`
	Status domain.Status `json:"status"`
}

// TaskSummary is one entry of GET /tasks.
type TaskSummary struct {
	ID        string        `json:"id"`
	Status    domain.Status `json:"status"`
	Agents    []string      `json:"agents"`
	CreatedAt time.Time     `json:"created_at"`
}

// ListResponse is the body of GET /tasks.
type ListResponse struct {
	Active []string      `json:"active"`
	Tasks  []TaskSummary `json:"tasks"`
}

// ConfirmRequest is the body of POST /tasks/{id}/confirm.
type ConfirmRequest struct {
	Approved bool `json:"approved"`
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var body SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.fail(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	task, err := s.tasks.Submit(r.Context(), body.Agents, body.Context)
	if err != nil {
		s.fail(w, statusOf(err), err)
		return
	}
	s.logger.Info("Task submitted", "task_id", task.ID, "agents", body.Agents)
	writeJSON(w, http.StatusAccepted, SubmitResponse{ID: task.ID, Status: task.Status})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	all, err := s.tasks.List(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	resp := ListResponse{Active: s.tasks.Active(), Tasks: make([]TaskSummary, 0, len(all))}
	for _, t := range all {
		resp.Tasks = append(resp.Tasks, TaskSummary{ID: t.ID, Status: t.Status, Agents: t.AgentNames(), CreatedAt: t.CreatedAt})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	task, err := s.tasks.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.tasks.Stop(r.Context(), id); err != nil {
		s.fail(w, statusOf(err), err)
		return
	}
	s.logger.Info("Task stop requested", "task_id", id)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) confirm(w http.ResponseWriter, r *http.Request) {
	if s.resolver == nil {
		s.fail(w, http.StatusNotImplemented, errors.New("confirmations are not enabled"))
		return
	}
	var body ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.fail(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	task, err := s.tasks.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, statusOf(err), err)
		return
	}
	current := task.Current()
	if current == nil || current.RunID == "" {
		s.fail(w, http.StatusConflict, errors.New("task has no running agent"))
		return
	}
	if err := s.resolver.Resolve(current.RunID, body.Approved); err != nil {
		s.fail(w, http.StatusConflict, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	if s.streams == nil {
		s.fail(w, http.StatusNotImplemented, errors.New("event streams are not enabled"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.fail(w, http.StatusInternalServerError, errors.New("streaming not supported"))
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.tasks.Get(r.Context(), id); err != nil {
		s.fail(w, statusOf(err), err)
		return
	}

	ch, cancel := s.streams.Subscribe(id)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
}

func (s *Server) fail(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "err", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, tasks.ErrNoAgents):
		return http.StatusBadRequest
	case errors.Is(err, tasks.ErrShutdown):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
