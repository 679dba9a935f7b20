package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"hookrunner/internal/config"
	"hookrunner/internal/database"
	"hookrunner/internal/domain"
	"hookrunner/internal/logging"
	"hookrunner/internal/metrics"
	"hookrunner/internal/models"

	"github.com/rs/zerolog"
)

// Outcomes finalizes runs reported by the script runner.
type Outcomes interface {
	HandleSuccess(ctx context.Context, taskID string, props *models.ExecutionProps) error
	HandleFailure(ctx context.Context, taskID string, props *models.ExecutionProps, taskErr error) error
}

type JobResults interface {
	UpdateSyncJobResult(ctx context.Context, id int64, result map[string]models.SyncResult) error
}

type TaskStates interface {
	Get(ctx context.Context, taskID string) (*models.TaskState, error)
}

// Deps are the collaborators behind the HTTP endpoints.
type Deps struct {
	Tasks    domain.TaskEnqueuer
	Outcomes Outcomes
	Results  JobResults
	States   TaskStates
	// Health reports whether the backing stores are reachable. Optional.
	Health func(ctx context.Context) error
}

// HTTPServer exposes the scheduler and runner callback surface.
type HTTPServer struct {
	cfg    config.APIConfig
	deps   Deps
	server *http.Server
	auth   *HTTPAuth
	logger *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{
		cfg:    cfg,
		deps:   deps,
		auth:   NewHTTPAuth(cfg),
		logger: logging.Component(logger, "http"),
	}

	srv.route(mux, "GET /health", "health", srv.handleHealth)
	srv.route(mux, "POST /api/v1/tasks", "tasks_enqueue", srv.handleEnqueue)
	srv.route(mux, "GET /api/v1/tasks/{id}", "tasks_get", srv.handleTaskState)
	srv.route(mux, "PUT /api/v1/tasks/{id}/success", "tasks_success", srv.handleSuccess)
	srv.route(mux, "PUT /api/v1/tasks/{id}/failure", "tasks_failure", srv.handleFailure)

	handler := loggingMiddleware(srv.logger, srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) route(mux *http.ServeMux, pattern, endpoint string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		metrics.IncHTTP(endpoint)
		h(w, r)
	})
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var task models.Task
	if err := decodeBody(w, r, &task); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	task.Name = strings.TrimSpace(task.Name)
	task.ParentSyncName = strings.TrimSpace(task.ParentSyncName)
	if task.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if task.ParentSyncName == "" {
		writeError(w, http.StatusBadRequest, "parent_sync_name is required")
		return
	}
	if task.Connection.EnvironmentID == 0 {
		writeError(w, http.StatusBadRequest, "connection.environment_id is required")
		return
	}

	if err := s.deps.Tasks.Enqueue(r.Context(), &task); err != nil {
		s.logger.Error().Err(err).Str("task_name", task.Name).Msg("enqueue task")
		writeError(w, http.StatusServiceUnavailable, "task could not be queued")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": task.ID})
}

func (s *HTTPServer) handleTaskState(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	state, err := s.deps.States.Get(r.Context(), taskID)
	if err != nil {
		s.logger.Error().Err(err).Str("task_id", taskID).Msg("get task state")
		writeError(w, http.StatusInternalServerError, "task state unavailable")
		return
	}
	if state == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type successRequest struct {
	Props  *models.ExecutionProps       `json:"props"`
	Result map[string]models.SyncResult `json:"result,omitempty"`
}

func (s *HTTPServer) handleSuccess(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	var body successRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Props == nil {
		writeError(w, http.StatusBadRequest, "props is required")
		return
	}

	if len(body.Result) > 0 && body.Props.SyncJobID != 0 {
		if err := s.deps.Results.UpdateSyncJobResult(r.Context(), body.Props.SyncJobID, body.Result); err != nil {
			s.logger.Error().Err(err).Int64("sync_job_id", body.Props.SyncJobID).Msg("record job result")
			writeError(w, statusFor(err), err.Error())
			return
		}
	}

	if err := s.deps.Outcomes.HandleSuccess(r.Context(), taskID, body.Props); err != nil {
		s.logger.Warn().Err(err).Str("task_id", taskID).Msg("handle success")
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type failureRequest struct {
	Props *models.ExecutionProps `json:"props"`
	Error *runnerError           `json:"error"`
}

// runnerError is the error report sent by the script runner.
type runnerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Payload any    `json:"payload,omitempty"`
}

func (e *runnerError) asError() error {
	if e == nil || strings.TrimSpace(e.Message) == "" {
		return nil
	}
	return errors.New(e.Message)
}

func (s *HTTPServer) handleFailure(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	var body failureRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Props == nil {
		writeError(w, http.StatusBadRequest, "props is required")
		return
	}

	if err := s.deps.Outcomes.HandleFailure(r.Context(), taskID, body.Props, body.Error.asError()); err != nil {
		s.logger.Warn().Err(err).Str("task_id", taskID).Msg("handle failure")
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, database.ErrJobFinalized):
		return http.StatusConflict
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return decoder.Decode(v)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
