// Package server exposes the task and breakdown operations over HTTP.
// Handlers are thin: validation and status-code mapping here, behavior in
// the store and breakdown packages.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/taskpilot/taskpilot/internal/breakdown"
	"github.com/taskpilot/taskpilot/internal/store"
	"github.com/taskpilot/taskpilot/pkg/models"
)

// Server handles the HTTP API.
type Server struct {
	db   *store.DB
	pool *breakdown.Pool
	http *http.Server

	draining atomic.Bool
}

// New creates a Server listening on addr.
func New(addr string, db *store.DB, pool *breakdown.Pool) *Server {
	s := &Server{db: db, pool: pool}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/tasks", s.handleCreateTask)
	mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("PATCH /api/tasks/{id}", s.handleUpdateTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.handleDeleteTask)
	mux.HandleFunc("POST /api/tasks/{id}/breakdown", s.handleRequestBreakdown)
	mux.HandleFunc("GET /api/tasks/{id}/breakdown", s.handleBreakdownStatus)
	mux.HandleFunc("GET /api/tasks/{id}/subtasks", s.handleListSubtasks)
	mux.HandleFunc("PATCH /api/subtasks/{id}", s.handleUpdateSubtask)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      logRequests(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// ListenAndServe runs the server until it is shut down.
func (s *Server) ListenAndServe() error {
	log.Printf("[server] listening on %s", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler returns the underlying handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// SetDraining toggles drain mode. While draining, new breakdown requests
// are rejected; everything else keeps working.
func (s *Server) SetDraining(on bool) {
	s.draining.Store(on)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.pool.Pending(),
	})
}

// createTaskRequest is the POST /api/tasks body.
type createTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusUnprocessableEntity, "title is required")
		return
	}
	priority := models.TaskPriority(req.Priority)
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		writeError(w, http.StatusUnprocessableEntity, "priority must be low, medium, or high")
		return
	}

	now := time.Now()
	task := &models.Task{
		ID:          uuid.New().String(),
		Title:       req.Title,
		Description: req.Description,
		Status:      models.TaskStatusPending,
		Priority:    priority,
		DueDate:     req.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.CreateTask(task); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create task")
		log.Printf("[server] create task: %v", err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.TaskFilter{
		Status:   models.TaskStatus(q.Get("status")),
		Priority: models.TaskPriority(q.Get("priority")),
		Search:   q.Get("search"),
	}
	tasks, err := s.db.ListTasks(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		log.Printf("[server] list tasks: %v", err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.lookupTask(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// updateTaskRequest is the PATCH /api/tasks/{id} body. Absent fields are
// left unchanged.
type updateTaskRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Status      *string    `json:"status"`
	Priority    *string    `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.lookupTask(w, r)
	if !ok {
		return
	}

	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Title != nil {
		if *req.Title == "" {
			writeError(w, http.StatusUnprocessableEntity, "title cannot be empty")
			return
		}
		task.Title = *req.Title
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.Status != nil {
		status := models.TaskStatus(*req.Status)
		if !status.Valid() {
			writeError(w, http.StatusUnprocessableEntity, "status must be pending, in_progress, completed, or cancelled")
			return
		}
		task.Status = status
	}
	if req.Priority != nil {
		priority := models.TaskPriority(*req.Priority)
		if !priority.Valid() {
			writeError(w, http.StatusUnprocessableEntity, "priority must be low, medium, or high")
			return
		}
		task.Priority = priority
	}
	if req.DueDate != nil {
		task.DueDate = req.DueDate
	}

	if err := s.db.UpdateTask(task); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update task")
		log.Printf("[server] update task %s: %v", task.ID, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.lookupTask(w, r)
	if !ok {
		return
	}
	if err := s.db.DeleteTask(task.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete task")
		log.Printf("[server] delete task %s: %v", task.ID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// breakdownRequestBody is the POST /api/tasks/{id}/breakdown body. All
// fields are optional.
type breakdownRequestBody struct {
	ComplexityLevel string   `json:"complexity_level"`
	FocusAreas      []string `json:"focus_areas"`
}

func (s *Server) handleRequestBreakdown(w http.ResponseWriter, r *http.Request) {
	if s.draining.Load() {
		writeError(w, http.StatusServiceUnavailable, "server is draining, not accepting new breakdowns")
		return
	}
	id := r.PathValue("id")

	var body breakdownRequestBody
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	opts := models.BreakdownOptions{
		Complexity: models.Complexity(body.ComplexityLevel),
		FocusAreas: body.FocusAreas,
	}
	if err := opts.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	rec, err := s.pool.Submit(models.BreakdownRequest{TaskID: id, Options: opts})
	switch {
	case err == nil:
	case errors.Is(err, breakdown.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "task not found")
		return
	case errors.Is(err, breakdown.ErrDuplicateRequest):
		writeError(w, http.StatusConflict, "breakdown already in progress for this task")
		return
	case errors.Is(err, breakdown.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, "breakdown queue is full, try again later")
		return
	default:
		writeError(w, http.StatusInternalServerError, "failed to request breakdown")
		log.Printf("[server] request breakdown for %s: %v", id, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"breakdown_id": rec.ID,
		"task_id":      rec.TaskID,
		"status":       rec.Status,
	})
}

func (s *Server) handleBreakdownStatus(w http.ResponseWriter, r *http.Request) {
	task, ok := s.lookupTask(w, r)
	if !ok {
		return
	}
	rec, err := s.db.LatestBreakdown(task.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load breakdown")
		log.Printf("[server] breakdown status for %s: %v", task.ID, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "no breakdown requested for this task")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"breakdown_id":  rec.ID,
		"task_id":       rec.TaskID,
		"status":        rec.Status,
		"attempt_count": rec.AttemptCount,
		"error_message": rec.ErrorMessage,
		"started_at":    rec.StartedAt,
		"completed_at":  rec.CompletedAt,
	})
}

func (s *Server) handleListSubtasks(w http.ResponseWriter, r *http.Request) {
	task, ok := s.lookupTask(w, r)
	if !ok {
		return
	}
	subtasks, err := s.db.ListSubtasks(task.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list subtasks")
		log.Printf("[server] list subtasks for %s: %v", task.ID, err)
		return
	}
	if subtasks == nil {
		subtasks = []models.Subtask{}
	}
	completion, err := s.db.CompletionPercentage(task.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute completion")
		log.Printf("[server] completion for %s: %v", task.ID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subtasks":   subtasks,
		"completion": completion,
	})
}

// updateSubtaskRequest is the PATCH /api/subtasks/{id} body.
type updateSubtaskRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateSubtask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req updateSubtaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	status := models.SubtaskStatus(req.Status)
	if !status.Valid() {
		writeError(w, http.StatusUnprocessableEntity, "status must be pending, in_progress, or completed")
		return
	}

	if err := s.db.UpdateSubtaskStatus(id, status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "subtask not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update subtask")
		log.Printf("[server] update subtask %s: %v", id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// lookupTask resolves {id} and writes a 404 when it does not exist.
func (s *Server) lookupTask(w http.ResponseWriter, r *http.Request) (*models.Task, bool) {
	id := r.PathValue("id")
	task, err := s.db.GetTask(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load task")
		log.Printf("[server] get task %s: %v", id, err)
		return nil, false
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return nil, false
	}
	return task, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// logRequests logs method, path and duration for every request.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[server] %s %s (%s)", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}
