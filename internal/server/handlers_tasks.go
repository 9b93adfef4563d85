package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"genqueue/internal/queue"
	"genqueue/models"
)

type createTaskRequest struct {
	Kind       string          `json:"kind"`
	Name       string          `json:"name"`
	Priority   int             `json:"priority"`
	Checkpoint string          `json:"checkpoint"`
	Params     json.RawMessage `json:"params"`
	ScriptArgs json.RawMessage `json:"scriptArgs"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}

	task, err := s.queue.AddTask(r.Context(), models.TaskKind(req.Kind), req.Params, req.ScriptArgs, req.Checkpoint, req.Priority, req.Name)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeAPIJSON(w, http.StatusCreated, task)
}

// handleCaptureTask enqueues a task from whatever the attached front
// end currently has configured.
func (s *Server) handleCaptureTask(w http.ResponseWriter, r *http.Request) {
	if s.capture == nil {
		writeAPIJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no front end attached for parameter capture"})
		return
	}

	var req struct {
		Name     string `json:"name"`
		Priority int    `json:"priority"`
	}
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}

	captured, err := s.capture.Capture(r.Context())
	if err != nil {
		writeAPIError(w, fmt.Errorf("capturing parameters: %w", err))
		return
	}

	task, err := s.queue.AddTask(r.Context(), captured.Kind, captured.Params, captured.ScriptArgs, captured.Checkpoint, req.Priority, req.Name)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeAPIJSON(w, http.StatusCreated, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var statuses []models.TaskStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st := models.TaskStatus(strings.TrimSpace(part))
			if !validStatus(st) {
				writeAPIError(w, fmt.Errorf("%w: unknown status %q", queue.ErrValidation, st))
				return
			}
			statuses = append(statuses, st)
		}
	}

	tasks, err := s.queue.ListTasks(r.Context(), statuses...)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, map[string]any{
		"tasks": tasks,
		"total": len(tasks),
	})
}

func validStatus(st models.TaskStatus) bool {
	for _, known := range models.AllStatuses {
		if st == known {
			return true
		}
	}
	return false
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.queue.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.queue.DeleteTask(r.Context(), r.PathValue("id")); err != nil {
		writeAPIError(w, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleRetryTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.queue.RetryTask(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeAPIJSON(w, http.StatusCreated, task)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	if err := s.queue.CancelTask(r.Context(), r.PathValue("id")); err != nil {
		writeAPIError(w, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

func (s *Server) handleRunTaskNow(w http.ResponseWriter, r *http.Request) {
	task, err := s.exec.RunTaskNow(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, task)
}

type priorityRequest struct {
	Priority  *int   `json:"priority"`
	Direction string `json:"direction"`
}

// handleTaskPriority reorders a pending task, either to an absolute
// priority or one step up/down.
func (s *Server) handleTaskPriority(w http.ResponseWriter, r *http.Request) {
	var req priorityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := r.PathValue("id")

	var (
		task models.Task
		err  error
	)
	switch {
	case req.Direction == "up":
		task, err = s.queue.MoveTaskUp(r.Context(), id)
	case req.Direction == "down":
		task, err = s.queue.MoveTaskDown(r.Context(), id)
	case req.Direction != "":
		err = fmt.Errorf("%w: direction must be up or down", queue.ErrValidation)
	case req.Priority != nil:
		task, err = s.queue.ReorderTask(r.Context(), id, *req.Priority)
	default:
		err = fmt.Errorf("%w: priority or direction is required", queue.ErrValidation)
	}
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, task)
}

type batchRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleBatchDelete(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		writeAPIError(w, fmt.Errorf("%w: ids is required", queue.ErrValidation))
		return
	}
	writeAPIJSON(w, http.StatusOK, map[string]any{"results": s.queue.DeleteTasks(r.Context(), req.IDs)})
}

func (s *Server) handleBatchRetry(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		writeAPIError(w, fmt.Errorf("%w: ids is required", queue.ErrValidation))
		return
	}
	writeAPIJSON(w, http.StatusOK, map[string]any{"results": s.queue.RetryTasks(r.Context(), req.IDs)})
}
