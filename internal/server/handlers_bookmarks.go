package server

import (
	"encoding/json"
	"net/http"

	"genqueue/models"
)

type createBookmarkRequest struct {
	Name       string          `json:"name"`
	Kind       string          `json:"kind"`
	Checkpoint string          `json:"checkpoint"`
	Params     json.RawMessage `json:"params"`
	ScriptArgs json.RawMessage `json:"scriptArgs"`
}

func (s *Server) handleCreateBookmark(w http.ResponseWriter, r *http.Request) {
	var req createBookmarkRequest
	if !decodeBody(w, r, &req) {
		return
	}

	bm, err := s.queue.CreateBookmark(r.Context(), req.Name, models.TaskKind(req.Kind), req.Params, req.ScriptArgs, req.Checkpoint)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeAPIJSON(w, http.StatusCreated, bm)
}

func (s *Server) handleListBookmarks(w http.ResponseWriter, r *http.Request) {
	bms, err := s.queue.ListBookmarks(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, map[string]any{
		"bookmarks": bms,
		"total":     len(bms),
	})
}

func (s *Server) handleGetBookmark(w http.ResponseWriter, r *http.Request) {
	bm, err := s.queue.GetBookmark(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, bm)
}

func (s *Server) handleRenameBookmark(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	bm, err := s.queue.RenameBookmark(r.Context(), r.PathValue("id"), req.Name)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, bm)
}

func (s *Server) handleDeleteBookmark(w http.ResponseWriter, r *http.Request) {
	if err := s.queue.DeleteBookmark(r.Context(), r.PathValue("id")); err != nil {
		writeAPIError(w, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// handleQueueBookmark enqueues a fresh pending task from a saved
// bookmark.
func (s *Server) handleQueueBookmark(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Priority int `json:"priority"`
	}
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}

	task, err := s.queue.AddTaskFromBookmark(r.Context(), r.PathValue("id"), req.Priority)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeAPIJSON(w, http.StatusCreated, task)
}
