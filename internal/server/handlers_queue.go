package server

import (
	"net/http"

	"genqueue/internal/executor"
)

func (s *Server) handleQueueStart(w http.ResponseWriter, r *http.Request) {
	s.exec.Start()
	s.writeStatus(w, r)
}

func (s *Server) handleQueueStop(w http.ResponseWriter, r *http.Request) {
	if err := s.exec.Stop(r.Context()); err != nil {
		writeAPIError(w, err)
		return
	}
	s.writeStatus(w, r)
}

func (s *Server) handleQueuePause(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}

	mode, err := executor.ParsePauseMode(req.Mode)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	if err := s.exec.Pause(mode); err != nil {
		writeAPIError(w, err)
		return
	}
	s.writeStatus(w, r)
}

func (s *Server) handleQueueResume(w http.ResponseWriter, r *http.Request) {
	if err := s.exec.Resume(); err != nil {
		writeAPIError(w, err)
		return
	}
	s.writeStatus(w, r)
}

func (s *Server) handleQueueClear(w http.ResponseWriter, r *http.Request) {
	n, err := s.queue.ClearCompleted(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w, r)
}

func (s *Server) writeStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.exec.Status(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, status)
}
