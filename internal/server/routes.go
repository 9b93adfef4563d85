package server

import "net/http"

// routes sets up all API endpoints.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/tasks", s.handleCreateTask)
	mux.HandleFunc("POST /api/tasks/capture", s.handleCaptureTask)
	mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.handleDeleteTask)
	mux.HandleFunc("POST /api/tasks/{id}/retry", s.handleRetryTask)
	mux.HandleFunc("POST /api/tasks/{id}/cancel", s.handleCancelTask)
	mux.HandleFunc("POST /api/tasks/{id}/run-now", s.handleRunTaskNow)
	mux.HandleFunc("POST /api/tasks/{id}/priority", s.handleTaskPriority)
	mux.HandleFunc("POST /api/tasks/batch/delete", s.handleBatchDelete)
	mux.HandleFunc("POST /api/tasks/batch/retry", s.handleBatchRetry)

	mux.HandleFunc("POST /api/queue/start", s.handleQueueStart)
	mux.HandleFunc("POST /api/queue/stop", s.handleQueueStop)
	mux.HandleFunc("POST /api/queue/pause", s.handleQueuePause)
	mux.HandleFunc("POST /api/queue/resume", s.handleQueueResume)
	mux.HandleFunc("POST /api/queue/clear", s.handleQueueClear)
	mux.HandleFunc("GET /api/status", s.handleStatus)

	mux.HandleFunc("POST /api/bookmarks", s.handleCreateBookmark)
	mux.HandleFunc("GET /api/bookmarks", s.handleListBookmarks)
	mux.HandleFunc("GET /api/bookmarks/{id}", s.handleGetBookmark)
	mux.HandleFunc("PUT /api/bookmarks/{id}", s.handleRenameBookmark)
	mux.HandleFunc("DELETE /api/bookmarks/{id}", s.handleDeleteBookmark)
	mux.HandleFunc("POST /api/bookmarks/{id}/queue", s.handleQueueBookmark)

	mux.HandleFunc("OPTIONS /api/", s.handleCORS)

	return mux
}
