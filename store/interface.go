// Package store provides durable persistence for tasks and bookmarks.
//
// Every backend guarantees per-record atomicity: a single mutation is
// indivisible with respect to concurrent reads and writes. On open,
// each backend reclassifies tasks left running or paused by a previous
// process to stopped, so the executor never resumes work it did not
// start itself.
package store

import (
	"context"
	"errors"
	"time"

	"genqueue/models"
)

var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrBookmarkNotFound = errors.New("bookmark not found")
)

// RestartInterruption is the error note written onto tasks reclassified
// during startup recovery.
const RestartInterruption = "interrupted by restart"

// TaskStore is the persistence contract for tasks and bookmarks.
// Implementations own no queue behavior beyond CRUD and ordered
// retrieval; lifecycle rules live in the queue manager.
type TaskStore interface {
	// InsertTask adds a new task record. The caller assigns the ID.
	InsertTask(ctx context.Context, task models.Task) error

	// GetTask retrieves a task by ID, or ErrTaskNotFound.
	GetTask(ctx context.Context, id string) (models.Task, error)

	// ListTasks returns tasks ordered by (priority, created_at),
	// optionally restricted to the given statuses.
	ListTasks(ctx context.Context, statuses ...models.TaskStatus) ([]models.Task, error)

	// UpdateTask replaces the stored record with the same ID, or
	// returns ErrTaskNotFound. The replacement is atomic.
	UpdateTask(ctx context.Context, task models.Task) error

	// DeleteTask removes a task by ID, or returns ErrTaskNotFound.
	DeleteTask(ctx context.Context, id string) error

	// NextPending returns the pending task with the lowest
	// (priority, created_at), or nil when the queue has none. It is a
	// pure read with no side effect.
	NextPending(ctx context.Context) (*models.Task, error)

	// CountByStatus returns task counts keyed by status.
	CountByStatus(ctx context.Context) (map[models.TaskStatus]int, error)

	// DeleteTerminalBefore removes terminal tasks whose completion time
	// is before cutoff, returning how many were deleted. A zero cutoff
	// removes all terminal tasks.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)

	InsertBookmark(ctx context.Context, b models.Bookmark) error
	GetBookmark(ctx context.Context, id string) (models.Bookmark, error)
	// ListBookmarks returns bookmarks newest first.
	ListBookmarks(ctx context.Context) ([]models.Bookmark, error)
	// UpdateBookmark replaces the stored record with the same ID, or
	// returns ErrBookmarkNotFound.
	UpdateBookmark(ctx context.Context, b models.Bookmark) error
	DeleteBookmark(ctx context.Context, id string) error

	Close() error
}
