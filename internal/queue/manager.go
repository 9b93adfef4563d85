// Package queue owns every task state change. The manager is the only
// component permitted to mutate a task's status: it guards the state
// machine, computes the next eligible task, and funnels all mutation
// paths through the store's per-record atomic updates.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"genqueue/models"
	"genqueue/store"

	"github.com/google/uuid"
)

// Event names a queue change delivered to registered listeners.
type Event string

const (
	EventTaskAdded     Event = "task_added"
	EventTaskUpdated   Event = "task_updated"
	EventTaskStarted   Event = "task_started"
	EventTaskCompleted Event = "task_completed"
	EventTaskFailed    Event = "task_failed"
	EventTaskCancelled Event = "task_cancelled"
	EventTaskDeleted   Event = "task_deleted"
	EventTaskReordered Event = "task_reordered"
	EventTasksCleared  Event = "tasks_cleared"
)

// Listener receives queue change notifications. The task pointer is nil
// for events not tied to a single task.
type Listener func(event Event, task *models.Task)

// StatusUpdate carries the optional payload of a status transition.
type StatusUpdate struct {
	Error          string
	Result         []string
	ResultInfo     string
	CompletedSteps int
	TotalSteps     int
}

// Manager mediates all task and bookmark mutations. A single mutex
// serializes mutations so invariants (one running task, legal
// transitions) hold under concurrent callers.
type Manager struct {
	store store.TaskStore

	mu        sync.Mutex
	listeners []Listener
}

func NewManager(s store.TaskStore) *Manager {
	return &Manager{store: s}
}

// AddTask creates a pending task from a captured parameter bundle.
func (m *Manager) AddTask(ctx context.Context, kind models.TaskKind, params, scriptArgs json.RawMessage, checkpoint string, priority int, name string) (models.Task, error) {
	if !models.ValidKind(kind) {
		return models.Task{}, fmt.Errorf("%w: unknown task kind %q", ErrValidation, kind)
	}

	task := models.Task{
		ID:         uuid.NewString(),
		Kind:       kind,
		Status:     models.StatusPending,
		Priority:   priority,
		Name:       name,
		CreatedAt:  time.Now().UTC(),
		Params:     params,
		Checkpoint: checkpoint,
		ScriptArgs: scriptArgs,
	}
	if err := models.ValidateStruct(&task); err != nil {
		return models.Task{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.InsertTask(ctx, task); err != nil {
		return models.Task{}, err
	}
	m.notify(EventTaskAdded, &task)
	return task, nil
}

// AddTaskFromBookmark instantiates a pending task from a saved bundle.
func (m *Manager) AddTaskFromBookmark(ctx context.Context, bookmarkID string, priority int) (models.Task, error) {
	bm, err := m.GetBookmark(ctx, bookmarkID)
	if err != nil {
		return models.Task{}, err
	}
	return m.AddTask(ctx, bm.Kind, bm.Params, bm.ScriptArgs, bm.Checkpoint, priority, bm.Name)
}

// GetTask retrieves a task by ID.
func (m *Manager) GetTask(ctx context.Context, id string) (models.Task, error) {
	task, err := m.store.GetTask(ctx, id)
	if errors.Is(err, store.ErrTaskNotFound) {
		return models.Task{}, fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	return task, err
}

// ListTasks returns tasks ordered by (priority, created_at), optionally
// filtered by status.
func (m *Manager) ListTasks(ctx context.Context, statuses ...models.TaskStatus) ([]models.Task, error) {
	return m.store.ListTasks(ctx, statuses...)
}

// NextPending returns the lowest (priority, created_at) pending task,
// or nil when the queue is drained. Pure read, no side effect.
func (m *Manager) NextPending(ctx context.Context) (*models.Task, error) {
	return m.store.NextPending(ctx)
}

// UpdateStatus validates and applies one edge of the task state
// machine. A same-status update is an idempotent no-op: the stored
// snapshot is returned unchanged, with no duplicate timestamp mutation.
func (m *Manager) UpdateStatus(ctx context.Context, id string, status models.TaskStatus, upd *StatusUpdate) (models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateStatusLocked(ctx, id, status, upd)
}

func (m *Manager) updateStatusLocked(ctx context.Context, id string, status models.TaskStatus, upd *StatusUpdate) (models.Task, error) {
	task, err := m.store.GetTask(ctx, id)
	if errors.Is(err, store.ErrTaskNotFound) {
		return models.Task{}, fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	if err != nil {
		return models.Task{}, err
	}

	if task.Status == status {
		return task, nil
	}
	if !models.IsValidTransition(task.Status, status) {
		return models.Task{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, task.Status, status)
	}

	now := time.Now().UTC()
	task.Status = status
	switch {
	case status == models.StatusRunning:
		if task.StartedAt == nil {
			task.StartedAt = &now
		}
	case status.IsTerminal():
		task.CompletedAt = &now
	}

	if upd != nil {
		if upd.Error != "" {
			task.Error = upd.Error
		}
		if upd.Result != nil {
			task.Result = upd.Result
		}
		if upd.ResultInfo != "" {
			task.ResultInfo = upd.ResultInfo
		}
		if upd.CompletedSteps > 0 {
			task.CompletedSteps = upd.CompletedSteps
		}
		if upd.TotalSteps > 0 {
			task.TotalSteps = upd.TotalSteps
		}
	}

	if err := m.store.UpdateTask(ctx, task); err != nil {
		return models.Task{}, err
	}
	m.notify(eventForStatus(status), &task)
	return task, nil
}

func eventForStatus(status models.TaskStatus) Event {
	switch status {
	case models.StatusRunning:
		return EventTaskStarted
	case models.StatusCompleted:
		return EventTaskCompleted
	case models.StatusFailed:
		return EventTaskFailed
	case models.StatusCancelled:
		return EventTaskCancelled
	default:
		return EventTaskUpdated
	}
}

// DeleteTask removes a task. Running tasks must be stopped or cancelled
// first.
func (m *Manager) DeleteTask(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteTaskLocked(ctx, id)
}

func (m *Manager) deleteTaskLocked(ctx context.Context, id string) error {
	task, err := m.store.GetTask(ctx, id)
	if errors.Is(err, store.ErrTaskNotFound) {
		return fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	if task.Status == models.StatusRunning {
		return fmt.Errorf("%w: task %s is running, stop or cancel it first", ErrConflict, id)
	}
	if err := m.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	m.notify(EventTaskDeleted, &task)
	return nil
}

// CancelTask cancels a task that has not started running yet.
func (m *Manager) CancelTask(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, err := m.store.GetTask(ctx, id)
	if errors.Is(err, store.ErrTaskNotFound) {
		return fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	if task.Status != models.StatusPending {
		return fmt.Errorf("%w: task %s is %s, only pending tasks can be cancelled", ErrInvalidState, id, task.Status)
	}
	_, err = m.updateStatusLocked(ctx, id, models.StatusCancelled, nil)
	return err
}

// ReorderTask assigns a new priority, affecting only future NextPending
// calls.
func (m *Manager) ReorderTask(ctx context.Context, id string, priority int) (models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reorderLocked(ctx, id, priority)
}

func (m *Manager) reorderLocked(ctx context.Context, id string, priority int) (models.Task, error) {
	task, err := m.store.GetTask(ctx, id)
	if errors.Is(err, store.ErrTaskNotFound) {
		return models.Task{}, fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	if err != nil {
		return models.Task{}, err
	}
	task.Priority = priority
	if err := m.store.UpdateTask(ctx, task); err != nil {
		return models.Task{}, err
	}
	m.notify(EventTaskReordered, &task)
	return task, nil
}

// MoveTaskUp decreases the task's priority number by one (floor zero),
// moving it toward the front of its band.
func (m *Manager) MoveTaskUp(ctx context.Context, id string) (models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, err := m.store.GetTask(ctx, id)
	if errors.Is(err, store.ErrTaskNotFound) {
		return models.Task{}, fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	if err != nil {
		return models.Task{}, err
	}
	if task.Priority == 0 {
		return task, nil
	}
	return m.reorderLocked(ctx, id, task.Priority-1)
}

// MoveTaskDown increases the task's priority number by one.
func (m *Manager) MoveTaskDown(ctx context.Context, id string) (models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, err := m.store.GetTask(ctx, id)
	if errors.Is(err, store.ErrTaskNotFound) {
		return models.Task{}, fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	if err != nil {
		return models.Task{}, err
	}
	return m.reorderLocked(ctx, id, task.Priority+1)
}

// RetryTask creates a fresh pending task from a terminal one's captured
// configuration. The original task is left untouched apart from the
// lineage edge recording which task the retry produced.
func (m *Manager) RetryTask(ctx context.Context, id string) (models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retryLocked(ctx, id)
}

func (m *Manager) retryLocked(ctx context.Context, id string) (models.Task, error) {
	source, err := m.store.GetTask(ctx, id)
	if errors.Is(err, store.ErrTaskNotFound) {
		return models.Task{}, fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	if err != nil {
		return models.Task{}, err
	}
	if !source.Status.IsTerminal() {
		return models.Task{}, fmt.Errorf("%w: task %s is %s, only finished tasks can be retried", ErrInvalidState, id, source.Status)
	}

	replacement := models.Task{
		ID:         uuid.NewString(),
		Kind:       source.Kind,
		Status:     models.StatusPending,
		Priority:   source.Priority,
		Name:       source.Name,
		CreatedAt:  time.Now().UTC(),
		Params:     source.Params,
		Checkpoint: source.Checkpoint,
		ScriptArgs: source.ScriptArgs,
	}
	if err := m.store.InsertTask(ctx, replacement); err != nil {
		return models.Task{}, err
	}

	source.RequeuedTaskID = replacement.ID
	if err := m.store.UpdateTask(ctx, source); err != nil {
		return models.Task{}, err
	}

	m.notify(EventTaskAdded, &replacement)
	return replacement, nil
}

// RunNow elevates a pending task above the current front of the queue
// so the executor picks it next. It refuses while any task is running.
func (m *Manager) RunNow(ctx context.Context, id string) (models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	running, err := m.store.ListTasks(ctx, models.StatusRunning)
	if err != nil {
		return models.Task{}, err
	}
	if len(running) > 0 {
		return models.Task{}, fmt.Errorf("%w: task %s is already running", ErrConflict, running[0].ID)
	}

	task, err := m.store.GetTask(ctx, id)
	if errors.Is(err, store.ErrTaskNotFound) {
		return models.Task{}, fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	if err != nil {
		return models.Task{}, err
	}
	if task.Status != models.StatusPending {
		return models.Task{}, fmt.Errorf("%w: task %s is %s, only pending tasks can be run now", ErrInvalidState, id, task.Status)
	}

	front, err := m.store.NextPending(ctx)
	if err != nil {
		return models.Task{}, err
	}
	if front != nil && front.ID != task.ID {
		return m.reorderLocked(ctx, id, front.Priority-1)
	}
	return task, nil
}

// BatchResult reports the outcome of one ID within a batch operation.
type BatchResult struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// DeleteTasks applies DeleteTask to each ID independently. Failures do
// not roll back earlier successes.
func (m *Manager) DeleteTasks(ctx context.Context, ids []string) []BatchResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]BatchResult, 0, len(ids))
	for _, id := range ids {
		r := BatchResult{ID: id, OK: true}
		if err := m.deleteTaskLocked(ctx, id); err != nil {
			r.OK = false
			r.Error = err.Error()
		}
		results = append(results, r)
	}
	return results
}

// RetryTasks applies RetryTask to each ID independently.
func (m *Manager) RetryTasks(ctx context.Context, ids []string) []BatchResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]BatchResult, 0, len(ids))
	for _, id := range ids {
		r := BatchResult{ID: id, OK: true}
		if _, err := m.retryLocked(ctx, id); err != nil {
			r.OK = false
			r.Error = err.Error()
		}
		results = append(results, r)
	}
	return results
}

// ClearCompleted deletes every terminal task, returning the count.
func (m *Manager) ClearCompleted(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.store.DeleteTerminalBefore(ctx, time.Time{})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.notify(EventTasksCleared, nil)
	}
	return n, nil
}

// PruneTerminalBefore deletes terminal tasks finished before cutoff.
func (m *Manager) PruneTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.store.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.notify(EventTasksCleared, nil)
	}
	return n, nil
}

// Stats holds task counts by status.
type Stats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Paused    int `json:"paused"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Stopped   int `json:"stopped"`
	Total     int `json:"total"`
}

// Stats returns current task counts.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	counts, err := m.store.CountByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}
	s := Stats{
		Pending:   counts[models.StatusPending],
		Running:   counts[models.StatusRunning],
		Paused:    counts[models.StatusPaused],
		Completed: counts[models.StatusCompleted],
		Failed:    counts[models.StatusFailed],
		Cancelled: counts[models.StatusCancelled],
		Stopped:   counts[models.StatusStopped],
	}
	s.Total = s.Pending + s.Running + s.Paused + s.Completed + s.Failed + s.Cancelled + s.Stopped
	return s, nil
}

// RegisterListener subscribes to queue change notifications. Listener
// panics are contained so a misbehaving subscriber cannot break a
// mutation.
func (m *Manager) RegisterListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Manager) notify(event Event, task *models.Task) {
	for _, l := range m.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[genqueue] listener panic on %s: %v", event, r)
				}
			}()
			l(event, task)
		}()
	}
}
