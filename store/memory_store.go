package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"genqueue/models"
)

// MemoryStore is a map-backed TaskStore for tests and ephemeral runs.
// It offers no durability across process restarts.
type MemoryStore struct {
	mu        sync.RWMutex
	tasks     map[string]models.Task
	bookmarks map[string]models.Bookmark
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:     make(map[string]models.Task),
		bookmarks: make(map[string]models.Bookmark),
	}
}

func (s *MemoryStore) InsertTask(ctx context.Context, task models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	return nil
}

func (s *MemoryStore) GetTask(ctx context.Context, id string) (models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return models.Task{}, ErrTaskNotFound
	}
	return task, nil
}

func (s *MemoryStore) ListTasks(ctx context.Context, statuses ...models.TaskStatus) ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tasks []models.Task
	for _, t := range s.tasks {
		if len(statuses) == 0 || statusIn(t.Status, statuses) {
			tasks = append(tasks, t)
		}
	}
	sortTasks(tasks)
	return tasks, nil
}

func (s *MemoryStore) UpdateTask(ctx context.Context, task models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; !ok {
		return ErrTaskNotFound
	}
	s.tasks[task.ID] = task
	return nil
}

func (s *MemoryStore) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *MemoryStore) NextPending(ctx context.Context) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var next *models.Task
	for _, t := range s.tasks {
		if t.Status != models.StatusPending {
			continue
		}
		t := t
		if next == nil || taskBefore(t, *next) {
			next = &t
		}
	}
	return next, nil
}

func (s *MemoryStore) CountByStatus(ctx context.Context) (map[models.TaskStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[models.TaskStatus]int)
	for _, t := range s.tasks {
		counts[t.Status]++
	}
	return counts, nil
}

func (s *MemoryStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, t := range s.tasks {
		if !t.Status.IsTerminal() {
			continue
		}
		if !cutoff.IsZero() && (t.CompletedAt == nil || !t.CompletedAt.Before(cutoff)) {
			continue
		}
		delete(s.tasks, id)
		deleted++
	}
	return deleted, nil
}

func (s *MemoryStore) InsertBookmark(ctx context.Context, b models.Bookmark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookmarks[b.ID] = b
	return nil
}

func (s *MemoryStore) GetBookmark(ctx context.Context, id string) (models.Bookmark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookmarks[id]
	if !ok {
		return models.Bookmark{}, ErrBookmarkNotFound
	}
	return b, nil
}

func (s *MemoryStore) ListBookmarks(ctx context.Context) ([]models.Bookmark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bookmarks []models.Bookmark
	for _, b := range s.bookmarks {
		bookmarks = append(bookmarks, b)
	}
	sort.Slice(bookmarks, func(i, j int) bool {
		return bookmarks[i].CreatedAt.After(bookmarks[j].CreatedAt)
	})
	return bookmarks, nil
}

func (s *MemoryStore) UpdateBookmark(ctx context.Context, b models.Bookmark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookmarks[b.ID]; !ok {
		return ErrBookmarkNotFound
	}
	s.bookmarks[b.ID] = b
	return nil
}

func (s *MemoryStore) DeleteBookmark(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookmarks[id]; !ok {
		return ErrBookmarkNotFound
	}
	delete(s.bookmarks, id)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func statusIn(status models.TaskStatus, set []models.TaskStatus) bool {
	for _, st := range set {
		if st == status {
			return true
		}
	}
	return false
}

// taskBefore orders tasks by (priority, created_at), the queue's total
// order.
func taskBefore(a, b models.Task) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func sortTasks(tasks []models.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		return taskBefore(tasks[i], tasks[j])
	})
}
