package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"genqueue/models"

	bolt "go.etcd.io/bbolt"
)

var (
	taskBucket     = []byte("tasks")
	bookmarkBucket = []byte("bookmarks")
)

// BoltStore is a bbolt-backed TaskStore. Records are stored as JSON
// values keyed by ID; queue ordering is applied on read.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if needed) the database at path and runs
// startup recovery.
func NewBoltStore(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(taskBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bookmarkBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &BoltStore{db: db}
	if err := s.recoverInterrupted(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("startup recovery: %w", err)
	}
	return s, nil
}

func (s *BoltStore) recoverInterrupted() error {
	now := time.Now().UTC()
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(taskBucket)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var task models.Task
			if err := json.Unmarshal(v, &task); err != nil {
				continue
			}
			if task.Status != models.StatusRunning && task.Status != models.StatusPaused {
				continue
			}
			task.Status = models.StatusStopped
			task.Error = RestartInterruption
			task.CompletedAt = &now
			data, err := json.Marshal(&task)
			if err != nil {
				return err
			}
			if err := b.Put(k, data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) InsertTask(ctx context.Context, task models.Task) error {
	return s.putTask(task)
}

func (s *BoltStore) putTask(task models.Task) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(&task)
		if err != nil {
			return err
		}
		return tx.Bucket(taskBucket).Put([]byte(task.ID), data)
	})
}

func (s *BoltStore) GetTask(ctx context.Context, id string) (models.Task, error) {
	var task models.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(taskBucket).Get([]byte(id))
		if data == nil {
			return ErrTaskNotFound
		}
		return json.Unmarshal(data, &task)
	})
	return task, err
}

func (s *BoltStore) ListTasks(ctx context.Context, statuses ...models.TaskStatus) ([]models.Task, error) {
	var tasks []models.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(taskBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var task models.Task
			if err := json.Unmarshal(v, &task); err != nil {
				continue
			}
			if len(statuses) == 0 || statusIn(task.Status, statuses) {
				tasks = append(tasks, task)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortTasks(tasks)
	return tasks, nil
}

func (s *BoltStore) UpdateTask(ctx context.Context, task models.Task) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(taskBucket)
		if b.Get([]byte(task.ID)) == nil {
			return ErrTaskNotFound
		}
		data, err := json.Marshal(&task)
		if err != nil {
			return err
		}
		return b.Put([]byte(task.ID), data)
	})
}

func (s *BoltStore) DeleteTask(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(taskBucket)
		if b.Get([]byte(id)) == nil {
			return ErrTaskNotFound
		}
		return b.Delete([]byte(id))
	})
}

func (s *BoltStore) NextPending(ctx context.Context) (*models.Task, error) {
	var next *models.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(taskBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var task models.Task
			if err := json.Unmarshal(v, &task); err != nil {
				continue
			}
			if task.Status != models.StatusPending {
				continue
			}
			if next == nil || taskBefore(task, *next) {
				t := task
				next = &t
			}
		}
		return nil
	})
	return next, err
}

func (s *BoltStore) CountByStatus(ctx context.Context) (map[models.TaskStatus]int, error) {
	counts := make(map[models.TaskStatus]int)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(taskBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var task models.Task
			if err := json.Unmarshal(v, &task); err != nil {
				continue
			}
			counts[task.Status]++
		}
		return nil
	})
	return counts, err
}

func (s *BoltStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(taskBucket)
		var victims [][]byte
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var task models.Task
			if err := json.Unmarshal(v, &task); err != nil {
				continue
			}
			if !task.Status.IsTerminal() {
				continue
			}
			if !cutoff.IsZero() && (task.CompletedAt == nil || !task.CompletedAt.Before(cutoff)) {
				continue
			}
			key := make([]byte, len(k))
			copy(key, k)
			victims = append(victims, key)
		}
		for _, k := range victims {
			if err := b.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

func (s *BoltStore) InsertBookmark(ctx context.Context, bm models.Bookmark) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(&bm)
		if err != nil {
			return err
		}
		return tx.Bucket(bookmarkBucket).Put([]byte(bm.ID), data)
	})
}

func (s *BoltStore) GetBookmark(ctx context.Context, id string) (models.Bookmark, error) {
	var bm models.Bookmark
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bookmarkBucket).Get([]byte(id))
		if data == nil {
			return ErrBookmarkNotFound
		}
		return json.Unmarshal(data, &bm)
	})
	return bm, err
}

func (s *BoltStore) ListBookmarks(ctx context.Context) ([]models.Bookmark, error) {
	var bookmarks []models.Bookmark
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bookmarkBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var bm models.Bookmark
			if err := json.Unmarshal(v, &bm); err != nil {
				continue
			}
			bookmarks = append(bookmarks, bm)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(bookmarks, func(i, j int) bool {
		return bookmarks[i].CreatedAt.After(bookmarks[j].CreatedAt)
	})
	return bookmarks, nil
}

func (s *BoltStore) UpdateBookmark(ctx context.Context, bm models.Bookmark) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bookmarkBucket)
		if b.Get([]byte(bm.ID)) == nil {
			return ErrBookmarkNotFound
		}
		data, err := json.Marshal(&bm)
		if err != nil {
			return err
		}
		return b.Put([]byte(bm.ID), data)
	})
}

func (s *BoltStore) DeleteBookmark(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bookmarkBucket)
		if b.Get([]byte(id)) == nil {
			return ErrBookmarkNotFound
		}
		return b.Delete([]byte(id))
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
