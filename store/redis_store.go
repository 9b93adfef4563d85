package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"genqueue/models"

	"github.com/go-redis/redis/v8"
)

const (
	redisTaskPrefix     = "genqueue:task:"
	redisBookmarkPrefix = "genqueue:bookmark:"
)

// RedisStore keeps records as JSON blobs under a key prefix, for
// deployments that already run redis. Queue ordering is applied in
// memory after a prefix scan, which is fine at interactive queue sizes.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to redis and runs startup recovery.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	s := &RedisStore{client: client}
	if err := s.recoverInterrupted(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("startup recovery: %w", err)
	}
	return s, nil
}

func (s *RedisStore) recoverInterrupted(ctx context.Context) error {
	tasks, err := s.scanTasks(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, task := range tasks {
		if task.Status != models.StatusRunning && task.Status != models.StatusPaused {
			continue
		}
		task.Status = models.StatusStopped
		task.Error = RestartInterruption
		task.CompletedAt = &now
		if err := s.putTask(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisStore) putTask(ctx context.Context, task models.Task) error {
	data, err := json.Marshal(&task)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisTaskPrefix+task.ID, data, 0).Err()
}

func (s *RedisStore) scanTasks(ctx context.Context) ([]models.Task, error) {
	var tasks []models.Task
	iter := s.client.Scan(ctx, 0, redisTaskPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, err
		}
		var task models.Task
		if err := json.Unmarshal(data, &task); err != nil {
			continue
		}
		tasks = append(tasks, task)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *RedisStore) InsertTask(ctx context.Context, task models.Task) error {
	return s.putTask(ctx, task)
}

func (s *RedisStore) GetTask(ctx context.Context, id string) (models.Task, error) {
	data, err := s.client.Get(ctx, redisTaskPrefix+id).Bytes()
	if err == redis.Nil {
		return models.Task{}, ErrTaskNotFound
	}
	if err != nil {
		return models.Task{}, err
	}
	var task models.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return models.Task{}, err
	}
	return task, nil
}

func (s *RedisStore) ListTasks(ctx context.Context, statuses ...models.TaskStatus) ([]models.Task, error) {
	all, err := s.scanTasks(ctx)
	if err != nil {
		return nil, err
	}
	var tasks []models.Task
	for _, t := range all {
		if len(statuses) == 0 || statusIn(t.Status, statuses) {
			tasks = append(tasks, t)
		}
	}
	sortTasks(tasks)
	return tasks, nil
}

func (s *RedisStore) UpdateTask(ctx context.Context, task models.Task) error {
	exists, err := s.client.Exists(ctx, redisTaskPrefix+task.ID).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrTaskNotFound
	}
	return s.putTask(ctx, task)
}

func (s *RedisStore) DeleteTask(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, redisTaskPrefix+id).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *RedisStore) NextPending(ctx context.Context) (*models.Task, error) {
	tasks, err := s.ListTasks(ctx, models.StatusPending)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return &tasks[0], nil
}

func (s *RedisStore) CountByStatus(ctx context.Context) (map[models.TaskStatus]int, error) {
	tasks, err := s.scanTasks(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[models.TaskStatus]int)
	for _, t := range tasks {
		counts[t.Status]++
	}
	return counts, nil
}

func (s *RedisStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tasks, err := s.scanTasks(ctx)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, t := range tasks {
		if !t.Status.IsTerminal() {
			continue
		}
		if !cutoff.IsZero() && (t.CompletedAt == nil || !t.CompletedAt.Before(cutoff)) {
			continue
		}
		if err := s.client.Del(ctx, redisTaskPrefix+t.ID).Err(); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func (s *RedisStore) InsertBookmark(ctx context.Context, b models.Bookmark) error {
	data, err := json.Marshal(&b)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisBookmarkPrefix+b.ID, data, 0).Err()
}

func (s *RedisStore) GetBookmark(ctx context.Context, id string) (models.Bookmark, error) {
	data, err := s.client.Get(ctx, redisBookmarkPrefix+id).Bytes()
	if err == redis.Nil {
		return models.Bookmark{}, ErrBookmarkNotFound
	}
	if err != nil {
		return models.Bookmark{}, err
	}
	var b models.Bookmark
	if err := json.Unmarshal(data, &b); err != nil {
		return models.Bookmark{}, err
	}
	return b, nil
}

func (s *RedisStore) ListBookmarks(ctx context.Context) ([]models.Bookmark, error) {
	var bookmarks []models.Bookmark
	iter := s.client.Scan(ctx, 0, redisBookmarkPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, err
		}
		var b models.Bookmark
		if err := json.Unmarshal(data, &b); err != nil {
			continue
		}
		bookmarks = append(bookmarks, b)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Slice(bookmarks, func(i, j int) bool {
		return bookmarks[i].CreatedAt.After(bookmarks[j].CreatedAt)
	})
	return bookmarks, nil
}

func (s *RedisStore) UpdateBookmark(ctx context.Context, b models.Bookmark) error {
	exists, err := s.client.Exists(ctx, redisBookmarkPrefix+b.ID).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrBookmarkNotFound
	}
	return s.InsertBookmark(ctx, b)
}

func (s *RedisStore) DeleteBookmark(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, redisBookmarkPrefix+id).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrBookmarkNotFound
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
