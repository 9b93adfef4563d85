package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"genqueue/models"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the default TaskStore backend, a single-file database
// with an index on (status, priority, created_at) for queue queries.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and
// runs startup recovery. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if err := s.recoverInterrupted(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("startup recovery: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		priority INTEGER NOT NULL DEFAULT 0,
		name TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT,
		params BLOB,
		checkpoint TEXT NOT NULL DEFAULT '',
		script_args BLOB,
		result TEXT,
		result_info TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		requeued_task_id TEXT NOT NULL DEFAULT '',
		completed_steps INTEGER NOT NULL DEFAULT 0,
		total_steps INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status_priority
		ON tasks (status, priority, created_at);

	CREATE TABLE IF NOT EXISTS bookmarks (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		params BLOB,
		checkpoint TEXT NOT NULL DEFAULT '',
		script_args BLOB,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bookmarks_created
		ON bookmarks (created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// recoverInterrupted reclassifies tasks a previous process left in
// flight. The executor must never resume a task it did not itself
// transition into running.
func (s *SQLiteStore) recoverInterrupted() error {
	now := formatTime(time.Now())
	_, err := s.db.Exec(
		`UPDATE tasks SET status = ?, error = ?, completed_at = ?
		 WHERE status IN (?, ?)`,
		string(models.StatusStopped), RestartInterruption, now,
		string(models.StatusRunning), string(models.StatusPaused),
	)
	return err
}

const taskColumns = `id, kind, status, priority, name, created_at, started_at, completed_at,
	params, checkpoint, script_args, result, result_info, error,
	requeued_task_id, completed_steps, total_steps`

func (s *SQLiteStore) InsertTask(ctx context.Context, task models.Task) error {
	result, err := json.Marshal(task.Result)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, string(task.Kind), string(task.Status), task.Priority, task.Name,
		formatTime(task.CreatedAt), formatTimePtr(task.StartedAt), formatTimePtr(task.CompletedAt),
		[]byte(task.Params), task.Checkpoint, []byte(task.ScriptArgs), string(result),
		task.ResultInfo, task.Error, task.RequeuedTaskID, task.CompletedSteps, task.TotalSteps,
	)
	return err
}

func (s *SQLiteStore) GetTask(ctx context.Context, id string) (models.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return models.Task{}, ErrTaskNotFound
	}
	return task, err
}

func (s *SQLiteStore) ListTasks(ctx context.Context, statuses ...models.TaskStatus) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (?` + strings.Repeat(",?", len(statuses)-1) + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY priority ASC, created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (s *SQLiteStore) UpdateTask(ctx context.Context, task models.Task) error {
	result, err := json.Marshal(task.Result)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET kind = ?, status = ?, priority = ?, name = ?,
			created_at = ?, started_at = ?, completed_at = ?,
			params = ?, checkpoint = ?, script_args = ?, result = ?,
			result_info = ?, error = ?, requeued_task_id = ?,
			completed_steps = ?, total_steps = ?
		 WHERE id = ?`,
		string(task.Kind), string(task.Status), task.Priority, task.Name,
		formatTime(task.CreatedAt), formatTimePtr(task.StartedAt), formatTimePtr(task.CompletedAt),
		[]byte(task.Params), task.Checkpoint, []byte(task.ScriptArgs), string(result),
		task.ResultInfo, task.Error, task.RequeuedTaskID, task.CompletedSteps, task.TotalSteps,
		task.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *SQLiteStore) NextPending(ctx context.Context) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE status = ?
		 ORDER BY priority ASC, created_at ASC
		 LIMIT 1`, string(models.StatusPending))
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[models.TaskStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.TaskStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[models.TaskStatus(status)] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query := `DELETE FROM tasks WHERE status IN (?, ?, ?, ?)`
	args := []any{
		string(models.StatusCompleted), string(models.StatusFailed),
		string(models.StatusCancelled), string(models.StatusStopped),
	}
	if !cutoff.IsZero() {
		query += ` AND completed_at < ?`
		args = append(args, formatTime(cutoff))
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) InsertBookmark(ctx context.Context, b models.Bookmark) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bookmarks (id, name, kind, params, checkpoint, script_args, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, string(b.Kind), []byte(b.Params), b.Checkpoint, []byte(b.ScriptArgs),
		formatTime(b.CreatedAt),
	)
	return err
}

func (s *SQLiteStore) GetBookmark(ctx context.Context, id string) (models.Bookmark, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, kind, params, checkpoint, script_args, created_at
		 FROM bookmarks WHERE id = ?`, id)
	b, err := scanBookmark(row)
	if err == sql.ErrNoRows {
		return models.Bookmark{}, ErrBookmarkNotFound
	}
	return b, err
}

func (s *SQLiteStore) ListBookmarks(ctx context.Context) ([]models.Bookmark, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, kind, params, checkpoint, script_args, created_at
		 FROM bookmarks ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookmarks []models.Bookmark
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, err
		}
		bookmarks = append(bookmarks, b)
	}
	return bookmarks, rows.Err()
}

func (s *SQLiteStore) UpdateBookmark(ctx context.Context, b models.Bookmark) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bookmarks SET name = ?, kind = ?, params = ?, checkpoint = ?, script_args = ?,
			created_at = ?
		 WHERE id = ?`,
		b.Name, string(b.Kind), []byte(b.Params), b.Checkpoint, []byte(b.ScriptArgs),
		formatTime(b.CreatedAt), b.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrBookmarkNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteBookmark(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrBookmarkNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (models.Task, error) {
	var t models.Task
	var kind, status string
	var createdAt string
	var startedAt, completedAt sql.NullString
	var params, scriptArgs []byte
	var result sql.NullString

	err := row.Scan(
		&t.ID, &kind, &status, &t.Priority, &t.Name,
		&createdAt, &startedAt, &completedAt,
		&params, &t.Checkpoint, &scriptArgs, &result,
		&t.ResultInfo, &t.Error, &t.RequeuedTaskID, &t.CompletedSteps, &t.TotalSteps,
	)
	if err != nil {
		return models.Task{}, err
	}

	t.Kind = models.TaskKind(kind)
	t.Status = models.TaskStatus(status)
	t.Params = json.RawMessage(params)
	t.ScriptArgs = json.RawMessage(scriptArgs)
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return models.Task{}, err
	}
	if t.StartedAt, err = parseTimePtr(startedAt); err != nil {
		return models.Task{}, err
	}
	if t.CompletedAt, err = parseTimePtr(completedAt); err != nil {
		return models.Task{}, err
	}
	if result.Valid && result.String != "" && result.String != "null" {
		if err := json.Unmarshal([]byte(result.String), &t.Result); err != nil {
			return models.Task{}, fmt.Errorf("decode task result: %w", err)
		}
	}
	return t, nil
}

func scanBookmark(row rowScanner) (models.Bookmark, error) {
	var b models.Bookmark
	var kind, createdAt string
	var params, scriptArgs []byte

	err := row.Scan(&b.ID, &b.Name, &kind, &params, &b.Checkpoint, &scriptArgs, &createdAt)
	if err != nil {
		return models.Bookmark{}, err
	}
	b.Kind = models.TaskKind(kind)
	b.Params = json.RawMessage(params)
	b.ScriptArgs = json.RawMessage(scriptArgs)
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return models.Bookmark{}, err
	}
	return b, nil
}

// sqliteTimeLayout is fixed width so stored timestamps sort
// lexicographically in creation order. RFC3339Nano trims trailing
// fractional zeros and would break ORDER BY created_at.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
