package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"genqueue/internal/executor"
	"genqueue/internal/pipeline"
	"genqueue/internal/queue"
	"genqueue/models"
	"genqueue/store"
)

type captureStub struct {
	captured pipeline.Captured
	err      error
}

func (c *captureStub) Capture(ctx context.Context) (pipeline.Captured, error) {
	return c.captured, c.err
}

func newTestServer(t *testing.T, capture pipeline.ParamCapture) (*Server, *queue.Manager) {
	t.Helper()
	q := queue.NewManager(store.NewMemoryStore())
	e := executor.New(q, &pipeline.DryRun{}, &pipeline.StaticLoader{}, executor.Options{})
	return New("127.0.0.1:0", q, e, capture), q
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = strings.NewReader(string(data))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeTask(t *testing.T, rec *httptest.ResponseRecorder) models.Task {
	t.Helper()
	var task models.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &task); err != nil {
		t.Fatalf("decode task: %v (body: %s)", err, rec.Body.String())
	}
	return task
}

func TestCreateAndGetTask(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/tasks", map[string]any{
		"kind":     "txt2img",
		"priority": 2,
		"params":   map[string]any{"prompt": "a lighthouse", "steps": 20},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d, body %s", rec.Code, rec.Body.String())
	}
	created := decodeTask(t, rec)
	if created.Status != models.StatusPending || created.Priority != 2 {
		t.Errorf("created = %+v", created)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/tasks/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}
	got := decodeTask(t, rec)
	if got.ID != created.ID {
		t.Errorf("get returned %s", got.ID)
	}
	if !strings.Contains(string(got.Params), "lighthouse") {
		t.Errorf("params lost: %s", got.Params)
	}
}

func TestCreateTaskBadKind(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doRequest(t, s, http.MethodPost, "/api/tasks", map[string]any{"kind": "video"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	var envelope map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil || envelope["error"] == "" {
		t.Errorf("missing error envelope: %s", rec.Body.String())
	}
}

func TestGetTaskNotFound(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doRequest(t, s, http.MethodGet, "/api/tasks/does-not-exist", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestListTasksFilter(t *testing.T) {
	s, q := newTestServer(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := q.AddTask(ctx, models.KindTxt2Img, nil, nil, "", i, fmt.Sprintf("task %d", i)); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	rec := doRequest(t, s, http.MethodGet, "/api/tasks?status=pending", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var resp struct {
		Tasks []models.Task `json:"tasks"`
		Total int           `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 3 || len(resp.Tasks) != 3 {
		t.Errorf("total = %d, tasks = %d", resp.Total, len(resp.Tasks))
	}

	rec = doRequest(t, s, http.MethodGet, "/api/tasks?status=bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus filter: status %d, want 400", rec.Code)
	}
}

func TestDeleteRunningTaskConflict(t *testing.T) {
	s, q := newTestServer(t, nil)
	ctx := context.Background()

	task, err := q.AddTask(ctx, models.KindTxt2Img, nil, nil, "", 0, "")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := q.UpdateStatus(ctx, task.ID, models.StatusRunning, nil); err != nil {
		t.Fatalf("start: %v", err)
	}

	rec := doRequest(t, s, http.MethodDelete, "/api/tasks/"+task.ID, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("delete running: status %d, want 409", rec.Code)
	}
}

func TestRetryEndpoint(t *testing.T) {
	s, q := newTestServer(t, nil)
	ctx := context.Background()

	task, err := q.AddTask(ctx, models.KindTxt2Img, json.RawMessage(`{"prompt":"x"}`), nil, "", 0, "")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	// Not terminal yet.
	rec := doRequest(t, s, http.MethodPost, "/api/tasks/"+task.ID+"/retry", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("retry pending: status %d, want 422", rec.Code)
	}

	if _, err := q.UpdateStatus(ctx, task.ID, models.StatusRunning, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := q.UpdateStatus(ctx, task.ID, models.StatusFailed, &queue.StatusUpdate{Error: "boom"}); err != nil {
		t.Fatalf("fail: %v", err)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/tasks/"+task.ID+"/retry", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("retry: status %d, body %s", rec.Code, rec.Body.String())
	}
	replacement := decodeTask(t, rec)
	if replacement.ID == task.ID || replacement.Status != models.StatusPending {
		t.Errorf("replacement = %+v", replacement)
	}
}

func TestPriorityEndpoint(t *testing.T) {
	s, q := newTestServer(t, nil)

	task, err := q.AddTask(context.Background(), models.KindTxt2Img, nil, nil, "", 5, "")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	rec := doRequest(t, s, http.MethodPost, "/api/tasks/"+task.ID+"/priority", map[string]any{"priority": -3})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decodeTask(t, rec); got.Priority != -3 {
		t.Errorf("priority = %d", got.Priority)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/tasks/"+task.ID+"/priority", map[string]any{"direction": "up"})
	if rec.Code != http.StatusOK {
		t.Fatalf("direction up: status %d", rec.Code)
	}
	if got := decodeTask(t, rec); got.Priority != -4 {
		t.Errorf("priority after up = %d", got.Priority)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/tasks/"+task.ID+"/priority", map[string]any{"direction": "sideways"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad direction: status %d, want 400", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/tasks/"+task.ID+"/priority", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty body: status %d, want 400", rec.Code)
	}
}

func TestBatchEndpoints(t *testing.T) {
	s, q := newTestServer(t, nil)
	ctx := context.Background()

	a, _ := q.AddTask(ctx, models.KindTxt2Img, nil, nil, "", 0, "")
	b, _ := q.AddTask(ctx, models.KindTxt2Img, nil, nil, "", 0, "")
	if _, err := q.UpdateStatus(ctx, b.ID, models.StatusRunning, nil); err != nil {
		t.Fatalf("start: %v", err)
	}

	rec := doRequest(t, s, http.MethodPost, "/api/tasks/batch/delete", map[string]any{"ids": []string{a.ID, b.ID}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var resp struct {
		Results []queue.BatchResult `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 2 || !resp.Results[0].OK || resp.Results[1].OK {
		t.Errorf("results = %+v", resp.Results)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/tasks/batch/delete", map[string]any{"ids": []string{}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty ids: status %d, want 400", rec.Code)
	}
}

func TestQueueControlEndpoints(t *testing.T) {
	s, _ := newTestServer(t, nil)

	// Not started yet: pause and resume are invalid.
	rec := doRequest(t, s, http.MethodPost, "/api/queue/pause", map[string]string{"mode": "after_current_task"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("pause while idle: status %d, want 422", rec.Code)
	}
	rec = doRequest(t, s, http.MethodPost, "/api/queue/resume", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("resume while idle: status %d, want 422", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/queue/pause", map[string]string{"mode": "whenever"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad mode: status %d, want 400", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/queue/start", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start: status %d", rec.Code)
	}
	var status executor.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !status.Running || !status.Buttons.Stop || status.Buttons.Start {
		t.Errorf("status after start = %+v", status)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/queue/pause", map[string]string{"mode": "after_current_task"})
	if rec.Code != http.StatusOK {
		t.Fatalf("pause: status %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !status.Paused || !status.Buttons.Resume {
		t.Errorf("status after pause = %+v", status)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s, q := newTestServer(t, nil)

	if _, err := q.AddTask(context.Background(), models.KindTxt2Img, nil, nil, "", 0, ""); err != nil {
		t.Fatalf("add: %v", err)
	}

	rec := doRequest(t, s, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var status executor.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Stats.Pending != 1 {
		t.Errorf("stats = %+v", status.Stats)
	}
	if status.Running || !status.Buttons.Start {
		t.Errorf("idle buttons = %+v", status.Buttons)
	}
}

func TestBookmarkEndpoints(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/bookmarks", map[string]any{
		"kind":   "txt2img",
		"params": map[string]any{"prompt": "saved"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d, body %s", rec.Code, rec.Body.String())
	}
	var bm models.Bookmark
	if err := json.Unmarshal(rec.Body.Bytes(), &bm); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if bm.Name == "" {
		t.Error("empty name should be auto-generated")
	}

	rec = doRequest(t, s, http.MethodPost, "/api/bookmarks/"+bm.ID+"/queue", map[string]any{"priority": -1})
	if rec.Code != http.StatusCreated {
		t.Fatalf("queue bookmark: status %d, body %s", rec.Code, rec.Body.String())
	}
	task := decodeTask(t, rec)
	if task.Status != models.StatusPending || task.Priority != -1 {
		t.Errorf("queued task = %+v", task)
	}

	rec = doRequest(t, s, http.MethodPut, "/api/bookmarks/"+bm.ID, map[string]any{"name": "portrait preset"})
	if rec.Code != http.StatusOK {
		t.Fatalf("rename: status %d, body %s", rec.Code, rec.Body.String())
	}
	var renamed models.Bookmark
	if err := json.Unmarshal(rec.Body.Bytes(), &renamed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if renamed.Name != "portrait preset" {
		t.Errorf("renamed bookmark = %+v", renamed)
	}
	rec = doRequest(t, s, http.MethodPut, "/api/bookmarks/"+bm.ID, map[string]any{"name": ""})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("rename to empty: status %d, want 400", rec.Code)
	}
	rec = doRequest(t, s, http.MethodPut, "/api/bookmarks/no-such-id", map[string]any{"name": "x"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("rename missing: status %d, want 404", rec.Code)
	}

	rec = doRequest(t, s, http.MethodDelete, "/api/bookmarks/"+bm.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodGet, "/api/bookmarks/"+bm.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get deleted: status %d, want 404", rec.Code)
	}
}

func TestCaptureEndpoint(t *testing.T) {
	// No front end attached.
	s, _ := newTestServer(t, nil)
	rec := doRequest(t, s, http.MethodPost, "/api/tasks/capture", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no capture: status %d, want 503", rec.Code)
	}

	stub := &captureStub{captured: pipeline.Captured{
		Kind:       models.KindImg2Img,
		Params:     json.RawMessage(`{"prompt":"from the ui","steps":30}`),
		Checkpoint: "sd15 [abc]",
	}}
	s, _ = newTestServer(t, stub)
	rec = doRequest(t, s, http.MethodPost, "/api/tasks/capture", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("capture: status %d, body %s", rec.Code, rec.Body.String())
	}
	task := decodeTask(t, rec)
	if task.Kind != models.KindImg2Img || task.Checkpoint != "sd15 [abc]" {
		t.Errorf("captured task = %+v", task)
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doRequest(t, s, http.MethodOptions, "/api/tasks", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight: status %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS headers")
	}
}
