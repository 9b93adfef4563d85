package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"genqueue/internal/pipeline"
	"genqueue/internal/queue"
	"genqueue/models"
	"genqueue/store"
)

const testTick = 10 * time.Millisecond

func newTestExecutor(t *testing.T, pipe pipeline.Pipeline, loader pipeline.CheckpointLoader, autoStart bool) (*Executor, *queue.Manager, context.CancelFunc) {
	t.Helper()
	if loader == nil {
		loader = &pipeline.StaticLoader{}
	}
	q := queue.NewManager(store.NewMemoryStore())
	e := New(q, pipe, loader, Options{IdleTick: testTick, AutoStart: autoStart})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return e, q, cancel
}

func addTask(t *testing.T, q *queue.Manager, params string) models.Task {
	t.Helper()
	task, err := q.AddTask(context.Background(), models.KindTxt2Img, json.RawMessage(params), nil, "", 0, "")
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	return task
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func taskStatus(t *testing.T, q *queue.Manager, id string) models.TaskStatus {
	t.Helper()
	task, err := q.GetTask(context.Background(), id)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	return task.Status
}

// gatePipeline blocks each run until released, so tests control when a
// task finishes.
type gatePipeline struct {
	gate chan error

	mu   sync.Mutex
	jobs []pipeline.Job
}

func newGatePipeline() *gatePipeline {
	return &gatePipeline{gate: make(chan error)}
}

func (p *gatePipeline) Run(ctx context.Context, job pipeline.Job, ctl pipeline.Control) (pipeline.Result, error) {
	p.mu.Lock()
	p.jobs = append(p.jobs, job)
	p.mu.Unlock()

	select {
	case err := <-p.gate:
		if err != nil {
			return pipeline.Result{}, err
		}
		return pipeline.Result{Artifacts: []string{"out.png"}, CompletedSteps: 20, TotalSteps: 20}, nil
	case <-ctx.Done():
		return pipeline.Result{Interrupted: true}, nil
	}
}

func (p *gatePipeline) jobCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.jobs)
}

func TestExecutorRunsQueueInOrder(t *testing.T) {
	e, q, _ := newTestExecutor(t, &pipeline.DryRun{}, nil, true)

	first := addTask(t, q, `{"prompt":"one","steps":3}`)
	second := addTask(t, q, `{"prompt":"two","steps":3}`)

	waitFor(t, "both tasks to finish", func() bool {
		return taskStatus(t, q, first.ID) == models.StatusCompleted &&
			taskStatus(t, q, second.ID) == models.StatusCompleted
	})

	done, err := q.GetTask(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if done.CompletedSteps != 3 || done.TotalSteps != 3 {
		t.Errorf("progress = %d/%d, want 3/3", done.CompletedSteps, done.TotalSteps)
	}
	if done.StartedAt == nil || done.CompletedAt == nil {
		t.Error("timestamps missing on completed task")
	}

	status, err := e.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Stats.Completed != 2 {
		t.Errorf("stats.completed = %d", status.Stats.Completed)
	}
}

// failPipeline errors on jobs whose prompt contains "boom".
type failPipeline struct{}

func (failPipeline) Run(ctx context.Context, job pipeline.Job, ctl pipeline.Control) (pipeline.Result, error) {
	var bundle struct {
		Prompt string `json:"prompt"`
	}
	_ = json.Unmarshal(job.Params, &bundle)
	if strings.Contains(bundle.Prompt, "boom") {
		return pipeline.Result{CompletedSteps: 4, TotalSteps: 20}, fmt.Errorf("boom")
	}
	return pipeline.Result{Artifacts: []string{"out.png"}, CompletedSteps: 20, TotalSteps: 20}, nil
}

func TestPipelineFailureDoesNotStopQueue(t *testing.T) {
	_, q, _ := newTestExecutor(t, failPipeline{}, nil, true)

	ok1 := addTask(t, q, `{"prompt":"fine"}`)
	bad := addTask(t, q, `{"prompt":"boom"}`)
	ok2 := addTask(t, q, `{"prompt":"also fine"}`)

	waitFor(t, "queue to drain past the failure", func() bool {
		return taskStatus(t, q, ok2.ID) == models.StatusCompleted
	})

	if got := taskStatus(t, q, ok1.ID); got != models.StatusCompleted {
		t.Errorf("first task = %s", got)
	}
	failed, err := q.GetTask(context.Background(), bad.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if failed.Status != models.StatusFailed {
		t.Errorf("failing task = %s, want failed", failed.Status)
	}
	if failed.Error != "boom" {
		t.Errorf("error = %q, want boom", failed.Error)
	}
	if len(failed.Result) != 0 {
		t.Errorf("failed task kept artifacts: %v", failed.Result)
	}
}

func TestPauseAfterCurrentTask(t *testing.T) {
	pipe := newGatePipeline()
	e, q, _ := newTestExecutor(t, pipe, nil, true)

	first := addTask(t, q, `{"prompt":"one"}`)
	second := addTask(t, q, `{"prompt":"two"}`)

	waitFor(t, "first task to start", func() bool {
		return taskStatus(t, q, first.ID) == models.StatusRunning
	})
	if err := e.Pause(PauseAfterCurrentTask); err != nil {
		t.Fatalf("pause: %v", err)
	}

	pipe.gate <- nil
	waitFor(t, "first task to complete", func() bool {
		return taskStatus(t, q, first.ID) == models.StatusCompleted
	})
	waitFor(t, "queue to park", func() bool {
		status, err := e.Status(context.Background())
		return err == nil && status.Paused
	})

	// The pause boundary holds: the second task must not start.
	time.Sleep(5 * testTick)
	if got := taskStatus(t, q, second.ID); got != models.StatusPending {
		t.Fatalf("second task = %s, want pending while paused", got)
	}
	status, err := e.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Buttons.Resume || !status.Buttons.Stop || status.Buttons.Start {
		t.Errorf("paused buttons = %+v", status.Buttons)
	}

	if err := e.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	waitFor(t, "second task to start", func() bool {
		return taskStatus(t, q, second.ID) == models.StatusRunning
	})
	pipe.gate <- nil
	waitFor(t, "second task to complete", func() bool {
		return taskStatus(t, q, second.ID) == models.StatusCompleted
	})
}

func TestPauseAfterCurrentStepAndResume(t *testing.T) {
	e, q, _ := newTestExecutor(t, &pipeline.DryRun{StepDelay: 2 * time.Millisecond}, nil, true)

	task := addTask(t, q, `{"prompt":"long","steps":500}`)
	waitFor(t, "task to start", func() bool {
		return taskStatus(t, q, task.ID) == models.StatusRunning
	})

	if err := e.Pause(PauseAfterCurrentStep); err != nil {
		t.Fatalf("pause: %v", err)
	}
	waitFor(t, "task to park mid-run", func() bool {
		return taskStatus(t, q, task.ID) == models.StatusPaused
	})

	parked, err := q.GetTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if parked.CompletedSteps <= 0 || parked.CompletedSteps >= 500 {
		t.Errorf("partial progress = %d, want mid-run", parked.CompletedSteps)
	}
	if parked.TotalSteps != 500 {
		t.Errorf("total steps = %d", parked.TotalSteps)
	}

	if err := e.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	waitFor(t, "task to finish after resume", func() bool {
		return taskStatus(t, q, task.ID) == models.StatusCompleted
	})
	done, err := q.GetTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if done.CompletedSteps != 500 {
		t.Errorf("final progress = %d, want 500", done.CompletedSteps)
	}
}

func TestStopMarksTaskStopped(t *testing.T) {
	e, q, _ := newTestExecutor(t, &pipeline.DryRun{StepDelay: 2 * time.Millisecond}, nil, true)

	task := addTask(t, q, `{"prompt":"long","steps":500}`)
	waitFor(t, "task to start", func() bool {
		return taskStatus(t, q, task.ID) == models.StatusRunning
	})

	if err := e.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	waitFor(t, "task to stop", func() bool {
		return taskStatus(t, q, task.ID) == models.StatusStopped
	})

	status, err := e.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Running {
		t.Error("executor still running after stop")
	}
	if !status.Buttons.Start || status.Buttons.Stop || status.Buttons.Resume {
		t.Errorf("stopped buttons = %+v", status.Buttons)
	}

	stopped, err := q.GetTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stopped.CompletedSteps <= 0 {
		t.Error("stopped task lost partial progress")
	}
}

// TestStopClosesParkedPausedTask covers stopping a queue that is
// parked with a task in paused status: the task takes the paused to
// stopped edge immediately instead of waiting for a restart.
func TestStopClosesParkedPausedTask(t *testing.T) {
	e, q, _ := newTestExecutor(t, &pipeline.DryRun{StepDelay: 2 * time.Millisecond}, nil, true)

	task := addTask(t, q, `{"prompt":"long","steps":500}`)
	waitFor(t, "task to start", func() bool {
		return taskStatus(t, q, task.ID) == models.StatusRunning
	})

	if err := e.Pause(PauseAfterCurrentStep); err != nil {
		t.Fatalf("pause: %v", err)
	}
	waitFor(t, "queue to park with the task paused", func() bool {
		status, err := e.Status(context.Background())
		return err == nil && status.Paused && status.Current == nil &&
			taskStatus(t, q, task.ID) == models.StatusPaused
	})

	if err := e.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := taskStatus(t, q, task.ID); got != models.StatusStopped {
		t.Fatalf("parked task = %s, want stopped", got)
	}

	stopped, err := q.GetTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stopped.CompletedSteps <= 0 {
		t.Error("stopped task lost partial progress")
	}
	status, err := e.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Running || status.Paused {
		t.Errorf("executor not idle after stop: %+v", status)
	}
}

// TestLoopClaimIsExclusive pins the claim semantics: at most one task
// can be in flight, and a claim is refused once the executor is
// stopped or a one-shot holds the slot.
func TestLoopClaimIsExclusive(t *testing.T) {
	q := queue.NewManager(store.NewMemoryStore())
	e := New(q, newGatePipeline(), &pipeline.StaticLoader{}, Options{IdleTick: testTick, AutoStart: true})

	first := models.Task{ID: "a"}
	second := models.Task{ID: "b"}

	if !e.claim(&first) {
		t.Fatal("claim refused on an idle started executor")
	}
	if e.claim(&second) {
		t.Error("claim succeeded while another task is in flight")
	}

	e.mu.Lock()
	e.current = nil
	e.mu.Unlock()

	if err := e.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if e.claim(&first) {
		t.Error("claim succeeded on a stopped executor")
	}

	e.Start()
	e.mu.Lock()
	e.oneShot = true
	e.mu.Unlock()
	if e.claim(&first) {
		t.Error("claim succeeded while a one-shot is in flight")
	}
}

// TestRunNowDeferredStopStillConflicts covers run-now arriving while a
// stop is pending against a task in flight: the in-flight claim wins
// and the one-shot is refused, so two executions never overlap.
func TestRunNowDeferredStopStillConflicts(t *testing.T) {
	pipe := newGatePipeline()
	e, q, _ := newTestExecutor(t, pipe, nil, true)

	first := addTask(t, q, `{"prompt":"one"}`)
	second := addTask(t, q, `{"prompt":"two"}`)

	waitFor(t, "first task to start", func() bool {
		return taskStatus(t, q, first.ID) == models.StatusRunning
	})
	if err := e.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := e.RunTaskNow(context.Background(), second.ID); !errors.Is(err, queue.ErrConflict) {
		t.Errorf("run now with a task in flight: want ErrConflict, got %v", err)
	}

	pipe.gate <- nil
	waitFor(t, "loop to idle after the deferred stop", func() bool {
		status, err := e.Status(context.Background())
		return err == nil && !status.Running && status.Current == nil
	})

	// Only now can a one-shot take the slot.
	if _, err := e.RunTaskNow(context.Background(), second.ID); err != nil {
		t.Fatalf("run now on idle queue: %v", err)
	}
	waitFor(t, "second task to start", func() bool {
		return taskStatus(t, q, second.ID) == models.StatusRunning
	})
	pipe.gate <- nil
	waitFor(t, "second task to complete", func() bool {
		return taskStatus(t, q, second.ID) == models.StatusCompleted
	})
	if pipe.jobCount() != 2 {
		t.Errorf("pipeline ran %d jobs, want 2", pipe.jobCount())
	}
}

func TestRunTaskNow(t *testing.T) {
	pipe := newGatePipeline()
	e, q, _ := newTestExecutor(t, pipe, nil, false)

	// Queue idle: run-now executes a single task without starting the
	// loop.
	background := addTask(t, q, `{"prompt":"waiting"}`)
	urgent := addTask(t, q, `{"prompt":"urgent"}`)

	if _, err := e.RunTaskNow(context.Background(), urgent.ID); err != nil {
		t.Fatalf("run now: %v", err)
	}
	waitFor(t, "urgent task to start", func() bool {
		return taskStatus(t, q, urgent.ID) == models.StatusRunning
	})

	// Busy: a second run-now conflicts.
	if _, err := e.RunTaskNow(context.Background(), background.ID); !errors.Is(err, queue.ErrConflict) {
		t.Errorf("run now while busy: want ErrConflict, got %v", err)
	}

	pipe.gate <- nil
	waitFor(t, "urgent task to complete", func() bool {
		return taskStatus(t, q, urgent.ID) == models.StatusCompleted
	})

	// The loop never started, so the other task stays queued.
	time.Sleep(5 * testTick)
	if got := taskStatus(t, q, background.ID); got != models.StatusPending {
		t.Errorf("background task = %s, want pending", got)
	}
	if pipe.jobCount() != 1 {
		t.Errorf("pipeline ran %d jobs, want 1", pipe.jobCount())
	}
}

// countingLoader tracks checkpoint switches and fails on demand.
type countingLoader struct {
	mu     sync.Mutex
	active string
	loads  []string
	failOn string
}

func (l *countingLoader) Active() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

func (l *countingLoader) EnsureActive(ctx context.Context, checkpoint string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if checkpoint == l.failOn {
		return fmt.Errorf("checkpoint %s is missing on disk", checkpoint)
	}
	l.loads = append(l.loads, checkpoint)
	l.active = checkpoint
	return nil
}

func TestCheckpointSwitching(t *testing.T) {
	loader := &countingLoader{failOn: "broken [000]"}
	_, q, _ := newTestExecutor(t, &pipeline.DryRun{}, loader, true)

	ctx := context.Background()
	a1, err := q.AddTask(ctx, models.KindTxt2Img, json.RawMessage(`{"steps":2}`), nil, "model-a [111]", 0, "")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	a2, err := q.AddTask(ctx, models.KindTxt2Img, json.RawMessage(`{"steps":2}`), nil, "model-a [111]", 1, "")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	bad, err := q.AddTask(ctx, models.KindTxt2Img, json.RawMessage(`{"steps":2}`), nil, "broken [000]", 2, "")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	waitFor(t, "all tasks to settle", func() bool {
		return taskStatus(t, q, a1.ID) == models.StatusCompleted &&
			taskStatus(t, q, a2.ID) == models.StatusCompleted &&
			taskStatus(t, q, bad.ID) == models.StatusFailed
	})

	loader.mu.Lock()
	loads := len(loader.loads)
	loader.mu.Unlock()
	if loads != 1 {
		t.Errorf("loader invoked %d times, want 1 (second task reuses the active checkpoint)", loads)
	}

	failed, err := q.GetTask(ctx, bad.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !strings.Contains(failed.Error, "loading checkpoint") {
		t.Errorf("error = %q, want checkpoint load failure", failed.Error)
	}
}

func TestOnlyOneTaskRuns(t *testing.T) {
	pipe := newGatePipeline()
	_, q, _ := newTestExecutor(t, pipe, nil, true)

	for i := 0; i < 3; i++ {
		addTask(t, q, fmt.Sprintf(`{"prompt":"task %d"}`, i))
	}

	for finished := 0; finished < 3; finished++ {
		waitFor(t, "a task to start", func() bool {
			running, err := q.ListTasks(context.Background(), models.StatusRunning)
			return err == nil && len(running) == 1
		})
		running, err := q.ListTasks(context.Background(), models.StatusRunning)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(running) != 1 {
			t.Fatalf("%d tasks running at once", len(running))
		}
		pipe.gate <- nil
	}

	waitFor(t, "queue to drain", func() bool {
		stats, err := q.Stats(context.Background())
		return err == nil && stats.Completed == 3
	})
}
