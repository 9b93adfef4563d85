// Package executor drives the single background worker. It pulls the
// next eligible task from the queue manager, hands it to the
// generation pipeline, and maps the outcome back onto the task state
// machine. Pause and stop are cooperative: the pipeline yields at step
// boundaries, never mid-step.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"genqueue/internal/pipeline"
	"genqueue/internal/queue"
	"genqueue/models"
)

// PauseMode selects where a pause request takes effect.
type PauseMode string

const (
	PauseNone             PauseMode = "none"
	PauseAfterCurrentStep PauseMode = "after_current_step"
	PauseAfterCurrentTask PauseMode = "after_current_task"
)

// ParsePauseMode validates a pause mode received over the wire. The
// empty string defaults to after_current_task, matching the plain
// pause button.
func ParsePauseMode(s string) (PauseMode, error) {
	switch PauseMode(s) {
	case "":
		return PauseAfterCurrentTask, nil
	case PauseAfterCurrentStep, PauseAfterCurrentTask:
		return PauseMode(s), nil
	default:
		return "", fmt.Errorf("%w: unknown pause mode %q", queue.ErrValidation, s)
	}
}

const defaultIdleTick = 2 * time.Second

// Options tunes the executor loop.
type Options struct {
	// IdleTick bounds how long the loop sleeps between polls when no
	// wake signal arrives. Zero means the default.
	IdleTick time.Duration

	// AutoStart begins consuming tasks as soon as Run is called,
	// without an explicit Start.
	AutoStart bool
}

// Executor owns the worker loop. One mutex guards the control flags;
// pipeline and loader calls happen outside it.
type Executor struct {
	queue  *queue.Manager
	pipe   pipeline.Pipeline
	loader pipeline.CheckpointLoader

	wake     chan struct{}
	idleTick time.Duration

	mu            sync.Mutex
	baseCtx       context.Context
	running       bool
	paused        bool
	pauseMode     PauseMode
	stopRequested bool
	oneShot       bool
	current       *models.Task
	fatal         error
}

func New(q *queue.Manager, pipe pipeline.Pipeline, loader pipeline.CheckpointLoader, opts Options) *Executor {
	if opts.IdleTick <= 0 {
		opts.IdleTick = defaultIdleTick
	}
	e := &Executor{
		queue:     q,
		pipe:      pipe,
		loader:    loader,
		wake:      make(chan struct{}, 1),
		idleTick:  opts.IdleTick,
		running:   opts.AutoStart,
		pauseMode: PauseNone,
	}
	// New pending work should not wait for the idle tick.
	q.RegisterListener(func(event queue.Event, _ *models.Task) {
		switch event {
		case queue.EventTaskAdded, queue.EventTaskReordered:
			e.Wake()
		}
	})
	return e
}

// Wake nudges the loop out of its idle wait. Safe from any goroutine;
// coalesces with a pending signal.
func (e *Executor) Wake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Run is the worker loop. It blocks until ctx is cancelled, consuming
// tasks whenever the executor is started and not paused. Tasks in
// flight at cancellation are recovered as stopped on the next store
// open.
func (e *Executor) Run(ctx context.Context) error {
	e.mu.Lock()
	e.baseCtx = ctx
	e.mu.Unlock()

	ticker := time.NewTicker(e.idleTick)
	defer ticker.Stop()

	for {
		for e.eligible() {
			worked, err := e.runNext(ctx)
			if err != nil {
				e.halt(err)
				break
			}
			if !worked {
				break
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.wake:
		case <-ticker.C:
		}
	}
}

func (e *Executor) eligible() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running && !e.paused && !e.oneShot && e.fatal == nil
}

// runNext claims one task and executes it. It reports whether any work
// was found; a returned error is a store failure and halts the loop.
func (e *Executor) runNext(ctx context.Context) (bool, error) {
	task, err := e.pickNext(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}
	if !e.claim(task) {
		return false, nil
	}
	e.execute(ctx, *task)
	return true, nil
}

// claim marks a task as in flight for the loop. The control flags are
// re-checked under the same lock so a Stop or run-now landing after
// eligible() cannot overlap the claim.
func (e *Executor) claim(task *models.Task) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.paused || e.oneShot || e.fatal != nil || e.current != nil {
		return false
	}
	e.current = task
	return true
}

// pickNext prefers a previously paused task over new pending work so a
// resumed queue finishes what it interrupted first.
func (e *Executor) pickNext(ctx context.Context) (*models.Task, error) {
	paused, err := e.queue.ListTasks(ctx, models.StatusPaused)
	if err != nil {
		return nil, err
	}
	if len(paused) > 0 {
		return &paused[0], nil
	}
	return e.queue.NextPending(ctx)
}

// execute runs one claimed task through the loader and pipeline and
// records the outcome. The caller has already set e.current under the
// lock; execute clears it on return. Pipeline and loader failures mark
// the task failed; only store failures escape as fatal.
func (e *Executor) execute(ctx context.Context, task models.Task) {
	defer func() {
		e.mu.Lock()
		e.current = nil
		e.mu.Unlock()
	}()

	t, err := e.queue.UpdateStatus(ctx, task.ID, models.StatusRunning, nil)
	if err != nil {
		e.reportOrHalt(task.ID, err)
		return
	}

	e.mu.Lock()
	e.current = &t
	e.mu.Unlock()

	if t.Checkpoint != "" && t.Checkpoint != e.loader.Active() {
		if err := e.loader.EnsureActive(ctx, t.Checkpoint); err != nil {
			log.Printf("[genqueue] task %s: checkpoint load failed: %v", t.ID, err)
			e.finish(ctx, t.ID, models.StatusFailed, &queue.StatusUpdate{
				Error: fmt.Sprintf("loading checkpoint %q: %v", t.Checkpoint, err),
			})
			return
		}
	}

	job := pipeline.Job{
		TaskID:         t.ID,
		Kind:           t.Kind,
		Params:         t.Params,
		ScriptArgs:     t.ScriptArgs,
		CompletedSteps: t.CompletedSteps,
	}
	res, err := e.pipe.Run(ctx, job, (*yieldSignal)(e))

	if ctx.Err() != nil {
		// Shutting down. Restart recovery marks the task stopped on
		// the next store open.
		log.Printf("[genqueue] task %s interrupted by shutdown", t.ID)
		return
	}

	upd := &queue.StatusUpdate{
		Result:         res.Artifacts,
		ResultInfo:     res.Info,
		CompletedSteps: res.CompletedSteps,
		TotalSteps:     res.TotalSteps,
	}
	switch {
	case err != nil:
		log.Printf("[genqueue] task %s failed: %v", t.ID, err)
		upd.Result = nil
		upd.Error = err.Error()
		e.finish(ctx, t.ID, models.StatusFailed, upd)
	case res.Interrupted && e.takeStop():
		e.finish(ctx, t.ID, models.StatusStopped, upd)
	case res.Interrupted:
		e.finish(ctx, t.ID, models.StatusPaused, upd)
		e.mu.Lock()
		e.paused = true
		e.pauseMode = PauseNone
		e.mu.Unlock()
	default:
		e.finish(ctx, t.ID, models.StatusCompleted, upd)
		e.afterTask()
	}
}

// takeStop consumes a pending stop request, idling the loop.
func (e *Executor) takeStop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.stopRequested {
		return false
	}
	e.stopRequested = false
	e.running = false
	e.paused = false
	e.pauseMode = PauseNone
	return true
}

// afterTask applies deferred control requests once a task has finished
// normally.
func (e *Executor) afterTask() {
	if e.takeStop() {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pauseMode == PauseAfterCurrentTask {
		e.paused = true
		e.pauseMode = PauseNone
	}
}

func (e *Executor) finish(ctx context.Context, id string, status models.TaskStatus, upd *queue.StatusUpdate) {
	if _, err := e.queue.UpdateStatus(ctx, id, status, upd); err != nil {
		e.reportOrHalt(id, err)
	}
}

// reportOrHalt separates race-y state errors, which only concern the
// one task, from store failures, which halt the loop.
func (e *Executor) reportOrHalt(id string, err error) {
	if errors.Is(err, queue.ErrInvalidTransition) || errors.Is(err, queue.ErrNotFound) {
		log.Printf("[genqueue] task %s skipped: %v", id, err)
		return
	}
	e.halt(err)
}

func (e *Executor) halt(err error) {
	log.Printf("[genqueue] executor halted: %v", err)
	e.mu.Lock()
	e.fatal = err
	e.running = false
	e.mu.Unlock()
}

// yieldSignal adapts the executor's control flags to the pipeline's
// cooperative cancellation check.
type yieldSignal Executor

func (y *yieldSignal) YieldRequested() bool {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.stopRequested || y.pauseMode == PauseAfterCurrentStep
}

// Start begins (or restarts) queue consumption. It clears a recorded
// fatal error so a repaired store can be retried.
func (e *Executor) Start() {
	e.mu.Lock()
	e.running = true
	e.paused = false
	e.stopRequested = false
	e.pauseMode = PauseNone
	e.fatal = nil
	e.mu.Unlock()
	e.Wake()
}

// Stop requests the loop to idle. A task in flight finishes its
// current step, is marked stopped, and keeps its partial results. A
// task parked in paused status is marked stopped as well, taking the
// paused to stopped edge instead of lingering until the next restart.
func (e *Executor) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.current != nil {
		e.stopRequested = true
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.paused = false
	e.pauseMode = PauseNone
	e.mu.Unlock()
	return e.stopParked(ctx)
}

// stopParked closes out tasks a pause left in paused status.
func (e *Executor) stopParked(ctx context.Context) error {
	parked, err := e.queue.ListTasks(ctx, models.StatusPaused)
	if err != nil {
		return err
	}
	for _, t := range parked {
		if _, err := e.queue.UpdateStatus(ctx, t.ID, models.StatusStopped, nil); err != nil {
			if errors.Is(err, queue.ErrInvalidTransition) || errors.Is(err, queue.ErrNotFound) {
				continue
			}
			return err
		}
	}
	return nil
}

// Pause defers consumption at the requested boundary. Only a started
// queue can pause.
func (e *Executor) Pause(mode PauseMode) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return fmt.Errorf("%w: queue is not running", queue.ErrInvalidState)
	}
	if e.current == nil {
		e.paused = true
		e.pauseMode = PauseNone
		return nil
	}
	e.pauseMode = mode
	return nil
}

// Resume lifts a pause. A task parked in paused status is picked up
// before new pending work.
func (e *Executor) Resume() error {
	e.mu.Lock()
	if !e.running || !e.paused {
		e.mu.Unlock()
		return fmt.Errorf("%w: queue is not paused", queue.ErrInvalidState)
	}
	e.paused = false
	e.mu.Unlock()
	e.Wake()
	return nil
}

// RunTaskNow elevates a pending task to the front of the queue. When
// the loop is idle the task runs immediately in a one-shot goroutine;
// otherwise the woken loop picks it first.
func (e *Executor) RunTaskNow(ctx context.Context, id string) (models.Task, error) {
	e.mu.Lock()
	if e.current != nil || e.oneShot {
		e.mu.Unlock()
		return models.Task{}, fmt.Errorf("%w: a task is already in flight", queue.ErrConflict)
	}
	e.mu.Unlock()

	task, err := e.queue.RunNow(ctx, id)
	if err != nil {
		return models.Task{}, err
	}

	// The one-shot decision re-checks current under the same lock that
	// claims it, so a loop iteration racing a concurrent Stop cannot
	// end up executing alongside the one-shot.
	e.mu.Lock()
	if e.current != nil || e.oneShot {
		e.mu.Unlock()
		return models.Task{}, fmt.Errorf("%w: a task is already in flight", queue.ErrConflict)
	}
	if e.running && !e.paused {
		e.mu.Unlock()
		e.Wake()
		return task, nil
	}
	e.oneShot = true
	e.current = &task
	runCtx := e.baseCtx
	e.mu.Unlock()
	if runCtx == nil {
		runCtx = context.Background()
	}

	go func() {
		defer func() {
			e.mu.Lock()
			e.oneShot = false
			e.mu.Unlock()
			e.Wake()
		}()
		e.execute(runCtx, task)
	}()
	return task, nil
}
