// Package pipeline defines the contracts between the queue engine and
// its external collaborators: the generation pipeline that turns a
// parameter bundle into artifacts, the loader that switches the active
// checkpoint, and the adapter that captures parameters from a front
// end. The engine never interprets the bundles it passes through.
package pipeline

import (
	"context"
	"encoding/json"

	"genqueue/models"
)

// Job is the unit of work handed to the generation pipeline.
type Job struct {
	TaskID     string
	Kind       models.TaskKind
	Params     json.RawMessage
	ScriptArgs json.RawMessage

	// CompletedSteps is a resume hint: a pipeline capable of
	// incremental resume may skip this many finished sub-steps.
	// Pipelines without that capability restart the job and may ignore
	// it.
	CompletedSteps int
}

// Result is what a pipeline run produced.
type Result struct {
	// Artifacts references the outputs written by the pipeline.
	Artifacts []string

	// Info is free-form generation metadata for display.
	Info string

	CompletedSteps int
	TotalSteps     int

	// Interrupted is set when the run ended early at a step boundary
	// because the control signal asked it to yield. The engine decides
	// whether that means paused or stopped.
	Interrupted bool
}

// Control is the cooperative pause/stop signal. A pipeline checks it
// between sub-steps and returns early, with Interrupted set, when yield
// is requested. Cancellation is cooperative, never preemptive: the
// current sub-step always finishes.
type Control interface {
	YieldRequested() bool
}

// Pipeline runs one generation job synchronously. Returning an error
// marks the task failed; the queue keeps advancing either way.
type Pipeline interface {
	Run(ctx context.Context, job Job, ctl Control) (Result, error)
}

// CheckpointLoader switches the active compute resource. EnsureActive
// is invoked before a task whose checkpoint differs from the active
// one; its failure fails the task, never the queue.
type CheckpointLoader interface {
	Active() string
	EnsureActive(ctx context.Context, checkpoint string) error
}

// Captured is a full configuration bundle taken from a front end.
type Captured struct {
	Kind       models.TaskKind
	Params     json.RawMessage
	Checkpoint string
	ScriptArgs json.RawMessage
}

// ParamCapture extracts the configuration of whatever front end
// currently has focus.
type ParamCapture interface {
	Capture(ctx context.Context) (Captured, error)
}
