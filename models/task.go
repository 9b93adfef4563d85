package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// TaskStatus represents the lifecycle state of a queued task.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusPaused    TaskStatus = "paused"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
	StatusStopped   TaskStatus = "stopped"
)

func (s TaskStatus) String() string {
	return string(s)
}

// AllStatuses lists every task status, in display order.
var AllStatuses = []TaskStatus{
	StatusPending,
	StatusRunning,
	StatusPaused,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
	StatusStopped,
}

// IsTerminal reports whether no further automatic transition occurs
// from this status. Terminal tasks are immutable apart from the
// requeued-task lineage edge set by retry.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusStopped:
		return true
	}
	return false
}

// TaskKind identifies the generation job type a task carries.
type TaskKind string

const (
	KindTxt2Img TaskKind = "txt2img"
	KindImg2Img TaskKind = "img2img"
)

func (k TaskKind) String() string {
	return string(k)
}

// ValidKind reports whether k is a recognized job kind.
func ValidKind(k TaskKind) bool {
	return k == KindTxt2Img || k == KindImg2Img
}

// Transition is one legal edge of the task state machine.
type Transition struct {
	From TaskStatus
	To   TaskStatus
}

// ValidTransitions is the full task state machine. Retry is not an edge
// here: it creates a new pending task instead of moving a terminal one.
var ValidTransitions = []Transition{
	{From: StatusPending, To: StatusRunning},
	{From: StatusPending, To: StatusCancelled},
	{From: StatusRunning, To: StatusCompleted},
	{From: StatusRunning, To: StatusFailed},
	{From: StatusRunning, To: StatusCancelled},
	{From: StatusRunning, To: StatusStopped},
	{From: StatusRunning, To: StatusPaused},
	{From: StatusPaused, To: StatusRunning},
	{From: StatusPaused, To: StatusStopped},
}

// IsValidTransition reports whether moving a task from one status to
// another is a legal edge of the state machine.
func IsValidTransition(from, to TaskStatus) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// Task represents one queued generation job with its captured
// parameters. Params and ScriptArgs are opaque to the engine: they are
// stored and handed to the generation pipeline verbatim.
type Task struct {
	ID     string     `json:"id" validate:"required,uuid4"`
	Kind   TaskKind   `json:"kind" validate:"required,oneof=txt2img img2img"`
	Status TaskStatus `json:"status" validate:"required,oneof=pending running paused completed failed cancelled stopped"`

	// Priority orders the queue; lower runs first, ties broken by
	// creation time.
	Priority int `json:"priority"`

	// Name is an optional user-facing label.
	Name string `json:"name,omitempty"`

	CreatedAt   time.Time  `json:"createdAt" validate:"required"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	// Params is the full generation configuration captured at enqueue
	// time.
	Params json.RawMessage `json:"params,omitempty"`

	// Checkpoint names the model weights the task was queued against.
	Checkpoint string `json:"checkpoint,omitempty"`

	// ScriptArgs carries per-extension argument lists, round-tripped
	// without interpretation.
	ScriptArgs json.RawMessage `json:"scriptArgs,omitempty"`

	Result     []string `json:"result,omitempty"`
	ResultInfo string   `json:"resultInfo,omitempty"`
	Error      string   `json:"error,omitempty"`

	// RequeuedTaskID points at the pending task a retry created from
	// this one.
	RequeuedTaskID string `json:"requeuedTaskId,omitempty"`

	// CompletedSteps and TotalSteps record incremental progress for a
	// task paused mid-run, so a capable pipeline can resume without
	// redoing finished work.
	CompletedSteps int `json:"completedSteps,omitempty"`
	TotalSteps     int `json:"totalSteps,omitempty"`
}

const displayPromptLimit = 50

// DisplayName returns a user-facing label for the task: the explicit
// name when set, otherwise the kind plus a truncated prompt pulled from
// the parameter bundle.
func (t *Task) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	var bundle struct {
		Prompt string `json:"prompt"`
	}
	if len(t.Params) > 0 {
		_ = json.Unmarshal(t.Params, &bundle)
	}
	if bundle.Prompt == "" {
		return fmt.Sprintf("%s task", t.Kind)
	}
	if len(bundle.Prompt) > displayPromptLimit {
		return fmt.Sprintf("%s: %s...", t.Kind, bundle.Prompt[:displayPromptLimit-3])
	}
	return fmt.Sprintf("%s: %s", t.Kind, bundle.Prompt)
}

// ShortCheckpoint strips the trailing " [hash]" suffix checkpoint names
// often carry, for display.
func (t *Task) ShortCheckpoint() string {
	if t.Checkpoint == "" {
		return "unknown"
	}
	name, _, _ := strings.Cut(t.Checkpoint, " [")
	return name
}

// global validator instance
var validate = validator.New()

// ValidateStruct performs validation on any struct carrying validation tags.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	var msgs []string
	for _, e := range validationErrors {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed rule '%s' (value: '%v')", e.StructNamespace(), e.Tag(), e.Value()))
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
