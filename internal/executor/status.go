package executor

import (
	"context"

	"genqueue/internal/queue"
)

// CurrentTask summarizes the task in flight for the status surface.
type CurrentTask struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Kind           string `json:"kind"`
	Checkpoint     string `json:"checkpoint,omitempty"`
	CompletedSteps int    `json:"completed_steps"`
	TotalSteps     int    `json:"total_steps"`
}

// Buttons tells a front end which queue controls to enable. Derived
// deterministically from the executor flags so every client renders
// the same state.
type Buttons struct {
	Start  bool `json:"start"`
	Stop   bool `json:"stop"`
	Pause  bool `json:"pause"`
	Resume bool `json:"resume"`
}

// Status is a point-in-time snapshot of the queue and its worker.
type Status struct {
	Running       bool         `json:"running"`
	Paused        bool         `json:"paused"`
	PauseMode     PauseMode    `json:"pause_mode"`
	StopRequested bool         `json:"stop_requested"`
	Fatal         string       `json:"fatal,omitempty"`
	Current       *CurrentTask `json:"current_task,omitempty"`
	Stats         queue.Stats  `json:"stats"`
	Buttons       Buttons      `json:"buttons"`
}

// Status reads the control flags and queue counts. Pure read, no
// mutation.
func (e *Executor) Status(ctx context.Context) (Status, error) {
	stats, err := e.queue.Stats(ctx)
	if err != nil {
		return Status{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s := Status{
		Running:       e.running,
		Paused:        e.paused,
		PauseMode:     e.pauseMode,
		StopRequested: e.stopRequested,
		Stats:         stats,
		Buttons: Buttons{
			Start:  !e.running,
			Stop:   e.running,
			Pause:  e.running,
			Resume: e.running && e.paused,
		},
	}
	if e.fatal != nil {
		s.Fatal = e.fatal.Error()
	}
	if e.current != nil {
		s.Current = &CurrentTask{
			ID:             e.current.ID,
			Name:           e.current.DisplayName(),
			Kind:           string(e.current.Kind),
			Checkpoint:     e.current.ShortCheckpoint(),
			CompletedSteps: e.current.CompletedSteps,
			TotalSteps:     e.current.TotalSteps,
		}
	}
	return s, nil
}
