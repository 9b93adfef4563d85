package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const defaultDrySteps = 20

// DryRun is an in-process pipeline that produces no artifacts. It walks
// the requested number of sampling steps, honoring the control signal
// at each boundary, and is the default when no real backend is wired
// in. Useful for exercising queue behavior end to end.
type DryRun struct {
	// StepDelay is the simulated cost of one step. Zero means no delay.
	StepDelay time.Duration
}

func (d *DryRun) Run(ctx context.Context, job Job, ctl Control) (Result, error) {
	total := defaultDrySteps
	var hint struct {
		Steps int `json:"steps"`
	}
	if len(job.Params) > 0 {
		if err := json.Unmarshal(job.Params, &hint); err != nil {
			return Result{}, fmt.Errorf("decoding params: %w", err)
		}
		if hint.Steps > 0 {
			total = hint.Steps
		}
	}

	done := job.CompletedSteps
	if done > total {
		done = total
	}
	for done < total {
		if ctl.YieldRequested() {
			return Result{CompletedSteps: done, TotalSteps: total, Interrupted: true}, nil
		}
		select {
		case <-ctx.Done():
			return Result{CompletedSteps: done, TotalSteps: total, Interrupted: true}, nil
		case <-time.After(d.StepDelay):
		}
		done++
	}

	return Result{
		Info:           fmt.Sprintf("dry run: %s, %d steps", job.Kind, total),
		CompletedSteps: total,
		TotalSteps:     total,
	}, nil
}

// StaticLoader tracks the active checkpoint name without loading
// anything. It pairs with DryRun.
type StaticLoader struct {
	active string
}

func (l *StaticLoader) Active() string { return l.active }

func (l *StaticLoader) EnsureActive(ctx context.Context, checkpoint string) error {
	l.active = checkpoint
	return nil
}
