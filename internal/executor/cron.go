package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// CronConfig holds the optional schedules. Empty specs disable the
// corresponding job.
type CronConfig struct {
	// StartSpec auto-starts the queue on schedule, e.g. "0 22 * * *"
	// to stage jobs by day and run them overnight.
	StartSpec string

	// PruneSpec runs terminal-task retention on schedule.
	PruneSpec string

	// Retention is how long finished tasks are kept before PruneSpec
	// removes them. Zero keeps them forever even when PruneSpec fires.
	Retention time.Duration
}

// StartCron wires the configured schedules and starts the scheduler.
// The caller owns the returned cron and stops it on shutdown. Returns
// nil when no spec is configured.
func (e *Executor) StartCron(ctx context.Context, cfg CronConfig) (*cron.Cron, error) {
	if cfg.StartSpec == "" && cfg.PruneSpec == "" {
		return nil, nil
	}

	c := cron.New()
	if cfg.StartSpec != "" {
		if _, err := c.AddFunc(cfg.StartSpec, func() {
			log.Printf("[genqueue] scheduled queue start")
			e.Start()
		}); err != nil {
			return nil, fmt.Errorf("invalid start schedule %q: %w", cfg.StartSpec, err)
		}
	}
	if cfg.PruneSpec != "" && cfg.Retention > 0 {
		if _, err := c.AddFunc(cfg.PruneSpec, func() {
			cutoff := time.Now().Add(-cfg.Retention)
			n, err := e.queue.PruneTerminalBefore(ctx, cutoff)
			if err != nil {
				log.Printf("[genqueue] retention prune failed: %v", err)
				return
			}
			if n > 0 {
				log.Printf("[genqueue] pruned %d finished tasks older than %s", n, cfg.Retention)
			}
		}); err != nil {
			return nil, fmt.Errorf("invalid prune schedule %q: %w", cfg.PruneSpec, err)
		}
	}
	c.Start()
	return c, nil
}
