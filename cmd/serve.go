/*
Copyright © 2025 The genqueue authors
*/
package cmd

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"genqueue/internal/executor"
	"genqueue/internal/pipeline"
	"genqueue/internal/server"
)

var serveAutoStart bool

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the queue worker and HTTP API",
	Long: `Start the background worker and the HTTP control surface.

The worker executes queued tasks one at a time in priority order. The
API exposes task management, queue control, and the status surface.
Only one serve process may own a data directory at a time.

Examples:
  genqueue serve                 # API on the configured port, queue idle
  genqueue serve --start         # begin consuming tasks immediately`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveAutoStart, "start", false, "start consuming tasks immediately")
}

func runServe(cmd *cobra.Command, args []string) error {
	q, closeStore, err := openQueue()
	if err != nil {
		return err
	}
	defer closeStore()

	autoStart := serveAutoStart || GlobalConfig.Queue.AutoStart
	exec := executor.New(q, &pipeline.DryRun{StepDelay: 250 * time.Millisecond}, &pipeline.StaticLoader{}, executor.Options{
		IdleTick:  GlobalConfig.Queue.IdleTick,
		AutoStart: autoStart,
	})

	addr := fmt.Sprintf("%s:%d", GlobalConfig.Server.Host, GlobalConfig.Server.Port)
	srv := server.New(addr, q, exec, nil)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cron, err := exec.StartCron(ctx, executor.CronConfig{
		StartSpec: GlobalConfig.Queue.StartCron,
		PruneSpec: GlobalConfig.Queue.PruneCron,
		Retention: GlobalConfig.Queue.Retention,
	})
	if err != nil {
		return err
	}
	if cron != nil {
		defer cron.Stop()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return exec.Run(ctx)
	})
	g.Go(func() error {
		log.Printf("[genqueue] API listening on %s", addr)
		return srv.ListenAndServe()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	log.Printf("[genqueue] shut down")
	return nil
}
