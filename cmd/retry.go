/*
Copyright © 2025 The genqueue authors
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// retryCmd represents the retry command
var retryCmd = &cobra.Command{
	Use:   "retry <task-id> [task-id...]",
	Short: "Requeue finished tasks",
	Long: `Create fresh pending copies of finished tasks. The original task keeps
its outcome and records the ID of the copy; only completed, failed,
cancelled, or stopped tasks can be retried.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRetry,
}

func init() {
	rootCmd.AddCommand(retryCmd)
}

func runRetry(cmd *cobra.Command, args []string) error {
	q, closeStore, err := openQueue()
	if err != nil {
		return err
	}
	defer closeStore()

	if len(args) == 1 {
		task, err := q.RetryTask(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(task)
		}
		fmt.Printf("Requeued %s as %s\n", args[0], task.ID)
		return nil
	}

	results := q.RetryTasks(cmd.Context(), args)
	if isJSON() {
		return printJSON(results)
	}
	failed := 0
	for _, r := range results {
		if r.OK {
			fmt.Printf("Requeued %s\n", r.ID)
		} else {
			failed++
			PrintError(fmt.Sprintf("Could not retry %s: %s", r.ID, r.Error), nil)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tasks not retried", failed, len(results))
	}
	return nil
}
