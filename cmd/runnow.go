/*
Copyright © 2025 The genqueue authors
*/
package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"genqueue/models"
)

// runNowCmd represents the run-now command
var runNowCmd = &cobra.Command{
	Use:   "run-now <task-id>",
	Short: "Run a pending task ahead of the queue",
	Long: `Move a pending task to the front of the queue and run it immediately.
Fails with a conflict while another task is in flight. Requires a
running serve process.`,
	Args: cobra.ExactArgs(1),
	RunE: runRunNow,
}

func init() {
	rootCmd.AddCommand(runNowCmd)
}

func runRunNow(cmd *cobra.Command, args []string) error {
	var task models.Task
	if err := callAPI(http.MethodPost, "/api/tasks/"+args[0]+"/run-now", nil, &task); err != nil {
		return err
	}
	if isJSON() {
		return printJSON(task)
	}
	fmt.Printf("Running %s (%s)\n", task.ID, task.DisplayName())
	return nil
}
