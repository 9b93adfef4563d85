/*
Copyright © 2025 The genqueue authors
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// cancelCmd represents the cancel command
var cancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a pending task",
	Long: `Cancel a task that has not started yet. The task stays in the store as
cancelled; use delete to remove it entirely.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	q, closeStore, err := openQueue()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := q.CancelTask(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Cancelled %s\n", args[0])
	return nil
}
