/*
Copyright © 2025 The genqueue authors
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete <task-id> [task-id...]",
	Short: "Delete tasks",
	Long: `Delete one or more tasks. A running task cannot be deleted; stop the
queue first or wait for it to finish.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	q, closeStore, err := openQueue()
	if err != nil {
		return err
	}
	defer closeStore()

	results := q.DeleteTasks(cmd.Context(), args)
	if isJSON() {
		return printJSON(results)
	}

	failed := 0
	for _, r := range results {
		if r.OK {
			fmt.Printf("Deleted %s\n", r.ID)
		} else {
			failed++
			PrintError(fmt.Sprintf("Could not delete %s: %s", r.ID, r.Error), nil)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tasks not deleted", failed, len(results))
	}
	return nil
}
