/*
Copyright © 2025 The genqueue authors
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"genqueue/models"
)

var (
	reorderPriority int
	reorderUp       bool
	reorderDown     bool
)

// reorderCmd represents the reorder command
var reorderCmd = &cobra.Command{
	Use:   "reorder <task-id>",
	Short: "Change a pending task's queue position",
	Long: `Change where a pending task sits in the queue. Lower priority runs
first.

Examples:
  genqueue reorder <id> --priority -5
  genqueue reorder <id> --up
  genqueue reorder <id> --down`,
	Args: cobra.ExactArgs(1),
	RunE: runReorder,
}

func init() {
	rootCmd.AddCommand(reorderCmd)
	reorderCmd.Flags().IntVar(&reorderPriority, "priority", 0, "absolute priority")
	reorderCmd.Flags().BoolVar(&reorderUp, "up", false, "move one band earlier")
	reorderCmd.Flags().BoolVar(&reorderDown, "down", false, "move one band later")
}

func runReorder(cmd *cobra.Command, args []string) error {
	if reorderUp && reorderDown {
		return fmt.Errorf("--up and --down are mutually exclusive")
	}
	if !reorderUp && !reorderDown && !cmd.Flags().Changed("priority") {
		return fmt.Errorf("one of --priority, --up, or --down is required")
	}

	q, closeStore, err := openQueue()
	if err != nil {
		return err
	}
	defer closeStore()

	var task models.Task
	switch {
	case reorderUp:
		task, err = q.MoveTaskUp(cmd.Context(), args[0])
	case reorderDown:
		task, err = q.MoveTaskDown(cmd.Context(), args[0])
	default:
		task, err = q.ReorderTask(cmd.Context(), args[0], reorderPriority)
	}
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(task)
	}
	fmt.Printf("Task %s now has priority %d\n", task.ID, task.Priority)
	return nil
}
