/*
Copyright © 2025 The genqueue authors
*/
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"genqueue/models"
)

var listStatus string

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued tasks",
	Long: `List tasks in queue order: lower priority first, oldest first within
a priority.

Examples:
  genqueue list                          # everything
  genqueue list --status pending         # waiting tasks only
  genqueue list --status failed,stopped  # what needs attention`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listStatus, "status", "", "comma-separated status filter")
}

func runList(cmd *cobra.Command, args []string) error {
	var statuses []models.TaskStatus
	if listStatus != "" {
		for _, part := range strings.Split(listStatus, ",") {
			statuses = append(statuses, models.TaskStatus(strings.TrimSpace(part)))
		}
	}

	q, closeStore, err := openQueue()
	if err != nil {
		return err
	}
	defer closeStore()

	tasks, err := q.ListTasks(cmd.Context(), statuses...)
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(tasks)
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}
	printTaskTable(tasks)
	return nil
}
