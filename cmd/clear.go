/*
Copyright © 2025 The genqueue authors
*/
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var clearOlderThan time.Duration

// clearCmd represents the clear command
var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove finished tasks",
	Long: `Remove finished tasks (completed, failed, cancelled, stopped) from the
store. Pending, running, and paused tasks are never touched.

Examples:
  genqueue clear                   # every finished task
  genqueue clear --older-than 72h  # only finished tasks older than 3 days`,
	RunE: runClear,
}

func init() {
	rootCmd.AddCommand(clearCmd)
	clearCmd.Flags().DurationVar(&clearOlderThan, "older-than", 0, "only remove tasks finished longer ago than this")
}

func runClear(cmd *cobra.Command, args []string) error {
	q, closeStore, err := openQueue()
	if err != nil {
		return err
	}
	defer closeStore()

	var n int
	if clearOlderThan > 0 {
		n, err = q.PruneTerminalBefore(cmd.Context(), time.Now().Add(-clearOlderThan))
	} else {
		n, err = q.ClearCompleted(cmd.Context())
	}
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(map[string]int{"cleared": n})
	}
	fmt.Printf("Cleared %d finished tasks.\n", n)
	return nil
}
