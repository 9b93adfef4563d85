/*
Copyright © 2025 The genqueue authors
*/
package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"genqueue/internal/executor"
)

var pauseMode string

// queueCmd groups the worker control commands. They talk to a running
// serve process over its API; the data directory lock stays with serve.
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Control the running worker",
	Long: `Control the worker of a running serve process.

Examples:
  genqueue queue start
  genqueue queue pause --mode after_current_step
  genqueue queue resume
  genqueue queue stop`,
}

var queueStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start consuming tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return queueControl("start", nil)
	},
}

var queueStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop after the current step and idle the worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		return queueControl("stop", nil)
	},
}

var queuePauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause at the chosen boundary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return queueControl("pause", map[string]string{"mode": pauseMode})
	},
}

var queueResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		return queueControl("resume", nil)
	},
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueStartCmd, queueStopCmd, queuePauseCmd, queueResumeCmd)
	queuePauseCmd.Flags().StringVar(&pauseMode, "mode", string(executor.PauseAfterCurrentTask), "after_current_step or after_current_task")
}

func queueControl(action string, body any) error {
	var status executor.Status
	if err := callAPI(http.MethodPost, "/api/queue/"+action, body, &status); err != nil {
		return err
	}
	if isJSON() {
		return printJSON(status)
	}
	printStatus(status)
	return nil
}

func printStatus(s executor.Status) {
	state := "idle"
	switch {
	case s.Fatal != "":
		state = "halted: " + s.Fatal
	case s.Running && s.Paused:
		state = "paused"
	case s.Running:
		state = "running"
	}
	fmt.Printf("Queue:    %s\n", state)
	if s.Current != nil {
		fmt.Printf("Current:  %s (%s, %d/%d steps)\n", s.Current.Name, s.Current.ID, s.Current.CompletedSteps, s.Current.TotalSteps)
	}
	fmt.Printf("Tasks:    %d pending, %d running, %d paused\n", s.Stats.Pending, s.Stats.Running, s.Stats.Paused)
	fmt.Printf("Finished: %d completed, %d failed, %d cancelled, %d stopped\n",
		s.Stats.Completed, s.Stats.Failed, s.Stats.Cancelled, s.Stats.Stopped)
}
