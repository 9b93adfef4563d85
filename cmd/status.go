/*
Copyright © 2025 The genqueue authors
*/
package cmd

import (
	"net/http"

	"github.com/spf13/cobra"

	"genqueue/internal/executor"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue and worker status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	var status executor.Status
	if err := callAPI(http.MethodGet, "/api/status", nil, &status); err != nil {
		return err
	}
	if isJSON() {
		return printJSON(status)
	}
	printStatus(status)
	return nil
}
