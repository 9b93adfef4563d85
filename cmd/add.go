/*
Copyright © 2025 The genqueue authors
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"genqueue/models"
)

var (
	addKind       string
	addName       string
	addPriority   int
	addCheckpoint string
	addParams     string
	addParamsFile string
	addScriptArgs string
)

// addCmd represents the add command
var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Queue a new generation task",
	Long: `Queue a new generation task with its full parameter bundle.

Parameters are stored verbatim and handed to the pipeline unchanged.
Lower priority runs first; equal priorities run oldest first.

Examples:
  genqueue add --params '{"prompt":"a lighthouse","steps":30}'
  genqueue add --kind img2img --params-file params.json --priority -1
  genqueue add --name "overnight batch" --checkpoint "sd_xl_base [31e35c80]"`,
	RunE: runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringVar(&addKind, "kind", "txt2img", "task kind (txt2img or img2img)")
	addCmd.Flags().StringVar(&addName, "name", "", "optional task label")
	addCmd.Flags().IntVar(&addPriority, "priority", 0, "queue priority, lower runs first")
	addCmd.Flags().StringVar(&addCheckpoint, "checkpoint", "", "model checkpoint to run against")
	addCmd.Flags().StringVar(&addParams, "params", "", "generation parameters as a JSON object")
	addCmd.Flags().StringVar(&addParamsFile, "params-file", "", "read generation parameters from a JSON file")
	addCmd.Flags().StringVar(&addScriptArgs, "script-args", "", "per-extension arguments as JSON")
}

func runAdd(cmd *cobra.Command, args []string) error {
	params, err := readRawFlag(addParams, addParamsFile)
	if err != nil {
		return err
	}
	var scriptArgs json.RawMessage
	if addScriptArgs != "" {
		if !json.Valid([]byte(addScriptArgs)) {
			return fmt.Errorf("--script-args is not valid JSON")
		}
		scriptArgs = json.RawMessage(addScriptArgs)
	}

	q, closeStore, err := openQueue()
	if err != nil {
		return err
	}
	defer closeStore()

	task, err := q.AddTask(cmd.Context(), models.TaskKind(addKind), params, scriptArgs, addCheckpoint, addPriority, addName)
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(task)
	}
	fmt.Printf("Queued %s (%s, priority %d)\n", task.ID, task.DisplayName(), task.Priority)
	return nil
}

// readRawFlag returns the JSON payload from an inline flag or a file,
// validating it without interpreting it.
func readRawFlag(inline, file string) (json.RawMessage, error) {
	if inline != "" && file != "" {
		return nil, fmt.Errorf("--params and --params-file are mutually exclusive")
	}
	var raw []byte
	switch {
	case inline != "":
		raw = []byte(inline)
	case file != "":
		var err error
		raw, err = os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read params file: %w", err)
		}
	default:
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("parameters are not valid JSON")
	}
	return json.RawMessage(raw), nil
}
