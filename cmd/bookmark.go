/*
Copyright © 2025 The genqueue authors
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"genqueue/models"
)

var (
	bookmarkKind       string
	bookmarkCheckpoint string
	bookmarkParams     string
	bookmarkParamsFile string
	bookmarkScriptArgs string
	bookmarkPriority   int
)

// bookmarkCmd groups the saved-configuration commands.
var bookmarkCmd = &cobra.Command{
	Use:     "bookmark",
	Aliases: []string{"bm"},
	Short:   "Manage saved task configurations",
	Long: `Bookmarks are saved parameter bundles. They never execute directly;
queue one to create a fresh pending task from it.

Examples:
  genqueue bookmark add portrait --params-file portrait.json
  genqueue bookmark list
  genqueue bookmark queue <bookmark-id> --priority -1`,
}

var bookmarkAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Save a configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBookmarkAdd,
}

var bookmarkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bookmarks, newest first",
	RunE:  runBookmarkList,
}

var bookmarkRenameCmd = &cobra.Command{
	Use:   "rename <bookmark-id> <name>",
	Short: "Rename a bookmark",
	Args:  cobra.ExactArgs(2),
	RunE:  runBookmarkRename,
}

var bookmarkDeleteCmd = &cobra.Command{
	Use:   "delete <bookmark-id>",
	Short: "Delete a bookmark",
	Args:  cobra.ExactArgs(1),
	RunE:  runBookmarkDelete,
}

var bookmarkQueueCmd = &cobra.Command{
	Use:   "queue <bookmark-id>",
	Short: "Queue a task from a bookmark",
	Args:  cobra.ExactArgs(1),
	RunE:  runBookmarkQueue,
}

func init() {
	rootCmd.AddCommand(bookmarkCmd)
	bookmarkCmd.AddCommand(bookmarkAddCmd, bookmarkListCmd, bookmarkRenameCmd, bookmarkDeleteCmd, bookmarkQueueCmd)

	bookmarkAddCmd.Flags().StringVar(&bookmarkKind, "kind", "txt2img", "task kind (txt2img or img2img)")
	bookmarkAddCmd.Flags().StringVar(&bookmarkCheckpoint, "checkpoint", "", "model checkpoint")
	bookmarkAddCmd.Flags().StringVar(&bookmarkParams, "params", "", "generation parameters as a JSON object")
	bookmarkAddCmd.Flags().StringVar(&bookmarkParamsFile, "params-file", "", "read generation parameters from a JSON file")
	bookmarkAddCmd.Flags().StringVar(&bookmarkScriptArgs, "script-args", "", "per-extension arguments as JSON")

	bookmarkQueueCmd.Flags().IntVar(&bookmarkPriority, "priority", 0, "priority for the queued task")
}

func runBookmarkAdd(cmd *cobra.Command, args []string) error {
	var name string
	if len(args) > 0 {
		name = args[0]
	}
	params, err := readRawFlag(bookmarkParams, bookmarkParamsFile)
	if err != nil {
		return err
	}
	var scriptArgs json.RawMessage
	if bookmarkScriptArgs != "" {
		if !json.Valid([]byte(bookmarkScriptArgs)) {
			return fmt.Errorf("--script-args is not valid JSON")
		}
		scriptArgs = json.RawMessage(bookmarkScriptArgs)
	}

	q, closeStore, err := openQueue()
	if err != nil {
		return err
	}
	defer closeStore()

	bm, err := q.CreateBookmark(cmd.Context(), name, models.TaskKind(bookmarkKind), params, scriptArgs, bookmarkCheckpoint)
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(bm)
	}
	fmt.Printf("Saved bookmark %s (%s)\n", bm.ID, bm.Name)
	return nil
}

func runBookmarkList(cmd *cobra.Command, args []string) error {
	q, closeStore, err := openQueue()
	if err != nil {
		return err
	}
	defer closeStore()

	bms, err := q.ListBookmarks(cmd.Context())
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(bms)
	}
	if len(bms) == 0 {
		fmt.Println("No bookmarks saved.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tKIND\tCHECKPOINT\tCREATED")
	for _, bm := range bms {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			shortID(bm.ID), bm.Name, bm.Kind, bm.Checkpoint,
			bm.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runBookmarkRename(cmd *cobra.Command, args []string) error {
	q, closeStore, err := openQueue()
	if err != nil {
		return err
	}
	defer closeStore()

	bm, err := q.RenameBookmark(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(bm)
	}
	fmt.Printf("Renamed bookmark %s to %s\n", shortID(bm.ID), bm.Name)
	return nil
}

func runBookmarkDelete(cmd *cobra.Command, args []string) error {
	q, closeStore, err := openQueue()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := q.DeleteBookmark(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted bookmark %s\n", args[0])
	return nil
}

func runBookmarkQueue(cmd *cobra.Command, args []string) error {
	q, closeStore, err := openQueue()
	if err != nil {
		return err
	}
	defer closeStore()

	task, err := q.AddTaskFromBookmark(cmd.Context(), args[0], bookmarkPriority)
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(task)
	}
	fmt.Printf("Queued %s from bookmark (priority %d)\n", task.ID, task.Priority)
	return nil
}
