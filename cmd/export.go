/*
Copyright © 2025 The genqueue authors
*/
package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"genqueue/store"
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write all tasks and bookmarks to a snapshot file",
	Long: `Write every task and bookmark to a snapshot file. The format follows
the file extension: .json, .yaml/.yml, or .toml.

Examples:
  genqueue export backup.json
  genqueue export backup.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load tasks and bookmarks from a snapshot file",
	Long: `Load a snapshot written by export. Records whose IDs already exist in
the store are skipped and reported.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	st, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	exporter := store.NewExporter(afero.NewOsFs())
	if err := exporter.Export(cmd.Context(), st, args[0]); err != nil {
		return err
	}
	fmt.Printf("Exported snapshot to %s\n", args[0])
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	st, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	exporter := store.NewExporter(afero.NewOsFs())
	snap, err := exporter.Import(cmd.Context(), st, args[0])
	if snap != nil {
		fmt.Printf("Imported %d tasks and %d bookmarks from %s\n", len(snap.Tasks), len(snap.Bookmarks), args[0])
	}
	if err != nil {
		PrintError(err.Error(), err)
	}
	return nil
}
