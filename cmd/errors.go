package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// HandleError prints a user-friendly message and exits with status 1.
// If the --verbose flag is set, it prints the full technical error
// instead.
func HandleError(userMsg string, technicalErr error) {
	PrintError(userMsg, technicalErr)
	os.Exit(1)
}

// PrintError prints an error message without exiting, allowing for recovery.
func PrintError(userMsg string, technicalErr error) {
	if viper.GetBool("verbose") && technicalErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", technicalErr)
	} else {
		fmt.Fprintln(os.Stderr, userMsg)
	}
}
