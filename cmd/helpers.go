package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/viper"

	"genqueue/internal/queue"
	"genqueue/models"
	"genqueue/store"
)

// openQueue opens the configured store behind the data-directory lock
// and wraps it in a queue manager. The returned closer releases both.
func openQueue() (*queue.Manager, func(), error) {
	st, closer, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	return queue.NewManager(st), closer, nil
}

// openStore opens the configured backend directly. File-backed drivers
// take the data-directory lock first.
func openStore() (store.TaskStore, func(), error) {
	cfg := GlobalConfig.StoreConfig()

	var lock *store.DirLock
	if cfg.Driver != store.DriverRedis && cfg.Driver != store.DriverMemory {
		var err error
		lock, err = store.AcquireDirLock(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
	}

	st, err := store.Open(cfg)
	if err != nil {
		if lock != nil {
			_ = lock.Release()
		}
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	closer := func() {
		_ = st.Close()
		if lock != nil {
			_ = lock.Release()
		}
	}
	return st, closer, nil
}

func isJSON() bool {
	return viper.GetBool("json")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printTaskTable renders tasks in a compact aligned listing.
func printTaskTable(tasks []models.Task) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPRI\tKIND\tCHECKPOINT\tNAME\tCREATED")
	for i := range tasks {
		t := &tasks[i]
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			shortID(t.ID), t.Status, t.Priority, t.Kind,
			t.ShortCheckpoint(), t.DisplayName(),
			t.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	_ = w.Flush()
}

func printTask(t models.Task) {
	fmt.Printf("ID:         %s\n", t.ID)
	fmt.Printf("Name:       %s\n", t.DisplayName())
	fmt.Printf("Kind:       %s\n", t.Kind)
	fmt.Printf("Status:     %s\n", t.Status)
	fmt.Printf("Priority:   %d\n", t.Priority)
	fmt.Printf("Checkpoint: %s\n", t.ShortCheckpoint())
	fmt.Printf("Created:    %s\n", t.CreatedAt.Format("2006-01-02 15:04:05"))
	if t.StartedAt != nil {
		fmt.Printf("Started:    %s\n", t.StartedAt.Format("2006-01-02 15:04:05"))
	}
	if t.CompletedAt != nil {
		fmt.Printf("Finished:   %s\n", t.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	if t.TotalSteps > 0 {
		fmt.Printf("Progress:   %d/%d steps\n", t.CompletedSteps, t.TotalSteps)
	}
	if t.Error != "" {
		fmt.Printf("Error:      %s\n", t.Error)
	}
	if t.RequeuedTaskID != "" {
		fmt.Printf("Requeued:   %s\n", t.RequeuedTaskID)
	}
	if len(t.Result) > 0 {
		fmt.Printf("Result:     %s\n", strings.Join(t.Result, ", "))
	}
	if t.ResultInfo != "" {
		fmt.Printf("Info:       %s\n", t.ResultInfo)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	rootCmd.PersistentFlags().Bool("json", false, "output as JSON")
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}
