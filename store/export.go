package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"genqueue/models"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"
	yaml "gopkg.in/yaml.v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
	formatTOML = "toml"
)

// Snapshot is the on-disk shape of an export: every task and bookmark
// plus enough metadata to identify the dump later.
type Snapshot struct {
	ExportedAt time.Time         `json:"exportedAt" yaml:"exportedAt" toml:"exported_at"`
	Tasks      []models.Task     `json:"tasks" yaml:"tasks" toml:"tasks"`
	Bookmarks  []models.Bookmark `json:"bookmarks" yaml:"bookmarks" toml:"bookmarks"`
}

// Exporter writes store snapshots through an afero filesystem, so tests
// run against an in-memory fs.
type Exporter struct {
	fs afero.Fs
}

func NewExporter(fs afero.Fs) *Exporter {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Exporter{fs: fs}
}

// Export dumps the full store contents to path. The format is inferred
// from the file extension: .json, .yaml/.yml or .toml.
func (e *Exporter) Export(ctx context.Context, s TaskStore, path string) error {
	format, err := formatForPath(path)
	if err != nil {
		return err
	}

	tasks, err := s.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	bookmarks, err := s.ListBookmarks(ctx)
	if err != nil {
		return fmt.Errorf("list bookmarks: %w", err)
	}

	snap := Snapshot{
		ExportedAt: time.Now().UTC(),
		Tasks:      tasks,
		Bookmarks:  bookmarks,
	}

	data, err := marshalSnapshot(&snap, format)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := e.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export directory: %w", err)
		}
	}
	return afero.WriteFile(e.fs, path, data, 0o644)
}

// Import loads a snapshot from path and inserts every record into s.
// Existing records with colliding IDs are left untouched; collisions
// are reported in the returned error.
func (e *Exporter) Import(ctx context.Context, s TaskStore, path string) (*Snapshot, error) {
	format, err := formatForPath(path)
	if err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(e.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap Snapshot
	if err := unmarshalSnapshot(data, format, &snap); err != nil {
		return nil, err
	}

	var collisions []string
	for _, task := range snap.Tasks {
		if _, err := s.GetTask(ctx, task.ID); err == nil {
			collisions = append(collisions, task.ID)
			continue
		}
		if err := s.InsertTask(ctx, task); err != nil {
			return nil, fmt.Errorf("insert task %s: %w", task.ID, err)
		}
	}
	for _, bm := range snap.Bookmarks {
		if _, err := s.GetBookmark(ctx, bm.ID); err == nil {
			collisions = append(collisions, bm.ID)
			continue
		}
		if err := s.InsertBookmark(ctx, bm); err != nil {
			return nil, fmt.Errorf("insert bookmark %s: %w", bm.ID, err)
		}
	}

	if len(collisions) > 0 {
		return &snap, fmt.Errorf("skipped %d records already present: %s", len(collisions), strings.Join(collisions, ", "))
	}
	return &snap, nil
}

func formatForPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON, nil
	case ".yaml", ".yml":
		return formatYAML, nil
	case ".toml":
		return formatTOML, nil
	default:
		return "", fmt.Errorf("unsupported export format for %q (use .json, .yaml or .toml)", path)
	}
}

func marshalSnapshot(snap *Snapshot, format string) ([]byte, error) {
	switch format {
	case formatJSON:
		return json.MarshalIndent(snap, "", "  ")
	case formatYAML:
		return yaml.Marshal(snap)
	case formatTOML:
		var sb strings.Builder
		if err := toml.NewEncoder(&sb).Encode(snap); err != nil {
			return nil, err
		}
		return []byte(sb.String()), nil
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

func unmarshalSnapshot(data []byte, format string, snap *Snapshot) error {
	switch format {
	case formatJSON:
		return json.Unmarshal(data, snap)
	case formatYAML:
		return yaml.Unmarshal(data, snap)
	case formatTOML:
		return toml.Unmarshal(data, snap)
	}
	return fmt.Errorf("unsupported format %q", format)
}
