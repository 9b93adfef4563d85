package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"genqueue/models"
	"genqueue/store"

	"github.com/google/uuid"
)

// CreateBookmark saves a named parameter bundle for later reuse. An
// empty name is replaced with a generated placeholder rather than
// rejected.
func (m *Manager) CreateBookmark(ctx context.Context, name string, kind models.TaskKind, params, scriptArgs json.RawMessage, checkpoint string) (models.Bookmark, error) {
	if !models.ValidKind(kind) {
		return models.Bookmark{}, fmt.Errorf("%w: unknown task kind %q", ErrValidation, kind)
	}

	now := time.Now().UTC()
	if name == "" {
		name = "Bookmark " + now.Format("2006-01-02 15:04:05")
	}

	bm := models.Bookmark{
		ID:         uuid.NewString(),
		Name:       name,
		Kind:       kind,
		Params:     params,
		Checkpoint: checkpoint,
		ScriptArgs: scriptArgs,
		CreatedAt:  now,
	}
	if err := models.ValidateStruct(&bm); err != nil {
		return models.Bookmark{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.InsertBookmark(ctx, bm); err != nil {
		return models.Bookmark{}, err
	}
	return bm, nil
}

// GetBookmark retrieves a bookmark by ID.
func (m *Manager) GetBookmark(ctx context.Context, id string) (models.Bookmark, error) {
	bm, err := m.store.GetBookmark(ctx, id)
	if errors.Is(err, store.ErrBookmarkNotFound) {
		return models.Bookmark{}, fmt.Errorf("%w: bookmark %s", ErrNotFound, id)
	}
	return bm, err
}

// ListBookmarks returns bookmarks newest first.
func (m *Manager) ListBookmarks(ctx context.Context) ([]models.Bookmark, error) {
	return m.store.ListBookmarks(ctx)
}

// RenameBookmark updates a bookmark's display name.
func (m *Manager) RenameBookmark(ctx context.Context, id, name string) (models.Bookmark, error) {
	if name == "" {
		return models.Bookmark{}, fmt.Errorf("%w: bookmark name is required", ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	bm, err := m.store.GetBookmark(ctx, id)
	if errors.Is(err, store.ErrBookmarkNotFound) {
		return models.Bookmark{}, fmt.Errorf("%w: bookmark %s", ErrNotFound, id)
	}
	if err != nil {
		return models.Bookmark{}, err
	}

	bm.Name = name
	if err := m.store.UpdateBookmark(ctx, bm); err != nil {
		return models.Bookmark{}, err
	}
	return bm, nil
}

// DeleteBookmark removes a bookmark by ID.
func (m *Manager) DeleteBookmark(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.store.DeleteBookmark(ctx, id)
	if errors.Is(err, store.ErrBookmarkNotFound) {
		return fmt.Errorf("%w: bookmark %s", ErrNotFound, id)
	}
	return err
}
