package models

import (
	"encoding/json"
	"time"
)

// Bookmark is a named, reusable parameter bundle. It carries the same
// captured configuration a task does, but has no lifecycle status and
// is never executed directly; queuing from a bookmark produces a fresh
// pending task.
type Bookmark struct {
	ID         string          `json:"id" validate:"required,uuid4"`
	Name       string          `json:"name" validate:"required"`
	Kind       TaskKind        `json:"kind" validate:"required,oneof=txt2img img2img"`
	Params     json.RawMessage `json:"params,omitempty"`
	Checkpoint string          `json:"checkpoint,omitempty"`
	ScriptArgs json.RawMessage `json:"scriptArgs,omitempty"`
	CreatedAt  time.Time       `json:"createdAt" validate:"required"`
}
