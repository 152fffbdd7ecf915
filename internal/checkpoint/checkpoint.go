// Package checkpoint defines play-through snapshots and the stores that
// persist them. A checkpoint captures everything needed to resume a paused
// play-through with a fresh rule-module instance: the serialized state, the
// step counter, and the seat assignments. Undo history is deliberately not
// part of a checkpoint; resumed play-throughs start with an empty past.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound reports a checkpoint ID no store row matches.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrUnavailable reports a checkpoint that exists but cannot be used to
	// resume, typically because its payload fails to decode.
	ErrUnavailable = errors.New("resume unavailable")
)

// Seat is one persisted role assignment, keyed by role number in the
// checkpoint payload.
type Seat struct {
	Token    string `json:"token"`
	Name     string `json:"name,omitempty"`
	IsBot    bool   `json:"is_bot"`
	Strategy string `json:"strategy,omitempty"`
}

// Checkpoint is a full snapshot of one play-through at one step.
type Checkpoint struct {
	CheckpointID    string          `json:"checkpoint_id"`
	PlaythroughID   string          `json:"playthrough_id"`
	Slug            string          `json:"slug"`
	Label           string          `json:"label,omitempty"`
	Step            int             `json:"step"`
	State           map[string]any  `json:"state"`
	RoleAssignments map[string]Seat `json:"role_assignments"`
	CreatedAt       time.Time       `json:"created_at,omitzero"`
}

// Summary lists a checkpoint without its payload, for catalog screens.
type Summary struct {
	CheckpointID string    `json:"checkpoint_id"`
	Step         int       `json:"step"`
	Label        string    `json:"label,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitzero"`
}

// Validate checks that the checkpoint holds enough to resume from.
func (cp Checkpoint) Validate() error {
	if strings.TrimSpace(cp.CheckpointID) == "" {
		return errors.New("checkpoint id is required")
	}
	if strings.TrimSpace(cp.PlaythroughID) == "" {
		return errors.New("playthrough id is required")
	}
	if cp.Step < 0 {
		return fmt.Errorf("negative step %d", cp.Step)
	}
	if cp.State == nil {
		return errors.New("checkpoint has no state")
	}
	return nil
}

// Encode serializes a checkpoint into its JSON payload form.
func Encode(cp Checkpoint) ([]byte, error) {
	if err := cp.Validate(); err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	return data, nil
}

// Decode rebuilds a checkpoint from its JSON payload. Malformed or
// incomplete payloads degrade to ErrUnavailable so callers can report a
// failed resume without crashing the play-through.
func Decode(data []byte) (Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := cp.Validate(); err != nil {
		return Checkpoint{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return cp, nil
}

// Store persists checkpoints.
type Store interface {
	// Save writes a checkpoint. Saving an existing checkpoint ID is an
	// error; checkpoints are immutable once written.
	Save(ctx context.Context, cp Checkpoint) error

	// Load returns the checkpoint with the given ID.
	Load(ctx context.Context, checkpointID string) (Checkpoint, error)

	// List returns the checkpoints of one play-through, newest first.
	List(ctx context.Context, playthroughID string) ([]Summary, error)

	// Close releases the store.
	Close() error
}
