package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pixellator/wsz6/internal/checkpoint"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "checkpoints.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func testCheckpoint(id string, step int, createdAt time.Time) checkpoint.Checkpoint {
	return checkpoint.Checkpoint{
		CheckpointID:  id,
		PlaythroughID: "pt-1",
		Slug:          "counting",
		Label:         "label for " + id,
		Step:          step,
		State:         map[string]any{"n": float64(step), "current_role": 0.0},
		RoleAssignments: map[string]checkpoint.Seat{
			"0": {Token: "tok-a", Name: "Ada"},
		},
		CreatedAt: createdAt,
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, time.February, 22, 16, 40, 0, 0, time.UTC)
	input := testCheckpoint("cp-1", 3, now)

	if err := store.Save(context.Background(), input); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}

	got, err := store.Load(context.Background(), "cp-1")
	if err != nil {
		t.Fatalf("load checkpoint: %v", err)
	}
	if got.PlaythroughID != input.PlaythroughID {
		t.Fatalf("playthrough_id = %q, want %q", got.PlaythroughID, input.PlaythroughID)
	}
	if got.Step != input.Step {
		t.Fatalf("step = %d, want %d", got.Step, input.Step)
	}
	if got.State["n"] != float64(3) {
		t.Fatalf("unexpected state %v", got.State)
	}
	if got.RoleAssignments["0"].Name != "Ada" {
		t.Fatalf("unexpected seats %v", got.RoleAssignments)
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("created_at = %v, want %v", got.CreatedAt, now)
	}
}

func TestSaveRejectsDuplicateIDs(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Now().UTC()

	if err := store.Save(context.Background(), testCheckpoint("cp-1", 1, now)); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
	err := store.Save(context.Background(), testCheckpoint("cp-1", 2, now))
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	_, err := store.Load(context.Background(), "missing")
	if !errors.Is(err, checkpoint.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadCorruptPayloadReportsUnavailable(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	_, err := store.sqlDB.Exec(
		`INSERT INTO checkpoints (checkpoint_id, playthrough_id, slug, label, step, payload, created_at)
		 VALUES ('cp-bad', 'pt-1', 'counting', '', 1, '{broken', 0)`,
	)
	if err != nil {
		t.Fatalf("insert corrupt row: %v", err)
	}

	_, err = store.Load(context.Background(), "cp-bad")
	if !errors.Is(err, checkpoint.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestListReturnsNewestFirst(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	base := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"cp-1", "cp-2", "cp-3"} {
		cp := testCheckpoint(id, i, base.Add(time.Duration(i)*time.Minute))
		if err := store.Save(context.Background(), cp); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	other := testCheckpoint("cp-x", 9, base)
	other.PlaythroughID = "pt-other"
	if err := store.Save(context.Background(), other); err != nil {
		t.Fatalf("save other playthrough: %v", err)
	}

	summaries, err := store.List(context.Background(), "pt-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(summaries))
	}
	if summaries[0].CheckpointID != "cp-3" || summaries[2].CheckpointID != "cp-1" {
		t.Fatalf("expected newest first, got %v", summaries)
	}
	if summaries[0].Label != "label for cp-3" {
		t.Fatalf("unexpected label %q", summaries[0].Label)
	}
}
