// Package sqlite provides a SQLite-backed checkpoint store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/pixellator/wsz6/internal/checkpoint"
	"github.com/pixellator/wsz6/internal/checkpoint/sqlite/migrations"
	sqlitemigrate "github.com/pixellator/wsz6/internal/platform/storage/sqlitemigrate"
)

// Store persists checkpoints in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ checkpoint.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite checkpoint store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Save inserts one checkpoint row. Checkpoint IDs are immutable; replaying an
// existing ID is an error.
func (s *Store) Save(ctx context.Context, cp checkpoint.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	payload, err := checkpoint.Encode(cp)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO checkpoints (
		   checkpoint_id,
		   playthrough_id,
		   slug,
		   label,
		   step,
		   payload,
		   created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cp.CheckpointID,
		cp.PlaythroughID,
		cp.Slug,
		cp.Label,
		cp.Step,
		string(payload),
		toMillis(cp.CreatedAt),
	)
	if err != nil {
		if isCheckpointUniqueViolation(err) {
			return fmt.Errorf("checkpoint %s already exists", cp.CheckpointID)
		}
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Load returns one checkpoint by ID. A row whose payload no longer decodes
// reports checkpoint.ErrUnavailable.
func (s *Store) Load(ctx context.Context, checkpointID string) (checkpoint.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return checkpoint.Checkpoint{}, err
	}
	if s == nil || s.sqlDB == nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("storage is not configured")
	}
	checkpointID = strings.TrimSpace(checkpointID)
	if checkpointID == "" {
		return checkpoint.Checkpoint{}, fmt.Errorf("checkpoint id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT payload, created_at
		   FROM checkpoints
		  WHERE checkpoint_id = ?`,
		checkpointID,
	)

	var payload string
	var createdAt int64
	if err := row.Scan(&payload, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return checkpoint.Checkpoint{}, checkpoint.ErrNotFound
		}
		return checkpoint.Checkpoint{}, fmt.Errorf("load checkpoint: %w", err)
	}

	cp, err := checkpoint.Decode([]byte(payload))
	if err != nil {
		return checkpoint.Checkpoint{}, err
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = fromMillis(createdAt)
	}
	return cp, nil
}

// List returns the checkpoints of one play-through, newest first.
func (s *Store) List(ctx context.Context, playthroughID string) ([]checkpoint.Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	playthroughID = strings.TrimSpace(playthroughID)
	if playthroughID == "" {
		return nil, fmt.Errorf("playthrough id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT checkpoint_id, step, label, created_at
		   FROM checkpoints
		  WHERE playthrough_id = ?
		  ORDER BY created_at DESC, checkpoint_id ASC`,
		playthroughID,
	)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []checkpoint.Summary
	for rows.Next() {
		var summary checkpoint.Summary
		var createdAt int64
		if err := rows.Scan(&summary.CheckpointID, &summary.Step, &summary.Label, &createdAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint row: %w", err)
		}
		summary.CreatedAt = fromMillis(createdAt)
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoint rows: %w", err)
	}
	return out, nil
}

func isCheckpointUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") &&
		strings.Contains(message, "checkpoints.checkpoint_id")
}
