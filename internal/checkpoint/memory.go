package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps checkpoints in process memory. It backs portals that run
// without a database path and most tests. Payloads go through the JSON codec
// so the two store implementations stay interchangeable.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string][]byte)}
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, cp Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	data, err := Encode(cp)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[cp.CheckpointID]; ok {
		return fmt.Errorf("checkpoint %s already exists", cp.CheckpointID)
	}
	s.rows[cp.CheckpointID] = data
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context, checkpointID string) (Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return Checkpoint{}, err
	}
	if strings.TrimSpace(checkpointID) == "" {
		return Checkpoint{}, fmt.Errorf("checkpoint id is required")
	}

	s.mu.Lock()
	data, ok := s.rows[checkpointID]
	s.mu.Unlock()
	if !ok {
		return Checkpoint{}, ErrNotFound
	}
	return Decode(data)
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, playthroughID string) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Summary
	for _, data := range s.rows {
		cp, err := Decode(data)
		if err != nil {
			continue
		}
		if cp.PlaythroughID != playthroughID {
			continue
		}
		out = append(out, Summary{
			CheckpointID: cp.CheckpointID,
			Step:         cp.Step,
			Label:        cp.Label,
			CreatedAt:    cp.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CheckpointID < out[j].CheckpointID
	})
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
