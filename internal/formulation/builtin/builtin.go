// Package builtin serves formulations compiled into the binary. Each Load
// calls the game's constructor again, so play-throughs never share a
// formulation value.
package builtin

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pixellator/wsz6/internal/formulation"
	"github.com/pixellator/wsz6/internal/platform/id"
)

// Constructor builds a fresh formulation value.
type Constructor func() *formulation.Formulation

// Registry maps game slugs to constructors.
type Registry struct {
	mu    sync.RWMutex
	games map[string]Constructor
}

var _ formulation.Loader = (*Registry)(nil)

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{games: make(map[string]Constructor)}
}

// Register files a constructor under slug. Registering a nil constructor or
// the same slug twice is a programming error and panics, mirroring how
// driver registries behave.
func (r *Registry) Register(slug string, build Constructor) {
	if build == nil {
		panic("builtin: nil constructor for " + slug)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.games[slug]; dup {
		panic("builtin: duplicate game " + slug)
	}
	r.games[slug] = build
}

// Slugs returns the registered game slugs, sorted.
func (r *Registry) Slugs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.games))
	for slug := range r.games {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

// Load implements formulation.Loader.
func (r *Registry) Load(ctx context.Context, slug, playthroughID string) (formulation.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	build, ok := r.games[slug]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", formulation.ErrUnknownGame, slug)
	}

	form := build()
	if err := form.Validate(); err != nil {
		return nil, fmt.Errorf("builtin game %s: %w", slug, err)
	}
	instanceID, err := id.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate instance key: %w", err)
	}
	return &instance{form: form, key: slug + "-" + instanceID}, nil
}

type instance struct {
	form *formulation.Formulation
	key  string

	mu     sync.Mutex
	closed bool
}

var _ formulation.Instance = (*instance)(nil)

func (in *instance) Formulation() *formulation.Formulation { return in.form }

func (in *instance) Key() string { return in.key }

func (in *instance) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return fmt.Errorf("rule instance %s already closed", in.key)
	}
	in.closed = true
	return nil
}
