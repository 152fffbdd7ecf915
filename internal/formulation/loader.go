package formulation

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownGame reports that no loader recognizes a game slug.
var ErrUnknownGame = errors.New("unknown game")

// Instance is one live copy of a rule module bound to a single play-through.
// Rule state never crosses instances: two play-throughs of the same game hold
// two independent instances.
type Instance interface {
	// Formulation returns the loaded formulation.
	Formulation() *Formulation

	// Key identifies the instance, unique per slug and play-through.
	Key() string

	// Close releases the instance. Closing an already-closed instance is an
	// error.
	Close() error
}

// Loader resolves game slugs into fresh rule-module instances.
type Loader interface {
	Load(ctx context.Context, slug, playthroughID string) (Instance, error)
}

// MultiLoader tries each loader in order, moving on when one does not
// recognize the slug. Load errors other than ErrUnknownGame stop the search.
type MultiLoader []Loader

var _ Loader = MultiLoader(nil)

// Load implements Loader.
func (ml MultiLoader) Load(ctx context.Context, slug, playthroughID string) (Instance, error) {
	for _, l := range ml {
		inst, err := l.Load(ctx, slug, playthroughID)
		if errors.Is(err, ErrUnknownGame) {
			continue
		}
		return inst, err
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownGame, slug)
}
