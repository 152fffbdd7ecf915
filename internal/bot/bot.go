// Package bot provides automated players that fill otherwise-empty seats.
// A bot actor watches the play-through through the same public apply path as
// human participants: it holds a seat, obeys turn order, and its moves are
// validated like anyone else's.
package bot

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pixellator/wsz6/internal/engine"
	"github.com/pixellator/wsz6/internal/formulation"
)

// Strategy selects among applicable operators.
type Strategy string

const (
	// StrategyRandom picks uniformly among the applicable operators.
	StrategyRandom Strategy = "random"

	// StrategyFirst always picks the lowest-indexed applicable operator.
	StrategyFirst Strategy = "first"
)

// DefaultDelay paces bot moves so human players can follow along.
const DefaultDelay = 1200 * time.Millisecond

// ParseStrategy validates a strategy name. The empty string defaults to
// random.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyRandom:
		return StrategyRandom, nil
	case StrategyFirst:
		return StrategyFirst, nil
	}
	return "", fmt.Errorf("unknown bot strategy %q", s)
}

// Actor plays one seat automatically.
type Actor struct {
	Role     int
	Strategy Strategy

	// Delay is how long the actor thinks before moving. Zero disables
	// pacing, which tests rely on.
	Delay time.Duration
}

// New creates an actor for a role with the default pacing delay.
func New(role int, strategy Strategy) *Actor {
	return &Actor{Role: role, Strategy: strategy, Delay: DefaultDelay}
}

// MaybeMove inspects the play-through and, when the actor's seat may act,
// picks and applies one operator. It reports whether a move was applied.
//
// The pacing delay runs outside the engine lock, so the position can change
// while the actor thinks. Moves that arrive stale are rejected by the engine
// like any other request; those rejections are not errors here because the
// notification for whatever move beat us will trigger the actor again.
func (b *Actor) MaybeMove(ctx context.Context, eng *engine.Engine) (bool, error) {
	n, err := eng.Current()
	if err != nil {
		if errors.Is(err, engine.ErrNotStarted) {
			return false, nil
		}
		return false, err
	}
	if n.Phase != engine.PhaseRunning || n.IsGoal {
		return false, nil
	}
	if !n.IsParallel && n.CurrentRole != b.Role {
		return false, nil
	}

	choice, ok := b.choose(n.Ops)
	if !ok {
		zap.L().Warn("bot has no applicable operators",
			zap.Int("role", b.Role), zap.Int("step", n.Step))
		return false, nil
	}

	if b.Delay > 0 {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(b.Delay):
		}
	}

	_, err = eng.ApplyOperator(ctx, engine.ApplyRequest{OpIndex: choice, Role: b.Role})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, engine.ErrNotYourTurn),
		errors.Is(err, engine.ErrPrecondition),
		errors.Is(err, engine.ErrNotStarted),
		errors.Is(err, engine.ErrPaused),
		errors.Is(err, engine.ErrEnded):
		zap.L().Debug("bot move rejected",
			zap.Int("role", b.Role), zap.Int("operator", choice), zap.Error(err))
		return false, nil
	}
	return false, err
}

// choose filters the operator menu down to moves this seat may make and
// applies the strategy. Operators that require arguments are skipped: a bot
// has no way to invent sensible parameter values.
func (b *Actor) choose(ops []formulation.OpInfo) (int, bool) {
	var candidates []int
	for _, op := range ops {
		if !op.Applicable {
			continue
		}
		if op.Role != formulation.RoleAny && op.Role != b.Role {
			continue
		}
		if len(op.Params) > 0 {
			continue
		}
		candidates = append(candidates, op.Index)
	}
	if len(candidates) == 0 {
		return 0, false
	}
	if b.Strategy == StrategyFirst {
		return candidates[0], true
	}
	return candidates[rand.IntN(len(candidates))], true
}
