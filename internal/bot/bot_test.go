package bot_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pixellator/wsz6/internal/bot"
	"github.com/pixellator/wsz6/internal/engine"
	"github.com/pixellator/wsz6/internal/formulation"
	"github.com/pixellator/wsz6/internal/seat"
)

// arenaState records which operators have been played as a string of marks.
type arenaState struct {
	moves    string
	role     int
	parallel bool
}

func (s arenaState) CurrentRole() int { return s.role }
func (s arenaState) Parallel() bool   { return s.parallel }
func (s arenaState) IsGoal() bool     { return false }
func (s arenaState) StateMap() map[string]any {
	return map[string]any{"moves": s.moves, "current_role": s.role}
}

func mark(m string, next int) func(formulation.State, []any) (formulation.State, error) {
	return func(s formulation.State, _ []any) (formulation.State, error) {
		a := s.(arenaState)
		a.moves += m
		a.role = next
		return a, nil
	}
}

func startArena(t *testing.T, form *formulation.Formulation) *engine.Engine {
	t.Helper()
	eng := engine.New("pt-bot", form, seat.NewManager(form.Roles), nil)
	if _, err := eng.Start(context.Background(), nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	return eng
}

func twoRoleArena() *formulation.Formulation {
	return &formulation.Formulation{
		Metadata: formulation.Metadata{Name: "Arena"},
		Roles: formulation.RoleSpec{Roles: []formulation.Role{
			{Name: "Home"}, {Name: "Away"},
		}},
		Operators: []formulation.Operator{
			{Name: "Home move", Role: 0, Transition: mark("h", 1)},
			{Name: "Away move", Role: 1, Transition: mark("a", 0)},
			{Name: "Shared move", Role: formulation.RoleAny, Transition: mark("s", 0)},
		},
		Initialize: func(formulation.Config) (formulation.State, error) {
			return arenaState{}, nil
		},
	}
}

func instantBot(role int, strategy bot.Strategy) *bot.Actor {
	b := bot.New(role, strategy)
	b.Delay = 0
	return b
}

func TestParseStrategy(t *testing.T) {
	cases := []struct {
		in   string
		want bot.Strategy
	}{
		{"", bot.StrategyRandom},
		{"random", bot.StrategyRandom},
		{" RANDOM ", bot.StrategyRandom},
		{"first", bot.StrategyFirst},
	}
	for _, tc := range cases {
		got, err := bot.ParseStrategy(tc.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("parse %q = %q, want %q", tc.in, got, tc.want)
		}
	}

	if _, err := bot.ParseStrategy("clever"); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestMaybeMoveWaitsForTurn(t *testing.T) {
	eng := startArena(t, twoRoleArena())
	away := instantBot(1, bot.StrategyFirst)

	moved, err := away.MaybeMove(context.Background(), eng)
	if err != nil {
		t.Fatalf("maybe move: %v", err)
	}
	if moved {
		t.Fatal("bot must not move out of turn")
	}
	if got := eng.Step(); got != 0 {
		t.Fatalf("expected untouched history, step %d", got)
	}
}

func TestMaybeMoveAppliesOwnOperator(t *testing.T) {
	eng := startArena(t, twoRoleArena())
	home := instantBot(0, bot.StrategyFirst)

	moved, err := home.MaybeMove(context.Background(), eng)
	if err != nil {
		t.Fatalf("maybe move: %v", err)
	}
	if !moved {
		t.Fatal("expected the bot to move on its turn")
	}
	n, err := eng.Current()
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if n.StateMap["moves"] != "h" {
		t.Fatalf("expected first strategy to pick the home move, got %v", n.StateMap["moves"])
	}
}

func TestMaybeMoveNeverPicksForeignOperators(t *testing.T) {
	// Run many independent games; the away bot may only ever play its own
	// move or the shared one.
	for i := 0; i < 25; i++ {
		eng := startArena(t, twoRoleArena())
		if _, err := eng.ApplyOperator(context.Background(), engine.ApplyRequest{OpIndex: 0, Role: 0}); err != nil {
			t.Fatalf("home opening move: %v", err)
		}

		away := instantBot(1, bot.StrategyRandom)
		moved, err := away.MaybeMove(context.Background(), eng)
		if err != nil {
			t.Fatalf("maybe move: %v", err)
		}
		if !moved {
			t.Fatal("expected away bot to move on its turn")
		}
		n, err := eng.Current()
		if err != nil {
			t.Fatalf("current: %v", err)
		}
		moves := n.StateMap["moves"].(string)
		if strings.ContainsAny(moves[1:], "h") {
			t.Fatalf("away bot played a home move: %q", moves)
		}
	}
}

func TestMaybeMoveSkipsParameterizedOperators(t *testing.T) {
	form := &formulation.Formulation{
		Metadata: formulation.Metadata{Name: "Forms"},
		Roles:    formulation.RoleSpec{Roles: []formulation.Role{{Name: "Clerk"}}},
		Operators: []formulation.Operator{{
			Name:       "File",
			Role:       formulation.RoleAny,
			Params:     []formulation.Param{{Name: "code", Type: formulation.ParamInt}},
			Transition: mark("f", 0),
		}},
		Initialize: func(formulation.Config) (formulation.State, error) {
			return arenaState{}, nil
		},
	}
	eng := startArena(t, form)
	clerk := instantBot(0, bot.StrategyRandom)

	moved, err := clerk.MaybeMove(context.Background(), eng)
	if err != nil {
		t.Fatalf("maybe move: %v", err)
	}
	if moved {
		t.Fatal("bot must not guess arguments for parameterized operators")
	}
}

func TestMaybeMoveDuringParallelPhase(t *testing.T) {
	form := &formulation.Formulation{
		Metadata: formulation.Metadata{Name: "Parallel"},
		Roles: formulation.RoleSpec{Roles: []formulation.Role{
			{Name: "West"}, {Name: "East"},
		}},
		Operators: []formulation.Operator{
			{Name: "West pick", Role: 0, Transition: mark("w", 0)},
			{Name: "East pick", Role: 1, Transition: mark("e", 0)},
		},
		Initialize: func(formulation.Config) (formulation.State, error) {
			// current_role points at West, but the phase is parallel.
			return arenaState{parallel: true}, nil
		},
	}
	eng := startArena(t, form)
	east := instantBot(1, bot.StrategyFirst)

	moved, err := east.MaybeMove(context.Background(), eng)
	if err != nil {
		t.Fatalf("maybe move: %v", err)
	}
	if !moved {
		t.Fatal("expected east bot to act during parallel phase")
	}
	n, _ := eng.Current()
	if n.StateMap["moves"] != "e" {
		t.Fatalf("expected east pick, got %v", n.StateMap["moves"])
	}
}

func TestMaybeMoveBeforeStart(t *testing.T) {
	form := twoRoleArena()
	eng := engine.New("pt-idle", form, seat.NewManager(form.Roles), nil)

	moved, err := instantBot(0, bot.StrategyFirst).MaybeMove(context.Background(), eng)
	if err != nil || moved {
		t.Fatalf("expected quiet no-op before start, got moved=%v err=%v", moved, err)
	}
}

func TestMaybeMoveHonorsContextDuringDelay(t *testing.T) {
	eng := startArena(t, twoRoleArena())
	home := bot.New(0, bot.StrategyFirst) // keeps the default delay

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := home.MaybeMove(ctx, eng)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if got := eng.Step(); got != 0 {
		t.Fatalf("cancelled bot must not move, step %d", got)
	}
}
