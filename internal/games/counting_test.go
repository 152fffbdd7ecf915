package games_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/pixellator/wsz6/internal/formulation"
	"github.com/pixellator/wsz6/internal/formulation/builtin"
	"github.com/pixellator/wsz6/internal/games"
)

func TestCountingReachesTarget(t *testing.T) {
	form := games.NewCounting()
	if err := form.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	state, err := form.Initialize(formulation.Config{"target": 3})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	for i := 0; i < 3; i++ {
		if !form.Operators[0].Applicable(state) {
			t.Fatalf("Next not applicable at step %d", i)
		}
		state, err = form.Operators[0].Transition(state, nil)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	if !state.IsGoal() {
		t.Fatal("expected goal at target")
	}
	if got := state.(formulation.GoalMessenger).GoalMessage(); got != "You counted all the way to 3!" {
		t.Fatalf("goal message = %q", got)
	}
	if form.Operators[0].Applicable(state) {
		t.Fatal("Next must stop at the target")
	}
}

func TestCountingRejectsBadTarget(t *testing.T) {
	if _, err := games.NewCounting().Initialize(formulation.Config{"target": -2}); err == nil {
		t.Fatal("expected error for negative target")
	}
}

func TestCountingRestore(t *testing.T) {
	form := games.NewCounting()
	state, err := form.Initialize(formulation.Config{"target": 7})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	state, err = form.Operators[0].Transition(state, nil)
	if err != nil {
		t.Fatalf("step: %v", err)
	}

	encoded, err := formulation.EncodeState(state)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	restored, err := form.Restore(encoded)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	m := restored.(formulation.Mapper).StateMap()
	if formulation.IntFrom(m, "count", -1) != 1 || formulation.IntFrom(m, "target", -1) != 7 {
		t.Fatalf("restored state lost fields: %v", m)
	}
}

func TestRegisterAll(t *testing.T) {
	reg := builtin.NewRegistry()
	games.RegisterAll(reg)

	want := []string{"counting", "guess-my-number", "rock-paper-scissors", "tic-tac-toe"}
	if got := reg.Slugs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("slugs = %v, want %v", got, want)
	}

	for _, slug := range want {
		inst, err := reg.Load(context.Background(), slug, "pt-"+slug)
		if err != nil {
			t.Fatalf("load %s: %v", slug, err)
		}
		if _, err := inst.Formulation().Initialize(nil); err != nil {
			t.Fatalf("initialize %s: %v", slug, err)
		}
		if err := inst.Close(); err != nil {
			t.Fatalf("close %s: %v", slug, err)
		}
	}
}
