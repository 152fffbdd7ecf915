package games

import (
	"fmt"

	"github.com/pixellator/wsz6/internal/formulation"
)

const defaultCountingTarget = 10

type countingState struct {
	Count  int
	Target int
}

var (
	_ formulation.State         = countingState{}
	_ formulation.GoalMessenger = countingState{}
	_ formulation.Mapper        = countingState{}
)

func (s countingState) CurrentRole() int { return 0 }
func (s countingState) Parallel() bool   { return false }
func (s countingState) IsGoal() bool     { return s.Count >= s.Target }

func (s countingState) GoalMessage() string {
	return fmt.Sprintf("You counted all the way to %d!", s.Target)
}

func (s countingState) StateMap() map[string]any {
	return map[string]any{
		"count":        s.Count,
		"target":       s.Target,
		"current_role": 0,
		"parallel":     false,
	}
}

// NewCounting builds the counting game: one player increments a number until
// it reaches the target. The target comes from the "target" config entry.
func NewCounting() *formulation.Formulation {
	return &formulation.Formulation{
		Metadata: formulation.Metadata{
			Name:    "Counting Game",
			Brief:   "Count up by one until you reach the target number.",
			Version: "1.0",
		},
		Roles: formulation.RoleSpec{
			Roles: []formulation.Role{
				{Name: "Counter", Description: "Counts upward, one step at a time."},
			},
		},
		Operators: []formulation.Operator{{
			Name:        "Next",
			Description: "Increments the current number by 1",
			Role:        formulation.RoleAny,
			Precondition: func(s formulation.State) bool {
				cs := s.(countingState)
				return cs.Count < cs.Target
			},
			Transition: func(s formulation.State, _ []any) (formulation.State, error) {
				cs := s.(countingState)
				cs.Count++
				return cs, nil
			},
		}},
		Initialize: func(cfg formulation.Config) (formulation.State, error) {
			target := formulation.IntFrom(cfg, "target", defaultCountingTarget)
			if target < 1 {
				return nil, fmt.Errorf("target must be positive, got %d", target)
			}
			return countingState{Target: target}, nil
		},
		Restore: func(m map[string]any) (formulation.State, error) {
			return countingState{
				Count:  formulation.IntFrom(m, "count", 0),
				Target: formulation.IntFrom(m, "target", defaultCountingTarget),
			}, nil
		},
	}
}
