package formulation

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// RoleAny marks an operator with no role restriction. Any seated role (or the
// engine itself) may apply it.
const RoleAny = -1

// Config carries the options handed to a formulation when a play-through
// starts, such as difficulty or player count knobs.
type Config map[string]any

// Metadata describes a formulation for catalogs and lobby screens.
type Metadata struct {
	Name    string
	Brief   string
	Version string
	Authors []string
}

// Role is one seat in a game, identified by its zero-based position in the
// RoleSpec roster.
type Role struct {
	Name        string
	Description string
}

// RoleSpec declares the role roster of a game together with its seating
// bounds.
type RoleSpec struct {
	Roles []Role

	// MinPlayersToStart overrides the default minimum of one occupant per
	// non-observer role when greater than zero.
	MinPlayersToStart int

	// MaxPlayers caps the total number of joined players when greater than
	// zero.
	MaxPlayers int
}

// Valid reports whether roleNum indexes a declared role.
func (rs RoleSpec) Valid(roleNum int) bool {
	return roleNum >= 0 && roleNum < len(rs.Roles)
}

// IsObserver reports whether roleNum names an observer seat. Observer seats
// never count toward the start minimum.
func (rs RoleSpec) IsObserver(roleNum int) bool {
	if !rs.Valid(roleNum) {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(rs.Roles[roleNum].Name), "observer")
}

// MinToStart returns the number of occupied seats required before a
// play-through may begin. When no explicit minimum is declared it defaults to
// one occupant per non-observer role.
func (rs RoleSpec) MinToStart() int {
	if rs.MinPlayersToStart > 0 {
		return rs.MinPlayersToStart
	}
	n := 0
	for i := range rs.Roles {
		if !rs.IsObserver(i) {
			n++
		}
	}
	return n
}

// State is an immutable snapshot of a game in progress. Implementations must
// treat every method as a read: the engine shares states freely across
// goroutines once they enter the history.
type State interface {
	// CurrentRole returns the role number whose turn it is.
	CurrentRole() int

	// Parallel reports whether the current phase accepts moves from several
	// roles at once, suspending turn order.
	Parallel() bool

	// IsGoal reports whether this state satisfies the goal condition.
	IsGoal() bool
}

// GoalMessenger is implemented by states that carry a congratulation message
// for the moment the goal is reached.
type GoalMessenger interface {
	GoalMessage() string
}

// TransitionMessenger is implemented by states that carry narration produced
// by the transition that created them.
type TransitionMessenger interface {
	TransitionMessage() string
}

// RoleViewer is implemented by states that can render a textual view tailored
// to one role, hiding information that role should not see.
type RoleViewer interface {
	ViewForRole(roleNum int) string
}

// Mapper is implemented by states that can serialize themselves into a plain
// map for checkpoints and wire payloads. States without this capability fall
// back to a JSON round-trip in EncodeState.
type Mapper interface {
	StateMap() map[string]any
}

// Renderer produces a visualization of a state for one viewer. Formulations
// without a renderer rely on clients to draw from the raw state map.
type Renderer interface {
	RenderState(s State, viewerRole int) (string, error)
}

// Param type names understood by clients when building operator input forms.
const (
	ParamInt    = "int"
	ParamFloat  = "float"
	ParamString = "string"
)

// Param describes one argument an operator expects. Min and Max bound numeric
// parameters when set.
type Param struct {
	Name string   `json:"name"`
	Type string   `json:"type"`
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
}

// Operator is one move of a game.
type Operator struct {
	// Name is the static display name. NameFor, when set, derives a dynamic
	// name from the state it would apply to.
	Name    string
	NameFor func(State) string

	Description string

	// Precondition reports whether the operator applies to a state. A nil
	// precondition means always applicable.
	Precondition func(State) bool

	// Transition produces the successor state. Operators without declared
	// Params receive nil args regardless of what the caller supplied.
	Transition func(State, []any) (State, error)

	Params []Param

	// Role restricts who may apply the operator, or RoleAny for no
	// restriction.
	Role int

	// AllowUndoInParallel permits undoing this operator even when the state
	// it produced sits inside a parallel phase.
	AllowUndoInParallel bool
}

// DisplayName resolves the operator name for a state, preferring NameFor.
// Panics and empty results fall back to the static name.
func (op Operator) DisplayName(s State) string {
	name := op.Name
	if op.NameFor == nil {
		return name
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				zap.L().Debug("operator name function panicked",
					zap.String("operator", op.Name), zap.Any("panic", r))
			}
		}()
		if n := op.NameFor(s); n != "" {
			name = n
		}
	}()
	return name
}

// Applicable reports whether the operator applies to s. A panicking
// precondition counts as not applicable rather than poisoning the
// play-through.
func (op Operator) Applicable(s State) (ok bool) {
	if op.Precondition == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			zap.L().Debug("operator precondition panicked",
				zap.String("operator", op.Name), zap.Any("panic", r))
			ok = false
		}
	}()
	return op.Precondition(s)
}

// Formulation is the declarative description of one game.
type Formulation struct {
	Metadata  Metadata
	Roles     RoleSpec
	Operators []Operator

	// Initialize produces the initial state for a new play-through.
	Initialize func(Config) (State, error)

	// Restore rebuilds a state from its serialized map. Formulations without
	// Restore cannot resume from checkpoints.
	Restore func(map[string]any) (State, error)

	// Renderer draws per-viewer visualizations, or nil when the formulation
	// has none.
	Renderer Renderer
}

// Validate checks that the formulation is complete enough to drive a
// play-through. It runs at load time, before Initialize is ever called.
func (f *Formulation) Validate() error {
	if f == nil {
		return errors.New("formulation is required")
	}
	if strings.TrimSpace(f.Metadata.Name) == "" {
		return errors.New("formulation name is required")
	}
	if len(f.Roles.Roles) == 0 {
		return fmt.Errorf("formulation %q declares no roles", f.Metadata.Name)
	}
	if len(f.Operators) == 0 {
		return fmt.Errorf("formulation %q declares no operators", f.Metadata.Name)
	}
	if f.Initialize == nil {
		return fmt.Errorf("formulation %q has no initialize function", f.Metadata.Name)
	}
	for i, op := range f.Operators {
		if strings.TrimSpace(op.Name) == "" && op.NameFor == nil {
			return fmt.Errorf("operator %d has no name", i)
		}
		if op.Transition == nil {
			return fmt.Errorf("operator %d (%s) has no transition function", i, op.Name)
		}
		if op.Role != RoleAny && !f.Roles.Valid(op.Role) {
			return fmt.Errorf("operator %d (%s) restricts to unknown role %d", i, op.Name, op.Role)
		}
		for _, p := range op.Params {
			switch p.Type {
			case ParamInt, ParamFloat, ParamString:
			default:
				return fmt.Errorf("operator %d (%s) parameter %q has unknown type %q", i, op.Name, p.Name, p.Type)
			}
		}
	}
	return nil
}
