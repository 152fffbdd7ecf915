package luarules

import "github.com/pixellator/wsz6/internal/formulation"

// Reserved state-table keys read by the Go side. current_role and parallel
// stay in the table across transitions; transition_message is consumed when
// the state is built and does not carry forward.
const (
	keyCurrentRole       = "current_role"
	keyParallel          = "parallel"
	keyTransitionMessage = "transition_message"
)

// gameState is an immutable snapshot of a Lua game. The goal flag, messages,
// and per-role views are evaluated once, while the state table is still live
// in the interpreter, so reading a snapshot never re-enters Lua.
type gameState struct {
	data    map[string]any
	goal    bool
	goalMsg string
	note    string
	views   map[int]string
}

var (
	_ formulation.State               = (*gameState)(nil)
	_ formulation.GoalMessenger       = (*gameState)(nil)
	_ formulation.TransitionMessenger = (*gameState)(nil)
	_ formulation.RoleViewer          = (*gameState)(nil)
	_ formulation.Mapper              = (*gameState)(nil)
)

func (s *gameState) CurrentRole() int {
	return formulation.IntFrom(s.data, keyCurrentRole, 0)
}

func (s *gameState) Parallel() bool {
	return formulation.BoolFrom(s.data, keyParallel, false)
}

func (s *gameState) IsGoal() bool { return s.goal }

func (s *gameState) GoalMessage() string { return s.goalMsg }

func (s *gameState) TransitionMessage() string { return s.note }

// ViewForRole returns the textual view prepared for roleNum, or "" when the
// formulation declares no view function.
func (s *gameState) ViewForRole(roleNum int) string { return s.views[roleNum] }

func (s *gameState) StateMap() map[string]any {
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}
