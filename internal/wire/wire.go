// Package wire defines the JSON message contract between the portal and its
// clients. Inbound frames share one flat envelope keyed by a type string;
// outbound frames are small structs built from engine notifications. The
// translation here is shape-only: role enforcement, turn order, and every
// other rule stays in the engine regardless of what a client claims.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pixellator/wsz6/internal/checkpoint"
	"github.com/pixellator/wsz6/internal/engine"
	"github.com/pixellator/wsz6/internal/formulation"
	"github.com/pixellator/wsz6/internal/seat"
)

// Inbound message types.
const (
	TypeHello           = "hello"
	TypeAssignRole      = "assign_role"
	TypeUnassign        = "unassign"
	TypeAssignBot       = "assign_bot"
	TypeStartGame       = "start_game"
	TypeApplyOperator   = "apply_operator"
	TypeRequestUndo     = "request_undo"
	TypeRequestPause    = "request_pause"
	TypeRequestResume   = "request_resume"
	TypeListCheckpoints = "list_checkpoints"
)

// Outbound message types.
const (
	TypeWelcome        = "welcome"
	TypeLobbyUpdate    = "lobby_update"
	TypeStateUpdate    = "state_update"
	TypeTransitionMsg  = "transition_msg"
	TypeGoalReached    = "goal_reached"
	TypeGamePaused     = "game_paused"
	TypeGameResumed    = "game_resumed"
	TypeCheckpointList = "checkpoint_list"
	TypeError          = "error"
)

// Inbound is the flat request envelope. Only the fields relevant to a given
// type are set; numeric fields are pointers so zero values stay
// distinguishable from absent ones.
type Inbound struct {
	Type string `json:"type"`

	// hello
	Name  string `json:"name,omitempty"`
	Token string `json:"token,omitempty"`

	// assign_role, assign_bot
	RoleNum  *int   `json:"role_num,omitempty"`
	Strategy string `json:"strategy,omitempty"`

	// apply_operator
	OpIndex *int  `json:"op_index,omitempty"`
	Args    []any `json:"args,omitempty"`

	// start_game
	Config map[string]any `json:"config,omitempty"`

	// request_pause, request_resume, checkpoint listing
	CheckpointID string `json:"checkpoint_id,omitempty"`
	Label        string `json:"label,omitempty"`
}

// Decode parses one client frame.
func Decode(data []byte) (Inbound, error) {
	var m Inbound
	if err := json.Unmarshal(data, &m); err != nil {
		return Inbound{}, fmt.Errorf("malformed message: %w", err)
	}
	if m.Type == "" {
		return Inbound{}, errors.New("message has no type")
	}
	return m, nil
}

// RequireOpIndex returns the operator index of an apply_operator request.
func (m Inbound) RequireOpIndex() (int, error) {
	if m.OpIndex == nil {
		return 0, fmt.Errorf("%s requires op_index", m.Type)
	}
	return *m.OpIndex, nil
}

// RequireRoleNum returns the role number of a seat-targeting request.
func (m Inbound) RequireRoleNum() (int, error) {
	if m.RoleNum == nil {
		return 0, fmt.Errorf("%s requires role_num", m.Type)
	}
	return *m.RoleNum, nil
}

// Welcome acknowledges a hello, handing the participant its token.
type Welcome struct {
	Type        string `json:"type"`
	Token       string `json:"token"`
	YourRoleNum int    `json:"your_role_num"`
	Slug        string `json:"slug,omitempty"`
}

// NewWelcome builds the hello acknowledgement.
func NewWelcome(token string, roleNum int, slug string) Welcome {
	return Welcome{Type: TypeWelcome, Token: token, YourRoleNum: roleNum, Slug: slug}
}

// LobbyUpdate broadcasts the seat table.
type LobbyUpdate struct {
	Type string `json:"type"`
	seat.View
}

// NewLobbyUpdate wraps a lobby snapshot for broadcast.
func NewLobbyUpdate(v seat.View) LobbyUpdate {
	return LobbyUpdate{Type: TypeLobbyUpdate, View: v}
}

// StateUpdate is the per-viewer position broadcast. Operators are filtered to
// the viewer's role; the untrimmed list never leaves the engine boundary.
type StateUpdate struct {
	Type           string               `json:"type"`
	Step           int                  `json:"step"`
	State          map[string]any       `json:"state"`
	StateText      string               `json:"state_text,omitempty"`
	IsGoal         bool                 `json:"is_goal"`
	IsParallel     bool                 `json:"is_parallel"`
	CurrentRoleNum int                  `json:"current_role_num"`
	Operators      []formulation.OpInfo `json:"operators"`
	YourRoleNum    int                  `json:"your_role_num"`
	Vis            string               `json:"vis,omitempty"`
}

// NewStateUpdate builds the position payload one viewer receives. The
// operator list keeps only entries the viewer's seat could ever apply; the
// engine still checks the true role on apply, so this filter is presentation,
// not enforcement.
func NewStateUpdate(n engine.Notification, viewerRole int, vis string) StateUpdate {
	ops := make([]formulation.OpInfo, 0, len(n.Ops))
	for _, op := range n.Ops {
		if op.Role != formulation.RoleAny && op.Role != viewerRole {
			continue
		}
		ops = append(ops, op)
	}

	text := ""
	if rv, ok := n.State.(formulation.RoleViewer); ok {
		text = rv.ViewForRole(viewerRole)
	}

	return StateUpdate{
		Type:           TypeStateUpdate,
		Step:           n.Step,
		State:          n.StateMap,
		StateText:      text,
		IsGoal:         n.IsGoal,
		IsParallel:     n.IsParallel,
		CurrentRoleNum: n.CurrentRole,
		Operators:      ops,
		YourRoleNum:    viewerRole,
		Vis:            vis,
	}
}

// TransitionMsg carries a transition's narration, broadcast before the state
// update it belongs to.
type TransitionMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Step int    `json:"step"`
}

// NewTransitionMsg builds a narration broadcast.
func NewTransitionMsg(text string, step int) TransitionMsg {
	return TransitionMsg{Type: TypeTransitionMsg, Text: text, Step: step}
}

// GoalReached announces the end of the play-through, exactly once.
type GoalReached struct {
	Type        string `json:"type"`
	Step        int    `json:"step"`
	GoalMessage string `json:"goal_message"`
}

// NewGoalReached builds the goal broadcast.
func NewGoalReached(step int, message string) GoalReached {
	return GoalReached{Type: TypeGoalReached, Step: step, GoalMessage: message}
}

// GamePaused reports a successful pause together with the checkpoint that
// captured it.
type GamePaused struct {
	Type         string `json:"type"`
	CheckpointID string `json:"checkpoint_id"`
	Step         int    `json:"step"`
}

// NewGamePaused builds the pause broadcast.
func NewGamePaused(checkpointID string, step int) GamePaused {
	return GamePaused{Type: TypeGamePaused, CheckpointID: checkpointID, Step: step}
}

// GameResumed reports a successful resume.
type GameResumed struct {
	Type string `json:"type"`
	Step int    `json:"step"`
}

// NewGameResumed builds the resume broadcast.
func NewGameResumed(step int) GameResumed {
	return GameResumed{Type: TypeGameResumed, Step: step}
}

// CheckpointList answers a list_checkpoints request.
type CheckpointList struct {
	Type        string               `json:"type"`
	Checkpoints []checkpoint.Summary `json:"checkpoints"`
}

// NewCheckpointList builds the checkpoint catalog reply.
func NewCheckpointList(summaries []checkpoint.Summary) CheckpointList {
	if summaries == nil {
		summaries = []checkpoint.Summary{}
	}
	return CheckpointList{Type: TypeCheckpointList, Checkpoints: summaries}
}

// ErrorMsg reports a rejected request to the requester only; it is never
// broadcast.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewError wraps a rejection for the requester.
func NewError(err error) ErrorMsg {
	return ErrorMsg{Type: TypeError, Message: err.Error()}
}

// NewErrorf formats a rejection for the requester.
func NewErrorf(format string, args ...any) ErrorMsg {
	return ErrorMsg{Type: TypeError, Message: fmt.Sprintf(format, args...)}
}
