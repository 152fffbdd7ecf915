package wire_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/pixellator/wsz6/internal/engine"
	"github.com/pixellator/wsz6/internal/formulation"
	"github.com/pixellator/wsz6/internal/seat"
	"github.com/pixellator/wsz6/internal/wire"
)

func TestDecodeApplyOperator(t *testing.T) {
	m, err := wire.Decode([]byte(`{"type":"apply_operator","op_index":0,"args":[3]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Type != wire.TypeApplyOperator {
		t.Fatalf("type = %q", m.Type)
	}
	idx, err := m.RequireOpIndex()
	if err != nil {
		t.Fatalf("op index: %v", err)
	}
	if idx != 0 {
		t.Fatalf("op index = %d, want 0", idx)
	}
	if len(m.Args) != 1 {
		t.Fatalf("args = %v", m.Args)
	}
}

func TestDecodeRejectsBadFrames(t *testing.T) {
	if _, err := wire.Decode([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed frame")
	}
	if _, err := wire.Decode([]byte(`{"op_index":1}`)); err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestRequireFieldsReportAbsence(t *testing.T) {
	m, err := wire.Decode([]byte(`{"type":"apply_operator"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := m.RequireOpIndex(); err == nil {
		t.Fatal("expected error for absent op_index")
	}

	m, err = wire.Decode([]byte(`{"type":"assign_bot","strategy":"first"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := m.RequireRoleNum(); err == nil {
		t.Fatal("expected error for absent role_num")
	}

	// Zero is a valid value, not an absence.
	m, err = wire.Decode([]byte(`{"type":"assign_role","role_num":0}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	role, err := m.RequireRoleNum()
	if err != nil {
		t.Fatalf("role num: %v", err)
	}
	if role != 0 {
		t.Fatalf("role num = %d, want 0", role)
	}
}

type maskedState struct{ role int }

func (s maskedState) CurrentRole() int { return s.role }
func (s maskedState) Parallel() bool   { return false }
func (s maskedState) IsGoal() bool     { return false }

func (s maskedState) ViewForRole(roleNum int) string {
	if roleNum == s.role {
		return "your secret hand"
	}
	return "somebody else's turn"
}

func sampleNotification() engine.Notification {
	return engine.Notification{
		PlaythroughID: "pt-1",
		Step:          3,
		State:         maskedState{role: 1},
		StateMap:      map[string]any{"n": 3},
		CurrentRole:   1,
		Ops: []formulation.OpInfo{
			{Index: 0, Name: "move for role 0", Applicable: true, Role: 0},
			{Index: 1, Name: "move for role 1", Applicable: true, Role: 1},
			{Index: 2, Name: "open move", Applicable: false, Role: formulation.RoleAny},
		},
	}
}

func TestStateUpdateFiltersOperatorsPerViewer(t *testing.T) {
	n := sampleNotification()

	u := wire.NewStateUpdate(n, 0, "")
	if len(u.Operators) != 2 {
		t.Fatalf("viewer 0 operators = %v", u.Operators)
	}
	if u.Operators[0].Index != 0 || u.Operators[1].Index != 2 {
		t.Fatalf("viewer 0 kept wrong operators: %v", u.Operators)
	}
	if u.YourRoleNum != 0 {
		t.Fatalf("your_role_num = %d", u.YourRoleNum)
	}

	// An unseated viewer keeps only unrestricted operators.
	u = wire.NewStateUpdate(n, seat.Unassigned, "")
	if len(u.Operators) != 1 || u.Operators[0].Index != 2 {
		t.Fatalf("unseated viewer operators = %v", u.Operators)
	}
}

func TestStateUpdateCarriesPerViewerText(t *testing.T) {
	n := sampleNotification()

	if u := wire.NewStateUpdate(n, 1, ""); u.StateText != "your secret hand" {
		t.Fatalf("viewer 1 text = %q", u.StateText)
	}
	if u := wire.NewStateUpdate(n, 0, ""); u.StateText != "somebody else's turn" {
		t.Fatalf("viewer 0 text = %q", u.StateText)
	}
}

func TestStateUpdateAttachesVis(t *testing.T) {
	u := wire.NewStateUpdate(sampleNotification(), 1, "<svg/>")
	if u.Vis != "<svg/>" {
		t.Fatalf("vis = %q", u.Vis)
	}

	raw, err := json.Marshal(wire.NewStateUpdate(sampleNotification(), 1, ""))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), `"vis"`) {
		t.Fatalf("empty vis must be omitted: %s", raw)
	}
}

func TestLobbyUpdateMarshalsFlat(t *testing.T) {
	v := seat.View{
		Roles:    []seat.RoleStatus{{RoleNum: 0, Name: "P1"}},
		CanStart: true,
	}
	raw, err := json.Marshal(wire.NewLobbyUpdate(v))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["type"] != wire.TypeLobbyUpdate {
		t.Fatalf("type = %v", m["type"])
	}
	if _, ok := m["roles"]; !ok {
		t.Fatalf("roles not at top level: %s", raw)
	}
	if m["can_start"] != true {
		t.Fatalf("can_start = %v", m["can_start"])
	}
}

func TestCheckpointListNeverNull(t *testing.T) {
	raw, err := json.Marshal(wire.NewCheckpointList(nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"checkpoints":[]`) {
		t.Fatalf("empty list must marshal as []: %s", raw)
	}
}
