package ws_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pixellator/wsz6/internal/checkpoint"
	"github.com/pixellator/wsz6/internal/formulation"
	"github.com/pixellator/wsz6/internal/portal"
	"github.com/pixellator/wsz6/internal/transport/ws"
)

// rallyState is a two-player rally that ends after two hits.
type rallyState struct {
	count int
	turn  int
}

func (s rallyState) CurrentRole() int { return s.turn }
func (s rallyState) Parallel() bool   { return false }
func (s rallyState) IsGoal() bool     { return s.count >= 2 }
func (s rallyState) StateMap() map[string]any {
	return map[string]any{"count": s.count, "turn": s.turn}
}

func hit(next int) func(formulation.State, []any) (formulation.State, error) {
	return func(s formulation.State, _ []any) (formulation.State, error) {
		r := s.(rallyState)
		return rallyState{count: r.count + 1, turn: next}, nil
	}
}

func rallyGame() *formulation.Formulation {
	return &formulation.Formulation{
		Metadata: formulation.Metadata{Name: "Rally"},
		Roles: formulation.RoleSpec{Roles: []formulation.Role{
			{Name: "Ping"}, {Name: "Pong"},
		}},
		Operators: []formulation.Operator{
			{
				Name:         "Ping hits",
				Role:         0,
				Precondition: func(s formulation.State) bool { return s.(rallyState).turn == 0 },
				Transition:   hit(1),
			},
			{
				Name:         "Pong hits",
				Role:         1,
				Precondition: func(s formulation.State) bool { return s.(rallyState).turn == 1 },
				Transition:   hit(0),
			},
		},
		Initialize: func(formulation.Config) (formulation.State, error) {
			return rallyState{}, nil
		},
	}
}

type stubLoader struct{}

func (stubLoader) Load(_ context.Context, slug, playthroughID string) (formulation.Instance, error) {
	if slug != "rally" {
		return nil, fmt.Errorf("%w: %s", formulation.ErrUnknownGame, slug)
	}
	return &stubInstance{form: rallyGame(), key: slug + "/" + playthroughID}, nil
}

type stubInstance struct {
	form *formulation.Formulation
	key  string
}

func (in *stubInstance) Formulation() *formulation.Formulation { return in.form }
func (in *stubInstance) Key() string                           { return in.key }
func (in *stubInstance) Close() error                          { return nil }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	reg := portal.NewRegistry(stubLoader{}, checkpoint.NewMemoryStore())
	reg.BotDelay = 0
	srv := ws.NewServer(":0", reg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		reg.Close()
	})
	return ts
}

func createSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/sessions", "application/json", strings.NewReader(`{"slug":"rally"}`))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d", resp.StatusCode)
	}
	var payload struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if payload.SessionID == "" {
		t.Fatal("create response has no session_id")
	}
	return payload.SessionID
}

func dialPlay(t *testing.T, ts *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/play/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m map[string]any
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return m
}

// awaitFrame reads until a frame of the wanted type arrives. An unexpected
// error frame fails the test with its message.
func awaitFrame(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	for i := 0; i < 32; i++ {
		m := readFrame(t, conn)
		if m["type"] == typ {
			return m
		}
		if m["type"] == "error" && typ != "error" {
			t.Fatalf("waiting for %s, got error frame: %v", typ, m["message"])
		}
	}
	t.Fatalf("no %s frame within 32 reads", typ)
	return nil
}

func hello(t *testing.T, conn *websocket.Conn, name string) string {
	t.Helper()
	writeFrame(t, conn, map[string]any{"type": "hello", "name": name})
	w := awaitFrame(t, conn, "welcome")
	token, _ := w["token"].(string)
	if token == "" {
		t.Fatal("welcome carries no token")
	}
	return token
}

func TestCreateSessionValidation(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", "{", http.StatusBadRequest},
		{"missing slug", `{}`, http.StatusBadRequest},
		{"unknown slug", `{"slug":"croquet"}`, http.StatusNotFound},
		{"known slug", `{"slug":"rally"}`, http.StatusCreated},
	}
	for _, tc := range cases {
		resp, err := http.Post(ts.URL+"/api/sessions", "application/json", strings.NewReader(tc.body))
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Fatalf("%s: status = %d, want %d", tc.name, resp.StatusCode, tc.want)
		}
	}
}

func TestPlayRejectsUnknownSession(t *testing.T) {
	ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/play/nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake failure for unknown session")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 handshake response, got %+v", resp)
	}
}

func TestHelloHandshake(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts)
	conn := dialPlay(t, ts, id)

	writeFrame(t, conn, map[string]any{"type": "hello", "name": "Ann"})
	w := awaitFrame(t, conn, "welcome")
	if w["slug"] != "rally" {
		t.Fatalf("welcome slug = %v, want rally", w["slug"])
	}
	if w["your_role_num"] != float64(-1) {
		t.Fatalf("fresh joiner role = %v, want -1", w["your_role_num"])
	}

	// The connect-time snapshot follows immediately.
	lu := awaitFrame(t, conn, "lobby_update")
	roles, _ := lu["roles"].([]any)
	if len(roles) != 2 {
		t.Fatalf("lobby roles = %d, want 2", len(roles))
	}
	if lu["can_start"] != false {
		t.Fatal("empty lobby must not be startable")
	}
}

func TestFirstFrameMustBeHello(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts)
	conn := dialPlay(t, ts, id)

	writeFrame(t, conn, map[string]any{"type": "assign_role", "role_num": 0})
	m := readFrame(t, conn)
	if m["type"] != "error" || !strings.Contains(m["message"].(string), "expected hello") {
		t.Fatalf("unexpected reply to non-hello first frame: %v", m)
	}
}

func TestReconnectKeepsSeat(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts)

	conn := dialPlay(t, ts, id)
	token := hello(t, conn, "Ann")
	writeFrame(t, conn, map[string]any{"type": "assign_role", "role_num": 0})
	awaitFrame(t, conn, "lobby_update")
	conn.Close()

	// A new connection presenting the old token resumes the same seat.
	again := dialPlay(t, ts, id)
	writeFrame(t, again, map[string]any{"type": "hello", "token": token})
	w := awaitFrame(t, again, "welcome")
	if w["token"] != token {
		t.Fatalf("reconnect token = %v, want original", w["token"])
	}
	if w["your_role_num"] != float64(0) {
		t.Fatalf("reconnect role = %v, want 0", w["your_role_num"])
	}
}

func TestRallyOverWire(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts)

	ann := dialPlay(t, ts, id)
	bob := dialPlay(t, ts, id)
	hello(t, ann, "Ann")
	hello(t, bob, "Bob")

	writeFrame(t, ann, map[string]any{"type": "assign_role", "role_num": 0})
	writeFrame(t, bob, map[string]any{"type": "assign_role", "role_num": 1})

	// Both assigns race on separate connections; wait until the lobby shows
	// a startable table before asking for the start.
	for i := 0; i < 4; i++ {
		if lu := awaitFrame(t, ann, "lobby_update"); lu["can_start"] == true {
			break
		}
	}
	writeFrame(t, ann, map[string]any{"type": "start_game"})

	suAnn := awaitFrame(t, ann, "state_update")
	suBob := awaitFrame(t, bob, "state_update")
	if suAnn["your_role_num"] != float64(0) || suBob["your_role_num"] != float64(1) {
		t.Fatalf("viewer roles = %v/%v, want 0/1", suAnn["your_role_num"], suBob["your_role_num"])
	}

	writeFrame(t, ann, map[string]any{"type": "apply_operator", "op_index": 0})
	su := awaitFrame(t, bob, "state_update")
	state, _ := su["state"].(map[string]any)
	if state["count"] != float64(1) {
		t.Fatalf("count after first hit = %v, want 1", state["count"])
	}

	writeFrame(t, bob, map[string]any{"type": "apply_operator", "op_index": 1})
	goal := awaitFrame(t, ann, "goal_reached")
	if goal["goal_message"] != "Goal reached!" {
		t.Fatalf("goal message = %v", goal["goal_message"])
	}
	if goal["step"] != float64(2) {
		t.Fatalf("goal at step %v, want 2", goal["step"])
	}
}

func TestMalformedFrameGetsErrorReply(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts)
	conn := dialPlay(t, ts, id)
	hello(t, conn, "Ann")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	m := awaitFrame(t, conn, "error")
	if !strings.Contains(m["message"].(string), "malformed message") {
		t.Fatalf("unexpected error reply: %v", m)
	}
}
