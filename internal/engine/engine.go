package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/pixellator/wsz6/internal/checkpoint"
	"github.com/pixellator/wsz6/internal/formulation"
	"github.com/pixellator/wsz6/internal/seat"
)

// NoRole marks a request whose caller holds no seat. Trusted drivers such as
// the playtest CLI use it to bypass turn enforcement; networked participants
// always carry their real role.
const NoRole = -1

// DefaultGoalMessage congratulates players of formulations that do not carry
// their own goal message.
const DefaultGoalMessage = "Goal reached!"

var tracer = otel.Tracer("wsz6/engine")

// Phase tracks the lifecycle of a play-through.
type Phase int

const (
	PhaseCreated Phase = iota
	PhaseRunning
	PhasePaused
	PhaseEnded
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseRunning:
		return "running"
	case PhasePaused:
		return "paused"
	case PhaseEnded:
		return "ended"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Notification is the immutable snapshot handed to the notify callback after
// every successful mutation. GoalMessage is set on the single notification
// that ends the play-through.
type Notification struct {
	PlaythroughID     string
	Step              int
	Phase             Phase
	State             formulation.State
	StateMap          map[string]any
	Ops               []formulation.OpInfo
	CurrentRole       int
	IsParallel        bool
	IsGoal            bool
	TransitionMessage string
	GoalMessage       string
}

// NotifyFunc receives notifications. It runs inside the engine's critical
// section and must not call back into the engine.
type NotifyFunc func(Notification)

// ApplyRequest names one requested move.
type ApplyRequest struct {
	OpIndex int
	Args    []any

	// Role is the seat of the requester, or NoRole for trusted drivers.
	Role int
}

// Engine drives one play-through. All mutating methods serialize on a single
// mutex; see the package documentation for the lifecycle rules.
type Engine struct {
	playthroughID string
	form          *formulation.Formulation
	seats         *seat.Manager
	notify        NotifyFunc

	mu        sync.Mutex
	phase     Phase
	stack     []formulation.State
	opHistory []int
	step      int
}

// New creates an engine in the Created phase. A nil notify is allowed for
// callers that poll Current instead.
func New(playthroughID string, form *formulation.Formulation, seats *seat.Manager, notify NotifyFunc) *Engine {
	if notify == nil {
		notify = func(Notification) {}
	}
	return &Engine{
		playthroughID: playthroughID,
		form:          form,
		seats:         seats,
		notify:        notify,
	}
}

// Resume builds a Running engine from a checkpoint and a fresh rule-module
// instance. The restored play-through keeps its identity and step counter but
// starts with an empty undo history: moves taken before the checkpoint cannot
// be unwound.
func Resume(cp checkpoint.Checkpoint, form *formulation.Formulation, seats *seat.Manager, notify NotifyFunc) (*Engine, error) {
	if form.Restore == nil {
		return nil, fmt.Errorf("%w: %s does not support restore", checkpoint.ErrUnavailable, form.Metadata.Name)
	}

	s, err := restoreState(form, cp.State)
	if err != nil {
		return nil, err
	}

	records := make([]seat.Record, 0, len(cp.RoleAssignments))
	for key, st := range cp.RoleAssignments {
		roleNum, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: bad role key %q", checkpoint.ErrUnavailable, key)
		}
		records = append(records, seat.Record{
			Token:    st.Token,
			Name:     st.Name,
			RoleNum:  roleNum,
			IsBot:    st.IsBot,
			Strategy: st.Strategy,
		})
	}
	if err := seats.RestoreSnapshot(records); err != nil {
		return nil, fmt.Errorf("%w: %v", checkpoint.ErrUnavailable, err)
	}

	e := New(cp.PlaythroughID, form, seats, notify)
	e.stack = []formulation.State{s}
	e.step = cp.Step
	e.phase = PhaseRunning
	return e, nil
}

// PlaythroughID returns the identity of this play-through.
func (e *Engine) PlaythroughID() string { return e.playthroughID }

// Phase returns the current lifecycle phase.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Step returns the number of applied moves currently on the stack.
func (e *Engine) Step() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.step
}

// Start initializes the play-through and emits the first notification. A
// failed initialization leaves the engine in Created so a corrected config
// can retry.
func (e *Engine) Start(ctx context.Context, cfg formulation.Config) (formulation.State, error) {
	_, span := tracer.Start(ctx, "engine.start", trace.WithAttributes(
		attribute.String("playthrough.id", e.playthroughID),
	))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.phase {
	case PhaseRunning, PhasePaused:
		return nil, ErrAlreadyStarted
	case PhaseEnded:
		return nil, ErrEnded
	}

	s, err := e.initialize(cfg)
	if err != nil {
		return nil, err
	}

	e.stack = []formulation.State{s}
	e.opHistory = nil
	e.step = 0
	e.phase = PhaseRunning
	e.notify(e.buildNotificationLocked(""))
	return s, nil
}

// ApplyOperator applies one move on behalf of a role. On success the new
// state is pushed, the step counter advances, and one notification fires. On
// rejection the history is untouched.
func (e *Engine) ApplyOperator(ctx context.Context, req ApplyRequest) (formulation.State, error) {
	_, span := tracer.Start(ctx, "engine.apply_operator", trace.WithAttributes(
		attribute.String("playthrough.id", e.playthroughID),
		attribute.Int("operator.index", req.OpIndex),
		attribute.Int("requester.role", req.Role),
	))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.runningLocked(); err != nil {
		return nil, err
	}
	if req.OpIndex < 0 || req.OpIndex >= len(e.form.Operators) {
		return nil, fmt.Errorf("%w: index %d", ErrInvalidOperator, req.OpIndex)
	}
	op := e.form.Operators[req.OpIndex]
	cur := e.stack[len(e.stack)-1]

	// The precondition is judged before turn enforcement, so a move that is
	// impossible in the current state reports ErrPrecondition no matter who
	// asked.
	if !op.Applicable(cur) {
		return nil, fmt.Errorf("%w: %s", ErrPrecondition, op.DisplayName(cur))
	}

	// Role restriction holds in every phase; turn order only outside
	// parallel phases. Both are judged against the server's own seat data,
	// never the client's claim.
	if req.Role != NoRole && op.Role != formulation.RoleAny {
		if req.Role != op.Role {
			return nil, fmt.Errorf("%w: %s belongs to role %d", ErrNotYourTurn, op.DisplayName(cur), op.Role)
		}
		if !cur.Parallel() && req.Role != cur.CurrentRole() {
			return nil, fmt.Errorf("%w: current role is %d", ErrNotYourTurn, cur.CurrentRole())
		}
	}

	next, err := e.transition(op, cur, req.Args)
	if err != nil {
		return nil, err
	}

	e.stack = append(e.stack, next)
	e.opHistory = append(e.opHistory, req.OpIndex)
	e.step++

	transitionMsg := ""
	if m, ok := next.(formulation.TransitionMessenger); ok {
		transitionMsg = m.TransitionMessage()
	}
	if safeIsGoal(next) {
		e.phase = PhaseEnded
	}
	e.notify(e.buildNotificationLocked(transitionMsg))
	return next, nil
}

// Undo pops the most recent move and emits a notification for the restored
// state. Undo is blocked when it would land inside a parallel phase, unless
// the operator being unwound explicitly allows it.
func (e *Engine) Undo(ctx context.Context) (formulation.State, error) {
	_, span := tracer.Start(ctx, "engine.undo", trace.WithAttributes(
		attribute.String("playthrough.id", e.playthroughID),
	))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.runningLocked(); err != nil {
		return nil, err
	}
	// The stack is the only unwindable past: a resumed engine carries its
	// step counter but starts with a single state and no history.
	if len(e.opHistory) == 0 {
		return nil, ErrNothingToUndo
	}

	prev := e.stack[len(e.stack)-2]
	lastOp := e.form.Operators[e.opHistory[len(e.opHistory)-1]]
	if prev.Parallel() && !lastOp.AllowUndoInParallel {
		return nil, fmt.Errorf("%w: %s", ErrUndoBlocked, lastOp.Name)
	}

	e.stack = e.stack[:len(e.stack)-1]
	e.opHistory = e.opHistory[:len(e.opHistory)-1]
	e.step--
	e.notify(e.buildNotificationLocked(""))
	return prev, nil
}

// Snapshot captures the play-through as a checkpoint without changing phase.
// The caller decorates the result with an ID, slug, and label before saving.
func (e *Engine) Snapshot() (checkpoint.Checkpoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Pause snapshots the play-through and freezes it. Further moves fail with
// ErrPaused until a resumed engine takes over.
func (e *Engine) Pause(ctx context.Context) (checkpoint.Checkpoint, error) {
	_, span := tracer.Start(ctx, "engine.pause", trace.WithAttributes(
		attribute.String("playthrough.id", e.playthroughID),
	))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.runningLocked(); err != nil {
		return checkpoint.Checkpoint{}, err
	}
	cp, err := e.snapshotLocked()
	if err != nil {
		return checkpoint.Checkpoint{}, err
	}
	e.phase = PhasePaused
	return cp, nil
}

// Current rebuilds the notification for the present position without
// mutating anything. Connect-time sends and resume announcements use it.
func (e *Engine) Current() (Notification, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.stack) == 0 {
		return Notification{}, ErrNotStarted
	}
	return e.buildNotificationLocked(""), nil
}

func (e *Engine) runningLocked() error {
	switch e.phase {
	case PhaseCreated:
		return ErrNotStarted
	case PhasePaused:
		return ErrPaused
	case PhaseEnded:
		return ErrEnded
	}
	return nil
}

func (e *Engine) initialize(cfg formulation.Config) (s formulation.State, err error) {
	defer func() {
		if r := recover(); r != nil {
			s = nil
			err = fmt.Errorf("%w: panic: %v", ErrInitialization, r)
		}
	}()

	s, ierr := e.form.Initialize(cfg)
	if ierr != nil {
		return nil, fmt.Errorf("%w: %v", ErrInitialization, ierr)
	}
	if s == nil {
		return nil, fmt.Errorf("%w: no state produced", ErrInitialization)
	}
	return s, nil
}

func (e *Engine) transition(op formulation.Operator, cur formulation.State, args []any) (next formulation.State, err error) {
	defer func() {
		if r := recover(); r != nil {
			next = nil
			err = fmt.Errorf("%w: panic in %s: %v", ErrTransition, op.Name, r)
		}
	}()

	// Operators without declared params never see caller args.
	if len(op.Params) == 0 {
		args = nil
	}
	next, terr := op.Transition(cur, args)
	if terr != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransition, terr)
	}
	if next == nil {
		return nil, fmt.Errorf("%w: %s produced no state", ErrTransition, op.Name)
	}
	return next, nil
}

func restoreState(form *formulation.Formulation, m map[string]any) (s formulation.State, err error) {
	defer func() {
		if r := recover(); r != nil {
			s = nil
			err = fmt.Errorf("%w: restore panicked: %v", checkpoint.ErrUnavailable, r)
		}
	}()

	s, rerr := form.Restore(formulation.CloneStateMap(m))
	if rerr != nil {
		return nil, fmt.Errorf("%w: %v", checkpoint.ErrUnavailable, rerr)
	}
	if s == nil {
		return nil, fmt.Errorf("%w: restore produced no state", checkpoint.ErrUnavailable)
	}
	return s, nil
}

func (e *Engine) snapshotLocked() (checkpoint.Checkpoint, error) {
	if len(e.stack) == 0 {
		return checkpoint.Checkpoint{}, ErrNotStarted
	}
	cur := e.stack[len(e.stack)-1]
	m, err := formulation.EncodeState(cur)
	if err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("snapshot state: %w", err)
	}

	assignments := make(map[string]checkpoint.Seat)
	for _, r := range e.seats.Snapshot() {
		assignments[strconv.Itoa(r.RoleNum)] = checkpoint.Seat{
			Token:    r.Token,
			Name:     r.Name,
			IsBot:    r.IsBot,
			Strategy: r.Strategy,
		}
	}

	return checkpoint.Checkpoint{
		PlaythroughID:   e.playthroughID,
		Step:            e.step,
		State:           m,
		RoleAssignments: assignments,
	}, nil
}

func (e *Engine) buildNotificationLocked(transitionMsg string) Notification {
	cur := e.stack[len(e.stack)-1]
	m, err := formulation.EncodeState(cur)
	if err != nil {
		zap.L().Warn("encode state for notification",
			zap.String("playthrough_id", e.playthroughID), zap.Error(err))
		m = map[string]any{}
	}

	n := Notification{
		PlaythroughID:     e.playthroughID,
		Step:              e.step,
		Phase:             e.phase,
		State:             cur,
		StateMap:          m,
		Ops:               e.form.OpsInfo(cur),
		CurrentRole:       cur.CurrentRole(),
		IsParallel:        cur.Parallel(),
		IsGoal:            safeIsGoal(cur),
		TransitionMessage: transitionMsg,
	}
	if n.IsGoal && e.phase == PhaseEnded {
		n.GoalMessage = goalMessage(cur)
	}
	return n
}

func goalMessage(s formulation.State) string {
	if gm, ok := s.(formulation.GoalMessenger); ok {
		if msg := gm.GoalMessage(); msg != "" {
			return msg
		}
	}
	return DefaultGoalMessage
}

func safeIsGoal(s formulation.State) (goal bool) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Debug("goal check panicked", zap.Any("panic", r))
			goal = false
		}
	}()
	return s.IsGoal()
}
