package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pixellator/wsz6/internal/bot"
	"github.com/pixellator/wsz6/internal/checkpoint"
	"github.com/pixellator/wsz6/internal/engine"
	"github.com/pixellator/wsz6/internal/formulation"
	"github.com/pixellator/wsz6/internal/platform/id"
	"github.com/pixellator/wsz6/internal/seat"
	"github.com/pixellator/wsz6/internal/wire"
)

// sendBuffer is the depth of every per-participant send channel and of the
// internal notification queue. A participant whose channel stays full for
// this many frames starts losing broadcasts.
const sendBuffer = 64

// ErrSessionClosed rejects attaches to a session that has been removed.
var ErrSessionClosed = errors.New("session closed")

// Session hosts one play-through: the loaded rule module, its engine, the
// seat table, and the send channels of every attached participant.
//
// Engine notifications arrive on an internal queue and are fanned out by a
// dedicated goroutine, so apply calls never block on slow consumers and the
// engine's notify callback never re-enters the engine.
type Session struct {
	id   string
	slug string

	loader   formulation.Loader
	store    checkpoint.Store
	botDelay time.Duration

	cancel context.CancelFunc
	notifs chan engine.Notification

	mu         sync.Mutex
	inst       formulation.Instance
	instClosed bool
	seats      *seat.Manager
	eng        *engine.Engine
	parts      map[string]chan any
	closed     bool
}

func newSession(playthroughID, slug string, inst formulation.Instance, loader formulation.Loader, store checkpoint.Store, botDelay time.Duration) *Session {
	s := &Session{
		id:       playthroughID,
		slug:     slug,
		loader:   loader,
		store:    store,
		botDelay: botDelay,
		notifs:   make(chan engine.Notification, sendBuffer),
		inst:     inst,
		parts:    make(map[string]chan any),
	}
	s.seats = seat.NewManager(inst.Formulation().Roles)
	s.eng = engine.New(playthroughID, inst.Formulation(), s.seats, s.enqueue)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(ctx)
	return s
}

// ID returns the session identifier, which is also the play-through
// identifier of the engine it was created with.
func (s *Session) ID() string { return s.id }

// Slug returns the rule-module slug the session was created for.
func (s *Session) Slug() string { return s.slug }

// Close tears the session down: the fan-out goroutine stops, the rule
// instance is released, and no further participants can attach.
func (s *Session) Close() {
	s.cancel()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.parts = nil
	s.mu.Unlock()

	s.closeInstance()
}

// Join registers a named participant and returns their token. The token is
// the participant's sole credential; losing it means rejoining as somebody
// new.
func (s *Session) Join(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name is required")
	}
	token, err := s.seatManager().AddPlayer(name)
	if err != nil {
		return "", err
	}
	s.broadcastLobby()
	return token, nil
}

// Attach registers a send channel for token and returns it. Attaching again
// with the same token supersedes the previous channel, which is how a
// reconnect takes over from a dead connection. Channels are never closed;
// transports must stop reading when their connection dies.
func (s *Session) Attach(token string) (<-chan any, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("token is required")
	}
	ch := make(chan any, sendBuffer)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	s.parts[token] = ch
	return ch, nil
}

// Detach removes the send channel registered for token. The seat, if any,
// stays assigned so the participant can reconnect into it.
func (s *Session) Detach(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.parts != nil {
		delete(s.parts, token)
	}
}

// RoleFor returns the seat of the participant holding token, or
// seat.Unassigned.
func (s *Session) RoleFor(token string) int {
	return s.seatManager().RoleFor(token)
}

// Reject reports an error to one participant without dispatching anything.
// Transports use it for frames that fail to decode.
func (s *Session) Reject(token string, err error) {
	s.sendTo(token, wire.NewError(err))
}

// SendCurrent pushes the lobby view and, if a play-through is underway, the
// current state to a single participant. Transports call it right after a
// successful attach so clients do not wait for the next broadcast.
func (s *Session) SendCurrent(token string) {
	s.sendTo(token, wire.NewLobbyUpdate(s.seatManager().View()))

	eng := s.engine()
	n, err := eng.Current()
	if err != nil {
		return
	}
	role := s.seatManager().RoleFor(token)
	s.sendTo(token, wire.NewStateUpdate(n, role, s.renderVis(n.State, role)))
}

// Handle dispatches one decoded inbound frame on behalf of token. Rejections
// are reported to the requester alone; accepted mutations surface through
// broadcasts.
func (s *Session) Handle(ctx context.Context, token string, msg wire.Inbound) {
	if err := s.handle(ctx, token, msg); err != nil {
		s.sendTo(token, wire.NewError(err))
	}
}

func (s *Session) handle(ctx context.Context, token string, msg wire.Inbound) error {
	switch msg.Type {
	case wire.TypeAssignRole:
		return s.handleAssignRole(token, msg)
	case wire.TypeUnassign:
		return s.handleUnassign(token)
	case wire.TypeAssignBot:
		return s.handleAssignBot(msg)
	case wire.TypeStartGame:
		return s.handleStart(ctx, msg)
	case wire.TypeApplyOperator:
		return s.handleApply(ctx, token, msg)
	case wire.TypeRequestUndo:
		return s.handleUndo(ctx, token)
	case wire.TypeRequestPause:
		return s.handlePause(ctx, msg)
	case wire.TypeRequestResume:
		return s.handleResume(ctx, msg)
	case wire.TypeListCheckpoints:
		return s.handleListCheckpoints(ctx, token)
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

func (s *Session) handleAssignRole(token string, msg wire.Inbound) error {
	roleNum, err := msg.RequireRoleNum()
	if err != nil {
		return err
	}
	if err := s.seatManager().Assign(token, roleNum); err != nil {
		return err
	}
	s.broadcastLobby()
	return nil
}

func (s *Session) handleUnassign(token string) error {
	if err := s.seatManager().Unassign(token); err != nil {
		return err
	}
	s.broadcastLobby()
	return nil
}

func (s *Session) handleAssignBot(msg wire.Inbound) error {
	roleNum, err := msg.RequireRoleNum()
	if err != nil {
		return err
	}
	strategy, err := bot.ParseStrategy(msg.Strategy)
	if err != nil {
		return err
	}
	if _, err := s.seatManager().AssignBot(roleNum, string(strategy)); err != nil {
		return err
	}
	s.broadcastLobby()

	// A bot seated mid-game may already be on turn.
	s.pokeBots()
	return nil
}

func (s *Session) handleStart(ctx context.Context, msg wire.Inbound) error {
	if err := s.seatManager().StartError(); err != nil {
		return err
	}
	_, err := s.engine().Start(ctx, formulation.Config(msg.Config))
	return err
}

func (s *Session) handleApply(ctx context.Context, token string, msg wire.Inbound) error {
	opIndex, err := msg.RequireOpIndex()
	if err != nil {
		return err
	}
	role := s.seatManager().RoleFor(token)
	if role == seat.Unassigned {
		// Unassigned and the trusted driver role share a sentinel value.
		// Letting it through would skip turn enforcement entirely.
		return errors.New("claim a seat before playing")
	}
	_, err = s.engine().ApplyOperator(ctx, engine.ApplyRequest{
		OpIndex: opIndex,
		Args:    msg.Args,
		Role:    role,
	})
	return err
}

func (s *Session) handleUndo(ctx context.Context, token string) error {
	if s.seatManager().RoleFor(token) == seat.Unassigned {
		return errors.New("claim a seat before requesting an undo")
	}
	_, err := s.engine().Undo(ctx)
	return err
}

// handlePause freezes the play-through and persists a checkpoint. If an
// earlier pause already froze it but saving failed, a repeated request
// re-snapshots the paused engine, so saving is retriable.
func (s *Session) handlePause(ctx context.Context, msg wire.Inbound) error {
	eng := s.engine()

	var (
		cp  checkpoint.Checkpoint
		err error
	)
	if eng.Phase() == engine.PhasePaused {
		cp, err = eng.Snapshot()
	} else {
		cp, err = eng.Pause(ctx)
	}
	if err != nil {
		return err
	}

	cp.CheckpointID, err = id.NewID()
	if err != nil {
		return fmt.Errorf("generate checkpoint id: %w", err)
	}
	cp.Slug = s.slug
	cp.Label = strings.TrimSpace(msg.Label)

	if err := s.store.Save(ctx, cp); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	zap.L().Info("playthrough paused",
		zap.String("playthrough_id", cp.PlaythroughID),
		zap.String("checkpoint_id", cp.CheckpointID),
		zap.Int("step", cp.Step))
	s.broadcast(wire.NewGamePaused(cp.CheckpointID, cp.Step))
	return nil
}

// handleResume loads a stored checkpoint, builds a fresh rule instance and
// engine around it, and swaps them into the session. The undo history does
// not survive: play restarts at the checkpointed step with nothing to undo.
func (s *Session) handleResume(ctx context.Context, msg wire.Inbound) error {
	if s.engine().Phase() == engine.PhaseRunning {
		return errors.New("pause the game before resuming a checkpoint")
	}
	checkpointID := strings.TrimSpace(msg.CheckpointID)
	if checkpointID == "" {
		return errors.New("request_resume requires checkpoint_id")
	}

	cp, err := s.store.Load(ctx, checkpointID)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	inst, err := s.loader.Load(ctx, cp.Slug, cp.PlaythroughID)
	if err != nil {
		return fmt.Errorf("%w: %v", checkpoint.ErrUnavailable, err)
	}

	form := inst.Formulation()
	seats := seat.NewManager(form.Roles)
	eng, err := engine.Resume(cp, form, seats, s.enqueue)
	if err != nil {
		if cerr := inst.Close(); cerr != nil {
			zap.L().Warn("close rule instance", zap.String("playthrough_id", s.id), zap.Error(cerr))
		}
		return err
	}

	s.mu.Lock()
	oldInst, oldClosed := s.inst, s.instClosed
	s.inst = inst
	s.instClosed = false
	s.seats = seats
	s.eng = eng
	s.mu.Unlock()

	if !oldClosed {
		if cerr := oldInst.Close(); cerr != nil {
			zap.L().Warn("close rule instance", zap.String("playthrough_id", s.id), zap.Error(cerr))
		}
	}

	zap.L().Info("playthrough resumed",
		zap.String("playthrough_id", cp.PlaythroughID),
		zap.String("checkpoint_id", cp.CheckpointID),
		zap.Int("step", cp.Step))

	s.broadcast(wire.NewGameResumed(cp.Step))
	s.broadcastLobby()

	// Resume does not notify on its own; push the restored state out and
	// let any restored bot seats pick their turns back up.
	if n, err := eng.Current(); err == nil {
		s.enqueue(n)
	}
	return nil
}

func (s *Session) handleListCheckpoints(ctx context.Context, token string) error {
	sums, err := s.store.List(ctx, s.engine().PlaythroughID())
	if err != nil {
		return fmt.Errorf("list checkpoints: %w", err)
	}
	s.sendTo(token, wire.NewCheckpointList(sums))
	return nil
}

// enqueue is the engine's notify callback. It runs inside the engine's
// critical section, so it must neither block nor call back into the engine;
// a full queue drops the notification and the bot scheduler re-reads the
// live state on its next pass.
func (s *Session) enqueue(n engine.Notification) {
	select {
	case s.notifs <- n:
	default:
		zap.L().Warn("notification queue full, dropping",
			zap.String("playthrough_id", s.id), zap.Int("step", n.Step))
	}
}

// pokeBots schedules a bot pass without a state change, used when a bot is
// seated into a game that is already waiting on its role.
func (s *Session) pokeBots() {
	n, err := s.engine().Current()
	if err != nil || n.Phase != engine.PhaseRunning {
		return
	}
	s.enqueue(n)
}

func (s *Session) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-s.notifs:
			s.broadcastNotification(n)
			s.runBots(ctx)
		}
	}
}

// broadcastNotification fans one engine notification out to every attached
// participant: the transition message first, then a per-viewer state update,
// then the goal announcement when the play-through just ended.
func (s *Session) broadcastNotification(n engine.Notification) {
	if n.TransitionMessage != "" {
		s.broadcast(wire.NewTransitionMsg(n.TransitionMessage, n.Step))
	}

	seats := s.seatManager()
	for token, ch := range s.participants() {
		role := seats.RoleFor(token)
		s.push(token, ch, wire.NewStateUpdate(n, role, s.renderVis(n.State, role)))
	}

	if n.IsGoal && n.GoalMessage != "" {
		s.closeInstance()
		s.broadcast(wire.NewGoalReached(n.Step, n.GoalMessage))
	}
}

// runBots plays every bot seat that is due until no bot is due anymore. Each
// applied move lands back on the notification queue, so broadcasts for bot
// moves follow the same path as human ones.
//
// The fired set is scoped to this pass: a (step, role) pair is attempted at
// most once per pass, which stops a declining bot from spinning the loop,
// while a later pass after an undo may legitimately replay the same step.
func (s *Session) runBots(ctx context.Context) {
	fired := make(map[[2]int]bool)
	for {
		if ctx.Err() != nil {
			return
		}
		eng := s.engine()
		n, err := eng.Current()
		if err != nil || n.Phase != engine.PhaseRunning {
			return
		}

		seats := s.seatManager()
		var due []seat.Player
		if n.IsParallel {
			due = seats.Bots()
		} else if p, ok := seats.PlayerAt(n.CurrentRole); ok && p.IsBot {
			due = []seat.Player{p}
		}

		moved := false
		for _, p := range due {
			key := [2]int{n.Step, p.RoleNum}
			if fired[key] || !hasBotMove(n.Ops, p.RoleNum) {
				continue
			}
			fired[key] = true

			strategy, err := bot.ParseStrategy(p.Strategy)
			if err != nil {
				zap.L().Warn("bot has unknown strategy",
					zap.String("playthrough_id", s.id),
					zap.Int("role_num", p.RoleNum), zap.Error(err))
				continue
			}
			actor := &bot.Actor{Role: p.RoleNum, Strategy: strategy, Delay: s.botDelay}
			did, err := actor.MaybeMove(ctx, eng)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					zap.L().Warn("bot move failed",
						zap.String("playthrough_id", s.id),
						zap.Int("role_num", p.RoleNum), zap.Error(err))
				}
				return
			}
			if did {
				// Re-read the state so the next bot sees this move.
				moved = true
				break
			}
		}
		if !moved {
			return
		}
	}
}

// hasBotMove reports whether ops holds at least one operator a bot seated at
// role could actually pick.
func hasBotMove(ops []formulation.OpInfo, role int) bool {
	for _, op := range ops {
		if !op.Applicable || len(op.Params) > 0 {
			continue
		}
		if op.Role == formulation.RoleAny || op.Role == role {
			return true
		}
	}
	return false
}

func (s *Session) broadcastLobby() {
	s.broadcast(wire.NewLobbyUpdate(s.seatManager().View()))
}

func (s *Session) broadcast(msg any) {
	for token, ch := range s.participants() {
		s.push(token, ch, msg)
	}
}

func (s *Session) sendTo(token string, msg any) {
	s.mu.Lock()
	ch, ok := s.parts[token]
	s.mu.Unlock()
	if ok {
		s.push(token, ch, msg)
	}
}

func (s *Session) push(token string, ch chan any, msg any) {
	select {
	case ch <- msg:
	default:
		zap.L().Warn("participant send buffer full, dropping",
			zap.String("playthrough_id", s.id),
			zap.Int("role_num", s.seatManager().RoleFor(token)))
	}
}

func (s *Session) participants() map[string]chan any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]chan any, len(s.parts))
	for token, ch := range s.parts {
		out[token] = ch
	}
	return out
}

func (s *Session) engine() *engine.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng
}

func (s *Session) seatManager() *seat.Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seats
}

func (s *Session) renderVis(state formulation.State, role int) string {
	s.mu.Lock()
	renderer := s.inst.Formulation().Renderer
	s.mu.Unlock()
	if renderer == nil {
		return ""
	}
	out, err := renderer.RenderState(state, role)
	if err != nil {
		zap.L().Debug("render state", zap.String("playthrough_id", s.id), zap.Error(err))
		return ""
	}
	return out
}

func (s *Session) closeInstance() {
	s.mu.Lock()
	if s.instClosed {
		s.mu.Unlock()
		return
	}
	s.instClosed = true
	inst := s.inst
	s.mu.Unlock()

	if err := inst.Close(); err != nil {
		zap.L().Warn("close rule instance", zap.String("playthrough_id", s.id), zap.Error(err))
	}
}
