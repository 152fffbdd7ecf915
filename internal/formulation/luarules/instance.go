package luarules

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Shopify/go-lua"
	"go.uber.org/zap"

	"github.com/pixellator/wsz6/internal/formulation"
)

// Instance is one play-through's private copy of a Lua rule module. Every
// entry into the interpreter is serialized by the instance mutex, so rule
// functions never observe a half-finished stack even when preconditions and
// renders run concurrently.
type Instance struct {
	slug string
	key  string
	ld   *Loader

	mu     sync.Mutex
	l      *lua.State
	def    *ruleDef
	form   *formulation.Formulation
	closed bool
}

var (
	_ formulation.Instance = (*Instance)(nil)
	_ formulation.Renderer = (*Instance)(nil)
)

// Formulation returns the loaded formulation.
func (in *Instance) Formulation() *formulation.Formulation { return in.form }

// Key identifies this instance, unique per slug and play-through.
func (in *Instance) Key() string { return in.key }

// Close releases the instance's registry entry. The interpreter itself is
// reclaimed by the garbage collector once the last state reference drops.
func (in *Instance) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return fmt.Errorf("rule instance %s already closed", in.key)
	}
	in.closed = true
	in.ld.release(in.key)
	return nil
}

// buildFormulation wires the accumulated rule definition into a formulation
// whose functions call back into this instance's interpreter.
func (in *Instance) buildFormulation() (*formulation.Formulation, error) {
	def := in.def
	form := &formulation.Formulation{
		Metadata: def.meta,
		Roles:    def.roles,
	}

	for i := range def.ops {
		op := def.ops[i]
		fop := formulation.Operator{
			Name:                op.name,
			Description:         op.description,
			Role:                op.role,
			AllowUndoInParallel: op.allowUndo,
			Params:              op.params,
			Transition: func(s formulation.State, args []any) (formulation.State, error) {
				return in.callTransition(op.transitionRef, s, args)
			},
		}
		if op.precondRef != noRef {
			fop.Precondition = func(s formulation.State) bool {
				return in.callPrecondition(op.precondRef, s)
			}
		}
		if op.nameRef != noRef {
			fop.NameFor = func(s formulation.State) string {
				return in.callNamer(op.nameRef, s)
			}
		}
		form.Operators = append(form.Operators, fop)
	}

	if def.initRef != noRef {
		form.Initialize = in.initialize
	}
	form.Restore = in.restore
	if def.renderRef != noRef {
		form.Renderer = in
	}

	if err := form.Validate(); err != nil {
		return nil, err
	}
	return form, nil
}

func (in *Instance) initialize(cfg formulation.Config) (formulation.State, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return nil, errors.New("rule instance closed")
	}

	l := in.l
	base := l.Top()
	pushStoredRef(l, in.def.initRef)
	pushMap(l, cfg)
	if err := l.ProtectedCall(1, 1, 0); err != nil {
		l.SetTop(base)
		return nil, fmt.Errorf("initialize: %w", err)
	}
	if l.TypeOf(-1) != lua.TypeTable {
		l.SetTop(base)
		return nil, errors.New("initialize must return a state table")
	}
	st := in.buildStateLocked(-1)
	l.SetTop(base)
	return st, nil
}

// restore rebuilds a state snapshot from its serialized map, re-deriving the
// goal flag and per-role views against the current rule functions.
func (in *Instance) restore(data map[string]any) (formulation.State, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return nil, errors.New("rule instance closed")
	}

	l := in.l
	base := l.Top()
	pushMap(l, formulation.CloneStateMap(data))
	st := in.buildStateLocked(-1)
	l.SetTop(base)
	return st, nil
}

func (in *Instance) callTransition(ref int, s formulation.State, args []any) (formulation.State, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return nil, errors.New("rule instance closed")
	}
	data, ok := stateData(s)
	if !ok {
		return nil, errors.New("state was not produced by this rule module")
	}

	l := in.l
	base := l.Top()
	pushStoredRef(l, ref)
	pushMap(l, data)
	for _, a := range args {
		pushValue(l, a)
	}
	if err := l.ProtectedCall(1+len(args), 1, 0); err != nil {
		l.SetTop(base)
		return nil, fmt.Errorf("transition: %w", err)
	}
	if l.TypeOf(-1) != lua.TypeTable {
		l.SetTop(base)
		return nil, errors.New("transition must return a state table")
	}
	st := in.buildStateLocked(-1)
	l.SetTop(base)
	return st, nil
}

// callPrecondition reports whether the operator applies. A closed instance
// or a failing precondition script reads as not applicable.
func (in *Instance) callPrecondition(ref int, s formulation.State) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return false
	}
	data, ok := stateData(s)
	if !ok {
		return false
	}

	l := in.l
	base := l.Top()
	defer l.SetTop(base)

	pushStoredRef(l, ref)
	pushMap(l, data)
	if err := l.ProtectedCall(1, 1, 0); err != nil {
		zap.L().Debug("precondition failed",
			zap.String("instance", in.key), zap.Error(err))
		return false
	}
	return l.ToBoolean(-1)
}

func (in *Instance) callNamer(ref int, s formulation.State) string {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return ""
	}
	data, ok := stateData(s)
	if !ok {
		return ""
	}

	l := in.l
	base := l.Top()
	defer l.SetTop(base)

	pushStoredRef(l, ref)
	pushMap(l, data)
	if err := l.ProtectedCall(1, 1, 0); err != nil {
		zap.L().Debug("operator name function failed",
			zap.String("instance", in.key), zap.Error(err))
		return ""
	}
	name, _ := l.ToString(-1)
	return name
}

// RenderState produces this game's visualization of s for one viewer.
func (in *Instance) RenderState(s formulation.State, viewerRole int) (string, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return "", errors.New("rule instance closed")
	}
	data, ok := stateData(s)
	if !ok {
		return "", errors.New("state was not produced by this rule module")
	}

	l := in.l
	base := l.Top()
	defer l.SetTop(base)

	pushStoredRef(l, in.def.renderRef)
	pushMap(l, data)
	l.PushInteger(viewerRole)
	if err := l.ProtectedCall(2, 1, 0); err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	out, _ := l.ToString(-1)
	return out, nil
}

// buildStateLocked snapshots the state table at index into a gameState,
// evaluating the goal, goal message, and per-role views while the table is
// still live. Failures in those optional hooks degrade to their defaults
// rather than poisoning the move that produced the state.
func (in *Instance) buildStateLocked(index int) *gameState {
	l := in.l
	index = l.AbsIndex(index)
	st := &gameState{}

	if in.def.goalRef != noRef {
		pushStoredRef(l, in.def.goalRef)
		l.PushValue(index)
		if err := l.ProtectedCall(1, 1, 0); err != nil {
			zap.L().Warn("goal check failed",
				zap.String("instance", in.key), zap.Error(err))
			l.Pop(1)
		} else {
			st.goal = l.ToBoolean(-1)
			l.Pop(1)
		}
	}

	if st.goal && in.def.goalMsgRef != noRef {
		pushStoredRef(l, in.def.goalMsgRef)
		l.PushValue(index)
		if err := l.ProtectedCall(1, 1, 0); err != nil {
			zap.L().Warn("goal message failed",
				zap.String("instance", in.key), zap.Error(err))
			l.Pop(1)
		} else {
			st.goalMsg, _ = l.ToString(-1)
			l.Pop(1)
		}
	}

	if in.def.viewRef != noRef {
		st.views = make(map[int]string, len(in.def.roles.Roles))
		for r := range in.def.roles.Roles {
			pushStoredRef(l, in.def.viewRef)
			l.PushValue(index)
			l.PushInteger(r)
			if err := l.ProtectedCall(2, 1, 0); err != nil {
				zap.L().Warn("view failed", zap.String("instance", in.key),
					zap.Int("role", r), zap.Error(err))
				l.Pop(1)
				continue
			}
			st.views[r], _ = l.ToString(-1)
			l.Pop(1)
		}
	}

	st.data = goMap(l, index)
	if note, ok := st.data[keyTransitionMessage].(string); ok {
		st.note = note
		delete(st.data, keyTransitionMessage)
	}
	return st
}

// stateData exposes the table backing a state produced by this package.
func stateData(s formulation.State) (map[string]any, bool) {
	gs, ok := s.(*gameState)
	if !ok {
		return nil, false
	}
	return gs.data, true
}
