package engine

import "errors"

// Request rejections. These leave the play-through untouched and are
// reported to the single requester rather than broadcast.
var (
	// ErrNotStarted reports a move or undo before Start.
	ErrNotStarted = errors.New("play-through not started")

	// ErrAlreadyStarted reports a second Start on a live play-through.
	ErrAlreadyStarted = errors.New("play-through already started")

	// ErrPaused reports a move or undo while the play-through is paused.
	ErrPaused = errors.New("play-through is paused")

	// ErrEnded reports a move or undo after the goal was reached.
	ErrEnded = errors.New("play-through has ended")

	// ErrNotYourTurn reports a move by a role the current state does not
	// accept moves from.
	ErrNotYourTurn = errors.New("not your turn")

	// ErrInvalidOperator reports an operator index outside the formulation's
	// operator list.
	ErrInvalidOperator = errors.New("invalid operator")

	// ErrPrecondition reports an operator whose precondition rejects the
	// current state.
	ErrPrecondition = errors.New("operator not applicable")

	// ErrNothingToUndo reports an undo at step zero.
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrUndoBlocked reports an undo that would land inside a parallel
	// phase whose last operator forbids it.
	ErrUndoBlocked = errors.New("undo blocked in parallel phase")
)

// Rule-module failures. Initialization failures leave the play-through in
// Created so a corrected configuration can retry; transition failures reject
// the single move and keep the last good state current.
var (
	// ErrInitialization wraps errors and panics from a formulation's
	// initialize function.
	ErrInitialization = errors.New("initialization failed")

	// ErrTransition wraps errors and panics from an operator's transition
	// function.
	ErrTransition = errors.New("transition failed")
)
