// Package engine drives one play-through of one formulation.
//
// The engine owns the state history of a play-through: a stack of immutable
// states, the operator indexes that produced them, and a step counter that
// always equals the stack height minus one. Applying an operator pushes a
// successor state; undo pops it. Both directions run under a single mutex,
// so concurrent requests from different participants serialize into some
// order and each sees a fully settled state.
//
// # Lifecycle
//
// An engine is Created, then Running after Start succeeds. Pausing snapshots
// the play-through into a checkpoint and freezes it; resuming builds a fresh
// engine (and requires a fresh rule-module instance) from that checkpoint,
// with an empty undo history. Reaching the goal condition ends the
// play-through permanently.
//
// # Notifications
//
// After every successful mutation the engine invokes its notify callback
// exactly once with an immutable snapshot of the new position. The callback
// runs inside the engine's critical section: it must return quickly and must
// not call back into the engine.
package engine
