// Package formulation defines the contract between the play-through engine
// and the rule modules that describe individual games.
//
// The model is centered around a few key concepts:
//
// # Formulation
//
// A Formulation is the declarative description of one game: its metadata,
// role roster, operator list, and the functions that create and restore
// problem states. Rule modules, whether built in Go or loaded from Lua
// sources, produce a Formulation for the engine to drive.
//
// # State
//
// A State is an immutable snapshot of a game in progress. The engine never
// mutates a State; operators return successor states instead. States expose
// whose turn it is, whether the phase accepts moves from several roles at
// once, and whether the goal condition holds. Optional capability interfaces
// (GoalMessenger, TransitionMessenger, RoleViewer, Mapper) let richer states
// surface narration, per-role views, and serializable snapshots.
//
// # Operators
//
// Operators are the moves of a game. Each carries a display name, an optional
// precondition, a transition function, an optional role restriction, and an
// optional parameter schema for moves that take arguments.
//
// # Instances
//
// An Instance is one live copy of a rule module bound to a single
// play-through. Instances are loaded through the Loader interface and must be
// closed when the play-through ends.
package formulation
