// Package games ships the formulations built into the portal binary. They
// double as living examples of the formulation API: counting is the smallest
// possible game, guess-my-number exercises parameterized operators,
// rock-paper-scissors exercises parallel phases and hidden information, and
// tic-tac-toe exercises role-restricted operators, observers, and SVG
// rendering.
package games

import "github.com/pixellator/wsz6/internal/formulation/builtin"

// RegisterAll files every built-in game into reg.
func RegisterAll(reg *builtin.Registry) {
	reg.Register("counting", NewCounting)
	reg.Register("guess-my-number", NewGuessMyNumber)
	reg.Register("rock-paper-scissors", NewRockPaperScissors)
	reg.Register("tic-tac-toe", NewTicTacToe)
}
