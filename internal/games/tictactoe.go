package games

import (
	"fmt"
	"strings"

	"github.com/pixellator/wsz6/internal/formulation"
)

const (
	tttX     = 0
	tttO     = 1
	tttEmpty = 2

	tttNoWinner = -1
)

var tttMarks = [...]string{"X", "O", " "}

type tttState struct {
	Board  [3][3]int
	Turn   int
	Winner int
	note   string
}

var (
	_ formulation.State               = tttState{}
	_ formulation.GoalMessenger       = tttState{}
	_ formulation.TransitionMessenger = tttState{}
	_ formulation.RoleViewer          = tttState{}
	_ formulation.Mapper              = tttState{}
)

func (s tttState) CurrentRole() int          { return s.Turn }
func (s tttState) Parallel() bool            { return false }
func (s tttState) TransitionMessage() string { return s.note }

func (s tttState) IsGoal() bool {
	return s.Winner != tttNoWinner || !s.movesLeft()
}

func (s tttState) GoalMessage() string {
	if s.Winner != tttNoWinner {
		return fmt.Sprintf("The winner is %s. Thanks for playing Tic-Tac-Toe.", tttMarks[s.Winner])
	}
	return "It's a draw! Thanks for playing Tic-Tac-Toe."
}

func (s tttState) ViewForRole(roleNum int) string {
	txt := fmt.Sprintf("Current view for %s:\n", roleName(roleNum))
	txt += s.boardText()
	switch {
	case s.Winner != tttNoWinner:
		txt += fmt.Sprintf("Winner is %s\n", tttMarks[s.Winner])
	case !s.movesLeft():
		txt += "Game over. It's a draw!\n"
	default:
		txt += fmt.Sprintf("It's %s's turn.\n", tttMarks[s.Turn])
	}
	return txt
}

func roleName(roleNum int) string {
	if roleNum == tttX || roleNum == tttO {
		return tttMarks[roleNum]
	}
	return "Observer"
}

func (s tttState) boardText() string {
	var b strings.Builder
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			b.WriteString(tttMarks[s.Board[i][j]])
			if j < 2 {
				b.WriteString("|")
			}
		}
		if i < 2 {
			b.WriteString("\n-----")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (s tttState) StateMap() map[string]any {
	board := make([]any, 3)
	for i := 0; i < 3; i++ {
		row := make([]any, 3)
		for j := 0; j < 3; j++ {
			row[j] = s.Board[i][j]
		}
		board[i] = row
	}
	return map[string]any{
		"board":        board,
		"turn":         s.Turn,
		"winner":       s.Winner,
		"current_role": s.Turn,
		"parallel":     false,
	}
}

func (s tttState) movesLeft() bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if s.Board[i][j] == tttEmpty {
				return true
			}
		}
	}
	return false
}

func (s tttState) canPut(role, row, col int) bool {
	return s.Turn == role && s.Board[row][col] == tttEmpty
}

// put places the current player's mark and advances the turn, recording any
// win the move completes.
func (s tttState) put(row, col int) tttState {
	ns := s
	ns.Board[row][col] = s.Turn
	ns.note = fmt.Sprintf("%s chooses row %d and column %d.", tttMarks[s.Turn], row+1, col+1)
	ns.Turn = 1 - s.Turn
	ns.Winner = findWinner(ns.Board)
	return ns
}

func findWinner(board [3][3]int) int {
	for _, role := range []int{tttX, tttO} {
		if len(winningCells(board, role)) > 0 {
			return role
		}
	}
	return tttNoWinner
}

// winningCells returns the cells of the first complete line held by role, or
// nil when role has no line.
func winningCells(board [3][3]int, role int) [][2]int {
	for r := 0; r < 3; r++ {
		if board[r][0] == role && board[r][1] == role && board[r][2] == role {
			return [][2]int{{r, 0}, {r, 1}, {r, 2}}
		}
	}
	for c := 0; c < 3; c++ {
		if board[0][c] == role && board[1][c] == role && board[2][c] == role {
			return [][2]int{{0, c}, {1, c}, {2, c}}
		}
	}
	if board[0][0] == role && board[1][1] == role && board[2][2] == role {
		return [][2]int{{0, 0}, {1, 1}, {2, 2}}
	}
	if board[2][0] == role && board[1][1] == role && board[0][2] == role {
		return [][2]int{{2, 0}, {1, 1}, {0, 2}}
	}
	return nil
}

// NewTicTacToe builds the classic 3x3 game. X and O get nine placement
// operators each; extra seats join as observers.
func NewTicTacToe() *formulation.Formulation {
	ops := make([]formulation.Operator, 0, 18)
	for _, role := range []int{tttX, tttO} {
		for row := 0; row < 3; row++ {
			for col := 0; col < 3; col++ {
				ro, r, c := role, row, col
				ops = append(ops, formulation.Operator{
					Name: fmt.Sprintf("Place an %s in row %d, column %d", tttMarks[ro], r+1, c+1),
					Role: ro,
					Precondition: func(s formulation.State) bool {
						return s.(tttState).canPut(ro, r, c)
					},
					Transition: func(s formulation.State, _ []any) (formulation.State, error) {
						return s.(tttState).put(r, c), nil
					},
				})
			}
		}
	}

	return &formulation.Formulation{
		Metadata: formulation.Metadata{
			Name: "Tic-Tac-Toe",
			Brief: "Tic-Tac-Toe is a traditional game played on a 3x3 board by " +
				"two players: X and O. They take turns, with X going first. " +
				"The first player to get three marks in a line wins.",
			Version: "1.0",
		},
		Roles: formulation.RoleSpec{
			Roles: []formulation.Role{
				{Name: "X", Description: "Places X marks. Goes first."},
				{Name: "O", Description: "Places O marks. Goes second."},
				{Name: "Observer", Description: "Watches the game without playing."},
			},
			MinPlayersToStart: 2,
			MaxPlayers:        27,
		},
		Operators: ops,
		Initialize: func(formulation.Config) (formulation.State, error) {
			return tttState{
				Board: [3][3]int{
					{tttEmpty, tttEmpty, tttEmpty},
					{tttEmpty, tttEmpty, tttEmpty},
					{tttEmpty, tttEmpty, tttEmpty},
				},
				Turn:   tttX,
				Winner: tttNoWinner,
			}, nil
		},
		Restore:  restoreTicTacToe,
		Renderer: tttRenderer{},
	}
}

func restoreTicTacToe(m map[string]any) (formulation.State, error) {
	st := tttState{
		Turn:   formulation.IntFrom(m, "turn", tttX),
		Winner: formulation.IntFrom(m, "winner", tttNoWinner),
	}
	rows, ok := m["board"].([]any)
	if !ok || len(rows) != 3 {
		return nil, fmt.Errorf("checkpoint has no 3x3 board")
	}
	for i, rawRow := range rows {
		cells, ok := rawRow.([]any)
		if !ok || len(cells) != 3 {
			return nil, fmt.Errorf("checkpoint board row %d is malformed", i)
		}
		for j, cell := range cells {
			switch v := cell.(type) {
			case int:
				st.Board[i][j] = v
			case int64:
				st.Board[i][j] = int(v)
			case float64:
				st.Board[i][j] = int(v)
			default:
				return nil, fmt.Errorf("checkpoint board cell %d,%d is malformed", i, j)
			}
		}
	}
	return st, nil
}
