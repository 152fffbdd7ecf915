package games

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pixellator/wsz6/internal/formulation"
)

// SVG layout for the tic-tac-toe board: a 3x3 grid of 100-unit cells with a
// status band underneath.
const (
	tttCell   = 100
	tttPad    = 14
	tttWidth  = 300
	tttBoardH = 300
	tttBandH  = 30
)

var svgEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// tttRenderer draws the board as an inline SVG. All viewers see the same
// picture; tic-tac-toe has no hidden information.
type tttRenderer struct{}

var _ formulation.Renderer = tttRenderer{}

func (tttRenderer) RenderState(s formulation.State, viewerRole int) (string, error) {
	st, ok := s.(tttState)
	if !ok {
		return "", errors.New("state is not a tic-tac-toe position")
	}

	highlight := map[[2]int]bool{}
	if st.Winner != tttNoWinner {
		for _, cell := range winningCells(st.Board, st.Winner) {
			highlight[cell] = true
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" width="100%%" style="max-width:360px;display:block;margin:auto;">`,
		tttWidth, tttBoardH+tttBandH)
	b.WriteString("\n")

	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			fill := "#ffffff"
			if highlight[[2]int{row, col}] {
				fill = "#fffde7"
			}
			fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" fill="%s" stroke="#e0e0e0" stroke-width="1"/>`,
				col*tttCell, row*tttCell, tttCell, tttCell, fill)
			b.WriteString("\n")
		}
	}

	for i := 1; i < 3; i++ {
		p := i * tttCell
		fmt.Fprintf(&b, `<line x1="%d" y1="0" x2="%d" y2="%d" stroke="#424242" stroke-width="3"/>`, p, p, tttBoardH)
		b.WriteString("\n")
		fmt.Fprintf(&b, `<line x1="0" y1="%d" x2="%d" y2="%d" stroke="#424242" stroke-width="3"/>`, p, tttWidth, p)
		b.WriteString("\n")
	}

	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			x := col * tttCell
			y := row * tttCell
			switch st.Board[row][col] {
			case tttX:
				x1, y1 := x+tttPad, y+tttPad
				x2, y2 := x+tttCell-tttPad, y+tttCell-tttPad
				fmt.Fprintf(&b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="#1565C0" stroke-width="9" stroke-linecap="round"/>`, x1, y1, x2, y2)
				b.WriteString("\n")
				fmt.Fprintf(&b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="#1565C0" stroke-width="9" stroke-linecap="round"/>`, x2, y1, x1, y2)
				b.WriteString("\n")
			case tttO:
				fmt.Fprintf(&b, `<circle cx="%d" cy="%d" r="36" fill="none" stroke="#C62828" stroke-width="9"/>`,
					x+tttCell/2, y+tttCell/2)
				b.WriteString("\n")
			}
		}
	}

	fmt.Fprintf(&b, `<rect x="0" y="0" width="%d" height="%d" fill="none" stroke="#9e9e9e" stroke-width="2"/>`, tttWidth, tttBoardH)
	b.WriteString("\n")
	fmt.Fprintf(&b, `<text x="%d" y="%d" text-anchor="middle" font-family="sans-serif" font-size="15" fill="#444444">%s</text>`,
		tttWidth/2, tttBoardH+tttBandH/2+5, svgEscaper.Replace(tttStatusText(st)))
	b.WriteString("\n</svg>")
	return b.String(), nil
}

func tttStatusText(st tttState) string {
	switch {
	case st.Winner == tttX:
		return "X wins!"
	case st.Winner == tttO:
		return "O wins!"
	case !st.movesLeft():
		return "It's a draw!"
	case st.Turn == tttX:
		return "X's turn"
	default:
		return "O's turn"
	}
}
