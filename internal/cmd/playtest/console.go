package playtest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pixellator/wsz6/internal/engine"
	"github.com/pixellator/wsz6/internal/formulation"
	"github.com/pixellator/wsz6/internal/seat"
)

// console runs the turn loop of a hot-seat play-through: it cues the player
// on turn, prints the per-role view, lists applicable operators, and feeds
// commands into the engine. Everything happens on one goroutine.
type console struct {
	in  *bufio.Scanner
	out io.Writer

	form  *formulation.Formulation
	seats *seat.Manager
	eng   *engine.Engine
	last  engine.Notification

	multiRole  bool
	lastPlayer string
	lastRole   int
}

// newConsole seats one local player per non-observer role and wires a fresh
// engine to the console's notification recorder.
func newConsole(playthroughID string, form *formulation.Formulation, in io.Reader, out io.Writer) (*console, error) {
	seats := seat.NewManager(form.Roles)
	active := 0
	for roleNum := range form.Roles.Roles {
		if form.Roles.IsObserver(roleNum) {
			continue
		}
		active++
		name := fmt.Sprintf("Player %d", active)
		token, err := seats.AddPlayer(name)
		if err != nil {
			return nil, fmt.Errorf("add %s: %w", name, err)
		}
		if err := seats.Assign(token, roleNum); err != nil {
			return nil, fmt.Errorf("seat %s: %w", name, err)
		}
	}

	c := &console{
		in:        bufio.NewScanner(in),
		out:       out,
		form:      form,
		seats:     seats,
		multiRole: active > 1,
	}
	c.eng = engine.New(playthroughID, form, seats, c.record)
	return c, nil
}

// record runs inside the engine's critical section; it only stores the
// notification for the single-threaded loop to read afterwards.
func (c *console) record(n engine.Notification) { c.last = n }

func (c *console) run(ctx context.Context) error {
	c.printInstructions()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := c.last
		fmt.Fprintf(c.out, "\nStep %d\n", n.Step)

		if n.IsParallel {
			fmt.Fprintln(c.out, "*** PARALLEL INPUT PHASE: each player chooses independently. ***")
			fmt.Fprintln(c.out, "*** Please look away from the screen until it is your turn.  ***")
		}

		confirmed := engine.NoRole
		if c.multiRole && !n.IsGoal {
			var ok bool
			if confirmed, ok = c.cue(n); !ok {
				return nil
			}
		}

		fmt.Fprintln(c.out, c.stateText(n, confirmed))

		if n.IsGoal {
			msg := n.GoalMessage
			if msg == "" {
				msg = engine.DefaultGoalMessage
			}
			fmt.Fprintf(c.out, "\nCONGRATULATIONS!  %s\n", msg)
			return nil
		}

		shown := false
		for _, op := range n.Ops {
			if !c.opVisible(op, confirmed) {
				continue
			}
			fmt.Fprintf(c.out, "  %d: %s\n", op.Index, op.Name)
			shown = true
		}
		if !shown {
			fmt.Fprintln(c.out, "  (No operators are currently applicable.)")
		}

		line, ok := c.readLine("Command  [number / B=back / H=help / Q=quit] >> ")
		if !ok {
			return nil
		}
		command := strings.TrimSpace(line)
		if command == "" {
			continue
		}

		switch strings.ToUpper(command) {
		case "Q":
			return nil
		case "H":
			c.printInstructions()
			continue
		case "B":
			c.undo(ctx)
			continue
		}

		idx, err := strconv.Atoi(command)
		if err != nil {
			fmt.Fprintln(c.out, "Unknown command.  Enter a number, B, H, or Q.")
			continue
		}
		c.apply(ctx, n, idx, confirmed)
	}
}

// cue hands the keyboard to the player on turn. The prompt collapses to a
// one-line note when the same player keeps the turn, so solo stretches of a
// game do not nag. Returns false when input is exhausted.
func (c *console) cue(n engine.Notification) (int, bool) {
	roleNum := n.CurrentRole
	if !c.form.Roles.Valid(roleNum) {
		return engine.NoRole, true
	}

	player := c.lastPlayer
	if player == "" {
		player = "Player 1"
	}
	if p, ok := c.seats.PlayerAt(roleNum); ok {
		player = p.Name
	}
	roleName := c.form.Roles.Roles[roleNum].Name

	bar := strings.Repeat("-", 52)
	fmt.Fprintln(c.out, bar)
	switch {
	case player == c.lastPlayer && roleNum == c.lastRole:
		fmt.Fprintf(c.out, "  (%s continuing in role: %s)\n", player, roleName)
	case player == c.lastPlayer:
		fmt.Fprintf(c.out, "  (%s switching to role: %s)\n", player, roleName)
	default:
		prev := c.lastPlayer
		if prev == "" {
			prev = "(nobody)"
		}
		fmt.Fprintf(c.out, "  %s: please hand the keyboard to %s.\n", prev, player)
		fmt.Fprintf(c.out, "  %s, you are playing the role of: %s.\n", player, roleName)
	}
	fmt.Fprintln(c.out, bar)

	if _, ok := c.readLine("  Press Enter to confirm. "); !ok {
		return engine.NoRole, false
	}
	c.lastPlayer, c.lastRole = player, roleNum
	return roleNum, true
}

// stateText prefers the state's own per-role view; the raw struct print is
// the fallback for formulations without one.
func (c *console) stateText(n engine.Notification, confirmed int) string {
	viewer := confirmed
	if viewer == engine.NoRole {
		viewer = 0
	}
	if v, ok := n.State.(formulation.RoleViewer); ok {
		if text := v.ViewForRole(viewer); text != "" {
			return strings.TrimRight(text, "\n")
		}
	}
	return fmt.Sprintf("%+v", n.State)
}

func (c *console) opVisible(op formulation.OpInfo, confirmed int) bool {
	if !op.Applicable {
		return false
	}
	if confirmed == engine.NoRole {
		return true
	}
	return op.Role == formulation.RoleAny || op.Role == confirmed
}

func (c *console) apply(ctx context.Context, n engine.Notification, idx, confirmed int) {
	if idx < 0 || idx >= len(n.Ops) {
		fmt.Fprintf(c.out, "No operator with number %d.\n", idx)
		return
	}
	if !c.opVisible(n.Ops[idx], confirmed) {
		fmt.Fprintf(c.out, "Operator %d is not applicable in the current state.\n", idx)
		return
	}

	args, ok := c.promptArgs(n.Ops[idx])
	if !ok {
		return
	}
	if _, err := c.eng.ApplyOperator(ctx, engine.ApplyRequest{OpIndex: idx, Args: args, Role: confirmed}); err != nil {
		fmt.Fprintf(c.out, "Move rejected: %v\n", err)
		return
	}
	if msg := c.last.TransitionMessage; msg != "" {
		c.frame(msg)
	}
}

func (c *console) undo(ctx context.Context) {
	_, err := c.eng.Undo(ctx)
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrNothingToUndo):
		fmt.Fprintln(c.out, "Already at the initial state; cannot go further back.")
	default:
		fmt.Fprintf(c.out, "Cannot go back: %v\n", err)
	}
}

// promptArgs collects one value per declared parameter, in declaration
// order. Returns false when input is exhausted mid-prompt.
func (c *console) promptArgs(op formulation.OpInfo) ([]any, bool) {
	if len(op.Params) == 0 {
		return nil, true
	}
	args := make([]any, 0, len(op.Params))
	for _, p := range op.Params {
		v, ok := c.promptOne(p, op.Name)
		if !ok {
			return nil, false
		}
		args = append(args, v)
	}
	return args, true
}

func (c *console) promptOne(p formulation.Param, opName string) (any, bool) {
	switch p.Type {
	case formulation.ParamInt:
		return c.promptInt(p, opName)
	case formulation.ParamFloat:
		return c.promptFloat(p, opName)
	}
	return c.readLine(fmt.Sprintf("  Enter a value for parameter %q (operator: %q): ", p.Name, opName))
}

func (c *console) promptInt(p formulation.Param, opName string) (int, bool) {
	prompt := fmt.Sprintf("  Enter an integer%s for parameter %q (operator: %q): ", rangeText(p), p.Name, opName)
	for {
		line, ok := c.readLine(prompt)
		if !ok {
			return 0, false
		}
		v, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil {
			fmt.Fprintln(c.out, "  Not a valid integer.  Try again.")
			continue
		}
		if p.Min != nil && float64(v) < *p.Min {
			fmt.Fprintln(c.out, "  Too low.  Try again.")
			continue
		}
		if p.Max != nil && float64(v) > *p.Max {
			fmt.Fprintln(c.out, "  Too high.  Try again.")
			continue
		}
		return v, true
	}
}

func (c *console) promptFloat(p formulation.Param, opName string) (float64, bool) {
	prompt := fmt.Sprintf("  Enter a number%s for parameter %q (operator: %q): ", rangeText(p), p.Name, opName)
	for {
		line, ok := c.readLine(prompt)
		if !ok {
			return 0, false
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
		if err != nil {
			fmt.Fprintln(c.out, "  Not a valid number.  Try again.")
			continue
		}
		if p.Min != nil && v < *p.Min {
			fmt.Fprintln(c.out, "  Too low.  Try again.")
			continue
		}
		if p.Max != nil && v > *p.Max {
			fmt.Fprintln(c.out, "  Too high.  Try again.")
			continue
		}
		return v, true
	}
}

func rangeText(p formulation.Param) string {
	switch {
	case p.Min != nil && p.Max != nil:
		return fmt.Sprintf(" in [%s..%s]", trimNum(*p.Min), trimNum(*p.Max))
	case p.Min != nil:
		return fmt.Sprintf(" >= %s", trimNum(*p.Min))
	case p.Max != nil:
		return fmt.Sprintf(" <= %s", trimNum(*p.Max))
	}
	return ""
}

func trimNum(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// frame boxes a transition message so it stands out from the turn chatter.
func (c *console) frame(text string) {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	width := 0
	for _, line := range lines {
		if len(line) > width {
			width = len(line)
		}
	}
	bar := "+-" + strings.Repeat("-", width) + "-+"
	fmt.Fprintln(c.out, bar)
	for _, line := range lines {
		fmt.Fprintf(c.out, "| %-*s |\n", width, line)
	}
	fmt.Fprintln(c.out, bar)
}

func (c *console) readLine(prompt string) (string, bool) {
	fmt.Fprint(c.out, prompt)
	if !c.in.Scan() {
		fmt.Fprintln(c.out)
		return "", false
	}
	return c.in.Text(), true
}

func (c *console) printInstructions() {
	fmt.Fprint(c.out, `
INSTRUCTIONS:
  <number>  Apply the operator with that number.
  B         Go back one step (undo the last move).
  H         Show these instructions.
  Q         Quit the session.

Applicable operators are listed by number at each step.
`)
}
