package games

import (
	"fmt"

	"github.com/pixellator/wsz6/internal/formulation"
)

const (
	rpsRock     = 0
	rpsPaper    = 1
	rpsScissors = 2

	rpsRounds   = 3
	rpsNoChoice = -1

	rpsChoosing = "choosing"
	rpsScoring  = "scoring"
	rpsGameOver = "game_over"
)

var rpsChoiceNames = [...]string{"Rock", "Paper", "Scissors"}

// rpsState is one moment in a best-of-three match. During the choosing phase
// both players move simultaneously; choices stay masked in the per-role view
// until the round resolves.
type rpsState struct {
	Round   int
	Scores  [2]int
	Phase   string
	Choices [2]int
	Cur     int
	note    string
}

var (
	_ formulation.State               = rpsState{}
	_ formulation.GoalMessenger       = rpsState{}
	_ formulation.TransitionMessenger = rpsState{}
	_ formulation.RoleViewer          = rpsState{}
	_ formulation.Mapper              = rpsState{}
)

func (s rpsState) CurrentRole() int          { return s.Cur }
func (s rpsState) Parallel() bool            { return s.Phase == rpsChoosing }
func (s rpsState) IsGoal() bool              { return s.Phase == rpsGameOver }
func (s rpsState) TransitionMessage() string { return s.note }

func (s rpsState) GoalMessage() string {
	result := "The match is a draw!"
	if s.Scores[0] > s.Scores[1] {
		result = "Player 1 wins the match!"
	} else if s.Scores[1] > s.Scores[0] {
		result = "Player 2 wins the match!"
	}
	return fmt.Sprintf("%s  Final scores: P1 = %d,  P2 = %d.", result, s.Scores[0], s.Scores[1])
}

// ViewForRole masks in-flight choices so neither player can peek at the
// other's pick before the round resolves.
func (s rpsState) ViewForRole(int) string {
	txt := fmt.Sprintf("Round %d of %d\n", s.Round, rpsRounds)
	txt += fmt.Sprintf("Scores:  P1 = %d,  P2 = %d\n", s.Scores[0], s.Scores[1])
	if s.Phase == rpsChoosing {
		txt += fmt.Sprintf("P1 choice this round: %s\n", choiceStatus(s.Choices[0]))
		txt += fmt.Sprintf("P2 choice this round: %s\n", choiceStatus(s.Choices[1]))
		return txt
	}
	txt += fmt.Sprintf("P1 chose: %s\n", rpsChoiceNames[s.Choices[0]])
	txt += fmt.Sprintf("P2 chose: %s\n", rpsChoiceNames[s.Choices[1]])
	if s.Phase == rpsGameOver {
		txt += "-- Game Over --\n"
	}
	return txt
}

func choiceStatus(c int) string {
	if c == rpsNoChoice {
		return "Pending"
	}
	return "Made"
}

func (s rpsState) StateMap() map[string]any {
	return map[string]any{
		"round":        s.Round,
		"scores":       []any{s.Scores[0], s.Scores[1]},
		"phase":        s.Phase,
		"choices":      []any{s.Choices[0], s.Choices[1]},
		"current_role": s.Cur,
		"parallel":     s.Parallel(),
	}
}

// applyChoice records one player's pick. When it completes the round the
// result is scored immediately; otherwise the nominal turn passes to the
// player still to move.
func (s rpsState) applyChoice(player, choice int) rpsState {
	ns := s
	ns.Choices[player] = choice
	if ns.Choices[0] != rpsNoChoice && ns.Choices[1] != rpsNoChoice {
		return ns.resolveRound()
	}
	ns.Cur = 1 - player
	return ns
}

func (s rpsState) resolveRound() rpsState {
	ns := s
	c1, c2 := ns.Choices[0], ns.Choices[1]

	var result string
	switch ((c1-c2)%3 + 3) % 3 {
	case 1:
		ns.Scores[0]++
		ns.Scores[1]--
		result = "P1 wins this round!   (P1: +1,  P2: -1)"
	case 2:
		ns.Scores[0]--
		ns.Scores[1]++
		result = "P2 wins this round!   (P1: -1,  P2: +1)"
	default:
		result = "Draw — scores unchanged."
	}

	ns.note = fmt.Sprintf("P1 chose %s.  P2 chose %s.\n%s\nScores after round %d: P1 = %d,  P2 = %d",
		rpsChoiceNames[c1], rpsChoiceNames[c2], result, ns.Round, ns.Scores[0], ns.Scores[1])
	ns.Cur = 0
	if ns.Round == rpsRounds {
		ns.Phase = rpsGameOver
	} else {
		ns.Phase = rpsScoring
	}
	return ns
}

// NewRockPaperScissors builds a two-player best-of-three match. Choice
// operators belong to one player each; the round reset belongs to anyone.
func NewRockPaperScissors() *formulation.Formulation {
	ops := make([]formulation.Operator, 0, 7)
	for player := 0; player < 2; player++ {
		for choice := 0; choice < 3; choice++ {
			p, c := player, choice
			ops = append(ops, formulation.Operator{
				Name: fmt.Sprintf("P%d chooses %s", p+1, rpsChoiceNames[c]),
				Role: p,
				Precondition: func(s formulation.State) bool {
					rs := s.(rpsState)
					return rs.Phase == rpsChoosing && rs.Choices[p] == rpsNoChoice
				},
				Transition: func(s formulation.State, _ []any) (formulation.State, error) {
					return s.(rpsState).applyChoice(p, c), nil
				},
			})
		}
	}
	ops = append(ops, formulation.Operator{
		Name: "Start next round",
		Role: formulation.RoleAny,
		Precondition: func(s formulation.State) bool {
			rs := s.(rpsState)
			return rs.Phase == rpsScoring && rs.Round < rpsRounds
		},
		Transition: func(s formulation.State, _ []any) (formulation.State, error) {
			rs := s.(rpsState)
			rs.Round++
			rs.Phase = rpsChoosing
			rs.Choices = [2]int{rpsNoChoice, rpsNoChoice}
			rs.Cur = 0
			rs.note = ""
			return rs, nil
		},
	})

	return &formulation.Formulation{
		Metadata: formulation.Metadata{
			Name: "Rock-Paper-Scissors",
			Brief: fmt.Sprintf("A two-player Rock-Paper-Scissors match over %d rounds. "+
				"Rock beats Scissors, Scissors beats Paper, Paper beats Rock.", rpsRounds),
			Version: "1.0",
		},
		Roles: formulation.RoleSpec{
			Roles: []formulation.Role{
				{Name: "P1", Description: "Player 1 — goes first in serial play."},
				{Name: "P2", Description: "Player 2."},
			},
			MinPlayersToStart: 2,
			MaxPlayers:        2,
		},
		Operators: ops,
		Initialize: func(formulation.Config) (formulation.State, error) {
			return rpsState{
				Round:   1,
				Phase:   rpsChoosing,
				Choices: [2]int{rpsNoChoice, rpsNoChoice},
			}, nil
		},
		Restore: func(m map[string]any) (formulation.State, error) {
			return rpsState{
				Round:   formulation.IntFrom(m, "round", 1),
				Scores:  intPair(m, "scores", 0),
				Phase:   formulation.StringFrom(m, "phase", rpsChoosing),
				Choices: intPair(m, "choices", rpsNoChoice),
				Cur:     formulation.IntFrom(m, "current_role", 0),
			}, nil
		},
	}
}

// intPair reads a two-element numeric array from a state map, tolerating the
// float64 values JSON decoding produces.
func intPair(m map[string]any, key string, def int) [2]int {
	out := [2]int{def, def}
	items, ok := m[key].([]any)
	if !ok {
		return out
	}
	for i := 0; i < len(items) && i < 2; i++ {
		switch v := items[i].(type) {
		case int:
			out[i] = v
		case int64:
			out[i] = int(v)
		case float64:
			out[i] = int(v)
		}
	}
	return out
}
