package games

import (
	"fmt"
	"math/rand/v2"

	"github.com/pixellator/wsz6/internal/formulation"
)

const (
	guessLow  = 1
	guessHigh = 100
)

type guessState struct {
	Secret  int
	Guesses int
	Found   bool
	note    string
}

var (
	_ formulation.State               = guessState{}
	_ formulation.GoalMessenger       = guessState{}
	_ formulation.TransitionMessenger = guessState{}
	_ formulation.RoleViewer          = guessState{}
	_ formulation.Mapper              = guessState{}
)

func (s guessState) CurrentRole() int          { return 0 }
func (s guessState) Parallel() bool            { return false }
func (s guessState) IsGoal() bool              { return s.Found }
func (s guessState) TransitionMessage() string { return s.note }

func (s guessState) GoalMessage() string {
	return fmt.Sprintf("You found it in %d guesses. The number was %d.", s.Guesses, s.Secret)
}

// ViewForRole keeps the secret out of the human-readable view. The raw state
// map still carries it so checkpoints can restore the game.
func (s guessState) ViewForRole(int) string {
	txt := fmt.Sprintf("I'm thinking of a number from %d to %d.\n", guessLow, guessHigh)
	txt += fmt.Sprintf("Guesses so far: %d\n", s.Guesses)
	if s.note != "" {
		txt += s.note + "\n"
	}
	return txt
}

func (s guessState) StateMap() map[string]any {
	return map[string]any{
		"secret":       s.Secret,
		"guesses":      s.Guesses,
		"found":        s.Found,
		"current_role": 0,
		"parallel":     false,
	}
}

// NewGuessMyNumber builds the number-guessing game. The secret is drawn at
// start; a "secret" config entry pins it for predictable play-throughs.
func NewGuessMyNumber() *formulation.Formulation {
	return &formulation.Formulation{
		Metadata: formulation.Metadata{
			Name:    "Guess My Number",
			Brief:   "Find the hidden number; each guess earns a higher/lower hint.",
			Version: "1.0",
		},
		Roles: formulation.RoleSpec{
			Roles: []formulation.Role{
				{Name: "Guesser", Description: "Tries to find the hidden number."},
			},
		},
		Operators: []formulation.Operator{{
			Name:        "Guess a number",
			Description: "Submit a guess and learn whether the secret is higher or lower.",
			Role:        formulation.RoleAny,
			Params: []formulation.Param{
				intParam("guess", guessLow, guessHigh),
			},
			Precondition: func(s formulation.State) bool {
				return !s.(guessState).Found
			},
			Transition: func(s formulation.State, args []any) (formulation.State, error) {
				gs := s.(guessState)
				guess, err := formulation.IntArg(args, 0)
				if err != nil {
					return nil, err
				}
				if guess < guessLow || guess > guessHigh {
					return nil, fmt.Errorf("guess %d is out of range %d..%d", guess, guessLow, guessHigh)
				}
				gs.Guesses++
				switch {
				case guess < gs.Secret:
					gs.note = fmt.Sprintf("%d is too low.", guess)
				case guess > gs.Secret:
					gs.note = fmt.Sprintf("%d is too high.", guess)
				default:
					gs.Found = true
					gs.note = fmt.Sprintf("%d is right!", guess)
				}
				return gs, nil
			},
		}},
		Initialize: func(cfg formulation.Config) (formulation.State, error) {
			secret := formulation.IntFrom(cfg, "secret", 0)
			if secret == 0 {
				secret = guessLow + rand.IntN(guessHigh-guessLow+1)
			}
			if secret < guessLow || secret > guessHigh {
				return nil, fmt.Errorf("secret %d is out of range %d..%d", secret, guessLow, guessHigh)
			}
			return guessState{Secret: secret}, nil
		},
		Restore: func(m map[string]any) (formulation.State, error) {
			return guessState{
				Secret:  formulation.IntFrom(m, "secret", 0),
				Guesses: formulation.IntFrom(m, "guesses", 0),
				Found:   formulation.BoolFrom(m, "found", false),
			}, nil
		},
	}
}

func intParam(name string, min, max int) formulation.Param {
	lo := float64(min)
	hi := float64(max)
	return formulation.Param{Name: name, Type: formulation.ParamInt, Min: &lo, Max: &hi}
}
