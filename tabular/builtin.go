package tabular

import (
	"fmt"
	"sort"

	"sgplan/game"
)

const (
	StartState = State("start")
	EndState   = State("end")
)

// NormalForm builds a one-shot game from two payoff matrices: every joint action in the
// start state leads to a terminal end state with the matrix payoffs as rewards.
func NormalForm(name, row, col string, rowActions, colActions []string, rowPayoff, colPayoff [][]float64) (*Game, error) {
	def := Definition{
		Name: name,
		Agents: []AgentDef{
			{Name: row, Actions: rowActions},
			{Name: col, Actions: colActions},
		},
		Start:    string(StartState),
		Terminal: []string{string(EndState)},
	}
	if len(rowPayoff) != len(rowActions) || len(colPayoff) != len(rowActions) {
		return nil, fmt.Errorf("%w: payoff rows do not match %d row actions", ErrInvalidGame, len(rowActions))
	}
	for i, a := range rowActions {
		if len(rowPayoff[i]) != len(colActions) || len(colPayoff[i]) != len(colActions) {
			return nil, fmt.Errorf("%w: payoff columns do not match %d column actions", ErrInvalidGame, len(colActions))
		}
		for j, b := range colActions {
			def.Transitions = append(def.Transitions, TransitionDef{
				State: string(StartState),
				Joint: map[string]string{row: a, col: b},
				Outcomes: []OutcomeDef{{
					Next:    string(EndState),
					P:       1,
					Rewards: map[string]float64{row: rowPayoff[i][j], col: colPayoff[i][j]},
				}},
			})
		}
	}
	return New(def)
}

type builtin struct {
	rowActions, colActions []string
	rowPayoff, colPayoff   [][]float64
}

var builtins = map[string]builtin{
	"prisoners-dilemma": {
		rowActions: []string{"cooperate", "defect"},
		colActions: []string{"cooperate", "defect"},
		rowPayoff:  [][]float64{{-1, -3}, {0, -2}},
		colPayoff:  [][]float64{{-1, 0}, {-3, -2}},
	},
	"matching-pennies": {
		rowActions: []string{"heads", "tails"},
		colActions: []string{"heads", "tails"},
		rowPayoff:  [][]float64{{1, -1}, {-1, 1}},
		colPayoff:  [][]float64{{-1, 1}, {1, -1}},
	},
	"rock-paper-scissors": {
		rowActions: []string{"rock", "paper", "scissors"},
		colActions: []string{"rock", "paper", "scissors"},
		rowPayoff:  [][]float64{{0, -1, 1}, {1, 0, -1}, {-1, 1, 0}},
		colPayoff:  [][]float64{{0, 1, -1}, {-1, 0, 1}, {1, -1, 0}},
	},
	"chicken": {
		rowActions: []string{"swerve", "straight"},
		colActions: []string{"swerve", "straight"},
		rowPayoff:  [][]float64{{0, -1}, {1, -10}},
		colPayoff:  [][]float64{{0, 1}, {-1, -10}},
	},
	"hawk-dove": {
		rowActions: []string{"hawk", "dove"},
		colActions: []string{"hawk", "dove"},
		rowPayoff:  [][]float64{{-1, 2}, {0, 1}},
		colPayoff:  [][]float64{{-1, 0}, {2, 1}},
	},
	"battle-of-the-sexes": {
		rowActions: []string{"opera", "football"},
		colActions: []string{"opera", "football"},
		rowPayoff:  [][]float64{{3, 0}, {0, 2}},
		colPayoff:  [][]float64{{2, 0}, {0, 3}},
	},
	"stag-hunt": {
		rowActions: []string{"stag", "hare"},
		colActions: []string{"stag", "hare"},
		rowPayoff:  [][]float64{{2, 0}, {1, 1}},
		colPayoff:  [][]float64{{2, 1}, {0, 1}},
	},
}

// BuiltinNames lists the built-in games, sorted.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtin returns a built-in two-player normal-form game played by "row" and "col".
func Builtin(name string) (*Game, bool) {
	b, ok := builtins[name]
	if !ok {
		return nil, false
	}
	g, err := NormalForm(name, "row", "col", b.rowActions, b.colActions, b.rowPayoff, b.colPayoff)
	if err != nil {
		panic(fmt.Sprintf("built-in game %s is invalid: %v", name, err))
	}
	return g, true
}

// Resolve returns the built-in game called nameOrPath, or loads it as a YAML file.
func Resolve(nameOrPath string) (*Game, error) {
	if g, ok := Builtin(nameOrPath); ok {
		return g, nil
	}
	return Load(nameOrPath)
}

// Pair is the joint action of the two players of a normal-form game.
func (g *Game) Pair(rowAction, colAction string) game.JointAction {
	return game.Pair(g.agents[0], g.agents[1], game.Action(rowAction), game.Action(colAction))
}
