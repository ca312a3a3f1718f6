package game

import (
	"errors"
	"fmt"
)

// State is an opaque world state. The planner never inspects it directly; it only
// hands states back to the model and hashes them through a Hasher.
type State any

// StateKey is the canonical, comparable form of a State used for table lookups.
// Equal states must map to equal keys and vice versa.
type StateKey string

// Action is a single agent's choice in one turn.
type Action string

// Transition is one outcome of a joint action: the next state and its probability.
type Transition struct {
	State State
	P     float64
}

// JointActionModel describes the stochastic dynamics of the game. Probabilities of the
// returned transitions sum to 1 and zero-probability outcomes are omitted.
type JointActionModel interface {
	TransitionProbs(s State, ja JointAction) []Transition
}

// JointReward returns every agent's reward for a transition, keyed by agent name.
type JointReward interface {
	Reward(s State, ja JointAction, next State) map[string]float64
}

// TerminalFunction reports whether a state ends the game.
type TerminalFunction interface {
	IsTerminal(s State) bool
}

var ErrPartialJointAction = errors.New("joint action must assign exactly one action to every agent")

// Reward looks up a single agent's reward and fails if the reward map does not carry it.
func Reward(jr map[string]float64, agent string) (float64, error) {
	r, ok := jr[agent]
	if !ok {
		return 0, fmt.Errorf("no reward for agent %q", agent)
	}
	return r, nil
}
