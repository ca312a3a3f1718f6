// Package tabular implements a finite stochastic game whose dynamics and rewards are
// listed explicitly, either in YAML or built in code. It provides every collaborator the
// planner needs: agent definitions, a joint action model, joint rewards and terminal
// states.
package tabular

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"sgplan/game"
)

var ErrInvalidGame = errors.New("invalid game definition")

// State is a named state of a tabular game.
type State string

func (s State) Key() game.StateKey {
	return game.StateKey(s)
}

type Definition struct {
	Name        string          `yaml:"name" validate:"required"`
	Agents      []AgentDef      `yaml:"agents" validate:"required,min=1,dive"`
	Start       string          `yaml:"start" validate:"required"`
	Terminal    []string        `yaml:"terminal"`
	Transitions []TransitionDef `yaml:"transitions" validate:"dive"`
}

type AgentDef struct {
	Name    string   `yaml:"name" validate:"required"`
	Actions []string `yaml:"actions" validate:"required,min=1,dive,required"`
}

type TransitionDef struct {
	State    string            `yaml:"state" validate:"required"`
	Joint    map[string]string `yaml:"joint" validate:"required"`
	Outcomes []OutcomeDef      `yaml:"outcomes" validate:"required,min=1,dive"`
}

type OutcomeDef struct {
	Next    string             `yaml:"next" validate:"required"`
	P       float64            `yaml:"p" validate:"gt=0,lte=1"`
	Rewards map[string]float64 `yaml:"rewards" validate:"required"`
}

type outcome struct {
	next    State
	p       float64
	rewards map[string]float64
}

// Game is a validated tabular stochastic game.
type Game struct {
	name     string
	agents   game.Agents
	start    State
	terminal map[State]bool
	states   []State
	table    map[State]map[game.JointKey][]outcome
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads and validates a YAML game definition from path.
func Load(path string) (*Game, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read game %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML game definition.
func Parse(data []byte) (*Game, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGame, err)
	}
	return New(def)
}

// New validates def and builds the game. Every non-terminal state that appears anywhere in
// the definition must list exactly one entry per joint action, each outcome must reward
// every agent, and outcome probabilities must sum to 1.
func New(def Definition) (*Game, error) {
	if err := validate.Struct(def); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGame, err)
	}

	g := &Game{
		name:     def.Name,
		start:    State(def.Start),
		terminal: make(map[State]bool, len(def.Terminal)),
		table:    make(map[State]map[game.JointKey][]outcome),
	}

	seen := make(map[string]bool)
	for _, a := range def.Agents {
		if seen[a.Name] {
			return nil, fmt.Errorf("%w: duplicate agent %q", ErrInvalidGame, a.Name)
		}
		seen[a.Name] = true
		actions := make(game.Actions, len(a.Actions))
		for i, action := range a.Actions {
			actions[i] = game.Action(action)
		}
		g.agents = append(g.agents, game.Agent{
			Name: a.Name,
			Type: game.AgentType{Name: a.Name, Actions: actions},
		})
	}

	states := map[State]bool{g.start: true}
	for _, t := range def.Terminal {
		g.terminal[State(t)] = true
		states[State(t)] = true
	}

	for _, t := range def.Transitions {
		s := State(t.State)
		if g.terminal[s] {
			return nil, fmt.Errorf("%w: terminal state %q has transitions", ErrInvalidGame, s)
		}
		states[s] = true

		ja, err := g.jointAction(t.Joint)
		if err != nil {
			return nil, err
		}
		if g.table[s] == nil {
			g.table[s] = make(map[game.JointKey][]outcome)
		}
		if _, ok := g.table[s][ja.Key()]; ok {
			return nil, fmt.Errorf("%w: duplicate transition for %v in %q", ErrInvalidGame, ja, s)
		}

		outcomes, err := g.outcomes(s, ja, t.Outcomes)
		if err != nil {
			return nil, err
		}
		for _, o := range outcomes {
			states[o.next] = true
		}
		g.table[s][ja.Key()] = outcomes
	}

	for s := range states {
		g.states = append(g.states, s)
	}
	sort.Slice(g.states, func(i, j int) bool { return g.states[i] < g.states[j] })

	for _, s := range g.states {
		if g.terminal[s] {
			continue
		}
		for _, ja := range game.AllJointActions(s, g.agents) {
			if _, ok := g.table[s][ja.Key()]; !ok {
				return nil, fmt.Errorf("%w: state %q has no transition for %v", ErrInvalidGame, s, ja)
			}
		}
	}
	return g, nil
}

func (g *Game) jointAction(joint map[string]string) (game.JointAction, error) {
	assignment := make(map[string]game.Action, len(joint))
	for name, action := range joint {
		agent, ok := g.agents.Find(name)
		if !ok {
			return game.JointAction{}, fmt.Errorf("%w: unknown agent %q", ErrInvalidGame, name)
		}
		if !legal(agent.Type.Actions.Legal(nil), game.Action(action)) {
			return game.JointAction{}, fmt.Errorf("%w: agent %q has no action %q", ErrInvalidGame, name, action)
		}
		assignment[name] = game.Action(action)
	}
	ja, err := game.NewJointAction(g.agents, assignment)
	if err != nil {
		return game.JointAction{}, fmt.Errorf("%w: %w", ErrInvalidGame, err)
	}
	return ja, nil
}

func (g *Game) outcomes(s State, ja game.JointAction, defs []OutcomeDef) ([]outcome, error) {
	outcomes := make([]outcome, 0, len(defs))
	total := 0.0
	nexts := make(map[State]bool, len(defs))
	for _, o := range defs {
		next := State(o.Next)
		if nexts[next] {
			return nil, fmt.Errorf("%w: %q lists next state %q twice for %v", ErrInvalidGame, s, next, ja)
		}
		nexts[next] = true
		for _, a := range g.agents {
			if _, ok := o.Rewards[a.Name]; !ok {
				return nil, fmt.Errorf("%w: no reward for agent %q in %q under %v", ErrInvalidGame, a.Name, s, ja)
			}
		}
		total += o.P
		outcomes = append(outcomes, outcome{next: next, p: o.P, rewards: o.Rewards})
	}
	if math.Abs(total-1) > 1e-9 {
		return nil, fmt.Errorf("%w: outcome probabilities of %v in %q sum to %g", ErrInvalidGame, ja, s, total)
	}
	return outcomes, nil
}

func legal(actions []game.Action, action game.Action) bool {
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}

func (g *Game) Name() string {
	return g.name
}

func (g *Game) Agents() game.Agents {
	return g.agents
}

func (g *Game) Start() State {
	return g.start
}

// States lists every state named in the definition, sorted.
func (g *Game) States() []game.State {
	states := make([]game.State, len(g.states))
	for i, s := range g.states {
		states[i] = s
	}
	return states
}

// Lookup finds a state by name.
func (g *Game) Lookup(name string) (State, bool) {
	s := State(name)
	i := sort.Search(len(g.states), func(i int) bool { return g.states[i] >= s })
	return s, i < len(g.states) && g.states[i] == s
}

func (g *Game) TransitionProbs(s game.State, ja game.JointAction) []game.Transition {
	outcomes := g.table[asState(s)][ja.Key()]
	transitions := make([]game.Transition, len(outcomes))
	for i, o := range outcomes {
		transitions[i] = game.Transition{State: o.next, P: o.p}
	}
	return transitions
}

func (g *Game) Reward(s game.State, ja game.JointAction, next game.State) map[string]float64 {
	n := asState(next)
	for _, o := range g.table[asState(s)][ja.Key()] {
		if o.next == n {
			return o.rewards
		}
	}
	return nil
}

func (g *Game) IsTerminal(s game.State) bool {
	return g.terminal[asState(s)]
}

func asState(s game.State) State {
	switch v := s.(type) {
	case State:
		return v
	case string:
		return State(v)
	default:
		return State(game.DefaultHasher{}.Key(s))
	}
}
