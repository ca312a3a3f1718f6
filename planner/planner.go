// Package planner computes per-agent joint-action Q-values of a stochastic game by
// dynamic programming, using a backup.Operator to value successor states.
//
// Backups update Q-values in place, so later backups in the same sweep already see the
// earlier ones. A Planner is not safe for concurrent use and its Q-sources must not be
// shared with another Planner.
package planner

import (
	"errors"
	"fmt"
	"math"

	"sgplan/backup"
	"sgplan/game"
	"sgplan/qsource"
)

// DefaultDiscount is used when no WithDiscount option is given.
const DefaultDiscount = 0.99

var ErrPlanningStarted = errors.New("cannot change agent definitions after planning has started")

type Option func(p *Planner)

type Planner struct {
	agents   game.Agents
	model    game.JointActionModel
	reward   game.JointReward
	terminal game.TerminalFunction
	operator backup.Operator
	discount float64
	hasher   game.Hasher
	qInit    qsource.Init
	qs       *qsource.Map
	started  bool
}

func WithDiscount(discount float64) Option {
	return func(p *Planner) {
		if discount >= 0 && discount <= 1 {
			p.discount = discount
		}
	}
}

func WithHasher(hasher game.Hasher) Option {
	return func(p *Planner) {
		if hasher != nil {
			p.hasher = hasher
		}
	}
}

func WithQInit(init qsource.Init) Option {
	return func(p *Planner) {
		if init != nil {
			p.qInit = init
		}
	}
}

// New builds a planner for agents over the given game model. Agents may be empty and set
// later with SetAgents, as long as planning has not started.
func New(agents game.Agents, model game.JointActionModel, reward game.JointReward, terminal game.TerminalFunction, operator backup.Operator, options ...Option) *Planner {
	if model == nil || reward == nil || terminal == nil {
		panic("Planner needs a transition model, a reward function and a terminal function")
	}
	if operator == nil {
		panic("Planner needs a backup operator")
	}
	p := &Planner{ // Default values
		model:    model,
		reward:   reward,
		terminal: terminal,
		operator: operator,
		discount: DefaultDiscount,
		hasher:   game.DefaultHasher{},
		qInit:    qsource.ConstantInit(0),
	}
	for _, option := range options {
		option(p)
	}
	p.qs = qsource.NewMap(agents, p.hasher, p.qInit)
	p.agents = agents
	return p
}

// SetAgents replaces the agent definitions and starts from fresh Q-sources. It fails once
// any backup has run; call ResetModel first to start over.
func (p *Planner) SetAgents(agents game.Agents) error {
	if p.started {
		return ErrPlanningStarted
	}
	p.agents = agents
	p.qs = qsource.NewMap(agents, p.hasher, p.qInit)
	return nil
}

func (p *Planner) Agents() game.Agents {
	return p.agents
}

func (p *Planner) Operator() backup.Operator {
	return p.operator
}

func (p *Planner) Hasher() game.Hasher {
	return p.hasher
}

func (p *Planner) Started() bool {
	return p.started
}

// QSources exposes the live Q-values, e.g. for deriving joint policies.
func (p *Planner) QSources() *qsource.Map {
	return p.qs
}

// QValue returns agent's current Q-value for ja in s.
func (p *Planner) QValue(s game.State, agent string, ja game.JointAction) (float64, error) {
	q, err := p.qs.Agent(agent)
	if err != nil {
		return 0, err
	}
	return q.Value(s, ja), nil
}

// Value is agent's backed-up value of s under the planner's operator. Terminal states are
// worth 0.
func (p *Planner) Value(s game.State, agent string) (float64, error) {
	if p.terminal.IsTerminal(s) {
		return 0, nil
	}
	return p.operator.Backup(s, agent, p.agents, p.qs)
}

// ResetModel drops every Q-value and allows the agent definitions to change again.
func (p *Planner) ResetModel() {
	p.qs.Reset()
	p.started = false
}

// BackupAllQs updates every agent's Q-value for every joint action in s and returns the
// largest absolute change. A state without joint actions changes nothing.
func (p *Planner) BackupAllQs(s game.State) (float64, error) {
	p.started = true

	maxChange := 0.0
	for _, ja := range game.AllJointActions(s, p.agents) {
		change, err := p.backupJointAction(s, ja)
		if err != nil {
			return maxChange, err
		}
		maxChange = math.Max(maxChange, change)
	}
	return maxChange, nil
}

type outcome struct {
	game.Transition
	rewards map[string]float64
}

func (p *Planner) backupJointAction(s game.State, ja game.JointAction) (float64, error) {
	terminal := p.terminal.IsTerminal(s)

	var outcomes []outcome
	if !terminal {
		for _, tr := range p.model.TransitionProbs(s, ja) {
			outcomes = append(outcomes, outcome{
				Transition: tr,
				rewards:    p.reward.Reward(s, ja, tr.State),
			})
		}
	}

	// Every target is computed before any entry is written, so a failed backup leaves
	// the Q-sources untouched.
	entries := make([]qsource.Entry, len(p.agents))
	targets := make([]float64, len(p.agents))
	for k, agent := range p.agents {
		q, err := p.qs.Agent(agent.Name)
		if err != nil {
			return 0, err
		}
		entries[k] = q.Entry(s, ja)

		for _, o := range outcomes {
			r, err := game.Reward(o.rewards, agent.Name)
			if err != nil {
				return 0, fmt.Errorf("joint action %v: %w", ja, err)
			}
			next := 0.0
			if !p.terminal.IsTerminal(o.State) {
				next, err = p.operator.Backup(o.State, agent.Name, p.agents, p.qs)
				if err != nil {
					return 0, fmt.Errorf("backup for agent %q: %w", agent.Name, err)
				}
			}
			targets[k] += o.P * (r + p.discount*next)
		}
	}

	maxChange := 0.0
	for k, entry := range entries {
		maxChange = math.Max(maxChange, math.Abs(targets[k]-entry.Value()))
		entry.Set(targets[k])
	}
	return maxChange, nil
}
