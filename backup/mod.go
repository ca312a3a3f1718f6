// Package backup turns the per-agent Q-values stored at a state into a single backed-up
// value for one agent, according to a game-theoretic solution concept.
package backup

import (
	"errors"
	"fmt"
	"strings"

	"sgplan/game"
	"sgplan/matrix"
	"sgplan/qsource"
	"sgplan/solver"
)

var ErrAgentCount = errors.New("solution concept requires exactly two agents")

// Operator computes the value of state s for forAgent from the current Q-values of every
// agent. Operators only read qs; writing the result back is the caller's job.
type Operator interface {
	Backup(s game.State, forAgent string, agents game.Agents, qs *qsource.Map) (float64, error)
}

// Names lists the operator names accepted by Parse.
var Names = []string{"maxq", "minmax", "nashq", "cocoq", "correlatedq"}

// Parse builds an operator from its configuration name. objective only applies to
// correlatedq and nash to nashq.
func Parse(name string, objective solver.Objective, nash solver.NashSolver) (Operator, error) {
	switch strings.ToLower(name) {
	case "maxq":
		return MaxQ{}, nil
	case "minmax":
		return MinMax{}, nil
	case "nashq":
		return NashQ{Solver: nash}, nil
	case "cocoq":
		return CoCoQ{}, nil
	case "correlatedq":
		return CorrelatedQ{Objective: objective}, nil
	default:
		return nil, fmt.Errorf("unknown backup operator %q (want one of %s)", name, strings.Join(Names, ", "))
	}
}

// Bimatrix is the pair of Q-value payoff matrices of a two-agent state. The row player is
// the agent the backup is computed for.
type Bimatrix struct {
	Row, Col               game.Agent
	RowActions, ColActions []game.Action
	RowQ, ColQ             [][]float64
}

// Empty reports whether either agent has no legal action.
func (b *Bimatrix) Empty() bool {
	return len(b.RowActions) == 0 || len(b.ColActions) == 0
}

// JointAction returns the joint action of cell (i, j).
func (b *Bimatrix) JointAction(i, j int) game.JointAction {
	return game.Pair(b.Row, b.Col, b.RowActions[i], b.ColActions[j])
}

// Advantage is the zero-sum game (RowQ - ColQ) / 2.
func (b *Bimatrix) Advantage() [][]float64 {
	return matrix.Combine(0.5, b.RowQ, -0.5, b.ColQ)
}

// NewBimatrix reads both agents' Q-values at s into payoff matrices with forAgent as the
// row player. It fails unless there are exactly two agents and forAgent is one of them.
func NewBimatrix(s game.State, forAgent string, agents game.Agents, qs *qsource.Map) (*Bimatrix, error) {
	if len(agents) != 2 {
		return nil, fmt.Errorf("%w: got %d", ErrAgentCount, len(agents))
	}
	row, ok := agents.Find(forAgent)
	if !ok {
		return nil, fmt.Errorf("%w: %q", qsource.ErrUnknownAgent, forAgent)
	}
	col := agents.Others(forAgent)[0]

	rowSource, err := qs.Agent(row.Name)
	if err != nil {
		return nil, err
	}
	colSource, err := qs.Agent(col.Name)
	if err != nil {
		return nil, err
	}

	b := &Bimatrix{
		Row:        row,
		Col:        col,
		RowActions: row.Type.Actions.Legal(s),
		ColActions: col.Type.Actions.Legal(s),
	}
	b.RowQ = matrix.New(len(b.RowActions), len(b.ColActions))
	b.ColQ = matrix.New(len(b.RowActions), len(b.ColActions))
	for i := range b.RowActions {
		for j := range b.ColActions {
			ja := b.JointAction(i, j)
			b.RowQ[i][j] = rowSource.Value(s, ja)
			b.ColQ[i][j] = colSource.Value(s, ja)
		}
	}
	return b, nil
}
