package backup

import (
	"math"

	"sgplan/game"
	"sgplan/matrix"
	"sgplan/qsource"
	"sgplan/solver"
)

// MaxQ backs up the largest Q-value forAgent has over every joint action in s. With a
// single agent it is the Bellman optimality backup. A state without joint actions is
// worth 0.
type MaxQ struct{}

func (MaxQ) Backup(s game.State, forAgent string, agents game.Agents, qs *qsource.Map) (float64, error) {
	q, err := qs.Agent(forAgent)
	if err != nil {
		return 0, err
	}
	jas := game.AllJointActions(s, agents)
	if len(jas) == 0 {
		return 0, nil
	}
	best := math.Inf(-1)
	for _, ja := range jas {
		best = math.Max(best, q.Value(s, ja))
	}
	return best, nil
}

// MinMax treats the two agents' Q-values as a zero-sum game on the advantage matrix and
// returns forAgent's expected payoff on its own Q-values under the minimax strategies.
type MinMax struct{}

func (MinMax) Backup(s game.State, forAgent string, agents game.Agents, qs *qsource.Map) (float64, error) {
	b, err := NewBimatrix(s, forAgent, agents, qs)
	if err != nil || b.Empty() {
		return 0, err
	}
	row, col, _, err := solver.Minimax(b.Advantage())
	if err != nil {
		return 0, err
	}
	return matrix.ExpectedPayoff(b.RowQ, row, col), nil
}

// NashQ returns forAgent's expected payoff under the first Nash equilibrium the solver
// finds for the two agents' Q-values. Repeated NashQ backups are not guaranteed to
// converge.
type NashQ struct {
	Solver solver.NashSolver
}

func (n NashQ) Backup(s game.State, forAgent string, agents game.Agents, qs *qsource.Map) (float64, error) {
	b, err := NewBimatrix(s, forAgent, agents, qs)
	if err != nil || b.Empty() {
		return 0, err
	}
	row, col, err := n.Solver.Solve(b.RowQ, b.ColQ)
	if err != nil {
		return 0, err
	}
	return matrix.ExpectedPayoff(b.RowQ, row, col), nil
}

// CoCoQ splits the best joint welfare evenly and adds forAgent's minimax value of the
// advantage game as a side payment.
type CoCoQ struct{}

func (CoCoQ) Backup(s game.State, forAgent string, agents game.Agents, qs *qsource.Map) (float64, error) {
	b, err := NewBimatrix(s, forAgent, agents, qs)
	if err != nil || b.Empty() {
		return 0, err
	}
	welfare := matrix.Max(matrix.Combine(1, b.RowQ, 1, b.ColQ))
	side, err := solver.MinimaxValue(b.Advantage())
	if err != nil {
		return 0, err
	}
	return welfare/2 + side, nil
}

// CorrelatedQ returns forAgent's expected payoff under the correlated equilibrium that
// optimizes Objective. The zero Objective is utilitarian.
type CorrelatedQ struct {
	Objective solver.Objective
}

func (c CorrelatedQ) Backup(s game.State, forAgent string, agents game.Agents, qs *qsource.Map) (float64, error) {
	b, err := NewBimatrix(s, forAgent, agents, qs)
	if err != nil || b.Empty() {
		return 0, err
	}
	joint, err := solver.Correlated(c.Objective, b.RowQ, b.ColQ)
	if err != nil {
		return 0, err
	}
	return matrix.ExpectedJointPayoff(b.RowQ, joint), nil
}
