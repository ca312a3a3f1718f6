package solver

import (
	"fmt"
	"strings"

	"sgplan/matrix"
)

// Objective selects which correlated equilibrium to return among the feasible set.
type Objective int

const (
	// Utilitarian maximizes the sum of both players' expected payoffs.
	Utilitarian Objective = iota
	// Egalitarian maximizes the smaller of the two expected payoffs.
	Egalitarian
	// Republican maximizes the larger of the two expected payoffs.
	Republican
	// Libertarian maximizes the row player's expected payoff.
	Libertarian
)

var objectiveNames = map[Objective]string{
	Utilitarian: "utilitarian",
	Egalitarian: "egalitarian",
	Republican:  "republican",
	Libertarian: "libertarian",
}

func (o Objective) String() string {
	if name, ok := objectiveNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Objective(%d)", int(o))
}

// ParseObjective maps a case-insensitive objective name to its value.
func ParseObjective(name string) (Objective, error) {
	for o, n := range objectiveNames {
		if strings.EqualFold(n, name) {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown correlated equilibrium objective %q", name)
}

// Correlated solves for a correlated equilibrium of the bimatrix game and returns the
// joint distribution over (row action, column action). The distribution satisfies the
// incentive constraints: conditioned on its recommended action, no player gains by
// consistently switching to another action.
func Correlated(objective Objective, rowPayoff, colPayoff [][]float64) ([][]float64, error) {
	if err := checkShape(rowPayoff, colPayoff); err != nil {
		return nil, err
	}

	switch objective {
	case Utilitarian:
		return solveCorrelated(rowPayoff, colPayoff, matrix.Combine(1, rowPayoff, 1, colPayoff), false)
	case Libertarian:
		return solveCorrelated(rowPayoff, colPayoff, rowPayoff, false)
	case Egalitarian:
		return solveCorrelated(rowPayoff, colPayoff, nil, true)
	case Republican:
		forRow, err := solveCorrelated(rowPayoff, colPayoff, rowPayoff, false)
		if err != nil {
			return nil, err
		}
		forCol, err := solveCorrelated(rowPayoff, colPayoff, colPayoff, false)
		if err != nil {
			return nil, err
		}
		if matrix.ExpectedJointPayoff(rowPayoff, forRow) >= matrix.ExpectedJointPayoff(colPayoff, forCol) {
			return forRow, nil
		}
		return forCol, nil
	default:
		return nil, fmt.Errorf("unknown correlated equilibrium objective %v", objective)
	}
}

// solveCorrelated maximizes Σ weights·p over correlated equilibria p, or the minimum of
// the two players' expected payoffs when egalitarian is set.
func solveCorrelated(a, b, weights [][]float64, egalitarian bool) ([][]float64, error) {
	rows, cols := matrix.Dims(a)
	cells := rows * cols
	index := func(i, j int) int { return i*cols + j }

	f := newStandardForm(cells)
	if !egalitarian {
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				f.c[index(i, j)] = -weights[i][j]
			}
		}
	}

	// Row player: recommended i must be at least as good as any deviation i'
	for i := 0; i < rows; i++ {
		for alt := 0; alt < rows; alt++ {
			if alt == i {
				continue
			}
			coeffs := make([]float64, cells)
			for j := 0; j < cols; j++ {
				coeffs[index(i, j)] = a[i][j] - a[alt][j]
			}
			f.addGreaterEqual(coeffs, 0)
		}
	}
	// Column player: recommended j must be at least as good as any deviation j'
	for j := 0; j < cols; j++ {
		for alt := 0; alt < cols; alt++ {
			if alt == j {
				continue
			}
			coeffs := make([]float64, cells)
			for i := 0; i < rows; i++ {
				coeffs[index(i, j)] = b[i][j] - b[i][alt]
			}
			f.addGreaterEqual(coeffs, 0)
		}
	}

	simplex := make([]float64, cells)
	for k := range simplex {
		simplex[k] = 1
	}
	f.addEqual(simplex, 1)

	if egalitarian {
		// z ≤ each player's expected payoff, on payoffs shifted positive so z ≥ 0 is free
		shift := 1 - min(matrix.Min(a), matrix.Min(b))
		z := f.addVar()
		f.c[z] = -1
		for _, payoff := range [][][]float64{a, b} {
			coeffs := make([]float64, z+1)
			for i := 0; i < rows; i++ {
				for j := 0; j < cols; j++ {
					coeffs[index(i, j)] = payoff[i][j] + shift
				}
			}
			coeffs[z] = -1
			f.addGreaterEqual(coeffs, 0)
		}
	}

	x, err := f.solveBounded()
	if err != nil {
		return nil, err
	}
	p, err := normalize(x[:cells])
	if err != nil {
		return nil, err
	}

	joint := matrix.New(rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			joint[i][j] = p[index(i, j)]
		}
	}
	return joint, nil
}
