// Package solver computes equilibria of single-shot two-player matrix games: minimax
// strategies for zero-sum games, a Nash equilibrium for general-sum bimatrix games, and
// correlated equilibria under a selectable objective.
//
// Every strategy returned is a probability vector whose entries are non-negative and sum
// to 1 within 1e-9. Every joint distribution has the same property over all its cells.
package solver

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"sgplan/matrix"
)

// DefaultTolerance bounds feasibility and best-response checks.
const DefaultTolerance = 1e-9

// simplexTolerance is handed to the LP solver for its optimality test.
const simplexTolerance = 1e-10

var (
	ErrShape      = errors.New("solver: payoff matrices must be non-empty, rectangular and of identical shape")
	ErrNoSolution = errors.New("solver: no solution")
)

func checkShape(ms ...[][]float64) error {
	rows, cols := matrix.Dims(ms[0])
	for _, m := range ms {
		if !matrix.IsRectangular(m) {
			return ErrShape
		}
		if r, c := matrix.Dims(m); r != rows || c != cols {
			return ErrShape
		}
	}
	return nil
}

// standardForm is a linear program min cᵀx s.t. Ax = b, x ≥ 0, built row by row.
type standardForm struct {
	vars int
	c    []float64
	rows [][]float64
	b    []float64
}

func newStandardForm(vars int) *standardForm {
	return &standardForm{vars: vars, c: make([]float64, vars)}
}

// addVar appends a variable and returns its column index.
func (f *standardForm) addVar() int {
	f.vars++
	f.c = append(f.c, 0)
	for i := range f.rows {
		f.rows[i] = append(f.rows[i], 0)
	}
	return f.vars - 1
}

// addGreaterEqual adds Σ coeffs·x ≥ rhs through a dedicated surplus variable.
func (f *standardForm) addGreaterEqual(coeffs []float64, rhs float64) {
	surplus := f.addVar()
	row := make([]float64, f.vars)
	copy(row, coeffs)
	row[surplus] = -1
	f.rows = append(f.rows, row)
	f.b = append(f.b, rhs)
}

func (f *standardForm) addEqual(coeffs []float64, rhs float64) {
	row := make([]float64, f.vars)
	copy(row, coeffs)
	f.rows = append(f.rows, row)
	f.b = append(f.b, rhs)
}

func (f *standardForm) solve() ([]float64, error) {
	a := mat.NewDense(len(f.rows), f.vars, nil)
	for i, row := range f.rows {
		for j := 0; j < f.vars; j++ {
			if j < len(row) {
				a.Set(i, j, row[j])
			}
		}
	}
	_, x, err := lp.Simplex(f.c, a, f.b, simplexTolerance, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSolution, err)
	}
	return x, nil
}

// normalize clips round-off negatives and rescales p onto the probability simplex.
func normalize(p []float64) ([]float64, error) {
	out := make([]float64, len(p))
	sum := 0.0
	for i, v := range p {
		if v > 0 && !math.IsNaN(v) {
			out[i] = v
			sum += v
		}
	}
	if sum <= 0 || math.IsInf(sum, 0) {
		return nil, fmt.Errorf("%w: degenerate probability vector %v", ErrNoSolution, p)
	}
	for i := range out {
		out[i] /= sum
	}
	return out, nil
}
