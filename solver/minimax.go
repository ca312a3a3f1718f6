package solver

import (
	"sgplan/matrix"
)

// Minimax solves the zero-sum game whose payoffs m are given from the row player's
// perspective. It returns both players' equilibrium strategies and the game value for the
// row player. Matrices with a saddle point degenerate to pure strategies.
func Minimax(m [][]float64) (row, col []float64, value float64, err error) {
	if err := checkShape(m); err != nil {
		return nil, nil, 0, err
	}

	row, err = maximin(m)
	if err != nil {
		return nil, nil, 0, err
	}
	// The column player maximizes the negated, transposed game
	col, err = maximin(matrix.Negate(matrix.Transpose(m)))
	if err != nil {
		return nil, nil, 0, err
	}

	return row, col, matrix.ExpectedPayoff(m, row, col), nil
}

// MinimaxValue returns only the row player's security value.
func MinimaxValue(m [][]float64) (float64, error) {
	_, _, value, err := Minimax(m)
	return value, err
}

// maximin finds the row strategy maximizing the guaranteed payoff v subject to
// Σᵢ xᵢ·m[i][j] ≥ v for every column j and x on the simplex.
func maximin(m [][]float64) ([]float64, error) {
	rows, cols := matrix.Dims(m)

	// Shift payoffs so that v is strictly positive and can live in x ≥ 0
	shift := 1 - matrix.Min(m)

	f := newStandardForm(rows + 1)
	v := rows
	f.c[v] = -1

	for j := 0; j < cols; j++ {
		coeffs := make([]float64, rows+1)
		for i := 0; i < rows; i++ {
			coeffs[i] = m[i][j] + shift
		}
		coeffs[v] = -1
		f.addGreaterEqual(coeffs, 0)
	}

	simplex := make([]float64, rows)
	for i := range simplex {
		simplex[i] = 1
	}
	f.addEqual(simplex, 1)

	x, err := f.solve()
	if err != nil {
		return nil, err
	}
	return normalize(x[:rows])
}
