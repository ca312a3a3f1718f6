package solver

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// pivotTolerance is the smallest magnitude accepted as a pivot element.
	pivotTolerance = 1e-9
	// costTolerance is how negative a reduced cost must be to enter the basis.
	costTolerance = 1e-10
	// feasibilityTolerance bounds the artificial mass left after phase one.
	feasibilityTolerance = 1e-7
	// ratioTolerance treats two ratio-test values as tied.
	ratioTolerance = 1e-12
)

// pivotBudget bounds the pivots of one simplex phase on an m×n problem.
func pivotBudget(m, n int) int {
	return 50 * (m + n)
}

// tableau is a dense two-phase simplex tableau for min cᵀx s.t. Ax = b, x ≥ 0.
// Columns are the n structural variables, then one artificial variable per constraint,
// then the right-hand side. The last row holds the reduced costs; its right-hand side is
// the negated objective value.
//
// Pivoting follows Bland's rule (lowest eligible index enters, ties in the ratio test
// leave by lowest basic index), which cannot cycle. The pivot budget caps the work on
// numerically troublesome inputs regardless.
type tableau struct {
	t     *mat.Dense
	basis []int
	m, n  int
}

// newTableau sets up phase one with the artificial variables as the starting basis. Rows
// with a negative right-hand side are negated first so that basis is feasible.
func newTableau(f *standardForm) *tableau {
	m, n := len(f.rows), f.vars
	t := mat.NewDense(m+1, n+m+1, nil)
	for i, row := range f.rows {
		r := t.RawRowView(i)
		copy(r, row)
		r[n+m] = f.b[i]
		if f.b[i] < 0 {
			floats.Scale(-1, r)
		}
		r[n+i] = 1
	}
	basis := make([]int, m)
	for i := range basis {
		basis[i] = n + i
	}
	return &tableau{t: t, basis: basis, m: m, n: n}
}

func absolute(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Abs(x)
	}
	return out
}

func (tb *tableau) rhs(i int) float64 {
	return tb.t.At(i, tb.n+tb.m)
}

func (tb *tableau) pivot(r, j int) {
	row := tb.t.RawRowView(r)
	floats.Scale(1/row[j], row)
	row[j] = 1
	for k := 0; k <= tb.m; k++ {
		if k == r {
			continue
		}
		other := tb.t.RawRowView(k)
		if factor := other[j]; factor != 0 {
			floats.AddScaled(other, -factor, row)
			other[j] = 0
		}
	}
	tb.basis[r] = j
}

// price loads cost into the objective row, expressed in terms of the current basis.
func (tb *tableau) price(cost func(j int) float64) {
	obj := tb.t.RawRowView(tb.m)
	for j := range obj {
		obj[j] = 0
	}
	for j := 0; j < tb.n+tb.m; j++ {
		obj[j] = cost(j)
	}
	for i, b := range tb.basis {
		if cb := cost(b); cb != 0 {
			floats.AddScaled(obj, -cb, tb.t.RawRowView(i))
		}
	}
}

// entering returns the lowest structural column with a negative reduced cost, or -1.
func (tb *tableau) entering() int {
	obj := tb.t.RawRowView(tb.m)
	for j := 0; j < tb.n; j++ {
		if obj[j] < -costTolerance {
			return j
		}
	}
	return -1
}

// leaving runs the ratio test for column j, or returns -1 when j is unbounded.
func (tb *tableau) leaving(j int) int {
	best, bestRatio := -1, math.Inf(1)
	for i := 0; i < tb.m; i++ {
		a := tb.t.At(i, j)
		if a <= pivotTolerance {
			continue
		}
		ratio := math.Max(tb.rhs(i), 0) / a
		switch {
		case best < 0 || ratio < bestRatio-ratioTolerance:
			best, bestRatio = i, ratio
		case ratio <= bestRatio+ratioTolerance && tb.basis[i] < tb.basis[best]:
			best = i
		}
	}
	return best
}

// iterate pivots until optimal. It reports false when the budget ran out first.
func (tb *tableau) iterate(budget int) (bool, error) {
	for pivots := 0; pivots < budget; pivots++ {
		j := tb.entering()
		if j < 0 {
			return true, nil
		}
		r := tb.leaving(j)
		if r < 0 {
			return false, fmt.Errorf("%w: unbounded linear program", ErrNoSolution)
		}
		tb.pivot(r, j)
	}
	return false, nil
}

// solveBounded solves the program with a two-phase simplex within a fixed pivot budget.
// If phase two runs out of pivots the current basic solution, which is feasible but may
// not be optimal, is returned.
func (f *standardForm) solveBounded() ([]float64, error) {
	tb := newTableau(f)
	budget := pivotBudget(tb.m, tb.n)

	// Phase one: minimize the sum of the artificial variables
	tb.price(func(j int) float64 {
		if j >= tb.n {
			return 1
		}
		return 0
	})
	done, err := tb.iterate(budget)
	if err != nil {
		return nil, err
	}
	if !done {
		return nil, fmt.Errorf("%w: no feasible basis within %d pivots", ErrNoSolution, budget)
	}
	artificial := 0.0
	for i, b := range tb.basis {
		if b >= tb.n {
			artificial += math.Abs(tb.rhs(i))
		}
	}
	if artificial > feasibilityTolerance {
		return nil, fmt.Errorf("%w: infeasible linear program", ErrNoSolution)
	}

	// Drive artificial variables out of the basis; rows where none can leave are redundant
	for i, b := range tb.basis {
		if b < tb.n || tb.n == 0 {
			continue
		}
		row := tb.t.RawRowView(i)
		if j := floats.MaxIdx(absolute(row[:tb.n])); math.Abs(row[j]) > pivotTolerance {
			tb.pivot(i, j)
		}
	}

	// Phase two: the real objective over the structural variables
	tb.price(func(j int) float64 {
		if j < tb.n {
			return f.c[j]
		}
		return 0
	})
	done, err = tb.iterate(budget)
	if err != nil {
		return nil, err
	}
	if !done {
		log.Warn().Int("pivots", budget).Msg("simplex pivot budget exhausted, returning a feasible but possibly suboptimal solution")
	}

	x := make([]float64, tb.n)
	for i, b := range tb.basis {
		if b < tb.n {
			x[b] = math.Max(tb.rhs(i), 0)
		}
	}
	return x, nil
}
