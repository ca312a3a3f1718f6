package solver

import (
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"sgplan/matrix"
)

// DefaultMaxSupportPairs bounds the number of mixed support pairs examined before the
// solver gives up on support enumeration.
const DefaultMaxSupportPairs = 200_000

// NashSolver finds one Nash equilibrium of a general-sum bimatrix game by support
// enumeration: pure strategy profiles first, then equal-size supports in lexicographic
// order. The first equilibrium found is returned; no selection among multiple equilibria
// is attempted.
//
// If no equilibrium turns up within MaxSupportPairs (or the game is degenerate in a way
// equal-size supports cannot capture), the solver falls back to the minimax strategies of
// the zero-sum game on the row player's matrix. That fallback is not an equilibrium of the
// general-sum game.
type NashSolver struct {
	MaxSupportPairs int
	Tolerance       float64
}

// Nash solves with default effort bounds.
func Nash(rowPayoff, colPayoff [][]float64) (row, col []float64, err error) {
	return NashSolver{}.Solve(rowPayoff, colPayoff)
}

func (s NashSolver) Solve(rowPayoff, colPayoff [][]float64) (row, col []float64, err error) {
	if err := checkShape(rowPayoff, colPayoff); err != nil {
		return nil, nil, err
	}
	tol := s.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}
	maxPairs := s.MaxSupportPairs
	if maxPairs <= 0 {
		maxPairs = DefaultMaxSupportPairs
	}

	if row, col, ok := pureEquilibrium(rowPayoff, colPayoff, tol); ok {
		return row, col, nil
	}

	rows, cols := matrix.Dims(rowPayoff)
	examined := 0
	for k := 2; k <= min(rows, cols); k++ {
		rowSupport := firstCombination(k)
		for {
			colSupport := firstCombination(k)
			for {
				examined++
				if examined > maxPairs {
					return s.fallback(rowPayoff, "support enumeration effort exhausted")
				}
				if row, col, ok := supportEquilibrium(rowPayoff, colPayoff, rowSupport, colSupport, tol); ok {
					return row, col, nil
				}
				if !nextCombination(colSupport, cols) {
					break
				}
			}
			if !nextCombination(rowSupport, rows) {
				break
			}
		}
	}

	return s.fallback(rowPayoff, "no equilibrium with equal-size supports")
}

func (s NashSolver) fallback(rowPayoff [][]float64, reason string) ([]float64, []float64, error) {
	log.Debug().Str("reason", reason).Msg("nash solver falling back to minimax on the row player's payoffs")
	row, col, _, err := Minimax(rowPayoff)
	return row, col, err
}

func pureEquilibrium(a, b [][]float64, tol float64) ([]float64, []float64, bool) {
	rows, cols := matrix.Dims(a)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if isRowBestResponse(a, i, j, tol) && isColBestResponse(b, i, j, tol) {
				return unitVector(i, rows), unitVector(j, cols), true
			}
		}
	}
	return nil, nil, false
}

func isRowBestResponse(a [][]float64, i, j int, tol float64) bool {
	for k := range a {
		if a[k][j] > a[i][j]+tol {
			return false
		}
	}
	return true
}

func isColBestResponse(b [][]float64, i, j int, tol float64) bool {
	for l := range b[i] {
		if b[i][l] > b[i][j]+tol {
			return false
		}
	}
	return true
}

// supportEquilibrium looks for an equilibrium whose supports are exactly rowSupport and
// colSupport: each player's mix must make the opponent indifferent across its support and
// no action outside a support may do strictly better.
func supportEquilibrium(a, b [][]float64, rowSupport, colSupport []int, tol float64) ([]float64, []float64, bool) {
	rows, cols := matrix.Dims(a)

	// Column mix y over colSupport making the row player indifferent over rowSupport
	ySupport, u, ok := indifference(len(rowSupport), func(r, c int) float64 {
		return a[rowSupport[r]][colSupport[c]]
	})
	if !ok {
		return nil, nil, false
	}
	// Row mix x over rowSupport making the column player indifferent over colSupport
	xSupport, w, ok := indifference(len(colSupport), func(r, c int) float64 {
		return b[rowSupport[c]][colSupport[r]]
	})
	if !ok {
		return nil, nil, false
	}

	x := make([]float64, rows)
	for k, i := range rowSupport {
		if xSupport[k] < -tol {
			return nil, nil, false
		}
		x[i] = xSupport[k]
	}
	y := make([]float64, cols)
	for k, j := range colSupport {
		if ySupport[k] < -tol {
			return nil, nil, false
		}
		y[j] = ySupport[k]
	}

	// No profitable deviation outside the supports
	for i := 0; i < rows; i++ {
		payoff := 0.0
		for j := 0; j < cols; j++ {
			payoff += a[i][j] * y[j]
		}
		if payoff > u+tol {
			return nil, nil, false
		}
	}
	for j := 0; j < cols; j++ {
		payoff := 0.0
		for i := 0; i < rows; i++ {
			payoff += x[i] * b[i][j]
		}
		if payoff > w+tol {
			return nil, nil, false
		}
	}

	x, err := normalize(x)
	if err != nil {
		return nil, nil, false
	}
	y, err = normalize(y)
	if err != nil {
		return nil, nil, false
	}
	return x, y, true
}

// indifference solves the k+1 linear equations Σ_c payoff(r, c)·p_c = v for every r and
// Σ_c p_c = 1, returning the mix p and the common value v.
func indifference(k int, payoff func(r, c int) float64) ([]float64, float64, bool) {
	system := mat.NewDense(k+1, k+1, nil)
	rhs := mat.NewVecDense(k+1, nil)
	for r := 0; r < k; r++ {
		for c := 0; c < k; c++ {
			system.Set(r, c, payoff(r, c))
		}
		system.Set(r, k, -1)
	}
	for c := 0; c < k; c++ {
		system.Set(k, c, 1)
	}
	rhs.SetVec(k, 1)

	var solution mat.VecDense
	if err := solution.SolveVec(system, rhs); err != nil {
		return nil, 0, false
	}
	p := make([]float64, k)
	for c := 0; c < k; c++ {
		p[c] = solution.AtVec(c)
	}
	return p, solution.AtVec(k), true
}

func unitVector(i, n int) []float64 {
	v := make([]float64, n)
	v[i] = 1
	return v
}

func firstCombination(k int) []int {
	c := make([]int, k)
	for i := range c {
		c[i] = i
	}
	return c
}

// nextCombination advances c to the next k-subset of {0..n-1} in lexicographic order.
func nextCombination(c []int, n int) bool {
	k := len(c)
	i := k - 1
	for i >= 0 && c[i] == n-k+i {
		i--
	}
	if i < 0 {
		return false
	}
	c[i]++
	for j := i + 1; j < k; j++ {
		c[j] = c[j-1] + 1
	}
	return true
}
