// Package matrix holds pure helpers over 2D payoff matrices and mixed strategies. Rows
// index the row player's actions and columns the column player's. No function mutates
// its inputs.
package matrix

import "math"

// ExpectedPayoff returns Σᵢⱼ row[i]·col[j]·m[i][j].
func ExpectedPayoff(m [][]float64, row, col []float64) float64 {
	sum := 0.0
	for i := range m {
		for j := range m[i] {
			sum += row[i] * col[j] * m[i][j]
		}
	}
	return sum
}

// ExpectedJointPayoff returns Σᵢⱼ joint[i][j]·m[i][j] for a joint action distribution.
func ExpectedJointPayoff(m [][]float64, joint [][]float64) float64 {
	sum := 0.0
	for i := range joint {
		for j := range joint[i] {
			sum += joint[i][j] * m[i][j]
		}
	}
	return sum
}

// ExpectedPayoffs returns both players' expected payoffs under a joint distribution.
func ExpectedPayoffs(rowPayoff, colPayoff [][]float64, joint [][]float64) (float64, float64) {
	return ExpectedJointPayoff(rowPayoff, joint), ExpectedJointPayoff(colPayoff, joint)
}

// Negate converts a minimizer's view of a zero-sum game into a maximizer's view.
func Negate(m [][]float64) [][]float64 {
	out := New(Dims(m))
	for i := range m {
		for j := range m[i] {
			out[i][j] = -m[i][j]
		}
	}
	return out
}

// Transpose swaps the row and column players' roles.
func Transpose(m [][]float64) [][]float64 {
	rows, cols := Dims(m)
	out := New(cols, rows)
	for i := range m {
		for j := range m[i] {
			out[j][i] = m[i][j]
		}
	}
	return out
}

// JointDistribution is the outer product of two independent mixed strategies.
func JointDistribution(row, col []float64) [][]float64 {
	out := New(len(row), len(col))
	for i := range row {
		for j := range col {
			out[i][j] = row[i] * col[j]
		}
	}
	return out
}

// MarginalRow sums a joint distribution over columns.
func MarginalRow(joint [][]float64) []float64 {
	out := make([]float64, len(joint))
	for i := range joint {
		for _, p := range joint[i] {
			out[i] += p
		}
	}
	return out
}

// MarginalCol sums a joint distribution over rows.
func MarginalCol(joint [][]float64) []float64 {
	_, cols := Dims(joint)
	out := make([]float64, cols)
	for i := range joint {
		for j, p := range joint[i] {
			out[j] += p
		}
	}
	return out
}

// Combine returns a·x + b·y elementwise.
func Combine(a float64, x [][]float64, b float64, y [][]float64) [][]float64 {
	out := New(Dims(x))
	for i := range x {
		for j := range x[i] {
			out[i][j] = a*x[i][j] + b*y[i][j]
		}
	}
	return out
}

// Min and Max return the smallest and largest entries. Both are ±Inf for empty matrices.
func Min(m [][]float64) float64 {
	min := math.Inf(1)
	for i := range m {
		for _, v := range m[i] {
			min = math.Min(min, v)
		}
	}
	return min
}

func Max(m [][]float64) float64 {
	max := math.Inf(-1)
	for i := range m {
		for _, v := range m[i] {
			max = math.Max(max, v)
		}
	}
	return max
}

// New allocates a zero rows×cols matrix.
func New(rows, cols int) [][]float64 {
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
	}
	return out
}

// Dims returns the shape of m, taking the column count from the first row.
func Dims(m [][]float64) (rows, cols int) {
	if len(m) == 0 {
		return 0, 0
	}
	return len(m), len(m[0])
}

// IsRectangular reports whether m is non-empty and every row has the same length.
func IsRectangular(m [][]float64) bool {
	rows, cols := Dims(m)
	if rows == 0 || cols == 0 {
		return false
	}
	for _, row := range m {
		if len(row) != cols {
			return false
		}
	}
	return true
}
