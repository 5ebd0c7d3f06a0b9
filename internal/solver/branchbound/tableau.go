package branchbound

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	pivotTolerance    = 1e-9
	driveOutTolerance = 1e-7
	zeroTolerance     = 1e-12
)

var errIterationLimit = errors.New("tableau: iteration limit reached")

// tableau is a dense two-phase simplex tableau for
//
//	minimize c·x  subject to  A·x = b, x ≥ 0
//
// with one artificial column per row. Rows 0..m-1 are the constraints and
// row m holds the reduced costs, with minus the objective in the last
// column. Pivoting follows Bland's rule, so the method cannot cycle, and
// it never factorizes a basis.
type tableau struct {
	t     *mat.Dense
	basis []int
	m, n  int
}

func newTableau(a mat.Matrix, b []float64) *tableau {
	m, n := a.Dims()
	width := n + m + 1
	tb := &tableau{t: mat.NewDense(m+1, width, nil), basis: make([]int, m), m: m, n: n}
	for i := 0; i < m; i++ {
		sign := 1.0
		if b[i] < 0 {
			sign = -1
		}
		row := tb.t.RawRowView(i)
		for j := 0; j < n; j++ {
			row[j] = sign * a.At(i, j)
		}
		row[n+i] = 1
		row[width-1] = sign * b[i]
		tb.basis[i] = n + i
	}
	return tb
}

func (tb *tableau) rhs() int { return tb.n + tb.m }

func (tb *tableau) pivot(r, e int) {
	prow := tb.t.RawRowView(r)
	p := prow[e]
	for j := range prow {
		prow[j] /= p
	}
	prow[e] = 1
	for i := 0; i <= tb.m; i++ {
		if i == r {
			continue
		}
		row := tb.t.RawRowView(i)
		f := row[e]
		if f == 0 {
			continue
		}
		for j := range row {
			row[j] -= f * prow[j]
			if math.Abs(row[j]) < zeroTolerance {
				row[j] = 0
			}
		}
		row[e] = 0
	}
	tb.basis[r] = e
}

// iterate pivots until no structural column has a negative reduced cost.
func (tb *tableau) iterate(limit int) error {
	obj := tb.t.RawRowView(tb.m)
	rhs := tb.rhs()
	for iter := 0; iter < limit; iter++ {
		e := -1
		for j := 0; j < tb.n; j++ {
			if obj[j] < -pivotTolerance {
				e = j
				break
			}
		}
		if e < 0 {
			return nil
		}

		r := -1
		best := math.Inf(1)
		for i := 0; i < tb.m; i++ {
			row := tb.t.RawRowView(i)
			if row[e] <= pivotTolerance {
				continue
			}
			ratio := math.Max(row[rhs], 0) / row[e]
			switch {
			case r < 0, ratio < best-pivotTolerance:
				r, best = i, ratio
			case ratio <= best+pivotTolerance && tb.basis[i] < tb.basis[r]:
				r = i
			}
		}
		if r < 0 {
			return lp.ErrUnbounded
		}
		tb.pivot(r, e)
	}
	return errIterationLimit
}

// solveTableau solves the standard-form LP that lp.Simplex takes and
// reports infeasibility and unboundedness with the lp package errors.
func solveTableau(c []float64, a mat.Matrix, b []float64) ([]float64, error) {
	tb := newTableau(a, b)
	m, n, rhs := tb.m, tb.n, tb.rhs()
	limit := 50*(m+n) + 1000
	obj := tb.t.RawRowView(m)

	scale := 1.0
	for i := 0; i < m; i++ {
		row := tb.t.RawRowView(i)
		for j := 0; j < n; j++ {
			obj[j] -= row[j]
		}
		obj[rhs] -= row[rhs]
		scale = math.Max(scale, math.Abs(row[rhs]))
	}
	if err := tb.iterate(limit); err != nil {
		if errors.Is(err, lp.ErrUnbounded) {
			return nil, errors.New("tableau: unbounded phase one")
		}
		return nil, err
	}
	if -obj[rhs] > feasibilityTol*scale {
		return nil, lp.ErrInfeasible
	}

	// Artificial columns still basic sit at zero; swap them for structural
	// ones where the row allows it. A row with no usable entry is redundant.
	for i := 0; i < m; i++ {
		if tb.basis[i] < n {
			continue
		}
		row := tb.t.RawRowView(i)
		best, col := driveOutTolerance, -1
		for j := 0; j < n; j++ {
			if v := math.Abs(row[j]); v > best {
				best, col = v, j
			}
		}
		if col >= 0 {
			row[rhs] = 0
			tb.pivot(i, col)
		}
	}

	for j := range obj {
		obj[j] = 0
	}
	copy(obj[:n], c)
	for i, bj := range tb.basis {
		if bj >= n || obj[bj] == 0 {
			continue
		}
		f := obj[bj]
		row := tb.t.RawRowView(i)
		for j := range obj {
			obj[j] -= f * row[j]
		}
	}
	if err := tb.iterate(limit); err != nil {
		return nil, err
	}

	x := make([]float64, n)
	for i, bj := range tb.basis {
		if bj < n {
			x[bj] = math.Max(0, tb.t.At(i, rhs))
		}
	}
	return x, nil
}
