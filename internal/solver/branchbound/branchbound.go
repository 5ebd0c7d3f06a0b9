// Package branchbound is a depth-first branch-and-bound MILP backend. LP
// relaxations are solved with gonum's simplex after shifting every variable
// to a non-negative domain and adding one slack per inequality. Relaxations
// gonum cannot finish numerically are retried on a dense tableau.
package branchbound

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/iwvelando/settlement-optimizer/internal/solver"
	"github.com/iwvelando/settlement-optimizer/pkg/constants"
	"github.com/iwvelando/settlement-optimizer/pkg/mathutil"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	simplexTolerance = 1e-9
	feasibilityTol   = 1e-7
	pruneTolerance   = 1e-9
)

// Options tune the search.
type Options struct {
	// NodeLimit caps the number of explored nodes; zero means the default.
	NodeLimit int
	// IntegralityTolerance is how far a relaxed value may sit from an integer.
	IntegralityTolerance float64
	// TimeLimit bounds the wall-clock time of one Solve; zero means none.
	TimeLimit time.Duration
}

func (o *Options) normalize() {
	if o.NodeLimit <= 0 {
		o.NodeLimit = constants.DefaultNodeLimit
	}
	if o.IntegralityTolerance <= 0 {
		o.IntegralityTolerance = constants.DefaultIntegralityTolerance
	}
}

// Solver implements solver.Solver. It holds no per-solve state and is safe
// for concurrent use.
type Solver struct {
	logger *zap.Logger
	opts   Options
}

var _ solver.Solver = (*Solver)(nil)

// New constructs a branch-and-bound solver.
func New(logger *zap.Logger, opts Options) *Solver {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.normalize()
	return &Solver{logger: logger, opts: opts}
}

// row is Σ coef·x ≤ rhs over the original variables.
type row struct {
	name string
	vars []int
	coef []float64
	rhs  float64
}

type node struct {
	lower []float64
	upper []float64
	depth int
}

type relaxStatus int

const (
	relaxOptimal relaxStatus = iota
	relaxInfeasible
	relaxUnbounded
)

type relaxation struct {
	status relaxStatus
	x      []float64
	f      float64
}

// Solve runs branch and bound on p. A non-nil error always comes with
// solver.StatusError.
func (s *Solver) Solve(ctx context.Context, p *solver.Problem) (*solver.Solution, error) {
	if err := p.Validate(); err != nil {
		return &solver.Solution{Status: solver.StatusError}, fmt.Errorf("branchbound: invalid problem: %w", err)
	}
	if s.opts.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.TimeLimit)
		defer cancel()
	}

	rows, feasible := normalizeRows(p.Constraints())
	if !feasible {
		return &solver.Solution{Status: solver.StatusInfeasible}, nil
	}

	objective, maximize := p.Objective()
	sign := 1.0
	if maximize {
		sign = -1
	}
	n := p.NumVars()
	cost := make([]float64, n)
	for v, c := range objective.Coefficients() {
		cost[v] = sign * c
	}

	vars := p.Variables()
	root := node{lower: make([]float64, n), upper: make([]float64, n)}
	for j, v := range vars {
		root.lower[j], root.upper[j] = v.Lower, v.Upper
	}
	rows = dedupeRows(foldBounds(rows, root.lower, root.upper))
	for j, v := range vars {
		lo, hi := root.lower[j], root.upper[j]
		if v.Kind != solver.Continuous {
			lo = math.Ceil(lo - s.opts.IntegralityTolerance)
			hi = math.Floor(hi + s.opts.IntegralityTolerance)
		} else if lo > hi && lo-hi <= feasibilityTol {
			hi = lo
		}
		if lo > hi {
			return &solver.Solution{Status: solver.StatusInfeasible}, nil
		}
		root.lower[j], root.upper[j] = lo, hi
	}

	var (
		incumbent []float64
		best      = math.Inf(1)
		nodes     int
		failed    int
		lastErr   error
		aborted   bool
		stack     = []node{root}
	)

	for len(stack) > 0 {
		if ctx.Err() != nil || nodes >= s.opts.NodeLimit {
			aborted = true
			break
		}
		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++

		rel, err := relax(rows, cost, nd.lower, nd.upper)
		if errors.Is(err, solver.ErrNumerical) {
			failed++
			lastErr = err
			s.logger.Warn("node relaxation failed, skipping subtree",
				zap.String("op", "branchbound.Solve"),
				zap.Int("node", nodes),
				zap.Int("depth", nd.depth),
				zap.Error(err),
			)
			continue
		}
		if err != nil {
			return &solver.Solution{Status: solver.StatusError, Nodes: nodes}, fmt.Errorf("branchbound: node %d: %w", nodes, err)
		}
		switch rel.status {
		case relaxInfeasible:
			continue
		case relaxUnbounded:
			return &solver.Solution{Status: solver.StatusError, Nodes: nodes}, solver.ErrUnbounded
		}
		if rel.f >= best-pruneTolerance {
			continue
		}

		branchVar := -1
		worst := 0.0
		for j, v := range vars {
			if v.Kind == solver.Continuous {
				continue
			}
			frac := math.Abs(rel.x[j] - math.Round(rel.x[j]))
			if frac > s.opts.IntegralityTolerance && frac > worst {
				worst = frac
				branchVar = j
			}
		}
		if branchVar < 0 {
			values := s.round(vars, rel.x)
			if !s.satisfies(rows, root, values) {
				failed++
				lastErr = fmt.Errorf("%w: node %d relaxation violates its rows", solver.ErrNumerical, nodes)
				s.logger.Warn("rejected inaccurate incumbent",
					zap.String("op", "branchbound.Solve"),
					zap.Int("node", nodes),
				)
				continue
			}
			incumbent = values
			best = rel.f
			s.logger.Debug("new incumbent",
				zap.String("op", "branchbound.Solve"),
				zap.Int("node", nodes),
				zap.Float64("objective", sign*best),
			)
			continue
		}

		val := rel.x[branchVar]
		down := node{lower: nd.lower, upper: append([]float64(nil), nd.upper...), depth: nd.depth + 1}
		down.upper[branchVar] = math.Floor(val)
		up := node{lower: append([]float64(nil), nd.lower...), upper: nd.upper, depth: nd.depth + 1}
		up.lower[branchVar] = math.Ceil(val)
		// The up branch is explored first.
		stack = append(stack, down, up)
	}

	if incumbent == nil {
		if failed > 0 && !aborted {
			return &solver.Solution{Status: solver.StatusError, Nodes: nodes},
				fmt.Errorf("branchbound: %d of %d nodes failed: %w", failed, nodes, lastErr)
		}
		status := solver.StatusInfeasible
		if aborted {
			status = solver.StatusAborted
		}
		s.logger.Debug("search finished without incumbent",
			zap.String("op", "branchbound.Solve"),
			zap.String("status", status.String()),
			zap.Int("nodes", nodes),
		)
		return &solver.Solution{Status: status, Nodes: nodes}, nil
	}

	sol := &solver.Solution{Status: solver.StatusOptimal, Values: incumbent, Nodes: nodes}
	if aborted || failed > 0 {
		// Part of the tree was never searched.
		sol.Status = solver.StatusFeasible
	}
	sol.Objective = sol.Eval(objective)

	s.logger.Debug("search finished",
		zap.String("op", "branchbound.Solve"),
		zap.String("status", sol.Status.String()),
		zap.Int("nodes", nodes),
		zap.Int("failedNodes", failed),
		zap.Float64("objective", sol.Objective),
	)
	return sol, nil
}

// round snaps an integral relaxation onto exact integers.
func (s *Solver) round(vars []solver.Variable, x []float64) []float64 {
	values := make([]float64, len(x))
	for j, v := range vars {
		if v.Kind != solver.Continuous {
			values[j] = math.Round(x[j])
		} else {
			values[j] = mathutil.Snap(x[j], feasibilityTol)
		}
	}
	return values
}

// satisfies checks values against the root bounds and every row, allowing
// for the movement rounding introduced.
func (s *Solver) satisfies(rows []row, root node, values []float64) bool {
	slack := math.Max(s.opts.IntegralityTolerance, feasibilityTol)
	for j, v := range values {
		if v < root.lower[j]-slack || v > root.upper[j]+slack {
			return false
		}
	}
	for _, r := range rows {
		lhs, mass := 0.0, 0.0
		for i, j := range r.vars {
			lhs += r.coef[i] * values[j]
			mass += math.Abs(r.coef[i])
		}
		if lhs > r.rhs+10*feasibilityTol+slack*mass+1e-9*math.Abs(r.rhs) {
			return false
		}
	}
	return true
}

// normalizeRows turns every constraint into ≤ rows with merged
// coefficients. Constraints without variables are checked immediately; the
// second return value is false when one of them is violated.
func normalizeRows(constraints []solver.Constraint) ([]row, bool) {
	rows := make([]row, 0, len(constraints))
	for _, c := range constraints {
		coefs := c.Expr.Coefficients()
		rhs := c.RHS - c.Expr.Constant
		if len(coefs) == 0 {
			switch c.Sense {
			case solver.LessEq:
				if rhs < -feasibilityTol {
					return nil, false
				}
			case solver.GreaterEq:
				if rhs > feasibilityTol {
					return nil, false
				}
			case solver.Equal:
				if math.Abs(rhs) > feasibilityTol {
					return nil, false
				}
			}
			continue
		}
		// Rows are scaled to a unit largest coefficient.
		scale := 0.0
		for _, coef := range coefs {
			scale = math.Max(scale, math.Abs(coef))
		}
		r := row{name: c.Name, rhs: rhs / scale}
		for _, v := range sortedVars(coefs) {
			r.vars = append(r.vars, v)
			r.coef = append(r.coef, coefs[solver.Var(v)]/scale)
		}
		switch c.Sense {
		case solver.LessEq:
			rows = append(rows, r)
		case solver.GreaterEq:
			rows = append(rows, r.negated())
		case solver.Equal:
			rows = append(rows, r, r.negated())
		}
	}
	return rows, true
}

// foldBounds moves single-variable rows into lower and upper and returns
// the remaining rows.
func foldBounds(rows []row, lower, upper []float64) []row {
	out := rows[:0]
	for _, r := range rows {
		if len(r.vars) != 1 {
			out = append(out, r)
			continue
		}
		j, c := r.vars[0], r.coef[0]
		if c > 0 {
			upper[j] = math.Min(upper[j], r.rhs/c)
		} else {
			lower[j] = math.Max(lower[j], r.rhs/c)
		}
	}
	return out
}

// dedupeRows keeps one row per left-hand side, with the tightest rhs.
// Parallel rows make the simplex basis singular.
func dedupeRows(rows []row) []row {
	seen := make(map[string]int, len(rows))
	out := make([]row, 0, len(rows))
	for _, r := range rows {
		k := r.key()
		if i, ok := seen[k]; ok {
			out[i].rhs = math.Min(out[i].rhs, r.rhs)
			continue
		}
		seen[k] = len(out)
		out = append(out, r)
	}
	return out
}

func (r row) key() string {
	var sb strings.Builder
	for i, v := range r.vars {
		fmt.Fprintf(&sb, "%d:%.12g;", v, r.coef[i])
	}
	return sb.String()
}

func sortedVars(coefs map[solver.Var]float64) []int {
	out := make([]int, 0, len(coefs))
	for v := range coefs {
		out = append(out, int(v))
	}
	sort.Ints(out)
	return out
}

func (r row) negated() row {
	out := row{name: r.name, vars: r.vars, coef: make([]float64, len(r.coef)), rhs: -r.rhs}
	for i, c := range r.coef {
		out.coef[i] = -c
	}
	return out
}

// relax solves the LP relaxation of the node. Variables with equal bounds
// are substituted as constants and the others are shifted to x' = x − lower.
// A row left with a single free variable only tightens that variable's
// bounds, and rows that coincide after substitution are merged, so the LP
// never carries parallel rows.
func relax(rows []row, cost, lower, upper []float64) (relaxation, error) {
	n := len(cost)
	lo := append([]float64(nil), lower...)
	hi := append([]float64(nil), upper...)
	free := func(j int) bool { return hi[j]-lo[j] > feasibilityTol }

	implied := make([]bool, len(rows))
	for k, r := range rows {
		rhs, single, count := r.rhs, -1, 0
		for i, j := range r.vars {
			if free(j) {
				single, count = i, count+1
			} else {
				rhs -= r.coef[i] * lo[j]
			}
		}
		switch count {
		case 0:
			if rhs < -feasibilityTol {
				return relaxation{status: relaxInfeasible}, nil
			}
			implied[k] = true
		case 1:
			j, c := r.vars[single], r.coef[single]
			if c > 0 {
				hi[j] = math.Min(hi[j], rhs/c)
			} else {
				lo[j] = math.Max(lo[j], rhs/c)
			}
			if lo[j] > hi[j]+feasibilityTol {
				return relaxation{status: relaxInfeasible}, nil
			}
			hi[j] = math.Max(hi[j], lo[j])
			implied[k] = true
		}
	}

	column := make([]int, n)
	for j := range column {
		column[j] = -1
	}
	structural := 0
	use := func(j int) int {
		if column[j] < 0 {
			column[j] = structural
			structural++
		}
		return column[j]
	}

	var lpRows []row
	seen := make(map[string]int)
	for k, r := range rows {
		if implied[k] {
			continue
		}
		lr := row{rhs: r.rhs}
		for i, j := range r.vars {
			lr.rhs -= r.coef[i] * lo[j]
			if free(j) {
				lr.vars = append(lr.vars, j)
				lr.coef = append(lr.coef, r.coef[i])
			}
		}
		if len(lr.vars) == 0 {
			if lr.rhs < -feasibilityTol {
				return relaxation{status: relaxInfeasible}, nil
			}
			continue
		}
		key := lr.key()
		if i, ok := seen[key]; ok {
			lpRows[i].rhs = math.Min(lpRows[i].rhs, lr.rhs)
			continue
		}
		seen[key] = len(lpRows)
		lpRows = append(lpRows, lr)
	}
	for _, lr := range lpRows {
		for _, j := range lr.vars {
			use(j)
		}
	}
	for j := 0; j < n; j++ {
		if !free(j) || math.IsInf(hi[j], 1) {
			continue
		}
		lpRows = append(lpRows, row{vars: []int{j}, coef: []float64{1}, rhs: hi[j] - lo[j]})
		use(j)
	}

	x := make([]float64, n)
	copy(x, lo)
	for j := 0; j < n; j++ {
		if free(j) && column[j] < 0 && cost[j] < 0 {
			// No row and no upper bound limits a variable that improves
			// the objective.
			return relaxation{status: relaxUnbounded}, nil
		}
	}

	if len(lpRows) > 0 {
		m := len(lpRows)
		width := structural + m
		a := mat.NewDense(m, width, nil)
		b := make([]float64, m)
		c := make([]float64, width)
		for j := 0; j < n; j++ {
			if column[j] >= 0 {
				c[column[j]] = cost[j]
			}
		}
		for i, lr := range lpRows {
			for k, j := range lr.vars {
				a.Set(i, column[j], lr.coef[k])
			}
			a.Set(i, structural+i, 1)
			b[i] = lr.rhs
		}

		opt, err := simplex(c, a, b, structural)
		switch {
		case errors.Is(err, lp.ErrInfeasible):
			return relaxation{status: relaxInfeasible}, nil
		case errors.Is(err, lp.ErrUnbounded):
			return relaxation{status: relaxUnbounded}, nil
		case err != nil:
			return relaxation{}, err
		}
		for j := 0; j < n; j++ {
			if column[j] >= 0 {
				x[j] = math.Min(hi[j], math.Max(lo[j], lo[j]+opt[column[j]]))
			}
		}
	}

	f := 0.0
	for j := 0; j < n; j++ {
		f += cost[j] * x[j]
	}
	return relaxation{status: relaxOptimal, x: x, f: f}, nil
}

// simplex solves min c·x, A·x = b, x ≥ 0, where the columns from slacks on
// form an identity. gonum starts from that slack basis whenever b ≥ 0 and
// runs its own phase one otherwise. Failures other than infeasibility and
// unboundedness are retried on the dense tableau; what still fails is
// reported as solver.ErrNumerical.
func simplex(c []float64, a *mat.Dense, b []float64, slacks int) ([]float64, error) {
	var basis []int
	if !slices.ContainsFunc(b, func(v float64) bool { return v < 0 }) {
		basis = make([]int, len(b))
		for i := range basis {
			basis[i] = slacks + i
		}
	}
	_, x, err := lp.Simplex(c, a, b, simplexTolerance, basis)
	if err == nil || errors.Is(err, lp.ErrInfeasible) || errors.Is(err, lp.ErrUnbounded) {
		return x, err
	}

	x, terr := solveTableau(c, a, b)
	if terr == nil || errors.Is(terr, lp.ErrInfeasible) || errors.Is(terr, lp.ErrUnbounded) {
		return x, terr
	}
	return nil, fmt.Errorf("%w: simplex: %v; tableau: %v", solver.ErrNumerical, err, terr)
}
