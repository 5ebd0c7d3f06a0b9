// Package solver describes the mixed-integer linear programming capability
// the settlement compiler targets: bounded boolean, integer and continuous
// variables, linear constraints over affine expressions, a single linear
// objective and a blocking Solve call.
package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// VarKind is the domain of a decision variable.
type VarKind int

const (
	Continuous VarKind = iota
	Integer
	Binary
)

func (k VarKind) String() string {
	switch k {
	case Continuous:
		return "continuous"
	case Integer:
		return "integer"
	case Binary:
		return "binary"
	default:
		return fmt.Sprintf("VarKind(%d)", int(k))
	}
}

// Var is a handle to a variable of one Problem.
type Var int

// Variable describes a declared decision variable.
type Variable struct {
	Name  string
	Kind  VarKind
	Lower float64
	Upper float64
}

// Sense is the relation of a constraint.
type Sense int

const (
	LessEq Sense = iota
	GreaterEq
	Equal
)

func (s Sense) String() string {
	switch s {
	case LessEq:
		return "<="
	case GreaterEq:
		return ">="
	case Equal:
		return "="
	default:
		return fmt.Sprintf("Sense(%d)", int(s))
	}
}

// Constraint is `Expr Sense RHS`.
type Constraint struct {
	Name  string
	Expr  Expr
	Sense Sense
	RHS   float64
}

// Problem is a MILP under construction. It is not safe for concurrent
// mutation; a built Problem can be solved concurrently by reentrant solvers.
type Problem struct {
	vars        []Variable
	constraints []Constraint
	objective   Expr
	maximize    bool
}

// NewProblem returns an empty problem.
func NewProblem() *Problem {
	return &Problem{}
}

// NewVar declares a variable.
func (p *Problem) NewVar(name string, kind VarKind, lower, upper float64) Var {
	if kind == Binary {
		lower, upper = 0, 1
	}
	p.vars = append(p.vars, Variable{Name: name, Kind: kind, Lower: lower, Upper: upper})
	return Var(len(p.vars) - 1)
}

// NewBool declares a binary variable.
func (p *Problem) NewBool(name string) Var {
	return p.NewVar(name, Binary, 0, 1)
}

// NewInt declares an integer variable in [lower, upper].
func (p *Problem) NewInt(name string, lower, upper float64) Var {
	return p.NewVar(name, Integer, lower, upper)
}

// NewContinuous declares a continuous variable in [lower, upper]. Use
// math.Inf(1) for an unbounded upper limit.
func (p *Problem) NewContinuous(name string, lower, upper float64) Var {
	return p.NewVar(name, Continuous, lower, upper)
}

// Add appends the constraint `lhs sense rhs`.
func (p *Problem) Add(name string, lhs Expr, sense Sense, rhs float64) {
	p.constraints = append(p.constraints, Constraint{Name: name, Expr: lhs, Sense: sense, RHS: rhs})
}

// Maximize sets the objective to maximize e.
func (p *Problem) Maximize(e Expr) {
	p.objective = e
	p.maximize = true
}

// Minimize sets the objective to minimize e.
func (p *Problem) Minimize(e Expr) {
	p.objective = e
	p.maximize = false
}

// Variables returns the declared variables.
func (p *Problem) Variables() []Variable { return p.vars }

// Constraints returns the declared constraints.
func (p *Problem) Constraints() []Constraint { return p.constraints }

// Objective returns the objective expression and whether it is maximized.
func (p *Problem) Objective() (Expr, bool) { return p.objective, p.maximize }

// NumVars returns the number of declared variables.
func (p *Problem) NumVars() int { return len(p.vars) }

// Variable returns the declaration of v.
func (p *Problem) Variable(v Var) Variable { return p.vars[v] }

// ConstraintsNamed returns the constraints whose name starts with prefix.
func (p *Problem) ConstraintsNamed(prefix string) []Constraint {
	var out []Constraint
	for _, c := range p.constraints {
		if len(c.Name) >= len(prefix) && c.Name[:len(prefix)] == prefix {
			out = append(out, c)
		}
	}
	return out
}

// Validate checks the problem is well formed.
func (p *Problem) Validate() error {
	for i, v := range p.vars {
		if math.IsNaN(v.Lower) || math.IsNaN(v.Upper) {
			return fmt.Errorf("variable %s: NaN bound", v.Name)
		}
		if v.Lower > v.Upper {
			return fmt.Errorf("variable %s: lower bound %g exceeds upper bound %g", v.Name, v.Lower, v.Upper)
		}
		if math.IsInf(v.Lower, -1) {
			return fmt.Errorf("variable %d (%s): free variables are not supported", i, v.Name)
		}
	}
	check := func(e Expr, where string) error {
		for _, t := range e.Terms {
			if int(t.Var) < 0 || int(t.Var) >= len(p.vars) {
				return fmt.Errorf("%s references undeclared variable %d", where, t.Var)
			}
			if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
				return fmt.Errorf("%s has non-finite coefficient on %s", where, p.vars[t.Var].Name)
			}
		}
		return nil
	}
	for _, c := range p.constraints {
		if err := check(c.Expr, "constraint "+c.Name); err != nil {
			return err
		}
		if math.IsNaN(c.RHS) {
			return fmt.Errorf("constraint %s has NaN right-hand side", c.Name)
		}
	}
	return check(p.objective, "objective")
}

// Status is the terminal outcome of a solve.
type Status int

const (
	// StatusError means the backend failed; the model may be fine.
	StatusError Status = iota
	// StatusOptimal means the returned assignment is proven optimal.
	StatusOptimal
	// StatusFeasible means the assignment is feasible but not proven optimal.
	StatusFeasible
	// StatusInfeasible means no assignment satisfies the constraints.
	StatusInfeasible
	// StatusAborted means a deadline or search limit stopped the solve
	// before any feasible assignment was found.
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusFeasible:
		return "feasible"
	case StatusInfeasible:
		return "infeasible"
	case StatusAborted:
		return "aborted"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// HasSolution reports whether a status carries variable values.
func (s Status) HasSolution() bool {
	return s == StatusOptimal || s == StatusFeasible
}

// Solution is the outcome of a solve.
type Solution struct {
	Status    Status
	Objective float64
	Values    []float64
	Nodes     int
}

// Value returns the value of v. It is zero when the status carries no
// assignment.
func (s *Solution) Value(v Var) float64 {
	if s == nil || int(v) < 0 || int(v) >= len(s.Values) {
		return 0
	}
	return s.Values[v]
}

// Eval evaluates e under the solution.
func (s *Solution) Eval(e Expr) float64 {
	sum := e.Constant
	for _, t := range e.Terms {
		sum += t.Coef * s.Value(t.Var)
	}
	return sum
}

var (
	// ErrUnbounded is returned by backends when the objective is unbounded.
	ErrUnbounded = errors.New("solver: objective is unbounded")
	// ErrNumerical is returned by backends when floating-point trouble kept
	// them from finishing a search the model itself allows. It concerns one
	// problem, not the backend as a whole.
	ErrNumerical = errors.New("solver: numerical failure")
)

// Solver is the blocking solve capability. Implementations must be safe to
// call concurrently on independent problems.
type Solver interface {
	Solve(ctx context.Context, p *Problem) (*Solution, error)
}
