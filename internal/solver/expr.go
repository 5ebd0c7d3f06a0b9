package solver

// Term is coef·var.
type Term struct {
	Var  Var
	Coef float64
}

// Expr is an affine expression Σ coef·var + Constant.
type Expr struct {
	Terms    []Term
	Constant float64
}

// Sum returns the expression Σ vars with unit coefficients.
func Sum(vars ...Var) Expr {
	e := Expr{Terms: make([]Term, 0, len(vars))}
	for _, v := range vars {
		e.Terms = append(e.Terms, Term{Var: v, Coef: 1})
	}
	return e
}

// Add appends coef·v to e and returns e for chaining.
func (e *Expr) Add(v Var, coef float64) *Expr {
	if coef != 0 {
		e.Terms = append(e.Terms, Term{Var: v, Coef: coef})
	}
	return e
}

// AddExpr appends scale·other to e.
func (e *Expr) AddExpr(other Expr, scale float64) *Expr {
	for _, t := range other.Terms {
		e.Add(t.Var, scale*t.Coef)
	}
	e.Constant += scale * other.Constant
	return e
}

// Minus returns e − other as a new expression.
func (e Expr) Minus(other Expr) Expr {
	out := Expr{Terms: append([]Term(nil), e.Terms...), Constant: e.Constant}
	out.AddExpr(other, -1)
	return out
}

// Scaled returns scale·e as a new expression.
func (e Expr) Scaled(scale float64) Expr {
	out := Expr{}
	out.AddExpr(e, scale)
	return out
}

// Empty reports whether e has no variable terms.
func (e Expr) Empty() bool {
	return len(e.Terms) == 0
}

// Coefficients merges duplicate terms and drops zero coefficients.
func (e Expr) Coefficients() map[Var]float64 {
	out := make(map[Var]float64, len(e.Terms))
	for _, t := range e.Terms {
		out[t.Var] += t.Coef
	}
	for v, c := range out {
		if c == 0 {
			delete(out, v)
		}
	}
	return out
}
