package compiler

import (
	"errors"

	"github.com/iwvelando/settlement-optimizer/internal/model"
	"github.com/iwvelando/settlement-optimizer/internal/solver"
)

// ErrDegenerateObjective is returned when a normalizing denominator of the
// objective is zero.
var ErrDegenerateObjective = errors.New("objective denominator is zero")

// Objective builds
//
//	λ·Σ(w·a·x)/Σ(w·a) + (1−λ)·Σ(w·x)/Σw
//
// over the settlement variables. Both denominators are constants of the
// whole transaction set.
func Objective(in *model.Input, settle map[int]solver.Var, lambda float64) (solver.Expr, error) {
	totalWeighted := in.TotalWeightedCash()
	totalWeight := in.TotalWeight()
	if len(in.Transactions) == 0 || totalWeighted == 0 || totalWeight == 0 {
		return solver.Expr{}, ErrDegenerateObjective
	}

	var obj solver.Expr
	for _, t := range in.Transactions {
		coef := lambda*t.Weight*t.CashAmount/totalWeighted + (1-lambda)*t.Weight/totalWeight
		obj.Add(settle[t.ID], coef)
	}
	return obj, nil
}
