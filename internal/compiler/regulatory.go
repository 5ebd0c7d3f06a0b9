package compiler

import (
	"fmt"
	"sort"

	"github.com/iwvelando/settlement-optimizer/internal/model"
	"github.com/iwvelando/settlement-optimizer/internal/solver"
	"github.com/iwvelando/settlement-optimizer/pkg/constants"
)

// addAccountExtensions adds the per-account regulatory rows. Accounts
// without a regulatory payload only get rows driven by their kind.
func (m *Model) addAccountExtensions(a model.Account, collateral solver.Expr) error {
	ext := m.Options.Extensions
	switch a.EffectiveKind() {
	case model.AccountStandard, model.AccountCustomer, model.AccountPAB, model.AccountSBS:
	default:
		return fmt.Errorf("account %d: unknown kind %q", a.ID, a.Kind)
	}
	reg := a.Regulatory
	if reg == nil {
		return nil
	}
	p := m.Problem

	if ext.Concentration && reg.BankEquityCapital != nil {
		p.Add(fmt.Sprintf("%s%d", PrefixConcentration, a.ID), collateral, solver.LessEq,
			constants.ConcentrationShare*(*reg.BankEquityCapital))
	}

	if ext.MuniLimits && len(reg.StateMuniHoldings) > 0 {
		reserve := m.ReserveVar(a.ID)
		issuers := make([]int, 0, len(reg.StateMuniHoldings))
		for issuer := range reg.StateMuniHoldings {
			issuers = append(issuers, issuer)
		}
		sort.Ints(issuers)

		total := 0.0
		for _, issuer := range issuers {
			amount := reg.StateMuniHoldings[issuer]
			total += amount
			var e solver.Expr
			e.Add(reserve, constants.MuniSingleIssuerShare)
			p.Add(fmt.Sprintf("%s%d_%d", PrefixMuniIssuer, a.ID, issuer), e, solver.GreaterEq, amount)
		}
		var e solver.Expr
		e.Add(reserve, constants.MuniAggregateShare)
		p.Add(fmt.Sprintf("%s%d", PrefixMuniTotal, a.ID), e, solver.GreaterEq, total)
	}
	return nil
}

// addSegregation adds the security-based swap rows for sbs accounts. An
// account with no swap transactions gets none.
func (m *Model) addSegregation() error {
	p := m.Problem
	for _, a := range m.Input.Accounts {
		switch a.EffectiveKind() {
		case model.AccountSBS:
		case model.AccountStandard, model.AccountCustomer, model.AccountPAB:
			continue
		default:
			return fmt.Errorf("account %d: unknown kind %q", a.ID, a.Kind)
		}

		var swaps, nonCleared []solver.Var
		var standard []int
		for _, t := range m.Input.Transactions {
			if !t.Touches(a.ID) {
				continue
			}
			x := m.Settle[t.ID]
			switch t.EffectiveKind() {
			case model.TxSBSNonCleared:
				nonCleared = append(nonCleared, x)
				swaps = append(swaps, x)
			case model.TxSBSCleared:
				swaps = append(swaps, x)
			case model.TxStandard:
				standard = append(standard, t.ID)
			default:
				return fmt.Errorf("transaction %d: unknown kind %q", t.ID, t.Kind)
			}
		}
		if len(swaps) == 0 {
			continue
		}

		seg := p.NewBool(fmt.Sprintf("seg_%d", a.ID))
		m.Segregated[a.ID] = seg
		reserve := m.ReserveVar(a.ID)

		// seg ≥ mean(x) written as n·seg − Σx ≥ 0.
		activity := solver.Sum(swaps...).Scaled(-1)
		activity.Add(seg, float64(len(swaps)))
		p.Add(fmt.Sprintf("%s%d", PrefixSBSActivity, a.ID), activity, solver.GreaterEq, 0)

		var reg model.Regulatory
		if a.Regulatory != nil {
			reg = *a.Regulatory
		}
		if reg.SBSReserveRequirement > 0 {
			var e solver.Expr
			e.Add(reserve, 1).Add(seg, -reg.SBSReserveRequirement)
			p.Add(fmt.Sprintf("%s%d", PrefixSBSReserve, a.ID), e, solver.GreaterEq, 0)
		}

		if len(nonCleared) > 0 {
			if reg.NonClearedSBSReserve > 0 {
				var e solver.Expr
				e.Add(reserve, 1)
				e.AddExpr(solver.Sum(nonCleared...), -reg.NonClearedSBSReserve)
				p.Add(fmt.Sprintf("%s%d_reserve", PrefixSBSNonCleared, a.ID), e, solver.GreaterEq, 0)
			}
			e := solver.Sum(nonCleared...).Scaled(-1)
			e.Add(seg, float64(len(nonCleared)))
			p.Add(fmt.Sprintf("%s%d", PrefixSBSNonCleared, a.ID), e, solver.GreaterEq, 0)
		}

		for _, id := range standard {
			var e solver.Expr
			e.Add(m.Settle[id], 1).Add(seg, 1)
			p.Add(fmt.Sprintf("%s%d_%d", PrefixSBSSeparation, a.ID, id), e, solver.LessEq, 1)
		}
	}
	return nil
}
