// Package compiler turns a settlement bundle into a mixed-integer program:
// one settlement decision per transaction, pledged lots and an activation
// flag per collateral link, and a cash shortfall surrogate per account,
// tied together by the balance, credit, position, activation and ordering
// constraint families plus any enabled regulatory extensions.
package compiler

import (
	"fmt"

	"github.com/iwvelando/settlement-optimizer/internal/model"
	"github.com/iwvelando/settlement-optimizer/internal/solver"
)

// Constraint name prefixes, one per family.
const (
	PrefixBalance    = "balance_"
	PrefixCredit     = "credit_"
	PrefixNeed       = "need_"
	PrefixPosition   = "position_"
	PrefixTrigger    = "trigger_"
	PrefixActivation = "activation_"
	PrefixLotsMin    = "lots_min_"
	PrefixLotsMax    = "lots_max_"
	PrefixAfter      = "after_"

	PrefixConcentration = "concentration_"
	PrefixMuniIssuer    = "muni_issuer_"
	PrefixMuniTotal     = "muni_total_"
	PrefixSBSActivity   = "sbs_activity_"
	PrefixSBSReserve    = "sbs_reserve_"
	PrefixSBSNonCleared = "sbs_noncleared_"
	PrefixSBSSeparation = "sbs_separation_"
)

// Model is a compiled bundle. Variable maps are keyed by entity id.
type Model struct {
	Problem *solver.Problem
	Input   *model.Input
	Index   *model.Index
	Options Options

	Settle     map[int]solver.Var
	Lots       map[int]solver.Var
	Active     map[int]solver.Var
	Need       map[int]solver.Var
	PABNeed    map[int]solver.Var
	Segregated map[int]solver.Var

	Objective solver.Expr
}

// Compile validates the bundle and the options and builds the model.
func Compile(in *model.Input, opts Options) (*Model, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	m := &Model{
		Problem:    solver.NewProblem(),
		Input:      in,
		Index:      model.NewIndex(in),
		Options:    opts,
		Settle:     make(map[int]solver.Var, len(in.Transactions)),
		Lots:       make(map[int]solver.Var, len(in.CollateralLinks)),
		Active:     make(map[int]solver.Var, len(in.CollateralLinks)),
		Need:       make(map[int]solver.Var, len(in.Accounts)),
		PABNeed:    make(map[int]solver.Var),
		Segregated: make(map[int]solver.Var),
	}

	m.declareVariables()

	obj, err := Objective(in, m.Settle, opts.Lambda)
	if err != nil {
		return nil, err
	}
	m.Objective = obj
	m.Problem.Maximize(obj)

	for _, a := range in.Accounts {
		if err := m.addAccount(a); err != nil {
			return nil, err
		}
	}
	m.addPositions()
	m.addLinks()
	m.addAfterLinks()
	if opts.Extensions.SBSSegregation {
		if err := m.addSegregation(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Model) declareVariables() {
	p := m.Problem
	for _, t := range m.Input.Transactions {
		m.Settle[t.ID] = p.NewBool(fmt.Sprintf("x_%d", t.ID))
	}
	for _, l := range m.Input.CollateralLinks {
		m.Lots[l.ID] = p.NewInt(fmt.Sprintf("y_%d", l.ID), 0, float64(l.QLim))
		m.Active[l.ID] = p.NewBool(fmt.Sprintf("z_%d", l.ID))
	}
	for _, a := range m.Input.Accounts {
		ceiling := m.Index.DebitCeiling(m.Input, a.ID)
		m.Need[a.ID] = p.NewContinuous(fmt.Sprintf("need_%d", a.ID), 0, ceiling)
		if m.Options.Extensions.PABSeparation && a.EffectiveKind() == model.AccountPAB {
			m.PABNeed[a.ID] = p.NewContinuous(fmt.Sprintf("pab_need_%d", a.ID), 0, ceiling)
		}
	}
}

// CashFlow returns Σ cash·x over the account's debits minus its credits.
func (m *Model) CashFlow(accountID int) solver.Expr {
	var e solver.Expr
	for _, i := range m.Index.Debits[accountID] {
		t := m.Input.Transactions[i]
		e.Add(m.Settle[t.ID], t.CashAmount)
	}
	for _, i := range m.Index.Credits[accountID] {
		t := m.Input.Transactions[i]
		e.Add(m.Settle[t.ID], -t.CashAmount)
	}
	return e
}

// Collateral returns the cash capacity pledged by the account's links,
// after the haircut when that extension is enabled.
func (m *Model) Collateral(accountID int) solver.Expr {
	factor := m.Options.Extensions.CollateralFactor()
	var e solver.Expr
	for _, i := range m.Index.LinksByAccount[accountID] {
		l := m.Input.CollateralLinks[i]
		e.Add(m.Lots[l.ID], l.LotValue()*factor)
	}
	return e
}

// ReserveVar is the shortfall variable the account's reserve rules bind:
// pab_need for separated PAB accounts, need otherwise.
func (m *Model) ReserveVar(accountID int) solver.Var {
	if v, ok := m.PABNeed[accountID]; ok {
		return v
	}
	return m.Need[accountID]
}

func (m *Model) addAccount(a model.Account) error {
	p := m.Problem
	flow := m.CashFlow(a.ID)
	collateral := m.Collateral(a.ID)

	p.Add(fmt.Sprintf("%s%d", PrefixBalance, a.ID), flow.Minus(collateral), solver.LessEq, a.InitialCash)
	p.Add(fmt.Sprintf("%s%d", PrefixCredit, a.ID), collateral, solver.LessEq, a.CreditLimit)

	var need solver.Expr
	need.Add(m.ReserveVar(a.ID), 1)
	p.Add(fmt.Sprintf("%s%d", PrefixNeed, a.ID), need.Minus(flow), solver.GreaterEq, -a.InitialCash)

	return m.addAccountExtensions(a, collateral)
}

func (m *Model) addPositions() {
	p := m.Problem
	for _, sp := range m.Input.SecurityPositions {
		key := sp.Key()
		var e solver.Expr
		for _, i := range m.Index.Outflows[key] {
			t := m.Input.Transactions[i]
			e.Add(m.Settle[t.ID], float64(t.Quantity))
		}
		for _, i := range m.Index.Inflows[key] {
			t := m.Input.Transactions[i]
			e.Add(m.Settle[t.ID], -float64(t.Quantity))
		}
		for _, i := range m.Index.LinksByPosition[key] {
			l := m.Input.CollateralLinks[i]
			e.Add(m.Lots[l.ID], float64(l.LotSize))
		}
		p.Add(fmt.Sprintf("%s%d_%d", PrefixPosition, sp.AccountID, sp.ID), e, solver.LessEq, float64(sp.InitialQuantity))
	}
}

func (m *Model) addLinks() {
	p := m.Problem
	for _, l := range m.Input.CollateralLinks {
		z := m.Active[l.ID]
		y := m.Lots[l.ID]

		activation := solver.Expr{}
		activation.Add(z, 1)
		for _, tid := range l.TriggeredTransactions {
			x := m.Settle[tid]
			var trig solver.Expr
			trig.Add(x, 1).Add(z, -1)
			p.Add(fmt.Sprintf("%s%d_%d", PrefixTrigger, l.ID, tid), trig, solver.LessEq, 0)
			activation.Add(x, -1)
		}
		p.Add(fmt.Sprintf("%s%d", PrefixActivation, l.ID), activation, solver.LessEq, 0)

		var lo, hi solver.Expr
		lo.Add(y, float64(l.LotSize)).Add(z, -float64(l.QMin))
		hi.Add(y, float64(l.LotSize)).Add(z, -float64(l.QLim))
		p.Add(fmt.Sprintf("%s%d", PrefixLotsMin, l.ID), lo, solver.GreaterEq, 0)
		p.Add(fmt.Sprintf("%s%d", PrefixLotsMax, l.ID), hi, solver.LessEq, 0)
	}
}

func (m *Model) addAfterLinks() {
	p := m.Problem
	for _, al := range m.Input.AfterLinks {
		var e solver.Expr
		e.Add(m.Settle[al.T2], 1).Add(m.Settle[al.T1], -1)
		p.Add(fmt.Sprintf("%s%d_%d", PrefixAfter, al.T1, al.T2), e, solver.LessEq, 0)
	}
}
