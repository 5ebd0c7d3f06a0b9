package settlement

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/iwvelando/settlement-optimizer/internal/compiler"
	"github.com/iwvelando/settlement-optimizer/internal/model"
	"github.com/iwvelando/settlement-optimizer/internal/solver"
	"github.com/iwvelando/settlement-optimizer/pkg/mathutil"
)

// Metrics summarize a solved batch.
type Metrics struct {
	// TotalCashflow is Σ cash over settled transactions.
	TotalCashflow float64 `json:"totalCashflow"`
	// SettleRate is settled / total transactions.
	SettleRate float64 `json:"settleRate"`
	// TotalLoan is Σ lot size × pledged lots over all links.
	TotalLoan float64 `json:"totalLoan"`
	// CollateralValue is the cash capacity unlocked by pledged lots, after
	// any haircut.
	CollateralValue float64 `json:"collateralValue"`
	Settled         int     `json:"settled"`
	Total           int     `json:"total"`
}

// TransactionDecision is the settlement outcome of one transaction.
type TransactionDecision struct {
	ID         int     `json:"id"`
	Settled    bool    `json:"settled"`
	CashAmount float64 `json:"cashAmount"`
	Weight     float64 `json:"weight"`
}

// LinkDecision is the activation outcome of one collateral link.
type LinkDecision struct {
	ID         int     `json:"id"`
	AccountID  int     `json:"accountId"`
	SecurityID int     `json:"securityId"`
	Active     bool    `json:"active"`
	Lots       int     `json:"lots"`
	Quantity   int     `json:"quantity"`
	Value      float64 `json:"value"`
	Triggers   int     `json:"triggers"`
}

// PositionSummary aggregates settled flows and pledges of one
// (account, security) pair. Declared is false for pairs that only appear
// through a link.
type PositionSummary struct {
	AccountID  int  `json:"accountId"`
	SecurityID int  `json:"securityId"`
	Declared   bool `json:"declared"`
	Initial    int  `json:"initial"`
	Outflow    int  `json:"outflow"`
	Inflow     int  `json:"inflow"`
	Pledged    int  `json:"pledged"`
	// Available is the initial quantity minus pledged lots.
	Available int `json:"available"`
}

// NetOutflow is outflow minus inflow.
func (p PositionSummary) NetOutflow() int {
	return p.Outflow - p.Inflow
}

// AccountSummary aggregates the settled cash of one account.
type AccountSummary struct {
	ID          int     `json:"id"`
	InitialCash float64 `json:"initialCash"`
	CreditLimit float64 `json:"creditLimit"`
	Debits      float64 `json:"debits"`
	Credits     float64 `json:"credits"`
	Collateral  float64 `json:"collateral"`
	Need        float64 `json:"need"`
	Segregated  bool    `json:"segregated,omitempty"`
}

// Result is the outcome of a successful run.
type Result struct {
	RunID        string                `json:"runId"`
	Status       string                `json:"status"`
	Objective    float64               `json:"objective"`
	Metrics      Metrics               `json:"metrics"`
	Transactions []TransactionDecision `json:"transactions"`
	Links        []LinkDecision        `json:"links"`
	Positions    []PositionSummary     `json:"positions"`
	Accounts     []AccountSummary      `json:"accounts"`
	Nodes        int                   `json:"nodes"`
	Duration     time.Duration         `json:"duration"`
}

// IsSettled reports whether the transaction with the given id settled.
func (r *Result) IsSettled(id int) bool {
	for _, d := range r.Transactions {
		if d.ID == id {
			return d.Settled
		}
	}
	return false
}

// Link returns the decision for the link with the given id.
func (r *Result) Link(id int) (LinkDecision, bool) {
	for _, l := range r.Links {
		if l.ID == id {
			return l, true
		}
	}
	return LinkDecision{}, false
}

// extract reads the decisions of a solution. Everything is derived from the
// same index the compiler used.
func extract(m *compiler.Model, sol *solver.Solution) *Result {
	in := m.Input
	idx := m.Index
	res := &Result{Status: sol.Status.String(), Objective: sol.Objective, Nodes: sol.Nodes}

	settled := make([]bool, len(in.Transactions))
	for i, t := range in.Transactions {
		settled[i] = sol.Value(m.Settle[t.ID]) > 0.5
		res.Transactions = append(res.Transactions, TransactionDecision{
			ID:         t.ID,
			Settled:    settled[i],
			CashAmount: t.CashAmount,
			Weight:     t.Weight,
		})
		if settled[i] {
			res.Metrics.Settled++
			res.Metrics.TotalCashflow += t.CashAmount
		}
	}
	res.Metrics.Total = len(in.Transactions)
	res.Metrics.SettleRate = mathutil.SafeRatio(float64(res.Metrics.Settled), float64(res.Metrics.Total))

	lots := make([]int, len(in.CollateralLinks))
	pledged := make(map[model.PositionKey]int)
	for i, l := range in.CollateralLinks {
		lots[i] = int(math.Round(sol.Value(m.Lots[l.ID])))
		qty := l.LotSize * lots[i]
		pledged[l.Position()] += qty
		res.Metrics.TotalLoan += float64(qty)
		res.Links = append(res.Links, LinkDecision{
			ID:         l.ID,
			AccountID:  l.AssociatedAccount,
			SecurityID: l.SecurityID,
			Active:     sol.Value(m.Active[l.ID]) > 0.5,
			Lots:       lots[i],
			Quantity:   qty,
			Value:      float64(lots[i]) * l.LotValue(),
			Triggers:   len(l.TriggeredTransactions),
		})
	}

	factor := m.Options.Extensions.CollateralFactor()
	for _, a := range in.Accounts {
		s := AccountSummary{ID: a.ID, InitialCash: a.InitialCash, CreditLimit: a.CreditLimit}
		for _, i := range idx.Debits[a.ID] {
			if settled[i] {
				s.Debits += in.Transactions[i].CashAmount
			}
		}
		for _, i := range idx.Credits[a.ID] {
			if settled[i] {
				s.Credits += in.Transactions[i].CashAmount
			}
		}
		for _, i := range idx.LinksByAccount[a.ID] {
			s.Collateral += float64(lots[i]) * in.CollateralLinks[i].LotValue() * factor
		}
		s.Need = sol.Value(m.ReserveVar(a.ID))
		if seg, ok := m.Segregated[a.ID]; ok {
			s.Segregated = sol.Value(seg) > 0.5
		}
		res.Metrics.CollateralValue += s.Collateral
		res.Accounts = append(res.Accounts, s)
	}

	flows := func(key model.PositionKey) (out, inflow int) {
		for _, i := range idx.Outflows[key] {
			if settled[i] {
				out += in.Transactions[i].Quantity
			}
		}
		for _, i := range idx.Inflows[key] {
			if settled[i] {
				inflow += in.Transactions[i].Quantity
			}
		}
		return out, inflow
	}
	declared := make(map[model.PositionKey]bool, len(in.SecurityPositions))
	for _, sp := range in.SecurityPositions {
		key := sp.Key()
		declared[key] = true
		out, inflow := flows(key)
		res.Positions = append(res.Positions, PositionSummary{
			AccountID:  sp.AccountID,
			SecurityID: sp.ID,
			Declared:   true,
			Initial:    sp.InitialQuantity,
			Outflow:    out,
			Inflow:     inflow,
			Pledged:    pledged[key],
			Available:  sp.InitialQuantity - pledged[key],
		})
	}
	var undeclared []model.PositionKey
	for key, qty := range pledged {
		if !declared[key] && qty > 0 {
			undeclared = append(undeclared, key)
		}
	}
	sort.Slice(undeclared, func(i, j int) bool {
		if undeclared[i].AccountID != undeclared[j].AccountID {
			return undeclared[i].AccountID < undeclared[j].AccountID
		}
		return undeclared[i].SecurityID < undeclared[j].SecurityID
	})
	for _, key := range undeclared {
		out, inflow := flows(key)
		res.Positions = append(res.Positions, PositionSummary{
			AccountID:  key.AccountID,
			SecurityID: key.SecurityID,
			Outflow:    out,
			Inflow:     inflow,
			Pledged:    pledged[key],
			Available:  -pledged[key],
		})
	}
	return res
}

// Summary averages the outcomes of a batch run.
type Summary struct {
	Batches       int     `json:"batches"`
	Solved        int     `json:"solved"`
	Infeasible    int     `json:"infeasible"`
	Aborted       int     `json:"aborted"`
	Failed        int     `json:"failed"`
	AvgSettleRate float64 `json:"avgSettleRate"`
	AvgTotalLoan  float64 `json:"avgTotalLoan"`
	TotalCashflow float64 `json:"totalCashflow"`
}

// Summarize averages settle rate and total loan over the solved batches.
func Summarize(outcomes []BatchOutcome) Summary {
	s := Summary{Batches: len(outcomes)}
	var rates, loans []float64
	for _, o := range outcomes {
		switch {
		case o.Result != nil:
			s.Solved++
			rates = append(rates, o.Result.Metrics.SettleRate)
			loans = append(loans, o.Result.Metrics.TotalLoan)
			s.TotalCashflow += o.Result.Metrics.TotalCashflow
		case errors.Is(o.Err, ErrInfeasible):
			s.Infeasible++
		case errors.Is(o.Err, ErrAborted):
			s.Aborted++
		default:
			s.Failed++
		}
	}
	s.AvgSettleRate, _ = mathutil.Mean(rates)
	s.AvgTotalLoan, _ = mathutil.Mean(loans)
	return s
}
