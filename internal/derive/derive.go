// Package derive converts a batch of matched trades into settlement
// transactions and ordering dependencies.
package derive

import (
	"math"
	"math/rand"

	"github.com/iwvelando/settlement-optimizer/internal/ledger"
	"github.com/iwvelando/settlement-optimizer/internal/model"
	"github.com/iwvelando/settlement-optimizer/pkg/constants"
)

// Transactions builds one transaction per trade, with the trade's position
// in the batch as id, plus the positional after-links of busy parties.
func Transactions(rng *rand.Rand, batch []ledger.Trade) ([]model.Transaction, []model.AfterLink) {
	rows := make(map[string][]int)
	for i, t := range batch {
		rows[t.From] = append(rows[t.From], i)
		if t.To != t.From {
			rows[t.To] = append(rows[t.To], i)
		}
	}

	txs := make([]model.Transaction, 0, len(batch))
	for i, t := range batch {
		cash := t.Notional().InexactFloat64()
		txs = append(txs, model.Transaction{
			ID:            i,
			CashAmount:    cash,
			Weight:        Weight(cash, Degree(rows, t)),
			DebitAccount:  ledger.PartyID(t.To),
			CreditAccount: ledger.PartyID(t.From),
			SecurityID:    ledger.SecurityID(t.Security),
			Quantity:      t.Quantity,
			SecurityFlow:  model.FlowOutflow,
			Kind:          model.TxStandard,
		})
	}

	return txs, afterLinks(rng, batch, rows)
}

// Weight is the priority 0.5·|ln(cash^0.25 · degree)|, floored at
// constants.MinTransactionWeight so a trade with cash^0.25·degree = 1 stays
// a valid transaction.
func Weight(cash float64, degree int) float64 {
	w := 0.5 * math.Abs(math.Log(math.Pow(cash, 0.25)*float64(degree)))
	return math.Max(w, constants.MinTransactionWeight)
}

// Degree counts the batch rows involving either counterparty of t.
func Degree(rows map[string][]int, t ledger.Trade) int {
	if t.From == t.To {
		return len(rows[t.From])
	}
	seen := make(map[int]bool, len(rows[t.From])+len(rows[t.To]))
	for _, i := range rows[t.From] {
		seen[i] = true
	}
	for _, i := range rows[t.To] {
		seen[i] = true
	}
	return len(seen)
}

// afterLinks chains rows (0,1), (2,3), (4,5) of every party with more rows
// than both the share and the absolute threshold, with a fixed chance per
// party.
func afterLinks(rng *rand.Rand, batch []ledger.Trade, rows map[string][]int) []model.AfterLink {
	var out []model.AfterLink
	threshold := constants.BatchAfterLinkRowShare * float64(len(batch))
	for _, party := range ledger.Parties(batch) {
		own := rows[party]
		if float64(len(own)) <= threshold || len(own) <= constants.BatchAfterLinkMinRows {
			continue
		}
		if rng.Float64() >= constants.BatchAfterLinkChance {
			continue
		}
		for k := 0; k <= 4; k += 2 {
			out = append(out, model.AfterLink{T1: own[k], T2: own[k+1]})
		}
	}
	return out
}
