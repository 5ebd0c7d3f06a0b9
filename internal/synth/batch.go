package synth

import (
	"errors"
	"math"
	"math/rand"

	"github.com/iwvelando/settlement-optimizer/internal/derive"
	"github.com/iwvelando/settlement-optimizer/internal/ledger"
	"github.com/iwvelando/settlement-optimizer/internal/model"
	"github.com/iwvelando/settlement-optimizer/pkg/constants"
	"github.com/iwvelando/settlement-optimizer/pkg/mathutil"
)

// ErrEmptyBatch is returned for a batch without trades.
var ErrEmptyBatch = errors.New("batch has no trades")

// partyStats are the per-party aggregates the estimates are drawn from.
type partyStats struct {
	buyNotional []float64
	sellQty     []float64
	// per security
	secSellQty   map[string][]float64
	secSellPrice map[string][]float64
}

func collectStats(batch []ledger.Trade) map[string]*partyStats {
	stats := make(map[string]*partyStats)
	get := func(p string) *partyStats {
		s, ok := stats[p]
		if !ok {
			s = &partyStats{secSellQty: map[string][]float64{}, secSellPrice: map[string][]float64{}}
			stats[p] = s
		}
		return s
	}
	for _, t := range batch {
		buyer := get(t.To)
		buyer.buyNotional = append(buyer.buyNotional, t.Notional().InexactFloat64())

		seller := get(t.From)
		qty := float64(t.Quantity)
		seller.sellQty = append(seller.sellQty, qty)
		seller.secSellQty[t.Security] = append(seller.secSellQty[t.Security], qty)
		seller.secSellPrice[t.Security] = append(seller.secSellPrice[t.Security], t.Price.InexactFloat64())
	}
	return stats
}

// InitialConditions estimates accounts, positions and collateral links from
// the trading activity of a batch. Every party gets one account and one
// position per security of the batch; links are numbered from 1.
func InitialConditions(rng *rand.Rand, batch []ledger.Trade) ([]model.Account, []model.SecurityPosition, []model.CollateralLink) {
	stats := collectStats(batch)
	securities := ledger.Securities(batch)

	var (
		accounts  []model.Account
		positions []model.SecurityPosition
		links     []model.CollateralLink
	)
	for _, party := range ledger.Parties(batch) {
		s := stats[party]
		id := ledger.PartyID(party)

		cash := float64(constants.BatchCashFloor)
		if avg, ok := mathutil.Mean(s.buyNotional); ok {
			cash = math.Max(constants.BatchCashFloor, 2.5*avg+mathutil.Normal(rng, 1.5*avg, 1.5*avg))
		}
		credit := math.Max(constants.BatchCashFloor, 2*cash+mathutil.Normal(rng, cash, 1.5*cash))
		accounts = append(accounts, model.Account{
			ID:          id,
			OwnerID:     id,
			InitialCash: math.Floor(cash),
			CreditLimit: math.Floor(credit),
			Kind:        model.AccountStandard,
		})

		overallSell, _ := mathutil.Mean(s.sellQty)
		for _, sec := range securities {
			sells := s.secSellQty[sec]
			var quantity float64
			avgSell, sold := mathutil.Mean(sells)
			if sold {
				quantity = math.Max(constants.BatchPositionFloor, 2.5*avgSell+mathutil.Normal(rng, 1.5*avgSell, 1.5*avgSell))
			} else if rng.Float64() < constants.BatchDefaultPositionChance {
				quantity = constants.BatchDefaultPosition
			}
			positions = append(positions, model.SecurityPosition{
				ID:              ledger.SecurityID(sec),
				AccountID:       id,
				InitialQuantity: int(math.Floor(quantity)),
			})

			if !sold || avgSell < constants.BatchLinkSellShare*overallSell {
				continue
			}
			if rng.Float64() >= constants.BatchLinkChance {
				continue
			}
			avgPrice, _ := mathutil.Mean(s.secSellPrice[sec])
			links = append(links, model.CollateralLink{
				ID:                len(links) + 1,
				AssociatedAccount: id,
				LotSize:           constants.BatchLotSize,
				Valuation:         constants.BatchValuationFactor * avgPrice,
				QMin:              constants.BatchQMin,
				QLim:              int(math.Floor((0.5 + rng.Float64()) * quantity * 2)),
				SecurityID:        ledger.SecurityID(sec),
			})
		}
	}
	return accounts, positions, links
}

// FromBatch assembles the complete bundle of a batch: estimated initial
// conditions, derived transactions and after-links, and link triggers.
func FromBatch(rng *rand.Rand, batch []ledger.Trade) (*model.Input, error) {
	if len(batch) == 0 {
		return nil, ErrEmptyBatch
	}
	accounts, positions, links := InitialConditions(rng, batch)
	txs, after := derive.Transactions(rng, batch)
	in := &model.Input{
		Transactions:      txs,
		Accounts:          accounts,
		CollateralLinks:   links,
		AfterLinks:        after,
		SecurityPositions: positions,
	}
	in.AttachTriggersBySecurity()
	return in, nil
}
