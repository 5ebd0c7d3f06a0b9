// Package synth produces settlement bundles: fully randomized ones for
// experiments and tests, and ones whose initial conditions are estimated
// from a batch of matched trades.
package synth

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/iwvelando/settlement-optimizer/internal/model"
	"github.com/iwvelando/settlement-optimizer/pkg/constants"
	"github.com/iwvelando/settlement-optimizer/pkg/mathutil"
)

// RandomParams are the target entity counts of a randomized bundle.
type RandomParams struct {
	Transactions    int `json:"transactions" yaml:"transactions" mapstructure:"transactions"`
	CollateralLinks int `json:"collateralLinks" yaml:"collateralLinks" mapstructure:"collateral_links"`
	Accounts        int `json:"accounts" yaml:"accounts" mapstructure:"accounts"`
	Securities      int `json:"securities" yaml:"securities" mapstructure:"securities"`
}

// DefaultRandomParams returns the counts used when none are configured.
func DefaultRandomParams() RandomParams {
	return RandomParams{
		Transactions:    constants.DefaultRandomTransactions,
		CollateralLinks: constants.DefaultRandomCollateralLinks,
		Accounts:        constants.DefaultRandomAccounts,
		Securities:      constants.DefaultRandomSecurities,
	}
}

// Validate checks the counts.
func (p RandomParams) Validate() error {
	var errs []error
	if p.Transactions < 1 {
		errs = append(errs, fmt.Errorf("transactions must be positive, got %d", p.Transactions))
	}
	if p.Accounts < 1 {
		errs = append(errs, fmt.Errorf("accounts must be positive, got %d", p.Accounts))
	}
	if p.Securities < 1 {
		errs = append(errs, fmt.Errorf("securities must be positive, got %d", p.Securities))
	}
	if p.CollateralLinks < 0 {
		errs = append(errs, fmt.Errorf("collateral links must not be negative, got %d", p.CollateralLinks))
	}
	return errors.Join(errs...)
}

// Random generates a bundle with the given counts. Account ids are
// 0..Accounts-1, security ids start at 101, and every link is triggered by
// the transactions trading its security.
func Random(rng *rand.Rand, p RandomParams) (*model.Input, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid random parameters: %w", err)
	}

	securities := make([]int, p.Securities)
	for i := range securities {
		securities[i] = constants.FirstSecurityID + i
	}

	in := &model.Input{}
	for i := 0; i < p.Accounts; i++ {
		cash := mathutil.IntBetween(rng, constants.RandomCashMin, constants.RandomCashMax)
		credit := cash + mathutil.IntBetween(rng, constants.RandomCreditExtraMin, constants.RandomCreditExtraMax)
		in.Accounts = append(in.Accounts, model.Account{
			ID:          i,
			OwnerID:     i,
			InitialCash: float64(cash),
			CreditLimit: float64(credit),
			Kind:        model.AccountStandard,
		})
	}

	// Holders are drawn without replacement so position keys stay unique.
	maxHolders := max(2, p.Accounts/2)
	for _, sec := range securities {
		holders := min(mathutil.IntBetween(rng, 2, maxHolders), p.Accounts)
		for _, acc := range rng.Perm(p.Accounts)[:holders] {
			in.SecurityPositions = append(in.SecurityPositions, model.SecurityPosition{
				ID:              sec,
				AccountID:       acc,
				InitialQuantity: mathutil.IntBetween(rng, constants.RandomPositionMin, constants.RandomPositionMax),
			})
		}
	}

	for i := 0; i < p.Transactions; i++ {
		debit := rng.Intn(p.Accounts)
		credit := debit
		if p.Accounts > 1 {
			credit = rng.Intn(p.Accounts - 1)
			if credit >= debit {
				credit++
			}
		}
		weight := constants.RandomTxWeightMin + (constants.RandomTxWeightMax-constants.RandomTxWeightMin)*rng.Float64()
		in.Transactions = append(in.Transactions, model.Transaction{
			ID:            i,
			CashAmount:    float64(mathutil.IntBetween(rng, constants.RandomTxCashMin, constants.RandomTxCashMax)),
			Weight:        mathutil.RoundCents(weight),
			DebitAccount:  debit,
			CreditAccount: credit,
			SecurityID:    securities[rng.Intn(len(securities))],
			Quantity:      mathutil.IntBetween(rng, constants.RandomTxQuantityMin, constants.RandomTxQuantityMax),
			SecurityFlow:  model.FlowOutflow,
			Kind:          model.TxStandard,
		})
	}
	txSecurity := func(i int) *int { return &in.Transactions[i].SecurityID }
	backfill(rng, securities, len(in.Transactions), txSecurity)

	for i := 0; i < p.CollateralLinks; i++ {
		qmin := mathutil.IntBetween(rng, constants.RandomQMinMin, constants.RandomQMinMax)
		in.CollateralLinks = append(in.CollateralLinks, model.CollateralLink{
			ID:                i,
			AssociatedAccount: rng.Intn(p.Accounts),
			LotSize:           mathutil.IntBetween(rng, constants.RandomLotMin, constants.RandomLotMax),
			Valuation:         float64(mathutil.IntBetween(rng, constants.RandomValuationMin, constants.RandomValuationMax)),
			QMin:              qmin,
			QLim:              qmin + mathutil.IntBetween(rng, constants.RandomQLimExtraMin, constants.RandomQLimExtraMax),
			SecurityID:        securities[rng.Intn(len(securities))],
		})
	}
	linkSecurity := func(i int) *int { return &in.CollateralLinks[i].SecurityID }
	backfill(rng, securities, len(in.CollateralLinks), linkSecurity)

	for _, t := range in.Transactions {
		if t.ID > 0 && rng.Float64() < constants.RandomAfterLinkProbability {
			in.AfterLinks = append(in.AfterLinks, model.AfterLink{T1: rng.Intn(t.ID), T2: t.ID})
		}
	}

	in.AttachTriggersBySecurity()
	return in, nil
}

// backfill forces every unused security onto a random entity whose own
// security is referenced more than once, so no reference is lost. When n is
// smaller than the number of securities some stay unused.
func backfill(rng *rand.Rand, securities []int, n int, security func(i int) *int) {
	if n == 0 {
		return
	}
	uses := make(map[int]int, len(securities))
	for i := 0; i < n; i++ {
		uses[*security(i)]++
	}
	for _, sec := range securities {
		if uses[sec] > 0 {
			continue
		}
		var donors []int
		for i := 0; i < n; i++ {
			if uses[*security(i)] > 1 {
				donors = append(donors, i)
			}
		}
		if len(donors) == 0 {
			return
		}
		i := donors[rng.Intn(len(donors))]
		uses[*security(i)]--
		*security(i) = sec
		uses[sec]++
	}
}
