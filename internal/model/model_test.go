package model

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInput() *Input {
	return &Input{
		Accounts: []Account{
			{ID: 1, OwnerID: 1, InitialCash: 500, CreditLimit: 1000},
			{ID: 2, OwnerID: 2, InitialCash: 800, CreditLimit: 0},
		},
		SecurityPositions: []SecurityPosition{
			{ID: 101, AccountID: 2, InitialQuantity: 50},
		},
		Transactions: []Transaction{
			{ID: 0, CashAmount: 1000, Weight: 1, DebitAccount: 1, CreditAccount: 2, SecurityID: 101, Quantity: 10, SecurityFlow: FlowOutflow},
			{ID: 1, CashAmount: 200, Weight: 2, DebitAccount: 2, CreditAccount: 1, SecurityID: 101, Quantity: 5, SecurityFlow: FlowOutflow},
		},
		CollateralLinks: []CollateralLink{
			{ID: 1, AssociatedAccount: 1, LotSize: 1, Valuation: 1000, QMin: 0, QLim: 1, SecurityID: 101, TriggeredTransactions: []int{0}},
		},
		AfterLinks: []AfterLink{{T1: 0, T2: 1}},
	}
}

func TestValidateAcceptsWellFormedInput(t *testing.T) {
	require.NoError(t, validInput().Validate())
}

func TestValidateRejectsInvariantViolations(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(in *Input)
		problem string
	}{
		{
			name:    "self transfer",
			mutate:  func(in *Input) { in.Transactions[0].CreditAccount = 1 },
			problem: "debits and credits the same account",
		},
		{
			name:    "q_min above q_lim",
			mutate:  func(in *Input) { in.CollateralLinks[0].QMin = 5 },
			problem: "q_min 5 above q_lim 1",
		},
		{
			name: "zero total weight",
			mutate: func(in *Input) {
				in.Transactions[0].Weight = 0
				in.Transactions[1].Weight = 0
			},
			problem: "total transaction weight is zero",
		},
		{
			name:    "self after-link",
			mutate:  func(in *Input) { in.AfterLinks[0].T2 = 0 },
			problem: "references itself",
		},
		{
			name:    "unknown trigger",
			mutate:  func(in *Input) { in.CollateralLinks[0].TriggeredTransactions = []int{42} },
			problem: "unknown transaction 42",
		},
		{
			name:    "unknown account",
			mutate:  func(in *Input) { in.Transactions[1].DebitAccount = 9 },
			problem: "unknown debit account 9",
		},
		{
			name:    "duplicate position",
			mutate:  func(in *Input) { in.SecurityPositions = append(in.SecurityPositions, in.SecurityPositions[0]) },
			problem: "duplicate security position",
		},
		{
			name:    "bad security flow",
			mutate:  func(in *Input) { in.Transactions[0].SecurityFlow = 2 },
			problem: "SecurityFlow",
		},
		{
			name:    "negative cash",
			mutate:  func(in *Input) { in.Accounts[0].InitialCash = -1 },
			problem: "InitialCash",
		},
		{
			name:    "no transactions",
			mutate:  func(in *Input) { in.Transactions = nil; in.CollateralLinks = nil; in.AfterLinks = nil },
			problem: "no transactions",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(in)
			err := in.Validate()
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected *ValidationError, got %T", err)
			assert.Contains(t, err.Error(), tc.problem)
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	in := validInput()
	in.Transactions[0].CreditAccount = 1
	in.CollateralLinks[0].QMin = 5

	err := in.Validate()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Problems, 2)
	assert.True(t, strings.Contains(err.Error(), "2 problems"))
}

func TestDeliveryDirection(t *testing.T) {
	tx := Transaction{DebitAccount: 1, CreditAccount: 2, SecurityID: 7, SecurityFlow: FlowOutflow}
	from, to := tx.Delivery()
	assert.Equal(t, PositionKey{AccountID: 2, SecurityID: 7}, from)
	assert.Equal(t, PositionKey{AccountID: 1, SecurityID: 7}, to)

	tx.SecurityFlow = FlowInflow
	from, to = tx.Delivery()
	assert.Equal(t, PositionKey{AccountID: 1, SecurityID: 7}, from)
	assert.Equal(t, PositionKey{AccountID: 2, SecurityID: 7}, to)
}

func TestMissingSecurityFlowDefaultsToOutflow(t *testing.T) {
	in := validInput()
	for i := range in.Transactions {
		in.Transactions[i].SecurityFlow = 0
	}
	require.NoError(t, in.Validate())

	tx := in.Transactions[0]
	assert.Equal(t, FlowOutflow, tx.EffectiveFlow())
	from, to := tx.Delivery()
	assert.Equal(t, PositionKey{AccountID: 2, SecurityID: 101}, from)
	assert.Equal(t, PositionKey{AccountID: 1, SecurityID: 101}, to)
	assert.Equal(t, FlowInflow, Transaction{SecurityFlow: FlowInflow}.EffectiveFlow())
}

func TestAttachTriggersBySecurity(t *testing.T) {
	in := validInput()
	in.CollateralLinks[0].TriggeredTransactions = nil
	in.CollateralLinks = append(in.CollateralLinks, CollateralLink{ID: 2, AssociatedAccount: 2, LotSize: 1, SecurityID: 999})

	in.AttachTriggersBySecurity()

	assert.Equal(t, []int{0, 1}, in.CollateralLinks[0].TriggeredTransactions)
	assert.Empty(t, in.CollateralLinks[1].TriggeredTransactions)
}

func TestIndexGroupsTransactions(t *testing.T) {
	in := validInput()
	idx := NewIndex(in)

	assert.Equal(t, []int{0}, idx.Debits[1])
	assert.Equal(t, []int{1}, idx.Credits[1])
	assert.Equal(t, []int{0}, idx.Outflows[PositionKey{AccountID: 2, SecurityID: 101}])
	assert.Equal(t, []int{1}, idx.Inflows[PositionKey{AccountID: 2, SecurityID: 101}])
	assert.Equal(t, []int{0}, idx.LinksByPosition[PositionKey{AccountID: 1, SecurityID: 101}])
	assert.Equal(t, 1000.0, idx.DebitCeiling(in, 1))
	assert.Equal(t, 0.0, NewIndex(&Input{}).DebitCeiling(&Input{}, 3))
}

func TestEffectiveKinds(t *testing.T) {
	assert.Equal(t, AccountStandard, Account{}.EffectiveKind())
	assert.Equal(t, AccountPAB, Account{Kind: AccountPAB}.EffectiveKind())
	assert.Equal(t, TxStandard, Transaction{}.EffectiveKind())
}

func TestWarnings(t *testing.T) {
	in := validInput()
	assert.Empty(t, in.Warnings())

	in.Accounts = append(in.Accounts, Account{ID: 3, OwnerID: 3})
	in.CollateralLinks = append(in.CollateralLinks,
		CollateralLink{ID: 2, AssociatedAccount: 1, LotSize: 10, QMin: 5, QLim: 4, SecurityID: 101, TriggeredTransactions: []int{1}},
		CollateralLink{ID: 3, AssociatedAccount: 2, LotSize: 1, QLim: 1, SecurityID: 101},
	)
	warnings := in.Warnings()
	require.Len(t, warnings, 3)
	assert.Contains(t, warnings[0], "link 2")
	assert.Contains(t, warnings[0], "can never settle")
	assert.Contains(t, warnings[1], "link 3")
	assert.Contains(t, warnings[2], "account 3")

	assert.Nil(t, (*Input)(nil).Warnings())
}
