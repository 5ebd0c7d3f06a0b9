// Package testutil provides bundle builders and scenario fixtures shared by
// tests.
package testutil

import (
	"github.com/iwvelando/settlement-optimizer/internal/model"
)

// Builder assembles a model.Input. Transactions default to weight 1, one
// unit of security 1 and an outflow security leg.
type Builder struct {
	in model.Input
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Account adds a standard account owned by itself.
func (b *Builder) Account(id int, cash, credit float64) *Builder {
	b.in.Accounts = append(b.in.Accounts, model.Account{ID: id, OwnerID: id, InitialCash: cash, CreditLimit: credit})
	return b
}

// AccountOf adds a fully specified account.
func (b *Builder) AccountOf(a model.Account) *Builder {
	b.in.Accounts = append(b.in.Accounts, a)
	return b
}

// Position adds a security position.
func (b *Builder) Position(accountID, securityID, quantity int) *Builder {
	b.in.SecurityPositions = append(b.in.SecurityPositions, model.SecurityPosition{
		ID:              securityID,
		AccountID:       accountID,
		InitialQuantity: quantity,
	})
	return b
}

// Transfer adds a transaction with the next free id paying cash from debit
// to credit.
func (b *Builder) Transfer(debit, credit int, cash float64) *Builder {
	return b.TransactionOf(model.Transaction{
		ID:            len(b.in.Transactions),
		CashAmount:    cash,
		Weight:        1,
		DebitAccount:  debit,
		CreditAccount: credit,
		SecurityID:    1,
		Quantity:      1,
		SecurityFlow:  model.FlowOutflow,
	})
}

// TransactionOf adds a fully specified transaction.
func (b *Builder) TransactionOf(t model.Transaction) *Builder {
	b.in.Transactions = append(b.in.Transactions, t)
	return b
}

// Link adds a collateral link.
func (b *Builder) Link(l model.CollateralLink) *Builder {
	b.in.CollateralLinks = append(b.in.CollateralLinks, l)
	return b
}

// After adds the ordering dependency t2 after t1.
func (b *Builder) After(t1, t2 int) *Builder {
	b.in.AfterLinks = append(b.in.AfterLinks, model.AfterLink{T1: t1, T2: t2})
	return b
}

// Build returns a copy of the assembled bundle.
func (b *Builder) Build() *model.Input {
	out := &model.Input{
		Transactions:      append([]model.Transaction(nil), b.in.Transactions...),
		Accounts:          append([]model.Account(nil), b.in.Accounts...),
		CollateralLinks:   append([]model.CollateralLink(nil), b.in.CollateralLinks...),
		AfterLinks:        append([]model.AfterLink(nil), b.in.AfterLinks...),
		SecurityPositions: append([]model.SecurityPosition(nil), b.in.SecurityPositions...),
	}
	return out
}

// ShortfallScenario is one transfer of 1000 from an account holding 500
// with no credit: it cannot settle.
func ShortfallScenario() *model.Input {
	return NewBuilder().
		Account(1, 500, 0).
		Account(2, 0, 0).
		Transfer(1, 2, 1000).
		Build()
}

// CollateralScenario is ShortfallScenario with a credit limit of 1000 and a
// link worth 1000 per lot triggered by the transfer: it settles.
func CollateralScenario() *model.Input {
	return NewBuilder().
		Account(1, 500, 1000).
		Account(2, 0, 0).
		Transfer(1, 2, 1000).
		Link(model.CollateralLink{
			ID:                    1,
			AssociatedAccount:     1,
			LotSize:               1,
			Valuation:             1000,
			QMin:                  0,
			QLim:                  1,
			SecurityID:            7,
			TriggeredTransactions: []int{0},
		}).
		Build()
}

// OrderingScenario has t1 from a cashless account and t2 from a funded one
// with t2 ordered after t1: neither settles.
func OrderingScenario() *model.Input {
	return NewBuilder().
		Account(1, 0, 0).
		Account(2, 0, 0).
		Account(3, 1000, 0).
		Account(4, 0, 0).
		Transfer(1, 2, 100).
		Transfer(3, 4, 100).
		After(0, 1).
		Build()
}

// FindTransaction returns the transaction with the given id, or nil.
func FindTransaction(in *model.Input, id int) *model.Transaction {
	for i := range in.Transactions {
		if in.Transactions[i].ID == id {
			return &in.Transactions[i]
		}
	}
	return nil
}
