package model

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	structs      *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		structs = validator.New(validator.WithRequiredStructEnabled())
	})
	return structs
}

// ValidationError aggregates every invariant violation found in a bundle.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return "invalid input"
	}
	if len(e.Problems) == 1 {
		return "invalid input: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid input: %d problems: %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

func (e *ValidationError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// Validate rejects bundles that would compile into a meaningless model.
// All problems are reported together in a *ValidationError.
func (in *Input) Validate() error {
	if in == nil {
		return &ValidationError{Problems: []string{"input bundle is nil"}}
	}
	verr := &ValidationError{}

	if err := structValidator().Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("validating input: %w", err)
		}
		for _, fe := range fieldErrs {
			verr.add("%s failed %q (value %v)", fe.Namespace(), fe.ActualTag(), fe.Value())
		}
	}

	accounts := make(map[int]bool, len(in.Accounts))
	for _, a := range in.Accounts {
		if accounts[a.ID] {
			verr.add("duplicate account id %d", a.ID)
		}
		accounts[a.ID] = true
	}

	positions := make(map[PositionKey]bool, len(in.SecurityPositions))
	for _, p := range in.SecurityPositions {
		if !accounts[p.AccountID] {
			verr.add("security position %d references unknown account %d", p.ID, p.AccountID)
		}
		if positions[p.Key()] {
			verr.add("duplicate security position for account %d security %d", p.AccountID, p.ID)
		}
		positions[p.Key()] = true
	}

	if len(in.Transactions) == 0 {
		verr.add("no transactions")
	}
	transactions := make(map[int]bool, len(in.Transactions))
	for _, t := range in.Transactions {
		if transactions[t.ID] {
			verr.add("duplicate transaction id %d", t.ID)
		}
		transactions[t.ID] = true
		if t.DebitAccount == t.CreditAccount {
			verr.add("transaction %d debits and credits the same account %d", t.ID, t.DebitAccount)
		}
		if !accounts[t.DebitAccount] {
			verr.add("transaction %d references unknown debit account %d", t.ID, t.DebitAccount)
		}
		if !accounts[t.CreditAccount] {
			verr.add("transaction %d references unknown credit account %d", t.ID, t.CreditAccount)
		}
	}

	links := make(map[int]bool, len(in.CollateralLinks))
	for _, l := range in.CollateralLinks {
		if links[l.ID] {
			verr.add("duplicate collateral link id %d", l.ID)
		}
		links[l.ID] = true
		if l.QMin > l.QLim {
			verr.add("collateral link %d has q_min %d above q_lim %d", l.ID, l.QMin, l.QLim)
		}
		if !accounts[l.AssociatedAccount] {
			verr.add("collateral link %d references unknown account %d", l.ID, l.AssociatedAccount)
		}
		for _, id := range l.TriggeredTransactions {
			if !transactions[id] {
				verr.add("collateral link %d triggered by unknown transaction %d", l.ID, id)
			}
		}
	}

	for _, al := range in.AfterLinks {
		if al.T1 == al.T2 {
			verr.add("after-link on transaction %d references itself", al.T1)
			continue
		}
		if !transactions[al.T1] || !transactions[al.T2] {
			verr.add("after-link (%d,%d) references an unknown transaction", al.T1, al.T2)
		}
	}

	if len(in.Transactions) > 0 {
		if in.TotalWeight() <= 0 {
			verr.add("total transaction weight is zero")
		}
		if in.TotalWeightedCash() <= 0 {
			verr.add("total weighted cash amount is zero")
		}
	}

	if len(verr.Problems) > 0 {
		return verr
	}
	return nil
}

// Warnings reports legal constructs that make parts of a valid bundle
// inert, such as links that can never activate.
func (in *Input) Warnings() []string {
	if in == nil {
		return nil
	}
	var warnings []string
	for _, l := range in.CollateralLinks {
		switch {
		case len(l.TriggeredTransactions) == 0:
			warnings = append(warnings, fmt.Sprintf("collateral link %d has no triggering transactions and can never activate", l.ID))
		case l.QLim < l.LotSize && l.QMin > 0:
			warnings = append(warnings, fmt.Sprintf("collateral link %d cannot pledge a lot of %d within q_lim %d; its triggers can never settle", l.ID, l.LotSize, l.QLim))
		case l.QLim < l.LotSize:
			warnings = append(warnings, fmt.Sprintf("collateral link %d cannot pledge a lot of %d within q_lim %d", l.ID, l.LotSize, l.QLim))
		}
	}
	used := make(map[int]bool, len(in.Accounts))
	for _, t := range in.Transactions {
		used[t.DebitAccount] = true
		used[t.CreditAccount] = true
	}
	for _, a := range in.Accounts {
		if !used[a.ID] {
			warnings = append(warnings, fmt.Sprintf("account %d takes part in no transaction", a.ID))
		}
	}
	return warnings
}
