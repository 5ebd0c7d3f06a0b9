package testutil

import (
	"testing"

	"github.com/iwvelando/settlement-optimizer/internal/model"
)

func TestScenariosValidate(t *testing.T) {
	tests := []struct {
		name string
		in   *model.Input
	}{
		{name: "shortfall", in: ShortfallScenario()},
		{name: "collateral", in: CollateralScenario()},
		{name: "ordering", in: OrderingScenario()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.in.Validate(); err != nil {
				t.Fatalf("scenario does not validate: %v", err)
			}
		})
	}
}

func TestBuilderAssignsSequentialIDs(t *testing.T) {
	in := NewBuilder().Account(1, 10, 0).Account(2, 0, 0).
		Transfer(1, 2, 5).
		Transfer(2, 1, 3).
		Build()

	if len(in.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(in.Transactions))
	}
	for i, tx := range in.Transactions {
		if tx.ID != i {
			t.Errorf("transaction %d has id %d", i, tx.ID)
		}
		if tx.Weight != 1 || tx.SecurityFlow != model.FlowOutflow {
			t.Errorf("transaction %d has unexpected defaults: %+v", i, tx)
		}
	}
}

func TestBuildReturnsIndependentCopies(t *testing.T) {
	b := NewBuilder().Account(1, 10, 0).Account(2, 0, 0).Transfer(1, 2, 5)
	first := b.Build()
	first.Transactions[0].CashAmount = 99

	second := b.Build()
	if second.Transactions[0].CashAmount != 5 {
		t.Errorf("builder state was mutated through a built bundle")
	}
}

func TestFindTransaction(t *testing.T) {
	in := OrderingScenario()

	tests := []struct {
		name        string
		id          int
		expectFound bool
	}{
		{name: "first", id: 0, expectFound: true},
		{name: "second", id: 1, expectFound: true},
		{name: "missing", id: 5, expectFound: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindTransaction(in, tt.id)
			if (got != nil) != tt.expectFound {
				t.Fatalf("FindTransaction(%d) found=%v, want %v", tt.id, got != nil, tt.expectFound)
			}
			if got != nil && got.ID != tt.id {
				t.Errorf("FindTransaction(%d) returned id %d", tt.id, got.ID)
			}
		})
	}
}
