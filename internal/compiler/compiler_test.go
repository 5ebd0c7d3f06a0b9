package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/iwvelando/settlement-optimizer/internal/model"
	"github.com/iwvelando/settlement-optimizer/internal/solver"
	"github.com/iwvelando/settlement-optimizer/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tradingBundle has a seller holding security 101, a buyer paying for it,
// a pledge facility on the buyer side and one ordering dependency.
func tradingBundle() *model.Input {
	return testutil.NewBuilder().
		Account(1, 500, 1000).
		Account(2, 800, 0).
		Position(2, 101, 50).
		Position(1, 101, 20).
		TransactionOf(model.Transaction{ID: 0, CashAmount: 1000, Weight: 1, DebitAccount: 1, CreditAccount: 2,
			SecurityID: 101, Quantity: 10, SecurityFlow: model.FlowOutflow}).
		TransactionOf(model.Transaction{ID: 1, CashAmount: 200, Weight: 3, DebitAccount: 2, CreditAccount: 1,
			SecurityID: 101, Quantity: 5, SecurityFlow: model.FlowOutflow}).
		Link(model.CollateralLink{ID: 7, AssociatedAccount: 1, LotSize: 2, Valuation: 100, QMin: 2, QLim: 10,
			SecurityID: 101, TriggeredTransactions: []int{0, 1}}).
		After(0, 1).
		Build()
}

func findConstraint(t *testing.T, m *Model, name string) solver.Constraint {
	t.Helper()
	for _, c := range m.Problem.Constraints() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("constraint %q not found", name)
	return solver.Constraint{}
}

func violated(p *solver.Problem, values []float64) []string {
	sol := &solver.Solution{Values: values}
	var out []string
	for _, c := range p.Constraints() {
		lhs := sol.Eval(c.Expr)
		ok := true
		switch c.Sense {
		case solver.LessEq:
			ok = lhs <= c.RHS+1e-9
		case solver.GreaterEq:
			ok = lhs >= c.RHS-1e-9
		case solver.Equal:
			ok = lhs-c.RHS < 1e-9 && c.RHS-lhs < 1e-9
		}
		if !ok {
			out = append(out, c.Name)
		}
	}
	return out
}

func countPrefix(p *solver.Problem, prefix string) int {
	return len(p.ConstraintsNamed(prefix))
}

func TestCompileDeclaresVariables(t *testing.T) {
	m, err := Compile(tradingBundle(), DefaultOptions())
	require.NoError(t, err)

	assert.Len(t, m.Settle, 2)
	assert.Len(t, m.Lots, 1)
	assert.Len(t, m.Active, 1)
	assert.Len(t, m.Need, 2)
	assert.Empty(t, m.PABNeed)
	assert.Empty(t, m.Segregated)

	lots := m.Problem.Variable(m.Lots[7])
	assert.Equal(t, solver.Integer, lots.Kind)
	assert.Equal(t, 0.0, lots.Lower)
	assert.Equal(t, 10.0, lots.Upper)

	assert.Equal(t, solver.Binary, m.Problem.Variable(m.Settle[0]).Kind)
	assert.Equal(t, solver.Binary, m.Problem.Variable(m.Active[7]).Kind)

	need1 := m.Problem.Variable(m.Need[1])
	assert.Equal(t, solver.Continuous, need1.Kind)
	assert.Equal(t, 1000.0, need1.Upper)
	assert.Equal(t, 200.0, m.Problem.Variable(m.Need[2]).Upper)
}

func TestCompileConstraintFamilies(t *testing.T) {
	m, err := Compile(tradingBundle(), DefaultOptions())
	require.NoError(t, err)
	p := m.Problem

	testCases := []struct {
		prefix string
		want   int
	}{
		{PrefixBalance, 2},
		{PrefixCredit, 2},
		{PrefixNeed, 2},
		{PrefixPosition, 2},
		{PrefixTrigger, 2},
		{PrefixActivation, 1},
		{PrefixLotsMin, 1},
		{PrefixLotsMax, 1},
		{PrefixAfter, 1},
		{PrefixConcentration, 0},
		{PrefixMuniTotal, 0},
		{PrefixSBSActivity, 0},
	}
	for _, tc := range testCases {
		t.Run(strings.TrimSuffix(tc.prefix, "_"), func(t *testing.T) {
			assert.Equal(t, tc.want, countPrefix(p, tc.prefix))
		})
	}
}

func TestCompileBalanceRow(t *testing.T) {
	m, err := Compile(tradingBundle(), DefaultOptions())
	require.NoError(t, err)

	c := findConstraint(t, m, "balance_1")
	assert.Equal(t, solver.LessEq, c.Sense)
	assert.Equal(t, 500.0, c.RHS)
	coefs := c.Expr.Coefficients()
	assert.Equal(t, 1000.0, coefs[m.Settle[0]])
	assert.Equal(t, -200.0, coefs[m.Settle[1]])
	assert.Equal(t, -200.0, coefs[m.Lots[7]])

	credit := findConstraint(t, m, "credit_1")
	assert.Equal(t, 1000.0, credit.RHS)
	assert.Equal(t, 200.0, credit.Expr.Coefficients()[m.Lots[7]])

	need := findConstraint(t, m, "need_1")
	assert.Equal(t, solver.GreaterEq, need.Sense)
	assert.Equal(t, -500.0, need.RHS)
	needCoefs := need.Expr.Coefficients()
	assert.Equal(t, 1.0, needCoefs[m.Need[1]])
	assert.Equal(t, -1000.0, needCoefs[m.Settle[0]])
	assert.Equal(t, 200.0, needCoefs[m.Settle[1]])
}

func TestCompilePositionRows(t *testing.T) {
	m, err := Compile(tradingBundle(), DefaultOptions())
	require.NoError(t, err)

	// Account 2 sells 10 in t0 and buys 5 back in t1.
	seller := findConstraint(t, m, "position_2_101")
	assert.Equal(t, 50.0, seller.RHS)
	coefs := seller.Expr.Coefficients()
	assert.Equal(t, 10.0, coefs[m.Settle[0]])
	assert.Equal(t, -5.0, coefs[m.Settle[1]])
	_, pledged := coefs[m.Lots[7]]
	assert.False(t, pledged)

	// Account 1 pledges lots of 2 from its own position.
	buyer := findConstraint(t, m, "position_1_101")
	assert.Equal(t, 20.0, buyer.RHS)
	coefs = buyer.Expr.Coefficients()
	assert.Equal(t, -10.0, coefs[m.Settle[0]])
	assert.Equal(t, 5.0, coefs[m.Settle[1]])
	assert.Equal(t, 2.0, coefs[m.Lots[7]])
}

func TestCompileInflowReversesSecurityLeg(t *testing.T) {
	in := tradingBundle()
	in.Transactions[0].SecurityFlow = model.FlowInflow

	m, err := Compile(in, DefaultOptions())
	require.NoError(t, err)

	seller := findConstraint(t, m, "position_2_101")
	assert.Equal(t, -10.0, seller.Expr.Coefficients()[m.Settle[0]])
	buyer := findConstraint(t, m, "position_1_101")
	assert.Equal(t, 10.0, buyer.Expr.Coefficients()[m.Settle[0]])
}

func TestCompileLinkRows(t *testing.T) {
	m, err := Compile(tradingBundle(), DefaultOptions())
	require.NoError(t, err)

	trig := findConstraint(t, m, "trigger_7_0")
	coefs := trig.Expr.Coefficients()
	assert.Equal(t, 1.0, coefs[m.Settle[0]])
	assert.Equal(t, -1.0, coefs[m.Active[7]])

	act := findConstraint(t, m, "activation_7")
	coefs = act.Expr.Coefficients()
	assert.Equal(t, 1.0, coefs[m.Active[7]])
	assert.Equal(t, -1.0, coefs[m.Settle[0]])
	assert.Equal(t, -1.0, coefs[m.Settle[1]])

	lo := findConstraint(t, m, "lots_min_7")
	assert.Equal(t, solver.GreaterEq, lo.Sense)
	assert.Equal(t, 2.0, lo.Expr.Coefficients()[m.Lots[7]])
	assert.Equal(t, -2.0, lo.Expr.Coefficients()[m.Active[7]])

	hi := findConstraint(t, m, "lots_max_7")
	assert.Equal(t, -10.0, hi.Expr.Coefficients()[m.Active[7]])

	after := findConstraint(t, m, "after_0_1")
	assert.Equal(t, 1.0, after.Expr.Coefficients()[m.Settle[1]])
	assert.Equal(t, -1.0, after.Expr.Coefficients()[m.Settle[0]])
}

func TestZeroAssignmentIsFeasibleWithoutExtensions(t *testing.T) {
	testCases := []struct {
		name string
		in   *model.Input
	}{
		{name: "trading", in: tradingBundle()},
		{name: "shortfall", in: testutil.ShortfallScenario()},
		{name: "collateral", in: testutil.CollateralScenario()},
		{name: "ordering", in: testutil.OrderingScenario()},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := Compile(tc.in, DefaultOptions())
			require.NoError(t, err)
			zero := make([]float64, m.Problem.NumVars())
			assert.Empty(t, violated(m.Problem, zero))
		})
	}
}

func TestCompileRejectsBadInput(t *testing.T) {
	t.Run("lambda out of range", func(t *testing.T) {
		_, err := Compile(tradingBundle(), Options{Lambda: 1.5})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "lambda")
	})

	t.Run("haircut rate out of range", func(t *testing.T) {
		_, err := Compile(tradingBundle(), Options{Lambda: 0.5, Extensions: Extensions{Haircut: true, HaircutRate: 1}})
		require.Error(t, err)
	})

	t.Run("invalid bundle", func(t *testing.T) {
		in := tradingBundle()
		in.Transactions[0].CreditAccount = in.Transactions[0].DebitAccount
		_, err := Compile(in, DefaultOptions())
		var verr *model.ValidationError
		require.True(t, errors.As(err, &verr))
	})
}

func TestObjective(t *testing.T) {
	in := tradingBundle()
	settle := map[int]solver.Var{0: 0, 1: 1}

	testCases := []struct {
		name   string
		lambda float64
		want   []float64
	}{
		// Σw·a = 1000 + 600, Σw = 4.
		{name: "notional only", lambda: 1, want: []float64{1000.0 / 1600, 600.0 / 1600}},
		{name: "count only", lambda: 0, want: []float64{0.25, 0.75}},
		{name: "balanced", lambda: 0.5, want: []float64{0.5*1000/1600 + 0.5*0.25, 0.5*600/1600 + 0.5*0.75}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			obj, err := Objective(in, settle, tc.lambda)
			require.NoError(t, err)
			coefs := obj.Coefficients()
			total := 0.0
			for i, want := range tc.want {
				assert.InDelta(t, want, coefs[solver.Var(i)], 1e-12)
				total += coefs[solver.Var(i)]
			}
			assert.InDelta(t, 1.0, total, 1e-12)
		})
	}
}

func TestObjectiveDegenerate(t *testing.T) {
	in := tradingBundle()
	in.Transactions[0].Weight = 0
	in.Transactions[1].Weight = 0
	_, err := Objective(in, map[int]solver.Var{0: 0, 1: 1}, 0.5)
	assert.ErrorIs(t, err, ErrDegenerateObjective)

	_, err = Objective(&model.Input{}, nil, 0.5)
	assert.ErrorIs(t, err, ErrDegenerateObjective)
}

func TestExtensionsEnabled(t *testing.T) {
	ext := Extensions{Haircut: true, SBSSegregation: true}
	assert.True(t, ext.Any())
	assert.Equal(t, []string{"haircut", "sbs_segregation"}, ext.Enabled())
	assert.False(t, Extensions{}.Any())
	assert.Empty(t, Extensions{}.Enabled())
}
