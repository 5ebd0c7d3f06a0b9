package validation

import (
	"fmt"
	"time"

	"github.com/iwvelando/settlement-optimizer/pkg/constants"
)

// ValidateInputMode checks that the bundle source is one of random, ledger
// or orders.
func ValidateInputMode(mode string) error {
	switch mode {
	case constants.InputModeRandom, constants.InputModeLedger, constants.InputModeOrders:
		return nil
	}
	return fmt.Errorf("expected input mode of %s, %s or %s, got %s",
		constants.InputModeRandom, constants.InputModeLedger, constants.InputModeOrders, mode)
}

// ValidateLambda checks the objective blend factor lies in [0, 1].
func ValidateLambda(lambda float64) error {
	if lambda < 0 || lambda > 1 {
		return fmt.Errorf("lambda must be within [0, 1], got %g", lambda)
	}
	return nil
}

// ValidateHaircutRate checks a collateral haircut lies in [0, 1).
func ValidateHaircutRate(rate float64) error {
	if rate < 0 || rate >= 1 {
		return fmt.Errorf("haircut rate must be within [0, 1), got %g", rate)
	}
	return nil
}

// SolverWarnings reports legal but suspicious solver settings.
func SolverWarnings(lambda float64, timeLimit time.Duration, parallelism int) []string {
	var warnings []string
	if lambda == 0 {
		warnings = append(warnings, "lambda is 0: settled notional is ignored and only the weighted count is maximized")
	}
	if lambda == 1 {
		warnings = append(warnings, "lambda is 1: the weighted count is ignored and only settled notional is maximized")
	}
	if timeLimit > 0 && timeLimit < 100*time.Millisecond {
		warnings = append(warnings, fmt.Sprintf("solver time limit %s is very short; batches may abort without a solution", timeLimit))
	}
	if parallelism > 64 {
		warnings = append(warnings, fmt.Sprintf("parallelism %d is unusually high", parallelism))
	}
	return warnings
}
