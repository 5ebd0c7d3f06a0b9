package validation

import (
	"testing"
	"time"
)

func TestValidateInputMode(t *testing.T) {
	tests := []struct {
		mode      string
		expectErr bool
	}{
		{mode: "random"},
		{mode: "ledger"},
		{mode: "orders"},
		{mode: "", expectErr: true},
		{mode: "Random", expectErr: true},
		{mode: "stream", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			err := ValidateInputMode(tt.mode)
			if (err != nil) != tt.expectErr {
				t.Errorf("ValidateInputMode(%q) error = %v, expectErr %v", tt.mode, err, tt.expectErr)
			}
		})
	}
}

func TestValidateLambda(t *testing.T) {
	tests := []struct {
		name      string
		lambda    float64
		expectErr bool
	}{
		{name: "Zero", lambda: 0},
		{name: "Half", lambda: 0.5},
		{name: "One", lambda: 1},
		{name: "Negative", lambda: -0.01, expectErr: true},
		{name: "Above one", lambda: 1.5, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLambda(tt.lambda)
			if (err != nil) != tt.expectErr {
				t.Errorf("ValidateLambda(%v) error = %v, expectErr %v", tt.lambda, err, tt.expectErr)
			}
		})
	}
}

func TestValidateHaircutRate(t *testing.T) {
	if err := ValidateHaircutRate(0.05); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateHaircutRate(1); err == nil {
		t.Error("rate of 1 expected error but got none")
	}
	if err := ValidateHaircutRate(-0.1); err == nil {
		t.Error("negative rate expected error but got none")
	}
}

func TestSolverWarnings(t *testing.T) {
	tests := []struct {
		name        string
		lambda      float64
		timeLimit   time.Duration
		parallelism int
		want        int
	}{
		{name: "Defaults", lambda: 0.5, parallelism: 1, want: 0},
		{name: "Count only", lambda: 0, parallelism: 1, want: 1},
		{name: "Notional only", lambda: 1, parallelism: 1, want: 1},
		{name: "Tiny time limit", lambda: 0.5, timeLimit: time.Millisecond, parallelism: 1, want: 1},
		{name: "Everything suspicious", lambda: 1, timeLimit: time.Millisecond, parallelism: 500, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SolverWarnings(tt.lambda, tt.timeLimit, tt.parallelism)
			if len(got) != tt.want {
				t.Errorf("SolverWarnings() = %v, want %d warnings", got, tt.want)
			}
		})
	}
}
