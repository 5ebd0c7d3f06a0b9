package integration

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iwvelando/settlement-optimizer/internal/config"
	"github.com/iwvelando/settlement-optimizer/internal/settlement"
	"github.com/iwvelando/settlement-optimizer/internal/solver/branchbound"
	"github.com/iwvelando/settlement-optimizer/internal/source"
	"github.com/iwvelando/settlement-optimizer/pkg/output"
	"go.uber.org/zap"
)

// run executes the pipeline of the settle binary against a configuration body.
func run(t *testing.T, body string) ([]settlement.BatchOutcome, *config.Configuration) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	conf, err := config.LoadConfiguration(path)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}

	logger := zap.NewNop()
	inputs, err := source.Load(logger, conf.Input)
	if err != nil {
		t.Fatalf("source.Load() error = %v", err)
	}
	engine := settlement.NewEngine(logger, branchbound.New(logger, conf.SolverOptions()))
	outcomes, err := engine.RunBatches(context.Background(), inputs, conf.CompilerOptions(), conf.Solver.Parallelism)
	if err != nil {
		t.Fatalf("RunBatches() error = %v", err)
	}
	return outcomes, conf
}

func TestRandomModeEndToEnd(t *testing.T) {
	outcomes, _ := run(t, `
solver:
  lambda: 0.5
input:
  mode: random
  seed: 42
  random:
    transactions: 12
    collateral_links: 2
    accounts: 4
    securities: 3
`)
	if len(outcomes) != 1 {
		t.Fatalf("expected one batch, got %d", len(outcomes))
	}
	res := outcomes[0].Result
	if res == nil {
		t.Fatalf("random bundle did not solve: %v", outcomes[0].Err)
	}
	if res.Metrics.Total != 12 {
		t.Errorf("expected 12 transactions, got %d", res.Metrics.Total)
	}
	if res.Metrics.SettleRate < 0 || res.Metrics.SettleRate > 1 {
		t.Errorf("settle rate %v outside [0, 1]", res.Metrics.SettleRate)
	}
}

func TestRandomModeIsReproducible(t *testing.T) {
	body := `
input:
  mode: random
  seed: 7
  random:
    transactions: 8
    collateral_links: 1
    accounts: 3
    securities: 2
`
	first, _ := run(t, body)
	second, _ := run(t, body)
	if first[0].Result == nil || second[0].Result == nil {
		t.Fatal("expected both runs to solve")
	}
	if first[0].Result.Objective != second[0].Result.Objective {
		t.Errorf("objective differs between runs: %v vs %v", first[0].Result.Objective, second[0].Result.Objective)
	}
	for i, d := range first[0].Result.Transactions {
		if d != second[0].Result.Transactions[i] {
			t.Errorf("decision %d differs between runs", d.ID)
		}
	}
}

func TestLedgerModeCSVOutput(t *testing.T) {
	ledgerPath, err := filepath.Abs(filepath.Join("..", "trades.csv"))
	if err != nil {
		t.Fatalf("failed to resolve ledger path: %v", err)
	}
	outcomes, conf := run(t, `
output:
  format: csv
input:
  mode: ledger
  ledger_file: `+ledgerPath+`
  batch_size: 3
`)
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 batches from 8 trades, got %d", len(outcomes))
	}

	var buf bytes.Buffer
	if err := output.Write(&buf, conf.Output.Format, outcomes, settlement.Summarize(outcomes)); err != nil {
		t.Fatalf("output.Write() error = %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV output: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d", len(records))
	}
	for _, row := range records[1:] {
		if row[1] == "failed" {
			t.Errorf("batch %s failed: %s", row[0], row[8])
		}
	}
}

func TestOrdersModePrettyOutput(t *testing.T) {
	ordersPath, err := filepath.Abs(filepath.Join("..", "orders.csv"))
	if err != nil {
		t.Fatalf("failed to resolve orders path: %v", err)
	}
	outcomes, _ := run(t, `
input:
  mode: orders
  orders_file: `+ordersPath+`
  currency: usd
extensions:
  haircut: true
`)
	if len(outcomes) != 1 {
		t.Fatalf("expected one batch, got %d", len(outcomes))
	}

	var buf bytes.Buffer
	if err := output.PrettyFormat(&buf, outcomes, settlement.Summarize(outcomes)); err != nil {
		t.Fatalf("PrettyFormat() error = %v", err)
	}
	if !strings.Contains(buf.String(), "--- Summary ---") {
		t.Errorf("pretty output missing summary:\n%s", buf.String())
	}
}

func TestExampleConfigurationLoads(t *testing.T) {
	conf, err := config.LoadConfiguration(filepath.Join("..", "..", "config.yaml.example"))
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	if conf.Input.Mode != "random" || conf.Input.Random.Transactions != 40 {
		t.Errorf("unexpected example configuration %+v", conf.Input)
	}
}
