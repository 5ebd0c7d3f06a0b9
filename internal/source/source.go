// Package source assembles the bundles of a run from its configured input:
// one randomized bundle, a matched-trade ledger, or raw orders matched into
// a ledger first.
package source

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"

	"github.com/iwvelando/settlement-optimizer/internal/config"
	"github.com/iwvelando/settlement-optimizer/internal/ledger"
	"github.com/iwvelando/settlement-optimizer/internal/matching"
	"github.com/iwvelando/settlement-optimizer/internal/model"
	"github.com/iwvelando/settlement-optimizer/internal/synth"
	"github.com/iwvelando/settlement-optimizer/pkg/constants"
	"go.uber.org/zap"
)

// Load builds the bundles described by cfg. Every random draw comes from a
// single generator seeded with cfg.Seed.
func Load(logger *zap.Logger, cfg config.InputConfig) ([]*model.Input, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	switch cfg.Mode {
	case constants.InputModeRandom:
		in, err := synth.Random(rng, cfg.Random)
		if err != nil {
			return nil, err
		}
		return []*model.Input{in}, nil
	case constants.InputModeLedger:
		f, err := os.Open(cfg.LedgerFile)
		if err != nil {
			return nil, fmt.Errorf("opening ledger: %w", err)
		}
		defer f.Close()
		return FromLedger(logger, rng, f, cfg.BatchSize)
	case constants.InputModeOrders:
		f, err := os.Open(cfg.OrdersFile)
		if err != nil {
			return nil, fmt.Errorf("opening orders: %w", err)
		}
		defer f.Close()
		return FromOrders(logger, rng, f, cfg.Currency, cfg.BatchSize)
	default:
		return nil, fmt.Errorf("unknown input mode %q", cfg.Mode)
	}
}

// FromLedger reads a trade ledger and derives one bundle per batch.
func FromLedger(logger *zap.Logger, rng *rand.Rand, r io.Reader, batchSize int) ([]*model.Input, error) {
	trades, err := ledger.ReadCSV(r)
	if err != nil {
		return nil, err
	}
	return FromTrades(logger, rng, trades, batchSize)
}

// FromOrders matches raw orders into trades and derives one bundle per batch.
func FromOrders(logger *zap.Logger, rng *rand.Rand, r io.Reader, currency string, batchSize int) ([]*model.Input, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	orders, err := matching.ReadOrdersCSV(r, currency)
	if err != nil {
		return nil, err
	}
	trades := matching.Match(logger, orders)
	logger.Info("orders matched",
		zap.String("op", "source.FromOrders"),
		zap.Int("orders", len(orders)),
		zap.Int("trades", len(trades)),
	)
	return FromTrades(logger, rng, trades, batchSize)
}

// FromTrades sorts trades chronologically, splits them into batches and
// estimates the bundle of each batch. Batches draw from rng in order.
func FromTrades(logger *zap.Logger, rng *rand.Rand, trades []ledger.Trade, batchSize int) ([]*model.Input, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(trades) == 0 {
		return nil, errors.New("no trades to settle")
	}
	ledger.SortChronological(trades)
	batches, err := ledger.Batches(trades, batchSize)
	if err != nil {
		return nil, err
	}

	inputs := make([]*model.Input, 0, len(batches))
	for i, batch := range batches {
		in, err := synth.FromBatch(rng, batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
		inputs = append(inputs, in)
	}
	logger.Debug("bundles derived",
		zap.String("op", "source.FromTrades"),
		zap.Int("trades", len(trades)),
		zap.Int("batches", len(inputs)),
	)
	return inputs, nil
}
