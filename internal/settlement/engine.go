// Package settlement compiles a bundle, solves it once and turns the
// assignment into settlement decisions and batch metrics.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iwvelando/settlement-optimizer/internal/compiler"
	"github.com/iwvelando/settlement-optimizer/internal/model"
	"github.com/iwvelando/settlement-optimizer/internal/solver"
	"github.com/iwvelando/settlement-optimizer/internal/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrInfeasible means no subset of the batch satisfies the constraints.
	ErrInfeasible = errors.New("settlement model is infeasible")
	// ErrAborted means a deadline or search limit ended the solve before a
	// feasible assignment was found.
	ErrAborted = errors.New("settlement solve aborted")
	// ErrSolver means the solving backend failed. It points at the
	// environment rather than the batch.
	ErrSolver = errors.New("settlement solver failed")
	// ErrNumerical is the ErrSolver case where the backend could not finish
	// this one bundle numerically. Other bundles are unaffected.
	ErrNumerical = fmt.Errorf("%w: numerical failure", ErrSolver)
)

// Engine runs settlement solves. It keeps no per-run state and is safe for
// concurrent use when its solver is.
type Engine struct {
	logger   *zap.Logger
	solver   solver.Solver
	recorder *telemetry.Recorder
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder exports solve metrics through r.
func WithRecorder(r *telemetry.Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// NewEngine creates an engine solving with s.
func NewEngine(logger *zap.Logger, s solver.Solver, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{logger: logger, solver: s}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run compiles and solves one bundle. On success every decision of the
// result comes from a single optimal or feasible assignment; on failure no
// partial result is returned.
func (e *Engine) Run(ctx context.Context, in *model.Input, opts compiler.Options) (*Result, error) {
	runID := uuid.NewString()
	logger := e.logger.With(zap.String("runId", runID))
	start := time.Now()

	m, err := compiler.Compile(in, opts)
	if err != nil {
		return nil, fmt.Errorf("compiling bundle: %w", err)
	}
	logger.Debug("model compiled",
		zap.String("op", "settlement.Run"),
		zap.Int("variables", m.Problem.NumVars()),
		zap.Int("constraints", len(m.Problem.Constraints())),
		zap.Strings("extensions", opts.Extensions.Enabled()),
	)

	sol, err := e.solver.Solve(ctx, m.Problem)
	elapsed := time.Since(start)
	if err != nil {
		e.recorder.ObserveSolve(solver.StatusError.String(), elapsed, 0)
		if errors.Is(err, solver.ErrNumerical) {
			logger.Warn("solver failed numerically",
				zap.String("op", "settlement.Run"),
				zap.Int("transactions", len(in.Transactions)),
				zap.Error(err),
			)
			return nil, fmt.Errorf("%w: %w", ErrNumerical, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrSolver, err)
	}
	e.recorder.ObserveSolve(sol.Status.String(), elapsed, sol.Nodes)

	switch sol.Status {
	case solver.StatusOptimal, solver.StatusFeasible:
	case solver.StatusInfeasible:
		logger.Info("batch infeasible",
			zap.String("op", "settlement.Run"),
			zap.Int("transactions", len(in.Transactions)),
			zap.Duration("elapsed", elapsed),
		)
		return nil, ErrInfeasible
	case solver.StatusAborted:
		logger.Warn("solve aborted without a feasible assignment",
			zap.String("op", "settlement.Run"),
			zap.Int("nodes", sol.Nodes),
			zap.Duration("elapsed", elapsed),
		)
		return nil, ErrAborted
	default:
		return nil, fmt.Errorf("%w: status %s", ErrSolver, sol.Status)
	}

	res := extract(m, sol)
	res.RunID = runID
	res.Duration = elapsed
	e.recorder.ObserveSettlement(res.Metrics.Settled, res.Metrics.Total, res.Metrics.TotalCashflow, res.Metrics.TotalLoan)

	logger.Info("batch settled",
		zap.String("op", "settlement.Run"),
		zap.String("status", res.Status),
		zap.Int("settled", res.Metrics.Settled),
		zap.Int("total", res.Metrics.Total),
		zap.Float64("totalCashflow", res.Metrics.TotalCashflow),
		zap.Float64("totalLoan", res.Metrics.TotalLoan),
		zap.Duration("elapsed", elapsed),
	)
	return res, nil
}

// BatchOutcome is the outcome of one bundle of RunBatches. Exactly one of
// Result and Err is set.
type BatchOutcome struct {
	Index  int     `json:"index"`
	Result *Result `json:"result,omitempty"`
	Err    error   `json:"-"`
}

// RunBatches solves independent bundles with at most parallelism solves in
// flight. Infeasible, aborted and invalid bundles are reported in their
// outcome, and so is a numerical failure confined to one bundle. Any other
// solver failure stops the remaining batches and is returned.
func (e *Engine) RunBatches(ctx context.Context, inputs []*model.Input, opts compiler.Options, parallelism int) ([]BatchOutcome, error) {
	if parallelism < 1 {
		parallelism = 1
	}
	outcomes := make([]BatchOutcome, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				outcomes[i] = BatchOutcome{Index: i, Err: err}
				return nil
			}
			res, err := e.Run(gctx, in, opts)
			outcomes[i] = BatchOutcome{Index: i, Result: res, Err: err}
			if errors.Is(err, ErrSolver) && !errors.Is(err, ErrNumerical) {
				return fmt.Errorf("batch %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}
