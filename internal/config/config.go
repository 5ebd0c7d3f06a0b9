// Package config defines the configuration of a settlement run and loads it
// from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iwvelando/settlement-optimizer/internal/compiler"
	"github.com/iwvelando/settlement-optimizer/internal/solver/branchbound"
	"github.com/iwvelando/settlement-optimizer/internal/synth"
	"github.com/iwvelando/settlement-optimizer/pkg/constants"
	"github.com/iwvelando/settlement-optimizer/pkg/validation"
	"github.com/spf13/viper"
)

// Configuration holds all configuration for a settlement run.
type Configuration struct {
	Logging    LoggingConfig       `yaml:"logging,omitempty" mapstructure:"logging"`
	Output     OutputConfig        `yaml:"output,omitempty" mapstructure:"output"`
	Solver     SolverConfig        `yaml:"solver,omitempty" mapstructure:"solver"`
	Input      InputConfig         `yaml:"input,omitempty" mapstructure:"input"`
	Extensions compiler.Extensions `yaml:"extensions,omitempty" mapstructure:"extensions"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty" mapstructure:"level"`             // debug, info, warn, error
	Format     string `yaml:"format,omitempty" mapstructure:"format"`           // json, console
	OutputFile string `yaml:"output_file,omitempty" mapstructure:"output_file"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `yaml:"format,omitempty" mapstructure:"format"` // pretty, csv, json
}

// SolverConfig tunes the objective and the branch-and-bound search.
type SolverConfig struct {
	Lambda      float64       `yaml:"lambda" mapstructure:"lambda"`
	TimeLimit   time.Duration `yaml:"time_limit,omitempty" mapstructure:"time_limit"`
	NodeLimit   int           `yaml:"node_limit,omitempty" mapstructure:"node_limit"`
	Parallelism int           `yaml:"parallelism,omitempty" mapstructure:"parallelism"`
}

// InputConfig selects where bundles come from.
type InputConfig struct {
	Mode       string             `yaml:"mode" mapstructure:"mode"` // random, ledger, orders
	Seed       int64              `yaml:"seed" mapstructure:"seed"`
	Random     synth.RandomParams `yaml:"random,omitempty" mapstructure:"random"`
	LedgerFile string             `yaml:"ledger_file,omitempty" mapstructure:"ledger_file"`
	OrdersFile string             `yaml:"orders_file,omitempty" mapstructure:"orders_file"`
	Currency   string             `yaml:"currency,omitempty" mapstructure:"currency"`
	BatchSize  int                `yaml:"batch_size,omitempty" mapstructure:"batch_size"`
}

// Default returns the configuration used when no file sets a value.
func Default() *Configuration {
	return &Configuration{
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Output:  OutputConfig{Format: constants.OutputFormatPretty},
		Solver: SolverConfig{
			Lambda:      constants.DefaultLambda,
			NodeLimit:   constants.DefaultNodeLimit,
			Parallelism: constants.DefaultParallelism,
		},
		Input: InputConfig{
			Mode:      constants.InputModeRandom,
			Seed:      1,
			Random:    synth.DefaultRandomParams(),
			Currency:  constants.DefaultSettlementCurrency,
			BatchSize: constants.DefaultBatchSize,
		},
	}
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there. Every key can be overridden from the environment,
// e.g. SETTLE_SOLVER_LAMBDA or SETTLE_INPUT_MODE.
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yml")
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	configuration.Normalize()
	if err := configuration.Validate(); err != nil {
		return nil, err
	}
	return &configuration, nil
}

// setDefaults registers every key so AutomaticEnv can override keys the
// file leaves out.
func setDefaults(v *viper.Viper, d *Configuration) {
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output_file", d.Logging.OutputFile)
	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("solver.lambda", d.Solver.Lambda)
	v.SetDefault("solver.time_limit", d.Solver.TimeLimit)
	v.SetDefault("solver.node_limit", d.Solver.NodeLimit)
	v.SetDefault("solver.parallelism", d.Solver.Parallelism)
	v.SetDefault("input.mode", d.Input.Mode)
	v.SetDefault("input.seed", d.Input.Seed)
	v.SetDefault("input.random.transactions", d.Input.Random.Transactions)
	v.SetDefault("input.random.collateral_links", d.Input.Random.CollateralLinks)
	v.SetDefault("input.random.accounts", d.Input.Random.Accounts)
	v.SetDefault("input.random.securities", d.Input.Random.Securities)
	v.SetDefault("input.ledger_file", d.Input.LedgerFile)
	v.SetDefault("input.orders_file", d.Input.OrdersFile)
	v.SetDefault("input.currency", d.Input.Currency)
	v.SetDefault("input.batch_size", d.Input.BatchSize)
	v.SetDefault("extensions.haircut", d.Extensions.Haircut)
	v.SetDefault("extensions.haircut_rate", d.Extensions.HaircutRate)
	v.SetDefault("extensions.concentration", d.Extensions.Concentration)
	v.SetDefault("extensions.muni_limits", d.Extensions.MuniLimits)
	v.SetDefault("extensions.pab_separation", d.Extensions.PABSeparation)
	v.SetDefault("extensions.sbs_segregation", d.Extensions.SBSSegregation)
}

// Normalize fills zero values with defaults and canonicalizes strings.
func (c *Configuration) Normalize() {
	d := Default()
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))
	if c.Output.Format == "" {
		c.Output.Format = d.Output.Format
	}
	if c.Solver.NodeLimit <= 0 {
		c.Solver.NodeLimit = d.Solver.NodeLimit
	}
	if c.Solver.Parallelism <= 0 {
		c.Solver.Parallelism = d.Solver.Parallelism
	}
	c.Input.Mode = strings.ToLower(strings.TrimSpace(c.Input.Mode))
	if c.Input.Mode == "" {
		c.Input.Mode = d.Input.Mode
	}
	c.Input.Currency = strings.ToUpper(strings.TrimSpace(c.Input.Currency))
	if c.Input.Currency == "" {
		c.Input.Currency = d.Input.Currency
	}
	if c.Input.BatchSize <= 0 {
		c.Input.BatchSize = d.Input.BatchSize
	}
	if c.Extensions.Haircut && c.Extensions.HaircutRate == 0 {
		c.Extensions.HaircutRate = constants.DefaultHaircutRate
	}
}

// Validate rejects settings no run can use. All problems are reported
// together.
func (c *Configuration) Validate() error {
	var errs []error
	if err := validation.ValidateOutputFormat(c.Output.Format); err != nil {
		errs = append(errs, err)
	}
	if err := validation.ValidateLogFormat(c.Logging.Format); err != nil {
		errs = append(errs, err)
	}
	if err := validation.ValidateLambda(c.Solver.Lambda); err != nil {
		errs = append(errs, err)
	}
	if c.Solver.TimeLimit < 0 {
		errs = append(errs, fmt.Errorf("solver time limit must not be negative, got %s", c.Solver.TimeLimit))
	}
	if err := validation.ValidateHaircutRate(c.Extensions.HaircutRate); err != nil {
		errs = append(errs, err)
	}
	if err := validation.ValidateInputMode(c.Input.Mode); err != nil {
		errs = append(errs, err)
	} else {
		switch c.Input.Mode {
		case constants.InputModeRandom:
			if err := c.Input.Random.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("random input: %w", err))
			}
		case constants.InputModeLedger:
			if c.Input.LedgerFile == "" {
				errs = append(errs, errors.New("ledger input requires input.ledger_file"))
			}
		case constants.InputModeOrders:
			if c.Input.OrdersFile == "" {
				errs = append(errs, errors.New("orders input requires input.orders_file"))
			}
		}
	}
	return errors.Join(errs...)
}

// Warnings reports legal but suspicious settings.
func (c *Configuration) Warnings() []string {
	warnings := validation.SolverWarnings(c.Solver.Lambda, c.Solver.TimeLimit, c.Solver.Parallelism)
	if c.Input.Mode != constants.InputModeRandom && c.Input.BatchSize > 1000 {
		warnings = append(warnings, fmt.Sprintf("batch size %d produces large models; solves may be slow", c.Input.BatchSize))
	}
	ext := c.Extensions
	if ext.Concentration || ext.MuniLimits || ext.PABSeparation || ext.SBSSegregation {
		warnings = append(warnings, "regulatory extensions only affect accounts with a kind and regulatory data; generated and trade-derived bundles carry neither")
	}
	return warnings
}

// CompilerOptions returns the options passed to the model compiler.
func (c *Configuration) CompilerOptions() compiler.Options {
	return compiler.Options{Lambda: c.Solver.Lambda, Extensions: c.Extensions}
}

// SolverOptions returns the options of the branch-and-bound backend.
func (c *Configuration) SolverOptions() branchbound.Options {
	return branchbound.Options{NodeLimit: c.Solver.NodeLimit, TimeLimit: c.Solver.TimeLimit}
}
