package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/iwvelando/settlement-optimizer/internal/config"
	"github.com/iwvelando/settlement-optimizer/internal/logging"
	"github.com/iwvelando/settlement-optimizer/internal/settlement"
	"github.com/iwvelando/settlement-optimizer/internal/solver/branchbound"
	"github.com/iwvelando/settlement-optimizer/internal/source"
	"github.com/iwvelando/settlement-optimizer/pkg/constants"
	"github.com/iwvelando/settlement-optimizer/pkg/output"
	"github.com/iwvelando/settlement-optimizer/pkg/validation"
	"go.uber.org/zap"
)

func main() {
	// Process command line flags first to get config location
	configLocation := flag.String("config", constants.DefaultConfigFile, "path to configuration file")
	outputFormatFlag := flag.String("output-format", "", "type of output override: pretty, csv, json")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	verbose := flag.Bool("verbose", false, "list every settlement and activation decision after the summary")
	flag.Parse()

	conf, err := config.LoadConfiguration(*configLocation)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load configuration at %s\", \"error\": \"%v\"}\n", *configLocation, err)
		os.Exit(1)
	}

	logger, err := logging.New(conf.Logging, *logLevel)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to initialize logger\", \"error\": \"%v\"}\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// CLI override takes precedence over config
	outputFormat := conf.Output.Format
	if *outputFormatFlag != "" {
		outputFormat = *outputFormatFlag
	}
	if err := validation.ValidateOutputFormat(outputFormat); err != nil {
		logger.Fatal(err.Error(),
			zap.String("op", "main"),
		)
	}

	for _, warning := range conf.Warnings() {
		logger.Warn("Configuration warning: "+warning,
			zap.String("op", "main"),
		)
	}

	inputs, err := source.Load(logger, conf.Input)
	if err != nil {
		logger.Fatal("failed to assemble settlement bundles",
			zap.String("op", "main"),
			zap.String("mode", conf.Input.Mode),
			zap.Error(err),
		)
	}
	for i, in := range inputs {
		for _, warning := range in.Warnings() {
			logger.Warn("Bundle warning: "+warning,
				zap.String("op", "main"),
				zap.Int("batch", i),
			)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := settlement.NewEngine(logger, branchbound.New(logger, conf.SolverOptions()))
	outcomes, err := engine.RunBatches(ctx, inputs, conf.CompilerOptions(), conf.Solver.Parallelism)
	if err != nil {
		logger.Fatal("settlement solve failed",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	if err := output.Write(os.Stdout, outputFormat, outcomes, settlement.Summarize(outcomes)); err != nil {
		logger.Fatal("failed to write results",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
	if *verbose {
		for _, o := range outcomes {
			if o.Result == nil {
				continue
			}
			fmt.Println()
			if err := output.Dump(os.Stdout, o.Result); err != nil {
				logger.Fatal("failed to write decisions",
					zap.String("op", "main"),
					zap.Error(err),
				)
			}
		}
	}
}
