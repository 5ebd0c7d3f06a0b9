package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iwvelando/settlement-optimizer/internal/logging"
	"github.com/iwvelando/settlement-optimizer/internal/server"
	"github.com/iwvelando/settlement-optimizer/internal/settlement"
	"github.com/iwvelando/settlement-optimizer/internal/solver/branchbound"
	"github.com/iwvelando/settlement-optimizer/internal/telemetry"
	"github.com/iwvelando/settlement-optimizer/pkg/constants"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configLocation := flag.String("config", constants.DefaultServerConfigFile, "path to server configuration file")
	address := flag.String("address", "", "listen address override")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	flag.Parse()

	cfg, err := server.LoadConfig(*configLocation)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load server configuration at %s\", \"error\": \"%v\"}\n", *configLocation, err)
		os.Exit(1)
	}
	if *address != "" {
		cfg.Address = *address
	}

	logger, err := logging.New(cfg.Logging, *logLevel)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to initialize logger\", \"error\": \"%v\"}\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := telemetry.NewRecorder(reg)
	if err != nil {
		logger.Fatal("failed to register metrics",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	solverOpts := branchbound.Options{NodeLimit: cfg.Solver.NodeLimit, TimeLimit: cfg.Solver.TimeLimit}
	engine := settlement.NewEngine(logger, branchbound.New(logger, solverOpts), settlement.WithRecorder(recorder))
	handler := server.NewHandler(logger, engine, server.Options{
		MaxUploadSize: cfg.UploadSizeBytes(),
		Version:       version,
		Lambda:        cfg.Solver.Lambda,
		Parallelism:   cfg.Solver.Parallelism,
		Gatherer:      reg,
	})

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed",
				zap.String("op", "main"),
				zap.Error(err),
			)
		}
	}()

	logger.Info("settlement server listening",
		zap.String("op", "main"),
		zap.String("address", cfg.Address),
		zap.String("version", version),
		zap.Int64("maxUploadSize", cfg.UploadSizeBytes()),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
}
