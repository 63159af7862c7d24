// Package main provides the entry point for the FX research pipeline:
// a subcommand-driven CLI over internal/orchestrator's run commands
// (generate-base, search-strategies, clean-strategy-cache, status,
// retry-failed, fresh). The flag-parsing and zap bootstrap follow the
// teacher's cmd/server/main.go.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/quantlab/fxlab/internal/config"
	"github.com/quantlab/fxlab/internal/orchestrator"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	command := os.Args[1]

	// run-shard is a hidden entrypoint: the orchestrator re-invokes this
	// same binary as a subprocess (see internal/workers.ShardRunner) to
	// isolate one slice of the strategy grid in its own process. It needs
	// no --pair/--year/--config — everything it requires travels in the
	// shard input file.
	if command == "run-shard" {
		os.Exit(runShard(os.Args[2:]))
	}

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := fs.String("config", "", "path to a YAML run-config file")
	pair := fs.String("pair", "", "currency pair, e.g. EURUSD")
	year := fs.Int("year", 0, "calendar year to process")
	logLevel := fs.String("log-level", "info", "log level (debug, info, warn, error)")
	pipSize := fs.Float64("pip-size", 0.0001, "pip size for this pair (0.01 for JPY crosses)")
	fs.Parse(os.Args[2:])

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	cfg, err := config.Load(*configPath, *pair, *year)
	if err != nil {
		logger.Fatal("failed to load run configuration", zap.Error(err))
	}

	orch, err := orchestrator.New(logger, cfg, *pipSize)
	if err != nil {
		logger.Fatal("failed to construct orchestrator", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warn("received shutdown signal, cancelling run")
		cancel()
	}()

	if err := dispatch(ctx, logger, orch, command); err != nil {
		logger.Fatal("command failed", zap.String("command", command), zap.Error(err))
	}
}

func dispatch(ctx context.Context, logger *zap.Logger, orch *orchestrator.Orchestrator, command string) error {
	switch command {
	case "generate-base":
		return orch.GenerateBase(ctx)
	case "search-strategies":
		return orch.SearchStrategies(ctx)
	case "clean-strategy-cache":
		return orch.CleanStrategyCache()
	case "retry-failed":
		return orch.RetryFailed(ctx)
	case "fresh":
		return orch.Fresh()
	case "status":
		return printStatus(orch)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func printStatus(orch *orchestrator.Orchestrator) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(orch.Status())
}

// runShard is the child-process entrypoint a subprocess-isolated strategy
// shard runs: read a ShardInput, backtest it, write a ShardOutput. A
// non-nil error here becomes a non-zero exit, which the parent's
// workers.ShardRunner turns into an *errs.WorkerCrash.
func runShard(args []string) int {
	fs := flag.NewFlagSet("run-shard", flag.ExitOnError)
	inputPath := fs.String("shard-input", "", "path to a ShardInput JSON file")
	outputPath := fs.String("shard-output", "", "path to write the ShardOutput JSON file")
	logLevel := fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.Parse(args)

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	in, err := orchestrator.ReadShardInput(*inputPath)
	if err != nil {
		logger.Error("run-shard failed to read shard input", zap.Error(err))
		return 1
	}
	out, err := orchestrator.RunShard(logger, in)
	if err != nil {
		logger.Error("run-shard failed", zap.Error(err))
		return 1
	}
	if err := orchestrator.WriteShardOutput(*outputPath, out); err != nil {
		logger.Error("run-shard failed to write shard output", zap.Error(err))
		return 1
	}
	return 0
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: pipeline <generate-base|search-strategies|clean-strategy-cache|retry-failed|fresh|status|run-shard> [flags]")
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
