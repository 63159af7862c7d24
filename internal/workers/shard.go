package workers

import (
	"bytes"
	"context"
	"os/exec"

	"go.uber.org/zap"

	"github.com/quantlab/fxlab/internal/errs"
)

// ShardTask is one subprocess-isolated unit of strategy-grid work: a
// self-contained input file the child reads and an output file it is
// expected to write before exiting 0. What the input/output actually
// contain is opaque to this package — internal/orchestrator fills them
// with a slice of the strategy grid plus enough RunConfig to re-derive
// the STABLE candles/features it needs, and reads back a slice of
// BacktestResult/WalkForwardReport (see orchestrator/shard.go).
//
// Isolating each shard in its own OS process is this module's answer to
// the "26% hang / unbounded memory growth" failure mode a very large
// strategy grid produces in a single long-lived process: a crashing or
// leaking shard fails on its own without taking the rest of the run down
// with it, and a later retry re-spawns only the shards that failed.
type ShardTask struct {
	ID         string
	InputPath  string
	OutputPath string
}

// ShardRunner spawns one child process per ShardTask, running this same
// binary with a fixed subcommand plus --shard-input/--shard-output flags
// pointing at the task's files.
type ShardRunner struct {
	logger *zap.Logger
	binary string
	args   []string
}

// NewShardRunner creates a ShardRunner that re-invokes binary with args
// (e.g. ["run-shard"]) for every task.
func NewShardRunner(logger *zap.Logger, binary string, args []string) *ShardRunner {
	return &ShardRunner{logger: logger, binary: binary, args: args}
}

// Run executes one shard to completion, returning an *errs.WorkerCrash if
// the child exits non-zero, is killed, or never starts.
func (r *ShardRunner) Run(ctx context.Context, task ShardTask) error {
	args := append(append([]string{}, r.args...), "--shard-input", task.InputPath, "--shard-output", task.OutputPath)
	cmd := exec.CommandContext(ctx, r.binary, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	r.logger.Debug("spawning strategy shard", zap.String("shardId", task.ID), zap.String("binary", r.binary))
	if err := cmd.Run(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return &errs.WorkerCrash{TaskID: task.ID, ExitCode: exitCode, Stderr: stderr.String()}
	}
	return nil
}

// RunAll runs every task through pool (already Start-ed), bounded by the
// pool's worker count, and returns one error per task in task order —
// nil where the shard succeeded, *errs.WorkerCrash where it didn't.
func (r *ShardRunner) RunAll(ctx context.Context, pool *Pool, tasks []ShardTask) []error {
	results := make([]error, len(tasks))
	done := make(chan struct{}, len(tasks))
	for i, task := range tasks {
		i, task := i, task
		go func() {
			defer func() { done <- struct{}{} }()
			results[i] = pool.SubmitWait(TaskFunc(func() error {
				return r.Run(ctx, task)
			}))
		}()
	}
	for range tasks {
		<-done
	}
	return results
}

// Shard splits items into at most n contiguous chunks (n capped at
// len(items)) of ceil(len(items)/n) items each, the last possibly
// shorter, so fewer than n chunks can result; used to divide a strategy
// grid into at most one shard per worker.
func Shard[T any](items []T, n int) [][]T {
	if n <= 0 {
		n = 1
	}
	if n > len(items) {
		n = len(items)
	}
	if n == 0 {
		return nil
	}
	size := (len(items) + n - 1) / n
	shards := make([][]T, 0, n)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		shards = append(shards, items[start:end])
	}
	return shards
}
