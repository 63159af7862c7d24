package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/quantlab/fxlab/internal/backtester"
	"github.com/quantlab/fxlab/internal/config"
	"github.com/quantlab/fxlab/internal/store"
	"github.com/quantlab/fxlab/internal/strategy"
	"github.com/quantlab/fxlab/internal/workers"
	"github.com/quantlab/fxlab/pkg/types"
)

// ShardInput is the self-contained unit of work a subprocess-isolated
// strategy shard reads from disk: enough of a RunConfig to re-derive the
// STABLE cache prefix, the universe being swept, and the slice of the
// strategy grid this shard owns.
type ShardInput struct {
	RunConfig types.RunConfig          `json:"runConfig"`
	Universe  types.Universe           `json:"universe"`
	Instances []types.StrategyInstance `json:"instances"`
}

// ShardOutput is what a shard writes back: one BacktestResult per
// (instance, lot size), plus the walk-forward report per instance when
// walk-forward validation is enabled.
type ShardOutput struct {
	Results     []types.BacktestResult             `json:"results"`
	WalkForward map[string]types.WalkForwardReport `json:"walkForward"`
}

// RunShard backtests every instance in in.Instances against the STABLE
// candles/features for in.Universe. It has no dependency on any
// in-process Orchestrator state, so it is the one implementation both the
// in-process (SubprocessBatch=false) path and the `run-shard` subprocess
// entrypoint call — there is exactly one place "backtest this slice of
// the strategy grid" is implemented, regardless of which process runs it.
func RunShard(logger *zap.Logger, in ShardInput) (ShardOutput, error) {
	cache, err := store.New(in.RunConfig.CacheDir)
	if err != nil {
		return ShardOutput{}, err
	}
	stablePrefix := config.StablePrefix(in.RunConfig, in.Universe)

	candleBytes, _, err := cache.ReadAny(stablePrefix + "/candles.bin")
	if err != nil {
		return ShardOutput{}, err
	}
	candles, err := store.DecodeCandles(candleBytes, in.Universe.IntervalMinutes, in.Universe.LookbackPeriods)
	if err != nil {
		return ShardOutput{}, err
	}

	featureBytes, _, err := cache.ReadAny(stablePrefix + "/features.bin")
	if err != nil {
		return ShardOutput{}, err
	}
	_, featureRows, err := store.DecodeFeatureMatrix(featureBytes)
	if err != nil {
		return ShardOutput{}, err
	}

	registry := strategy.NewRegistry()
	sizer := strategy.NewLotSizeGrid()
	sim := backtester.New(logger, in.RunConfig.Backtest)
	wfAnalyzer := backtester.NewWalkForwardAnalyzer(logger, in.RunConfig.Backtest)

	out := ShardOutput{WalkForward: make(map[string]types.WalkForwardReport, len(in.Instances))}
	for _, inst := range in.Instances {
		rt, ok := strategy.Instantiate(inst, registry)
		if !ok {
			continue
		}
		if in.RunConfig.Backtest.WalkForward.Enabled {
			wf := wfAnalyzer.Run(candles, featureRows, rt, in.Universe.LookbackPeriods, baseLotSize(in.RunConfig.StrategyGrid), in.RunConfig.Backtest.WalkForward)
			out.WalkForward[inst.Name] = wf
			rt.Reset()
		}
		for _, lot := range sizer.Expand(in.RunConfig.StrategyGrid, 0.5, 10, 10) {
			result := sim.Run(candles, featureRows, rt, in.Universe.LookbackPeriods, lot)
			backtester.ApplyRobustness(&result, in.RunConfig.Backtest, int64(len(out.Results)+1))
			out.Results = append(out.Results, result)
			rt.Reset()
		}
	}
	return out, nil
}

// ReadShardInput/WriteShardInput/ReadShardOutput/WriteShardOutput move a
// ShardInput/ShardOutput across the process boundary as plain JSON files —
// these are ephemeral working files under a RUN prefix's .shards/
// directory, not part of the columnar cache format the rest of the
// pipeline uses for STABLE/RUN artifacts.

func ReadShardInput(path string) (ShardInput, error) {
	var in ShardInput
	data, err := os.ReadFile(path)
	if err != nil {
		return in, fmt.Errorf("orchestrator: read shard input %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("orchestrator: decode shard input %s: %w", path, err)
	}
	return in, nil
}

func writeJSONFile(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("orchestrator: mkdir %s: %w", filepath.Dir(path), err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("orchestrator: encode %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("orchestrator: write %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

func WriteShardInput(path string, in ShardInput) error { return writeJSONFile(path, in) }

func ReadShardOutput(path string) (ShardOutput, error) {
	var out ShardOutput
	data, err := os.ReadFile(path)
	if err != nil {
		return out, fmt.Errorf("orchestrator: read shard output %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("orchestrator: decode shard output %s: %w", path, err)
	}
	return out, nil
}

func WriteShardOutput(path string, out ShardOutput) error { return writeJSONFile(path, out) }

// searchUniverseSharded splits grid into one shard per worker and runs
// each shard as a subprocess (re-invoking this same binary with the
// hidden "run-shard" command), isolating the strategy sweep from the
// "26% hang / unbounded memory growth" failure mode a very large strategy
// grid produces in one long-lived process: a crashing or leaking shard
// fails on its own without taking the rest of the run down with it.
// A shard whose output file already exists is treated as already
// completed and skipped, so a retry after a partial failure only
// re-spawns the shards that actually failed.
func (o *Orchestrator) searchUniverseSharded(ctx context.Context, runPrefix string, universe types.Universe, grid []types.StrategyInstance) ([]types.BacktestResult, map[string]types.WalkForwardReport, error) {
	numShards := o.cfg.NumWorkers
	if numShards <= 0 {
		numShards = 1
	}
	chunks := workers.Shard(grid, numShards)

	binary, err := os.Executable()
	if err != nil {
		return nil, nil, fmt.Errorf("orchestrator: resolve self binary for shard spawn: %w", err)
	}
	runner := workers.NewShardRunner(o.logger, binary, []string{"run-shard"})

	poolCfg := workers.DefaultPoolConfig("strategy-shards")
	poolCfg.NumWorkers = len(chunks)
	poolCfg.QueueSize = len(chunks) + 1
	poolCfg.OnActiveChange = func(delta int) { o.metrics.ActiveWorkers.Add(float64(delta)) }
	pool := workers.NewPool(o.logger, poolCfg)
	pool.Start()
	defer pool.Stop()

	tasks := make([]workers.ShardTask, len(chunks))
	var pending []workers.ShardTask
	for i, chunk := range chunks {
		id := fmt.Sprintf("shard-%d", i)
		inputPath := o.cache.Path(runPrefix, ".shards", id+".input.json")
		outputPath := o.cache.Path(runPrefix, ".shards", id+".output.json")
		tasks[i] = workers.ShardTask{ID: id, InputPath: inputPath, OutputPath: outputPath}

		if _, err := os.Stat(outputPath); err == nil {
			o.logger.Info("skipping already-completed strategy shard", zap.String("shardId", id))
			continue
		}
		if err := WriteShardInput(inputPath, ShardInput{RunConfig: o.cfg, Universe: universe, Instances: chunk}); err != nil {
			return nil, nil, err
		}
		pending = append(pending, tasks[i])
	}

	crashed := make(map[string]error, len(pending))
	for i, err := range runner.RunAll(ctx, pool, pending) {
		if err != nil {
			crashed[pending[i].ID] = err
		}
	}

	var results []types.BacktestResult
	walkForward := make(map[string]types.WalkForwardReport)
	var firstErr error

	for _, task := range tasks {
		if err, failed := crashed[task.ID]; failed {
			o.metrics.WorkerCrashes.Inc()
			o.logger.Error("strategy shard crashed", zap.String("shardId", task.ID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out, err := ReadShardOutput(task.OutputPath)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, out.Results...)
		for name, wf := range out.WalkForward {
			walkForward[name] = wf
		}
		o.metrics.BacktestsRun.Add(float64(len(out.Results)))
	}
	return results, walkForward, firstErr
}
