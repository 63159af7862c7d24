// Package orchestrator coordinates a full pipeline run: load and
// quality-gate raw ticks, aggregate candles, sweep the label/feature/
// regime/pattern grid into the STABLE cache tree, sweep the strategy
// grid through the backtester into a RUN cache tree keyed by strategy
// configuration, and rank the results. The overall shape — a
// logger-injected coordinator struct exposing one method per CLI
// surface, backed by a JSON run ledger for checkpoint/resume — follows
// the teacher's orchestrator.go, restructured around this system's
// PAIR/YEAR/STABLE/RUN cache namespacing (internal/config) instead of
// the teacher's live-trading session lifecycle.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quantlab/fxlab/internal/backtester"
	"github.com/quantlab/fxlab/internal/candle"
	"github.com/quantlab/fxlab/internal/config"
	"github.com/quantlab/fxlab/internal/data"
	"github.com/quantlab/fxlab/internal/errs"
	"github.com/quantlab/fxlab/internal/features"
	"github.com/quantlab/fxlab/internal/fingerprint"
	"github.com/quantlab/fxlab/internal/labeling"
	"github.com/quantlab/fxlab/internal/patterns"
	"github.com/quantlab/fxlab/internal/ranker"
	"github.com/quantlab/fxlab/internal/regime"
	"github.com/quantlab/fxlab/internal/store"
	"github.com/quantlab/fxlab/internal/strategy"
	"github.com/quantlab/fxlab/internal/telemetry"
	"github.com/quantlab/fxlab/internal/workers"
	"github.com/quantlab/fxlab/pkg/types"
)

// Orchestrator coordinates one RunConfig's worth of pipeline work.
type Orchestrator struct {
	logger  *zap.Logger
	cfg     types.RunConfig
	loader  *data.Loader
	cache   *store.Store
	metrics *telemetry.Registry
	ledger  *Ledger
	pipSize float64
	runID   string
}

// New wires an Orchestrator from a RunConfig. pipSize is 0.01 for JPY
// crosses and 0.0001 for every other major pair. Every construction is
// stamped with a fresh run ID (surfaced in logs and the light report) so
// overlapping or re-run invocations over the same pair/year are
// distinguishable in aggregated logs even though the RUN cache prefix
// itself is derived from the strategy/backtest config fingerprint, not
// this ID.
func New(logger *zap.Logger, cfg types.RunConfig, pipSize float64) (*Orchestrator, error) {
	cache, err := store.New(cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	ledger, err := OpenLedger(cache.Path(cfg.Pair, fmt.Sprintf("%d", cfg.Year), "ledger.json"))
	if err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	logger = logger.With(zap.String("runId", runID), zap.String("pair", cfg.Pair), zap.Int("year", cfg.Year))
	return &Orchestrator{
		logger:  logger,
		cfg:     cfg,
		loader:  data.NewLoader(cfg.DataDir),
		cache:   cache,
		metrics: telemetry.New(),
		ledger:  ledger,
		pipSize: pipSize,
		runID:   runID,
	}, nil
}

// RunID returns the identifier stamped on this Orchestrator at
// construction time.
func (o *Orchestrator) RunID() string { return o.runID }

// Metrics exposes the prometheus registry for a caller that wants to
// serve it over HTTP.
func (o *Orchestrator) Metrics() *telemetry.Registry { return o.metrics }

func universeLedgerKey(stage string, u types.Universe) string {
	return fmt.Sprintf("%s/%dm_%db", stage, u.IntervalMinutes, u.LookbackPeriods)
}

// forEachUniverse runs fn once per configured universe, in parallel,
// bounded by cfg.NumWorkers via a workers.Pool — each universe's STABLE/
// RUN artifacts are independent, so there is no cross-universe ordering
// requirement. The first error observed is returned after every
// in-flight universe finishes; partial successes are already durably
// recorded in the ledger by fn itself before it returns.
func (o *Orchestrator) forEachUniverse(fn func(universe types.Universe) error) error {
	numWorkers := o.cfg.NumWorkers
	if numWorkers <= 0 {
		numWorkers = 1
	}
	poolCfg := workers.DefaultPoolConfig("orchestrator")
	poolCfg.NumWorkers = numWorkers
	poolCfg.QueueSize = len(o.cfg.Universes) + 1
	poolCfg.OnActiveChange = func(delta int) { o.metrics.ActiveWorkers.Add(float64(delta)) }
	pool := workers.NewPool(o.logger, poolCfg)
	pool.Start()
	defer pool.Stop()

	var wg sync.WaitGroup
	errs := make([]error, len(o.cfg.Universes))
	for i, universe := range o.cfg.Universes {
		i, universe := i, universe
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = pool.SubmitWait(workers.TaskFunc(func() error {
				return fn(universe)
			}))
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// GenerateBase loads and quality-gates the pair/year's ticks, then for
// every configured universe aggregates candles and sweeps the label,
// feature, regime, and pattern grids into the STABLE cache tree.
// Already-completed universes (per the ledger) are skipped, so a killed
// and restarted run resumes rather than recomputing from scratch.
func (o *Orchestrator) GenerateBase(ctx context.Context) error {
	ticks, err := o.loader.Load(o.cfg.Pair, o.cfg.Year)
	if err != nil {
		return err
	}
	report, err := data.Gate(o.cfg.Pair, o.cfg.Year, ticks, o.pipSize, data.DefaultQualityGateConfig())
	if err != nil {
		return err
	}
	if !report.Usable {
		return &errs.InputError{Pair: o.cfg.Pair, Year: o.cfg.Year, Reason: fmt.Sprintf("quality score %d below threshold", report.QualityScore)}
	}
	o.logger.Info("tick data passed quality gate",
		zap.String("pair", o.cfg.Pair), zap.Int("year", o.cfg.Year),
		zap.Int("ticks", len(ticks)), zap.Int("qualityScore", report.QualityScore))

	agg := candle.NewMulti(o.cfg.Universes, o.pipSize)
	for _, t := range ticks {
		if err := agg.Push(t); err != nil {
			return &errs.KernelError{Kernel: "candle", Cause: err}
		}
	}
	allCandles := agg.Finish()
	candlesByUniverse := make(map[types.Universe][]types.Candle, len(o.cfg.Universes))
	for i, universe := range o.cfg.Universes {
		candlesByUniverse[universe] = allCandles[i]
	}

	return o.forEachUniverse(func(universe types.Universe) error {
		key := universeLedgerKey("generate-base", universe)
		if o.ledger.Status(key) == StageDone {
			return nil
		}
		if err := o.generateBaseForUniverse(ctx, universe, candlesByUniverse[universe]); err != nil {
			o.ledger.Record(key, StageFailed, err)
			return err
		}
		return o.ledger.Record(key, StageDone, nil)
	})
}

func (o *Orchestrator) generateBaseForUniverse(ctx context.Context, universe types.Universe, candles []types.Candle) error {
	prefix := config.StablePrefix(o.cfg, universe)
	candleFP := fingerprint.Candles(candles)

	if err := o.cache.Write(prefix+"/candles.bin", candleFP, store.EncodeCandles(candles)); err != nil {
		return err
	}
	o.metrics.CandlesAggregated.Add(float64(len(candles)))

	intervalNS := int64(universe.IntervalMinutes) * 60_000_000_000
	labelConfigs := make([]types.LabelConfig, 0)
	for _, target := range o.cfg.LabelGrid.TargetPips {
		for _, stop := range o.cfg.LabelGrid.StopPips {
			for _, bars := range o.cfg.LabelGrid.HorizonBars {
				labelConfigs = append(labelConfigs, types.LabelConfig{
					TargetPips: target, StopPips: stop, HorizonNS: int64(bars) * intervalNS,
				})
			}
		}
	}

	engine := labeling.New(o.pipSize)
	batches, err := engine.ComputeGrid(ctx, candles, universe.IntervalMinutes, labelConfigs)
	if err != nil {
		return &errs.KernelError{Kernel: "labeling", Cause: err}
	}
	for _, b := range batches {
		b := b
		fp := fingerprint.Combine("label", candleFP, fingerprint.LabelConfig(b.Config))
		relPath := fmt.Sprintf("%s/labels/%.0f_%.0f_%d_%s.bin", prefix, b.Config.TargetPips, b.Config.StopPips, b.Config.HorizonNS, b.Direction)
		if err := o.cache.Write(relPath, fp, store.EncodeLabelBatch(&b)); err != nil {
			return err
		}
		o.metrics.LabelsComputed.Add(float64(b.Len()))
	}

	schema := features.Schema(o.cfg.Features)
	rows := make([]types.FeatureVector, len(candles))
	for i := range candles {
		rows[i] = features.Extract(candles, i, o.cfg.Features)
	}
	featureFP := fingerprint.Combine("features", candleFP, fingerprint.FeatureSchema(schema))
	if err := o.cache.Write(prefix+"/features.bin", featureFP, store.EncodeFeatureMatrix(schema, rows)); err != nil {
		return err
	}
	o.metrics.FeaturesComputed.Add(float64(len(rows)))

	detector := regime.New(o.logger, o.cfg.Regime)
	assignments, err := detector.Fit(rows)
	if err != nil {
		return &errs.KernelError{Kernel: "regime", Cause: err}
	}
	regimeBytes, err := json.Marshal(assignments)
	if err != nil {
		return fmt.Errorf("orchestrator: marshal regime assignments: %w", err)
	}
	regimeFP := fingerprint.Combine("regime", featureFP)
	if err := o.cache.Write(prefix+"/regimes.json", regimeFP, regimeBytes); err != nil {
		return err
	}

	patternRows := buildPatternRows(candles, rows, assignments, labelConfigs, batches, o.pipSize)
	miner := patterns.New(o.cfg.Patterns, schema)
	catalog := types.PatternCatalog{
		Records:           miner.Mine(patternRows),
		FeatureImportance: patterns.Normalize(miner.FeatureImportance(patternRows, int64(universe.IntervalMinutes)*1000+int64(universe.LookbackPeriods))),
	}
	patternBytes, err := json.Marshal(catalog)
	if err != nil {
		return fmt.Errorf("orchestrator: marshal pattern catalog: %w", err)
	}
	patternFP := fingerprint.Combine("patterns", regimeFP)
	if err := o.cache.Write(prefix+"/patterns.json", patternFP, patternBytes); err != nil {
		return err
	}
	o.logger.Debug("pattern feature importance",
		zap.Strings("importance", patterns.FormatImportances(catalog.FeatureImportance)))

	// Labels occupy on the order of GBs; once the miner has distilled them
	// into the small patterns.json catalog above, the labels directory
	// serves no further purpose for this universe and is deleted to bound
	// peak disk (mass-testing across pairs/years repeats this per dataset).
	return o.cache.RemoveDir(prefix + "/labels")
}

// buildPatternRows joins feature/regime rows with the Up-direction label
// at the grid's first label config, so the miner has a concrete "did this
// bucket tend to hit TARGET" hit signal. Using one representative config
// rather than the full grid keeps the miner's bucket population
// meaningful instead of diluted across every grid cell.
func buildPatternRows(candles []types.Candle, featureRows []types.FeatureVector, assignments []types.RegimeAssignment, configs []types.LabelConfig, batches []types.LabelBatch, pipSize float64) []patterns.Row {
	if len(configs) == 0 || len(batches) == 0 {
		return nil
	}
	var upBatch *types.LabelBatch
	for i := range batches {
		if batches[i].Direction == types.Up {
			b := batches[i]
			upBatch = &b
			break
		}
	}
	if upBatch == nil {
		return nil
	}

	rows := make([]patterns.Row, 0, len(candles))
	for i := 1; i < len(candles) && i < len(featureRows) && i < len(assignments) && i < upBatch.Len(); i++ {
		absPips := (candles[i].Close - candles[i-1].Close) / pipSize
		if absPips < 0 {
			absPips = -absPips
		}
		level, ok := types.ClassifyMovement(absPips)
		if !ok {
			continue
		}
		dir := types.Up
		if candles[i].Close < candles[i-1].Close {
			dir = types.Down
		}
		rows = append(rows, patterns.Row{
			Features:  featureRows[i],
			RegimeID:  assignments[i].RegimeID,
			Level:     level,
			Direction: dir,
			Hit:       upBatch.FirstHit[i] == types.OutcomeTarget,
		})
	}
	return rows
}

// SearchStrategies builds the strategy grid, runs the backtester for
// every (universe, strategy instance, lot size) combination against the
// already-generated STABLE candles/features, and writes results plus the
// ranked table into the RUN cache tree keyed by the strategy/backtest
// configuration fingerprint.
func (o *Orchestrator) SearchStrategies(ctx context.Context) error {
	registry := strategy.NewRegistry()
	grid := strategy.BuildGrid(o.cfg.StrategyGrid, registry)

	return o.forEachUniverse(func(universe types.Universe) error {
		key := universeLedgerKey("search-strategies", universe)
		if o.ledger.Status(key) == StageDone {
			return nil
		}
		if err := o.searchUniverse(ctx, universe, grid); err != nil {
			o.ledger.Record(key, StageFailed, err)
			return err
		}
		return o.ledger.Record(key, StageDone, nil)
	})
}

// searchUniverse backtests grid against universe's STABLE candles, either
// in-process or, when RunConfig.SubprocessBatch is set, by splitting grid
// into subprocess-isolated shards (searchUniverseSharded) — see spec §4.I
// Batching and §5 Inter-task process isolation.
func (o *Orchestrator) searchUniverse(ctx context.Context, universe types.Universe, grid []types.StrategyInstance) error {
	stablePrefix := config.StablePrefix(o.cfg, universe)
	_, candleFP, err := o.cache.ReadAny(stablePrefix + "/candles.bin")
	if err != nil {
		return err
	}
	runPrefix := config.RunPrefix(o.cfg, universe)

	var results []types.BacktestResult
	var walkForwardByStrategy map[string]types.WalkForwardReport

	if o.cfg.SubprocessBatch {
		results, walkForwardByStrategy, err = o.searchUniverseSharded(ctx, runPrefix, universe, grid)
		if err != nil {
			return err
		}
	} else {
		out, err := RunShard(o.logger, ShardInput{RunConfig: o.cfg, Universe: universe, Instances: grid})
		if err != nil {
			return err
		}
		results = out.Results
		walkForwardByStrategy = out.WalkForward
		o.metrics.BacktestsRun.Add(float64(len(results)))
	}

	resultBytes, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("orchestrator: marshal backtest results: %w", err)
	}
	resultsFP := fingerprint.Combine("backtest_results", candleFP)
	if err := o.cache.Write(runPrefix+"/results.json", resultsFP, resultBytes); err != nil {
		return err
	}

	ranked := ranker.Rank(results, o.cfg.Ranker)
	rankedBytes, err := json.Marshal(ranked)
	if err != nil {
		return fmt.Errorf("orchestrator: marshal ranked rows: %w", err)
	}
	if err := o.cache.Write(runPrefix+"/ranked.json", resultsFP, rankedBytes); err != nil {
		return err
	}

	lightReport := buildLightReport(o.runID, o.cfg.Pair, o.cfg.Year, universe, ranked, walkForwardByStrategy)
	lightBytes, err := json.Marshal(lightReport)
	if err != nil {
		return fmt.Errorf("orchestrator: marshal light report: %w", err)
	}
	return o.cache.Write(runPrefix+"/LIGHT_REPORT.json", resultsFP, lightBytes)
}

// baseLotSize picks the representative lot size a walk-forward sweep
// evaluates a strategy at, ahead of the full per-lot backtest grid.
func baseLotSize(cfg types.StrategyGridConfig) float64 {
	if len(cfg.LotSizes) == 0 {
		return 0.1
	}
	return cfg.LotSizes[0]
}

// buildLightReport gates every ranked row through the default viability
// checker and attaches its walk-forward report (when computed), producing
// the human-readable final ranking named in the external interface.
func buildLightReport(runID, pair string, year int, universe types.Universe, ranked []types.RankedRow, walkForward map[string]types.WalkForwardReport) types.LightReport {
	checker := backtester.NewViabilityChecker(backtester.DefaultViabilityThresholds())
	rows := make([]types.LightReportRow, 0, len(ranked))
	for _, row := range ranked {
		var wf *types.WalkForwardReport
		if report, ok := walkForward[row.Result.StrategyName]; ok {
			report := report
			wf = &report
		}
		rows = append(rows, types.LightReportRow{
			StrategyName: row.Result.StrategyName,
			Ranked:       row,
			Viability:    checker.Check(row.Result, wf),
			WalkForward:  wf,
		})
	}
	return types.LightReport{RunID: runID, Pair: pair, Year: year, Universe: universe, Rows: rows}
}

// CleanStrategyCache removes every RUN tree for the current pair/year,
// leaving STABLE (candles/labels/features/regimes/patterns) intact so a
// fresh strategy sweep doesn't repay the cost of regenerating base data.
func (o *Orchestrator) CleanStrategyCache() error {
	for _, universe := range o.cfg.Universes {
		runDir := fmt.Sprintf("%s/%d/RUN/%dm_%db", o.cfg.Pair, o.cfg.Year, universe.IntervalMinutes, universe.LookbackPeriods)
		if err := o.cache.RemoveDir(runDir); err != nil {
			return err
		}
	}
	return nil
}

// Status returns every ledger entry recorded for this pair/year.
func (o *Orchestrator) Status() []LedgerEntry {
	return o.ledger.All()
}

// RetryFailed re-runs GenerateBase/SearchStrategies for whichever stages
// the ledger currently marks StageFailed.
func (o *Orchestrator) RetryFailed(ctx context.Context) error {
	failed := o.ledger.Failed()
	if len(failed) == 0 {
		return nil
	}
	needsBase, needsSearch := false, false
	for _, e := range failed {
		switch {
		case hasPrefix(e.Key, "generate-base"):
			needsBase = true
		case hasPrefix(e.Key, "search-strategies"):
			needsSearch = true
		}
	}
	if needsBase {
		if err := o.GenerateBase(ctx); err != nil {
			return err
		}
	}
	if needsSearch {
		return o.SearchStrategies(ctx)
	}
	return nil
}

func hasPrefix(key, prefix string) bool {
	return len(key) >= len(prefix) && key[:len(prefix)] == prefix
}

// Fresh wipes the ledger and the full pair/year cache tree (STABLE and
// RUN both), so the next GenerateBase/SearchStrategies starts clean.
func (o *Orchestrator) Fresh() error {
	if err := o.ledger.Reset(); err != nil {
		return err
	}
	return o.cache.RemoveDir(fmt.Sprintf("%s/%d", o.cfg.Pair, o.cfg.Year))
}
