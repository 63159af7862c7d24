// Package backtester provides walk-forward analysis for strategy
// validation. Grounded on the teacher's WalkForwardAnalyzer, collapsed
// from calendar-day windows over a live DataLoader/SlippageModel pair to
// bar-index windows over the candle arrays this system already holds in
// memory — there is no live data source to decouple from, so a window is
// simply a candle-index slice rather than a date range.
package backtester

import (
	"go.uber.org/zap"

	"github.com/quantlab/fxlab/internal/strategy"
	"github.com/quantlab/fxlab/pkg/types"
)

// WalkForwardAnalyzer repeatedly runs a Simulator over sliding
// in-sample/out-of-sample candle windows to estimate how much a
// strategy's backtested edge survives outside the window it was
// evaluated on.
type WalkForwardAnalyzer struct {
	logger *zap.Logger
	sim    *Simulator
}

// NewWalkForwardAnalyzer creates a WalkForwardAnalyzer sharing the given
// backtest parameters with every in-sample/out-of-sample run.
func NewWalkForwardAnalyzer(logger *zap.Logger, cfg types.BacktestConfig) *WalkForwardAnalyzer {
	return &WalkForwardAnalyzer{logger: logger, sim: New(logger, cfg)}
}

// Run slides WindowBars-wide windows (stepping StepBars at a time) across
// candles, splitting each window InSampleFraction/remaining between an
// in-sample and out-of-sample leg. rt is reset before every leg so cooldown
// and daily-trade-cap state never leaks across windows. Returns a zero
// report if the config is disabled or candles are too short for even one
// window.
func (wf *WalkForwardAnalyzer) Run(
	candles []types.Candle,
	features []types.FeatureVector,
	rt strategy.Runtime,
	lookback int,
	lotSize float64,
	cfg types.WalkForwardConfig,
) types.WalkForwardReport {
	if !cfg.Enabled || cfg.WindowBars <= 0 {
		return types.WalkForwardReport{}
	}
	windows := wf.generateWindows(len(candles), cfg)
	if len(windows) == 0 {
		return types.WalkForwardReport{}
	}

	report := types.WalkForwardReport{Windows: make([]types.WalkForwardWindow, 0, len(windows))}
	var inSampleReturn, outSampleReturn float64
	profitableOut := 0

	for _, w := range windows {
		rt.Reset()
		inResult := wf.sim.Run(candles[w.inStart:w.inEnd], sliceFeatures(features, w.inStart, w.inEnd), rt, lookback, lotSize)

		rt.Reset()
		outResult := wf.sim.Run(candles[w.outStart:w.outEnd], sliceFeatures(features, w.outStart, w.outEnd), rt, lookback, lotSize)

		inSampleReturn += inResult.TotalReturn
		outSampleReturn += outResult.TotalReturn
		if outResult.NetPnLUSD.IsPositive() {
			profitableOut++
		}

		report.Windows = append(report.Windows, types.WalkForwardWindow{
			InSampleStartIdx:  w.inStart,
			InSampleEndIdx:    w.inEnd,
			OutSampleStartIdx: w.outStart,
			OutSampleEndIdx:   w.outEnd,
			InSample:          inResult,
			OutSample:         outResult,
		})
	}

	report.Consistency = float64(profitableOut) / float64(len(windows))
	report.Robustness = robustnessRatio(inSampleReturn, outSampleReturn)

	wf.logger.Info("walk-forward analysis complete",
		zap.Int("windows", len(windows)),
		zap.Float64("consistency", report.Consistency),
		zap.Float64("robustness", report.Robustness),
	)
	return report
}

func sliceFeatures(features []types.FeatureVector, start, end int) []types.FeatureVector {
	if features == nil {
		return nil
	}
	if end > len(features) {
		end = len(features)
	}
	if start > end {
		return nil
	}
	return features[start:end]
}

type windowBounds struct {
	inStart, inEnd, outStart, outEnd int
}

// generateWindows lays out non-overlapping in-sample/out-of-sample splits
// every StepBars candles across [0, n), stopping once a full window no
// longer fits.
func (wf *WalkForwardAnalyzer) generateWindows(n int, cfg types.WalkForwardConfig) []windowBounds {
	var windows []windowBounds
	inFrac := cfg.InSampleFraction
	if inFrac <= 0 || inFrac >= 1 {
		inFrac = 0.8
	}
	step := cfg.StepBars
	if step <= 0 {
		step = cfg.WindowBars
	}
	inLen := int(float64(cfg.WindowBars) * inFrac)
	if inLen <= 0 {
		inLen = 1
	}

	for start := 0; start+cfg.WindowBars <= n; start += step {
		windows = append(windows, windowBounds{
			inStart:  start,
			inEnd:    start + inLen,
			outStart: start + inLen,
			outEnd:   start + cfg.WindowBars,
		})
	}
	return windows
}

// robustnessRatio is out-of-sample return over in-sample return, clamped
// to [0, 2] (ratios beyond that are no more informative than the cap and
// would otherwise dominate a report dominated by one noisy window).
func robustnessRatio(inSample, outSample float64) float64 {
	if inSample == 0 {
		return 0
	}
	ratio := outSample / inSample
	if ratio < 0 {
		return 0
	}
	if ratio > 2 {
		return 2
	}
	return ratio
}
