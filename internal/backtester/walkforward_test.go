package backtester

import (
	"testing"

	"go.uber.org/zap"

	"github.com/quantlab/fxlab/internal/strategy"
	"github.com/quantlab/fxlab/pkg/types"
)

// alwaysFlatRuntime never signals; used to isolate window-generation logic
// from simulator trade-walking behavior.
type alwaysFlatRuntime struct{ strategy.BaseRuntime }

func (r *alwaysFlatRuntime) Name() string { return "flat" }

func (r *alwaysFlatRuntime) OnCandle(strategy.Context) *strategy.Signal { return nil }

func TestWalkForwardDisabledReturnsZeroReport(t *testing.T) {
	wf := NewWalkForwardAnalyzer(zap.NewNop(), types.DefaultBacktestConfig())
	cfg := types.WalkForwardConfig{Enabled: false}
	report := wf.Run(mkCandles(30), nil, &alwaysFlatRuntime{}, 1, 0.1, cfg)
	if len(report.Windows) != 0 {
		t.Fatalf("expected no windows when disabled, got %d", len(report.Windows))
	}
}

func TestWalkForwardGeneratesSlidingWindows(t *testing.T) {
	candles := mkCandles(30)
	wf := NewWalkForwardAnalyzer(zap.NewNop(), types.DefaultBacktestConfig())
	cfg := types.WalkForwardConfig{Enabled: true, WindowBars: 10, StepBars: 5, InSampleFraction: 0.7}
	report := wf.Run(candles, nil, &alwaysFlatRuntime{}, 1, 0.1, cfg)

	if len(report.Windows) == 0 {
		t.Fatal("expected at least one walk-forward window")
	}
	for _, w := range report.Windows {
		if w.InSampleEndIdx != w.OutSampleStartIdx {
			t.Fatalf("expected in-sample end to abut out-of-sample start, got %+v", w)
		}
		if w.OutSampleEndIdx-w.InSampleStartIdx != cfg.WindowBars {
			t.Fatalf("expected each window to span WindowBars candles, got %+v", w)
		}
	}
}

func TestWalkForwardTooFewCandlesReturnsZeroReport(t *testing.T) {
	wf := NewWalkForwardAnalyzer(zap.NewNop(), types.DefaultBacktestConfig())
	cfg := types.WalkForwardConfig{Enabled: true, WindowBars: 100, StepBars: 50, InSampleFraction: 0.8}
	report := wf.Run(mkCandles(10), nil, &alwaysFlatRuntime{}, 1, 0.1, cfg)
	if len(report.Windows) != 0 {
		t.Fatalf("expected zero windows when candles are shorter than one window, got %d", len(report.Windows))
	}
}

func TestRobustnessRatioClampedToRange(t *testing.T) {
	if got := robustnessRatio(0, 10); got != 0 {
		t.Fatalf("expected zero in-sample return to yield 0, got %v", got)
	}
	if got := robustnessRatio(1, -5); got != 0 {
		t.Fatalf("expected a negative ratio to clamp to 0, got %v", got)
	}
	if got := robustnessRatio(1, 10); got != 2 {
		t.Fatalf("expected an outsized ratio to clamp to 2, got %v", got)
	}
}
