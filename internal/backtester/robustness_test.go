package backtester

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/quantlab/fxlab/pkg/types"
)

func TestApplyRobustnessSkippedWhenDisabled(t *testing.T) {
	result := &types.BacktestResult{Trades: []types.TradeRecord{{PnLUSD: decimal.NewFromFloat(10)}}}
	cfg := types.DefaultBacktestConfig()
	cfg.EnableMonteCarlo = false
	ApplyRobustness(result, cfg, 1)

	if result.RobustnessP5 != 0 || result.RobustnessP95 != 0 || result.ProbabilityRuin != 0 {
		t.Fatalf("expected no robustness fields set when Monte Carlo disabled, got %+v", result)
	}
}

func TestApplyRobustnessDeterministicForSameSeed(t *testing.T) {
	trades := []types.TradeRecord{
		{PnLUSD: decimal.NewFromFloat(50)},
		{PnLUSD: decimal.NewFromFloat(-20)},
		{PnLUSD: decimal.NewFromFloat(30)},
	}
	cfg := types.DefaultBacktestConfig()
	cfg.EnableMonteCarlo = true
	cfg.MonteCarloIters = 200

	r1 := &types.BacktestResult{Trades: trades}
	r2 := &types.BacktestResult{Trades: trades}
	ApplyRobustness(r1, cfg, 7)
	ApplyRobustness(r2, cfg, 7)

	if r1.RobustnessP5 != r2.RobustnessP5 || r1.RobustnessP95 != r2.RobustnessP95 {
		t.Fatalf("expected identical seed to produce identical percentiles, got %+v vs %+v", r1, r2)
	}
	if r1.RobustnessP5 > r1.RobustnessP95 {
		t.Fatalf("expected P5 <= P95, got p5=%v p95=%v", r1.RobustnessP5, r1.RobustnessP95)
	}
}

func TestMonteCarloRobustnessNoTradesIsZero(t *testing.T) {
	p5, p95, ruin := monteCarloRobustness(nil, decimal.NewFromInt(10000), 100, 1)
	if p5 != 0 || p95 != 0 || ruin != 0 {
		t.Fatalf("expected zero results for no trades, got p5=%v p95=%v ruin=%v", p5, p95, ruin)
	}
}
