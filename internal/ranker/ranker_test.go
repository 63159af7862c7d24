package ranker

import (
	"testing"

	"github.com/quantlab/fxlab/pkg/types"
)

func result(name string, nTrades int, sharpe, totalReturn float64) types.BacktestResult {
	return types.BacktestResult{
		StrategyName: name,
		NTrades:      nTrades,
		SharpeRatio:  sharpe,
		TotalReturn:  totalReturn,
		ProfitFactor: 1.2,
		WinRate:      0.5,
		CalmarRatio:  1.0,
	}
}

func TestRankFiltersBelowMinTrades(t *testing.T) {
	cfg := types.DefaultRankerConfig()
	cfg.MinTrades = 30
	results := []types.BacktestResult{
		result("a", 10, 2.0, 0.3),
		result("b", 40, 1.0, 0.1),
	}
	rows := Rank(results, cfg)
	if len(rows) != 1 || rows[0].Result.StrategyName != "b" {
		t.Fatalf("expected only strategy b to survive the min-trades filter, got %+v", rows)
	}
}

func TestRankDedupesByHighestTotalReturn(t *testing.T) {
	cfg := types.DefaultRankerConfig()
	cfg.MinTrades = 0
	results := []types.BacktestResult{
		result("a", 40, 1.0, 0.1),
		result("a", 40, 1.0, 0.5),
	}
	rows := Rank(results, cfg)
	if len(rows) != 1 {
		t.Fatalf("expected duplicate strategy names collapsed to 1 row, got %d", len(rows))
	}
	if rows[0].Result.TotalReturn != 0.5 {
		t.Fatalf("expected the higher total_return variant retained, got %v", rows[0].Result.TotalReturn)
	}
}

func TestRankOrdersByDescendingScore(t *testing.T) {
	cfg := types.DefaultRankerConfig()
	cfg.MinTrades = 0
	cfg.Weights = map[string]float64{"sharpe_ratio": 1.0}
	results := []types.BacktestResult{
		result("low", 40, 0.5, 0.1),
		result("high", 40, 3.0, 0.1),
	}
	rows := Rank(results, cfg)
	if len(rows) != 2 || rows[0].Result.StrategyName != "high" {
		t.Fatalf("expected high-sharpe strategy ranked first, got %+v", rows)
	}
}

func TestRankStableOnTies(t *testing.T) {
	cfg := types.DefaultRankerConfig()
	cfg.MinTrades = 0
	cfg.Weights = map[string]float64{"sharpe_ratio": 1.0}
	results := []types.BacktestResult{
		result("zeta", 40, 1.0, 0.1),
		result("alpha", 40, 1.0, 0.1),
	}
	rows := Rank(results, cfg)
	if rows[0].Result.StrategyName != "alpha" {
		t.Fatalf("expected alphabetical tie-break, got %+v", rows)
	}
}

func TestRankEmptyInputReturnsNil(t *testing.T) {
	cfg := types.DefaultRankerConfig()
	if rows := Rank(nil, cfg); rows != nil {
		t.Fatalf("expected nil for empty input, got %+v", rows)
	}
}
