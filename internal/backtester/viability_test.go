package backtester

import (
	"testing"

	"github.com/quantlab/fxlab/pkg/types"
)

func strongResult() types.BacktestResult {
	return types.BacktestResult{
		NTrades:      100,
		WinRate:      0.62,
		TotalReturn:  0.30,
		SharpeRatio:  1.8,
		SortinoRatio: 2.2,
		CalmarRatio:  1.5,
		MaxDrawdown:  0.08,
		ProfitFactor: 2.3,
		Expectancy:   0.01,
	}
}

func weakResult() types.BacktestResult {
	return types.BacktestResult{
		NTrades:      10,
		WinRate:      0.20,
		TotalReturn:  -0.15,
		SharpeRatio:  -0.5,
		SortinoRatio: -0.2,
		CalmarRatio:  -0.1,
		MaxDrawdown:  0.45,
		ProfitFactor: 0.6,
		Expectancy:   -0.02,
	}
}

func TestViabilityCheckerPassesStrongResult(t *testing.T) {
	vc := NewViabilityChecker(DefaultViabilityThresholds())
	report := vc.Check(strongResult(), nil)
	if !report.IsViable {
		t.Fatalf("expected a strong result to be viable, got issues: %+v", report.Issues)
	}
	if report.Grade == "F" {
		t.Fatalf("expected better than an F grade, got %+v", report)
	}
}

func TestViabilityCheckerFailsWeakResult(t *testing.T) {
	vc := NewViabilityChecker(DefaultViabilityThresholds())
	report := vc.Check(weakResult(), nil)
	if report.IsViable {
		t.Fatalf("expected a weak result to fail viability, got %+v", report)
	}
	if !hasCriticalIssues(report.Issues) {
		t.Fatalf("expected negative Sharpe/expectancy to register as critical issues, got %+v", report.Issues)
	}
}

func TestViabilityCheckerWalkForwardInconsistencyFlagged(t *testing.T) {
	vc := NewViabilityChecker(DefaultViabilityThresholds())
	wf := &types.WalkForwardReport{
		Windows:     []types.WalkForwardWindow{{}, {}},
		Consistency: 0.2,
		Robustness:  0.1,
	}
	report := vc.Check(strongResult(), wf)
	foundConsistency := false
	for _, issue := range report.Issues {
		if issue.Metric == "walk_forward_consistency" {
			foundConsistency = true
		}
	}
	if !foundConsistency {
		t.Fatalf("expected a low walk-forward consistency to be flagged, got %+v", report.Issues)
	}
}

func TestAggressiveThresholdsAreLooserThanConservative(t *testing.T) {
	agg := AggressiveViabilityThresholds()
	cons := ConservativeViabilityThresholds()
	if agg.MinSharpeRatio >= cons.MinSharpeRatio {
		t.Fatalf("expected aggressive thresholds to require a lower Sharpe than conservative")
	}
	if agg.MaxDrawdown <= cons.MaxDrawdown {
		t.Fatalf("expected aggressive thresholds to tolerate more drawdown than conservative")
	}
}
