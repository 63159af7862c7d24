// Package backtester provides strategy viability assessment: a composite
// pass/fail gate over a BacktestResult's metrics, distinct from the
// Ranker's relative scoring (internal/ranker). Where the Ranker orders
// results against each other, ViabilityChecker asks whether a single
// result clears absolute, configurable bars before it is worth reporting
// at all. Grounded on the teacher's ViabilityChecker; thresholds and
// scoring weights are generalized from the teacher's decimal-typed
// PerformanceMetrics/RiskMetrics/WalkForwardResult to this system's
// float64 BacktestResult and WalkForwardReport.
package backtester

import (
	"github.com/quantlab/fxlab/pkg/types"
)

// ViabilityThresholds defines the minimum requirements for a viable
// strategy. VaR is not modeled in this system (no intraday order book or
// multi-asset exposure to aggregate) and is dropped from the teacher's
// threshold set; see DESIGN.md.
type ViabilityThresholds struct {
	MinSharpeRatio  float64
	MaxDrawdown     float64
	MinProfitFactor float64
	MinWinRate      float64
	MinTrades       int

	MinSortinoRatio float64
	MinCalmarRatio  float64

	MinExpectancy     float64
	MinRecoveryFactor float64

	MinWFConsistency float64
	MinWFRobustness  float64
}

// DefaultViabilityThresholds returns conservative default thresholds.
func DefaultViabilityThresholds() ViabilityThresholds {
	return ViabilityThresholds{
		MinSharpeRatio:    0.5,
		MaxDrawdown:       0.20,
		MinProfitFactor:   1.5,
		MinWinRate:        0.40,
		MinTrades:         30,
		MinSortinoRatio:   0.8,
		MinCalmarRatio:    0.5,
		MinExpectancy:     0,
		MinRecoveryFactor: 1.0,
		MinWFConsistency:  0.60,
		MinWFRobustness:   0.5,
	}
}

// AggressiveViabilityThresholds relaxes every bar for higher risk tolerance.
func AggressiveViabilityThresholds() ViabilityThresholds {
	return ViabilityThresholds{
		MinSharpeRatio:    0.3,
		MaxDrawdown:       0.30,
		MinProfitFactor:   1.2,
		MinWinRate:        0.35,
		MinTrades:         20,
		MinSortinoRatio:   0.5,
		MinCalmarRatio:    0.3,
		MinExpectancy:     0,
		MinRecoveryFactor: 0.5,
		MinWFConsistency:  0.50,
		MinWFRobustness:   0.3,
	}
}

// ConservativeViabilityThresholds tightens every bar for low risk tolerance.
func ConservativeViabilityThresholds() ViabilityThresholds {
	return ViabilityThresholds{
		MinSharpeRatio:    1.0,
		MaxDrawdown:       0.10,
		MinProfitFactor:   2.0,
		MinWinRate:        0.50,
		MinTrades:         50,
		MinSortinoRatio:   1.5,
		MinCalmarRatio:    1.0,
		MinExpectancy:     0.001,
		MinRecoveryFactor: 2.0,
		MinWFConsistency:  0.75,
		MinWFRobustness:   0.7,
	}
}

// ViabilityChecker assesses one BacktestResult against a ViabilityThresholds
// gate. A nil *types.WalkForwardReport is allowed — the walk-forward checks
// are simply skipped and RobustnessScore is reported neutral.
type ViabilityChecker struct {
	thresholds ViabilityThresholds
}

// NewViabilityChecker creates a ViabilityChecker.
func NewViabilityChecker(thresholds ViabilityThresholds) *ViabilityChecker {
	return &ViabilityChecker{thresholds: thresholds}
}

// Check performs the full viability assessment.
func (vc *ViabilityChecker) Check(result types.BacktestResult, wf *types.WalkForwardReport) types.ViabilityReport {
	report := types.ViabilityReport{}

	vc.checkSharpeRatio(result, &report)
	vc.checkMaxDrawdown(result, &report)
	vc.checkProfitFactor(result, &report)
	vc.checkWinRate(result, &report)
	vc.checkTradeCount(result, &report)
	vc.checkSortinoRatio(result, &report)
	vc.checkCalmarRatio(result, &report)
	vc.checkExpectancy(result, &report)
	vc.checkRecoveryFactor(result, &report)
	if wf != nil {
		vc.checkWalkForward(*wf, &report)
	}

	returnScore := vc.returnScore(result)
	riskScore := vc.riskScore(result)
	consistencyScore := vc.consistencyScore(result)
	robustnessScore := vc.robustnessScore(wf)

	report.Score = (returnScore*30 + riskScore*30 + consistencyScore*20 + robustnessScore*20) / 100
	report.Grade = scoreToGrade(report.Score)
	report.IsViable = !hasCriticalIssues(report.Issues) && report.Score >= 60
	report.Summary = summarize(report)
	return report
}

func (vc *ViabilityChecker) checkSharpeRatio(r types.BacktestResult, rep *types.ViabilityReport) {
	if r.SharpeRatio < vc.thresholds.MinSharpeRatio {
		severity := types.SeverityWarning
		if r.SharpeRatio < 0 {
			severity = types.SeverityCritical
		}
		rep.Issues = append(rep.Issues, types.ViabilityIssue{
			Metric: "sharpe_ratio", Actual: r.SharpeRatio, Required: vc.thresholds.MinSharpeRatio,
			Severity: severity, Description: "risk-adjusted return is below threshold",
		})
	} else if r.SharpeRatio > 1.5 {
		rep.Strengths = append(rep.Strengths, "excellent risk-adjusted returns (sharpe > 1.5)")
	}
}

func (vc *ViabilityChecker) checkMaxDrawdown(r types.BacktestResult, rep *types.ViabilityReport) {
	if r.MaxDrawdown > vc.thresholds.MaxDrawdown {
		severity := types.SeverityWarning
		if r.MaxDrawdown > 0.30 {
			severity = types.SeverityCritical
		}
		rep.Issues = append(rep.Issues, types.ViabilityIssue{
			Metric: "max_drawdown", Actual: r.MaxDrawdown, Required: vc.thresholds.MaxDrawdown,
			Severity: severity, Description: "maximum drawdown exceeds acceptable level",
		})
	} else if r.MaxDrawdown < 0.10 {
		rep.Strengths = append(rep.Strengths, "low drawdown risk (< 10%)")
	}
}

func (vc *ViabilityChecker) checkProfitFactor(r types.BacktestResult, rep *types.ViabilityReport) {
	if r.ProfitFactor < vc.thresholds.MinProfitFactor {
		severity := types.SeverityWarning
		if r.ProfitFactor < 1.0 {
			severity = types.SeverityCritical
		}
		rep.Issues = append(rep.Issues, types.ViabilityIssue{
			Metric: "profit_factor", Actual: r.ProfitFactor, Required: vc.thresholds.MinProfitFactor,
			Severity: severity, Description: "profit factor is below threshold",
		})
	} else if r.ProfitFactor > 2.0 {
		rep.Strengths = append(rep.Strengths, "strong profit factor (> 2.0)")
	}
}

func (vc *ViabilityChecker) checkWinRate(r types.BacktestResult, rep *types.ViabilityReport) {
	if r.WinRate < vc.thresholds.MinWinRate {
		severity := types.SeverityWarning
		if r.WinRate < 0.30 {
			severity = types.SeverityCritical
		}
		rep.Issues = append(rep.Issues, types.ViabilityIssue{
			Metric: "win_rate", Actual: r.WinRate, Required: vc.thresholds.MinWinRate,
			Severity: severity, Description: "win rate is below threshold",
		})
	} else if r.WinRate > 0.60 {
		rep.Strengths = append(rep.Strengths, "high win rate (> 60%)")
	}
}

func (vc *ViabilityChecker) checkTradeCount(r types.BacktestResult, rep *types.ViabilityReport) {
	if r.NTrades < vc.thresholds.MinTrades {
		rep.Issues = append(rep.Issues, types.ViabilityIssue{
			Metric: "trade_count", Actual: float64(r.NTrades), Required: float64(vc.thresholds.MinTrades),
			Severity: types.SeverityWarning, Description: "insufficient trades for statistical significance",
		})
	}
}

func (vc *ViabilityChecker) checkSortinoRatio(r types.BacktestResult, rep *types.ViabilityReport) {
	if r.SortinoRatio < vc.thresholds.MinSortinoRatio {
		rep.Issues = append(rep.Issues, types.ViabilityIssue{
			Metric: "sortino_ratio", Actual: r.SortinoRatio, Required: vc.thresholds.MinSortinoRatio,
			Severity: types.SeverityInfo, Description: "downside risk-adjusted return could be better",
		})
	} else if r.SortinoRatio > 2.0 {
		rep.Strengths = append(rep.Strengths, "excellent downside protection (sortino > 2.0)")
	}
}

func (vc *ViabilityChecker) checkCalmarRatio(r types.BacktestResult, rep *types.ViabilityReport) {
	if r.CalmarRatio < vc.thresholds.MinCalmarRatio {
		rep.Issues = append(rep.Issues, types.ViabilityIssue{
			Metric: "calmar_ratio", Actual: r.CalmarRatio, Required: vc.thresholds.MinCalmarRatio,
			Severity: types.SeverityInfo, Description: "return relative to drawdown could be better",
		})
	}
}

func (vc *ViabilityChecker) checkExpectancy(r types.BacktestResult, rep *types.ViabilityReport) {
	if r.Expectancy <= vc.thresholds.MinExpectancy {
		severity := types.SeverityWarning
		if r.Expectancy < 0 {
			severity = types.SeverityCritical
		}
		rep.Issues = append(rep.Issues, types.ViabilityIssue{
			Metric: "expectancy", Actual: r.Expectancy, Required: vc.thresholds.MinExpectancy,
			Severity: severity, Description: "expected value per trade is too low or negative",
		})
	}
}

func (vc *ViabilityChecker) checkRecoveryFactor(r types.BacktestResult, rep *types.ViabilityReport) {
	if r.MaxDrawdown == 0 {
		return
	}
	recovery := r.TotalReturn / r.MaxDrawdown
	if recovery < vc.thresholds.MinRecoveryFactor {
		rep.Issues = append(rep.Issues, types.ViabilityIssue{
			Metric: "recovery_factor", Actual: recovery, Required: vc.thresholds.MinRecoveryFactor,
			Severity: types.SeverityInfo, Description: "returns don't justify the drawdown risk",
		})
	}
}

func (vc *ViabilityChecker) checkWalkForward(wf types.WalkForwardReport, rep *types.ViabilityReport) {
	if len(wf.Windows) == 0 {
		return
	}
	if wf.Consistency < vc.thresholds.MinWFConsistency {
		rep.Issues = append(rep.Issues, types.ViabilityIssue{
			Metric: "walk_forward_consistency", Actual: wf.Consistency, Required: vc.thresholds.MinWFConsistency,
			Severity: types.SeverityWarning, Description: "strategy is inconsistent across different time periods",
		})
	} else {
		rep.Strengths = append(rep.Strengths, "consistent out-of-sample performance")
	}
	if wf.Robustness < vc.thresholds.MinWFRobustness {
		rep.Issues = append(rep.Issues, types.ViabilityIssue{
			Metric: "walk_forward_robustness", Actual: wf.Robustness, Required: vc.thresholds.MinWFRobustness,
			Severity: types.SeverityWarning, Description: "out-of-sample performance lags in-sample significantly",
		})
	}
}

func (vc *ViabilityChecker) returnScore(r types.BacktestResult) int {
	score := 50
	if r.SharpeRatio > 0 {
		score += clamp(int(r.SharpeRatio*20), 0, 30)
	} else {
		score -= 20
	}
	if r.SortinoRatio > 0 {
		score += clamp(int(r.SortinoRatio*10), 0, 20)
	}
	return clamp(score, 0, 100)
}

func (vc *ViabilityChecker) riskScore(r types.BacktestResult) int {
	score := 100 - int(r.MaxDrawdown*200)
	return clamp(score, 0, 100)
}

func (vc *ViabilityChecker) consistencyScore(r types.BacktestResult) int {
	score := int(r.WinRate * 60)
	if r.ProfitFactor > 1 {
		score += clamp(int((r.ProfitFactor-1)*20), 0, 40)
	}
	switch {
	case r.NTrades >= 100:
		score += 20
	case r.NTrades >= 50:
		score += 15
	case r.NTrades >= 30:
		score += 10
	}
	return clamp(score, 0, 100)
}

func (vc *ViabilityChecker) robustnessScore(wf *types.WalkForwardReport) int {
	if wf == nil || len(wf.Windows) == 0 {
		return 50
	}
	return clamp(int(wf.Consistency*100), 0, 100)
}

func scoreToGrade(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

func hasCriticalIssues(issues []types.ViabilityIssue) bool {
	for _, issue := range issues {
		if issue.Severity == types.SeverityCritical {
			return true
		}
	}
	return false
}

func summarize(report types.ViabilityReport) string {
	if !report.IsViable {
		critical := 0
		for _, issue := range report.Issues {
			if issue.Severity == types.SeverityCritical {
				critical++
			}
		}
		if critical > 0 {
			return "strategy is not viable: critical issues present"
		}
		return "strategy does not meet minimum viability requirements"
	}
	switch report.Grade {
	case "A":
		return "excellent strategy with strong risk-adjusted returns and consistency"
	case "B":
		return "good strategy with acceptable metrics"
	case "C":
		return "adequate strategy, address warnings before scaling up"
	default:
		return "marginally viable strategy, improvements recommended"
	}
}

func clamp(value, minVal, maxVal int) int {
	if value < minVal {
		return minVal
	}
	if value > maxVal {
		return maxVal
	}
	return value
}
