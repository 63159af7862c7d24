// Package ranker computes the composite multi-objective score used to
// order BacktestResult values within a run. The min-max normalize, weigh,
// and sum shape follows the teacher's DataQualityValidator composite
// score (internal/data/quality.go's calculateQualityScore), generalized
// from a single fixed penalty set to a configurable weighted metric set.
package ranker

import (
	"sort"

	"github.com/quantlab/fxlab/pkg/types"
)

// metricExtractors maps the BacktestResult fields a RankerConfig.Weights
// entry may reference. Any weight key not in this list is ignored.
var metricExtractors = map[string]func(types.BacktestResult) float64{
	"sharpe_ratio":  func(r types.BacktestResult) float64 { return r.SharpeRatio },
	"sortino_ratio": func(r types.BacktestResult) float64 { return r.SortinoRatio },
	"calmar_ratio":  func(r types.BacktestResult) float64 { return r.CalmarRatio },
	"profit_factor": func(r types.BacktestResult) float64 { return r.ProfitFactor },
	"total_return":  func(r types.BacktestResult) float64 { return r.TotalReturn },
	"win_rate":      func(r types.BacktestResult) float64 { return r.WinRate },
	"expectancy":    func(r types.BacktestResult) float64 { return r.Expectancy },
}

// Rank filters results below cfg.MinTrades, deduplicates by strategy name
// (keeping the highest total_return instance across lot sizes), min-max
// normalizes every weighted metric across the surviving set, and returns
// RankedRow values sorted by descending composite score. Ties break by
// strategy name for a stable, permutation-invariant order.
func Rank(results []types.BacktestResult, cfg types.RankerConfig) []types.RankedRow {
	eligible := make([]types.BacktestResult, 0, len(results))
	for _, r := range results {
		if r.NTrades >= cfg.MinTrades {
			eligible = append(eligible, r)
		}
	}
	eligible = dedupByStrategy(eligible)
	if len(eligible) == 0 {
		return nil
	}

	ranges := computeRanges(eligible, cfg.Weights)

	rows := make([]types.RankedRow, len(eligible))
	for i, r := range eligible {
		rows[i] = types.RankedRow{Result: r, Score: compositeScore(r, cfg.Weights, ranges)}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].Result.StrategyName < rows[j].Result.StrategyName
	})
	return rows
}

// dedupByStrategy keeps, for each StrategyName, the result with the
// highest TotalReturn among its lot-size variants.
func dedupByStrategy(results []types.BacktestResult) []types.BacktestResult {
	best := make(map[string]types.BacktestResult)
	order := make([]string, 0, len(results))
	for _, r := range results {
		cur, ok := best[r.StrategyName]
		if !ok {
			order = append(order, r.StrategyName)
			best[r.StrategyName] = r
			continue
		}
		if r.TotalReturn > cur.TotalReturn {
			best[r.StrategyName] = r
		}
	}
	out := make([]types.BacktestResult, 0, len(order))
	for _, name := range order {
		out = append(out, best[name])
	}
	return out
}

type metricRange struct {
	min, max float64
}

func computeRanges(results []types.BacktestResult, weights map[string]float64) map[string]metricRange {
	ranges := make(map[string]metricRange, len(weights))
	for name := range weights {
		extract, ok := metricExtractors[name]
		if !ok {
			continue
		}
		r := metricRange{min: extract(results[0]), max: extract(results[0])}
		for _, res := range results[1:] {
			v := extract(res)
			if v < r.min {
				r.min = v
			}
			if v > r.max {
				r.max = v
			}
		}
		ranges[name] = r
	}
	return ranges
}

// compositeScore weighs each configured metric's min-max normalized value
// (0 when every eligible result ties on that metric, avoiding a
// divide-by-zero) and sums.
func compositeScore(r types.BacktestResult, weights map[string]float64, ranges map[string]metricRange) float64 {
	var score float64
	for name, weight := range weights {
		extract, ok := metricExtractors[name]
		if !ok {
			continue
		}
		rng, ok := ranges[name]
		if !ok || rng.max == rng.min {
			continue
		}
		normalized := (extract(r) - rng.min) / (rng.max - rng.min)
		score += normalized * weight
	}
	return score
}
