package backtester

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/quantlab/fxlab/pkg/types"
)

// monteCarloRobustness bootstrap-resamples (with replacement) the trade
// P&L sequence iterations times and reports the 5th/95th percentile
// final-equity outcomes and the fraction of resampled paths that ever
// go non-positive (probability of ruin). This follows the teacher's
// Monte Carlo simulator's trade-sequence bootstrap, reduced to the
// three fields BacktestResult carries instead of a full distribution
// report — the rest of that simulator's machinery (confidence-interval
// tables, CAGR/volatility distributions) has no consumer in this run
// pipeline and is not reproduced here.
func monteCarloRobustness(trades []types.TradeRecord, initialCapital decimal.Decimal, iterations int, seed int64) (p5, p95, probRuin float64) {
	if len(trades) == 0 || iterations <= 0 {
		return 0, 0, 0
	}
	base, _ := initialCapital.Float64()
	pnls := make([]float64, len(trades))
	for i, t := range trades {
		v, _ := t.PnLUSD.Float64()
		pnls[i] = v
	}

	state := uint64(seed)
	next := func() uint64 {
		state = state*6364136223846793005 + 1442695040888963407
		return state
	}

	finals := make([]float64, iterations)
	ruinCount := 0
	for iter := 0; iter < iterations; iter++ {
		equity := base
		ruined := false
		for j := 0; j < len(pnls); j++ {
			idx := next() % uint64(len(pnls))
			equity += pnls[idx]
			if equity <= 0 {
				ruined = true
			}
		}
		finals[iter] = equity
		if ruined {
			ruinCount++
		}
	}

	sort.Float64s(finals)
	p5 = percentile(finals, 0.05)
	p95 = percentile(finals, 0.95)
	probRuin = float64(ruinCount) / float64(iterations)
	return p5, p95, probRuin
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// ApplyRobustness runs monteCarloRobustness against result.Trades when
// cfg.EnableMonteCarlo is set, attaching the P5/P95/ruin fields.
func ApplyRobustness(result *types.BacktestResult, cfg types.BacktestConfig, seed int64) {
	if !cfg.EnableMonteCarlo {
		return
	}
	p5, p95, ruin := monteCarloRobustness(result.Trades, cfg.InitialCapital, cfg.MonteCarloIters, seed)
	result.RobustnessP5 = p5
	result.RobustnessP95 = p95
	result.ProbabilityRuin = ruin
}
