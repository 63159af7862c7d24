package strategy

import "github.com/quantlab/fxlab/pkg/types"

// LotSizeGrid expands a base lot-size list into a Kelly-scaled grid when
// enabled, following the teacher's fractional-Kelly position sizer: full
// Kelly is capped and then scaled by a fixed fraction, same as
// PositionSizer.calculateKelly + KellyFraction, adapted here to scale a
// discrete lot-size menu instead of a continuous dollar allocation.
type LotSizeGrid struct {
	KellyFraction float64
}

// NewLotSizeGrid returns a grid with the teacher's default quarter-Kelly
// fraction.
func NewLotSizeGrid() LotSizeGrid {
	return LotSizeGrid{KellyFraction: 0.25}
}

// Expand returns the lot sizes to backtest for one strategy instance. If
// cfg.UseKellyLotSizing is false, or no trade history is available yet
// to estimate win rate / payoff, it returns cfg.LotSizes unchanged.
// Otherwise it scales each configured lot size by the fractional-Kelly
// multiplier implied by winRate/avgWinPips/avgLossPips, clamped to
// [0.1x, 3x] of the base size so the grid never proposes a lot size far
// outside the configured menu.
func (g LotSizeGrid) Expand(cfg types.StrategyGridConfig, winRate, avgWinPips, avgLossPips float64) []float64 {
	if !cfg.UseKellyLotSizing {
		return cfg.LotSizes
	}
	kelly := KellyFraction(winRate, avgWinPips, avgLossPips)
	if kelly <= 0 {
		return cfg.LotSizes
	}
	mult := kelly * g.KellyFraction * 4 // with the default quarter-Kelly fraction, mult equals the raw Kelly fraction
	if mult < 0.1 {
		mult = 0.1
	}
	if mult > 3.0 {
		mult = 3.0
	}
	out := make([]float64, len(cfg.LotSizes))
	for i, base := range cfg.LotSizes {
		out[i] = base * mult
	}
	return out
}

// KellyFraction implements f* = p - q/b (Kelly Criterion), where p is
// win probability, q = 1-p, and b is the average win/loss payoff ratio.
// Returns 0 when the edge is non-positive or inputs are degenerate.
func KellyFraction(winRate, avgWinPips, avgLossPips float64) float64 {
	if winRate <= 0 || winRate >= 1 || avgLossPips <= 0 {
		return 0
	}
	p := winRate
	q := 1 - p
	b := avgWinPips / avgLossPips
	if b <= 0 {
		return 0
	}
	kelly := p - q/b
	if kelly < 0 {
		return 0
	}
	if kelly > 1 {
		return 1
	}
	return kelly
}
