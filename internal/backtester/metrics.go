package backtester

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/quantlab/fxlab/pkg/types"
)

// MetricsCalculator computes the performance metrics attached to a
// BacktestResult: win rate, profit factor, expectancy, Sharpe/Sortino/
// Calmar ratios, max drawdown, and the Ulcer Index. Ratio definitions
// follow the teacher's MetricsCalculator; the Ulcer Index is new (the
// teacher never computed one) and follows the standard
// sqrt(mean(drawdown^2)) definition.
type MetricsCalculator struct{}

// NewMetricsCalculator creates a MetricsCalculator.
func NewMetricsCalculator() *MetricsCalculator { return &MetricsCalculator{} }

// Fill populates every derived metric field on result from trades and
// the equity curve. The zero-trade case is a defined boundary, not an
// error: rate metrics are 0, ProfitFactor is 1.0 (neutral), and Sharpe
// is 0 — never NaN or a divide-by-zero panic.
func (mc *MetricsCalculator) Fill(result *types.BacktestResult, trades []types.TradeRecord, equity []types.EquityPoint, initialCapital decimal.Decimal) {
	result.NTrades = len(trades)
	if len(trades) == 0 {
		result.ProfitFactor = 1.0
		return
	}

	var wins, losses int
	var grossWinUSD, grossLossUSD decimal.Decimal
	var largestWin, largestLoss float64
	var netPnL decimal.Decimal
	var commission decimal.Decimal

	for _, t := range trades {
		netPnL = netPnL.Add(t.PnLUSD)
		commission = commission.Add(t.CommissionUSD)
		grossTrade := t.PnLUSD.Add(t.CommissionUSD)
		if t.PnLUSD.GreaterThan(decimal.Zero) {
			wins++
			grossWinUSD = grossWinUSD.Add(grossTrade)
			if t.PnLPips > largestWin {
				largestWin = t.PnLPips
			}
		} else if t.PnLUSD.LessThan(decimal.Zero) {
			losses++
			grossLossUSD = grossLossUSD.Add(grossTrade.Abs())
			if -t.PnLPips > largestLoss {
				largestLoss = -t.PnLPips
			}
		}
	}

	result.GrossPnLUSD = netPnL.Add(commission)
	result.NetPnLUSD = netPnL
	result.TotalCommission = commission
	result.WinRate = float64(wins) / float64(len(trades))
	result.LargestWin = largestWin
	result.LargestLoss = largestLoss

	if wins > 0 {
		avg, _ := grossWinUSD.Div(decimal.NewFromInt(int64(wins))).Float64()
		result.AvgWin = avg
	}
	if losses > 0 {
		avg, _ := grossLossUSD.Div(decimal.NewFromInt(int64(losses))).Float64()
		result.AvgLoss = avg
	}
	if !grossLossUSD.IsZero() {
		pf, _ := grossWinUSD.Div(grossLossUSD).Float64()
		result.ProfitFactor = pf
	} else {
		result.ProfitFactor = 1.0
	}

	winFrac := result.WinRate
	result.Expectancy = winFrac*result.AvgWin - (1-winFrac)*result.AvgLoss

	if !initialCapital.IsZero() {
		tr, _ := netPnL.Div(initialCapital).Float64()
		result.TotalReturn = tr
	}

	returns := perTradeReturns(trades, initialCapital)
	mean, std := meanStdDev(returns)
	if std > 0 {
		result.SharpeRatio = mean / std * math.Sqrt(float64(len(returns)))
	}
	downsideStd := downsideDeviation(returns)
	if downsideStd > 0 {
		result.SortinoRatio = mean / downsideStd * math.Sqrt(float64(len(returns)))
	}

	maxDD := maxDrawdown(equity)
	result.MaxDrawdown = maxDD
	if maxDD > 0 {
		result.CalmarRatio = result.TotalReturn / maxDD
	}
	result.UlcerIndex = ulcerIndex(equity)
}

func perTradeReturns(trades []types.TradeRecord, initialCapital decimal.Decimal) []float64 {
	base, _ := initialCapital.Float64()
	if base == 0 {
		base = 1
	}
	out := make([]float64, len(trades))
	for i, t := range trades {
		pnl, _ := t.PnLUSD.Float64()
		out[i] = pnl / base
	}
	return out
}

func meanStdDev(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range xs {
		sum += v
	}
	mean := sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var sumSq float64
	for _, v := range xs {
		d := v - mean
		sumSq += d * d
	}
	return mean, math.Sqrt(sumSq / float64(len(xs)-1))
}

func downsideDeviation(returns []float64) float64 {
	var negative []float64
	for _, r := range returns {
		if r < 0 {
			negative = append(negative, r)
		}
	}
	if len(negative) == 0 {
		return 0
	}
	_, std := meanStdDev(negative)
	return std
}

// maxDrawdown returns the largest peak-to-trough decline as a positive
// fraction of the peak (0.08 means an 8% drawdown), not a signed ≤0
// value — CalmarRatio divides TotalReturn by it directly, and every
// caller/test in this package already assumes the positive convention.
func maxDrawdown(equity []types.EquityPoint) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak, _ := equity[0].Equity.Float64()
	var maxDD float64
	for _, p := range equity {
		v, _ := p.Equity.Float64()
		if v > peak {
			peak = v
		}
		if peak == 0 {
			continue
		}
		dd := (peak - v) / peak
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// ulcerIndex is sqrt(mean(drawdown_pct^2)) over the equity curve — a
// drawdown-depth-and-duration-sensitive risk measure, penalizing
// prolonged drawdowns more than a single sharp-but-brief one.
func ulcerIndex(equity []types.EquityPoint) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak, _ := equity[0].Equity.Float64()
	var sumSq float64
	for _, p := range equity {
		v, _ := p.Equity.Float64()
		if v > peak {
			peak = v
		}
		if peak == 0 {
			continue
		}
		dd := (peak - v) / peak * 100
		sumSq += dd * dd
	}
	return math.Sqrt(sumSq / float64(len(equity)))
}
