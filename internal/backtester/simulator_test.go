package backtester

import (
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantlab/fxlab/internal/strategy"
	"github.com/quantlab/fxlab/pkg/types"
)

// fixedSignalRuntime emits one Up signal on the first call, then never again
// until Reset, to exercise the at-most-one-open-position invariant.
type fixedSignalRuntime struct {
	strategy.BaseRuntime
	fired bool
}

func (r *fixedSignalRuntime) Name() string { return "fixed" }

func (r *fixedSignalRuntime) OnCandle(ctx strategy.Context) *strategy.Signal {
	if r.fired {
		return nil
	}
	r.fired = true
	return &strategy.Signal{Direction: types.Up, StopLossPips: 10, TakeProfitPips: 10}
}

func (r *fixedSignalRuntime) Reset() {
	r.fired = false
	r.BaseRuntime.Reset()
}

func mkCandles(n int) []types.Candle {
	minute := int64(60_000_000_000)
	candles := make([]types.Candle, n)
	price := 1.1000
	for i := 0; i < n; i++ {
		candles[i] = types.Candle{
			OpenTimeNS: int64(i) * minute,
			Open:       price,
			High:       price + 0.0002,
			Low:        price - 0.0002,
			Close:      price,
		}
	}
	return candles
}

func defaultTestConfig() types.BacktestConfig {
	cfg := types.DefaultBacktestConfig()
	return cfg
}

func TestSimulatorStopFirstTieBreak(t *testing.T) {
	candles := mkCandles(5)
	// entry candle at idx 1 (Close = 1.1000); force the very
	// next candle to hit both stop and target simultaneously.
	candles[2].High = candles[1].Close + 0.0020
	candles[2].Low = candles[1].Close - 0.0020

	rt := &fixedSignalRuntime{BaseRuntime: strategy.BaseRuntime{MaxTradesPerDay: 10}}
	sim := New(zap.NewNop(), defaultTestConfig())
	result := sim.Run(candles, nil, rt, 1, 0.1)

	if result.NTrades != 1 {
		t.Fatalf("expected exactly one trade, got %d", result.NTrades)
	}
	if result.Trades[0].ExitReason != types.ExitStop {
		t.Fatalf("expected STOP-first tie-break, got %v", result.Trades[0].ExitReason)
	}
}

func TestSimulatorAtMostOnePositionAtATime(t *testing.T) {
	candles := mkCandles(10)
	rt := &fixedSignalRuntime{BaseRuntime: strategy.BaseRuntime{MaxTradesPerDay: 10}}
	sim := New(zap.NewNop(), defaultTestConfig())
	result := sim.Run(candles, nil, rt, 1, 0.1)

	// The fixed runtime only ever emits a single signal, so no matter how
	// long the candle series runs, at most one trade can result.
	if result.NTrades > 1 {
		t.Fatalf("expected at most one trade, got %d", result.NTrades)
	}
}

func TestSimulatorNoSignalProducesEmptyResult(t *testing.T) {
	candles := mkCandles(5)
	rt := &fixedSignalRuntime{fired: true, BaseRuntime: strategy.BaseRuntime{MaxTradesPerDay: 10}}
	sim := New(zap.NewNop(), defaultTestConfig())
	result := sim.Run(candles, nil, rt, 1, 0.1)

	if result.NTrades != 0 {
		t.Fatalf("expected zero trades when the runtime never signals, got %d", result.NTrades)
	}
	if result.ProfitFactor != 1.0 {
		t.Fatalf("expected a neutral profit factor of 1.0 on zero trades, got %v", result.ProfitFactor)
	}
}

func TestMetricsCalculatorWinRateAndProfitFactor(t *testing.T) {
	trades := []types.TradeRecord{
		{PnLUSD: decimal.NewFromFloat(100), PnLPips: 10},
		{PnLUSD: decimal.NewFromFloat(-50), PnLPips: -5},
		{PnLUSD: decimal.NewFromFloat(100), PnLPips: 10},
	}
	equity := []types.EquityPoint{
		{TimeNS: 0, Equity: decimal.NewFromFloat(10100)},
		{TimeNS: 1, Equity: decimal.NewFromFloat(10050)},
		{TimeNS: 2, Equity: decimal.NewFromFloat(10150)},
	}
	result := types.BacktestResult{NTrades: len(trades)}
	calc := NewMetricsCalculator()
	calc.Fill(&result, trades, equity, decimal.NewFromInt(10000))

	wantWinRate := 2.0 / 3.0
	if result.WinRate != wantWinRate {
		t.Fatalf("expected win rate %v, got %v", wantWinRate, result.WinRate)
	}
	if result.ProfitFactor <= 1 {
		t.Fatalf("expected profit factor > 1 for a net-profitable sequence, got %v", result.ProfitFactor)
	}
}
