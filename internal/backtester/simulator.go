// Package backtester provides the tick-resolution trade simulator: a
// strategy.Runtime is driven candle-by-candle, opens at most one
// position at a time, and every open position is walked forward through
// subsequent candles using the same STOP-first same-bar tie-break as the
// Labeling Engine, so a strategy's simulated win rate is consistent with
// the label grid's definition of TARGET/STOP. The shape (logger-injected
// struct, Run returning a single result, a separate MetricsCalculator)
// follows the teacher's event-driven engine, collapsed from a full
// event-queue simulation to a direct candle walk since this system has
// no broker/exchange adapter to decouple from.
package backtester

import (
	"go.uber.org/zap"

	"github.com/shopspring/decimal"

	"github.com/quantlab/fxlab/internal/strategy"
	"github.com/quantlab/fxlab/pkg/types"
)

func decimalFromFloat(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// Simulator runs one strategy.Runtime over one candle series.
type Simulator struct {
	logger *zap.Logger
	config types.BacktestConfig
}

// New creates a Simulator.
func New(logger *zap.Logger, config types.BacktestConfig) *Simulator {
	return &Simulator{logger: logger, config: config}
}

type openPosition struct {
	direction    types.Direction
	entryTimeNS  int64
	entryPrice   float64
	stopPips     float64
	targetPips   float64
	barsElapsed  int
}

// Run walks candles (lookback candles of history required before the
// first possible signal) driving rt.OnCandle, and simulates every signal
// to a STOP/TARGET/TIMEOUT exit, or to a SIGNAL exit when an opposite
// signal reverses it, before considering a new one — at most one open
// position at a time.
func (s *Simulator) Run(candles []types.Candle, features []types.FeatureVector, rt strategy.Runtime, lookback int, lotSize float64) types.BacktestResult {
	var trades []types.TradeRecord
	var equity []types.EquityPoint
	cash := s.config.InitialCapital

	var pos *openPosition

	for i := lookback; i < len(candles); i++ {
		c := candles[i]
		window := candles[i-lookback+1 : i+1]
		var feat *types.FeatureVector
		if features != nil && i < len(features) {
			feat = &features[i]
		}
		ctx := strategy.Context{Window: window, Feature: feat, Session: types.SessionContext(c.OpenTimeNS)}

		if pos != nil {
			exit, reason, barsUsed := s.walkPosition(candles, i, pos)
			if exit != nil {
				trade := s.closeTrade(*pos, *exit, reason, lotSize)
				trades = append(trades, trade)
				cash = cash.Add(trade.PnLUSD)
				equity = append(equity, types.EquityPoint{TimeNS: exit.OpenTimeNS, Equity: cash})
				pos = nil
			} else {
				pos.barsElapsed = barsUsed
				// A signal while a position is open is ignored unless it
				// reverses direction, in which case the open position is
				// closed at this bar's close (exit_reason = SIGNAL) and the
				// reversed position opens on the same bar.
				if sig := rt.OnCandle(ctx); sig != nil && sig.Direction != pos.direction {
					exit := exitInfo{OpenTimeNS: c.OpenTimeNS, Price: c.Close}
					trade := s.closeTrade(*pos, exit, types.ExitSignal, lotSize)
					trades = append(trades, trade)
					cash = cash.Add(trade.PnLUSD)
					equity = append(equity, types.EquityPoint{TimeNS: exit.OpenTimeNS, Equity: cash})
					pos = &openPosition{
						direction:   sig.Direction,
						entryTimeNS: c.OpenTimeNS,
						entryPrice:  c.Close,
						stopPips:    orDefault(sig.StopLossPips, 10),
						targetPips:  orDefault(sig.TakeProfitPips, 10),
					}
				}
				continue
			}
		}

		if pos == nil {
			sig := rt.OnCandle(ctx)
			if sig != nil {
				pos = &openPosition{
					direction:   sig.Direction,
					entryTimeNS: c.OpenTimeNS,
					entryPrice:  c.Close,
					stopPips:    orDefault(sig.StopLossPips, 10),
					targetPips:  orDefault(sig.TakeProfitPips, 10),
				}
			}
		}
	}

	result := types.BacktestResult{StrategyName: rt.Name(), LotSize: lotSize, NTrades: len(trades), Trades: trades, EquityCurve: equity}
	calc := NewMetricsCalculator()
	calc.Fill(&result, trades, equity, s.config.InitialCapital)
	return result
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

// exitInfo records the time and price a position closed at.
type exitInfo struct {
	OpenTimeNS int64
	Price      float64
}

// walkPosition scans forward from the entry candle looking for the
// first STOP/TARGET hit, applying the STOP-first same-bar tie-break.
// Since Run already advances one candle at a time, walkPosition only
// evaluates the newest candle reachable so far; a caller holding an open
// position calls this every loop iteration with the current index.
func (s *Simulator) walkPosition(candles []types.Candle, idx int, pos *openPosition) (*exitInfo, types.ExitReason, int) {
	if idx < 0 || idx >= len(candles) {
		return nil, "", pos.barsElapsed
	}
	c := candles[idx]
	pipSize := s.config.PipSize
	if pipSize == 0 {
		pipSize = 0.0001
	}

	var favPips, advPips float64
	if pos.direction == types.Up {
		favPips = (c.High - pos.entryPrice) / pipSize
		advPips = (pos.entryPrice - c.Low) / pipSize
	} else {
		favPips = (pos.entryPrice - c.Low) / pipSize
		advPips = (c.High - pos.entryPrice) / pipSize
	}

	hitStop := advPips >= pos.stopPips
	hitTarget := favPips >= pos.targetPips

	switch {
	case hitStop:
		return &exitInfo{OpenTimeNS: c.OpenTimeNS, Price: stopExitPrice(pos, pipSize)}, types.ExitStop, pos.barsElapsed + 1
	case hitTarget:
		return &exitInfo{OpenTimeNS: c.OpenTimeNS, Price: targetExitPrice(pos, pipSize)}, types.ExitTarget, pos.barsElapsed + 1
	}

	if s.config.MaxDurationBars > 0 && pos.barsElapsed+1 >= s.config.MaxDurationBars {
		return &exitInfo{OpenTimeNS: c.OpenTimeNS, Price: c.Close}, types.ExitTimeout, pos.barsElapsed + 1
	}
	return nil, "", pos.barsElapsed + 1
}

func stopExitPrice(pos *openPosition, pipSize float64) float64 {
	if pos.direction == types.Up {
		return pos.entryPrice - pos.stopPips*pipSize
	}
	return pos.entryPrice + pos.stopPips*pipSize
}

func targetExitPrice(pos *openPosition, pipSize float64) float64 {
	if pos.direction == types.Up {
		return pos.entryPrice + pos.targetPips*pipSize
	}
	return pos.entryPrice - pos.targetPips*pipSize
}

func (s *Simulator) closeTrade(pos openPosition, exit exitInfo, reason types.ExitReason, lotSize float64) types.TradeRecord {
	pipSize := s.config.PipSize
	if pipSize == 0 {
		pipSize = 0.0001
	}
	var pnlPips float64
	if pos.direction == types.Up {
		pnlPips = (exit.Price - pos.entryPrice) / pipSize
	} else {
		pnlPips = (pos.entryPrice - exit.Price) / pipSize
	}

	grossUSD := s.config.PipValuePerLot.Mul(decimalFromFloat(pnlPips)).Mul(decimalFromFloat(lotSize))
	commissionUSD := s.config.CommissionPerLot.Mul(decimalFromFloat(lotSize))
	netUSD := grossUSD.Sub(commissionUSD)

	durationMinutes := float64(exit.OpenTimeNS-pos.entryTimeNS) / 6e10

	return types.TradeRecord{
		EntryTimeNS:     pos.entryTimeNS,
		ExitTimeNS:      exit.OpenTimeNS,
		Direction:       pos.direction,
		EntryPrice:      pos.entryPrice,
		ExitPrice:       exit.Price,
		PnLPips:         pnlPips,
		PnLUSD:          netUSD,
		CommissionUSD:   commissionUSD,
		PnLPct:          pnlPips * pipSize / pos.entryPrice,
		DurationMinutes: durationMinutes,
		ExitReason:      reason,
	}
}
