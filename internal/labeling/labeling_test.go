package labeling

import (
	"context"
	"testing"

	"github.com/quantlab/fxlab/pkg/types"
)

func mkCandle(openTimeNS int64, open, high, low, close float64) types.Candle {
	return types.Candle{OpenTimeNS: openTimeNS, Open: open, High: high, Low: low, Close: close, Mid: close}
}

func TestStopFirstTieBreak(t *testing.T) {
	e := New(0.0001)
	minute := int64(60_000_000_000)

	candles := []types.Candle{
		mkCandle(0, 1.1000, 1.1000, 1.1000, 1.1000),
		mkCandle(minute, 1.1000, 1.1020, 1.0980, 1.1000), // both +20 and -20 pips hit
	}

	cfg := types.LabelConfig{TargetPips: 10, StopPips: 10, HorizonNS: 5 * minute}
	result := e.Reference(candles, cfg, types.Up, 5)

	if result[0].FirstHit != types.OutcomeStop {
		t.Fatalf("expected STOP to win the tie, got %v", result[0].FirstHit)
	}
	if result[0].RMultiple != -1 {
		t.Errorf("expected r_multiple -1 on stop, got %v", result[0].RMultiple)
	}
}

func TestHorizonPastEndOfDataIsNone(t *testing.T) {
	e := New(0.0001)
	minute := int64(60_000_000_000)
	candles := []types.Candle{
		mkCandle(0, 1.1000, 1.1000, 1.1000, 1.1000),
		mkCandle(minute, 1.1000, 1.1002, 1.0999, 1.1001),
	}
	cfg := types.LabelConfig{TargetPips: 50, StopPips: 50, HorizonNS: 10 * minute}
	result := e.Reference(candles, cfg, types.Up, 10)

	if result[0].FirstHit != types.OutcomeNone {
		t.Fatalf("expected NONE when horizon exceeds remaining data, got %v", result[0].FirstHit)
	}
	if result[len(result)-1].FirstHit != types.OutcomeNone {
		t.Fatalf("last candle has no room to look ahead, want NONE")
	}
}

func TestComputeGridDeterministic(t *testing.T) {
	e := New(0.0001)
	minute := int64(60_000_000_000)
	candles := make([]types.Candle, 50)
	for i := range candles {
		base := 1.1000 + float64(i%5)*0.0003
		candles[i] = mkCandle(int64(i)*minute, base, base+0.0008, base-0.0006, base+0.0002)
	}
	configs := []types.LabelConfig{
		{TargetPips: 10, StopPips: 5, HorizonNS: 12 * minute},
		{TargetPips: 20, StopPips: 10, HorizonNS: 24 * minute},
	}

	first, err := e.ComputeGrid(context.Background(), candles, 1, configs)
	if err != nil {
		t.Fatalf("compute grid: %v", err)
	}
	second, err := e.ComputeGrid(context.Background(), candles, 1, configs)
	if err != nil {
		t.Fatalf("compute grid: %v", err)
	}

	if len(first) != len(configs)*2 {
		t.Fatalf("got %d batches, want %d", len(first), len(configs)*2)
	}
	for bi := range first {
		for i := range first[bi].FirstHit {
			if first[bi].FirstHit[i] != second[bi].FirstHit[i] {
				t.Fatalf("non-deterministic outcome at batch %d row %d", bi, i)
			}
			if first[bi].RMultiple[i] != second[bi].RMultiple[i] {
				t.Fatalf("non-deterministic r_multiple at batch %d row %d", bi, i)
			}
		}
	}
}
