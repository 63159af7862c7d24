package candle

import (
	"testing"

	"github.com/quantlab/fxlab/pkg/types"
)

func ticksAt(nsOffsets []int64, mids []float64) []types.Tick {
	ticks := make([]types.Tick, len(nsOffsets))
	for i, off := range nsOffsets {
		ticks[i] = types.Tick{TimestampNS: off, Bid: mids[i] - 0.0001, Ask: mids[i] + 0.0001}
	}
	return ticks
}

func TestAggregatorBasicOHLC(t *testing.T) {
	minute := int64(60_000_000_000)
	a := New(types.Universe{IntervalMinutes: 1}, 0.0001)

	ticks := ticksAt(
		[]int64{0, 10_000_000_000, 30_000_000_000, minute, minute + 5_000_000_000},
		[]float64{1.1000, 1.1010, 1.0990, 1.1005, 1.1020},
	)

	var closedBars []types.Candle
	for _, tk := range ticks {
		c, ok, err := a.Push(tk)
		if err != nil {
			t.Fatalf("push: %v", err)
		}
		if ok {
			closedBars = append(closedBars, c)
		}
	}
	if c, ok := a.Flush(); ok {
		closedBars = append(closedBars, c)
	}

	if len(closedBars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(closedBars))
	}

	first := closedBars[0]
	if first.Open != 1.1000 {
		t.Errorf("open = %v, want 1.1000", first.Open)
	}
	if first.High != 1.1010 {
		t.Errorf("high = %v, want 1.1010", first.High)
	}
	if first.Low != 1.0990 {
		t.Errorf("low = %v, want 1.0990", first.Low)
	}
	if first.Close != 1.0990 {
		t.Errorf("close = %v, want 1.0990", first.Close)
	}
	if first.Volume != 3 {
		t.Errorf("volume = %d, want 3", first.Volume)
	}

	second := closedBars[1]
	if second.OpenTimeNS != minute {
		t.Errorf("open time = %d, want %d", second.OpenTimeNS, minute)
	}
	if second.Volume != 2 {
		t.Errorf("volume = %d, want 2", second.Volume)
	}
}

func TestAggregatorRejectsOutOfOrder(t *testing.T) {
	minute := int64(60_000_000_000)
	a := New(types.Universe{IntervalMinutes: 1}, 0.0001)

	if _, _, err := a.Push(types.Tick{TimestampNS: minute, Bid: 1.0999, Ask: 1.1001}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := a.Push(types.Tick{TimestampNS: 0, Bid: 1.0999, Ask: 1.1001}); err == nil {
		t.Fatal("expected error on out-of-order tick")
	}
}

func TestAggregatorEmptyIntervalProducesNoCandle(t *testing.T) {
	minute := int64(60_000_000_000)
	a := New(types.Universe{IntervalMinutes: 1}, 0.0001)

	a.Push(types.Tick{TimestampNS: 0, Bid: 1.0999, Ask: 1.1001})
	_, ok, _ := a.Push(types.Tick{TimestampNS: 5 * minute, Bid: 1.0999, Ask: 1.1001})
	if !ok {
		t.Fatal("expected a bar to close on jump")
	}
}

func TestMultiUniverseIndependence(t *testing.T) {
	minute := int64(60_000_000_000)
	m := NewMulti([]types.Universe{
		{IntervalMinutes: 1},
		{IntervalMinutes: 5},
	}, 0.0001)

	for i := int64(0); i < 6; i++ {
		if err := m.Push(types.Tick{TimestampNS: i * minute, Bid: 1.0999, Ask: 1.1001}); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	out := m.Finish()
	if len(out) != 2 {
		t.Fatalf("expected 2 universe outputs, got %d", len(out))
	}
	if len(out[0]) != 6 {
		t.Errorf("1m universe: got %d bars, want 6", len(out[0]))
	}
	if len(out[1]) != 2 {
		t.Errorf("5m universe: got %d bars, want 2", len(out[1]))
	}
}
