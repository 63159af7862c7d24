package features

import (
	"math"
	"testing"

	"github.com/quantlab/fxlab/pkg/types"
)

func syntheticCandles(n int) []types.Candle {
	out := make([]types.Candle, n)
	minute := int64(60_000_000_000)
	price := 1.1000
	for i := 0; i < n; i++ {
		price += 0.0001 * math.Sin(float64(i)/3.0)
		out[i] = types.Candle{
			OpenTimeNS: int64(i) * minute,
			Open:       price,
			High:       price + 0.0003,
			Low:        price - 0.0002,
			Close:      price + 0.0001,
			Mid:        price,
		}
	}
	return out
}

func TestSchemaMatchesExtractLength(t *testing.T) {
	cfg := types.DefaultFeatureConfig()
	cfg.LookbackPeriods = 32
	candles := syntheticCandles(100)

	schema := Schema(cfg)
	row := Extract(candles, 80, cfg)

	if len(row.Values) != len(schema.Names) {
		t.Fatalf("extract produced %d values, schema has %d names", len(row.Values), len(schema.Names))
	}
}

func TestInsufficientDataYieldsNaN(t *testing.T) {
	cfg := types.DefaultFeatureConfig()
	cfg.LookbackPeriods = 64
	candles := syntheticCandles(10)

	row := Extract(candles, 5, cfg)
	if !math.IsNaN(row.Values[0]) {
		t.Fatalf("expected NaN for ret_mean with insufficient history, got %v", row.Values[0])
	}
}

func TestExtractDeterministic(t *testing.T) {
	cfg := types.DefaultFeatureConfig()
	cfg.LookbackPeriods = 32
	candles := syntheticCandles(100)

	a := Extract(candles, 90, cfg)
	b := Extract(candles, 90, cfg)
	for i := range a.Values {
		va, vb := a.Values[i], b.Values[i]
		if math.IsNaN(va) && math.IsNaN(vb) {
			continue
		}
		if va != vb {
			t.Fatalf("feature %d non-deterministic: %v vs %v", i, va, vb)
		}
	}
}
