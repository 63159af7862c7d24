package strategy

import (
	"testing"

	"github.com/quantlab/fxlab/pkg/types"
)

func mkWindow(n int, start float64, step float64) []types.Candle {
	w := make([]types.Candle, n)
	minute := int64(60_000_000_000)
	price := start
	for i := 0; i < n; i++ {
		price += step
		w[i] = types.Candle{
			OpenTimeNS: int64(i) * minute,
			Open:       price,
			High:       price + 0.0002,
			Low:        price - 0.0002,
			Close:      price,
		}
	}
	return w
}

func TestCooldownBlocksImmediateResignal(t *testing.T) {
	b := BaseRuntime{MaxTradesPerDay: 10, CooldownMinutes: 15}
	ts := int64(0)
	if !b.CanTrade(ts) {
		t.Fatal("expected first trade to be allowed")
	}
	b.RecordTrade(ts)
	if b.CanTrade(ts + 5*60_000_000_000) {
		t.Fatal("expected a trade 5 minutes later to be blocked by a 15 minute cooldown")
	}
	if !b.CanTrade(ts + 16*60_000_000_000) {
		t.Fatal("expected a trade 16 minutes later to be allowed")
	}
}

func TestMaxTradesPerDayCap(t *testing.T) {
	b := BaseRuntime{MaxTradesPerDay: 2, CooldownMinutes: 0}
	day := int64(86400) * 1_000_000_000
	if !b.CanTrade(0) {
		t.Fatal("expected trade 1 to be allowed")
	}
	b.RecordTrade(0)
	if !b.CanTrade(1) {
		t.Fatal("expected trade 2 to be allowed")
	}
	b.RecordTrade(1)
	if b.CanTrade(2) {
		t.Fatal("expected trade 3 on the same day to be blocked by MaxTradesPerDay")
	}
	if !b.CanTrade(day + 1) {
		t.Fatal("expected the cap to reset on a new UTC day")
	}
}

func TestMeanReversionSignalsOnBandBreach(t *testing.T) {
	tmpl := MeanReversionTemplate{}
	rt := tmpl.New(map[string]float64{"period": 10, "std_dev_mult": 1.5}, 10, 0)

	w := mkWindow(10, 1.1000, 0.0001)
	w[len(w)-1].Close = w[0].Close - 0.01 // force a sharp drop below the band
	sig := rt.OnCandle(Context{Window: w})
	if sig == nil {
		t.Fatal("expected a mean reversion signal on a sharp drop below the band")
	}
	if sig.Direction != types.Up {
		t.Fatalf("expected an Up (buy-the-dip) signal, got %v", sig.Direction)
	}
}

func TestTrendFollowerRequiresTwoObservationsBeforeSignaling(t *testing.T) {
	tmpl := TrendFollowerTemplate{}
	rt := tmpl.New(map[string]float64{"fast_period": 3, "slow_period": 6}, 10, 0)

	w := mkWindow(7, 1.1000, 0.0001)
	if sig := rt.OnCandle(Context{Window: w}); sig != nil {
		t.Fatalf("expected no signal on the first EMA observation, got %+v", sig)
	}
}

func TestBuildGridRespectsEnabledTemplates(t *testing.T) {
	registry := NewRegistry()
	cfg := types.StrategyGridConfig{
		EnabledTemplates: []string{"mean_reversion", "breakout"},
		LotSizes:         []float64{0.01},
		MaxTradesPerDay:  5,
		CooldownMinutes:  10,
	}
	grid := BuildGrid(cfg, registry)
	if len(grid) == 0 {
		t.Fatal("expected a non-empty strategy grid")
	}
	seen := make(map[string]bool)
	names := make(map[string]bool)
	for _, inst := range grid {
		if inst.TemplateID != "mean_reversion" && inst.TemplateID != "breakout" {
			t.Fatalf("expected only enabled templates, got %q", inst.TemplateID)
		}
		seen[inst.TemplateID] = true
		if inst.MaxTradesPerDay != 5 || inst.CooldownMinutes != 10 {
			t.Fatalf("expected grid-level cooldown/cap to propagate, got %+v", inst)
		}
		stop, target := inst.Parameters["stop_pips"], inst.Parameters["target_pips"]
		if stop <= 0 || target/stop < minRiskReward {
			t.Fatalf("expected every instance to clear the risk/reward constraint, got stop=%v target=%v", stop, target)
		}
		if names[inst.Name] {
			t.Fatalf("expected composite names to be unique, got duplicate %q", inst.Name)
		}
		names[inst.Name] = true
	}
	if !seen["mean_reversion"] || !seen["breakout"] {
		t.Fatalf("expected both enabled templates represented, got %+v", seen)
	}
}

func TestBuildGridRaisesCooldownToMinimum(t *testing.T) {
	registry := NewRegistry()
	cfg := types.StrategyGridConfig{
		EnabledTemplates: []string{"breakout"},
		CooldownMinutes:  1,
	}
	grid := BuildGrid(cfg, registry)
	if len(grid) == 0 {
		t.Fatal("expected a non-empty strategy grid")
	}
	for _, inst := range grid {
		if inst.CooldownMinutes < minCooldownMinutes {
			t.Fatalf("expected cooldown to be raised to the minimum, got %d", inst.CooldownMinutes)
		}
	}
}

func TestKellyFractionZeroOnNoEdge(t *testing.T) {
	if k := KellyFraction(0.4, 10, 10); k != 0 {
		t.Fatalf("expected zero Kelly fraction for a losing system, got %v", k)
	}
	if k := KellyFraction(0.6, 15, 10); k <= 0 {
		t.Fatalf("expected a positive Kelly fraction for a winning edge, got %v", k)
	}
}

func TestLotSizeGridExpandPassesThroughWhenKellyDisabled(t *testing.T) {
	g := NewLotSizeGrid()
	cfg := types.StrategyGridConfig{LotSizes: []float64{0.01, 0.05}, UseKellyLotSizing: false}
	out := g.Expand(cfg, 0.6, 15, 10)
	if len(out) != 2 || out[0] != 0.01 || out[1] != 0.05 {
		t.Fatalf("expected lot sizes unchanged when Kelly sizing disabled, got %v", out)
	}
}
