package data

import (
	"testing"

	"github.com/quantlab/fxlab/pkg/types"
)

func cleanTicks(n int) []types.Tick {
	ticks := make([]types.Tick, n)
	ts := int64(0)
	for i := range ticks {
		ts += 1_000_000_000
		ticks[i] = types.Tick{TimestampNS: ts, Bid: 1.1000, Ask: 1.1001}
	}
	return ticks
}

func TestGateRejectsEmptySeries(t *testing.T) {
	if _, err := Gate("EURUSD", 2023, nil, 0.0001, DefaultQualityGateConfig()); err == nil {
		t.Fatal("expected an error for an empty tick series")
	}
}

func TestGateRejectsNonMonotonicTimestamps(t *testing.T) {
	ticks := cleanTicks(5)
	ticks[3].TimestampNS = ticks[1].TimestampNS
	if _, err := Gate("EURUSD", 2023, ticks, 0.0001, DefaultQualityGateConfig()); err == nil {
		t.Fatal("expected an error for non-monotonic timestamps")
	}
}

func TestGateAcceptsCleanSeries(t *testing.T) {
	report, err := Gate("EURUSD", 2023, cleanTicks(200), 0.0001, DefaultQualityGateConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Usable {
		t.Fatalf("expected a clean series to be usable, got score %d issues %+v", report.QualityScore, report.Issues)
	}
}

func TestGateFlagsCrossedQuote(t *testing.T) {
	ticks := cleanTicks(10)
	ticks[5].Bid, ticks[5].Ask = 1.1005, 1.1000
	report, err := Gate("EURUSD", 2023, ticks, 0.0001, DefaultQualityGateConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Usable {
		t.Fatal("expected a crossed quote to make the series unusable")
	}
}
