package patterns

import (
	"testing"

	"github.com/quantlab/fxlab/pkg/types"
)

func schema() types.FeatureSchema {
	return types.FeatureSchema{Names: []string{"ret_mean", "ret_stddev"}}
}

func makeRows(n int, level types.MovementLevel, dir types.Direction, regime int, hitFrac float64) []Row {
	rows := make([]Row, n)
	for i := 0; i < n; i++ {
		hit := float64(i)/float64(n) < hitFrac
		val := 0.0
		if hit {
			val = 1.0
		}
		rows[i] = Row{
			Features:  types.FeatureVector{Values: []float64{val, float64(i % 5)}},
			RegimeID:  regime,
			Level:     level,
			Direction: dir,
			Hit:       hit,
		}
	}
	return rows
}

func TestMineDropsBucketsBelowMinOccurrences(t *testing.T) {
	cfg := types.PatternConfig{TopKPerBucket: 5, MinOccurrences: 50, ImportanceTrees: 3}
	m := New(cfg, schema())

	rows := makeRows(10, types.Medio, types.Up, 0, 0.5)
	records := m.Mine(rows)
	if len(records) != 0 {
		t.Fatalf("expected no records below MinOccurrences, got %d", len(records))
	}
}

func TestMineProducesOneRecordPerQualifyingBucket(t *testing.T) {
	cfg := types.PatternConfig{TopKPerBucket: 5, MinOccurrences: 10, ImportanceTrees: 3}
	m := New(cfg, schema())

	rows := append(makeRows(20, types.Medio, types.Up, 0, 0.5), makeRows(20, types.Grande, types.Down, 1, 0.3)...)
	records := m.Mine(rows)
	if len(records) != 2 {
		t.Fatalf("expected 2 bucket records, got %d", len(records))
	}
	for _, r := range records {
		if r.Count != 20 {
			t.Fatalf("expected bucket count 20, got %d", r.Count)
		}
	}
}

func TestMineCapsTopKPerGroup(t *testing.T) {
	cfg := types.PatternConfig{TopKPerBucket: 1, MinOccurrences: 10, ImportanceTrees: 3}
	m := New(cfg, schema())

	var rows []Row
	rows = append(rows, makeRows(10, types.Medio, types.Up, 0, 0.5)...)
	rows = append(rows, makeRows(15, types.Medio, types.Up, 1, 0.5)...)
	records := m.Mine(rows)
	if len(records) != 1 {
		t.Fatalf("expected TopKPerBucket=1 to cap the (level,direction) group to 1 record, got %d", len(records))
	}
	if records[0].Count != 15 {
		t.Fatalf("expected the larger bucket (15) to survive the cap, got count %d", records[0].Count)
	}
}

func TestFeatureImportanceRanksSeparatingFeatureHigher(t *testing.T) {
	cfg := types.PatternConfig{TopKPerBucket: 5, MinOccurrences: 1, ImportanceTrees: 5}
	m := New(cfg, schema())

	rows := makeRows(200, types.Medio, types.Up, 0, 0.5)
	importances := m.FeatureImportance(rows, 42)

	if importances["ret_mean"] <= importances["ret_stddev"] {
		t.Fatalf("expected the perfectly separating feature (ret_mean) to score higher than noise (ret_stddev): %v", importances)
	}
}

func TestTopSignaturesOrdersByCount(t *testing.T) {
	records := []types.PatternRecord{
		{Signature: "a", Count: 5},
		{Signature: "b", Count: 50},
		{Signature: "c", Count: 20},
	}
	top := TopSignatures(records, 2)
	if len(top) != 2 || top[0] != "b" || top[1] != "c" {
		t.Fatalf("unexpected top signatures: %v", top)
	}
}
