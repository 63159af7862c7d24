package regime

import (
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/quantlab/fxlab/pkg/types"
)

func twoBlobRows(n int) []types.FeatureVector {
	rows := make([]types.FeatureVector, n)
	for i := 0; i < n; i++ {
		center := 0.0
		if i >= n/2 {
			center = 10.0
		}
		rows[i] = types.FeatureVector{Values: []float64{center + float64(i%3)*0.01, center - float64(i%2)*0.01}}
	}
	return rows
}

func TestFitSeparatesTwoBlobs(t *testing.T) {
	cfg := types.RegimeConfig{MinClusters: 2, MaxClusters: 4, MaxIters: 50, Restarts: 4, Seed: 7}
	d := New(zap.NewNop(), cfg)

	rows := twoBlobRows(40)
	assignments, err := d.Fit(rows)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if len(assignments) != len(rows) {
		t.Fatalf("got %d assignments, want %d", len(assignments), len(rows))
	}

	first := assignments[0].RegimeID
	last := assignments[len(assignments)-1].RegimeID
	if first == last {
		t.Fatalf("expected the two well-separated blobs to land in different regimes")
	}
}

func TestStandardizeHandlesNaN(t *testing.T) {
	rows := []types.FeatureVector{
		{Values: []float64{1, math.NaN()}},
		{Values: []float64{2, 3}},
		{Values: []float64{3, 5}},
	}
	data := standardize(rows)
	for _, row := range data {
		for _, v := range row {
			if math.IsNaN(v) {
				t.Fatalf("standardize leaked a NaN into output: %v", row)
			}
		}
	}
}

func TestCovarianceMatrixShape(t *testing.T) {
	rows := []types.FeatureVector{
		{Values: []float64{1, 2}},
		{Values: []float64{2, 4}},
		{Values: []float64{3, 6}},
	}
	data := standardize(rows)
	cov := covarianceMatrix(data)
	if cov == nil {
		t.Fatal("expected a covariance matrix")
	}
	r, c := cov.Dims()
	if r != 2 || c != 2 {
		t.Fatalf("expected 2x2 covariance matrix, got %dx%d", r, c)
	}
}
