// Package regime detects market regimes by clustering standardized
// feature vectors with K-means, selecting the cluster count K by
// silhouette score over a configured range. The component shape
// (logger-by-constructor, RWMutex-guarded state, the last fit's
// assignment history) follows the rest of this module's components; only the
// fitting algorithm is specific to clustering feature vectors rather than
// decoding discrete hidden states.
package regime

import (
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/quantlab/fxlab/pkg/types"
)

// Detector fits and tracks regime assignments for a feature matrix.
type Detector struct {
	logger *zap.Logger
	config types.RegimeConfig

	mu        sync.RWMutex
	summaries []types.RegimeSummary
	history   []types.RegimeAssignment
}

// New creates a Detector.
func New(logger *zap.Logger, config types.RegimeConfig) *Detector {
	return &Detector{logger: logger, config: config}
}

// Fit standardizes rows, runs K-means for every K in
// [MinClusters, MaxClusters] with Restarts random initializations each,
// and keeps the K with the best mean silhouette score. It returns one
// RegimeAssignment per input row.
func (d *Detector) Fit(rows []types.FeatureVector) ([]types.RegimeAssignment, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("regime: no rows to fit")
	}
	data := standardize(rows)

	bestScore := math.Inf(-1)
	var bestLabels []int
	var bestCentroids [][]float64
	var bestK int

	for k := d.config.MinClusters; k <= d.config.MaxClusters && k < len(rows); k++ {
		labels, centroids, ok := d.bestOfRestarts(data, k)
		if !ok {
			continue
		}
		score := silhouetteScore(data, labels, k)
		if score > bestScore {
			bestScore = score
			bestLabels = labels
			bestCentroids = centroids
			bestK = k
		}
	}

	if bestLabels == nil {
		// Degenerate case: too few rows for even the minimum K. Assign
		// everything to a single regime rather than failing the run.
		bestLabels = make([]int, len(rows))
		bestCentroids = [][]float64{columnMeans(data)}
		bestK = 1
	}

	summaries := summarize(data, bestLabels, bestCentroids, bestK)

	d.mu.Lock()
	d.summaries = summaries
	d.history = make([]types.RegimeAssignment, len(bestLabels))
	for i, l := range bestLabels {
		d.history[i] = types.RegimeAssignment{RegimeID: l}
	}
	assignments := append([]types.RegimeAssignment(nil), d.history...)
	d.mu.Unlock()

	if d.logger != nil {
		d.logger.Info("regime detector fit",
			zap.Int("k", bestK),
			zap.Float64("silhouette", bestScore),
			zap.Int("rows", len(rows)),
		)
	}

	return assignments, nil
}

// Summaries returns the last fit's per-cluster summaries.
func (d *Detector) Summaries() []types.RegimeSummary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]types.RegimeSummary(nil), d.summaries...)
}

func (d *Detector) bestOfRestarts(data [][]float64, k int) ([]int, [][]float64, bool) {
	restarts := d.config.Restarts
	if restarts < 1 {
		restarts = 1
	}
	bestInertia := math.Inf(1)
	var bestLabels []int
	var bestCentroids [][]float64

	for r := 0; r < restarts; r++ {
		seed := d.config.Seed + int64(r)*2654435761
		labels, centroids, inertia := kmeansOnce(data, k, d.config.MaxIters, seed)
		if labels == nil {
			continue
		}
		if inertia < bestInertia {
			bestInertia = inertia
			bestLabels = labels
			bestCentroids = centroids
		}
	}
	return bestLabels, bestCentroids, bestLabels != nil
}

// standardize z-scores every feature column (NaN treated as the column
// mean so a single missing feature doesn't poison the whole row).
func standardize(rows []types.FeatureVector) [][]float64 {
	n := len(rows)
	if n == 0 {
		return nil
	}
	d := len(rows[0].Values)
	cols := make([][]float64, d)
	for c := 0; c < d; c++ {
		cols[c] = make([]float64, n)
		for r := 0; r < n; r++ {
			cols[c][r] = rows[r].Values[c]
		}
		fillColumnNaN(cols[c])
		mean, std := stat.MeanStdDev(cols[c], nil)
		if std == 0 {
			std = 1
		}
		for r := range cols[c] {
			cols[c][r] = (cols[c][r] - mean) / std
		}
	}

	out := make([][]float64, n)
	for r := 0; r < n; r++ {
		out[r] = make([]float64, d)
		for c := 0; c < d; c++ {
			out[r][c] = cols[c][r]
		}
	}
	return out
}

func fillColumnNaN(col []float64) {
	var sum float64
	var count int
	for _, v := range col {
		if !math.IsNaN(v) {
			sum += v
			count++
		}
	}
	mean := 0.0
	if count > 0 {
		mean = sum / float64(count)
	}
	for i, v := range col {
		if math.IsNaN(v) {
			col[i] = mean
		}
	}
}

func columnMeans(data [][]float64) []float64 {
	if len(data) == 0 {
		return nil
	}
	d := len(data[0])
	means := make([]float64, d)
	for _, row := range data {
		floats.Add(means, row)
	}
	floats.Scale(1/float64(len(data)), means)
	return means
}

// kmeansOnce runs Lloyd's algorithm once from a deterministic
// pseudo-random initialization seeded by seed.
func kmeansOnce(data [][]float64, k, maxIters int, seed int64) ([]int, [][]float64, float64) {
	n := len(data)
	if n < k {
		return nil, nil, math.Inf(1)
	}
	centroids := initCentroids(data, k, seed)
	labels := make([]int, n)

	for iter := 0; iter < maxIters; iter++ {
		changed := false
		for i, row := range data {
			best, bestDist := 0, math.Inf(1)
			for c, centroid := range centroids {
				dist := sqDist(row, centroid)
				if dist < bestDist {
					bestDist = dist
					best = c
				}
			}
			if labels[i] != best {
				changed = true
			}
			labels[i] = best
		}

		newCentroids := make([][]float64, k)
		counts := make([]int, k)
		for c := range newCentroids {
			newCentroids[c] = make([]float64, len(data[0]))
		}
		for i, row := range data {
			c := labels[i]
			floats.Add(newCentroids[c], row)
			counts[c]++
		}
		for c := range newCentroids {
			if counts[c] == 0 {
				newCentroids[c] = centroids[c]
				continue
			}
			floats.Scale(1/float64(counts[c]), newCentroids[c])
		}
		centroids = newCentroids

		if !changed && iter > 0 {
			break
		}
	}

	var inertia float64
	for i, row := range data {
		inertia += sqDist(row, centroids[labels[i]])
	}
	return labels, centroids, inertia
}

// initCentroids picks k rows deterministically via a seeded linear
// congruential sequence, avoiding a dependency on math/rand's global
// state so fits are reproducible across runs.
func initCentroids(data [][]float64, k int, seed int64) [][]float64 {
	n := len(data)
	state := uint64(seed)
	next := func() uint64 {
		state = state*6364136223846793005 + 1442695040888963407
		return state
	}
	picked := make(map[int]bool, k)
	centroids := make([][]float64, 0, k)
	for len(centroids) < k {
		idx := int(next() % uint64(n))
		if picked[idx] {
			continue
		}
		picked[idx] = true
		centroids = append(centroids, append([]float64(nil), data[idx]...))
	}
	return centroids
}

func sqDist(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// silhouetteScore computes the mean silhouette coefficient over a sample
// of points (capped for runtime) when the dataset is large.
func silhouetteScore(data [][]float64, labels []int, k int) float64 {
	if k < 2 {
		return -1
	}
	n := len(data)
	sampleSize := n
	const maxSample = 500
	idxs := make([]int, n)
	for i := range idxs {
		idxs[i] = i
	}
	if n > maxSample {
		sampleSize = maxSample
	}

	byCluster := make(map[int][]int)
	for i, l := range labels {
		byCluster[l] = append(byCluster[l], i)
	}

	var total float64
	var counted int
	for _, i := range idxs[:sampleSize] {
		a := meanDistToCluster(data, i, byCluster[labels[i]], true)
		b := math.Inf(1)
		for c, members := range byCluster {
			if c == labels[i] {
				continue
			}
			dist := meanDistToCluster(data, i, members, false)
			if dist < b {
				b = dist
			}
		}
		if math.IsInf(a, 0) || math.IsInf(b, 0) {
			continue
		}
		m := math.Max(a, b)
		if m == 0 {
			continue
		}
		total += (b - a) / m
		counted++
	}
	if counted == 0 {
		return -1
	}
	return total / float64(counted)
}

func meanDistToCluster(data [][]float64, i int, members []int, excludeSelf bool) float64 {
	var sum float64
	var count int
	for _, j := range members {
		if excludeSelf && j == i {
			continue
		}
		sum += math.Sqrt(sqDist(data[i], data[j]))
		count++
	}
	if count == 0 {
		return math.Inf(1)
	}
	return sum / float64(count)
}

func summarize(data [][]float64, labels []int, centroids [][]float64, k int) []types.RegimeSummary {
	sizes := make([]int, k)
	for _, l := range labels {
		sizes[l]++
	}
	summaries := make([]types.RegimeSummary, k)
	for c := 0; c < k; c++ {
		summaries[c] = types.RegimeSummary{
			RegimeID:     c,
			MeanFeatures: centroids[c],
			DominantName: dominantName(centroids[c]),
			Size:         sizes[c],
		}
	}
	return summaries
}

// dominantName labels a cluster by its most extreme standardized feature
// — a coarse human-readable hint, not a modeling input.
func dominantName(centroid []float64) string {
	if len(centroid) == 0 {
		return "unlabeled"
	}
	maxAbs := 0.0
	idx := 0
	for i, v := range centroid {
		if math.Abs(v) > maxAbs {
			maxAbs = math.Abs(v)
			idx = i
		}
	}
	if centroid[idx] >= 0 {
		return fmt.Sprintf("feature_%d_high", idx)
	}
	return fmt.Sprintf("feature_%d_low", idx)
}

// covarianceMatrix returns the column covariance of data; tests apply it
// to standardize's output and check its dimensions.
func covarianceMatrix(data [][]float64) *mat.SymDense {
	n := len(data)
	if n == 0 {
		return nil
	}
	d := len(data[0])
	flat := make([]float64, n*d)
	for i, row := range data {
		copy(flat[i*d:(i+1)*d], row)
	}
	m := mat.NewDense(n, d, flat)
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, m, nil)
	return &cov
}
