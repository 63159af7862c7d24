// Package patterns mines recurring (regime, movement-level, direction)
// signatures out of labeled, featurized candle history and scores each
// feature's importance to the outcome via a small hand-rolled stump
// ensemble (no boosted-tree library exists anywhere in the retrieval
// pack, so this follows the pack's general preference for gonum/stat
// primitives over a hand-written numerical model from scratch).
package patterns

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/quantlab/fxlab/pkg/types"
)

// Row is one (candle, outcome) observation fed to the miner: a feature
// vector, the regime it was assigned to, the movement level its net
// close-to-close move fell into, the label direction, and whether the
// labeled outcome for that direction hit TARGET.
type Row struct {
	Features  types.FeatureVector
	RegimeID  int
	Level     types.MovementLevel
	Direction types.Direction
	Hit       bool // true if FirstHit == OutcomeTarget for this (direction, config)
}

// Miner aggregates Rows into a top-K signature catalog per bucket and
// ranks features by how well they separate hits from misses.
type Miner struct {
	config types.PatternConfig
	schema types.FeatureSchema
}

// New creates a Miner for the given feature schema.
func New(config types.PatternConfig, schema types.FeatureSchema) *Miner {
	return &Miner{config: config, schema: schema}
}

// bucketKey groups rows by (regime, level, direction).
type bucketKey struct {
	regime    int
	level     types.MovementLevel
	direction types.Direction
}

// Mine groups rows into buckets, keeps only buckets with at least
// MinOccurrences rows, and returns up to TopKPerBucket PatternRecords per
// (level, direction) group, ranked by occurrence count. Feature
// means/stddevs are computed per bucket so a signature's catalog entry
// says what made it distinctive.
func (m *Miner) Mine(rows []Row) []types.PatternRecord {
	buckets := make(map[bucketKey][]Row)
	for _, r := range rows {
		key := bucketKey{regime: r.RegimeID, level: r.Level, direction: r.Direction}
		buckets[key] = append(buckets[key], r)
	}

	type groupKey struct {
		level     types.MovementLevel
		direction types.Direction
	}
	grouped := make(map[groupKey][]types.PatternRecord)
	for key, members := range buckets {
		if len(members) < m.config.MinOccurrences {
			continue
		}
		gk := groupKey{level: key.level, direction: key.direction}
		grouped[gk] = append(grouped[gk], m.summarizeBucket(key, members))
	}

	topK := m.config.TopKPerBucket
	var out []types.PatternRecord
	for _, records := range grouped {
		sort.Slice(records, func(i, j int) bool { return records[i].Count > records[j].Count })
		if topK > 0 && len(records) > topK {
			records = records[:topK]
		}
		out = append(out, records...)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		if out[i].Direction != out[j].Direction {
			return out[i].Direction < out[j].Direction
		}
		return out[i].Signature < out[j].Signature
	})
	return out
}

// summarizeBucket computes the feature mean/stddev profile of one
// (regime, level, direction) bucket. The bucket identity itself is the
// signature; sub-clustering within a bucket is left as future work.
func (m *Miner) summarizeBucket(key bucketKey, members []Row) types.PatternRecord {
	n := len(m.schema.Names)
	means := make(map[string]float64, n)
	stddevs := make(map[string]float64, n)

	for col := 0; col < n; col++ {
		vals := make([]float64, 0, len(members))
		for _, r := range members {
			if col < len(r.Features.Values) {
				v := r.Features.Values[col]
				if v == v { // skip NaN
					vals = append(vals, v)
				}
			}
		}
		if len(vals) == 0 {
			continue
		}
		mean, std := stat.MeanStdDev(vals, nil)
		means[m.schema.Names[col]] = mean
		stddevs[m.schema.Names[col]] = std
	}

	return types.PatternRecord{
		Level:          key.level,
		Direction:      key.direction,
		Signature:      signatureName(key),
		Count:          len(members),
		FeatureMeans:   means,
		FeatureStdDevs: stddevs,
	}
}

func signatureName(key bucketKey) string {
	return fmt.Sprintf("regime_%d/%s/%s", key.regime, key.level, key.direction)
}

// FeatureImportance scores each feature by how well a single-threshold
// stump on that feature alone separates Hit from !Hit rows, averaged
// over ImportanceTrees bootstrap resamples (a minimal stand-in for a
// gradient-boosted importance score, since no such library appears
// anywhere in the pack). Returns a map from feature name to an
// importance score in [0,1], higher meaning more separating.
func (m *Miner) FeatureImportance(rows []Row, seed int64) map[string]float64 {
	n := len(m.schema.Names)
	importances := make(map[string]float64, n)
	if len(rows) == 0 {
		return importances
	}

	trees := m.config.ImportanceTrees
	if trees < 1 {
		trees = 1
	}
	state := uint64(seed)
	next := func() uint64 {
		state = state*6364136223846793005 + 1442695040888963407
		return state
	}

	for col := 0; col < n; col++ {
		var totalGini float64
		for t := 0; t < trees; t++ {
			sample := bootstrapSample(rows, next)
			totalGini += bestStumpGiniGain(sample, col)
		}
		importances[m.schema.Names[col]] = totalGini / float64(trees)
	}
	return importances
}

func bootstrapSample(rows []Row, next func() uint64) []Row {
	out := make([]Row, len(rows))
	for i := range out {
		out[i] = rows[next()%uint64(len(rows))]
	}
	return out
}

// bestStumpGiniGain finds the threshold on column col that maximizes the
// Gini impurity reduction when splitting rows into Hit/!Hit groups.
func bestStumpGiniGain(rows []Row, col int) float64 {
	type pair struct {
		v   float64
		hit bool
	}
	pairs := make([]pair, 0, len(rows))
	for _, r := range rows {
		if col >= len(r.Features.Values) {
			continue
		}
		v := r.Features.Values[col]
		if v != v {
			continue
		}
		pairs = append(pairs, pair{v: v, hit: r.Hit})
	}
	if len(pairs) < 2 {
		return 0
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].v < pairs[j].v })

	total := len(pairs)
	totalHits := 0
	for _, p := range pairs {
		if p.hit {
			totalHits++
		}
	}
	parentGini := giniImpurity(totalHits, total)

	bestGain := 0.0
	leftHits, leftTotal := 0, 0
	for i := 0; i < total-1; i++ {
		leftTotal++
		if pairs[i].hit {
			leftHits++
		}
		if pairs[i].v == pairs[i+1].v {
			continue
		}
		rightTotal := total - leftTotal
		rightHits := totalHits - leftHits
		weighted := float64(leftTotal)/float64(total)*giniImpurity(leftHits, leftTotal) +
			float64(rightTotal)/float64(total)*giniImpurity(rightHits, rightTotal)
		gain := parentGini - weighted
		if gain > bestGain {
			bestGain = gain
		}
	}
	return bestGain
}

func giniImpurity(hits, total int) float64 {
	if total == 0 {
		return 0
	}
	p := float64(hits) / float64(total)
	return 1 - p*p - (1-p)*(1-p)
}

// TopSignatures returns the names of the top-N patterns by occurrence
// count, useful for the strategy factory's pattern-recognition template.
func TopSignatures(records []types.PatternRecord, n int) []string {
	sorted := append([]types.PatternRecord(nil), records...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Count > sorted[j].Count })
	if n > len(sorted) {
		n = len(sorted)
	}
	names := make([]string, n)
	for i := 0; i < n; i++ {
		names[i] = sorted[i].Signature
	}
	return names
}

// Normalize rescales importances so the values sum to 1, preserving their
// relative order. An all-zero or empty input is returned unchanged rather
// than dividing by zero.
func Normalize(importances map[string]float64) map[string]float64 {
	var total float64
	for _, v := range importances {
		total += v
	}
	out := make(map[string]float64, len(importances))
	if total <= 0 {
		for k, v := range importances {
			out[k] = v
		}
		return out
	}
	for k, v := range importances {
		out[k] = v / total
	}
	return out
}

// FormatImportances renders a feature-importance map as a deterministically
// ordered "name=score" list, used by the orchestrator's run-report output.
func FormatImportances(importances map[string]float64) []string {
	names := make([]string, 0, len(importances))
	for name := range importances {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = fmt.Sprintf("%s=%.4f", name, importances[name])
	}
	return out
}
