package features

import (
	"math"
	"sort"

	"github.com/quantlab/fxlab/pkg/types"
)

// chaosFeatures computes the nonlinear-dynamics feature block: Hurst
// exponent (rescaled range), DFA scaling exponent, a Rosenstein-style
// largest-Lyapunov-exponent estimate, Higuchi fractal dimension,
// permutation entropy, sample entropy, and a complexity-entropy pair.
// Each falls back to NaN when the window is too short for a stable
// estimate, matching the rest of the extractor's insufficient-data
// contract.
func chaosFeatures(closes, returns []float64, cfg types.FeatureConfig, minLen int) []float64 {
	nan8 := []float64{math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN()}
	if len(closes) < minLen || len(closes) < 16 {
		return nan8
	}

	hurst := estimateHurst(closes)
	dfa := estimateDFA(closes)
	lyap := estimateLyapunov(returns)
	higuchi := higuchiFractalDim(closes)
	m := cfg.PermutationEntropyM
	if m < 2 {
		m = 3
	}
	permEnt := permutationEntropy(closes, m)
	sampEnt := sampleEntropy(returns, 2, 0.2)
	complexity := permEnt * (1 - permEnt)
	entropyPlaneC := jensenShannonComplexity(closes, m)

	return []float64{hurst, dfa, lyap, higuchi, permEnt, sampEnt, complexity, entropyPlaneC}
}

// estimateHurst computes the Hurst exponent via classic rescaled-range
// (R/S) analysis over a log-spaced set of sub-window sizes.
func estimateHurst(series []float64) float64 {
	n := len(series)
	if n < 16 {
		return math.NaN()
	}

	var logN, logRS []float64
	for _, size := range rsWindowSizes(n) {
		rsValues := make([]float64, 0, n/size)
		for start := 0; start+size <= n; start += size {
			chunk := series[start : start+size]
			rs := rescaledRange(chunk)
			if !math.IsNaN(rs) && rs > 0 {
				rsValues = append(rsValues, rs)
			}
		}
		if len(rsValues) == 0 {
			continue
		}
		logN = append(logN, math.Log(float64(size)))
		logRS = append(logRS, math.Log(mean(rsValues)))
	}
	if len(logN) < 2 {
		return math.NaN()
	}
	_, slope := simpleOLS(logN, logRS)
	return slope
}

func rsWindowSizes(n int) []int {
	var sizes []int
	for size := 8; size <= n/2; size *= 2 {
		sizes = append(sizes, size)
	}
	return sizes
}

func rescaledRange(chunk []float64) float64 {
	m := mean(chunk)
	var cum, maxC, minC, sumSq float64
	for i, v := range chunk {
		dev := v - m
		cum += dev
		sumSq += dev * dev
		if i == 0 || cum > maxC {
			maxC = cum
		}
		if i == 0 || cum < minC {
			minC = cum
		}
	}
	r := maxC - minC
	std := math.Sqrt(sumSq / float64(len(chunk)))
	if std == 0 {
		return math.NaN()
	}
	return r / std
}

// estimateDFA computes the detrended fluctuation analysis scaling
// exponent alpha over the integrated (cumulative sum of mean-removed)
// series.
func estimateDFA(series []float64) float64 {
	n := len(series)
	if n < 16 {
		return math.NaN()
	}
	m := mean(series)
	profile := make([]float64, n)
	var cum float64
	for i, v := range series {
		cum += v - m
		profile[i] = cum
	}

	var logN, logF []float64
	for size := 4; size <= n/4; size *= 2 {
		var fluct []float64
		for start := 0; start+size <= n; start += size {
			chunk := profile[start : start+size]
			x := make([]float64, len(chunk))
			for i := range x {
				x[i] = float64(i)
			}
			alpha, beta := simpleOLS(x, chunk)
			var ss float64
			for i, v := range chunk {
				trend := alpha + beta*float64(i)
				ss += (v - trend) * (v - trend)
			}
			fluct = append(fluct, math.Sqrt(ss/float64(len(chunk))))
		}
		if len(fluct) == 0 {
			continue
		}
		logN = append(logN, math.Log(float64(size)))
		logF = append(logF, math.Log(mean(fluct)))
	}
	if len(logN) < 2 {
		return math.NaN()
	}
	_, slope := simpleOLS(logN, logF)
	return slope
}

// estimateLyapunov is a simplified Rosenstein-method largest Lyapunov
// exponent estimate: for each point, find its nearest neighbor (excluding
// temporal neighbors) and track the average log divergence rate over a
// short horizon.
func estimateLyapunov(series []float64) float64 {
	n := len(series)
	if n < 20 {
		return math.NaN()
	}
	const horizon = 5
	const minSeparation = 3

	var divergences []float64
	for i := 0; i < n-horizon; i++ {
		bestJ := -1
		bestDist := math.Inf(1)
		for j := 0; j < n-horizon; j++ {
			if j == i || absInt(j-i) < minSeparation {
				continue
			}
			d := math.Abs(series[i] - series[j])
			if d < bestDist {
				bestDist = d
				bestJ = j
			}
		}
		if bestJ < 0 || bestDist == 0 {
			continue
		}
		divergedDist := math.Abs(series[i+horizon] - series[bestJ+horizon])
		if divergedDist <= 0 {
			continue
		}
		divergences = append(divergences, math.Log(divergedDist/bestDist)/float64(horizon))
	}
	if len(divergences) == 0 {
		return math.NaN()
	}
	return mean(divergences)
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// higuchiFractalDim estimates the Higuchi fractal dimension of a series.
func higuchiFractalDim(series []float64) float64 {
	n := len(series)
	if n < 16 {
		return math.NaN()
	}
	const kMax = 6

	var logK, logL []float64
	for k := 1; k <= kMax; k++ {
		var lSum float64
		count := 0
		for mth := 0; mth < k; mth++ {
			var length float64
			steps := 0
			for i := mth + k; i < n; i += k {
				length += math.Abs(series[i] - series[i-k])
				steps++
			}
			if steps == 0 {
				continue
			}
			norm := float64(n-1) / (float64(steps) * float64(k))
			lSum += length * norm / float64(k)
			count++
		}
		if count == 0 {
			continue
		}
		avgL := lSum / float64(count)
		if avgL <= 0 {
			continue
		}
		logK = append(logK, math.Log(1.0/float64(k)))
		logL = append(logL, math.Log(avgL))
	}
	if len(logK) < 2 {
		return math.NaN()
	}
	_, slope := simpleOLS(logK, logL)
	return slope
}

// permutationEntropy computes the normalized Shannon entropy over the
// distribution of ordinal patterns of length m.
func permutationEntropy(series []float64, m int) float64 {
	n := len(series)
	if n < m+1 {
		return math.NaN()
	}
	counts := make(map[string]int)
	for i := 0; i+m <= n; i++ {
		window := series[i : i+m]
		perm := ordinalPattern(window)
		counts[perm]++
	}
	total := n - m + 1
	var h float64
	for _, c := range counts {
		p := float64(c) / float64(total)
		h -= p * math.Log2(p)
	}
	maxH := math.Log2(factorial(m))
	if maxH == 0 {
		return math.NaN()
	}
	return h / maxH
}

func ordinalPattern(window []float64) string {
	idx := make([]int, len(window))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return window[idx[a]] < window[idx[b]] })
	buf := make([]byte, len(idx))
	for rank, originalPos := range idx {
		buf[originalPos] = byte('0' + rank)
	}
	return string(buf)
}

func factorial(n int) float64 {
	f := 1.0
	for i := 2; i <= n; i++ {
		f *= float64(i)
	}
	return f
}

// jensenShannonComplexity is a simplified statistical complexity measure
// (product of permutation entropy and its distance from uniformity),
// placing a series on the complexity-entropy plane alongside
// permutationEntropy.
func jensenShannonComplexity(series []float64, m int) float64 {
	h := permutationEntropy(series, m)
	if math.IsNaN(h) {
		return math.NaN()
	}
	return 4 * h * (1 - h)
}

// sampleEntropy estimates SampEn(m, r) over a normalized series.
func sampleEntropy(series []float64, m int, rFrac float64) float64 {
	n := len(series)
	if n < m+2 {
		return math.NaN()
	}
	_, std := meanStd(series)
	if std == 0 {
		return math.NaN()
	}
	r := rFrac * std

	countMatches := func(length int) int {
		matches := 0
		for i := 0; i+length < n; i++ {
			for j := i + 1; j+length < n; j++ {
				if chebyshevClose(series[i:i+length], series[j:j+length], r) {
					matches++
				}
			}
		}
		return matches
	}

	b := countMatches(m)
	a := countMatches(m + 1)
	if b == 0 || a == 0 {
		return math.NaN()
	}
	return -math.Log(float64(a) / float64(b))
}

func chebyshevClose(a, b []float64, r float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > r {
			return false
		}
	}
	return true
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}

func meanStd(xs []float64) (float64, float64) {
	m := mean(xs)
	var sumSq float64
	for _, v := range xs {
		d := v - m
		sumSq += d * d
	}
	if len(xs) < 2 {
		return m, 0
	}
	return m, math.Sqrt(sumSq / float64(len(xs)-1))
}

// simpleOLS fits y = alpha + beta*x by ordinary least squares.
func simpleOLS(x, y []float64) (alpha, beta float64) {
	n := float64(len(x))
	if n < 2 {
		return 0, math.NaN()
	}
	mx, my := mean(x), mean(y)
	var num, den float64
	for i := range x {
		dx := x[i] - mx
		num += dx * (y[i] - my)
		den += dx * dx
	}
	if den == 0 {
		return my, 0
	}
	beta = num / den
	alpha = my - beta*mx
	return alpha, beta
}
