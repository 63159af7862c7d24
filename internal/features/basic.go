// Package features computes the Feature Extractor's per-window feature
// vectors: basic statistics, spectral content, chaos/entropy metrics, and
// temporal context. Every feature that needs more history than is
// available returns math.NaN rather than an error — insufficient data is
// expected at the start of a series, not exceptional.
package features

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/quantlab/fxlab/pkg/types"
)

// Schema returns the ordered feature column names produced by Extract for
// the given Config. The schema itself is hashed into the cache
// fingerprint (see internal/fingerprint), so changing this list
// invalidates any existing feature cache.
func Schema(cfg types.FeatureConfig) types.FeatureSchema {
	names := []string{
		"ret_mean", "ret_stddev", "ret_skew", "ret_kurtosis",
		"range_mean", "range_stddev",
		"close_zscore", "close_slope",
		"hour_of_day", "day_of_week", "london_session", "ny_session", "tokyo_session",
	}
	if cfg.EnableSpectral {
		names = append(names, "spectral_centroid", "spectral_entropy", "dominant_freq_power")
	}
	if cfg.EnableChaosMetrics {
		names = append(names,
			"hurst_exponent", "dfa_alpha", "lyapunov_estimate",
			"higuchi_fractal_dim", "permutation_entropy", "sample_entropy",
			"complexity", "entropy_plane_c",
		)
	}
	return types.FeatureSchema{Names: names}
}

// Extract computes one feature row for the window ending at index i
// (inclusive) in closes, using up to cfg.LookbackPeriods prior candles.
func Extract(candles []types.Candle, i int, cfg types.FeatureConfig) types.FeatureVector {
	lookback := cfg.LookbackPeriods
	start := i - lookback + 1
	if start < 0 {
		start = 0
	}
	window := candles[start : i+1]

	closes := make([]float64, len(window))
	ranges := make([]float64, len(window))
	for j, c := range window {
		closes[j] = c.Close
		ranges[j] = c.High - c.Low
	}
	returns := diffRatio(closes)

	values := []float64{}
	values = append(values, basicStats(returns, lookback-1)...)
	values = append(values, rangeStats(ranges, lookback)...)
	values = append(values, closePosition(closes, lookback)...)
	values = append(values, temporalFeatures(candles[i].OpenTimeNS)...)

	if cfg.EnableSpectral {
		values = append(values, spectralFeatures(returns, lookback-1)...)
	}
	if cfg.EnableChaosMetrics {
		values = append(values, chaosFeatures(closes, returns, cfg, lookback)...)
	}

	return types.FeatureVector{Values: values}
}

func diffRatio(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			out[i-1] = math.NaN()
			continue
		}
		out[i-1] = closes[i]/closes[i-1] - 1
	}
	return out
}

func basicStats(returns []float64, minLen int) []float64 {
	if len(returns) < minLen {
		return []float64{math.NaN(), math.NaN(), math.NaN(), math.NaN()}
	}
	mean, std := stat.MeanStdDev(returns, nil)
	skew := stat.Skew(returns, nil)
	kurt := stat.ExKurtosis(returns, nil)
	return []float64{mean, std, skew, kurt}
}

func rangeStats(ranges []float64, minLen int) []float64 {
	if len(ranges) < minLen {
		return []float64{math.NaN(), math.NaN()}
	}
	mean, std := stat.MeanStdDev(ranges, nil)
	return []float64{mean, std}
}

func closePosition(closes []float64, minLen int) []float64 {
	if len(closes) < minLen {
		return []float64{math.NaN(), math.NaN()}
	}
	mean, std := stat.MeanStdDev(closes, nil)
	z := math.NaN()
	if std > 0 {
		z = (closes[len(closes)-1] - mean) / std
	}
	slope := linearSlope(closes)
	return []float64{z, slope}
}

func linearSlope(y []float64) float64 {
	n := len(y)
	if n < 2 {
		return math.NaN()
	}
	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i)
	}
	_, slope := stat.LinearRegression(x, y, nil, false)
	return slope
}

func temporalFeatures(tsNS int64) []float64 {
	ctx := types.SessionContext(tsNS)
	boolf := func(b bool) float64 {
		if b {
			return 1
		}
		return 0
	}
	return []float64{
		float64(ctx.HourOfDay),
		float64(ctx.DayOfWeek),
		boolf(ctx.LondonSession),
		boolf(ctx.NewYorkSession),
		boolf(ctx.TokyoSession),
	}
}
