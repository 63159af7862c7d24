package features

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// spectralFeatures computes a real FFT over the return series and derives
// three summary statistics: the power-weighted centroid frequency, the
// Shannon entropy of the normalized power spectrum, and the power
// fraction carried by the dominant (non-DC) frequency bin.
func spectralFeatures(returns []float64, minLen int) []float64 {
	if len(returns) < minLen || len(returns) < 8 {
		return []float64{math.NaN(), math.NaN(), math.NaN()}
	}

	clean := fillNaN(returns)
	fft := fourier.NewFFT(len(clean))
	coeffs := fft.Coefficients(nil, clean)

	power := make([]float64, len(coeffs))
	var totalPower float64
	for i, c := range coeffs {
		p := real(c)*real(c) + imag(c)*imag(c)
		power[i] = p
		totalPower += p
	}
	if totalPower <= 0 {
		return []float64{math.NaN(), math.NaN(), math.NaN()}
	}

	var centroid, entropy float64
	maxPower := 0.0
	for i, p := range power {
		if i == 0 {
			continue // skip DC bin for centroid/entropy/dominant-bin purposes
		}
		frac := p / totalPower
		centroid += float64(i) * frac
		if frac > 0 {
			entropy -= frac * math.Log2(frac)
		}
		if p > maxPower {
			maxPower = p
		}
	}
	dominantFrac := maxPower / totalPower

	return []float64{centroid, entropy, dominantFrac}
}

// fillNaN replaces any NaN entries (from a zero-close divide) with 0 so
// the FFT never propagates a NaN across every bin.
func fillNaN(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, v := range xs {
		if math.IsNaN(v) {
			out[i] = 0
			continue
		}
		out[i] = v
	}
	return out
}
