// Package fingerprint computes content-addressed cache keys for every
// stage of the pipeline.
//
// The original research scripts fingerprinted a tick/candle series with
// only its length and first/last price — two datasets of the same length
// that happen to start and end the same way collide under that scheme
// even if the middle diverges completely. This package fixes that by
// hashing a deterministic stride sample of the series body in addition
// to its length and endpoints (see Candles).
package fingerprint

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/quantlab/fxlab/pkg/types"
)

// Digest is a 64-bit content fingerprint, formatted as hex for filenames.
type Digest uint64

func (d Digest) String() string {
	var buf [16]byte
	const hex = "0123456789abcdef"
	v := uint64(d)
	for i := 15; i >= 0; i-- {
		buf[i] = hex[v&0xf]
		v >>= 4
	}
	return string(buf[:])
}

// maxSamples sets the sampling stride for series longer than it: the
// stride is len/maxSamples, so fewer than 2*maxSamples prices are hashed
// and fingerprinting stays O(1) in memory and bounded in time for huge
// series.
const maxSamples = 256

// Candles fingerprints a candle series: length, first/last Close, plus a
// stride sample of Close prices through the body. This is deliberately
// stronger than "length + first + last" alone, which cannot distinguish
// two series that only differ in the middle.
func Candles(candles []types.Candle) Digest {
	h := xxhash.New()
	var buf [8]byte

	writeU64(h, buf[:], uint64(len(candles)))
	if len(candles) == 0 {
		return Digest(h.Sum64())
	}

	writeF64(h, buf[:], candles[0].Close)
	writeF64(h, buf[:], candles[len(candles)-1].Close)

	stride := 1
	if len(candles) > maxSamples {
		stride = len(candles) / maxSamples
	}
	for i := 0; i < len(candles); i += stride {
		writeF64(h, buf[:], candles[i].Close)
		writeI64(h, buf[:], candles[i].OpenTimeNS)
	}

	return Digest(h.Sum64())
}

// LabelConfig fingerprints one grid cell.
func LabelConfig(cfg types.LabelConfig) Digest {
	h := xxhash.New()
	var buf [8]byte
	writeF64(h, buf[:], cfg.TargetPips)
	writeF64(h, buf[:], cfg.StopPips)
	writeI64(h, buf[:], cfg.HorizonNS)
	return Digest(h.Sum64())
}

// FeatureSchema fingerprints the ordered feature column list, so schema
// drift (adding/removing/reordering a feature) invalidates any cache
// keyed on it.
func FeatureSchema(schema types.FeatureSchema) Digest {
	h := xxhash.New()
	for _, name := range schema.Names {
		h.Write([]byte(name))
		h.Write([]byte{0})
	}
	return Digest(h.Sum64())
}

// Combine folds a set of upstream fingerprints and a stage name into one
// digest — used by each pipeline stage to derive its own cache key from
// its inputs without recomputing them.
func Combine(stage string, upstream ...Digest) Digest {
	sorted := append([]Digest(nil), upstream...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	h := xxhash.New()
	h.Write([]byte(stage))
	var buf [8]byte
	for _, d := range sorted {
		binary.LittleEndian.PutUint64(buf[:], uint64(d))
		h.Write(buf[:])
	}
	return Digest(h.Sum64())
}

func writeU64(h *xxhash.Digest, buf []byte, v uint64) {
	binary.LittleEndian.PutUint64(buf, v)
	h.Write(buf)
}

func writeI64(h *xxhash.Digest, buf []byte, v int64) {
	writeU64(h, buf, uint64(v))
}

func writeF64(h *xxhash.Digest, buf []byte, v float64) {
	writeU64(h, buf, math.Float64bits(v))
}
