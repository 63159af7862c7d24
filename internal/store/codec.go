package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/quantlab/fxlab/pkg/types"
)

// EncodeCandles serializes a candle slice column-by-column (struct of
// arrays on disk, matching the in-memory layout used by every downstream
// kernel) so a reader can mmap/slice a single column without touching the
// rest.
func EncodeCandles(candles []types.Candle) []byte {
	var buf bytes.Buffer
	n := uint64(len(candles))
	writeU64(&buf, n)
	for _, c := range candles {
		writeI64(&buf, c.OpenTimeNS)
	}
	for _, c := range candles {
		writeF64(&buf, c.Open)
	}
	for _, c := range candles {
		writeF64(&buf, c.High)
	}
	for _, c := range candles {
		writeF64(&buf, c.Low)
	}
	for _, c := range candles {
		writeF64(&buf, c.Close)
	}
	for _, c := range candles {
		writeF64(&buf, c.Mid)
	}
	for _, c := range candles {
		writeI64(&buf, c.Volume)
	}
	return buf.Bytes()
}

// DecodeCandles is the inverse of EncodeCandles. intervalMinutes and
// lookbackPeriods are not persisted per-row (they're constant for the
// whole file, carried by the cache path) and are stamped onto every row.
func DecodeCandles(data []byte, intervalMinutes, lookbackPeriods int) ([]types.Candle, error) {
	r := bytes.NewReader(data)
	n, err := readU64(r)
	if err != nil {
		return nil, err
	}
	out := make([]types.Candle, n)

	for i := range out {
		v, err := readI64(r)
		if err != nil {
			return nil, err
		}
		out[i].OpenTimeNS = v
	}
	for i := range out {
		v, err := readF64(r)
		if err != nil {
			return nil, err
		}
		out[i].Open = v
	}
	for i := range out {
		v, err := readF64(r)
		if err != nil {
			return nil, err
		}
		out[i].High = v
	}
	for i := range out {
		v, err := readF64(r)
		if err != nil {
			return nil, err
		}
		out[i].Low = v
	}
	for i := range out {
		v, err := readF64(r)
		if err != nil {
			return nil, err
		}
		out[i].Close = v
	}
	for i := range out {
		v, err := readF64(r)
		if err != nil {
			return nil, err
		}
		out[i].Mid = v
	}
	for i := range out {
		v, err := readI64(r)
		if err != nil {
			return nil, err
		}
		out[i].Volume = v
		out[i].IntervalMinutes = intervalMinutes
		out[i].LookbackPeriods = lookbackPeriods
	}
	return out, nil
}

// EncodeLabelBatch serializes one (config, direction) label batch.
func EncodeLabelBatch(b *types.LabelBatch) []byte {
	var buf bytes.Buffer
	n := uint64(b.Len())
	writeU64(&buf, n)
	writeF64(&buf, b.Config.TargetPips)
	writeF64(&buf, b.Config.StopPips)
	writeI64(&buf, b.Config.HorizonNS)
	writeU64(&buf, uint64(b.Direction))

	for _, v := range b.FirstHit {
		buf.WriteByte(byte(v))
	}
	for _, v := range b.MFEPips {
		writeF64(&buf, v)
	}
	for _, v := range b.MAEPips {
		writeF64(&buf, v)
	}
	for _, v := range b.BarsToHit {
		writeU64(&buf, uint64(uint32(v)))
	}
	for _, v := range b.RMultiple {
		writeF64(&buf, v)
	}
	return buf.Bytes()
}

// DecodeLabelBatch is the inverse of EncodeLabelBatch.
func DecodeLabelBatch(data []byte) (*types.LabelBatch, error) {
	r := bytes.NewReader(data)
	n, err := readU64(r)
	if err != nil {
		return nil, err
	}
	b := &types.LabelBatch{}
	if b.Config.TargetPips, err = readF64(r); err != nil {
		return nil, err
	}
	if b.Config.StopPips, err = readF64(r); err != nil {
		return nil, err
	}
	if b.Config.HorizonNS, err = readI64(r); err != nil {
		return nil, err
	}
	dir, err := readU64(r)
	if err != nil {
		return nil, err
	}
	b.Direction = types.Direction(dir)

	b.FirstHit = make([]types.Outcome, n)
	for i := range b.FirstHit {
		v, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		b.FirstHit[i] = types.Outcome(v)
	}
	b.MFEPips = make([]float64, n)
	for i := range b.MFEPips {
		if b.MFEPips[i], err = readF64(r); err != nil {
			return nil, err
		}
	}
	b.MAEPips = make([]float64, n)
	for i := range b.MAEPips {
		if b.MAEPips[i], err = readF64(r); err != nil {
			return nil, err
		}
	}
	b.BarsToHit = make([]int32, n)
	for i := range b.BarsToHit {
		v, err := readU64(r)
		if err != nil {
			return nil, err
		}
		b.BarsToHit[i] = int32(uint32(v))
	}
	b.RMultiple = make([]float64, n)
	for i := range b.RMultiple {
		if b.RMultiple[i], err = readF64(r); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// EncodeFeatureMatrix serializes a dense row-major feature matrix plus
// its schema names, so a reader can validate schema compatibility without
// a side-channel.
func EncodeFeatureMatrix(schema types.FeatureSchema, rows []types.FeatureVector) []byte {
	var buf bytes.Buffer
	writeU64(&buf, uint64(len(schema.Names)))
	for _, name := range schema.Names {
		b := []byte(name)
		writeU64(&buf, uint64(len(b)))
		buf.Write(b)
	}
	writeU64(&buf, uint64(len(rows)))
	for _, row := range rows {
		for _, v := range row.Values {
			writeF64(&buf, v)
		}
	}
	return buf.Bytes()
}

// DecodeFeatureMatrix is the inverse of EncodeFeatureMatrix.
func DecodeFeatureMatrix(data []byte) (types.FeatureSchema, []types.FeatureVector, error) {
	r := bytes.NewReader(data)
	nCols, err := readU64(r)
	if err != nil {
		return types.FeatureSchema{}, nil, err
	}
	names := make([]string, nCols)
	for i := range names {
		l, err := readU64(r)
		if err != nil {
			return types.FeatureSchema{}, nil, err
		}
		b := make([]byte, l)
		if _, err := io.ReadFull(r, b); err != nil {
			return types.FeatureSchema{}, nil, err
		}
		names[i] = string(b)
	}
	nRows, err := readU64(r)
	if err != nil {
		return types.FeatureSchema{}, nil, err
	}
	rows := make([]types.FeatureVector, nRows)
	for i := range rows {
		rows[i].Values = make([]float64, nCols)
		for j := range rows[i].Values {
			if rows[i].Values[j], err = readF64(r); err != nil {
				return types.FeatureSchema{}, nil, err
			}
		}
	}
	return types.FeatureSchema{Names: names}, rows, nil
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeI64(buf *bytes.Buffer, v int64) { writeU64(buf, uint64(v)) }

func writeF64(buf *bytes.Buffer, v float64) { writeU64(buf, math.Float64bits(v)) }

func readU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("store: short read: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func readI64(r io.Reader) (int64, error) {
	v, err := readU64(r)
	return int64(v), err
}

func readF64(r io.Reader) (float64, error) {
	v, err := readU64(r)
	return math.Float64frombits(v), err
}
