// Package candle aggregates a monotonic tick stream into fixed-interval
// OHLC bars for one or more (interval, lookback) universes at once.
//
// Bars are right-exclusive: a bar covering [openTime, openTime+interval)
// absorbs every tick with openTime <= ts < openTime+interval. There is no
// forward-fill — an interval with zero ticks produces no candle at all,
// and callers must not assume consecutive OpenTimeNS values.
package candle

import (
	"fmt"

	"github.com/quantlab/fxlab/pkg/types"
)

// Aggregator accumulates ticks into candles for a single universe.
// It is not safe for concurrent use by multiple goroutines on the same
// instance; callers wanting concurrent universes should construct one
// Aggregator per universe (see Multi).
type Aggregator struct {
	universe types.Universe
	pipSize  float64

	intervalNS int64
	open       bool
	cur        types.Candle
	ticksInBar int64
}

// New creates an Aggregator for one universe.
func New(universe types.Universe, pipSize float64) *Aggregator {
	return &Aggregator{
		universe:   universe,
		pipSize:    pipSize,
		intervalNS: int64(universe.IntervalMinutes) * 60_000_000_000,
	}
}

// Push feeds one tick into the aggregator. When the tick belongs to a new
// bar period, the prior bar (if any) is finalized and returned in closed;
// ok reports whether a bar was closed. Ticks must arrive in non-decreasing
// TimestampNS order — Push returns an error otherwise, since out-of-order
// ticks would silently corrupt High/Low.
func (a *Aggregator) Push(t types.Tick) (closed types.Candle, ok bool, err error) {
	mid := t.Mid()
	barOpen := floorToInterval(t.TimestampNS, a.intervalNS)

	if a.open && barOpen < a.cur.OpenTimeNS {
		return types.Candle{}, false, fmt.Errorf("candle: out-of-order tick at %d (current bar open %d)",
			t.TimestampNS, a.cur.OpenTimeNS)
	}

	if !a.open {
		a.startBar(barOpen, mid)
		return types.Candle{}, false, nil
	}

	if barOpen == a.cur.OpenTimeNS {
		a.extendBar(mid)
		return types.Candle{}, false, nil
	}

	closed = a.finalizeBar()
	a.startBar(barOpen, mid)
	return closed, true, nil
}

// Flush finalizes and returns the in-progress bar, if any. Call this once
// after the last tick of a dataset to avoid silently dropping the final
// partial bar.
func (a *Aggregator) Flush() (types.Candle, bool) {
	if !a.open {
		return types.Candle{}, false
	}
	c := a.finalizeBar()
	a.open = false
	return c, true
}

func (a *Aggregator) startBar(openTime int64, mid float64) {
	a.open = true
	a.ticksInBar = 1
	a.cur = types.Candle{
		OpenTimeNS:      openTime,
		Open:            mid,
		High:            mid,
		Low:             mid,
		Close:           mid,
		Mid:             mid,
		Volume:          1,
		IntervalMinutes: a.universe.IntervalMinutes,
		LookbackPeriods: a.universe.LookbackPeriods,
	}
}

func (a *Aggregator) extendBar(mid float64) {
	a.ticksInBar++
	if mid > a.cur.High {
		a.cur.High = mid
	}
	if mid < a.cur.Low {
		a.cur.Low = mid
	}
	a.cur.Close = mid
	a.cur.Mid = mid
	a.cur.Volume = a.ticksInBar
}

func (a *Aggregator) finalizeBar() types.Candle {
	return a.cur
}

func floorToInterval(tsNS, intervalNS int64) int64 {
	return (tsNS / intervalNS) * intervalNS
}

// Multi runs N independent Aggregators, one per universe, over the same
// tick stream in a single pass, returning every universe's candle slice.
// Grounded in the same "one state machine per key, merge only at
// finalize" shape as a multi-exchange candle aggregator, specialized here
// to multi-resolution aggregation of a single tick source instead of
// multi-source aggregation of a single resolution.
type Multi struct {
	aggs    []*Aggregator
	candles [][]types.Candle
}

// NewMulti creates a Multi for the given universes.
func NewMulti(universes []types.Universe, pipSize float64) *Multi {
	m := &Multi{
		aggs:    make([]*Aggregator, len(universes)),
		candles: make([][]types.Candle, len(universes)),
	}
	for i, u := range universes {
		m.aggs[i] = New(u, pipSize)
	}
	return m
}

// Push feeds one tick to every universe's aggregator.
func (m *Multi) Push(t types.Tick) error {
	for i, a := range m.aggs {
		closed, ok, err := a.Push(t)
		if err != nil {
			return fmt.Errorf("candle: universe %d: %w", i, err)
		}
		if ok {
			m.candles[i] = append(m.candles[i], closed)
		}
	}
	return nil
}

// Finish flushes every aggregator's final partial bar and returns the
// complete candle slices, ordered the same as the universes passed to
// NewMulti.
func (m *Multi) Finish() [][]types.Candle {
	for i, a := range m.aggs {
		if c, ok := a.Flush(); ok {
			m.candles[i] = append(m.candles[i], c)
		}
	}
	return m.candles
}
