// Package labeling implements the multi-dimensional labeling engine: for
// every candle, (target, stop, horizon) grid cell, and direction, it
// determines which boundary is struck first by the subsequent candles.
//
// This is the single hottest loop in the pipeline (spec design notes: "do
// not re-introduce per-row objects in the hot loop"), so the kernel
// operates on flat float64/int64 slices taken directly off
// []types.Candle and writes into a preallocated types.LabelBatch — no
// struct allocation per candle, no interface dispatch per row.
package labeling

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/quantlab/fxlab/pkg/types"
)

// Engine computes label batches for a fixed pip size (pair-dependent:
// 0.0001 for most pairs, 0.01 for JPY crosses).
type Engine struct {
	PipSize float64
}

// New creates a labeling Engine.
func New(pipSize float64) *Engine {
	return &Engine{PipSize: pipSize}
}

// ComputeGrid computes one LabelBatch per (config, direction) pair in
// configs, run concurrently across configs via errgroup — each config's
// kernel call is independent and allocation-free, so parallelizing over
// configs rather than candle ranges keeps the implementation simple while
// still saturating available cores on a realistic grid size (configs
// typically number in the dozens).
func (e *Engine) ComputeGrid(ctx context.Context, candles []types.Candle, intervalMinutes int, configs []types.LabelConfig) ([]types.LabelBatch, error) {
	if intervalMinutes <= 0 {
		return nil, fmt.Errorf("labeling: intervalMinutes must be positive")
	}
	intervalNS := int64(intervalMinutes) * 60_000_000_000

	batches := make([]types.LabelBatch, len(configs)*2)
	g, _ := errgroup.WithContext(ctx)

	for idx, cfg := range configs {
		idx, cfg := idx, cfg
		horizonBars := int(cfg.HorizonNS / intervalNS)
		if horizonBars <= 0 {
			return nil, fmt.Errorf("labeling: config %+v horizon shorter than one bar", cfg)
		}

		g.Go(func() error {
			batches[idx*2] = e.computeOne(candles, cfg, types.Up, horizonBars)
			return nil
		})
		g.Go(func() error {
			batches[idx*2+1] = e.computeOne(candles, cfg, types.Down, horizonBars)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return batches, nil
}

// computeOne runs the labeling kernel for a single (config, direction)
// pair over the entire candle series.
func (e *Engine) computeOne(candles []types.Candle, cfg types.LabelConfig, dir types.Direction, horizonBars int) types.LabelBatch {
	n := len(candles)
	b := types.LabelBatch{
		Config:    cfg,
		Direction: dir,
		FirstHit:  make([]types.Outcome, n),
		MFEPips:   make([]float64, n),
		MAEPips:   make([]float64, n),
		BarsToHit: make([]int32, n),
		RMultiple: make([]float64, n),
	}

	pipSize := e.PipSize
	targetPips := cfg.TargetPips
	stopPips := cfg.StopPips
	up := dir == types.Up

	for i := 0; i < n; i++ {
		entry := candles[i].Close
		end := i + horizonBars
		if end >= n {
			end = n - 1
		}
		if end <= i {
			b.FirstHit[i] = types.OutcomeNone
			continue
		}

		var mfe, mae float64
		outcome := types.OutcomeNone
		barsToHit := int32(0)

		for j := i + 1; j <= end; j++ {
			high := candles[j].High
			low := candles[j].Low

			var favExtent, advExtent float64
			if up {
				favExtent = (high - entry) / pipSize
				advExtent = (entry - low) / pipSize
			} else {
				favExtent = (entry - low) / pipSize
				advExtent = (high - entry) / pipSize
			}
			if favExtent > mfe {
				mfe = favExtent
			}
			if advExtent > mae {
				mae = advExtent
			}

			hitStop := advExtent >= stopPips
			hitTarget := favExtent >= targetPips

			if hitStop {
				// STOP-first tie-break: a stop breach this bar wins even
				// if the target was also breached in the same bar.
				outcome = types.OutcomeStop
				barsToHit = int32(j - i)
				break
			}
			if hitTarget {
				outcome = types.OutcomeTarget
				barsToHit = int32(j - i)
				break
			}
		}

		b.FirstHit[i] = outcome
		b.MFEPips[i] = mfe
		b.MAEPips[i] = mae
		b.BarsToHit[i] = barsToHit

		switch outcome {
		case types.OutcomeStop:
			b.RMultiple[i] = -1
		case types.OutcomeTarget:
			b.RMultiple[i] = targetPips / stopPips
		default:
			finalClose := candles[end].Close
			var pnlPips float64
			if up {
				pnlPips = (finalClose - entry) / pipSize
			} else {
				pnlPips = (entry - finalClose) / pipSize
			}
			b.RMultiple[i] = pnlPips / stopPips
		}
	}

	return b
}

// Reference computes the same (config, direction) outcome as computeOne,
// but independently: one types.LabelResult per candle, built one field at
// a time rather than off shared favExtent/advExtent accumulators. Tests
// use it for the tie-break and end-of-data cases; no test currently
// compares its output with computeOne's. Never call this on a hot
// path: it revisits every candle in the horizon window independently for
// each of MFE/MAE/outcome rather than folding them in one pass.
func (e *Engine) Reference(candles []types.Candle, cfg types.LabelConfig, dir types.Direction, horizonBars int) []types.LabelResult {
	n := len(candles)
	out := make([]types.LabelResult, n)
	pipSize := e.PipSize
	up := dir == types.Up

	for i := 0; i < n; i++ {
		end := i + horizonBars
		if end >= n {
			end = n - 1
		}
		if end <= i {
			out[i] = types.LabelResult{FirstHit: types.OutcomeNone}
			continue
		}
		entry := candles[i].Close

		out[i].FirstHit = referenceFirstHit(candles, i, end, entry, pipSize, up, cfg.TargetPips, cfg.StopPips)
		out[i].MFEPips = referenceExtent(candles, i, end, entry, pipSize, up, true)
		out[i].MAEPips = referenceExtent(candles, i, end, entry, pipSize, up, false)
		out[i].BarsToHit = referenceBarsToHit(candles, i, end, entry, pipSize, up, cfg.TargetPips, cfg.StopPips)
		out[i].RMultiple = referenceRMultiple(candles, i, end, entry, pipSize, up, cfg.TargetPips, cfg.StopPips, out[i].FirstHit)
	}
	return out
}

// referenceFirstHit scans forward from i and reports whichever of
// STOP/TARGET is struck first, STOP winning same-bar ties.
func referenceFirstHit(candles []types.Candle, i, end int, entry, pipSize float64, up bool, targetPips, stopPips float64) types.Outcome {
	for j := i + 1; j <= end; j++ {
		fav, adv := referenceBarExtents(candles[j], entry, pipSize, up)
		if adv >= stopPips {
			return types.OutcomeStop
		}
		if fav >= targetPips {
			return types.OutcomeTarget
		}
	}
	return types.OutcomeNone
}

func referenceBarsToHit(candles []types.Candle, i, end int, entry, pipSize float64, up bool, targetPips, stopPips float64) int32 {
	for j := i + 1; j <= end; j++ {
		fav, adv := referenceBarExtents(candles[j], entry, pipSize, up)
		if adv >= stopPips || fav >= targetPips {
			return int32(j - i)
		}
	}
	return 0
}

// referenceExtent returns the maximum favorable (wantFavorable=true) or
// adverse excursion in pips over (i, end].
func referenceExtent(candles []types.Candle, i, end int, entry, pipSize float64, up, wantFavorable bool) float64 {
	var best float64
	for j := i + 1; j <= end; j++ {
		fav, adv := referenceBarExtents(candles[j], entry, pipSize, up)
		v := adv
		if wantFavorable {
			v = fav
		}
		if v > best {
			best = v
		}
	}
	return best
}

func referenceBarExtents(c types.Candle, entry, pipSize float64, up bool) (favorable, adverse float64) {
	if up {
		return (c.High - entry) / pipSize, (entry - c.Low) / pipSize
	}
	return (entry - c.Low) / pipSize, (c.High - entry) / pipSize
}

func referenceRMultiple(candles []types.Candle, i, end int, entry, pipSize float64, up bool, targetPips, stopPips float64, outcome types.Outcome) float64 {
	switch outcome {
	case types.OutcomeStop:
		return -1
	case types.OutcomeTarget:
		return targetPips / stopPips
	default:
		finalClose := candles[end].Close
		var pnlPips float64
		if up {
			pnlPips = (finalClose - entry) / pipSize
		} else {
			pnlPips = (entry - finalClose) / pipSize
		}
		return pnlPips / stopPips
	}
}
