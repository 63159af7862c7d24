package data

import (
	"fmt"
	"sort"

	"github.com/quantlab/fxlab/internal/errs"
	"github.com/quantlab/fxlab/pkg/types"
)

// QualityGateConfig bounds the checks Gate runs. Defaults are tuned for
// interbank FX tick data rather than the teacher's crypto/stock presets.
type QualityGateConfig struct {
	MaxSpreadPips     float64
	MaxGapMultiple    float64
	MinQualityScore   int
}

// DefaultQualityGateConfig mirrors a conservative majors-pair tick feed.
func DefaultQualityGateConfig() QualityGateConfig {
	return QualityGateConfig{
		MaxSpreadPips:   50,
		MaxGapMultiple:  50,
		MinQualityScore: 70,
	}
}

// Issue is one quality problem found in a tick series.
type Issue struct {
	Type     string
	Severity string
	Index    int
	Message  string
}

// Report summarizes Gate's findings for one pair/year.
type Report struct {
	Pair         string
	Year         int
	TotalTicks   int
	Issues       []Issue
	QualityScore int
	Usable       bool
}

// Gate runs the quality checks the teacher's DataQualityValidator runs
// (monotonic ordering, duplicate timestamps, spread blowouts, session
// gaps) over a pip size, scores the series 0-100, and returns an
// *errs.InputError when the series is unusable outright (empty, or
// containing non-monotonic timestamps — the labeling/candle kernels both
// assume monotonic ticks and would silently misbehave otherwise).
func Gate(pair string, year int, ticks []types.Tick, pipSize float64, cfg QualityGateConfig) (*Report, error) {
	if len(ticks) == 0 {
		return nil, &errs.InputError{Pair: pair, Year: year, Reason: "no ticks to validate"}
	}

	var issues []Issue
	for i := 1; i < len(ticks); i++ {
		if ticks[i].TimestampNS < ticks[i-1].TimestampNS {
			return nil, &errs.InputError{Pair: pair, Year: year, Reason: fmt.Sprintf("non-monotonic timestamp at index %d", i)}
		}
		if ticks[i].TimestampNS == ticks[i-1].TimestampNS {
			issues = append(issues, Issue{Type: "DUPLICATE_TIMESTAMP", Severity: "low", Index: i, Message: "duplicate timestamp"})
		}
	}

	for i, t := range ticks {
		if t.Bid <= 0 || t.Ask <= 0 {
			issues = append(issues, Issue{Type: "NON_POSITIVE_PRICE", Severity: "critical", Index: i, Message: "bid/ask must be positive"})
			continue
		}
		if t.Ask < t.Bid {
			issues = append(issues, Issue{Type: "CROSSED_QUOTE", Severity: "critical", Index: i, Message: "ask below bid"})
			continue
		}
		if t.SpreadPips(pipSize) > cfg.MaxSpreadPips {
			issues = append(issues, Issue{Type: "SPREAD_BLOWOUT", Severity: "high", Index: i, Message: "spread exceeds configured maximum"})
		}
	}

	medianGapNS := medianGap(ticks)
	if medianGapNS > 0 {
		for i := 1; i < len(ticks); i++ {
			gap := ticks[i].TimestampNS - ticks[i-1].TimestampNS
			if float64(gap) > float64(medianGapNS)*cfg.MaxGapMultiple {
				issues = append(issues, Issue{Type: "GAP_DETECTED", Severity: "medium", Index: i - 1, Message: "tick gap far exceeds the median inter-tick interval"})
			}
		}
	}

	score := scoreIssues(len(ticks), issues)
	usable := score >= cfg.MinQualityScore && !hasCritical(issues)
	return &Report{Pair: pair, Year: year, TotalTicks: len(ticks), Issues: issues, QualityScore: score, Usable: usable}, nil
}

func medianGap(ticks []types.Tick) int64 {
	n := len(ticks) - 1
	if n <= 0 {
		return 0
	}
	sample := n
	if sample > 1000 {
		sample = 1000
	}
	gaps := make([]int64, sample)
	for i := 0; i < sample; i++ {
		gaps[i] = ticks[i+1].TimestampNS - ticks[i].TimestampNS
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	return gaps[len(gaps)/2]
}

func hasCritical(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == "critical" {
			return true
		}
	}
	return false
}

// scoreIssues mirrors the teacher's calculateQualityScore: start at 100,
// subtract a per-severity penalty normalized by dataset size, floor at 0.
func scoreIssues(total int, issues []Issue) int {
	if total == 0 {
		return 0
	}
	penalty := 0.0
	for _, i := range issues {
		switch i.Severity {
		case "critical":
			penalty += 10
		case "high":
			penalty += 3
		case "medium":
			penalty += 1
		default:
			penalty += 0.2
		}
	}
	normalized := penalty / (float64(total) / 1000.0)
	score := 100 - int(normalized)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}
