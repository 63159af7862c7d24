// Package strategy provides the strategy factory: a template registry,
// a uniform signal contract, and cooldown/daily-trade-cap enforcement
// shared by every template. The registry/factory shape follows the
// teacher's StrategyRegistry, generalized from bar-by-bar crypto
// strategies emitting decimal.Decimal signals to candle-window FX
// strategies emitting pip-denominated float64 signals.
package strategy

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/quantlab/fxlab/pkg/types"
)

// Signal is the uniform output contract every template produces.
type Signal struct {
	Direction      types.Direction
	EntryPrice     float64
	StopLossPips   float64
	TakeProfitPips float64
	Confidence     float64 // 0-1
	Reason         string
}

// Context is the read-only view a template's OnCandle receives: the
// candle window (most recent last), the feature row for the latest
// candle (may be nil if features were not requested), and the temporal
// session context for the latest candle.
type Context struct {
	Window  []types.Candle
	Feature *types.FeatureVector
	Session types.TimeOfDayContext
}

// Template builds runtime strategy instances from a parameter set.
type Template interface {
	ID() string
	DefaultParameters() map[string]float64
	New(params map[string]float64, maxTradesPerDay, cooldownMinutes int) Runtime
}

// Runtime is one materialized, stateful strategy instance.
type Runtime interface {
	Name() string
	OnCandle(ctx Context) *Signal
	Reset()
}

// BaseRuntime enforces the cooldown and max-trades-per-day invariant
// common to every template: a signal is only emitted if at least
// CooldownMinutes have elapsed since the last trade and fewer than
// MaxTradesPerDay trades have fired on the current UTC calendar date.
type BaseRuntime struct {
	MaxTradesPerDay int
	CooldownMinutes int

	lastTradeNS int64
	haveTraded  bool
	tradeDate   int // UTC days since the Unix epoch
	tradesToday int
}

// CanTrade reports whether a new signal may fire at tsNS.
func (b *BaseRuntime) CanTrade(tsNS int64) bool {
	if b.haveTraded {
		elapsedMinutes := float64(tsNS-b.lastTradeNS) / 6e10
		if elapsedMinutes < float64(b.CooldownMinutes) {
			return false
		}
	}
	date := dateKey(tsNS)
	if date != b.tradeDate {
		return true // new day: the daily count resets on RecordTrade
	}
	return b.tradesToday < b.MaxTradesPerDay
}

// RecordTrade marks tsNS as the time of a newly emitted signal.
func (b *BaseRuntime) RecordTrade(tsNS int64) {
	date := dateKey(tsNS)
	if date != b.tradeDate {
		b.tradeDate = date
		b.tradesToday = 0
	}
	b.tradesToday++
	b.lastTradeNS = tsNS
	b.haveTraded = true
}

// Reset clears all cooldown/daily-cap state.
func (b *BaseRuntime) Reset() {
	*b = BaseRuntime{MaxTradesPerDay: b.MaxTradesPerDay, CooldownMinutes: b.CooldownMinutes}
}

func dateKey(tsNS int64) int {
	sec := tsNS / 1e9
	days := sec / 86400
	// Not calendar-accurate (ignores leap years/months) but monotonic and
	// stable enough to detect a UTC day rollover, which is all the
	// cooldown/daily-cap invariant needs.
	return int(days)
}

// Registry holds the set of available templates.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewRegistry builds a registry with every built-in template registered.
func NewRegistry() *Registry {
	r := &Registry{templates: make(map[string]Template)}
	r.Register(&MeanReversionTemplate{})
	r.Register(&MomentumBurstTemplate{})
	r.Register(&BreakoutTemplate{})
	r.Register(&TrendFollowerTemplate{})
	r.Register(&BollingerRSITemplate{})
	r.Register(&SessionBreakoutTemplate{})
	r.Register(&ScalpingTemplate{})
	return r
}

// Register adds or replaces a template.
func (r *Registry) Register(t Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.ID()] = t
}

// Get looks up a template by ID.
func (r *Registry) Get(id string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	return t, ok
}

// List returns every registered template ID.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.templates))
	for id := range r.templates {
		ids = append(ids, id)
	}
	return ids
}

// stopPipsOptions/targetPipsOptions are the risk leg every template is
// swept across, independent of the template's own parameters — this is
// what lets BuildGrid's risk/reward constraint (minRiskReward) mean
// something, since most templates don't parameterize their own stop/target.
var stopPipsOptions = []float64{8, 10, 15}
var targetPipsOptions = []float64{10, 13, 15, 20, 26}

const minRiskReward = 1.3
const minCooldownMinutes = 5

// BuildGrid enumerates the full parameter × risk-leg grid for every
// enabled template: each template's own numeric parameters are swept at
// half/default/1.5x their default value, crossed with a stop/target pip
// grid, filtered down to combinations whose reward/risk ratio clears
// minRiskReward, and materialized with a deterministic composite name.
// A configured cooldown below minCooldownMinutes is raised to it — the
// grid never searches a cooldown short enough to defeat the cap in
// practice.
func BuildGrid(cfg types.StrategyGridConfig, registry *Registry) []types.StrategyInstance {
	cooldown := cfg.CooldownMinutes
	if cooldown < minCooldownMinutes {
		cooldown = minCooldownMinutes
	}

	var out []types.StrategyInstance
	for _, id := range cfg.EnabledTemplates {
		t, ok := registry.Get(id)
		if !ok {
			continue
		}
		for _, params := range parameterGrid(t.DefaultParameters()) {
			for _, stop := range stopPipsOptions {
				for _, target := range targetPipsOptions {
					if target/stop < minRiskReward {
						continue
					}
					instParams := make(map[string]float64, len(params)+2)
					for k, v := range params {
						instParams[k] = v
					}
					instParams["stop_pips"] = stop
					instParams["target_pips"] = target

					out = append(out, types.StrategyInstance{
						TemplateID:      id,
						Name:            compositeName(id, params, stop, target),
						Parameters:      instParams,
						MaxTradesPerDay: cfg.MaxTradesPerDay,
						CooldownMinutes: cooldown,
					})
				}
			}
		}
	}
	return out
}

// parameterGrid sweeps every tunable parameter a template reports from
// DefaultParameters at half, default, and 1.5x its default value, taking
// the Cartesian product across parameters. pip_size is a fixed unit
// constant carried through unchanged, not a tunable.
func parameterGrid(defaults map[string]float64) []map[string]float64 {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		if k == "pip_size" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	variants := []map[string]float64{{}}
	for _, k := range keys {
		base := defaults[k]
		var next []map[string]float64
		for _, mult := range []float64{0.5, 1.0, 1.5} {
			v := base * mult
			for _, existing := range variants {
				combo := make(map[string]float64, len(existing)+1)
				for ek, ev := range existing {
					combo[ek] = ev
				}
				combo[k] = v
				next = append(next, combo)
			}
		}
		variants = next
	}
	if ps, ok := defaults["pip_size"]; ok {
		for _, v := range variants {
			v["pip_size"] = ps
		}
	}
	return variants
}

// compositeName builds the deterministic name, e.g.
// momentum_burst_L6_TP8_S10_T13: each swept parameter key is abbreviated
// to the initials of its underscore-separated words (std_dev_mult -> SDM,
// lookback -> L, threshold_pips -> TP), in sorted order for determinism,
// followed by the swept stop (S) and target (T) legs.
func compositeName(templateID string, params map[string]float64, stopPips, targetPips float64) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "pip_size" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	name := templateID
	for _, k := range keys {
		name += "_" + abbreviate(k) + formatParam(params[k])
	}
	name += "_S" + formatParam(stopPips) + "_T" + formatParam(targetPips)
	return name
}

func abbreviate(key string) string {
	parts := strings.Split(key, "_")
	out := make([]byte, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, byte(unicode.ToUpper(rune(p[0]))))
	}
	return string(out)
}

func formatParam(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// riskWrapper applies the grid's swept stop/target pip parameters to
// every signal a template emits, unless the template already set a more
// specific value. Most templates leave Signal.StopLossPips/TakeProfitPips
// at zero and rely on the simulator's bare fallback; this makes the
// risk/reward constraint BuildGrid enforces actually reach the simulator.
type riskWrapper struct {
	Runtime
	stopPips, targetPips float64
}

func (w *riskWrapper) OnCandle(ctx Context) *Signal {
	sig := w.Runtime.OnCandle(ctx)
	if sig == nil {
		return nil
	}
	if sig.StopLossPips <= 0 {
		sig.StopLossPips = w.stopPips
	}
	if sig.TakeProfitPips <= 0 {
		sig.TakeProfitPips = w.targetPips
	}
	return sig
}

// Instantiate materializes a Runtime for a StrategyInstance, wrapping it
// so the instance's swept stop_pips/target_pips parameters reach every
// signal it emits.
func Instantiate(inst types.StrategyInstance, registry *Registry) (Runtime, bool) {
	t, ok := registry.Get(inst.TemplateID)
	if !ok {
		return nil, false
	}
	rt := t.New(inst.Parameters, inst.MaxTradesPerDay, inst.CooldownMinutes)
	return &riskWrapper{
		Runtime:    rt,
		stopPips:   paramOr(inst.Parameters, "stop_pips", 10),
		targetPips: paramOr(inst.Parameters, "target_pips", 10),
	}, true
}
