package strategy

import "github.com/quantlab/fxlab/pkg/types"

// PatternRecognitionTemplate trades whenever the current (regime,
// movement-level) context matches a signature the Pattern Miner flagged
// as historically biased toward hitting TARGET, rather than a fixed
// price rule. The signature-to-direction map is supplied at construction
// time, so the template stays decoupled from the miner's internals.
// NewRegistry does not include this template, and nothing in this module
// registers it or calls SetContext, so BuildGrid never produces it.
type PatternRecognitionTemplate struct {
	Signatures map[string]types.Direction
}

func (PatternRecognitionTemplate) ID() string { return "pattern_recognition" }

func (PatternRecognitionTemplate) DefaultParameters() map[string]float64 {
	return map[string]float64{}
}

func (t PatternRecognitionTemplate) New(params map[string]float64, maxTrades, cooldown int) Runtime {
	return &patternRecognitionRuntime{
		BaseRuntime: BaseRuntime{MaxTradesPerDay: maxTrades, CooldownMinutes: cooldown},
		signatures:  t.Signatures,
	}
}

type patternRecognitionRuntime struct {
	BaseRuntime
	signatures  map[string]types.Direction
	currentSig  string
	currentDir  types.Direction
	haveContext bool
}

func (r *patternRecognitionRuntime) Name() string { return "pattern_recognition" }

// SetContext attaches the current bucket signature (as produced by
// internal/patterns) for the next candle, since the generic
// strategy.Context carries only feature/session data, not
// regime/movement-level classification. Without a SetContext call naming
// a known signature, OnCandle emits no signal.
func (r *patternRecognitionRuntime) SetContext(signature string) {
	dir, ok := r.signatures[signature]
	r.currentSig = signature
	r.currentDir = dir
	r.haveContext = ok
}

// RegisterPatternTemplate wires a mined signature-to-direction map into
// the registry as the "pattern_recognition" template. The orchestrator
// does not call it; a registry built by NewRegistry alone has no
// "pattern_recognition" template.
func RegisterPatternTemplate(registry *Registry, signatures map[string]types.Direction) {
	registry.Register(&PatternRecognitionTemplate{Signatures: signatures})
}

func (r *patternRecognitionRuntime) OnCandle(ctx Context) *Signal {
	if !r.haveContext || len(ctx.Window) == 0 {
		return nil
	}
	ts := ctx.Window[len(ctx.Window)-1].OpenTimeNS
	if !r.CanTrade(ts) {
		return nil
	}
	r.RecordTrade(ts)
	return &Signal{
		Direction:  r.currentDir,
		EntryPrice: ctx.Window[len(ctx.Window)-1].Close,
		Confidence: 0.55,
		Reason:     "mined_pattern:" + r.currentSig,
	}
}
