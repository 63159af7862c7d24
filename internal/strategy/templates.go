package strategy

import (
	"math"

	"github.com/quantlab/fxlab/pkg/types"
)

// paramOr returns params[key], or def if key is absent. A key present
// with value zero returns zero.
func paramOr(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

func latestClose(window []types.Candle) float64 {
	return window[len(window)-1].Close
}

// --- mean_reversion ---------------------------------------------------

// MeanReversionTemplate trades reversion to a Bollinger-style band built
// from a simple moving average and standard deviation of closes.
type MeanReversionTemplate struct{}

func (MeanReversionTemplate) ID() string { return "mean_reversion" }

func (MeanReversionTemplate) DefaultParameters() map[string]float64 {
	return map[string]float64{"period": 20, "std_dev_mult": 2.0}
}

func (t MeanReversionTemplate) New(params map[string]float64, maxTrades, cooldown int) Runtime {
	return &meanReversionRuntime{
		BaseRuntime: BaseRuntime{MaxTradesPerDay: maxTrades, CooldownMinutes: cooldown},
		period:      int(paramOr(params, "period", 20)),
		stdDevMult:  paramOr(params, "std_dev_mult", 2.0),
	}
}

type meanReversionRuntime struct {
	BaseRuntime
	period     int
	stdDevMult float64
}

func (r *meanReversionRuntime) Name() string { return "mean_reversion" }

func (r *meanReversionRuntime) OnCandle(ctx Context) *Signal {
	w := ctx.Window
	if len(w) < r.period {
		return nil
	}
	closes := make([]float64, r.period)
	for i := 0; i < r.period; i++ {
		closes[i] = w[len(w)-r.period+i].Close
	}
	mean, std := meanStdDev(closes)
	if std == 0 {
		return nil
	}
	current := latestClose(w)
	upper := mean + r.stdDevMult*std
	lower := mean - r.stdDevMult*std
	ts := w[len(w)-1].OpenTimeNS
	if !r.CanTrade(ts) {
		return nil
	}

	switch {
	case current < lower:
		r.RecordTrade(ts)
		return &Signal{Direction: types.Up, EntryPrice: current, Confidence: clamp01((lower - current) / std), Reason: "below_lower_band"}
	case current > upper:
		r.RecordTrade(ts)
		return &Signal{Direction: types.Down, EntryPrice: current, Confidence: clamp01((current - upper) / std), Reason: "above_upper_band"}
	}
	return nil
}

// --- momentum_burst -----------------------------------------------------

// MomentumBurstTemplate fires when the net move over a short lookback
// exceeds a pip threshold, trading in the direction of the burst.
type MomentumBurstTemplate struct{}

func (MomentumBurstTemplate) ID() string { return "momentum_burst" }

func (MomentumBurstTemplate) DefaultParameters() map[string]float64 {
	return map[string]float64{"lookback": 6, "threshold_pips": 8, "pip_size": 0.0001}
}

func (t MomentumBurstTemplate) New(params map[string]float64, maxTrades, cooldown int) Runtime {
	return &momentumBurstRuntime{
		BaseRuntime:   BaseRuntime{MaxTradesPerDay: maxTrades, CooldownMinutes: cooldown},
		lookback:      int(paramOr(params, "lookback", 6)),
		thresholdPips: paramOr(params, "threshold_pips", 8),
		pipSize:       paramOr(params, "pip_size", 0.0001),
	}
}

type momentumBurstRuntime struct {
	BaseRuntime
	lookback      int
	thresholdPips float64
	pipSize       float64
}

func (r *momentumBurstRuntime) Name() string { return "momentum_burst" }

func (r *momentumBurstRuntime) OnCandle(ctx Context) *Signal {
	w := ctx.Window
	if len(w) <= r.lookback {
		return nil
	}
	past := w[len(w)-1-r.lookback].Close
	current := latestClose(w)
	movePips := (current - past) / r.pipSize
	ts := w[len(w)-1].OpenTimeNS
	if math.Abs(movePips) < r.thresholdPips || !r.CanTrade(ts) {
		return nil
	}
	r.RecordTrade(ts)
	dir := types.Up
	if movePips < 0 {
		dir = types.Down
	}
	return &Signal{
		Direction:  dir,
		EntryPrice: current,
		Confidence: clamp01(math.Abs(movePips) / (2 * r.thresholdPips)),
		Reason:     "momentum_burst",
	}
}

// --- breakout -------------------------------------------------------------

// BreakoutTemplate trades a close beyond the N-bar high/low range.
type BreakoutTemplate struct{}

func (BreakoutTemplate) ID() string { return "breakout" }

func (BreakoutTemplate) DefaultParameters() map[string]float64 {
	return map[string]float64{"lookback": 20}
}

func (t BreakoutTemplate) New(params map[string]float64, maxTrades, cooldown int) Runtime {
	return &breakoutRuntime{
		BaseRuntime: BaseRuntime{MaxTradesPerDay: maxTrades, CooldownMinutes: cooldown},
		lookback:    int(paramOr(params, "lookback", 20)),
	}
}

type breakoutRuntime struct {
	BaseRuntime
	lookback int
}

func (r *breakoutRuntime) Name() string { return "breakout" }

func (r *breakoutRuntime) OnCandle(ctx Context) *Signal {
	w := ctx.Window
	if len(w) < r.lookback+1 {
		return nil
	}
	rangeWindow := w[len(w)-r.lookback-1 : len(w)-1]
	highest, lowest := rangeWindow[0].High, rangeWindow[0].Low
	for _, c := range rangeWindow {
		if c.High > highest {
			highest = c.High
		}
		if c.Low < lowest {
			lowest = c.Low
		}
	}
	current := latestClose(w)
	ts := w[len(w)-1].OpenTimeNS
	if !r.CanTrade(ts) {
		return nil
	}
	span := highest - lowest
	if span <= 0 {
		return nil
	}
	switch {
	case current > highest:
		r.RecordTrade(ts)
		return &Signal{Direction: types.Up, EntryPrice: current, Confidence: clamp01((current - highest) / span), Reason: "bullish_breakout"}
	case current < lowest:
		r.RecordTrade(ts)
		return &Signal{Direction: types.Down, EntryPrice: current, Confidence: clamp01((lowest - current) / span), Reason: "bearish_breakout"}
	}
	return nil
}

// --- trend_follower -----------------------------------------------------

// TrendFollowerTemplate trades EMA fast/slow crossovers.
type TrendFollowerTemplate struct{}

func (TrendFollowerTemplate) ID() string { return "trend_follower" }

func (TrendFollowerTemplate) DefaultParameters() map[string]float64 {
	return map[string]float64{"fast_period": 12, "slow_period": 26}
}

func (t TrendFollowerTemplate) New(params map[string]float64, maxTrades, cooldown int) Runtime {
	return &trendFollowerRuntime{
		BaseRuntime: BaseRuntime{MaxTradesPerDay: maxTrades, CooldownMinutes: cooldown},
		fastPeriod:  int(paramOr(params, "fast_period", 12)),
		slowPeriod:  int(paramOr(params, "slow_period", 26)),
	}
}

type trendFollowerRuntime struct {
	BaseRuntime
	fastPeriod, slowPeriod int
	prevFast, prevSlow     float64
	haveEMA                bool
}

func (r *trendFollowerRuntime) Name() string { return "trend_follower" }

func (r *trendFollowerRuntime) OnCandle(ctx Context) *Signal {
	w := ctx.Window
	if len(w) < r.slowPeriod+1 {
		return nil
	}
	fast := emaOver(w, r.fastPeriod)
	slow := emaOver(w, r.slowPeriod)
	defer func() { r.prevFast, r.prevSlow, r.haveEMA = fast, slow, true }()

	if !r.haveEMA {
		return nil
	}
	wasBullish := r.prevFast > r.prevSlow
	isBullish := fast > slow
	ts := w[len(w)-1].OpenTimeNS
	if wasBullish == isBullish || !r.CanTrade(ts) {
		return nil
	}
	r.RecordTrade(ts)
	current := latestClose(w)
	if isBullish {
		return &Signal{Direction: types.Up, EntryPrice: current, Confidence: 0.6, Reason: "bullish_ema_crossover"}
	}
	return &Signal{Direction: types.Down, EntryPrice: current, Confidence: 0.6, Reason: "bearish_ema_crossover"}
}

func emaOver(w []types.Candle, period int) float64 {
	start := len(w) - period
	if start < 0 {
		start = 0
	}
	ema := w[start].Close
	alpha := 2.0 / float64(period+1)
	for i := start + 1; i < len(w); i++ {
		ema = w[i].Close*alpha + ema*(1-alpha)
	}
	return ema
}

// --- bollinger_rsi (optional) --------------------------------------------

// BollingerRSITemplate requires both a Bollinger-band extreme and an RSI
// confirmation before signaling, reducing the mean-reversion template's
// false-positive rate in trending regimes.
type BollingerRSITemplate struct{}

func (BollingerRSITemplate) ID() string { return "bollinger_rsi" }

func (BollingerRSITemplate) DefaultParameters() map[string]float64 {
	return map[string]float64{"period": 20, "std_dev_mult": 2.0, "rsi_period": 14, "oversold": 30, "overbought": 70}
}

func (t BollingerRSITemplate) New(params map[string]float64, maxTrades, cooldown int) Runtime {
	return &bollingerRSIRuntime{
		BaseRuntime: BaseRuntime{MaxTradesPerDay: maxTrades, CooldownMinutes: cooldown},
		period:      int(paramOr(params, "period", 20)),
		stdDevMult:  paramOr(params, "std_dev_mult", 2.0),
		rsiPeriod:   int(paramOr(params, "rsi_period", 14)),
		oversold:    paramOr(params, "oversold", 30),
		overbought:  paramOr(params, "overbought", 70),
	}
}

type bollingerRSIRuntime struct {
	BaseRuntime
	period, rsiPeriod     int
	stdDevMult            float64
	oversold, overbought  float64
}

func (r *bollingerRSIRuntime) Name() string { return "bollinger_rsi" }

func (r *bollingerRSIRuntime) OnCandle(ctx Context) *Signal {
	w := ctx.Window
	need := r.period
	if r.rsiPeriod+1 > need {
		need = r.rsiPeriod + 1
	}
	if len(w) < need {
		return nil
	}
	closes := make([]float64, r.period)
	for i := 0; i < r.period; i++ {
		closes[i] = w[len(w)-r.period+i].Close
	}
	mean, std := meanStdDev(closes)
	if std == 0 {
		return nil
	}
	current := latestClose(w)
	rsi := rsiOver(w, r.rsiPeriod)
	ts := w[len(w)-1].OpenTimeNS
	if !r.CanTrade(ts) {
		return nil
	}

	lower := mean - r.stdDevMult*std
	upper := mean + r.stdDevMult*std
	if current < lower && rsi < r.oversold {
		r.RecordTrade(ts)
		return &Signal{Direction: types.Up, EntryPrice: current, Confidence: clamp01((r.oversold - rsi) / r.oversold), Reason: "band_and_rsi_oversold"}
	}
	if current > upper && rsi > r.overbought {
		r.RecordTrade(ts)
		return &Signal{Direction: types.Down, EntryPrice: current, Confidence: clamp01((rsi - r.overbought) / (100 - r.overbought)), Reason: "band_and_rsi_overbought"}
	}
	return nil
}

func rsiOver(w []types.Candle, period int) float64 {
	start := len(w) - period - 1
	if start < 0 {
		start = 0
	}
	var gain, loss float64
	for i := start + 1; i < len(w); i++ {
		delta := w[i].Close - w[i-1].Close
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	n := float64(len(w) - 1 - start)
	if n == 0 {
		return 50
	}
	avgGain, avgLoss := gain/n, loss/n
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// --- session_breakout (optional) -----------------------------------------

// SessionBreakoutTemplate only evaluates a breakout condition while the
// latest candle falls in the London (08-16 UTC) or New York (13-21 UTC)
// session hours, rather than the whole day. It does not restrict itself
// to the opening part of a session.
type SessionBreakoutTemplate struct{}

func (SessionBreakoutTemplate) ID() string { return "session_breakout" }

func (SessionBreakoutTemplate) DefaultParameters() map[string]float64 {
	return map[string]float64{"lookback": 8}
}

func (t SessionBreakoutTemplate) New(params map[string]float64, maxTrades, cooldown int) Runtime {
	return &sessionBreakoutRuntime{
		BaseRuntime: BaseRuntime{MaxTradesPerDay: maxTrades, CooldownMinutes: cooldown},
		lookback:    int(paramOr(params, "lookback", 8)),
	}
}

type sessionBreakoutRuntime struct {
	BaseRuntime
	lookback int
}

func (r *sessionBreakoutRuntime) Name() string { return "session_breakout" }

func (r *sessionBreakoutRuntime) OnCandle(ctx Context) *Signal {
	if !ctx.Session.LondonSession && !ctx.Session.NewYorkSession {
		return nil
	}
	w := ctx.Window
	if len(w) < r.lookback+1 {
		return nil
	}
	rangeWindow := w[len(w)-r.lookback-1 : len(w)-1]
	highest, lowest := rangeWindow[0].High, rangeWindow[0].Low
	for _, c := range rangeWindow {
		if c.High > highest {
			highest = c.High
		}
		if c.Low < lowest {
			lowest = c.Low
		}
	}
	current := latestClose(w)
	ts := w[len(w)-1].OpenTimeNS
	if !r.CanTrade(ts) {
		return nil
	}
	switch {
	case current > highest:
		r.RecordTrade(ts)
		return &Signal{Direction: types.Up, EntryPrice: current, Confidence: 0.65, Reason: "session_open_range_breakout_up"}
	case current < lowest:
		r.RecordTrade(ts)
		return &Signal{Direction: types.Down, EntryPrice: current, Confidence: 0.65, Reason: "session_open_range_breakout_down"}
	}
	return nil
}

// --- scalping (optional) --------------------------------------------------

// ScalpingTemplate is a short-lookback, small-deviation mean-reversion
// variant intended for small targets/tight stops rather than a separate
// algorithm family.
type ScalpingTemplate struct{}

func (ScalpingTemplate) ID() string { return "scalping" }

func (ScalpingTemplate) DefaultParameters() map[string]float64 {
	return map[string]float64{"period": 5, "threshold_pips": 3, "pip_size": 0.0001}
}

func (t ScalpingTemplate) New(params map[string]float64, maxTrades, cooldown int) Runtime {
	return &scalpingRuntime{
		BaseRuntime:   BaseRuntime{MaxTradesPerDay: maxTrades, CooldownMinutes: cooldown},
		period:        int(paramOr(params, "period", 5)),
		thresholdPips: paramOr(params, "threshold_pips", 3),
		pipSize:       paramOr(params, "pip_size", 0.0001),
	}
}

type scalpingRuntime struct {
	BaseRuntime
	period        int
	thresholdPips float64
	pipSize       float64
}

func (r *scalpingRuntime) Name() string { return "scalping" }

func (r *scalpingRuntime) OnCandle(ctx Context) *Signal {
	w := ctx.Window
	if len(w) < r.period {
		return nil
	}
	mean := 0.0
	for i := len(w) - r.period; i < len(w); i++ {
		mean += w[i].Close
	}
	mean /= float64(r.period)
	current := latestClose(w)
	devPips := (current - mean) / r.pipSize
	ts := w[len(w)-1].OpenTimeNS
	if math.Abs(devPips) < r.thresholdPips || !r.CanTrade(ts) {
		return nil
	}
	r.RecordTrade(ts)
	dir := types.Down
	if devPips < 0 {
		dir = types.Up
	}
	return &Signal{Direction: dir, EntryPrice: current, Confidence: clamp01(math.Abs(devPips) / (2 * r.thresholdPips)), Reason: "scalp_reversion"}
}

func meanStdDev(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range xs {
		sum += v
	}
	mean := sum / float64(len(xs))
	var sumSq float64
	for _, v := range xs {
		d := v - mean
		sumSq += d * d
	}
	return mean, math.Sqrt(sumSq / float64(len(xs)))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
