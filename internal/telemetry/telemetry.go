// Package telemetry provides the in-process prometheus metrics registry
// for the pipeline. This is ambient observability for a long-running
// batch job, not the out-of-scope HTML dashboard: a caller may expose
// Registry() on a /metrics endpoint, or simply ignore it.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Registry holds every counter/gauge/histogram the pipeline publishes.
type Registry struct {
	reg *prometheus.Registry

	CandlesAggregated prometheus.Counter
	LabelsComputed    prometheus.Counter
	FeaturesComputed  prometheus.Counter
	CacheHits         *prometheus.CounterVec
	CacheMisses       *prometheus.CounterVec
	BacktestsRun      prometheus.Counter
	WorkerCrashes     prometheus.Counter
	StageLatency      *prometheus.HistogramVec
	ActiveWorkers     prometheus.Gauge
}

// New creates a fresh registry with every metric registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		CandlesAggregated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fxlab",
			Name:      "candles_aggregated_total",
			Help:      "Total candles produced by the candle aggregator.",
		}),
		LabelsComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fxlab",
			Name:      "labels_computed_total",
			Help:      "Total (candle, config, direction) label outcomes computed.",
		}),
		FeaturesComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fxlab",
			Name:      "features_computed_total",
			Help:      "Total feature vectors computed.",
		}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fxlab",
			Name:      "cache_hits_total",
			Help:      "Cache hits by pipeline stage.",
		}, []string{"stage"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fxlab",
			Name:      "cache_misses_total",
			Help:      "Cache misses by pipeline stage.",
		}, []string{"stage"}),
		BacktestsRun: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fxlab",
			Name:      "backtests_run_total",
			Help:      "Total (strategy, lot_size) backtests executed.",
		}),
		WorkerCrashes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fxlab",
			Name:      "worker_crashes_total",
			Help:      "Total subprocess-isolated worker crashes observed.",
		}),
		StageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fxlab",
			Name:      "stage_latency_seconds",
			Help:      "Wall-clock latency of each pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fxlab",
			Name:      "active_workers",
			Help:      "Currently running subprocess workers.",
		}),
	}

	reg.MustRegister(
		r.CandlesAggregated, r.LabelsComputed, r.FeaturesComputed,
		r.CacheHits, r.CacheMisses, r.BacktestsRun, r.WorkerCrashes,
		r.StageLatency, r.ActiveWorkers,
	)
	return r
}

// Gatherer exposes the underlying prometheus registry for a caller that
// wants to serve it over HTTP.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
