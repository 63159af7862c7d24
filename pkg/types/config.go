// Package types provides configuration types for the FX research engine.
package types

import "github.com/shopspring/decimal"

// LabelGridConfig enumerates the (target, stop, horizon) grid the Labeling
// Engine sweeps for every candle/universe.
type LabelGridConfig struct {
	TargetPips  []float64 `json:"targetPips"`
	StopPips    []float64 `json:"stopPips"`
	HorizonBars []int     `json:"horizonBars"`
}

// DefaultLabelGridConfig mirrors a typical research sweep.
func DefaultLabelGridConfig() LabelGridConfig {
	return LabelGridConfig{
		TargetPips:  []float64{5, 10, 20, 30},
		StopPips:    []float64{5, 10, 20},
		HorizonBars: []int{12, 24, 48},
	}
}

// FeatureConfig controls which feature families the Feature Extractor
// computes and the lookback window used for rolling statistics.
type FeatureConfig struct {
	LookbackPeriods      int  `json:"lookbackPeriods"`
	EnableSpectral       bool `json:"enableSpectral"`
	EnableChaosMetrics   bool `json:"enableChaosMetrics"`
	EnableCrossPairCorr  bool `json:"enableCrossPairCorr"`
	PermutationEntropyM  int  `json:"permutationEntropyM"`
}

// DefaultFeatureConfig is the baseline feature set.
func DefaultFeatureConfig() FeatureConfig {
	return FeatureConfig{
		LookbackPeriods:     64,
		EnableSpectral:      true,
		EnableChaosMetrics:  true,
		EnableCrossPairCorr: false,
		PermutationEntropyM: 3,
	}
}

// RegimeConfig controls the K-means regime detector.
type RegimeConfig struct {
	MinClusters int `json:"minClusters"`
	MaxClusters int `json:"maxClusters"`
	MaxIters    int `json:"maxIters"`
	Restarts    int `json:"restarts"`
	Seed        int64 `json:"seed"`
}

// DefaultRegimeConfig mirrors the teacher's HMM state-count search range,
// adapted to a silhouette-selected K over [2,8].
func DefaultRegimeConfig() RegimeConfig {
	return RegimeConfig{
		MinClusters: 2,
		MaxClusters: 8,
		MaxIters:    100,
		Restarts:    8,
		Seed:        1,
	}
}

// PatternConfig controls the Pattern Miner's signature catalog size.
type PatternConfig struct {
	TopKPerBucket   int `json:"topKPerBucket"`
	MinOccurrences  int `json:"minOccurrences"`
	ImportanceTrees int `json:"importanceTrees"`
}

// DefaultPatternConfig is the baseline mining configuration.
func DefaultPatternConfig() PatternConfig {
	return PatternConfig{
		TopKPerBucket:   20,
		MinOccurrences:  30,
		ImportanceTrees: 50,
	}
}

// StrategyGridConfig bounds the Strategy Factory's parameter enumeration.
type StrategyGridConfig struct {
	EnabledTemplates  []string  `json:"enabledTemplates"`
	LotSizes          []float64 `json:"lotSizes"`
	MaxTradesPerDay   int       `json:"maxTradesPerDay"`
	CooldownMinutes   int       `json:"cooldownMinutes"`
	UseKellyLotSizing bool      `json:"useKellyLotSizing"`
}

// DefaultStrategyGridConfig enables the four required templates.
func DefaultStrategyGridConfig() StrategyGridConfig {
	return StrategyGridConfig{
		EnabledTemplates: []string{
			"mean_reversion", "momentum_burst", "breakout", "trend_follower",
		},
		LotSizes:          []float64{0.01, 0.05, 0.1},
		MaxTradesPerDay:   10,
		CooldownMinutes:   15,
		UseKellyLotSizing: true,
	}
}

// BacktestConfig parameterizes the tick-level simulator shared across all
// strategy instances in a run.
type BacktestConfig struct {
	InitialCapital   decimal.Decimal `json:"initialCapital"`
	PipValuePerLot   decimal.Decimal `json:"pipValuePerLot"`
	CommissionPerLot decimal.Decimal `json:"commissionPerLot"`
	PipSize          float64         `json:"pipSize"`
	MaxDurationBars  int             `json:"maxDurationBars"`
	EnableMonteCarlo bool            `json:"enableMonteCarlo"`
	MonteCarloIters  int             `json:"monteCarloIterations"`
	WalkForward      WalkForwardConfig `json:"walkForward"`
}

// DefaultBacktestConfig mirrors common retail FX account sizing.
func DefaultBacktestConfig() BacktestConfig {
	return BacktestConfig{
		InitialCapital:   decimal.NewFromInt(10000),
		PipValuePerLot:   decimal.NewFromFloat(10),
		CommissionPerLot: decimal.NewFromFloat(7),
		PipSize:          0.0001,
		MaxDurationBars:  0,
		EnableMonteCarlo: false,
		MonteCarloIters:  1000,
		WalkForward:      DefaultWalkForwardConfig(),
	}
}

// WalkForwardConfig bounds the in-sample/out-of-sample window sweep used to
// estimate a strategy's robustness to overfitting.
type WalkForwardConfig struct {
	Enabled          bool    `json:"enabled"`
	WindowBars       int     `json:"windowBars"`
	StepBars         int     `json:"stepBars"`
	InSampleFraction float64 `json:"inSampleFraction"`
}

// DefaultWalkForwardConfig splits each window 80/20 in-sample/out-of-sample.
func DefaultWalkForwardConfig() WalkForwardConfig {
	return WalkForwardConfig{
		Enabled:          false,
		WindowBars:       2000,
		StepBars:         500,
		InSampleFraction: 0.8,
	}
}

// RankerConfig controls the composite ranking score and its minimum
// trade-count filter.
type RankerConfig struct {
	MinTrades int                `json:"minTrades"`
	Weights   map[string]float64 `json:"weights"`
}

// DefaultRankerConfig weighs risk-adjusted return over raw return.
func DefaultRankerConfig() RankerConfig {
	return RankerConfig{
		MinTrades: 30,
		Weights: map[string]float64{
			"sharpe_ratio":  0.35,
			"calmar_ratio":  0.20,
			"profit_factor": 0.20,
			"total_return":  0.15,
			"win_rate":      0.10,
		},
	}
}

// RunConfig is the single immutable configuration value threaded through
// an entire pipeline run. It replaces the ad hoc global/mutable state the
// original research scripts relied on (see spec design notes): every
// component receives it by value from the orchestrator.
type RunConfig struct {
	Pair            string             `json:"pair"`
	Year            int                `json:"year"`
	DataDir         string             `json:"dataDir"`
	CacheDir        string             `json:"cacheDir"`
	Universes       []Universe         `json:"universes"`
	LabelGrid       LabelGridConfig    `json:"labelGrid"`
	Features        FeatureConfig      `json:"features"`
	Regime          RegimeConfig       `json:"regime"`
	Patterns        PatternConfig      `json:"patterns"`
	StrategyGrid    StrategyGridConfig `json:"strategyGrid"`
	Backtest        BacktestConfig     `json:"backtest"`
	Ranker          RankerConfig       `json:"ranker"`
	NumWorkers      int                `json:"numWorkers"`
	SubprocessBatch bool               `json:"subprocessBatch"`
	CheckpointEvery int                `json:"checkpointEvery"`
}

// DefaultRunConfig returns a baseline single-pair, single-year run
// configuration; callers override Pair/Year/DataDir/CacheDir.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Universes: []Universe{
			{IntervalMinutes: 1, LookbackPeriods: 64},
			{IntervalMinutes: 5, LookbackPeriods: 64},
			{IntervalMinutes: 15, LookbackPeriods: 64},
		},
		LabelGrid:       DefaultLabelGridConfig(),
		Features:        DefaultFeatureConfig(),
		Regime:          DefaultRegimeConfig(),
		Patterns:        DefaultPatternConfig(),
		StrategyGrid:    DefaultStrategyGridConfig(),
		Backtest:        DefaultBacktestConfig(),
		Ranker:          DefaultRankerConfig(),
		NumWorkers:      4,
		SubprocessBatch: true,
		CheckpointEvery: 50,
	}
}
