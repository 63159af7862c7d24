// Package config loads the immutable RunConfig a pipeline run is built
// from, and derives the cache key prefixes the orchestrator uses to
// namespace on-disk artifacts.
//
// Every component downstream receives a types.RunConfig by value — there
// is no package-level mutable configuration anywhere in this module.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/quantlab/fxlab/internal/errs"
	"github.com/quantlab/fxlab/internal/fingerprint"
	"github.com/quantlab/fxlab/pkg/types"
)

// Load reads a YAML run-config file (if path is non-empty) and merges in
// FXLAB_-prefixed environment overrides, producing a fully-populated
// RunConfig starting from types.DefaultRunConfig.
func Load(path, pair string, year int) (types.RunConfig, error) {
	cfg := types.DefaultRunConfig()
	cfg.Pair = pair
	cfg.Year = year

	v := viper.New()
	v.SetEnvPrefix("FXLAB")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := v.Unmarshal(&cfg); err != nil {
			return cfg, fmt.Errorf("config: unmarshal %s: %w", path, err)
		}
	}

	if v.IsSet("dataDir") {
		cfg.DataDir = v.GetString("dataDir")
	}
	if v.IsSet("cacheDir") {
		cfg.CacheDir = v.GetString("cacheDir")
	}
	if v.IsSet("numWorkers") {
		cfg.NumWorkers = v.GetInt("numWorkers")
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks structural invariants on a RunConfig before any work
// begins. A ConfigError here is fatal at the orchestrator boundary.
func Validate(cfg types.RunConfig) error {
	if cfg.Pair == "" {
		return &errs.ConfigError{Field: "pair", Reason: "must not be empty"}
	}
	if cfg.Year < 1970 {
		return &errs.ConfigError{Field: "year", Reason: "must be a plausible calendar year"}
	}
	if cfg.DataDir == "" {
		return &errs.ConfigError{Field: "dataDir", Reason: "must not be empty"}
	}
	if cfg.CacheDir == "" {
		return &errs.ConfigError{Field: "cacheDir", Reason: "must not be empty"}
	}
	if len(cfg.Universes) == 0 {
		return &errs.ConfigError{Field: "universes", Reason: "must enumerate at least one interval/lookback pair"}
	}
	if len(cfg.LabelGrid.TargetPips) == 0 || len(cfg.LabelGrid.StopPips) == 0 || len(cfg.LabelGrid.HorizonBars) == 0 {
		return &errs.ConfigError{Field: "labelGrid", Reason: "target/stop/horizon grids must be non-empty"}
	}
	if cfg.NumWorkers <= 0 {
		return &errs.ConfigError{Field: "numWorkers", Reason: "must be positive"}
	}
	return nil
}

// StablePrefix is the cache-directory prefix for artifacts that are valid
// as long as the input data and grid/feature/regime configuration haven't
// changed: candles, labels, features, regimes, patterns. It deliberately
// excludes anything that varies run-to-run for the same inputs (strategy
// parameter sweeps, backtest results), so re-running with a different
// strategy grid reuses the same STABLE tree.
func StablePrefix(cfg types.RunConfig, universe types.Universe) string {
	return fmt.Sprintf("%s/%d/STABLE/%dm_%db",
		cfg.Pair, cfg.Year, universe.IntervalMinutes, universe.LookbackPeriods)
}

// RunPrefix is the cache-directory prefix for strategy/backtest/ranking
// artifacts, namespaced by a fingerprint of the full strategy grid and
// backtest configuration — two runs with different strategy grids over
// the same STABLE data land in different RUN directories.
func RunPrefix(cfg types.RunConfig, universe types.Universe) string {
	d := runConfigDigest(cfg)
	return fmt.Sprintf("%s/%d/RUN/%dm_%db/%s",
		cfg.Pair, cfg.Year, universe.IntervalMinutes, universe.LookbackPeriods, d.String())
}

func runConfigDigest(cfg types.RunConfig) fingerprint.Digest {
	parts := make([]fingerprint.Digest, 0, 8)
	for _, lot := range cfg.StrategyGrid.LotSizes {
		parts = append(parts, fingerprint.LabelConfig(types.LabelConfig{TargetPips: lot}))
	}
	for _, name := range cfg.StrategyGrid.EnabledTemplates {
		parts = append(parts, stringDigest(name))
	}
	parts = append(parts,
		stringDigest(fmt.Sprintf("%d-%d", cfg.StrategyGrid.MaxTradesPerDay, cfg.StrategyGrid.CooldownMinutes)),
		stringDigest(fmt.Sprintf("%v", cfg.Backtest)),
	)
	return fingerprint.Combine("run_config", parts...)
}

func stringDigest(s string) fingerprint.Digest {
	return fingerprint.Combine(s)
}
