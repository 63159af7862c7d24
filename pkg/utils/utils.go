// Package utils provides small ambient helpers shared across the pipeline.
package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// GenerateID generates a unique ID with optional prefix.
func GenerateID(prefix string) string {
	bytes := make([]byte, 16)
	rand.Read(bytes)
	id := hex.EncodeToString(bytes)
	if prefix != "" {
		return fmt.Sprintf("%s_%s", prefix, id)
	}
	return id
}

// GenerateRunID generates a unique orchestrator run ID.
func GenerateRunID() string {
	return GenerateID("run")
}

// GenerateTradeID generates a unique trade ID.
func GenerateTradeID() string {
	return GenerateID("trd")
}

// RoundToDecimalPlaces rounds a decimal to the given number of places.
func RoundToDecimalPlaces(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}

// CalculateMean calculates the mean of decimal values.
func CalculateMean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

// CalculateStdDev calculates the sample standard deviation of decimal values.
func CalculateStdDev(values []decimal.Decimal) decimal.Decimal {
	if len(values) < 2 {
		return decimal.Zero
	}
	mean := CalculateMean(values)
	sumSquares := decimal.Zero
	for _, v := range values {
		diff := v.Sub(mean)
		sumSquares = sumSquares.Add(diff.Mul(diff))
	}
	variance := sumSquares.Div(decimal.NewFromInt(int64(len(values) - 1)))
	return decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64()))
}

// CalculateMaxDrawdown calculates the maximum peak-to-trough drawdown
// fraction from an equity curve.
func CalculateMaxDrawdown(equity []decimal.Decimal) decimal.Decimal {
	if len(equity) < 2 {
		return decimal.Zero
	}
	maxDrawdown := decimal.Zero
	peak := equity[0]
	for _, value := range equity {
		if value.GreaterThan(peak) {
			peak = value
		}
		if peak.IsZero() {
			continue
		}
		drawdown := peak.Sub(value).Div(peak)
		if drawdown.GreaterThan(maxDrawdown) {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown
}

// MinDecimal returns the minimum of two decimals.
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// MaxDecimal returns the maximum of two decimals.
func MaxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// ClampDecimal clamps a value between min and max.
func ClampDecimal(value, min, max decimal.Decimal) decimal.Decimal {
	if value.LessThan(min) {
		return min
	}
	if value.GreaterThan(max) {
		return max
	}
	return value
}

// RetryConfig contains retry configuration.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// Retry retries a function with exponential backoff.
func Retry[T any](config RetryConfig, fn func() (T, error)) (T, error) {
	var result T
	var err error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}
		if attempt == config.MaxAttempts {
			break
		}
		time.Sleep(delay)
		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return result, fmt.Errorf("after %d attempts: %w", config.MaxAttempts, err)
}

// BatchProcess processes items in batches, short-circuiting on the first
// batch error.
func BatchProcess[T any, R any](items []T, batchSize int, fn func([]T) ([]R, error)) ([]R, error) {
	var results []R

	for i := 0; i < len(items); i += batchSize {
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[i:end]
		batchResults, err := fn(batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d failed: %w", i, end, err)
		}
		results = append(results, batchResults...)
	}

	return results, nil
}

// TimeRange represents a half-open time range.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Duration returns the duration of the time range.
func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

// Contains reports whether t falls within [Start, End).
func (tr TimeRange) Contains(t time.Time) bool {
	return (t.Equal(tr.Start) || t.After(tr.Start)) && t.Before(tr.End)
}

// EMA calculates an exponential moving average over float64 values,
// as a plain float64 recurrence (not decimal.Decimal).
type EMA struct {
	multiplier float64
	current    float64
	count      int
}

// NewEMA creates a new EMA calculator for the given period.
func NewEMA(period int) *EMA {
	return &EMA{multiplier: 2.0 / float64(period+1)}
}

// Add adds a value and returns the current EMA.
func (e *EMA) Add(value float64) float64 {
	e.count++
	if e.count == 1 {
		e.current = value
		return e.current
	}
	e.current = (value-e.current)*e.multiplier + e.current
	return e.current
}

// Current returns the current EMA value.
func (e *EMA) Current() float64 { return e.current }

// SMA calculates a simple moving average over a fixed-size float64 window.
type SMA struct {
	period int
	values []float64
	sum    float64
	head   int
	filled bool
}

// NewSMA creates a new SMA calculator with a preallocated ring buffer.
func NewSMA(period int) *SMA {
	return &SMA{period: period, values: make([]float64, period)}
}

// Add adds a value and returns the current SMA.
func (s *SMA) Add(value float64) float64 {
	if s.filled {
		s.sum -= s.values[s.head]
	}
	s.values[s.head] = value
	s.sum += value
	s.head = (s.head + 1) % s.period
	if s.head == 0 {
		s.filled = true
	}
	n := s.period
	if !s.filled {
		n = s.head
	}
	if n == 0 {
		return 0
	}
	return s.sum / float64(n)
}
