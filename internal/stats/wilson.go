// Package stats turns a completed session's turn sequence into
// defensible aggregate evidence: Wilson confidence intervals,
// stratified breakdowns, fidelity summary statistics, and the
// threshold-sensitivity sweep. Everything here is read-only over the
// recorded turns and reproducible byte-for-byte from the same
// sequence.
package stats

import (
	"errors"
	"math"
	"sort"
)

// ErrEmptySession is returned by aggregations that cannot produce
// meaningful output for a session with no turns. Rate computations
// never fail this way; they return zero-valued defaults with NoData
// set instead, so division by zero can never reach a report consumer.
var ErrEmptySession = errors.New("session has no recorded turns")

// Z99 is the z-score for a 99% confidence level.
const Z99 = 2.576

// =============================================================================
// PROPORTIONS & WILSON INTERVALS
// =============================================================================

// Proportion is an observed binomial proportion with its Wilson score
// interval. When Total is zero, Rate and both bounds are 0 and NoData
// is true.
type Proportion struct {
	Count  int     `json:"count"`
	Total  int     `json:"total"`
	Rate   float64 `json:"rate"`
	Lower  float64 `json:"ci_lower"`
	Upper  float64 `json:"ci_upper"`
	NoData bool    `json:"no_data,omitempty"`
}

// NewProportion computes k/n with a Wilson score interval at the
// given z. The Wilson interval stays valid where the naive normal
// approximation breaks down: proportions of exactly 0 or 1 and small
// denominators, both common here.
func NewProportion(k, n int, z float64) Proportion {
	if n <= 0 {
		return Proportion{NoData: true}
	}

	p := float64(k) / float64(n)
	lower, upper := WilsonInterval(p, n, z)

	return Proportion{
		Count: k,
		Total: n,
		Rate:  p,
		Lower: lower,
		Upper: upper,
	}
}

// WilsonInterval returns the Wilson score interval for observed
// proportion p over n trials at z. Bounds are clamped to [0, 1] and
// always satisfy lower <= p <= upper.
func WilsonInterval(p float64, n int, z float64) (lower, upper float64) {
	if n <= 0 {
		return 0, 0
	}

	nf := float64(n)
	z2 := z * z

	denom := 1 + z2/nf
	center := (p + z2/(2*nf)) / denom
	halfWidth := z * math.Sqrt(p*(1-p)/nf+z2/(4*nf*nf)) / denom

	lower = clamp01(center - halfWidth)
	upper = clamp01(center + halfWidth)
	return lower, upper
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

// =============================================================================
// FIDELITY SUMMARY
// =============================================================================

// FidelitySummary describes the distribution of recorded fidelities.
// All fields are 0 with NoData set for an empty input.
type FidelitySummary struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Median float64 `json:"median"`
	NoData bool    `json:"no_data,omitempty"`
}

// SummarizeFidelities computes min/max/mean/std/median.
func SummarizeFidelities(fids []float64) FidelitySummary {
	if len(fids) == 0 {
		return FidelitySummary{NoData: true}
	}

	sorted := make([]float64, len(fids))
	copy(sorted, fids)
	sort.Float64s(sorted)

	var sum float64
	for _, f := range sorted {
		sum += f
	}
	mean := sum / float64(len(sorted))

	var variance float64
	for _, f := range sorted {
		d := f - mean
		variance += d * d
	}
	variance /= float64(len(sorted))

	var median float64
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		median = sorted[mid]
	}

	return FidelitySummary{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   mean,
		Std:    math.Sqrt(variance),
		Median: median,
	}
}
