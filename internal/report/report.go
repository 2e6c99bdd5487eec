// Package report assembles the aggregate governance report over a
// completed forensic session and exports the run's durable artifacts.
// The report is a derived, read-only view: it is recomputed on demand
// and never mutates the session it describes. Its summary section is
// separable from the detailed results so a summary-only artifact can
// be produced without raw content.
package report

import (
	"time"

	"pabench/internal/forensic"
	"pabench/internal/stats"
	"pabench/internal/tier"
)

// =============================================================================
// REPORT STRUCTURE
// =============================================================================

// Report is the complete aggregate report for one session.
type Report struct {
	Metadata        Metadata               `json:"forensic_metadata"`
	KeyMetrics      KeyMetrics             `json:"key_metrics"`
	TierDist        TierDistribution       `json:"tier_distribution"`
	Fidelity        stats.FidelitySummary  `json:"fidelity_statistics"`
	Breakdowns      Breakdowns             `json:"breakdowns"`
	Sensitivity     []stats.SweepRow       `json:"threshold_sensitivity"`
	DetailedResults []TurnResult           `json:"detailed_results,omitempty"`
}

// Metadata identifies the run the report describes.
type Metadata struct {
	Benchmark      string               `json:"benchmark_name"`
	SessionID      string               `json:"session_id"`
	GeneratedAt    time.Time            `json:"generated_at"`
	PrivacyMode    forensic.PrivacyMode `json:"privacy_mode"`
	EmbeddingModel string               `json:"embedding_model"`
	PolicyName     string               `json:"pa_config,omitempty"`
	Mode           tier.Mode            `json:"validation_mode"`
	Thresholds     tier.Thresholds      `json:"thresholds"`
	TraceFile      string               `json:"trace_file,omitempty"`
}

// KeyMetrics are the headline rates. BlockRate carries the 99% Wilson
// interval; AttackSuccessRate and ViolationDefenseRate are percentages
// derived from it. For an empty session every rate is 0 with the
// proportion's NoData flag set.
type KeyMetrics struct {
	TotalItems  int `json:"total_items"`
	Blocked     int `json:"total_blocked"`
	Allowed     int `json:"total_allowed"`
	FailedTurns int `json:"failed_turns,omitempty"`

	BlockRate stats.Proportion `json:"block_rate"`

	AttackSuccessRate    float64 `json:"attack_success_rate_pct"`
	ViolationDefenseRate float64 `json:"violation_defense_rate_pct"`
	ASRUpperBound        float64 `json:"asr_ci99_upper_pct"`

	// Contrastive-mode metrics
	FalsePositives    int              `json:"false_positives,omitempty"`
	FalseNegatives    int              `json:"false_negatives,omitempty"`
	FalsePositiveRate stats.Proportion `json:"false_positive_rate,omitempty"`
}

// TierDistribution adds percentages to the raw per-tier counts.
type TierDistribution struct {
	stats.TierDistribution
	Tier1Pct float64 `json:"tier_1_pct"`
	Tier2Pct float64 `json:"tier_2_pct"`
	Tier3Pct float64 `json:"tier_3_pct"`
}

// Breakdowns are the stratified views. Empty strata are omitted.
type Breakdowns struct {
	ByCategory    []stats.Group `json:"by_category,omitempty"`
	BySubcategory []stats.Group `json:"by_subcategory,omitempty"`
	BySeverity    []stats.Group `json:"by_severity,omitempty"`
}

// TurnResult is one row of the detailed-results section.
type TurnResult struct {
	Turn                 int       `json:"turn"`
	ItemID               string    `json:"item_id"`
	Category             string    `json:"category,omitempty"`
	Fidelity             float64   `json:"fidelity"`
	Tier                 int       `json:"tier"`
	Blocked              bool      `json:"blocked"`
	Rationale            string    `json:"rationale,omitempty"`
	EmbeddingFingerprint string    `json:"embedding_hash,omitempty"`
	Failed               bool      `json:"failed,omitempty"`
	Timestamp            time.Time `json:"timestamp"`
}

// =============================================================================
// BUILD
// =============================================================================

// Options parameterize report assembly.
type Options struct {
	Benchmark       string
	Mode            tier.Mode
	Thresholds      tier.Thresholds
	SweepCandidates []float64
	SweepGap        float64
	TraceFile       string
}

// Build assembles the report from a session snapshot and its turn
// sequence. An empty session produces a report with zero-valued
// metrics and NoData flags rather than an error, so report consumers
// never see NaN.
func Build(snap forensic.Snapshot, turns []forensic.Turn, opts Options) *Report {
	if opts.SweepCandidates == nil {
		opts.SweepCandidates = stats.DefaultSweepCandidates
	}
	if opts.SweepGap == 0 {
		opts.SweepGap = stats.DefaultTier2Gap
	}

	var (
		completed, blocked, failed int
		falsePos, falseNeg         int
		fids                       []float64
		details                    []TurnResult
	)

	for _, t := range turns {
		result := TurnResult{
			Turn:                 t.Number,
			ItemID:               t.ItemID,
			Category:             t.Category,
			Fidelity:             t.Fidelity,
			EmbeddingFingerprint: t.EmbeddingFingerprint,
			Failed:               t.Failed,
			Timestamp:            t.CompletedAt,
		}

		if t.Failed {
			failed++
			details = append(details, result)
			continue
		}
		if !t.Completed {
			continue
		}

		completed++
		fids = append(fids, t.Fidelity)

		if rec := t.Intervention; rec != nil {
			result.Tier = rec.Tier
			result.Blocked = rec.Blocked
			result.Rationale = rec.Rationale
			if rec.Blocked {
				blocked++
			}
			if rec.FalsePositive {
				falsePos++
			}
			if rec.FalseNegative {
				falseNeg++
			}
		}
		details = append(details, result)
	}

	blockRate := stats.NewProportion(blocked, completed, stats.Z99)

	metrics := KeyMetrics{
		TotalItems:           completed,
		Blocked:              blocked,
		Allowed:              completed - blocked,
		FailedTurns:          failed,
		BlockRate:            blockRate,
		AttackSuccessRate:    (1 - blockRate.Rate) * 100,
		ViolationDefenseRate: blockRate.Rate * 100,
		ASRUpperBound:        (1 - blockRate.Lower) * 100,
	}
	if blockRate.NoData {
		metrics.AttackSuccessRate = 0
		metrics.ASRUpperBound = 0
	}
	if opts.Mode == tier.ModeContrastive {
		metrics.FalsePositives = falsePos
		metrics.FalseNegatives = falseNeg
		metrics.FalsePositiveRate = stats.NewProportion(falsePos, completed, stats.Z99)
	}

	dist := stats.CountTiers(turns)
	tierDist := TierDistribution{TierDistribution: dist}
	if completed > 0 {
		tierDist.Tier1Pct = float64(dist.Tier1) / float64(completed) * 100
		tierDist.Tier2Pct = float64(dist.Tier2) / float64(completed) * 100
		tierDist.Tier3Pct = float64(dist.Tier3) / float64(completed) * 100
	}

	meta := Metadata{
		Benchmark:      opts.Benchmark,
		SessionID:      snap.ID,
		GeneratedAt:    time.Now(),
		PrivacyMode:    snap.PrivacyMode,
		EmbeddingModel: snap.ModelDescriptor,
		Mode:           opts.Mode,
		Thresholds:     opts.Thresholds,
		TraceFile:      opts.TraceFile,
	}
	if snap.PA != nil {
		meta.PolicyName = snap.PA.PolicyName
	}

	return &Report{
		Metadata:   meta,
		KeyMetrics: metrics,
		TierDist:   tierDist,
		Fidelity:   stats.SummarizeFidelities(fids),
		Breakdowns: Breakdowns{
			ByCategory:    stats.ByCategory(turns),
			BySubcategory: stats.BySubcategory(turns),
			BySeverity:    stats.BySeverity(turns),
		},
		Sensitivity:     stats.Sweep(turns, opts.SweepCandidates, opts.SweepGap),
		DetailedResults: details,
	}
}

// Summary returns a copy of the report without the detailed-results
// section, suitable for a summary-only artifact.
func (r *Report) Summary() *Report {
	summary := *r
	summary.DetailedResults = nil
	return &summary
}
