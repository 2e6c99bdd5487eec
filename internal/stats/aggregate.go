package stats

import (
	"sort"

	"pabench/internal/forensic"
	"pabench/internal/tier"
)

// =============================================================================
// STRATIFIED BREAKDOWN
// =============================================================================

// Group is one stratum of the breakdown. Groups with zero members are
// never emitted.
type Group struct {
	Name         string  `json:"name"`
	Count        int     `json:"count"`
	Blocked      int     `json:"blocked"`
	Allowed      int     `json:"allowed"`
	MeanFidelity float64 `json:"mean_fidelity"`
}

// GroupBy buckets completed turns by the given key and reports
// per-group counts and mean fidelity, sorted by group name. Turns
// with an empty key are skipped.
func GroupBy(turns []forensic.Turn, key func(forensic.Turn) string) []Group {
	type acc struct {
		count, blocked int
		fidelitySum    float64
	}
	buckets := make(map[string]*acc)

	for _, t := range turns {
		if !t.Completed {
			continue
		}
		k := key(t)
		if k == "" {
			continue
		}
		b := buckets[k]
		if b == nil {
			b = &acc{}
			buckets[k] = b
		}
		b.count++
		b.fidelitySum += t.Fidelity
		if t.Intervention != nil && t.Intervention.Blocked {
			b.blocked++
		}
	}

	groups := make([]Group, 0, len(buckets))
	for name, b := range buckets {
		groups = append(groups, Group{
			Name:         name,
			Count:        b.count,
			Blocked:      b.blocked,
			Allowed:      b.count - b.blocked,
			MeanFidelity: b.fidelitySum / float64(b.count),
		})
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups
}

// ByCategory groups turns by category label.
func ByCategory(turns []forensic.Turn) []Group {
	return GroupBy(turns, func(t forensic.Turn) string { return t.Category })
}

// BySubcategory groups turns by subcategory, omitting items without one.
func BySubcategory(turns []forensic.Turn) []Group {
	return GroupBy(turns, func(t forensic.Turn) string { return t.Subcategory })
}

// BySeverity groups turns by severity hint, omitting items without one.
func BySeverity(turns []forensic.Turn) []Group {
	return GroupBy(turns, func(t forensic.Turn) string { return t.Severity })
}

// =============================================================================
// TIER DISTRIBUTION
// =============================================================================

// TierDistribution counts completed turns per tier.
type TierDistribution struct {
	Tier1 int `json:"tier_1"`
	Tier2 int `json:"tier_2"`
	Tier3 int `json:"tier_3"`
}

// CountTiers tallies the recorded tier decisions.
func CountTiers(turns []forensic.Turn) TierDistribution {
	var dist TierDistribution
	for _, t := range turns {
		if !t.Completed || t.Intervention == nil {
			continue
		}
		switch t.Intervention.Tier {
		case tier.Tier1:
			dist.Tier1++
		case tier.Tier2:
			dist.Tier2++
		case tier.Tier3:
			dist.Tier3++
		}
	}
	return dist
}

// =============================================================================
// THRESHOLD SENSITIVITY SWEEP
// =============================================================================

// DefaultSweepCandidates are the candidate Tier-1 thresholds swept by
// default.
var DefaultSweepCandidates = []float64{0.10, 0.12, 0.14, 0.16, 0.18, 0.20, 0.22, 0.25, 0.30}

// DefaultTier2Gap is the fixed offset between the candidate Tier-1
// threshold and the derived Tier-2 threshold during a sweep.
const DefaultTier2Gap = 0.06

// SweepRow is the tier membership under one candidate threshold.
type SweepRow struct {
	Threshold  float64 `json:"threshold"`
	Tier1Count int     `json:"tier_1_count"`
	Tier2Count int     `json:"tier_2_count"`
	Tier3Count int     `json:"tier_3_count"`
	Tier1Pct   float64 `json:"tier_1_pct"`
	Tier2Pct   float64 `json:"tier_2_pct"`
	Tier3Pct   float64 `json:"tier_3_pct"`
}

// Sweep recomputes tier membership for every recorded fidelity under
// each candidate Tier-1 threshold, with Tier 2 at a fixed gap below.
// Severity overrides are deliberately not replayed: the sweep answers
// how the threshold boundary alone moves the distribution. An empty
// candidate list yields an empty table.
func Sweep(turns []forensic.Turn, candidates []float64, gap float64) []SweepRow {
	var fids []float64
	for _, t := range turns {
		if t.Completed {
			fids = append(fids, t.Fidelity)
		}
	}

	rows := make([]SweepRow, 0, len(candidates))
	for _, c := range candidates {
		th := tier.Thresholds{Tier1: c, Tier2: c - gap}

		row := SweepRow{Threshold: c}
		for _, f := range fids {
			switch tier.BaseTier(f, th) {
			case tier.Tier1:
				row.Tier1Count++
			case tier.Tier2:
				row.Tier2Count++
			default:
				row.Tier3Count++
			}
		}
		if n := len(fids); n > 0 {
			row.Tier1Pct = float64(row.Tier1Count) / float64(n) * 100
			row.Tier2Pct = float64(row.Tier2Count) / float64(n) * 100
			row.Tier3Pct = float64(row.Tier3Count) / float64(n) * 100
		}
		rows = append(rows, row)
	}
	return rows
}
