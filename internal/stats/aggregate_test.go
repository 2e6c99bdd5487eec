package stats

import (
	"testing"

	"pabench/internal/forensic"
	"pabench/internal/tier"
)

func completedTurn(n int, category, severity string, fid float64, tierNum int, blocked bool) forensic.Turn {
	return forensic.Turn{
		Number:    n,
		ItemID:    "item",
		Category:  category,
		Severity:  severity,
		Fidelity:  fid,
		Completed: true,
		Intervention: &forensic.InterventionRecord{
			Tier:    tierNum,
			Blocked: blocked,
		},
	}
}

// =============================================================================
// BREAKDOWN TESTS
// =============================================================================

func TestGroupBy_Categories(t *testing.T) {
	t.Parallel()

	turns := []forensic.Turn{
		completedTurn(1, "cybercrime", "", 0.30, tier.Tier1, true),
		completedTurn(2, "cybercrime", "", 0.20, tier.Tier2, true),
		completedTurn(3, "misinformation", "", 0.05, tier.Tier3, false),
		{Number: 4, Category: "abandoned", Completed: false},
	}

	groups := ByCategory(turns)

	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	// Sorted by name.
	if groups[0].Name != "cybercrime" || groups[1].Name != "misinformation" {
		t.Errorf("group order = [%s, %s]", groups[0].Name, groups[1].Name)
	}
	if groups[0].Count != 2 || groups[0].Blocked != 2 || groups[0].Allowed != 0 {
		t.Errorf("cybercrime counts = %+v", groups[0])
	}
	if groups[0].MeanFidelity != 0.25 {
		t.Errorf("cybercrime mean fidelity = %v, want 0.25", groups[0].MeanFidelity)
	}
	if groups[1].Count != 1 || groups[1].Blocked != 0 {
		t.Errorf("misinformation counts = %+v", groups[1])
	}
}

func TestGroupBy_SkipsEmptyKeys(t *testing.T) {
	t.Parallel()

	turns := []forensic.Turn{
		completedTurn(1, "", "high", 0.30, tier.Tier1, true),
	}

	if groups := ByCategory(turns); len(groups) != 0 {
		t.Errorf("got %d category groups for uncategorized turns, want 0", len(groups))
	}
	if groups := BySeverity(turns); len(groups) != 1 {
		t.Errorf("got %d severity groups, want 1", len(groups))
	}
}

// =============================================================================
// TIER DISTRIBUTION TESTS
// =============================================================================

func TestCountTiers(t *testing.T) {
	t.Parallel()

	turns := []forensic.Turn{
		completedTurn(1, "a", "", 0.40, tier.Tier1, true),
		completedTurn(2, "a", "", 0.30, tier.Tier1, true),
		completedTurn(3, "a", "", 0.20, tier.Tier2, true),
		completedTurn(4, "a", "", 0.05, tier.Tier3, false),
		{Number: 5, Completed: false},
	}

	dist := CountTiers(turns)
	if dist.Tier1 != 2 || dist.Tier2 != 1 || dist.Tier3 != 1 {
		t.Errorf("distribution = %+v, want 2/1/1", dist)
	}
}

// =============================================================================
// SWEEP TESTS
// =============================================================================

func TestSweep_EmptyCandidates(t *testing.T) {
	t.Parallel()

	turns := []forensic.Turn{
		completedTurn(1, "a", "", 0.40, tier.Tier1, true),
	}

	rows := Sweep(turns, nil, DefaultTier2Gap)
	if len(rows) != 0 {
		t.Errorf("empty candidate list produced %d rows, want 0", len(rows))
	}
}

func TestSweep_ReproducesOperatingThreshold(t *testing.T) {
	t.Parallel()

	// Recorded under the default thresholds (0.25/0.15): one item per
	// tier plus one at each boundary.
	th := tier.DefaultThresholds()
	fids := []float64{0.40, 0.25, 0.20, 0.15, 0.05}

	var turns []forensic.Turn
	want := TierDistribution{}
	for i, f := range fids {
		tn := tier.BaseTier(f, th)
		turns = append(turns, completedTurn(i+1, "a", "", f, tn, tn != tier.Tier3))
		switch tn {
		case tier.Tier1:
			want.Tier1++
		case tier.Tier2:
			want.Tier2++
		default:
			want.Tier3++
		}
	}

	// Sweeping the session's own operating threshold with its own gap
	// must reproduce the recorded distribution exactly.
	rows := Sweep(turns, []float64{th.Tier1}, th.Tier1-th.Tier2)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	got := TierDistribution{Tier1: rows[0].Tier1Count, Tier2: rows[0].Tier2Count, Tier3: rows[0].Tier3Count}
	if got != want {
		t.Errorf("sweep at operating threshold = %+v, recorded = %+v", got, want)
	}
}

func TestSweep_MonotoneTier1(t *testing.T) {
	t.Parallel()

	var turns []forensic.Turn
	for i, f := range []float64{0.05, 0.12, 0.18, 0.23, 0.28, 0.35} {
		turns = append(turns, completedTurn(i+1, "a", "", f, tier.Tier3, false))
	}

	rows := Sweep(turns, DefaultSweepCandidates, DefaultTier2Gap)

	// Raising the threshold can only shrink Tier 1 membership.
	for i := 1; i < len(rows); i++ {
		if rows[i].Tier1Count > rows[i-1].Tier1Count {
			t.Errorf("tier 1 count grew from %d to %d as threshold rose to %v",
				rows[i-1].Tier1Count, rows[i].Tier1Count, rows[i].Threshold)
		}
	}
}
