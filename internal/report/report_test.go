package report

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"pabench/internal/forensic"
	"pabench/internal/tier"
)

func testTurns() []forensic.Turn {
	mk := func(n int, cat string, fid float64, tierNum int, blocked bool) forensic.Turn {
		return forensic.Turn{
			Number:    n,
			ItemID:    "item",
			Category:  cat,
			Fidelity:  fid,
			Completed: true,
			Intervention: &forensic.InterventionRecord{
				Tier:    tierNum,
				Blocked: blocked,
			},
			CompletedAt: time.Now(),
		}
	}
	return []forensic.Turn{
		mk(1, "cybercrime", 0.40, tier.Tier1, true),
		mk(2, "cybercrime", 0.30, tier.Tier1, true),
		mk(3, "grooming", 0.20, tier.Tier2, true),
		mk(4, "grooming", 0.05, tier.Tier3, false),
	}
}

func testSnapshot() forensic.Snapshot {
	return forensic.Snapshot{
		ID:              "sess-1",
		PrivacyMode:     forensic.PrivacyFull,
		ModelDescriptor: "mock:test",
		PA:              &forensic.PARecord{PolicyName: "guardian"},
	}
}

// =============================================================================
// REPORT ASSEMBLY TESTS
// =============================================================================

func TestBuild_KeyMetrics(t *testing.T) {
	t.Parallel()

	r := Build(testSnapshot(), testTurns(), Options{
		Benchmark:  "sb243",
		Mode:       tier.ModeAdversarial,
		Thresholds: tier.DefaultThresholds(),
	})

	m := r.KeyMetrics
	if m.TotalItems != 4 || m.Blocked != 3 || m.Allowed != 1 {
		t.Errorf("counts = %d/%d/%d, want 4/3/1", m.TotalItems, m.Blocked, m.Allowed)
	}
	if m.ViolationDefenseRate != 75.0 {
		t.Errorf("VDR = %v, want 75", m.ViolationDefenseRate)
	}
	if m.AttackSuccessRate != 25.0 {
		t.Errorf("ASR = %v, want 25", m.AttackSuccessRate)
	}
	// The CI upper bound on ASR must not be below the point estimate.
	if m.ASRUpperBound < m.AttackSuccessRate {
		t.Errorf("ASR upper bound %v below point estimate %v", m.ASRUpperBound, m.AttackSuccessRate)
	}
}

func TestBuild_TierDistribution(t *testing.T) {
	t.Parallel()

	r := Build(testSnapshot(), testTurns(), Options{Mode: tier.ModeAdversarial})

	d := r.TierDist
	if d.Tier1 != 2 || d.Tier2 != 1 || d.Tier3 != 1 {
		t.Errorf("distribution = %+v", d)
	}
	if d.Tier1Pct != 50.0 {
		t.Errorf("tier 1 pct = %v, want 50", d.Tier1Pct)
	}
}

func TestBuild_Metadata(t *testing.T) {
	t.Parallel()

	r := Build(testSnapshot(), testTurns(), Options{
		Benchmark: "sb243",
		Mode:      tier.ModeAdversarial,
		TraceFile: "/tmp/trace.jsonl",
	})

	if r.Metadata.Benchmark != "sb243" || r.Metadata.SessionID != "sess-1" {
		t.Errorf("metadata = %+v", r.Metadata)
	}
	if r.Metadata.PolicyName != "guardian" {
		t.Errorf("policy name = %q", r.Metadata.PolicyName)
	}
}

func TestBuild_FailedTurns(t *testing.T) {
	t.Parallel()

	turns := append(testTurns(), forensic.Turn{
		Number: 5, ItemID: "broken", Failed: true, FailReason: "provider down",
	})

	r := Build(testSnapshot(), turns, Options{Mode: tier.ModeAdversarial})
	if r.KeyMetrics.FailedTurns != 1 {
		t.Errorf("failed turns = %d", r.KeyMetrics.FailedTurns)
	}
	// Failed turns appear in details but never in the rates.
	if r.KeyMetrics.TotalItems != 4 {
		t.Errorf("total = %d, failed turn leaked into metrics", r.KeyMetrics.TotalItems)
	}
	if len(r.DetailedResults) != 5 {
		t.Errorf("details = %d rows", len(r.DetailedResults))
	}
}

func TestBuild_ContrastiveMetrics(t *testing.T) {
	t.Parallel()

	turns := []forensic.Turn{
		{
			Number: 1, ItemID: "benign", Fidelity: 0.30, Completed: true,
			Intervention: &forensic.InterventionRecord{Tier: tier.Tier1, Blocked: true, FalsePositive: true},
		},
		{
			Number: 2, ItemID: "harmful", Fidelity: 0.05, Completed: true,
			Intervention: &forensic.InterventionRecord{Tier: tier.Tier3, Blocked: false, FalseNegative: true},
		},
	}

	r := Build(testSnapshot(), turns, Options{Mode: tier.ModeContrastive})
	if r.KeyMetrics.FalsePositives != 1 || r.KeyMetrics.FalseNegatives != 1 {
		t.Errorf("fp/fn = %d/%d", r.KeyMetrics.FalsePositives, r.KeyMetrics.FalseNegatives)
	}
	if r.KeyMetrics.FalsePositiveRate.Rate != 0.5 {
		t.Errorf("fp rate = %v", r.KeyMetrics.FalsePositiveRate.Rate)
	}
}

func TestBuild_EmptySession(t *testing.T) {
	t.Parallel()

	r := Build(testSnapshot(), nil, Options{Mode: tier.ModeAdversarial})

	if !r.KeyMetrics.BlockRate.NoData {
		t.Error("block rate NoData not set")
	}
	if !r.Fidelity.NoData {
		t.Error("fidelity NoData not set")
	}
	if r.KeyMetrics.AttackSuccessRate != 0 {
		t.Errorf("ASR = %v for empty session", r.KeyMetrics.AttackSuccessRate)
	}
}

func TestSummary_DropsDetails(t *testing.T) {
	t.Parallel()

	r := Build(testSnapshot(), testTurns(), Options{Mode: tier.ModeAdversarial})
	s := r.Summary()

	if len(s.DetailedResults) != 0 {
		t.Error("summary retains detailed results")
	}
	if s.KeyMetrics != r.KeyMetrics {
		t.Error("summary metrics differ from full report")
	}
	// The full report is untouched.
	if len(r.DetailedResults) != 4 {
		t.Error("Summary mutated the full report")
	}
}

// =============================================================================
// ARTIFACT EXPORT TESTS
// =============================================================================

func TestWriteArtifacts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	r := Build(testSnapshot(), testTurns(), Options{Benchmark: "sb243", Mode: tier.ModeAdversarial})

	arts, err := WriteArtifacts(dir, "sb243", r)
	if err != nil {
		t.Fatalf("WriteArtifacts: %v", err)
	}

	// Full report round-trips and carries details.
	var full Report
	data, err := os.ReadFile(arts.FullJSON)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &full); err != nil {
		t.Fatalf("full report is not valid JSON: %v", err)
	}
	if len(full.DetailedResults) != 4 {
		t.Errorf("full report details = %d", len(full.DetailedResults))
	}

	// Summary report carries everything except details.
	var summary Report
	data, err = os.ReadFile(arts.SummaryJSON)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatalf("summary report is not valid JSON: %v", err)
	}
	if len(summary.DetailedResults) != 0 {
		t.Error("summary report carries detailed results")
	}
	if summary.KeyMetrics.TotalItems != full.KeyMetrics.TotalItems {
		t.Error("summary metrics differ from full report")
	}

	// CSV has a header plus one row per completed turn.
	csvData, err := os.ReadFile(arts.FidelityCSV)
	if err != nil {
		t.Fatal(err)
	}
	lines := 0
	for _, b := range csvData {
		if b == '\n' {
			lines++
		}
	}
	if lines != 5 {
		t.Errorf("csv has %d lines, want 5 (header + 4 rows)", lines)
	}
}
