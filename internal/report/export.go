package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// =============================================================================
// ARTIFACT EXPORT
// =============================================================================

// Artifacts are the file paths written by WriteArtifacts.
type Artifacts struct {
	FullJSON    string `json:"full_json"`
	SummaryJSON string `json:"summary_json"`
	FidelityCSV string `json:"fidelity_csv"`
}

// WriteArtifacts writes the run's durable artifact set into dir:
// the full report, the summary report (full minus detailed results),
// and the per-item fidelity distribution CSV. The benchmark name
// prefixes each filename so multi-benchmark runs share a directory
// without collisions.
func WriteArtifacts(dir, benchmark string, r *Report) (Artifacts, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Artifacts{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	arts := Artifacts{
		FullJSON:    filepath.Join(dir, benchmark+"_forensic_results.json"),
		SummaryJSON: filepath.Join(dir, benchmark+"_forensic_summary.json"),
		FidelityCSV: filepath.Join(dir, benchmark+"_fidelity_distribution.csv"),
	}

	if err := writeJSON(arts.FullJSON, r); err != nil {
		return arts, err
	}
	if err := writeJSON(arts.SummaryJSON, r.Summary()); err != nil {
		return arts, err
	}
	if err := writeFidelityCSV(arts.FidelityCSV, r.DetailedResults); err != nil {
		return arts, err
	}
	return arts, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeFidelityCSV exports one row per detailed result. Failed turns
// are skipped; they carry no fidelity score.
func writeFidelityCSV(path string, results []TurnResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"prompt_id", "category", "fidelity", "tier", "blocked", "embedding_hash"}); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, res := range results {
		if res.Failed {
			continue
		}
		row := []string{
			res.ItemID,
			res.Category,
			strconv.FormatFloat(res.Fidelity, 'f', 6, 64),
			strconv.Itoa(res.Tier),
			strconv.FormatBool(res.Blocked),
			res.EmbeddingFingerprint,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}
