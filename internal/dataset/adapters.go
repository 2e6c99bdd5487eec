package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// =============================================================================
// ADAPTER REGISTRY
// =============================================================================

// Loader reads a benchmark dataset from a path (file or directory,
// depending on the benchmark) into the common Item shape, preserving
// row order.
type Loader func(path string) ([]Item, error)

// Loaders maps benchmark names to their adapters.
var Loaders = map[string]Loader{
	"harmbench":      LoadHarmBench,
	"medsafetybench": LoadMedSafetyBench,
	"sb243":          LoadSB243,
	"xstest":         LoadXSTest,
	"ailuminate":     LoadAILuminate,
	"benign":         LoadBenignContrastive,
}

// Names returns the known benchmark names, for CLI help text.
func Names() []string {
	names := make([]string, 0, len(Loaders))
	for name := range Loaders {
		names = append(names, name)
	}
	return names
}

// readCSV reads a CSV file with a header row and returns one
// column-name-keyed map per record.
func readCSV(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // some benchmark files have ragged rows

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header from %s: %w", path, err)
	}

	var rows []map[string]string
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// =============================================================================
// BENCHMARK ADAPTERS
// =============================================================================

// LoadHarmBench loads the HarmBench behaviors CSV
// (BehaviorID, Behavior, SemanticCategory, FunctionalCategory, Tags).
func LoadHarmBench(path string) ([]Item, error) {
	rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(rows))
	for i, row := range rows {
		id := row["BehaviorID"]
		if id == "" {
			id = fmt.Sprintf("harmbench_%d", i)
		}
		items = append(items, Item{
			ID:       id,
			Text:     row["Behavior"],
			Category: orDefault(row["SemanticCategory"], "unknown"),
			Metadata: map[string]string{
				"functional_category": row["FunctionalCategory"],
				"tags":                row["Tags"],
			},
		})
	}
	return items, nil
}

// LoadMedSafetyBench loads all nine MedSafetyBench category files from
// the benchmark's repository layout under the given root directory.
func LoadMedSafetyBench(dir string) ([]Item, error) {
	testDir := filepath.Join(dir, "datasets", "test", "gpt4")

	var items []Item
	for cat := 1; cat <= 9; cat++ {
		path := filepath.Join(testDir, fmt.Sprintf("med_safety_demonstrations_category_%d.csv", cat))
		rows, err := readCSV(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		for i, row := range rows {
			items = append(items, Item{
				ID:       fmt.Sprintf("medsafety_cat%d_%d", cat, i),
				Text:     row["harmful_medical_request"],
				Category: fmt.Sprintf("category_%d", cat),
				Metadata: map[string]string{"source": "MedSafetyBench"},
			})
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no MedSafetyBench category files found under %s", testDir)
	}
	return items, nil
}

// LoadSB243 loads the SB 243 child-safety attack CSV
// (AttackID, Prompt, Category, SubCategory, Severity).
func LoadSB243(path string) ([]Item, error) {
	rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, Item{
			ID:          row["AttackID"],
			Text:        row["Prompt"],
			Category:    orDefault(row["Category"], "unknown"),
			Subcategory: row["SubCategory"],
			Severity:    orDefault(strings.ToLower(row["Severity"]), "high"),
		})
	}
	return items, nil
}

// LoadXSTest loads the XSTest prompt CSV (id, prompt, type, label,
// focus, note). Types prefixed "contrast_" are the unsafe half of each
// contrastive pair and are expected to be blocked; the rest are safe
// prompts expected to be allowed.
func LoadXSTest(path string) ([]Item, error) {
	rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(rows))
	for i, row := range rows {
		promptType := orDefault(row["type"], "unknown")
		expected := ExpectAllow
		if strings.HasPrefix(promptType, "contrast_") {
			expected = ExpectBlock
		}

		id := row["id"]
		if id == "" {
			id = fmt.Sprintf("xstest_%04d", i)
		}
		items = append(items, Item{
			ID:       id,
			Text:     row["prompt"],
			Category: promptType,
			Expected: expected,
			Metadata: map[string]string{
				"label": row["label"],
				"focus": row["focus"],
				"note":  row["note"],
			},
		})
	}
	return items, nil
}

// LoadAILuminate loads the MLCommons AILuminate demo prompt set
// (release_prompt_id, prompt_text, hazard, persona).
func LoadAILuminate(path string) ([]Item, error) {
	rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, Item{
			ID:       row["release_prompt_id"],
			Text:     row["prompt_text"],
			Category: orDefault(row["hazard"], "unknown"),
			Metadata: map[string]string{"persona": row["persona"]},
		})
	}
	return items, nil
}

// LoadBenignContrastive loads a benign contrastive query CSV
// (QueryID, Query, Category, ContrastType, Expected). Used for
// false-positive measurement; Expected defaults to "allow".
func LoadBenignContrastive(path string) ([]Item, error) {
	rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, Item{
			ID:          row["QueryID"],
			Text:        row["Query"],
			Category:    orDefault(row["Category"], "unknown"),
			Subcategory: row["ContrastType"],
			Expected:    orDefault(strings.ToLower(row["Expected"]), ExpectAllow),
		})
	}
	return items, nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
