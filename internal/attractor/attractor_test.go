package attractor

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// =============================================================================
// MOCK EMBEDDING ENGINE
// =============================================================================

type mockEngine struct {
	vec      []float32
	err      error
	lastText string
}

func (m *mockEngine) Embed(_ context.Context, text string) ([]float32, error) {
	m.lastText = text
	return m.vec, m.err
}

func (m *mockEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *mockEngine) Dimensions() int { return len(m.vec) }
func (m *mockEngine) Name() string    { return "mock" }

// =============================================================================
// CONFIG PARSING TESTS
// =============================================================================

const flatPolicy = `{
	"pa_name": "healthcare_guardian",
	"constitutional_constraints": {
		"purpose": {
			"statement": "Protect patient safety",
			"scope": ["clinical advice", "medication"],
			"exclusions": ["general wellness"]
		},
		"phi_protection": {
			"absolute_prohibitions": ["never disclose patient records"]
		}
	}
}`

const nestedPolicy = `{
	"pa_name": "companion_guardian",
	"constitutional_constraints": {
		"purpose": {"statement": "Protect minors"},
		"harm_categories": {
			"suicide_and_self_harm": {
				"absolute_prohibitions": ["never encourage self-harm"]
			},
			"sexual_content": {
				"absolute_prohibitions": ["never produce sexual content involving minors"]
			}
		},
		"version": "2.1"
	}
}`

func writePolicy(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.json")
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadPolicyConfig_FlatCategories(t *testing.T) {
	t.Parallel()

	cfg, err := LoadPolicyConfig(writePolicy(t, flatPolicy))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Name != "healthcare_guardian" {
		t.Errorf("name = %q", cfg.Name)
	}
	if cfg.Constraints.Purpose.Statement != "Protect patient safety" {
		t.Errorf("statement = %q", cfg.Constraints.Purpose.Statement)
	}
	if _, ok := cfg.Constraints.Categories["phi_protection"]; !ok {
		t.Error("flat category phi_protection not collected")
	}
}

func TestLoadPolicyConfig_NestedCategories(t *testing.T) {
	t.Parallel()

	cfg, err := LoadPolicyConfig(writePolicy(t, nestedPolicy))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, name := range []string{"suicide_and_self_harm", "sexual_content"} {
		if _, ok := cfg.Constraints.Categories[name]; !ok {
			t.Errorf("nested category %s not flattened", name)
		}
	}
	if _, ok := cfg.Constraints.Categories["version"]; ok {
		t.Error("non-category scalar collected as a category")
	}
}

func TestLoadPolicyConfig_MissingPurpose(t *testing.T) {
	t.Parallel()

	doc := `{"pa_name": "x", "constitutional_constraints": {"purpose": {"scope": ["a"]}}}`
	_, err := LoadPolicyConfig(writePolicy(t, doc))

	var missing *MissingFieldError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingFieldError, got %v", err)
	}
	if !strings.Contains(missing.Field, "purpose.statement") {
		t.Errorf("field = %q, want purpose.statement", missing.Field)
	}
}

func TestCategoryNames_Lexicographic(t *testing.T) {
	t.Parallel()

	var cs ConstraintSet
	if err := json.Unmarshal([]byte(`{
		"purpose": {"statement": "s"},
		"zebra": {"absolute_prohibitions": ["z"]},
		"alpha": {"absolute_prohibitions": ["a"]},
		"mid": {"absolute_prohibitions": ["m"]}
	}`), &cs); err != nil {
		t.Fatal(err)
	}

	names := cs.CategoryNames()
	want := []string{"alpha", "mid", "zebra"}
	if len(names) != len(want) {
		t.Fatalf("got %d names, want %d", len(names), len(want))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

// =============================================================================
// TEXT CONSTRUCTION TESTS
// =============================================================================

func TestBuildText_Layout(t *testing.T) {
	t.Parallel()

	cfg, err := LoadPolicyConfig(writePolicy(t, flatPolicy))
	if err != nil {
		t.Fatal(err)
	}

	text, err := BuildText(cfg)
	if err != nil {
		t.Fatal(err)
	}

	want := "Purpose: Protect patient safety\n" +
		"Scope: clinical advice, medication\n" +
		"Exclusions: general wellness\n" +
		"- never disclose patient records"
	if text != want {
		t.Errorf("text:\n%s\nwant:\n%s", text, want)
	}
}

func TestBuildText_Deterministic(t *testing.T) {
	t.Parallel()

	// Map iteration order must never leak into the PA text.
	var first string
	for i := 0; i < 20; i++ {
		cfg, err := LoadPolicyConfig(writePolicy(t, nestedPolicy))
		if err != nil {
			t.Fatal(err)
		}
		text, err := BuildText(cfg)
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			first = text
			continue
		}
		if text != first {
			t.Fatalf("text differed across builds:\n%s\nvs\n%s", first, text)
		}
	}
}

// =============================================================================
// BUILD TESTS
// =============================================================================

func TestBuild(t *testing.T) {
	t.Parallel()

	cfg, err := LoadPolicyConfig(writePolicy(t, flatPolicy))
	if err != nil {
		t.Fatal(err)
	}

	engine := &mockEngine{vec: []float32{0.1, 0.2, 0.3}}
	pa, err := Build(context.Background(), cfg, engine)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pa.PolicyName != "healthcare_guardian" {
		t.Errorf("policy name = %q", pa.PolicyName)
	}
	if !strings.HasPrefix(engine.lastText, "Purpose: ") {
		t.Errorf("embedded text does not start with the purpose line: %q", engine.lastText)
	}
	if pa.Fingerprint == "" {
		t.Error("fingerprint not set")
	}
	if len(pa.Embedding) != 3 {
		t.Errorf("embedding length = %d", len(pa.Embedding))
	}
}

func TestBuild_EmptyEmbedding(t *testing.T) {
	t.Parallel()

	cfg, err := LoadPolicyConfig(writePolicy(t, flatPolicy))
	if err != nil {
		t.Fatal(err)
	}

	_, err = Build(context.Background(), cfg, &mockEngine{vec: nil})
	if err == nil {
		t.Fatal("expected error for empty attractor embedding")
	}
}
