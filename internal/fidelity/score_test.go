package fidelity

import (
	"errors"
	"math"
	"testing"
)

// =============================================================================
// COSINE SCORING TESTS
// =============================================================================

func TestScore_SelfSimilarity(t *testing.T) {
	t.Parallel()

	vec := []float32{0.3, -1.2, 0.5, 2.0}

	got, err := Score(vec, vec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("self-similarity = %v, want 1.0", got)
	}
}

func TestScore_Symmetry(t *testing.T) {
	t.Parallel()

	a := []float32{1, 0, 2, -1}
	b := []float32{0.5, 1, -0.5, 3}

	ab, err := Score(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ba, err := Score(b, a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ab != ba {
		t.Errorf("Score(a,b)=%v != Score(b,a)=%v", ab, ba)
	}
}

func TestScore_Orthogonal(t *testing.T) {
	t.Parallel()

	got, err := Score([]float32{1, 0}, []float32{0, 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got) > 1e-9 {
		t.Errorf("orthogonal similarity = %v, want 0", got)
	}
}

func TestScore_Opposite(t *testing.T) {
	t.Parallel()

	got, err := Score([]float32{1, 2}, []float32{-1, -2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got+1.0) > 1e-9 {
		t.Errorf("opposite similarity = %v, want -1.0", got)
	}
}

func TestScore_DimensionMismatch(t *testing.T) {
	t.Parallel()

	_, err := Score([]float32{1, 2, 3}, []float32{1, 2})
	if err == nil {
		t.Fatal("expected error for mismatched dimensions")
	}

	var dim *DimensionMismatchError
	if !errors.As(err, &dim) {
		t.Fatalf("expected DimensionMismatchError, got %T", err)
	}
	if dim.ItemDim != 3 || dim.AttractorDim != 2 {
		t.Errorf("error dims = (%d, %d), want (3, 2)", dim.ItemDim, dim.AttractorDim)
	}
}

func TestScore_DegenerateVectors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a, b []float32
	}{
		{"zero item", []float32{0, 0, 0}, []float32{1, 2, 3}},
		{"zero attractor", []float32{1, 2, 3}, []float32{0, 0, 0}},
		{"both zero", []float32{0, 0}, []float32{0, 0}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Score(tc.a, tc.b)
			if !errors.Is(err, ErrDegenerateVector) {
				t.Errorf("expected ErrDegenerateVector, got %v", err)
			}
		})
	}
}

// =============================================================================
// FINGERPRINT TESTS
// =============================================================================

func TestEmbeddingFingerprint_Deterministic(t *testing.T) {
	t.Parallel()

	vec := []float32{0.1, 0.2, 0.3}

	a := EmbeddingFingerprint(vec)
	b := EmbeddingFingerprint([]float32{0.1, 0.2, 0.3})

	if a != b {
		t.Errorf("same vector produced different fingerprints: %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Errorf("fingerprint length = %d, want 16", len(a))
	}
}

func TestEmbeddingFingerprint_DistinguishesVectors(t *testing.T) {
	t.Parallel()

	a := EmbeddingFingerprint([]float32{0.1, 0.2})
	b := EmbeddingFingerprint([]float32{0.2, 0.1})

	if a == b {
		t.Error("different vectors produced identical fingerprints")
	}
}

func TestTextFingerprint(t *testing.T) {
	t.Parallel()

	a := TextFingerprint("hello")
	b := TextFingerprint("hello")
	c := TextFingerprint("world")

	if a != b {
		t.Error("same text produced different fingerprints")
	}
	if a == c {
		t.Error("different text produced identical fingerprints")
	}
	if len(a) != 16 {
		t.Errorf("fingerprint length = %d, want 16", len(a))
	}
}
