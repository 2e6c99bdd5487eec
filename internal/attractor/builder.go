package attractor

import (
	"context"
	"fmt"
	"strings"

	"pabench/internal/embedding"
	"pabench/internal/fidelity"
)

// =============================================================================
// PRIMACY ATTRACTOR
// =============================================================================

// Attractor is the built reference policy: the deterministic PA text,
// its embedding, and identity fields recorded in the forensic session.
// An Attractor is built exactly once per session and never mutated;
// it is safe to share read-only across concurrent sessions.
type Attractor struct {
	PolicyName  string
	Text        string
	Embedding   []float32
	Fingerprint string // embedding fingerprint, for trace verification
}

// BuildText concatenates the policy fields in fixed order:
//
//	Purpose: <statement>
//	Scope: <scope, comma-joined>
//	Exclusions: <exclusions, comma-joined>
//	- <prohibition>       (per category, categories in lexicographic
//	                       order, prohibitions in document order)
//
// The exact layout is a contract: the same config must always yield
// byte-identical text.
func BuildText(cfg *PolicyConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	purpose := cfg.Constraints.Purpose
	parts := []string{
		fmt.Sprintf("Purpose: %s", purpose.Statement),
		fmt.Sprintf("Scope: %s", strings.Join(purpose.Scope, ", ")),
		fmt.Sprintf("Exclusions: %s", strings.Join(purpose.Exclusions, ", ")),
	}

	for _, name := range cfg.Constraints.CategoryNames() {
		for _, prohibition := range cfg.Constraints.Categories[name].AbsoluteProhibitions {
			parts = append(parts, fmt.Sprintf("- %s", prohibition))
		}
	}

	return strings.Join(parts, "\n"), nil
}

// Build constructs the Primacy Attractor by embedding the PA text.
func Build(ctx context.Context, cfg *PolicyConfig, engine embedding.Engine) (*Attractor, error) {
	text, err := BuildText(cfg)
	if err != nil {
		return nil, err
	}

	vec, err := engine.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed attractor text: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("provider returned empty attractor embedding")
	}

	return &Attractor{
		PolicyName:  cfg.Name,
		Text:        text,
		Embedding:   vec,
		Fingerprint: fidelity.EmbeddingFingerprint(vec),
	}, nil
}
