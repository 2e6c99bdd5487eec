// Package attractor builds the Primacy Attractor: the reference
// policy text and embedding that every validated item is scored
// against. The text construction is deterministic so an unchanged
// policy config always yields byte-identical PA text, and therefore
// the same embedding from the same provider.
package attractor

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// =============================================================================
// POLICY CONFIGURATION
// =============================================================================

// PolicyConfig is the typed form of a PA policy document.
type PolicyConfig struct {
	Name        string        `json:"pa_name"`
	Constraints ConstraintSet `json:"constitutional_constraints"`
}

// Purpose is the policy's purpose statement with its scope and
// exclusions. Statement is the only required field.
type Purpose struct {
	Statement  string   `json:"statement"`
	Scope      []string `json:"scope"`
	Exclusions []string `json:"exclusions"`
}

// ProhibitionCategory is one named harm/protection category.
type ProhibitionCategory struct {
	AbsoluteProhibitions []string `json:"absolute_prohibitions"`
}

// ConstraintSet holds the purpose plus every prohibition category in
// the document. Policy documents carry categories either directly
// under constitutional_constraints (e.g. "phi_protection") or nested
// one level inside a grouping object (e.g. "sb243_harm_categories");
// both forms are flattened into Categories keyed by category name.
type ConstraintSet struct {
	Purpose    Purpose
	Categories map[string]ProhibitionCategory
}

// UnmarshalJSON collects the purpose and flattens all prohibition
// categories, wherever they sit in the document.
func (c *ConstraintSet) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Categories = make(map[string]ProhibitionCategory)

	for key, val := range raw {
		if key == "purpose" {
			if err := json.Unmarshal(val, &c.Purpose); err != nil {
				return fmt.Errorf("invalid purpose block: %w", err)
			}
			continue
		}

		var cat ProhibitionCategory
		if err := json.Unmarshal(val, &cat); err == nil && cat.AbsoluteProhibitions != nil {
			c.Categories[key] = cat
			continue
		}

		// Grouping object: each child may itself be a category
		var group map[string]ProhibitionCategory
		if err := json.Unmarshal(val, &group); err == nil {
			for name, child := range group {
				if child.AbsoluteProhibitions != nil {
					c.Categories[name] = child
				}
			}
		}
		// Unrecognized blocks (version info, notes) are ignored
	}

	return nil
}

// CategoryNames returns category names in the fixed enumeration order
// used for PA text construction: lexicographic. The order is part of
// the determinism contract.
func (c *ConstraintSet) CategoryNames() []string {
	names := make([]string, 0, len(c.Categories))
	for name := range c.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// =============================================================================
// LOADING & VALIDATION
// =============================================================================

// MissingFieldError reports a required policy field that is absent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("policy config missing required field: %s", e.Field)
}

// LoadPolicyConfig reads and validates a PA policy JSON document.
func LoadPolicyConfig(path string) (*PolicyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy config: %w", err)
	}

	var cfg PolicyConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse policy config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields. Validation runs once at load time
// so missing fields surface before any turn is opened, not deep
// inside text concatenation.
func (p *PolicyConfig) Validate() error {
	if p.Constraints.Purpose.Statement == "" {
		return &MissingFieldError{Field: "constitutional_constraints.purpose.statement"}
	}
	return nil
}
