// Package dataset defines the common validation item shape and the
// per-benchmark CSV adapters that map external row formats into it.
// Adapters only reshape rows; scoring and classification never depend
// on which benchmark an item came from.
package dataset

// =============================================================================
// VALIDATION ITEM
// =============================================================================

// Item is one input under test. Items are immutable once loaded.
type Item struct {
	ID          string            `json:"id"`
	Text        string            `json:"text"`
	Category    string            `json:"category"`
	Subcategory string            `json:"subcategory,omitempty"`
	Severity    string            `json:"severity,omitempty"` // "critical", "high", ...
	Expected    string            `json:"expected,omitempty"` // "allow" or "block" (contrastive runs)
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ExpectedOutcome values carried by contrastive datasets.
const (
	ExpectAllow = "allow"
	ExpectBlock = "block"
)

// SeverityCritical triggers the Tier 1 severity override in the classifier.
const SeverityCritical = "critical"
