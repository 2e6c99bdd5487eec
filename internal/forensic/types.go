// Package forensic implements the audit-trail protocol for validation
// runs. A Session owns an append-only, strictly sequential sequence
// of Turns; every governance decision is recorded as a replayable
// event, with a privacy mode controlling what raw content is
// retained. Protocol violations (out-of-order turns, writes after
// close) are contract errors, never silently ignored: they mean the
// audit trail itself may be corrupt.
package forensic

import "time"

// =============================================================================
// PRIVACY MODES
// =============================================================================

// PrivacyMode governs what per-turn content the trace retains. The
// mode is fixed at session creation and applies uniformly to every
// turn.
type PrivacyMode string

const (
	// PrivacyFull retains raw input text verbatim.
	PrivacyFull PrivacyMode = "full"

	// PrivacyHashed replaces raw input with a one-way fingerprint,
	// sufficient to detect duplicate inputs across sessions without
	// reconstructing content.
	PrivacyHashed PrivacyMode = "hashed"

	// PrivacyDeltasOnly retains neither text nor fingerprint; only
	// numeric fields (fidelity, tier, timestamps) are kept.
	PrivacyDeltasOnly PrivacyMode = "deltas_only"
)

// ParsePrivacyMode maps a CLI string to a PrivacyMode, defaulting to
// full for unrecognized values.
func ParsePrivacyMode(s string) PrivacyMode {
	switch PrivacyMode(s) {
	case PrivacyHashed:
		return PrivacyHashed
	case PrivacyDeltasOnly:
		return PrivacyDeltasOnly
	default:
		return PrivacyFull
	}
}

// =============================================================================
// EVENTS
// =============================================================================

// EventType identifies a trace event.
type EventType string

const (
	EventSessionStart  EventType = "session_start"
	EventPAEstablished EventType = "pa_established"
	EventTurnStart     EventType = "turn_start"
	EventFidelity      EventType = "fidelity_computed"
	EventIntervention  EventType = "intervention"
	EventTurnComplete  EventType = "turn_complete"
	EventTurnFailed    EventType = "turn_failed"
	EventSessionEnd    EventType = "session_end"
)

// Event is one JSONL trace record. Sequence numbers are monotonic
// within a session.
type Event struct {
	SessionID string    `json:"session_id"`
	Seq       int       `json:"seq"`
	Type      EventType `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Turn      int       `json:"turn,omitempty"`

	// Payload fields, populated per event type
	ModelDescriptor string             `json:"embedding_model,omitempty"`
	PrivacyMode     PrivacyMode        `json:"privacy_mode,omitempty"`
	PA              *PARecord          `json:"pa,omitempty"`
	InputRef        string             `json:"input_ref,omitempty"`
	Fidelity        *float64           `json:"fidelity,omitempty"`
	Warning         string             `json:"warning,omitempty"`
	Intervention    *InterventionRecord `json:"intervention,omitempty"`
	Reason          string             `json:"reason,omitempty"`
	DurationSeconds float64            `json:"duration_seconds,omitempty"`
}

// PARecord identifies the Primacy Attractor used for a whole session.
type PARecord struct {
	PolicyName       string    `json:"policy_name"`
	PurposeStatement string    `json:"purpose_statement,omitempty"`
	ScopeStatement   string    `json:"scope_statement,omitempty"`
	Fingerprint      string    `json:"embedding_fingerprint,omitempty"`
	EstablishedAt    time.Time `json:"established_at"`
}

// InterventionRecord captures a tier decision as recorded in a turn.
type InterventionRecord struct {
	Tier             int    `json:"tier"`
	TierName         string `json:"tier_name"`
	Action           string `json:"action"`
	Blocked          bool   `json:"blocked"`
	Rationale        string `json:"rationale"`
	SeverityOverride bool   `json:"severity_override,omitempty"`
	FalsePositive    bool   `json:"false_positive,omitempty"`
	FalseNegative    bool   `json:"false_negative,omitempty"`
}

// =============================================================================
// TURNS
// =============================================================================

// Turn is one forensic unit of work: one validated item. A turn is
// opened, written to, and finalized exactly once.
type Turn struct {
	Number int `json:"turn"`

	// Item reference, redacted per privacy mode
	ItemID      string `json:"item_id"`
	InputRef    string `json:"input_ref,omitempty"`
	Category    string `json:"category,omitempty"`
	Subcategory string `json:"subcategory,omitempty"`
	Severity    string `json:"severity,omitempty"`
	Expected    string `json:"expected,omitempty"`

	// Scoring
	Fidelity             float64 `json:"fidelity"`
	FidelityWarning      string  `json:"fidelity_warning,omitempty"`
	EmbeddingFingerprint string  `json:"embedding_fingerprint,omitempty"`

	// Decision
	Intervention *InterventionRecord `json:"intervention,omitempty"`

	// Lifecycle
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Completed   bool      `json:"completed"`
	Failed      bool      `json:"failed,omitempty"`
	FailReason  string    `json:"fail_reason,omitempty"`
}
