package forensic

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"pabench/internal/fidelity"
)

// =============================================================================
// SESSION STATE MACHINE
// =============================================================================

// sessionState tracks the lifecycle: Created -> Started -> Ended.
type sessionState int

const (
	stateCreated sessionState = iota
	stateStarted
	stateEnded
)

// Session is the top-level forensic container. It exclusively owns
// its turn sequence; after End no component mutates it. A session is
// safe for use from one goroutine; independent sessions may run
// concurrently.
type Session struct {
	mu sync.Mutex

	id          string
	privacyMode PrivacyMode
	state       sessionState

	modelDescriptor string
	pa              *PARecord
	startedAt       time.Time
	endedAt         time.Time
	endReason       string

	turns   []*Turn
	open    *Turn // the single in-progress turn, nil between turns
	highest int   // highest turn number ever opened
	seq     int   // event sequence counter

	trace  *TraceWriter
	store  *Store
	logger *zap.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithTraceWriter attaches a JSONL trace writer; every recorded event
// is appended to it.
func WithTraceWriter(w *TraceWriter) Option {
	return func(s *Session) { s.trace = w }
}

// WithStore attaches a SQLite trace store; turns are persisted as
// they close, and session metadata at End.
func WithStore(st *Store) Option {
	return func(s *Session) { s.store = st }
}

// WithLogger attaches a logger for per-event debug output.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// NewSession creates a session in the Created state. The privacy mode
// is fixed here and cannot change mid-session.
func NewSession(id string, mode PrivacyMode, opts ...Option) *Session {
	s := &Session{
		id:          id,
		privacyMode: mode,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Mode returns the session's privacy mode.
func (s *Session) Mode() PrivacyMode { return s.privacyMode }

// =============================================================================
// LIFECYCLE
// =============================================================================

// Start transitions Created -> Started and records the embedding
// model descriptor used for the whole session.
func (s *Session) Start(modelDescriptor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateStarted:
		return ErrSessionAlreadyStarted
	case stateEnded:
		return ErrSessionClosed
	}

	s.state = stateStarted
	s.startedAt = time.Now()
	s.modelDescriptor = modelDescriptor

	s.emit(Event{
		Type:            EventSessionStart,
		ModelDescriptor: modelDescriptor,
		PrivacyMode:     s.privacyMode,
	})
	s.logger.Info("forensic session started",
		zap.String("session_id", s.id),
		zap.String("model", modelDescriptor),
		zap.String("privacy_mode", string(s.privacyMode)))
	return nil
}

// RecordPAEstablished records the policy identity used for the whole
// session. Valid only after Start and before any turn.
func (s *Session) RecordPAEstablished(pa PARecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mustBeStarted(); err != nil {
		return err
	}
	if s.highest > 0 {
		return ErrPAAfterTurns
	}

	if pa.EstablishedAt.IsZero() {
		pa.EstablishedAt = time.Now()
	}
	s.pa = &pa

	s.emit(Event{Type: EventPAEstablished, PA: &pa})
	return nil
}

// PA returns the recorded PA-establishment record, if any.
func (s *Session) PA() *PARecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pa
}

// End transitions Started -> Ended. The session is immutable
// afterwards; any further call fails with ErrSessionClosed.
func (s *Session) End(duration time.Duration, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mustBeStarted(); err != nil {
		return err
	}
	if s.open != nil {
		return fmt.Errorf("cannot end session with turn %d still open", s.open.Number)
	}

	s.state = stateEnded
	s.endedAt = time.Now()
	s.endReason = reason

	s.emit(Event{
		Type:            EventSessionEnd,
		Reason:          reason,
		DurationSeconds: duration.Seconds(),
	})

	if s.store != nil {
		if err := s.store.SaveSession(s.snapshotLocked()); err != nil {
			return fmt.Errorf("failed to persist session: %w", err)
		}
	}

	s.logger.Info("forensic session ended",
		zap.String("session_id", s.id),
		zap.String("reason", reason),
		zap.Int("turns", len(s.turns)))
	return nil
}

// =============================================================================
// TURN PROTOCOL
// =============================================================================

// TurnInput is the item summary a turn opens with. Text is redacted
// per the session privacy mode before anything is retained.
type TurnInput struct {
	ItemID      string
	Text        string
	Category    string
	Subcategory string
	Severity    string
	Expected    string
}

// BeginTurn opens turn n. n must be exactly one greater than the
// highest previously opened turn.
func (s *Session) BeginTurn(n int, input TurnInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mustBeStarted(); err != nil {
		return err
	}
	if s.open != nil {
		return &OutOfOrderTurnError{Got: n, Want: s.highest + 1}
	}
	if n != s.highest+1 {
		return &OutOfOrderTurnError{Got: n, Want: s.highest + 1}
	}

	turn := &Turn{
		Number:      n,
		ItemID:      input.ItemID,
		InputRef:    s.redact(input.Text),
		Category:    input.Category,
		Subcategory: input.Subcategory,
		Severity:    input.Severity,
		Expected:    input.Expected,
		StartedAt:   time.Now(),
	}
	s.open = turn
	s.highest = n
	s.turns = append(s.turns, turn)

	s.emit(Event{Type: EventTurnStart, Turn: n, InputRef: turn.InputRef})
	return nil
}

// RecordFidelity attaches the computed fidelity to open turn n. A
// non-empty warning flags a provider anomaly resolved to a fallback
// score (degenerate vector, dimension mismatch).
func (s *Session) RecordFidelity(n int, fid float64, embFingerprint, warning string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	turn, err := s.openTurn(n)
	if err != nil {
		return err
	}

	turn.Fidelity = fid
	turn.FidelityWarning = warning
	turn.EmbeddingFingerprint = embFingerprint

	s.emit(Event{Type: EventFidelity, Turn: n, Fidelity: &fid, Warning: warning})
	return nil
}

// RecordIntervention attaches the tier decision to open turn n.
func (s *Session) RecordIntervention(n int, rec InterventionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	turn, err := s.openTurn(n)
	if err != nil {
		return err
	}

	turn.Intervention = &rec
	s.emit(Event{Type: EventIntervention, Turn: n, Intervention: &rec})
	return nil
}

// CompleteTurn closes turn n. Subsequent writes to n fail with
// TurnAlreadyClosedError.
func (s *Session) CompleteTurn(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	turn, err := s.openTurn(n)
	if err != nil {
		return err
	}

	turn.Completed = true
	turn.CompletedAt = time.Now()
	s.open = nil

	s.emit(Event{Type: EventTurnComplete, Turn: n})

	if s.store != nil {
		if err := s.store.SaveTurn(s.id, *turn); err != nil {
			return fmt.Errorf("failed to persist turn %d: %w", n, err)
		}
	}
	return nil
}

// FailTurn closes turn n as failed (e.g. provider retry exhaustion).
// The failure is recorded rather than silently dropped, and later
// turns may still proceed.
func (s *Session) FailTurn(n int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	turn, err := s.openTurn(n)
	if err != nil {
		return err
	}

	turn.Failed = true
	turn.FailReason = reason
	turn.CompletedAt = time.Now()
	s.open = nil

	s.emit(Event{Type: EventTurnFailed, Turn: n, Reason: reason})

	if s.store != nil {
		if err := s.store.SaveTurn(s.id, *turn); err != nil {
			return fmt.Errorf("failed to persist turn %d: %w", n, err)
		}
	}
	return nil
}

// Turns returns a copy of the turn sequence recorded so far. The copy
// is deep: mutating a returned turn or its intervention record does
// not touch the session's own records.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Turn, len(s.turns))
	for i, t := range s.turns {
		out[i] = *t
		if t.Intervention != nil {
			rec := *t.Intervention
			out[i].Intervention = &rec
		}
	}
	return out
}

// Snapshot returns the session metadata for persistence and reports.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Snapshot is the read-only session header.
type Snapshot struct {
	ID              string      `json:"session_id"`
	PrivacyMode     PrivacyMode `json:"privacy_mode"`
	ModelDescriptor string      `json:"embedding_model"`
	PA              *PARecord   `json:"pa,omitempty"`
	StartedAt       time.Time   `json:"started_at"`
	EndedAt         time.Time   `json:"ended_at,omitempty"`
	EndReason       string      `json:"end_reason,omitempty"`
	TurnCount       int         `json:"turn_count"`
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:              s.id,
		PrivacyMode:     s.privacyMode,
		ModelDescriptor: s.modelDescriptor,
		PA:              s.pa,
		StartedAt:       s.startedAt,
		EndedAt:         s.endedAt,
		EndReason:       s.endReason,
		TurnCount:       len(s.turns),
	}
}

// =============================================================================
// INTERNAL
// =============================================================================

func (s *Session) mustBeStarted() error {
	switch s.state {
	case stateCreated:
		return ErrSessionNotStarted
	case stateEnded:
		return ErrSessionClosed
	}
	return nil
}

// openTurn returns the open turn n, distinguishing "never opened"
// from "already closed".
func (s *Session) openTurn(n int) (*Turn, error) {
	if err := s.mustBeStarted(); err != nil {
		return nil, err
	}
	if s.open == nil || s.open.Number != n {
		if n >= 1 && n <= s.highest {
			return nil, &TurnAlreadyClosedError{Turn: n}
		}
		return nil, &UnknownTurnError{Turn: n}
	}
	return s.open, nil
}

// redact applies the session privacy mode to raw input text.
func (s *Session) redact(text string) string {
	switch s.privacyMode {
	case PrivacyFull:
		return text
	case PrivacyHashed:
		return fidelity.TextFingerprint(text)
	default:
		return ""
	}
}

// emit appends an event to the trace writer. Callers hold s.mu.
func (s *Session) emit(e Event) {
	s.seq++
	e.SessionID = s.id
	e.Seq = s.seq
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	if s.trace != nil {
		if err := s.trace.Write(e); err != nil {
			s.logger.Warn("failed to write trace event",
				zap.String("session_id", s.id),
				zap.String("event_type", string(e.Type)),
				zap.Error(err))
		}
	}
}
