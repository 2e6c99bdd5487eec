package forensic

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// =============================================================================
// SQLITE TRACE STORE
// =============================================================================

// Store persists sessions, turns, and (optionally) raw embedding
// vectors to SQLite, so reports and threshold sweeps can be rebuilt
// from a past run without re-invoking the embedding provider.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// NewStore creates or opens a trace store.
func NewStore(dir string) (*Store, error) {
	dbPath := filepath.Join(dir, "forensic_traces.db")

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// initSchema creates the database schema.
func (s *Store) initSchema() error {
	schema := `
	-- Session headers
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		privacy_mode TEXT NOT NULL,
		embedding_model TEXT NOT NULL,
		pa_json TEXT,
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		end_reason TEXT,
		turn_count INTEGER NOT NULL DEFAULT 0
	);

	-- One row per completed or failed turn
	CREATE TABLE IF NOT EXISTS turns (
		session_id TEXT NOT NULL,
		turn INTEGER NOT NULL,
		item_id TEXT NOT NULL,
		input_ref TEXT,
		category TEXT,
		subcategory TEXT,
		severity TEXT,
		expected TEXT,
		fidelity REAL NOT NULL,
		fidelity_warning TEXT,
		embedding_fingerprint TEXT,
		intervention_json TEXT,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		completed INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		fail_reason TEXT,
		PRIMARY KEY (session_id, turn),
		FOREIGN KEY (session_id) REFERENCES sessions(session_id)
	);
	CREATE INDEX IF NOT EXISTS idx_turns_category ON turns(category);

	-- Optional per-item embedding archive, for full reproducibility
	CREATE TABLE IF NOT EXISTS embeddings (
		session_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		dim INTEGER NOT NULL,
		vector BLOB NOT NULL,
		PRIMARY KEY (session_id, item_id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SESSION OPERATIONS
// =============================================================================

// SaveSession stores or updates a session header.
func (s *Store) SaveSession(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	paJSON, _ := json.Marshal(snap.PA)

	_, err := s.db.Exec(`
		INSERT INTO sessions (session_id, privacy_mode, embedding_model, pa_json,
			started_at, ended_at, end_reason, turn_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			ended_at = excluded.ended_at,
			end_reason = excluded.end_reason,
			turn_count = excluded.turn_count
	`, snap.ID, snap.PrivacyMode, snap.ModelDescriptor, paJSON,
		snap.StartedAt, snap.EndedAt, snap.EndReason, snap.TurnCount)

	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// LoadSession retrieves a session header.
func (s *Store) LoadSession(sessionID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snap Snapshot
	var paJSON, endReason sql.NullString
	var endedAt sql.NullTime

	err := s.db.QueryRow(`
		SELECT session_id, privacy_mode, embedding_model, pa_json,
			started_at, ended_at, end_reason, turn_count
		FROM sessions WHERE session_id = ?
	`, sessionID).Scan(&snap.ID, &snap.PrivacyMode, &snap.ModelDescriptor, &paJSON,
		&snap.StartedAt, &endedAt, &endReason, &snap.TurnCount)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if endedAt.Valid {
		snap.EndedAt = endedAt.Time
	}
	snap.EndReason = endReason.String
	if paJSON.Valid && paJSON.String != "null" {
		var pa PARecord
		if json.Unmarshal([]byte(paJSON.String), &pa) == nil {
			snap.PA = &pa
		}
	}
	return &snap, nil
}

// ListSessions returns all stored session headers, newest first.
func (s *Store) ListSessions() ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT session_id, privacy_mode, embedding_model, started_at, turn_count
		FROM sessions
		ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Snapshot
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.ID, &snap.PrivacyMode, &snap.ModelDescriptor,
			&snap.StartedAt, &snap.TurnCount); err != nil {
			continue
		}
		sessions = append(sessions, snap)
	}
	return sessions, nil
}

// =============================================================================
// TURN OPERATIONS
// =============================================================================

// SaveTurn stores one closed turn.
func (s *Store) SaveTurn(sessionID string, t Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	interventionJSON, _ := json.Marshal(t.Intervention)

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO turns (session_id, turn, item_id, input_ref,
			category, subcategory, severity, expected, fidelity, fidelity_warning,
			embedding_fingerprint, intervention_json, started_at, completed_at,
			completed, failed, fail_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sessionID, t.Number, t.ItemID, t.InputRef,
		t.Category, t.Subcategory, t.Severity, t.Expected, t.Fidelity, t.FidelityWarning,
		t.EmbeddingFingerprint, interventionJSON, t.StartedAt, t.CompletedAt,
		t.Completed, t.Failed, t.FailReason)

	if err != nil {
		return fmt.Errorf("failed to save turn %d: %w", t.Number, err)
	}
	return nil
}

// LoadTurns retrieves a session's turn sequence in turn order.
func (s *Store) LoadTurns(sessionID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT turn, item_id, input_ref, category, subcategory, severity, expected,
			fidelity, fidelity_warning, embedding_fingerprint, intervention_json,
			started_at, completed_at, completed, failed, fail_reason
		FROM turns
		WHERE session_id = ?
		ORDER BY turn ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var inputRef, category, subcategory, severity, expected sql.NullString
		var warning, fingerprint, interventionJSON, failReason sql.NullString
		var completedAt sql.NullTime

		if err := rows.Scan(&t.Number, &t.ItemID, &inputRef, &category, &subcategory,
			&severity, &expected, &t.Fidelity, &warning, &fingerprint, &interventionJSON,
			&t.StartedAt, &completedAt, &t.Completed, &t.Failed, &failReason); err != nil {
			continue
		}

		t.InputRef = inputRef.String
		t.Category = category.String
		t.Subcategory = subcategory.String
		t.Severity = severity.String
		t.Expected = expected.String
		t.FidelityWarning = warning.String
		t.EmbeddingFingerprint = fingerprint.String
		t.FailReason = failReason.String
		if completedAt.Valid {
			t.CompletedAt = completedAt.Time
		}
		if interventionJSON.Valid && interventionJSON.String != "null" {
			var rec InterventionRecord
			if json.Unmarshal([]byte(interventionJSON.String), &rec) == nil {
				t.Intervention = &rec
			}
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// =============================================================================
// EMBEDDING ARCHIVE
// =============================================================================

// SaveEmbedding archives one item's embedding vector as little-endian
// float32 bytes.
func (s *Store) SaveEmbedding(sessionID, itemID string, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(blob[4*i:], math.Float32bits(v))
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO embeddings (session_id, item_id, dim, vector)
		VALUES (?, ?, ?, ?)
	`, sessionID, itemID, len(vec), blob)

	if err != nil {
		return fmt.Errorf("failed to save embedding for %s: %w", itemID, err)
	}
	return nil
}

// LoadEmbedding retrieves one archived embedding vector.
func (s *Store) LoadEmbedding(sessionID, itemID string) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var dim int
	var blob []byte
	err := s.db.QueryRow(`
		SELECT dim, vector FROM embeddings WHERE session_id = ? AND item_id = ?
	`, sessionID, itemID).Scan(&dim, &blob)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no archived embedding for %s", itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load embedding: %w", err)
	}

	if len(blob) != 4*dim {
		return nil, fmt.Errorf("corrupt embedding blob for %s: %d bytes for dim %d", itemID, len(blob), dim)
	}

	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return vec, nil
}
