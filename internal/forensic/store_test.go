package forensic

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// =============================================================================
// SESSION PERSISTENCE TESTS
// =============================================================================

func TestStore_SessionRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	snap := Snapshot{
		ID:              "sess-rt",
		PrivacyMode:     PrivacyHashed,
		ModelDescriptor: "ollama:nomic-embed-text",
		PA: &PARecord{
			PolicyName:  "guardian",
			Fingerprint: "cafebabe",
		},
		StartedAt: time.Now().UTC().Truncate(time.Second),
		EndedAt:   time.Now().UTC().Truncate(time.Second),
		EndReason: "complete",
		TurnCount: 2,
	}
	if err := store.SaveSession(snap); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	got, err := store.LoadSession("sess-rt")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}

	if diff := cmp.Diff(snap, *got, cmpopts.EquateApproxTime(time.Second)); diff != "" {
		t.Errorf("session mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_LoadMissingSession(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	if _, err := store.LoadSession("nope"); err == nil {
		t.Error("expected error for missing session")
	}
}

func TestStore_ListSessions(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	for _, id := range []string{"a", "b"} {
		if err := store.SaveSession(Snapshot{ID: id, PrivacyMode: PrivacyFull, StartedAt: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}

	sessions, err := store.ListSessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Errorf("got %d sessions, want 2", len(sessions))
	}
}

// =============================================================================
// TURN PERSISTENCE TESTS
// =============================================================================

func TestStore_TurnRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	turn := Turn{
		Number:               1,
		ItemID:               "item-7",
		InputRef:             "abc123",
		Category:             "cybercrime",
		Severity:             "critical",
		Expected:             "block",
		Fidelity:             0.42,
		EmbeddingFingerprint: "deadbeef",
		Intervention: &InterventionRecord{
			Tier:      1,
			TierName:  "Tier 1 PA Block",
			Action:    "BLOCKED",
			Blocked:   true,
			Rationale: "fidelity above threshold",
		},
		StartedAt:   time.Now().UTC().Truncate(time.Second),
		CompletedAt: time.Now().UTC().Truncate(time.Second),
		Completed:   true,
	}
	if err := store.SaveTurn("sess-t", turn); err != nil {
		t.Fatalf("SaveTurn: %v", err)
	}

	turns, err := store.LoadTurns("sess-t")
	if err != nil {
		t.Fatalf("LoadTurns: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("got %d turns, want 1", len(turns))
	}

	if diff := cmp.Diff(turn, turns[0], cmpopts.EquateApproxTime(time.Second)); diff != "" {
		t.Errorf("turn mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_LoadTurnsOrdered(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	// Insert out of order; LoadTurns must come back in turn order.
	for _, n := range []int{3, 1, 2} {
		turn := Turn{Number: n, ItemID: "x", StartedAt: time.Now(), Completed: true}
		if err := store.SaveTurn("sess-o", turn); err != nil {
			t.Fatal(err)
		}
	}

	turns, err := store.LoadTurns("sess-o")
	if err != nil {
		t.Fatal(err)
	}
	for i, turn := range turns {
		if turn.Number != i+1 {
			t.Errorf("turns[%d].Number = %d", i, turn.Number)
		}
	}
}

// =============================================================================
// EMBEDDING ARCHIVE TESTS
// =============================================================================

func TestStore_EmbeddingRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	vec := []float32{0.1, -0.5, 2.25, 0}
	if err := store.SaveEmbedding("sess-e", "item-1", vec); err != nil {
		t.Fatalf("SaveEmbedding: %v", err)
	}

	got, err := store.LoadEmbedding("sess-e", "item-1")
	if err != nil {
		t.Fatalf("LoadEmbedding: %v", err)
	}
	if diff := cmp.Diff(vec, got); diff != "" {
		t.Errorf("vector mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_LoadMissingEmbedding(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	if _, err := store.LoadEmbedding("sess-e", "nope"); err == nil {
		t.Error("expected error for missing embedding")
	}
}
