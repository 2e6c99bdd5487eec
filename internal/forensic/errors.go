package forensic

import (
	"errors"
	"fmt"
)

// =============================================================================
// PROTOCOL ERRORS
// =============================================================================

// Sentinel errors for session lifecycle violations.
var (
	// ErrSessionAlreadyStarted is returned by Start on a session that
	// has already been started.
	ErrSessionAlreadyStarted = errors.New("forensic session already started")

	// ErrSessionNotStarted is returned when turns are opened or the
	// PA is recorded before Start.
	ErrSessionNotStarted = errors.New("forensic session not started")

	// ErrSessionClosed is returned by any mutation after End.
	ErrSessionClosed = errors.New("forensic session closed")

	// ErrPAAfterTurns is returned when the PA-establishment record
	// arrives after the first turn has been opened.
	ErrPAAfterTurns = errors.New("PA establishment must be recorded before the first turn")
)

// OutOfOrderTurnError reports a turn opened out of sequence. Turns
// are strictly sequential: no gaps, no reordering, no concurrent
// turns within a session.
type OutOfOrderTurnError struct {
	Got  int
	Want int
}

func (e *OutOfOrderTurnError) Error() string {
	return fmt.Sprintf("out-of-order turn: got %d, want %d", e.Got, e.Want)
}

// UnknownTurnError reports a write against a turn that was never
// opened or is not the open turn.
type UnknownTurnError struct {
	Turn int
}

func (e *UnknownTurnError) Error() string {
	return fmt.Sprintf("no open turn %d", e.Turn)
}

// TurnAlreadyClosedError reports a write against a finalized turn.
type TurnAlreadyClosedError struct {
	Turn int
}

func (e *TurnAlreadyClosedError) Error() string {
	return fmt.Sprintf("turn %d already closed", e.Turn)
}
