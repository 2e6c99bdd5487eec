package forensic

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// =============================================================================
// JSONL TRACE WRITER
// =============================================================================

// TraceWriter appends events to a JSONL file, one record per line.
// The file is opened append-only; an interrupted run leaves a valid
// prefix of complete lines.
type TraceWriter struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewTraceWriter creates (or appends to) the trace file for a
// session under dir.
func NewTraceWriter(dir, sessionID string) (*TraceWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}

	path := filepath.Join(dir, sessionID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &TraceWriter{file: f, path: path}, nil
}

// Write appends one event.
func (w *TraceWriter) Write(e Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := w.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Path returns the trace file path.
func (w *TraceWriter) Path() string { return w.path }

// Close closes the underlying file.
func (w *TraceWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
