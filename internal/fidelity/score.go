// Package fidelity computes the bounded similarity score between an
// item embedding and the Primacy Attractor embedding. Scoring is a
// pure function of its two inputs; provider anomalies (zero vectors,
// dimension mismatches) surface as typed errors that callers resolve
// to a 0.0 score with a warning rather than a crash.
package fidelity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrDegenerateVector is returned when either vector has zero
// magnitude: its direction is undefined, so cosine similarity is too.
var ErrDegenerateVector = errors.New("degenerate (zero-magnitude) embedding vector")

// DimensionMismatchError reports incompatible vector dimensions.
type DimensionMismatchError struct {
	ItemDim      int
	AttractorDim int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: item has %d dimensions, attractor has %d", e.ItemDim, e.AttractorDim)
}

// =============================================================================
// SCORING
// =============================================================================

// Score computes the cosine similarity between an item embedding and
// the attractor embedding. The result is in [-1, 1]: 1 means the item
// points exactly at the attractor, 0 means orthogonal.
func Score(item, attractor []float32) (float64, error) {
	if len(item) != len(attractor) {
		return 0, &DimensionMismatchError{ItemDim: len(item), AttractorDim: len(attractor)}
	}
	if len(item) == 0 {
		return 0, ErrDegenerateVector
	}

	var dot, itemMag, attractorMag float64
	for i := range item {
		dot += float64(item[i]) * float64(attractor[i])
		itemMag += float64(item[i]) * float64(item[i])
		attractorMag += float64(attractor[i]) * float64(attractor[i])
	}

	if itemMag == 0 || attractorMag == 0 {
		return 0, ErrDegenerateVector
	}

	return dot / (math.Sqrt(itemMag) * math.Sqrt(attractorMag)), nil
}

// =============================================================================
// FINGERPRINTING
// =============================================================================

// fingerprintLen is the truncated hex length of all fingerprints.
const fingerprintLen = 16

// EmbeddingFingerprint returns a short content fingerprint of an
// embedding vector (sha256 over the little-endian float32 bytes,
// truncated). Recorded per turn so a trace can be checked against
// re-generated embeddings without storing the vectors themselves.
func EmbeddingFingerprint(vec []float32) string {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}

// TextFingerprint returns a short one-way fingerprint of input text,
// used by the hashed privacy mode. The same text always produces the
// same fingerprint, so duplicates are detectable across sessions
// without retaining content.
func TextFingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}
