// Package chunkint computes the deterministic chunk identifiers and
// checksums that tie a pushed chunk to the receiver's independent
// recomputation of the same values.
//
// Both sides must derive byte-identical digests from the same records, so
// the canonicalization rules here (sorted object keys at every nesting
// level, no extraneous whitespace, UTF-8, Go's default shortest-form number
// encoding) are load-bearing: drifting from them on either side turns every
// chunk into a checksum mismatch.
package chunkint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Manager is pure and stateless: identical input always yields identical
// output. It holds no state so a zero value is ready to use.
type Manager struct{}

// New returns a ready-to-use Manager.
func New() *Manager { return &Manager{} }

// ChunkID derives the wire chunk_id from an ingestion ID and chunk number.
// ingestion_id is a UUID, so no delimiter escaping is required.
func (Manager) ChunkID(ingestionID string, chunkNumber int) string {
	return fmt.Sprintf("%s:%d", ingestionID, chunkNumber)
}

// Checksum returns the hex-encoded SHA-256 digest of the canonical JSON
// serialization of records.
func (Manager) Checksum(records []map[string]any) (string, error) {
	data, err := CanonicalJSON(records)
	if err != nil {
		return "", fmt.Errorf("chunkint: canonicalize: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// CanonicalJSON serializes v the way both sender and receiver must: object
// keys sorted lexicographically at every nesting level, no trailing
// newline, HTML-safe escaping disabled (it is not a display value).
//
// encoding/json already sorts the keys of any map[string]T on Marshal, and
// its number formatting is deterministic and platform-independent — that is
// the entire canonicalization contract the checksum needs, so there is
// nothing here for a third-party canonical-JSON encoder to improve on.
func CanonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Encoder.Encode appends a trailing "\n"; strip it for a byte-exact digest.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
