// Package validator implements the receiver-side decision of whether to
// ACK or NACK an incoming chunk. State is kept per process, in memory, and
// is never persisted: a receiver restart deliberately forgets every
// ingestion's progress, forcing the sender back into its durable resume
// path rather than trying to reconcile two sources of truth.
package validator

import (
	"fmt"
	"sync"

	"github.com/hazyhaar/tabflow/chunkint"
)

// Reason codes returned alongside a NACK.
const (
	ReasonEmptyChunk       = "EMPTY_CHUNK"
	ReasonChecksumMismatch = "CHECKSUM_MISMATCH"
	ReasonOutOfOrderChunk  = "OUT_OF_ORDER_CHUNK"
)

// Chunk is the subset of a pushed chunk the validator needs to decide.
type Chunk struct {
	IngestionID string
	ChunkNumber int
	ChunkID     string
	Checksum    string
	Records     []map[string]any
}

// Decision is the validator's verdict: Ack, or Nack with a Reason.
type Decision struct {
	Ack    bool
	Reason string
}

func ack() Decision             { return Decision{Ack: true} }
func nack(reason string) Decision { return Decision{Ack: false, Reason: reason} }

type ingestionState struct {
	lastAcceptedChunkNumber int // -1 means none accepted yet
	lastAcceptedChunkID     string
	lastAcceptedChecksum    string
}

// Validator applies the ordering/checksum/duplicate/emptiness rule chain
// described in spec.md §4.7, keyed by ingestion_id. It is safe for
// concurrent use: Validate holds one mutex for the whole state check and
// update, so even two chunks of the same ingestion are decided one after
// the other.
type Validator struct {
	mu     sync.Mutex
	states map[string]*ingestionState
	chunks *chunkint.Manager
}

// New builds an empty Validator.
func New() *Validator {
	return &Validator{
		states: make(map[string]*ingestionState),
		chunks: chunkint.New(),
	}
}

// Validate decides ACK or NACK for c, applying rules in order: empty,
// duplicate, checksum, ordering.
func (v *Validator) Validate(c Chunk) (Decision, error) {
	if len(c.Records) == 0 {
		return nack(ReasonEmptyChunk), nil
	}

	checksum, err := v.chunks.Checksum(c.Records)
	if err != nil {
		return Decision{}, fmt.Errorf("validator: recompute checksum: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	st, ok := v.states[c.IngestionID]
	if !ok {
		st = &ingestionState{lastAcceptedChunkNumber: -1}
		v.states[c.IngestionID] = st
	}

	// Duplicate: same chunk_id as the last accepted one, checksums agree.
	// Silent idempotency — re-ack without touching state.
	if c.ChunkID == st.lastAcceptedChunkID && checksum == st.lastAcceptedChecksum && st.lastAcceptedChunkID != "" {
		return ack(), nil
	}

	if checksum != c.Checksum {
		return nack(ReasonChecksumMismatch), nil
	}

	expected := st.lastAcceptedChunkNumber + 1
	if c.ChunkNumber != expected {
		return nack(ReasonOutOfOrderChunk), nil
	}

	st.lastAcceptedChunkNumber = c.ChunkNumber
	st.lastAcceptedChunkID = c.ChunkID
	st.lastAcceptedChecksum = checksum
	return ack(), nil
}

// Reset forgets an ingestion's state entirely. Exposed for tests and for a
// receiver operator explicitly abandoning a stuck ingestion; the sender
// never calls this over the wire.
func (v *Validator) Reset(ingestionID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.states, ingestionID)
}
