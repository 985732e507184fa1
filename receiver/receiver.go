// Package receiver is a minimal reference implementation of the chunk
// receiver side: it decodes a pushed chunk, runs it through validator.Validate,
// and replies with the ACK/NACK contract. Anything downstream of that
// decision — what a real receiver does with accepted records — is out of
// scope, per spec.md's "business logic of the receiver" non-goal.
package receiver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/tabflow/validator"
)

type chunkPayload struct {
	IngestionID string           `json:"ingestion_id"`
	ChunkNumber int              `json:"chunk_number"`
	ChunkID     string           `json:"chunk_id"`
	Checksum    string           `json:"checksum"`
	Records     []map[string]any `json:"records"`
	IsLast      bool             `json:"is_last"`
}

type completionPayload struct {
	IngestionID  string `json:"ingestion_id"`
	Status       string `json:"status"`
	ChunkNumber  int    `json:"chunk_number"`
	TotalRecords int    `json:"total_records"`
}

type ackResponse struct {
	Ack   bool   `json:"ack"`
	Error string `json:"error,omitempty"`
}

// Receiver holds one Validator per process, as spec.md §4.7 requires.
type Receiver struct {
	validator *validator.Validator
	logger    *slog.Logger
}

// New builds a Receiver. logger defaults to slog.Default() if nil.
func New(logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{validator: validator.New(), logger: logger}
}

// Handler returns the http.HandlerFunc that accepts both chunk payloads and
// completion notifications at the same endpoint, distinguishing them by the
// presence of a "status" field, matching the sender's single callback_url
// contract.
func (rv *Receiver) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeAck(w, false, "INVALID_JSON")
			return
		}

		var probe struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(body, &probe); err != nil {
			writeAck(w, false, "INVALID_JSON")
			return
		}

		if probe.Status != "" {
			rv.handleCompletion(w, body)
			return
		}
		rv.handleChunk(w, body)
	}
}

func (rv *Receiver) handleChunk(w http.ResponseWriter, body []byte) {
	var payload chunkPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeAck(w, false, "INVALID_JSON")
		return
	}

	decision, err := rv.validator.Validate(validator.Chunk{
		IngestionID: payload.IngestionID,
		ChunkNumber: payload.ChunkNumber,
		ChunkID:     payload.ChunkID,
		Checksum:    payload.Checksum,
		Records:     payload.Records,
	})
	if err != nil {
		rv.logger.Error("validate chunk", "ingestion_id", payload.IngestionID, "error", err)
		writeAck(w, false, "INTERNAL_ERROR")
		return
	}

	rv.logger.Info("chunk validated",
		"ingestion_id", payload.IngestionID,
		"chunk_number", payload.ChunkNumber,
		"ack", decision.Ack,
		"reason", decision.Reason)

	writeAck(w, decision.Ack, decision.Reason)
}

func (rv *Receiver) handleCompletion(w http.ResponseWriter, body []byte) {
	var payload completionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeAck(w, false, "INVALID_JSON")
		return
	}
	rv.logger.Info("ingestion completed",
		"ingestion_id", payload.IngestionID,
		"total_records", payload.TotalRecords)
	writeAck(w, true, "")
}

func writeAck(w http.ResponseWriter, ack bool, reason string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ackResponse{Ack: ack, Error: reason})
}
