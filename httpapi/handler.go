// Package httpapi is the control-plane HTTP front: it accepts an ingest
// request, validates it synchronously, mints an ingestion ID, and hands the
// actual work off to pipeline.Run in a background goroutine.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/tabflow/idgen"
	"github.com/hazyhaar/tabflow/pipeline"
)

// ingestRequest is the wire shape of POST /api/ingest.
type ingestRequest struct {
	FilePath           string `json:"file_path"`
	FileType           string `json:"file_type"`
	CallbackURL        string `json:"callback_url"`
	ChunkSizeByRecords int    `json:"chunk_size_by_records"`
	ChunkSizeByMemory  int64  `json:"chunk_size_by_memory"`
	ReIngestion        bool   `json:"re_ingestion"`
}

func (r ingestRequest) validate() error {
	if r.FilePath == "" {
		return fmt.Errorf("file_path is required")
	}
	if r.FileType != "json" && r.FileType != "excel" {
		return fmt.Errorf("file_type must be 'json' or 'excel', got %q", r.FileType)
	}
	if r.CallbackURL == "" {
		return fmt.Errorf("callback_url is required")
	}
	byRecords := r.ChunkSizeByRecords > 0
	byMemory := r.ChunkSizeByMemory > 0
	if byRecords == byMemory {
		return fmt.Errorf("exactly one of chunk_size_by_records or chunk_size_by_memory must be set")
	}
	return nil
}

type startedResponse struct {
	Status      string `json:"status"`
	IngestionID string `json:"ingestion_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler wires the ingest endpoint to a Pipeline, dispatching each
// accepted request as its own goroutine.
type Handler struct {
	pipeline *pipeline.Pipeline
	idgen    idgen.Generator
	logger   *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithIDGenerator overrides the default ingestion ID generator
// (idgen.Prefixed("ing_", idgen.UUIDv7())).
func WithIDGenerator(g idgen.Generator) Option {
	return func(h *Handler) { h.idgen = g }
}

// WithLogger attaches a structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// New builds a Handler backed by p.
func New(p *pipeline.Pipeline, opts ...Option) *Handler {
	h := &Handler{pipeline: p, idgen: idgen.Prefixed("ing_", idgen.UUIDv7())}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Router builds a chi.Router exposing POST /api/ingest plus the standard
// request-ID/recovery/logging middleware stack.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Post("/api/ingest", h.handleIngest)
	return r
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ingestionID := h.idgen()
	pipelineReq := pipeline.Request{
		IngestionID:      ingestionID,
		FilePath:         req.FilePath,
		FileType:         req.FileType,
		CallbackURL:      req.CallbackURL,
		ChunkSizeRecords: req.ChunkSizeByRecords,
		ChunkSizeBytes:   req.ChunkSizeByMemory,
		ReIngestion:      req.ReIngestion,
	}

	logger := h.logger.With("ingestion_id", ingestionID)
	go func() {
		if err := h.pipeline.Run(context.Background(), pipelineReq); err != nil {
			logger.Error("ingestion run failed", "error", err)
		}
	}()

	writeJSON(w, http.StatusOK, startedResponse{Status: "STARTED", IngestionID: ingestionID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
