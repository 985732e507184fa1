// Package pipeline orchestrates one ingestion end to end: open the record
// source, skip past whatever was already committed, assemble and push
// chunks, and commit progress after each acknowledged chunk so a crash
// mid-run resumes exactly where it left off.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/tabflow/assembler"
	"github.com/hazyhaar/tabflow/chunkint"
	"github.com/hazyhaar/tabflow/observability"
	"github.com/hazyhaar/tabflow/pusher"
	"github.com/hazyhaar/tabflow/recordsource"
	"github.com/hazyhaar/tabflow/statestore"
)

// Request describes one ingestion run: what to read, how to chunk it, and
// where to push it. It mirrors the external IngestionRequest contract.
type Request struct {
	IngestionID      string
	FilePath         string
	FileType         string // "json" or "excel"
	CallbackURL      string // receiver endpoint for both chunk pushes and the completion notification
	ChunkSizeRecords int    // mutually exclusive with ChunkSizeBytes; 0 means unset
	ChunkSizeBytes   int64  // mutually exclusive with ChunkSizeRecords; 0 means unset
	ReIngestion      bool   // true forces a from-scratch restart, discarding prior progress
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithAudit attaches an audit logger.
func WithAudit(a *observability.AuditLogger) Option {
	return func(p *Pipeline) { p.audit = a }
}

// WithMetrics attaches a metrics manager.
func WithMetrics(m *observability.MetricsManager) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithEventLogger attaches a business-event logger. When set, Run records an
// "ingestion_completed" or "ingestion_failed" event alongside the audit trail.
func WithEventLogger(l *observability.EventLogger) Option {
	return func(p *Pipeline) { p.events = l }
}

// WithLogger attaches a structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithPusher overrides the default pusher (used by tests to point at a fake
// receiver, and by cmd/tabflowd to share one configured instance).
func WithPusher(ps *pusher.Pusher) Option {
	return func(p *Pipeline) { p.pusher = ps }
}

// Pipeline drives a single ingestion's state machine: init, open source,
// skip, produce+push, complete. One goroutine per ingestion; no pipelining
// of chunks within an ingestion.
type Pipeline struct {
	store   *statestore.Store
	pusher  *pusher.Pusher
	chunks  *chunkint.Manager
	audit   *observability.AuditLogger
	metrics *observability.MetricsManager
	events  *observability.EventLogger
	logger  *slog.Logger
}

// New builds a Pipeline backed by store. If no pusher is supplied via
// WithPusher, a default one is created.
func New(store *statestore.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:  store,
		chunks: chunkint.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.pusher == nil {
		p.pusher = pusher.New()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Run executes req to completion (or the first unrecoverable error),
// resuming from whatever ingestion_state already records unless
// req.ReIngestion is set.
func (p *Pipeline) Run(ctx context.Context, req Request) error {
	start := time.Now()
	logger := p.logger.With("ingestion_id", req.IngestionID)

	if req.ReIngestion {
		if err := p.store.Reset(req.IngestionID); err != nil {
			return p.fail(req, start, fmt.Errorf("pipeline: reset for re-ingestion: %w", err))
		}
	}

	lastChunk, err := p.store.GetLastChunk(req.IngestionID)
	if err != nil {
		return p.fail(req, start, fmt.Errorf("pipeline: read resume point: %w", err))
	}
	totalRecords, err := p.store.GetTotalRecords(req.IngestionID)
	if err != nil {
		return p.fail(req, start, fmt.Errorf("pipeline: read total records: %w", err))
	}

	src, err := recordsource.Open(req.FileType, req.FilePath)
	if err != nil {
		return p.fail(req, start, fmt.Errorf("pipeline: open source: %w", err))
	}
	defer src.Close()

	// Resume point: re-skip totalRecords already-committed records. The
	// source keeps no persisted offset, so resuming replays from the start.
	if totalRecords > 0 {
		if err := recordsource.Skip(src, totalRecords); err != nil {
			return p.fail(req, start, fmt.Errorf("pipeline: skip to resume point: %w", err))
		}
		logger.Info("resumed ingestion", "skipped_records", totalRecords, "last_chunk", lastChunk)
	}

	nextChunk := lastChunk + 1
	asm := newAssembler(req, nextChunk, logger)
	finalChunkNumber := lastChunk

	for {
		if err := ctx.Err(); err != nil {
			return p.fail(req, start, fmt.Errorf("pipeline: %w", err))
		}

		chunk, ok, err := asm.Next(src)
		if err != nil {
			return p.fail(req, start, fmt.Errorf("pipeline: assemble chunk: %w", err))
		}
		if !ok {
			// Source exhausted. On a fresh run this only happens for an
			// empty source (finalChunkNumber stays at -1); on resume it
			// also happens when every chunk was already committed but the
			// completion notification below was never acknowledged.
			break
		}

		records := make([]map[string]any, len(chunk.Records))
		for i, r := range chunk.Records {
			records[i] = r.AsMap()
		}
		checksum, err := p.chunks.Checksum(records)
		if err != nil {
			return p.fail(req, start, fmt.Errorf("pipeline: checksum chunk %d: %w", chunk.Number, err))
		}

		payload := pusher.ChunkPayload{
			IngestionID: req.IngestionID,
			ChunkNumber: chunk.Number,
			ChunkID:     p.chunks.ChunkID(req.IngestionID, chunk.Number),
			Checksum:    checksum,
			Records:     chunk.Records,
			IsLast:      chunk.IsLast,
		}

		if err := p.pusher.Push(ctx, req.CallbackURL, payload); err != nil {
			return p.fail(req, start, fmt.Errorf("pipeline: push chunk %d: %w", chunk.Number, err))
		}

		if err := p.store.UpdateChunk(req.IngestionID, chunk.Number, len(chunk.Records)); err != nil {
			return p.fail(req, start, fmt.Errorf("pipeline: commit chunk %d: %w", chunk.Number, err))
		}
		p.recordChunkMetric(req.IngestionID, chunk.Number, "tabflow_chunk_pushed_count", 1, "count")
		logger.Debug("chunk committed", "chunk_number", chunk.Number, "record_count", len(chunk.Records), "is_last", chunk.IsLast)

		finalChunkNumber = chunk.Number
		if chunk.IsLast {
			break
		}
	}

	totalRecords, err = p.store.GetTotalRecords(req.IngestionID)
	if err != nil {
		return p.fail(req, start, fmt.Errorf("pipeline: read total records before completion: %w", err))
	}

	completionAck, err := p.pusher.NotifyCompletion(ctx, req.CallbackURL, pusher.CompletionPayload{
		IngestionID:  req.IngestionID,
		Status:       statestore.StatusCompleted,
		ChunkNumber:  finalChunkNumber + 1,
		TotalRecords: totalRecords,
	})
	if err != nil {
		return p.fail(req, start, fmt.Errorf("pipeline: completion notification: %w", err))
	}
	if !completionAck {
		return p.fail(req, start, fmt.Errorf("pipeline: completion notification not acknowledged"))
	}

	if err := p.store.MarkCompleted(req.IngestionID); err != nil {
		return p.fail(req, start, fmt.Errorf("pipeline: mark completed: %w", err))
	}

	duration := time.Since(start)
	logger.Info("ingestion completed", "duration", duration)
	p.recordIngestionMetric(req.IngestionID, "tabflow_ingestion_duration_ms", float64(duration.Milliseconds()), "milliseconds")
	p.auditLog(req, "pipeline.complete", nil, duration)
	p.logEvent(req, "ingestion_completed", nil)
	return nil
}

func newAssembler(req Request, startChunk int, logger *slog.Logger) *assembler.Assembler {
	if req.ChunkSizeBytes > 0 {
		return assembler.NewByMemory(req.ChunkSizeBytes, startChunk, assembler.WithLogger(logger))
	}
	return assembler.NewByRecordCount(req.ChunkSizeRecords, startChunk, assembler.WithLogger(logger))
}

func (p *Pipeline) fail(req Request, start time.Time, err error) error {
	if markErr := p.store.MarkFailed(req.IngestionID); markErr != nil {
		p.logger.Error("pipeline: failed to mark ingestion failed", "ingestion_id", req.IngestionID, "error", markErr)
	}
	p.logger.Error("ingestion failed", "ingestion_id", req.IngestionID, "error", err)
	p.auditLog(req, "pipeline.failed", err, time.Since(start))
	p.logEvent(req, "ingestion_failed", err)
	return err
}

func (p *Pipeline) auditLog(req Request, operation string, err error, duration time.Duration) {
	if p.audit == nil {
		return
	}
	entry := p.audit.NewIngestionAuditEntry("pipeline", operation, req.IngestionID, -1, req, nil, err, duration)
	p.audit.LogAsync(entry)
}

func (p *Pipeline) logEvent(req Request, eventType string, err error) {
	if p.events == nil {
		return
	}
	details := ""
	if err != nil {
		details = err.Error()
	}
	p.events.LogEvent(context.Background(), observability.BusinessEvent{
		EventType:   eventType,
		ServiceName: "tabflow",
		EntityType:  "ingestion",
		EntityID:    req.IngestionID,
		Action:      "ingest",
		Details:     details,
		Success:     err == nil,
	})
}

func (p *Pipeline) recordIngestionMetric(ingestionID, name string, value float64, unit string) {
	if p.metrics == nil {
		return
	}
	p.metrics.Record(&observability.Metric{
		Name:      name,
		Timestamp: time.Now(),
		Value:     value,
		Unit:      unit,
		Labels:    map[string]string{"ingestion_id": ingestionID},
	})
}

func (p *Pipeline) recordChunkMetric(ingestionID string, chunkNumber int, name string, value float64, unit string) {
	if p.metrics == nil {
		return
	}
	p.metrics.Record(&observability.Metric{
		Name:      name,
		Timestamp: time.Now(),
		Value:     value,
		Unit:      unit,
		Labels: map[string]string{
			"ingestion_id": ingestionID,
			"chunk_number": fmt.Sprintf("%d", chunkNumber),
		},
	})
}
