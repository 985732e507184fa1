// Package assembler batches Records from a recordsource.Source into
// ChunkPusher-ready chunks, either by a fixed record count or by an
// approximate in-memory byte threshold.
package assembler

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/hazyhaar/tabflow/recordsource"
)

// Chunk is one batch of records ready to push, numbered monotonically from
// the ingestion's resume point.
type Chunk struct {
	Number  int
	Records []recordsource.Record
	IsLast  bool
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger attaches a structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) { a.logger = l }
}

// Assembler pulls records from a Source and groups them into Chunks. It
// holds at most one record across calls to Next (the "pending" record that
// didn't fit in the chunk just emitted), so memory use stays bounded by the
// chunk size, not the source size.
type Assembler struct {
	byMemory   bool
	maxRecords int
	maxBytes   int64
	nextNumber int
	pending    *recordsource.Record
	logger     *slog.Logger
}

// NewByRecordCount builds an Assembler that closes a chunk once it holds
// maxRecords records. startNumber is the chunk number to assign to the
// first chunk produced (the pipeline passes last_chunk+1 on resume).
func NewByRecordCount(maxRecords, startNumber int, opts ...Option) *Assembler {
	a := &Assembler{maxRecords: maxRecords, nextNumber: startNumber}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// NewByMemory builds an Assembler that closes a chunk once the sum of its
// records' individual JSON encoding lengths reaches maxBytes. Encoded
// length, not deep in-memory size, is the chosen estimator: it is
// deterministic across platforms and mirrors the actual wire cost of the
// chunk, which is what the threshold is meant to bound.
func NewByMemory(maxBytes int64, startNumber int, opts ...Option) *Assembler {
	a := &Assembler{byMemory: true, maxBytes: maxBytes, nextNumber: startNumber}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Next pulls records from src and returns the next chunk. ok=false, err=nil
// means src is exhausted and no partial chunk remains to emit.
func (a *Assembler) Next(src recordsource.Source) (Chunk, bool, error) {
	var records []recordsource.Record
	var size int64

	if a.pending != nil {
		records = append(records, *a.pending)
		size += recordSize(*a.pending)
		a.pending = nil
	}

	for !a.full(records, size) {
		rec, ok, err := src.Next()
		if err != nil {
			return Chunk{}, false, fmt.Errorf("assembler: %w", err)
		}
		if !ok {
			if len(records) == 0 {
				return Chunk{}, false, nil
			}
			return a.emit(records, true), true, nil
		}

		if a.byMemory {
			sz := recordSize(rec)
			if len(records) > 0 && size+sz > a.maxBytes {
				a.pending = &rec
				return a.emit(records, false), true, nil
			}
			if len(records) == 0 && sz > a.maxBytes {
				a.logger.Warn("record exceeds chunk byte threshold, emitting alone",
					"record_bytes", humanize.Bytes(uint64(sz)),
					"threshold", humanize.Bytes(uint64(a.maxBytes)))
			}
			records = append(records, rec)
			size += sz
		} else {
			records = append(records, rec)
		}
	}

	// Cap reached without a blocking record; peek ahead to learn whether
	// this chunk is the last one.
	rec, ok, err := src.Next()
	if err != nil {
		return Chunk{}, false, fmt.Errorf("assembler: %w", err)
	}
	if !ok {
		return a.emit(records, true), true, nil
	}
	a.pending = &rec
	return a.emit(records, false), true, nil
}

func (a *Assembler) full(records []recordsource.Record, size int64) bool {
	if a.byMemory {
		return len(records) > 0 && size >= a.maxBytes
	}
	return len(records) >= a.maxRecords
}

func (a *Assembler) emit(records []recordsource.Record, isLast bool) Chunk {
	c := Chunk{Number: a.nextNumber, Records: records, IsLast: isLast}
	a.nextNumber++
	a.logger.Debug("chunk assembled",
		"chunk_number", c.Number,
		"record_count", len(c.Records),
		"is_last", c.IsLast)
	return c
}

func recordSize(rec recordsource.Record) int64 {
	b, err := json.Marshal(rec)
	if err != nil {
		return 0
	}
	return int64(len(b))
}
