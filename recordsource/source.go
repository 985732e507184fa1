// Package recordsource produces Records lazily from a tabular file, with no
// persisted read position: resuming an ingestion re-opens the source from
// the beginning and skips forward, rather than seeking to a saved offset.
// That trade trades a little CPU on resume for not having to define or
// maintain a source-specific notion of "position" (a JSON array index isn't
// a byte offset, and an Excel row isn't either once formulas or merged
// cells are involved).
package recordsource

import (
	"fmt"
	"strings"
)

// Source yields Records one at a time. Next returns ok=false, err=nil on
// clean exhaustion. Implementations are not safe for concurrent use; the
// pipeline drives a single Source from a single goroutine.
type Source interface {
	Next() (Record, bool, error)
	Close() error
}

// Open returns a restartable Source for fileType ("json" or "excel")
// rooted at path. No record is read until Next is called.
func Open(fileType, path string) (Source, error) {
	switch strings.ToLower(fileType) {
	case "json":
		return openJSON(path)
	case "excel", "xlsx":
		return openExcel(path)
	default:
		return nil, fmt.Errorf("recordsource: unsupported file_type %q", fileType)
	}
}

// Skip advances src past the first n records, discarding them. Used on
// resume: the source is reopened from scratch and skipped forward to the
// last durably committed chunk boundary.
func Skip(src Source, n int) error {
	for i := 0; i < n; i++ {
		_, ok, err := src.Next()
		if err != nil {
			return fmt.Errorf("recordsource: skip record %d of %d: %w", i, n, err)
		}
		if !ok {
			return fmt.Errorf("recordsource: source exhausted after %d records, expected at least %d", i, n)
		}
	}
	return nil
}
