package assembler

import (
	"testing"

	"github.com/hazyhaar/tabflow/recordsource"
)

type fakeSource struct {
	records []recordsource.Record
	idx     int
}

func (f *fakeSource) Next() (recordsource.Record, bool, error) {
	if f.idx >= len(f.records) {
		return recordsource.Record{}, false, nil
	}
	rec := f.records[f.idx]
	f.idx++
	return rec, true, nil
}

func (f *fakeSource) Close() error { return nil }

func rec(id int) recordsource.Record {
	return recordsource.Record{Columns: []string{"id"}, Values: map[string]any{"id": id}}
}

func TestByRecordCount_EvenSplit(t *testing.T) {
	src := &fakeSource{records: []recordsource.Record{rec(1), rec(2), rec(3), rec(4)}}
	a := NewByRecordCount(2, 0)

	c1, ok, err := a.Next(src)
	if err != nil || !ok {
		t.Fatalf("chunk 1: ok=%v err=%v", ok, err)
	}
	if len(c1.Records) != 2 || c1.IsLast {
		t.Fatalf("chunk 1 = %+v, want 2 records, not last", c1)
	}

	c2, ok, err := a.Next(src)
	if err != nil || !ok {
		t.Fatalf("chunk 2: ok=%v err=%v", ok, err)
	}
	if len(c2.Records) != 2 || !c2.IsLast {
		t.Fatalf("chunk 2 = %+v, want 2 records, last", c2)
	}
	if c2.Number != 1 {
		t.Fatalf("chunk numbering not monotonic: %+v", c2)
	}

	_, ok, err = a.Next(src)
	if err != nil || ok {
		t.Fatalf("expected exhaustion after last chunk, got ok=%v err=%v", ok, err)
	}
}

func TestByRecordCount_UnevenTail(t *testing.T) {
	src := &fakeSource{records: []recordsource.Record{rec(1), rec(2), rec(3)}}
	a := NewByRecordCount(2, 0)

	c1, _, _ := a.Next(src)
	if len(c1.Records) != 2 || c1.IsLast {
		t.Fatalf("chunk 1 = %+v", c1)
	}
	c2, _, _ := a.Next(src)
	if len(c2.Records) != 1 || !c2.IsLast {
		t.Fatalf("chunk 2 = %+v, want 1 record, last", c2)
	}
}

func TestByRecordCount_ResumesAtStartNumber(t *testing.T) {
	src := &fakeSource{records: []recordsource.Record{rec(1)}}
	a := NewByRecordCount(10, 7)

	c, _, _ := a.Next(src)
	if c.Number != 7 {
		t.Fatalf("chunk number = %d, want 7 (resume point)", c.Number)
	}
}

func TestByMemory_SplitsOnThreshold(t *testing.T) {
	// each record encodes to roughly len(`{"id":N}`) bytes; force a split
	// after the first record by setting a tiny threshold.
	src := &fakeSource{records: []recordsource.Record{rec(1), rec(2), rec(3)}}
	a := NewByMemory(1, 0) // 1 byte: every record after the first overflows

	c1, ok, err := a.Next(src)
	if err != nil || !ok {
		t.Fatalf("chunk 1: ok=%v err=%v", ok, err)
	}
	if len(c1.Records) != 1 {
		t.Fatalf("chunk 1 = %+v, want exactly 1 record with a 1-byte threshold", c1)
	}
	if c1.IsLast {
		t.Fatalf("chunk 1 should not be last: more records remain")
	}
}

func TestByMemory_OversizedSingleRecordEmittedAlone(t *testing.T) {
	src := &fakeSource{records: []recordsource.Record{rec(1)}}
	a := NewByMemory(1, 0)

	c, ok, err := a.Next(src)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if len(c.Records) != 1 || !c.IsLast {
		t.Fatalf("chunk = %+v, want single oversized record as last chunk", c)
	}
}

func TestEmptySource(t *testing.T) {
	src := &fakeSource{}
	a := NewByRecordCount(10, 0)

	_, ok, err := a.Next(src)
	if err != nil || ok {
		t.Fatalf("expected immediate exhaustion on empty source, ok=%v err=%v", ok, err)
	}
}
