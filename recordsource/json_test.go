package recordsource

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func drain(t *testing.T, src Source) []Record {
	t.Helper()
	var out []Record
	for {
		rec, ok, err := src.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			return out
		}
		out = append(out, rec)
	}
}

func TestJSONSource_SingleFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "records.json", `[{"id":1,"name":"a"},{"id":2,"name":"b"}]`)

	src, err := Open("json", path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	records := drain(t, src)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Values["id"] != float64(1) || records[0].Values["name"] != "a" {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
	if got := records[0].Columns; len(got) != 2 || got[0] != "id" || got[1] != "name" {
		t.Fatalf("column order not preserved: %v", got)
	}
}

func TestJSONSource_EmptyArray(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "records.json", `[]`)

	src, err := Open("json", path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	if records := drain(t, src); len(records) != 0 {
		t.Fatalf("got %d records, want 0", len(records))
	}
}

func TestJSONSource_RejectsNonArray(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "records.json", `{"id":1}`)

	src, err := Open("json", path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	_, _, err = src.Next()
	if err == nil {
		t.Fatal("expected error for non-array top-level JSON value")
	}
}

func TestJSONSource_Directory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.json", `[{"id":2}]`)
	writeFile(t, dir, "a.json", `[{"id":1}]`)

	src, err := Open("json", dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	records := drain(t, src)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	// sorted file order: a.json before b.json
	if records[0].Values["id"] != float64(1) || records[1].Values["id"] != float64(2) {
		t.Fatalf("directory traversal not in sorted order: %+v", records)
	}
}

func TestSkip(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "records.json", `[{"id":1},{"id":2},{"id":3}]`)

	src, err := Open("json", path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	if err := Skip(src, 2); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	rec, ok, err := src.Next()
	if err != nil || !ok {
		t.Fatalf("Next after skip: rec=%+v ok=%v err=%v", rec, ok, err)
	}
	if rec.Values["id"] != float64(3) {
		t.Fatalf("Skip left wrong position: %+v", rec)
	}
}

func TestSkip_ExhaustedSourceErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "records.json", `[{"id":1}]`)

	src, err := Open("json", path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	if err := Skip(src, 5); err == nil {
		t.Fatal("expected error skipping past end of source")
	}
}
