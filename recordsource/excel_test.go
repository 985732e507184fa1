package recordsource

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func writeXLSX(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				t.Fatalf("CoordinatesToCellName: %v", err)
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				t.Fatalf("SetCellValue: %v", err)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "fixture.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	return path
}

func TestExcelSource_HeaderAndRows(t *testing.T) {
	path := writeXLSX(t, [][]any{
		{"id", "name"},
		{1, "widget"},
		{2, "gadget"},
	})

	src, err := Open("excel", path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	records := drain(t, src)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Values["name"] != "widget" {
		t.Fatalf("unexpected record: %+v", records[0])
	}
	if got := records[0].Columns; len(got) != 2 || got[0] != "id" || got[1] != "name" {
		t.Fatalf("column order not from header: %v", got)
	}
}

func TestExcelSource_BlankHeaderSynthesized(t *testing.T) {
	path := writeXLSX(t, [][]any{
		{"id", ""},
		{1, "x"},
	})

	src, err := Open("excel", path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	records := drain(t, src)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if _, ok := records[0].Values["column_1"]; !ok {
		t.Fatalf("blank header not synthesized as column_1: %+v", records[0])
	}
}

func TestExcelSource_SkipsBlankRows(t *testing.T) {
	path := writeXLSX(t, [][]any{
		{"id"},
		{1},
		{},
		{3},
	})

	src, err := Open("excel", path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	records := drain(t, src)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (blank row skipped): %+v", records, records)
	}
}
