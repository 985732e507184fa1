package recordsource

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// excelSource streams rows off the first sheet of an .xlsx workbook via
// excelize's row iterator, so the whole sheet is never held in memory at
// once. The header row establishes column names and order; blank header
// cells are synthesized as column_<index> (0-based), and fully blank rows
// are skipped rather than yielding empty records.
type excelSource struct {
	f       *excelize.File
	rows    *excelize.Rows
	headers []string
}

func openExcel(path string) (Source, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("recordsource: open %s: %w", path, err)
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("recordsource: %s has no sheets", path)
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("recordsource: %s: %w", path, err)
	}
	if !rows.Next() {
		_ = f.Close()
		return nil, fmt.Errorf("recordsource: %s: missing header row", path)
	}
	headerCells, err := rows.Columns()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("recordsource: %s: reading header row: %w", path, err)
	}
	headers := make([]string, len(headerCells))
	for i, h := range headerCells {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i)
		}
		headers[i] = h
	}
	return &excelSource{f: f, rows: rows, headers: headers}, nil
}

func (s *excelSource) Next() (Record, bool, error) {
	for s.rows.Next() {
		cells, err := s.rows.Columns()
		if err != nil {
			return Record{}, false, fmt.Errorf("recordsource: reading row: %w", err)
		}
		if isBlankRow(cells) {
			continue
		}
		cols := make([]string, len(s.headers))
		copy(cols, s.headers)
		vals := make(map[string]any, len(s.headers))
		for i, h := range s.headers {
			if i < len(cells) && cells[i] != "" {
				vals[h] = cells[i]
			} else {
				vals[h] = nil
			}
		}
		return Record{Columns: cols, Values: vals}, true, nil
	}
	if err := s.rows.Error(); err != nil {
		return Record{}, false, fmt.Errorf("recordsource: %w", err)
	}
	return Record{}, false, nil
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func (s *excelSource) Close() error {
	if err := s.rows.Close(); err != nil {
		_ = s.f.Close()
		return fmt.Errorf("recordsource: closing row cursor: %w", err)
	}
	return s.f.Close()
}
