package mapper

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet is the first worksheet of an uploaded workbook, split into a
// header row and data rows.
type Sheet struct {
	Name    string
	Headers []string
	Rows    [][]string
}

// DataRowCount returns the number of data rows (excluding the header).
func (s *Sheet) DataRowCount() int { return len(s.Rows) }

// RowMap returns data row i (0-based) keyed by header name. Short rows
// are padded with empty strings, trailing extra cells are dropped.
func (s *Sheet) RowMap(i int) map[string]string {
	row := s.Rows[i]
	m := make(map[string]string, len(s.Headers))
	for col, h := range s.Headers {
		if h == "" {
			continue
		}
		if col < len(row) {
			m[h] = strings.TrimSpace(row[col])
		} else {
			m[h] = ""
		}
	}
	return m
}

// ReadWorkbook parses an .xlsx stream and returns its first worksheet.
// The first row is the header row; a workbook without one is rejected.
func ReadWorkbook(r io.Reader) (*Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	name := sheets[0]

	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", name, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q has no header row", name)
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	sheet := &Sheet{Name: name, Headers: headers}
	for _, row := range rows[1:] {
		if emptyRow(row) {
			continue
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet, nil
}

func emptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
