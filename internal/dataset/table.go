package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// Table is an in-memory tabular dataset: ordered named columns and string
// rows. Datasets are loaded fully into memory for the duration of one
// operation and have no identity beyond their storage location.
type Table struct {
	Columns []string
	Rows    [][]string
}

// RowCount returns the number of data rows.
func (t *Table) RowCount() int { return len(t.Rows) }

// ColumnIndex returns the index of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// ReadCSV parses delimited text into a Table. The first row is the header.
// A UTF-8 BOM is stripped; bytes that are not valid UTF-8 are decoded as
// Latin-1 so exported spreadsheets with legacy encodings still load.
func ReadCSV(data []byte) (*Table, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if !utf8.Valid(data) {
		data = latin1ToUTF8(data)
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("file is empty")
	}

	columns := records[0]
	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		// Ragged rows are padded so every row has a cell per column.
		if len(rec) < len(columns) {
			padded := make([]string, len(columns))
			copy(padded, rec)
			rec = padded
		} else if len(rec) > len(columns) {
			rec = rec[:len(columns)]
		}
		rows = append(rows, rec)
	}

	return &Table{Columns: columns, Rows: rows}, nil
}

func latin1ToUTF8(data []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(data))
	for _, b := range data {
		buf.WriteRune(rune(b))
	}
	return buf.Bytes()
}

// ReadExcel parses the first sheet of an XLSX workbook into a Table.
func ReadExcel(data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("sheet is empty")
	}

	columns := records[0]
	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) < len(columns) {
			padded := make([]string, len(columns))
			copy(padded, rec)
			rec = padded
		}
		rows = append(rows, rec)
	}

	return &Table{Columns: columns, Rows: rows}, nil
}

// ReadBytes dispatches on the filename extension.
func ReadBytes(data []byte, filename string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		return ReadExcel(data)
	default:
		return ReadCSV(data)
	}
}

// ReadFile loads a CSV or XLSX file from disk.
func ReadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ReadBytes(data, path)
}

// WriteCSV serializes the table as CSV.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes the table to a file.
func (t *Table) SaveCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return t.WriteCSV(f)
}

// Preview returns up to n rows as column→value records with every cell as
// text. Presentation only.
func (t *Table) Preview(n int) []map[string]string {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	out := make([]map[string]string, 0, n)
	for _, row := range t.Rows[:n] {
		rec := make(map[string]string, len(t.Columns))
		for i, col := range t.Columns {
			rec[col] = row[i]
		}
		out = append(out, rec)
	}
	return out
}

// DTypes infers a coarse per-column type from the data: int64 if every
// non-empty cell parses as an integer, float64 if numeric, object otherwise.
func (t *Table) DTypes() map[string]string {
	types := make(map[string]string, len(t.Columns))
	for i, col := range t.Columns {
		allInt, allFloat, seen := true, true, false
		for _, row := range t.Rows {
			v := strings.TrimSpace(row[i])
			if v == "" {
				continue
			}
			seen = true
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				allInt = false
			}
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				allFloat = false
			}
			if !allInt && !allFloat {
				break
			}
		}
		switch {
		case seen && allInt:
			types[col] = "int64"
		case seen && allFloat:
			types[col] = "float64"
		default:
			types[col] = "object"
		}
	}
	return types
}

// UniqueCounts counts distinct values per column.
func (t *Table) UniqueCounts() map[string]int {
	counts := make(map[string]int, len(t.Columns))
	for i, col := range t.Columns {
		seen := make(map[string]struct{})
		for _, row := range t.Rows {
			seen[row[i]] = struct{}{}
		}
		counts[col] = len(seen)
	}
	return counts
}

// UniqueValues returns the distinct non-empty values of a column, case-folded
// and trimmed, capped at limit. Used for match previews.
func (t *Table) UniqueValues(column string, limit int) (map[string]struct{}, error) {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found", column)
	}
	values := make(map[string]struct{})
	for _, row := range t.Rows {
		v := strings.ToLower(strings.TrimSpace(row[idx]))
		if v == "" {
			continue
		}
		if _, ok := values[v]; !ok {
			if limit > 0 && len(values) >= limit {
				break
			}
			values[v] = struct{}{}
		}
	}
	return values, nil
}

// SelectColumns projects the table onto the given column list, keeping only
// columns that exist. An empty selection returns the table unchanged.
func (t *Table) SelectColumns(selected []string) *Table {
	if len(selected) == 0 {
		return t
	}
	var keep []int
	var cols []string
	for _, name := range selected {
		if idx := t.ColumnIndex(name); idx >= 0 {
			keep = append(keep, idx)
			cols = append(cols, name)
		}
	}
	if len(keep) == 0 {
		return t
	}
	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		out := make([]string, len(keep))
		for j, idx := range keep {
			out[j] = row[idx]
		}
		rows[i] = out
	}
	return &Table{Columns: cols, Rows: rows}
}

// Concat stacks tables row-wise. Column sets are assumed compatible; the
// first table's header wins and shorter rows are padded.
func Concat(tables ...*Table) *Table {
	if len(tables) == 0 {
		return &Table{}
	}
	out := &Table{Columns: tables[0].Columns}
	for _, t := range tables {
		for _, row := range t.Rows {
			if len(row) < len(out.Columns) {
				padded := make([]string, len(out.Columns))
				copy(padded, row)
				row = padded
			} else if len(row) > len(out.Columns) {
				row = row[:len(out.Columns)]
			}
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// ToExcelBytes renders the table as an XLSX workbook.
func (t *Table) ToExcelBytes(sheet string) ([]byte, error) {
	if sheet == "" {
		sheet = "Sheet1"
	}
	f := excelize.NewFile()
	defer f.Close()

	defaultSheet := f.GetSheetName(0)
	if defaultSheet != sheet {
		f.SetSheetName(defaultSheet, sheet)
	}

	for i, col := range t.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, col)
	}
	for r, row := range t.Rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
