// Package table loads ground-truth and model-output spreadsheets into
// string records and groups them by page.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/entryalign/pkg/align"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

var (
	ErrColumnNotFound    = errors.New("column not found")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoHeader          = errors.New("missing header row")
)

// Format describes how a delimited or spreadsheet file is laid out.
type Format struct {
	Delimiter string `yaml:"delimiter"`
	Encoding  string `yaml:"encoding"`
	Sheet     string `yaml:"sheet"`
}

// Table is a loaded file: its header and one record per data row.
// Every header column is present in every record, blank cells as "".
type Table struct {
	Path    string
	Columns []string
	Rows    []align.Record
}

// Group is an ordered run of records sharing one page identifier.
type Group struct {
	Page string
	Rows []align.Record
}

// Load reads a .csv/.tsv/.txt or .xlsx file.
func Load(path string, f Format) (*Table, error) {
	var (
		header []string
		rows   [][]string
		err    error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		header, rows, err = readDelimited(path, f.Delimiter, f.Encoding)
	case ".tsv":
		header, rows, err = readDelimited(path, "\t", f.Encoding)
	case ".xlsx":
		header, rows, err = readWorkbook(path, f.Sheet)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	t := &Table{Path: path, Columns: header, Rows: make([]align.Record, 0, len(rows))}
	for _, row := range rows {
		rec := make(align.Record, len(header))
		for i, col := range header {
			if col == "" {
				continue
			}
			if i < len(row) {
				rec[col] = row[i]
			} else {
				rec[col] = ""
			}
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// HasColumn reports whether the header contains col.
func (t *Table) HasColumn(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// GroupBy splits the rows by the trimmed value of column, keeping groups in
// order of first appearance. Rows with a blank value are dropped.
func (t *Table) GroupBy(column string) ([]Group, error) {
	if !t.HasColumn(column) {
		return nil, fmt.Errorf("%w: %q in %s", ErrColumnNotFound, column, t.Path)
	}

	index := make(map[string]int)
	var groups []Group
	var dropped int
	for _, rec := range t.Rows {
		key := strings.TrimSpace(rec[column])
		if key == "" {
			dropped++
			continue
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Page: key})
		}
		groups[i].Rows = append(groups[i].Rows, rec)
	}

	if dropped > 0 {
		slog.Warn("rows without page dropped", "file", t.Path, "column", column, "rows", dropped)
	}
	return groups, nil
}

func readDelimited(path, delimiter, encoding string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open data file: %w", err)
	}
	defer f.Close()

	// Transcode non-UTF-8 exports (cp1252 is common for Excel-saved CSV).
	var reader io.Reader = f
	if encoding != "" && !isUTF8(encoding) {
		e, err := htmlindex.Get(encoding)
		if err != nil {
			return nil, nil, fmt.Errorf("unsupported encoding %q: %w", encoding, err)
		}
		reader = transform.NewReader(f, e.NewDecoder())
	}

	r := csv.NewReader(reader)
	if delimiter != "" {
		r.Comma = []rune(delimiter)[0]
	}
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, ErrNoHeader
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	header = cleanHeader(header)

	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row: %w", err)
		}
		rows = append(rows, record)
	}
	return header, rows, nil
}

// metadataSheets are skipped when no sheet is named explicitly.
var metadataSheets = map[string]bool{
	"info":     true,
	"metadata": true,
	"about":    true,
	"readme":   true,
	"notes":    true,
}

func readWorkbook(path, sheet string) ([]string, [][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil, fmt.Errorf("no sheets in workbook")
		}
		for _, s := range sheets {
			if !metadataSheets[strings.ToLower(s)] {
				sheet = s
				break
			}
		}
		if sheet == "" {
			sheet = sheets[len(sheets)-1]
		}
	}

	all, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(all) == 0 {
		return nil, nil, ErrNoHeader
	}
	return cleanHeader(all[0]), all[1:], nil
}

func cleanHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return out
}

func isUTF8(enc string) bool {
	e := strings.ToLower(strings.ReplaceAll(enc, "-", ""))
	return e == "utf8" || e == ""
}
