// Package report writes an evaluation report as delimited files and,
// optionally, a single workbook.
package report

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hazyhaar/entryalign/pkg/align"
	"github.com/hazyhaar/entryalign/pkg/cer"
	"github.com/hazyhaar/entryalign/pkg/eval"
	"github.com/xuri/excelize/v2"
)

// Output file names inside the report directory.
const (
	PairsFile                = "aligned_pairs.csv"
	UnmatchedGroundTruthFile = "unmatched_ground_truth.csv"
	UnmatchedModelFile       = "unmatched_model.csv"
	PageMetricsFile          = "page_metrics.csv"
)

// TotalLabel is the page label of the summary row in page metrics.
const TotalLabel = "TOTAL"

var kinds = []align.MatchKind{align.PrimaryExact, align.PrimaryFuzzy, align.Fallback}

// sheet is a header plus rows of string, int or float64 cells.
type sheet struct {
	name   string
	header []string
	rows   [][]any
}

// WriteCSV writes the four report files into dir, creating it if needed.
// It returns the paths written.
func WriteCSV(dir string, rep *eval.Report, delimiter string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	comma := ';'
	if delimiter != "" {
		comma = []rune(delimiter)[0]
	}

	files := []struct {
		name string
		s    sheet
	}{
		{PairsFile, pairsSheet(rep)},
		{UnmatchedGroundTruthFile, unmatchedSheet("Unmatched ground truth", rep.GroundTruthColumns, rep.UnmatchedGroundTruth)},
		{UnmatchedModelFile, unmatchedSheet("Unmatched model", rep.ModelColumns, rep.UnmatchedModel)},
		{PageMetricsFile, pagesSheet(rep)},
	}

	var paths []string
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := writeDelimited(path, comma, f.s); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeDelimited(path string, comma rune, s sheet) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = comma
	if err := w.Write(s.header); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	record := make([]string, 0, len(s.header))
	for _, row := range s.rows {
		record = record[:0]
		for _, cell := range row {
			record = append(record, formatCell(cell))
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}

// WriteWorkbook writes the summary and all report tables as sheets of one
// .xlsx file.
func WriteWorkbook(path string, rep *eval.Report) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("workbook style: %w", err)
	}

	sheets := []sheet{
		summarySheet(rep),
		pagesSheet(rep),
		pairsSheet(rep),
		unmatchedSheet("Unmatched ground truth", rep.GroundTruthColumns, rep.UnmatchedGroundTruth),
		unmatchedSheet("Unmatched model", rep.ModelColumns, rep.UnmatchedModel),
	}
	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return fmt.Errorf("add sheet %s: %w", s.name, err)
		}
		if err := fillSheet(f, s); err != nil {
			return err
		}
		if err := f.SetRowStyle(s.name, 1, 1, bold); err != nil {
			return fmt.Errorf("style sheet %s: %w", s.name, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

func fillSheet(f *excelize.File, s sheet) error {
	header := make([]any, len(s.header))
	for i, h := range s.header {
		header[i] = h
	}
	if err := f.SetSheetRow(s.name, "A1", &header); err != nil {
		return fmt.Errorf("sheet %s header: %w", s.name, err)
	}
	for r, row := range s.rows {
		cells := make([]any, len(row))
		for i, v := range row {
			// Undefined rates stay empty rather than showing NaN.
			if x, ok := v.(float64); ok && math.IsNaN(x) {
				v = nil
			}
			cells[i] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(s.name, cell, &cells); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", s.name, r+2, err)
		}
	}
	return nil
}

func pairsSheet(rep *eval.Report) sheet {
	s := sheet{
		name:   "Aligned pairs",
		header: []string{"page", "ground_truth_index", "model_index", "match_kind", "score", "distance"},
	}
	for _, col := range rep.CompareColumns {
		s.header = append(s.header, "gt_"+col, "model_"+col, "cer_"+col)
	}
	for _, p := range rep.Pairs {
		row := []any{p.Page, p.GroundTruthIndex, p.ModelIndex, p.Kind.String(), p.Score, p.Distance}
		for _, col := range rep.CompareColumns {
			row = append(row, p.GroundTruth[col], p.Model[col], p.FieldCER[col])
		}
		s.rows = append(s.rows, row)
	}
	return s
}

func unmatchedSheet(name string, columns []string, recs []eval.Unmatched) sheet {
	s := sheet{name: name, header: append([]string{"page", "index"}, columns...)}
	for _, u := range recs {
		row := []any{u.Page, u.Index}
		for _, col := range columns {
			row = append(row, u.Record[col])
		}
		s.rows = append(s.rows, row)
	}
	return s
}

func pagesSheet(rep *eval.Report) sheet {
	s := sheet{
		name:   "Pages",
		header: []string{"page", "ground_truth_entries", "model_entries", "matched"},
	}
	for _, k := range kinds {
		s.header = append(s.header, k.String())
	}
	for _, col := range rep.CompareColumns {
		s.header = append(s.header, "cer_"+col)
	}
	s.header = append(s.header, "cer_overall")

	for _, p := range rep.Pages {
		row := []any{p.Page, p.GroundTruthEntries, p.ModelEntries, p.Matched}
		for _, k := range kinds {
			row = append(row, p.Kinds[k])
		}
		for _, col := range rep.CompareColumns {
			acc := p.Fields[col]
			row = append(row, acc.Value())
		}
		s.rows = append(s.rows, append(row, p.Overall.Value()))
	}

	t := rep.Totals
	row := []any{TotalLabel, t.GroundTruthEntries, t.ModelEntries, t.Matched}
	for _, k := range kinds {
		row = append(row, t.Kinds[k])
	}
	for _, col := range rep.CompareColumns {
		acc := t.Fields[col]
		row = append(row, acc.Value())
	}
	s.rows = append(s.rows, append(row, t.Overall.Value()))
	return s
}

func summarySheet(rep *eval.Report) sheet {
	t := rep.Totals
	s := sheet{name: "Summary", header: []string{"metric", "value"}}
	add := func(k string, v any) { s.rows = append(s.rows, []any{k, v}) }

	add("ground_truth", rep.GroundTruthPath)
	add("model_output", rep.ModelOutputPath)
	add("started", rep.Started.Format("2006-01-02 15:04:05"))
	add("duration_seconds", rep.Duration.Seconds())
	add("pages", t.Pages)
	add("ground_truth_entries", t.GroundTruthEntries)
	add("model_entries", t.ModelEntries)
	add("matched", t.Matched)
	for _, k := range kinds {
		add(k.String(), t.Kinds[k])
	}
	add("unmatched_ground_truth", t.UnmatchedGroundTruth)
	add("unmatched_model", t.UnmatchedModel)
	for _, col := range rep.CompareColumns {
		acc := t.Fields[col]
		add("cer_"+col, acc.Value())
	}
	add("cer_overall", t.Overall.Value())
	add("cer_reference", cer.ReferenceNote)
	return s
}

// formatCell renders a cell for delimited output. Rates get four decimals;
// NaN (no reference characters) is written as an empty cell.
func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', 4, 64)
	default:
		return fmt.Sprint(x)
	}
}
