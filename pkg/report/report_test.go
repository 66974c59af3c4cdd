package report

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/entryalign/pkg/align"
	"github.com/hazyhaar/entryalign/pkg/cer"
	"github.com/hazyhaar/entryalign/pkg/eval"
	"github.com/xuri/excelize/v2"
)

func sampleReport() *eval.Report {
	gt := align.Record{"page_number": "1", "estonian_headword": "vogt", "german_equivalent": "Vogt"}
	model := align.Record{"page_number": "1", "estonian_headword": "vogtt", "german_equivalent": "Vogt"}

	var hw, gloss, overall cer.Accumulator
	hwRate := hw.Add("vogt", "vogtt", nil)
	glossRate := gloss.Add("Vogt", "Vogt", nil)
	overall.Merge(hw)
	overall.Merge(gloss)

	page1 := eval.PageReport{
		Page:               "1",
		GroundTruthEntries: 2,
		ModelEntries:       1,
		Matched:            1,
		Kinds:              map[align.MatchKind]int{align.PrimaryFuzzy: 1},
		Overall:            overall,
		Fields:             map[string]cer.Accumulator{"estonian_headword": hw, "german_equivalent": gloss},
	}
	page2 := eval.PageReport{
		Page:         "2",
		ModelEntries: 1,
		Kinds:        map[align.MatchKind]int{},
		Fields:       map[string]cer.Accumulator{"estonian_headword": {}, "german_equivalent": {}},
	}

	return &eval.Report{
		Started:            time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Duration:           time.Second,
		GroundTruthPath:    "gt.csv",
		ModelOutputPath:    "model.csv",
		CompareColumns:     []string{"estonian_headword", "german_equivalent"},
		GroundTruthColumns: []string{"page_number", "estonian_headword", "german_equivalent"},
		ModelColumns:       []string{"page_number", "estonian_headword", "german_equivalent"},
		Pages:              []eval.PageReport{page1, page2},
		Pairs: []eval.MatchedPair{{
			Page: "1",
			Pair: align.Pair{GroundTruth: gt, Model: model, Kind: align.PrimaryFuzzy, Score: 178},
			FieldCER: map[string]float64{
				"estonian_headword": hwRate,
				"german_equivalent": glossRate,
			},
		}},
		UnmatchedGroundTruth: []eval.Unmatched{{
			Page:   "1",
			Index:  1,
			Record: align.Record{"page_number": "1", "estonian_headword": "sundija", "german_equivalent": "Zwinger"},
		}},
		UnmatchedModel: []eval.Unmatched{{
			Page:   "2",
			Record: align.Record{"page_number": "2", "estonian_headword": "kirik"},
		}},
		Totals: eval.Totals{
			Pages:                2,
			GroundTruthEntries:   2,
			ModelEntries:         2,
			Matched:              1,
			UnmatchedGroundTruth: 1,
			UnmatchedModel:       1,
			Kinds:                map[align.MatchKind]int{align.PrimaryFuzzy: 1},
			Overall:              overall,
			Fields:               map[string]cer.Accumulator{"estonian_headword": hw, "german_equivalent": gloss},
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.Comma = ';'
	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return records
}

func TestWriteCSV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	paths, err := WriteCSV(dir, sampleReport(), ";")
	if err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if len(paths) != 4 {
		t.Fatalf("paths = %v, want 4 files", paths)
	}

	pairs := readCSV(t, filepath.Join(dir, PairsFile))
	if len(pairs) != 2 {
		t.Fatalf("pairs rows = %d, want header + 1", len(pairs))
	}
	wantHeader := []string{"page", "ground_truth_index", "model_index", "match_kind", "score", "distance",
		"gt_estonian_headword", "model_estonian_headword", "cer_estonian_headword",
		"gt_german_equivalent", "model_german_equivalent", "cer_german_equivalent"}
	for i, h := range wantHeader {
		if pairs[0][i] != h {
			t.Errorf("header[%d] = %q, want %q", i, pairs[0][i], h)
		}
	}
	if pairs[1][3] != "primary_fuzzy" || pairs[1][4] != "178.0000" {
		t.Errorf("pair row = %v", pairs[1])
	}
	if pairs[1][8] != "0.2500" || pairs[1][11] != "0.0000" {
		t.Errorf("cer cells = %q, %q", pairs[1][8], pairs[1][11])
	}

	gt := readCSV(t, filepath.Join(dir, UnmatchedGroundTruthFile))
	if len(gt) != 2 || gt[1][0] != "1" || gt[1][1] != "1" || gt[1][3] != "sundija" {
		t.Errorf("unmatched ground truth = %v", gt)
	}
	model := readCSV(t, filepath.Join(dir, UnmatchedModelFile))
	if len(model) != 2 || model[1][3] != "kirik" || model[1][4] != "" {
		t.Errorf("unmatched model = %v", model)
	}

	pages := readCSV(t, filepath.Join(dir, PageMetricsFile))
	if len(pages) != 4 {
		t.Fatalf("page rows = %d, want header + 2 pages + total", len(pages))
	}
	last := len(pages[0]) - 1
	if pages[0][last] != "cer_overall" {
		t.Errorf("last header = %q", pages[0][last])
	}
	// Page 2 has no pairs: rates are undefined and left blank.
	if pages[2][last] != "" {
		t.Errorf("page 2 overall = %q, want blank", pages[2][last])
	}
	if pages[3][0] != TotalLabel || pages[3][last] != "0.1250" {
		t.Errorf("total row = %v", pages[3])
	}
}

func TestWriteCSV_Delimiter(t *testing.T) {
	dir := t.TempDir()
	if _, err := WriteCSV(dir, sampleReport(), ","); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	f, err := os.Open(filepath.Join(dir, PageMetricsFile))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	header, err := csv.NewReader(f).Read()
	if err != nil {
		t.Fatal(err)
	}
	if len(header) < 4 || header[0] != "page" {
		t.Errorf("comma-delimited header = %v", header)
	}
}

func TestWriteWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	if err := WriteWorkbook(path, sampleReport()); err != nil {
		t.Fatalf("WriteWorkbook: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	want := []string{"Summary", "Pages", "Aligned pairs", "Unmatched ground truth", "Unmatched model"}
	got := f.GetSheetList()
	if len(got) != len(want) {
		t.Fatalf("sheets = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sheet[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	v, err := f.GetCellValue("Aligned pairs", "G2")
	if err != nil {
		t.Fatal(err)
	}
	if v != "vogt" {
		t.Errorf("G2 = %q, want vogt", v)
	}

	// NaN rates on page 2 are left empty; the total row carries a value.
	if v, _ := f.GetCellValue("Pages", "J3"); v != "" {
		t.Errorf("page 2 cer_overall = %q, want empty", v)
	}
	if v, _ := f.GetCellValue("Pages", "A4"); v != TotalLabel {
		t.Errorf("A4 = %q, want %s", v, TotalLabel)
	}

	summary, err := f.GetRows("Summary")
	if err != nil {
		t.Fatal(err)
	}
	last := summary[len(summary)-1]
	if len(last) != 2 || last[0] != "cer_reference" || last[1] != cer.ReferenceNote {
		t.Errorf("last summary row = %v, want the CER reference note", last)
	}
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{3, "3"},
		{0.123456, "0.1235"},
		{math.NaN(), ""},
	}
	for _, tt := range tests {
		if got := formatCell(tt.in); got != tt.want {
			t.Errorf("formatCell(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
