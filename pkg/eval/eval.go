// Package eval runs a full ground-truth versus model-output comparison:
// load both tables, align them page by page and measure the character error
// rate of every compared field on the aligned pairs.
package eval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/entryalign/pkg/align"
	"github.com/hazyhaar/entryalign/pkg/cer"
	"github.com/hazyhaar/entryalign/pkg/table"
	"golang.org/x/sync/errgroup"
)

// ErrKeyColumnMissing is returned when the primary key column is absent from
// one of the inputs; alignment is impossible without it.
var ErrKeyColumnMissing = errors.New("key column missing")

// PageReport holds the counts and error rates of one page.
type PageReport struct {
	Page               string
	GroundTruthEntries int
	ModelEntries       int
	Matched            int
	Kinds              map[align.MatchKind]int
	Overall            cer.Accumulator
	Fields             map[string]cer.Accumulator
}

// MatchedPair is an aligned pair with the error rate of each compared field.
type MatchedPair struct {
	Page string
	align.Pair
	FieldCER map[string]float64
}

// Unmatched is a record left over on one side of a page.
type Unmatched struct {
	Page   string
	Index  int
	Record align.Record
}

// Totals aggregates all pages.
type Totals struct {
	Pages                int
	GroundTruthEntries   int
	ModelEntries         int
	Matched              int
	UnmatchedGroundTruth int
	UnmatchedModel       int
	Kinds                map[align.MatchKind]int
	Overall              cer.Accumulator
	Fields               map[string]cer.Accumulator
}

// Report is the outcome of one run.
type Report struct {
	Started         time.Time
	Duration        time.Duration
	GroundTruthPath string
	ModelOutputPath string
	CompareColumns  []string

	// Header order of each input, used to lay out unmatched records.
	GroundTruthColumns []string
	ModelColumns       []string

	SecondaryEnabled bool
	SynonymsEnabled  bool

	Pages                []PageReport
	Pairs                []MatchedPair
	UnmatchedGroundTruth []Unmatched
	UnmatchedModel       []Unmatched
	Totals               Totals
}

// Run loads both inputs named in cfg and evaluates them.
func Run(ctx context.Context, cfg *Config, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	gt, err := table.Load(cfg.GroundTruth, cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("ground truth: %w", err)
	}
	model, err := table.Load(cfg.ModelOutput, cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("model output: %w", err)
	}
	logger.Info("inputs loaded",
		"ground_truth", cfg.GroundTruth, "ground_truth_rows", len(gt.Rows),
		"model_output", cfg.ModelOutput, "model_rows", len(model.Rows),
	)
	return Evaluate(ctx, gt, model, cfg, logger)
}

type pageOutcome struct {
	report         PageReport
	pairs          []MatchedPair
	unmatchedGT    []Unmatched
	unmatchedModel []Unmatched
}

// Evaluate aligns already loaded tables. Ground-truth pages are processed
// concurrently (cfg.Workers) but reported in input order.
func Evaluate(ctx context.Context, gt, model *table.Table, cfg *Config, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	started := time.Now()

	if !gt.HasColumn(cfg.KeyColumn) || !model.HasColumn(cfg.KeyColumn) {
		return nil, fmt.Errorf("%w: %q not found in one or both files", ErrKeyColumnMissing, cfg.KeyColumn)
	}

	opts := cfg.AlignOptions()
	if opts.SecondaryKey != "" && (!gt.HasColumn(opts.SecondaryKey) || !model.HasColumn(opts.SecondaryKey)) {
		logger.Warn("secondary key column not found in one or both files, matching on key column only",
			"column", opts.SecondaryKey, "key", cfg.KeyColumn)
		opts.SecondaryKey = ""
	}
	if opts.SynonymKey != "" && !model.HasColumn(opts.SynonymKey) {
		logger.Debug("synonym column not in model output", "column", opts.SynonymKey)
		opts.SynonymKey = ""
	}

	var compare []string
	for _, col := range cfg.CompareColumns {
		if gt.HasColumn(col) && model.HasColumn(col) {
			compare = append(compare, col)
			continue
		}
		logger.Warn("compare column not found in one or both files, skipped", "column", col)
	}

	gtPages, err := gt.GroupBy(cfg.PageColumn)
	if err != nil {
		return nil, fmt.Errorf("ground truth: %w", err)
	}
	modelPages, err := model.GroupBy(cfg.PageColumn)
	if err != nil {
		return nil, fmt.Errorf("model output: %w", err)
	}
	modelByPage := make(map[string][]align.Record, len(modelPages))
	for _, g := range modelPages {
		modelByPage[g.Page] = g.Rows
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	outcomes := make([]pageOutcome, len(gtPages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, page := range gtPages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows, ok := modelByPage[page.Page]
			outcomes[i] = evaluatePage(page, rows, ok, opts, compare)
			logger.Debug("page aligned",
				"page", page.Page,
				"ground_truth", outcomes[i].report.GroundTruthEntries,
				"model", outcomes[i].report.ModelEntries,
				"matched", outcomes[i].report.Matched,
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("evaluate pages: %w", err)
	}

	seen := make(map[string]bool, len(gtPages))
	for _, p := range gtPages {
		seen[p.Page] = true
	}
	for _, p := range modelPages {
		if seen[p.Page] {
			continue
		}
		outcomes = append(outcomes, modelOnlyPage(p, compare))
	}

	rep := &Report{
		Started:            started,
		GroundTruthPath:    gt.Path,
		ModelOutputPath:    model.Path,
		CompareColumns:     compare,
		GroundTruthColumns: gt.Columns,
		ModelColumns:       model.Columns,
		SecondaryEnabled:   opts.SecondaryKey != "",
		SynonymsEnabled:    opts.SynonymKey != "",
		Totals: Totals{
			Kinds:  make(map[align.MatchKind]int),
			Fields: newFieldAccumulators(compare),
		},
	}
	for _, o := range outcomes {
		rep.Pages = append(rep.Pages, o.report)
		rep.Pairs = append(rep.Pairs, o.pairs...)
		rep.UnmatchedGroundTruth = append(rep.UnmatchedGroundTruth, o.unmatchedGT...)
		rep.UnmatchedModel = append(rep.UnmatchedModel, o.unmatchedModel...)
		rep.Totals.add(o.report)
	}
	rep.Totals.UnmatchedGroundTruth = len(rep.UnmatchedGroundTruth)
	rep.Totals.UnmatchedModel = len(rep.UnmatchedModel)
	rep.Duration = time.Since(started)
	return rep, nil
}

func evaluatePage(page table.Group, modelRows []align.Record, hasModel bool, opts align.Options, compare []string) pageOutcome {
	out := pageOutcome{report: PageReport{
		Page:               page.Page,
		GroundTruthEntries: len(page.Rows),
		ModelEntries:       len(modelRows),
		Kinds:              make(map[align.MatchKind]int),
		Fields:             newFieldAccumulators(compare),
	}}

	if !hasModel {
		for i, rec := range page.Rows {
			out.unmatchedGT = append(out.unmatchedGT, Unmatched{Page: page.Page, Index: i, Record: rec})
		}
		return out
	}

	res := align.Align(page.Rows, modelRows, opts)
	out.report.Matched = len(res.Pairs)
	for kind, n := range res.Counts() {
		out.report.Kinds[kind] = n
	}

	for _, p := range res.Pairs {
		mp := MatchedPair{Page: page.Page, Pair: p, FieldCER: make(map[string]float64, len(compare))}
		for _, col := range compare {
			acc := out.report.Fields[col]
			mp.FieldCER[col] = acc.Add(p.GroundTruth[col], p.Model[col], opts.Normalize)
			out.report.Fields[col] = acc
			out.report.Overall.Add(p.GroundTruth[col], p.Model[col], opts.Normalize)
		}
		out.pairs = append(out.pairs, mp)
	}
	for i, rec := range res.UnmatchedGroundTruth {
		out.unmatchedGT = append(out.unmatchedGT, Unmatched{Page: page.Page, Index: res.UnmatchedGroundTruthIndex[i], Record: rec})
	}
	for i, rec := range res.UnmatchedModel {
		out.unmatchedModel = append(out.unmatchedModel, Unmatched{Page: page.Page, Index: res.UnmatchedModelIndex[i], Record: rec})
	}
	return out
}

func modelOnlyPage(page table.Group, compare []string) pageOutcome {
	out := pageOutcome{report: PageReport{
		Page:         page.Page,
		ModelEntries: len(page.Rows),
		Kinds:        make(map[align.MatchKind]int),
		Fields:       newFieldAccumulators(compare),
	}}
	for i, rec := range page.Rows {
		out.unmatchedModel = append(out.unmatchedModel, Unmatched{Page: page.Page, Index: i, Record: rec})
	}
	return out
}

func (t *Totals) add(p PageReport) {
	t.Pages++
	t.GroundTruthEntries += p.GroundTruthEntries
	t.ModelEntries += p.ModelEntries
	t.Matched += p.Matched
	for k, n := range p.Kinds {
		t.Kinds[k] += n
	}
	t.Overall.Merge(p.Overall)
	for col, acc := range p.Fields {
		total := t.Fields[col]
		total.Merge(acc)
		t.Fields[col] = total
	}
}

func newFieldAccumulators(cols []string) map[string]cer.Accumulator {
	m := make(map[string]cer.Accumulator, len(cols))
	for _, c := range cols {
		m[c] = cer.Accumulator{}
	}
	return m
}
