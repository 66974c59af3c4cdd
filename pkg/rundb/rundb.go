// Package rundb keeps a history of evaluation runs in SQLite so that prompt
// or model changes can be compared over time.
package rundb

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hazyhaar/entryalign/pkg/align"
	"github.com/hazyhaar/entryalign/pkg/cer"
	"github.com/hazyhaar/entryalign/pkg/eval"

	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// Run is one row of the runs table.
type Run struct {
	ID                   string
	StartedAt            time.Time
	Duration             time.Duration
	GroundTruth          string
	ModelOutput          string
	Pages                int
	GroundTruthEntries   int
	ModelEntries         int
	Matched              int
	Kinds                map[align.MatchKind]int
	UnmatchedGroundTruth int
	UnmatchedModel       int
	Overall              cer.Accumulator
	Fields               map[string]cer.Accumulator
	Config               string
}

// PageMetric is the stored outcome of one page of a run.
type PageMetric struct {
	Page               string
	GroundTruthEntries int
	ModelEntries       int
	Matched            int
	Overall            cer.Accumulator
	Fields             map[string]cer.Accumulator
}

// DB manages the run history database.
type DB struct {
	db *sql.DB
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
	id               TEXT PRIMARY KEY,
	started_at       INTEGER NOT NULL,
	duration_ms      INTEGER NOT NULL,
	ground_truth     TEXT NOT NULL,
	model_output     TEXT NOT NULL,
	pages            INTEGER NOT NULL,
	gt_entries       INTEGER NOT NULL,
	model_entries    INTEGER NOT NULL,
	matched          INTEGER NOT NULL,
	primary_exact    INTEGER NOT NULL,
	primary_fuzzy    INTEGER NOT NULL,
	fallback         INTEGER NOT NULL,
	unmatched_gt     INTEGER NOT NULL,
	unmatched_model  INTEGER NOT NULL,
	cer_sum          REAL NOT NULL,
	cer_chars        INTEGER NOT NULL,
	config           TEXT NOT NULL DEFAULT ''
)`,
	`CREATE TABLE IF NOT EXISTS page_metrics (
	run_id         TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq            INTEGER NOT NULL,
	page           TEXT NOT NULL,
	gt_entries     INTEGER NOT NULL,
	model_entries  INTEGER NOT NULL,
	matched        INTEGER NOT NULL,
	cer_sum        REAL NOT NULL,
	cer_chars      INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
)`,
	`CREATE TABLE IF NOT EXISTS field_metrics (
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	page       TEXT NOT NULL,
	field      TEXT NOT NULL,
	cer_sum    REAL NOT NULL,
	cer_chars  INTEGER NOT NULL,
	PRIMARY KEY (run_id, page, field)
)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
}

// runTotal is the page key of run-wide rows in field_metrics.
const runTotal = ""

// Open opens (or creates) the SQLite database at path and ensures the schema
// exists.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open run db: %w", err)
	}
	for _, ddl := range schema {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("create run tables: %w", err)
		}
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// RecordRun stores rep and the configuration it ran with in one transaction
// and returns the new run ID.
func (d *DB) RecordRun(rep *eval.Report, cfg *eval.Config) (string, error) {
	id := uuid.NewString()
	var snapshot string
	if cfg != nil {
		snapshot = cfg.YAML()
	}

	tx, err := d.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	t := rep.Totals
	_, err = tx.Exec(`INSERT INTO runs
		(id, started_at, duration_ms, ground_truth, model_output, pages, gt_entries, model_entries,
		 matched, primary_exact, primary_fuzzy, fallback, unmatched_gt, unmatched_model,
		 cer_sum, cer_chars, config)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rep.Started.Unix(), rep.Duration.Milliseconds(), rep.GroundTruthPath, rep.ModelOutputPath,
		t.Pages, t.GroundTruthEntries, t.ModelEntries,
		t.Matched, t.Kinds[align.PrimaryExact], t.Kinds[align.PrimaryFuzzy], t.Kinds[align.Fallback],
		t.UnmatchedGroundTruth, t.UnmatchedModel,
		t.Overall.Sum, t.Overall.Chars, snapshot,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	pageStmt, err := tx.Prepare(`INSERT INTO page_metrics
		(run_id, seq, page, gt_entries, model_entries, matched, cer_sum, cer_chars)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare page insert: %w", err)
	}
	defer pageStmt.Close()

	fieldStmt, err := tx.Prepare(`INSERT INTO field_metrics
		(run_id, page, field, cer_sum, cer_chars) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare field insert: %w", err)
	}
	defer fieldStmt.Close()

	for seq, p := range rep.Pages {
		if _, err := pageStmt.Exec(id, seq, p.Page, p.GroundTruthEntries, p.ModelEntries, p.Matched,
			p.Overall.Sum, p.Overall.Chars); err != nil {
			return "", fmt.Errorf("insert page %s: %w", p.Page, err)
		}
		for field, acc := range p.Fields {
			if _, err := fieldStmt.Exec(id, p.Page, field, acc.Sum, acc.Chars); err != nil {
				return "", fmt.Errorf("insert field %s/%s: %w", p.Page, field, err)
			}
		}
	}
	for field, acc := range t.Fields {
		if _, err := fieldStmt.Exec(id, runTotal, field, acc.Sum, acc.Chars); err != nil {
			return "", fmt.Errorf("insert run field %s: %w", field, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run: %w", err)
	}
	return id, nil
}

const runColumns = `id, started_at, duration_ms, ground_truth, model_output, pages, gt_entries, model_entries,
	matched, primary_exact, primary_fuzzy, fallback, unmatched_gt, unmatched_model, cer_sum, cer_chars, config`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r                      Run
		started, durMS         int64
		exact, fuzzy, fallback int
	)
	err := s.Scan(&r.ID, &started, &durMS, &r.GroundTruth, &r.ModelOutput, &r.Pages,
		&r.GroundTruthEntries, &r.ModelEntries, &r.Matched, &exact, &fuzzy, &fallback,
		&r.UnmatchedGroundTruth, &r.UnmatchedModel, &r.Overall.Sum, &r.Overall.Chars, &r.Config)
	if err != nil {
		return r, err
	}
	r.StartedAt = time.Unix(started, 0)
	r.Duration = time.Duration(durMS) * time.Millisecond
	r.Kinds = map[align.MatchKind]int{
		align.PrimaryExact: exact,
		align.PrimaryFuzzy: fuzzy,
		align.Fallback:     fallback,
	}
	return r, nil
}

// ListRuns returns the most recent runs first. Field rates are not loaded.
func (d *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one run with its run-wide field rates.
func (d *DB) GetRun(id string) (*Run, error) {
	r, err := scanRun(d.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}

	fields, err := d.fieldMetrics(id)
	if err != nil {
		return nil, err
	}
	r.Fields = fields[runTotal]
	if r.Fields == nil {
		r.Fields = map[string]cer.Accumulator{}
	}
	return &r, nil
}

// PageMetrics returns the pages of a run in evaluation order.
func (d *DB) PageMetrics(runID string) ([]PageMetric, error) {
	var exists int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("lookup run %s: %w", runID, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	fields, err := d.fieldMetrics(runID)
	if err != nil {
		return nil, err
	}

	rows, err := d.db.Query(`SELECT page, gt_entries, model_entries, matched, cer_sum, cer_chars
		FROM page_metrics WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("list page metrics: %w", err)
	}
	defer rows.Close()

	var pages []PageMetric
	for rows.Next() {
		var p PageMetric
		if err := rows.Scan(&p.Page, &p.GroundTruthEntries, &p.ModelEntries, &p.Matched,
			&p.Overall.Sum, &p.Overall.Chars); err != nil {
			return nil, fmt.Errorf("scan page metric: %w", err)
		}
		p.Fields = fields[p.Page]
		if p.Fields == nil {
			p.Fields = map[string]cer.Accumulator{}
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// fieldMetrics returns page -> field -> accumulator for a run.
func (d *DB) fieldMetrics(runID string) (map[string]map[string]cer.Accumulator, error) {
	rows, err := d.db.Query(`SELECT page, field, cer_sum, cer_chars FROM field_metrics WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("list field metrics: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]cer.Accumulator)
	for rows.Next() {
		var (
			page, field string
			acc         cer.Accumulator
		)
		if err := rows.Scan(&page, &field, &acc.Sum, &acc.Chars); err != nil {
			return nil, fmt.Errorf("scan field metric: %w", err)
		}
		if out[page] == nil {
			out[page] = make(map[string]cer.Accumulator)
		}
		out[page][field] = acc
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its metrics.
func (d *DB) DeleteRun(id string) error {
	res, err := d.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}
