package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hazyhaar/entryalign/pkg/align"
	"github.com/hazyhaar/entryalign/pkg/eval"
	"github.com/hazyhaar/entryalign/pkg/metrics"
	"github.com/hazyhaar/entryalign/pkg/report"
	"github.com/hazyhaar/entryalign/pkg/rundb"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "align":
		cmdAlign(os.Args[2:])
	case "runs":
		cmdRuns(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: entryalign <command>\n\nCommands:\n"+
		"  align   Align model output with ground truth and compute CER\n"+
		"  runs    List recorded runs, or the pages of one run\n")
}

func cmdAlign(args []string) {
	fs := flag.NewFlagSet("align", flag.ExitOnError)
	cfgPath := fs.String("config", "entryalign.yaml", "path to config file")
	groundTruth := fs.String("ground-truth", "", "ground-truth file (.csv, .tsv, .xlsx)")
	modelOutput := fs.String("model-output", "", "model output file (.csv, .tsv, .xlsx)")
	outDir := fs.String("out", "", "report directory (default from config)")
	xlsx := fs.Bool("xlsx", false, "also write report.xlsx")
	dbPath := fs.String("db", "", "record the run in this SQLite database")
	metricsFile := fs.String("metrics-file", "", "write Prometheus metrics to this textfile")
	workers := fs.Int("workers", 0, "pages aligned in parallel (default from config)")
	verbose := fs.Bool("verbose", false, "log every page")
	fs.Parse(args)

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg := loadConfig(*cfgPath, logger)
	if *groundTruth != "" {
		cfg.GroundTruth = *groundTruth
	}
	if *modelOutput != "" {
		cfg.ModelOutput = *modelOutput
	}
	if *outDir != "" {
		cfg.OutputDir = *outDir
	}
	if *xlsx {
		cfg.Workbook = true
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *metricsFile != "" {
		cfg.MetricsFile = *metricsFile
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rep, err := eval.Run(ctx, cfg, logger)
	if err != nil {
		if errors.Is(err, eval.ErrKeyColumnMissing) {
			logger.Error("cannot align without the key column", "column", cfg.KeyColumn, "error", err)
		} else {
			logger.Error("evaluation failed", "error", err)
		}
		os.Exit(1)
	}

	paths, err := report.WriteCSV(cfg.OutputDir, rep, cfg.Format.Delimiter)
	if err != nil {
		logger.Error("write report", "error", err)
		os.Exit(1)
	}
	if cfg.Workbook {
		path := filepath.Join(cfg.OutputDir, "report.xlsx")
		if err := report.WriteWorkbook(path, rep); err != nil {
			logger.Error("write workbook", "error", err)
			os.Exit(1)
		}
		paths = append(paths, path)
	}
	logger.Info("reports written", "dir", cfg.OutputDir, "files", len(paths))

	if cfg.MetricsFile != "" {
		rec := metrics.NewRecorder()
		rec.Observe(rep)
		if err := rec.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Error("write metrics", "error", err)
			os.Exit(1)
		}
	}

	if cfg.DBPath != "" {
		db, err := rundb.Open(cfg.DBPath)
		if err != nil {
			logger.Error("open run db", "error", err)
			os.Exit(1)
		}
		id, err := db.RecordRun(rep, cfg)
		db.Close()
		if err != nil {
			logger.Error("record run", "error", err)
			os.Exit(1)
		}
		logger.Info("run recorded", "id", id, "db", cfg.DBPath)
	}

	logSummary(logger, rep)
}

func logSummary(logger *slog.Logger, rep *eval.Report) {
	t := rep.Totals
	attrs := []any{
		"pages", t.Pages,
		"ground_truth", humanize.Comma(int64(t.GroundTruthEntries)),
		"model", humanize.Comma(int64(t.ModelEntries)),
		"matched", humanize.Comma(int64(t.Matched)),
		"primary_exact", t.Kinds[align.PrimaryExact],
		"primary_fuzzy", t.Kinds[align.PrimaryFuzzy],
		"fallback", t.Kinds[align.Fallback],
		"unmatched_ground_truth", t.UnmatchedGroundTruth,
		"unmatched_model", t.UnmatchedModel,
		"cer", formatRate(t.Overall.Value()),
		"took", rep.Duration.Round(time.Millisecond).String(),
	}
	for _, col := range rep.CompareColumns {
		acc := t.Fields[col]
		attrs = append(attrs, "cer_"+col, formatRate(acc.Value()))
	}
	logger.Info("evaluation complete", attrs...)
}

// formatRate renders a rate as a percentage, "n/a" when undefined.
func formatRate(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return humanize.FormatFloat("#,###.##", v*100) + "%"
}

func loadConfig(path string, logger *slog.Logger) *eval.Config {
	cfg, found, err := eval.LoadConfig(path)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	if !found {
		logger.Info("no config file, using defaults", "path", path)
	}
	return cfg
}
