package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/hazyhaar/entryalign/pkg/align"
	"github.com/hazyhaar/entryalign/pkg/rundb"
)

func cmdRuns(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	dbPath := fs.String("db", "entryalign.db", "run history database")
	limit := fs.Int("limit", 20, "number of runs to list")
	runID := fs.String("run", "", "show the pages of this run")
	fs.Parse(args)

	db, err := rundb.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", *dbPath, err)
		os.Exit(1)
	}
	defer db.Close()

	if *runID != "" {
		if err := printRun(db, *runID); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			if errors.Is(err, rundb.ErrRunNotFound) {
				os.Exit(2)
			}
			os.Exit(1)
		}
		return
	}

	runs, err := db.ListRuns(*limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		fmt.Println()
		fmt.Println("Usage :")
		fmt.Println("  entryalign align --db <path> ...")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tMODEL OUTPUT\tPAGES\tMATCHED\tUNMATCHED GT/MODEL\tCER")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s/%s\t%d/%d\t%s\n",
			r.ID, humanize.Time(r.StartedAt), r.ModelOutput, r.Pages,
			humanize.Comma(int64(r.Matched)), humanize.Comma(int64(r.GroundTruthEntries)),
			r.UnmatchedGroundTruth, r.UnmatchedModel, formatRate(r.Overall.Value()))
	}
	w.Flush()
}

func printRun(db *rundb.DB, id string) error {
	r, err := db.GetRun(id)
	if err != nil {
		return err
	}
	pages, err := db.PageMetrics(id)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s (%s, took %s)\n", r.ID, humanize.Time(r.StartedAt), r.Duration)
	fmt.Printf("  ground truth  %s\n", r.GroundTruth)
	fmt.Printf("  model output  %s\n", r.ModelOutput)
	fmt.Printf("  matched       %s of %s (exact %d, fuzzy %d, fallback %d)\n",
		humanize.Comma(int64(r.Matched)), humanize.Comma(int64(r.GroundTruthEntries)),
		r.Kinds[align.PrimaryExact], r.Kinds[align.PrimaryFuzzy], r.Kinds[align.Fallback])
	fmt.Printf("  CER           %s\n", formatRate(r.Overall.Value()))
	for field, acc := range r.Fields {
		fmt.Printf("    %-22s %s\n", field, formatRate(acc.Value()))
	}
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PAGE\tGT\tMODEL\tMATCHED\tCER")
	for _, p := range pages {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", p.Page, p.GroundTruthEntries, p.ModelEntries, p.Matched, formatRate(p.Overall.Value()))
	}
	return w.Flush()
}
