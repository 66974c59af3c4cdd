// Package metrics exports the outcome of an evaluation run in the
// Prometheus text format, for the node_exporter textfile collector.
package metrics

import (
	"fmt"
	"math"

	"github.com/hazyhaar/entryalign/pkg/align"
	"github.com/hazyhaar/entryalign/pkg/cer"
	"github.com/hazyhaar/entryalign/pkg/eval"
	"github.com/prometheus/client_golang/prometheus"
)

// OverallField is the field label of the overall error rate.
const OverallField = "all"

// Recorder holds the run metrics on its own registry, so several runs in one
// process never collide on the global one.
type Recorder struct {
	Registry *prometheus.Registry

	pagesTotal     prometheus.Counter
	recordsTotal   *prometheus.CounterVec
	matchesTotal   *prometheus.CounterVec
	unmatchedTotal *prometheus.CounterVec
	pairScore      *prometheus.HistogramVec
	cer            *prometheus.GaugeVec
	runDuration    prometheus.Gauge
}

// NewRecorder creates and registers all collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		Registry: prometheus.NewRegistry(),
		pagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "entryalign_pages_total",
			Help: "Pages evaluated, ground-truth and model-only",
		}),
		recordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entryalign_records_total",
				Help: "Records read per side",
			},
			[]string{"side"},
		),
		matchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entryalign_matches_total",
				Help: "Aligned pairs per match strategy",
			},
			[]string{"kind"},
		),
		unmatchedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entryalign_unmatched_total",
				Help: "Records left unmatched per side",
			},
			[]string{"side"},
		),
		pairScore: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "entryalign_pair_score",
				Help:    "Alignment score of matched pairs",
				Buckets: []float64{50, 100, 150, 200, 250, 300},
			},
			[]string{"kind"},
		),
		cer: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "entryalign_cer",
				Help: "Character error rate on aligned pairs, weighted by reference length (" + cer.ReferenceNote + ")",
			},
			[]string{"field"},
		),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "entryalign_run_duration_seconds",
			Help: "Wall time of the last evaluation",
		}),
	}
	r.Registry.MustRegister(
		r.pagesTotal,
		r.recordsTotal,
		r.matchesTotal,
		r.unmatchedTotal,
		r.pairScore,
		r.cer,
		r.runDuration,
	)
	return r
}

// Observe adds one report. Undefined rates (no reference characters) are not
// exported.
func (r *Recorder) Observe(rep *eval.Report) {
	t := rep.Totals
	r.pagesTotal.Add(float64(t.Pages))
	r.recordsTotal.WithLabelValues("ground_truth").Add(float64(t.GroundTruthEntries))
	r.recordsTotal.WithLabelValues("model").Add(float64(t.ModelEntries))
	for _, k := range []align.MatchKind{align.PrimaryExact, align.PrimaryFuzzy, align.Fallback} {
		r.matchesTotal.WithLabelValues(k.String()).Add(float64(t.Kinds[k]))
	}
	r.unmatchedTotal.WithLabelValues("ground_truth").Add(float64(t.UnmatchedGroundTruth))
	r.unmatchedTotal.WithLabelValues("model").Add(float64(t.UnmatchedModel))

	for _, p := range rep.Pairs {
		r.pairScore.WithLabelValues(p.Kind.String()).Observe(p.Score)
	}

	for field, acc := range t.Fields {
		if v := acc.Value(); !math.IsNaN(v) {
			r.cer.WithLabelValues(field).Set(v)
		}
	}
	if v := t.Overall.Value(); !math.IsNaN(v) {
		r.cer.WithLabelValues(OverallField).Set(v)
	}
	r.runDuration.Set(rep.Duration.Seconds())
}

// WriteTextfile writes the registry atomically to path.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.Registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
