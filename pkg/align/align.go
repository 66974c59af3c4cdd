// Package align pairs ground-truth dictionary entries with entries extracted
// by a model from the same page.
//
// Both sides are expected in the same approximate reading order. For every
// ground-truth record the aligner scans a window of model records around the
// diagonal and keeps the best of three strategies: exact headword, fuzzy
// headword, or a fallback that trusts the secondary field (gloss) and looks
// for the headword inside the model headword or synonym field. A model record
// is claimed by at most one ground-truth record.
package align

import "github.com/hazyhaar/entryalign/pkg/fuzz"

// Record is one dictionary entry: field name to text value.
type Record map[string]string

// Get returns the value of field, or "" when the field is absent.
func (r Record) Get(field string) string {
	if field == "" {
		return ""
	}
	return r[field]
}

// Has reports whether the record carries field at all (even blank).
func (r Record) Has(field string) bool {
	_, ok := r[field]
	return ok
}

// MatchKind is the strategy that produced a pair.
type MatchKind int

const (
	PrimaryExact MatchKind = iota + 1
	PrimaryFuzzy
	Fallback
)

func (k MatchKind) String() string {
	switch k {
	case PrimaryExact:
		return "primary_exact"
	case PrimaryFuzzy:
		return "primary_fuzzy"
	case Fallback:
		return "fallback"
	default:
		return "none"
	}
}

// Default tuning values.
const (
	DefaultSynonymThreshold = 85
	DefaultWindow           = 10
)

// Options configures one alignment.
type Options struct {
	PrimaryKey   string
	SecondaryKey string // "" disables secondary confirmation and fallback
	SynonymKey   string // model-side field searched during fallback

	PrimaryThreshold   int
	SecondaryThreshold int
	SynonymThreshold   int // 0 means DefaultSynonymThreshold

	// Window is the number of model indices searched on either side of the
	// cursor. Zero means DefaultWindow; use a negative value for a window of
	// zero (same index only).
	Window int

	Normalize Normalizer // nil means NormalizeStripPunct
}

func (o Options) withDefaults() Options {
	if o.SynonymThreshold == 0 {
		o.SynonymThreshold = DefaultSynonymThreshold
	}
	switch {
	case o.Window == 0:
		o.Window = DefaultWindow
	case o.Window < 0:
		o.Window = 0
	}
	if o.Normalize == nil {
		o.Normalize = NormalizeStripPunct
	}
	return o
}

// Pair is a matched ground-truth/model record couple.
type Pair struct {
	GroundTruth      Record
	Model            Record
	GroundTruthIndex int
	ModelIndex       int
	Kind             MatchKind
	Score            float64
	Distance         int
}

// Result partitions one page. Every ground-truth record is either in Pairs or
// in UnmatchedGroundTruth; every model record is in at most one pair, and
// otherwise in UnmatchedModel. Index slices hold positions in the inputs.
type Result struct {
	Pairs                []Pair
	UnmatchedGroundTruth []Record
	UnmatchedModel       []Record

	UnmatchedGroundTruthIndex []int
	UnmatchedModelIndex       []int
}

// Counts returns the number of pairs per match kind.
func (r *Result) Counts() map[MatchKind]int {
	counts := make(map[MatchKind]int, 3)
	for _, p := range r.Pairs {
		counts[p.Kind]++
	}
	return counts
}

type candidate struct {
	index int
	score float64
	dist  int
	kind  MatchKind
}

// better reports whether c should replace best.
func (c candidate) better(best *candidate) bool {
	if best == nil {
		return true
	}
	if c.score != best.score {
		return c.score > best.score
	}
	if c.dist != best.dist {
		return c.dist < best.dist
	}
	return best.kind == Fallback && c.kind != Fallback
}

type normalized struct {
	key, secondary, synonyms string
}

// Align pairs groundTruth with modelOutput. It never fails: empty inputs or
// missing fields simply leave records unmatched.
func Align(groundTruth, modelOutput []Record, opts Options) *Result {
	opts = opts.withDefaults()

	useSecondary := opts.SecondaryKey != "" &&
		anyHas(groundTruth, opts.SecondaryKey) && anyHas(modelOutput, opts.SecondaryKey)
	useSynonyms := opts.SynonymKey != "" && anyHas(modelOutput, opts.SynonymKey)

	model := make([]normalized, len(modelOutput))
	for i, rec := range modelOutput {
		model[i].key = opts.Normalize(rec.Get(opts.PrimaryKey))
		if useSecondary {
			model[i].secondary = opts.Normalize(rec.Get(opts.SecondaryKey))
		}
		if useSynonyms {
			model[i].synonyms = opts.Normalize(rec.Get(opts.SynonymKey))
		}
	}

	res := &Result{}
	claimed := make(map[int]bool)
	lastMatched := -1

	for gi, gtRec := range groundTruth {
		gt := normalized{key: opts.Normalize(gtRec.Get(opts.PrimaryKey))}
		if useSecondary {
			gt.secondary = opts.Normalize(gtRec.Get(opts.SecondaryKey))
		}
		if gt.key == "" {
			res.UnmatchedGroundTruth = append(res.UnmatchedGroundTruth, gtRec)
			res.UnmatchedGroundTruthIndex = append(res.UnmatchedGroundTruthIndex, gi)
			continue
		}

		centre := max(gi, lastMatched+1)
		start := max(0, centre-opts.Window)
		end := min(len(model), centre+opts.Window+1)

		var best *candidate
		for mi := start; mi < end; mi++ {
			if claimed[mi] {
				continue
			}
			c, ok := score(gt, model[mi], abs(mi-gi), useSecondary, useSynonyms, opts)
			if !ok {
				continue
			}
			c.index = mi
			if c.better(best) {
				best = &c
			}
		}

		if best == nil {
			res.UnmatchedGroundTruth = append(res.UnmatchedGroundTruth, gtRec)
			res.UnmatchedGroundTruthIndex = append(res.UnmatchedGroundTruthIndex, gi)
			continue
		}

		res.Pairs = append(res.Pairs, Pair{
			GroundTruth:      gtRec,
			Model:            modelOutput[best.index],
			GroundTruthIndex: gi,
			ModelIndex:       best.index,
			Kind:             best.kind,
			Score:            best.score,
			Distance:         best.dist,
		})
		claimed[best.index] = true
		lastMatched = max(lastMatched, best.index)
	}

	for mi, rec := range modelOutput {
		if !claimed[mi] {
			res.UnmatchedModel = append(res.UnmatchedModel, rec)
			res.UnmatchedModelIndex = append(res.UnmatchedModelIndex, mi)
		}
	}
	return res
}

// score evaluates one candidate with the three strategies in priority order.
func score(gt, m normalized, dist int, useSecondary, useSynonyms bool, opts Options) (candidate, bool) {
	// Exact headword.
	if m.key == gt.key {
		if _, ok := confirmSecondary(gt, m, useSecondary, opts.SecondaryThreshold); ok {
			return candidate{score: float64(300 - dist), dist: dist, kind: PrimaryExact}, true
		}
	}

	// Fuzzy headword.
	if hw := fuzz.Ratio(gt.key, m.key); hw >= opts.PrimaryThreshold {
		if sec, ok := confirmSecondary(gt, m, useSecondary, opts.SecondaryThreshold); ok {
			second := hw
			if useSecondary && sec > 0 {
				second = sec
			}
			return candidate{
				score: float64(hw+second) - 0.1*float64(dist),
				dist:  dist,
				kind:  PrimaryFuzzy,
			}, true
		}
	}

	// Fallback: glosses agree and the headword hides in the model headword
	// or synonym field.
	if !useSecondary || gt.secondary == "" || m.secondary == "" {
		return candidate{}, false
	}
	sec := fuzz.TokenSetRatio(gt.secondary, m.secondary)
	if sec < opts.SecondaryThreshold {
		return candidate{}, false
	}
	found := fuzz.PartialRatio(gt.key, m.key)
	if useSynonyms && m.synonyms != "" {
		found = max(found, fuzz.PartialRatio(gt.key, m.synonyms))
	}
	if found < opts.SynonymThreshold {
		return candidate{}, false
	}
	return candidate{
		score: float64(100+sec+found) - 0.2*float64(dist),
		dist:  dist,
		kind:  Fallback,
	}, true
}

// confirmSecondary applies the secondary-field rule shared by both headword
// strategies: both blank passes, one blank fails, otherwise the token-set
// score must reach threshold. It returns the score when one was computed.
func confirmSecondary(gt, m normalized, useSecondary bool, threshold int) (int, bool) {
	if !useSecondary {
		return 0, true
	}
	switch {
	case gt.secondary == "" && m.secondary == "":
		return 0, true
	case gt.secondary == "" || m.secondary == "":
		return 0, false
	}
	s := fuzz.TokenSetRatio(gt.secondary, m.secondary)
	return s, s >= threshold
}

func anyHas(records []Record, field string) bool {
	for _, r := range records {
		if r.Has(field) {
			return true
		}
	}
	return false
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
