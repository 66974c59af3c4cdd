// Package cer computes character error rates between a reference text and a
// hypothesis.
package cer

import (
	"math"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/hazyhaar/entryalign/pkg/align"
)

// Rate returns the character error rate of hypothesis against reference after
// both are normalized with n (nil means align.NormalizeStripPunct).
// Two blank values are a perfect match; one blank value is a full error.
func Rate(reference, hypothesis string, n align.Normalizer) float64 {
	if n == nil {
		n = align.NormalizeStripPunct
	}
	ref, hyp := n(reference), n(hypothesis)
	switch {
	case ref == "" && hyp == "":
		return 0
	case ref == "" || hyp == "":
		return 1
	}
	return float64(levenshtein.ComputeDistance(ref, hyp)) / float64(utf8.RuneCountInString(ref))
}

// ReferenceNote describes which side is the reference. Rates computed with
// the model output as reference are not comparable.
const ReferenceNote = "ground truth is the reference; not comparable with rates computed against the model output"

// Accumulator averages rates weighted by the normalized reference length.
type Accumulator struct {
	Sum   float64
	Chars int
}

// Add records one comparison and returns its rate.
func (a *Accumulator) Add(reference, hypothesis string, n align.Normalizer) float64 {
	if n == nil {
		n = align.NormalizeStripPunct
	}
	r := Rate(reference, hypothesis, n)
	chars := utf8.RuneCountInString(n(reference))
	a.Sum += r * float64(chars)
	a.Chars += chars
	return r
}

// Merge folds other into a.
func (a *Accumulator) Merge(other Accumulator) {
	a.Sum += other.Sum
	a.Chars += other.Chars
}

// Value is the weighted rate, or NaN when nothing with characters was added.
func (a Accumulator) Value() float64 {
	if a.Chars == 0 {
		return math.NaN()
	}
	return a.Sum / float64(a.Chars)
}
