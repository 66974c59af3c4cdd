package align

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer transforms a field value before it is compared.
type Normalizer func(string) string

// Normalization modes accepted by GetNormalizer.
const (
	ModeStripPunct   = "strip_punct"
	ModeStripAccents = "strip_accents"
	ModeNone         = "none"
)

const asciiPunct = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// A chain keeps buffers between calls, so each call builds its own; the
// normalizers run from concurrent page workers.
func stripPunct() transform.Transformer {
	return transform.Chain(norm.NFC, runes.Remove(runes.Predicate(isASCIIPunct)))
}

func stripAccents() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), runes.Remove(runes.Predicate(isASCIIPunct)), norm.NFC)
}

func isASCIIPunct(r rune) bool {
	return r < 0x80 && strings.ContainsRune(asciiPunct, r)
}

// NormalizeStripPunct removes ASCII punctuation, lowercases and collapses
// whitespace (e.g. "  Kohtu-nik, " -> "kohtunik").
func NormalizeStripPunct(s string) string {
	result, _, _ := transform.String(stripPunct(), s)
	return collapse(strings.ToLower(result))
}

// NormalizeStripAccents is NormalizeStripPunct plus accent folding
// (e.g. "Õpetaja" -> "opetaja").
func NormalizeStripAccents(s string) string {
	result, _, _ := transform.String(stripAccents(), s)
	return collapse(strings.ToLower(result))
}

// NormalizeNone returns the value unchanged.
func NormalizeNone(s string) string {
	return s
}

// ValidMode reports whether mode names a normalizer. The empty string is
// accepted and means strip_punct.
func ValidMode(mode string) bool {
	switch mode {
	case "", ModeStripPunct, ModeStripAccents, ModeNone:
		return true
	}
	return false
}

// GetNormalizer returns the normalizer for the given mode.
// Default is strip_punct.
func GetNormalizer(mode string) Normalizer {
	switch mode {
	case ModeStripPunct:
		return NormalizeStripPunct
	case ModeStripAccents:
		return NormalizeStripAccents
	case ModeNone:
		return NormalizeNone
	default:
		return NormalizeStripPunct
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
