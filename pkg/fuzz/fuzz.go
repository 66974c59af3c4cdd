// Package fuzz implements 0-100 string similarity scores based on the Indel
// distance (insertions and deletions only), computed over runes.
package fuzz

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// Ratio returns the normalized Indel similarity of a and b:
// 100 * 2*LCS / (len(a)+len(b)). Two empty strings are identical (100).
func Ratio(a, b string) int {
	return ratioRunes([]rune(a), []rune(b))
}

func ratioRunes(a, b []rune) int {
	total := len(a) + len(b)
	if total == 0 {
		return 100
	}
	return round(100 * float64(2*lcs(a, b)) / float64(total))
}

// PartialRatio scores how well the shorter string fits inside the longer one:
// the best Ratio between the shorter string and any window of the longer
// string of the same length. Windows may be clipped at either end so that a
// needle hanging over the edge still scores its overlap.
func PartialRatio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		if len(ra) == 0 && len(rb) == 0 {
			return 100
		}
		return 0
	}
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	best := partialRunes(ra, rb)
	if len(ra) == len(rb) && best < 100 {
		if s := partialRunes(rb, ra); s > best {
			best = s
		}
	}
	return best
}

func partialRunes(needle, hay []rune) int {
	n := len(needle)
	best := 0
	for start := -(n - 1); start < len(hay); start++ {
		lo, hi := start, start+n
		if lo < 0 {
			lo = 0
		}
		if hi > len(hay) {
			hi = len(hay)
		}
		if s := ratioRunes(needle, hay[lo:hi]); s > best {
			best = s
			if best == 100 {
				return best
			}
		}
	}
	return best
}

// TokenSetRatio compares the sets of words of a and b, ignoring order and
// duplicates. Inputs go through ASCIIOnly and then Process, so Latin-1
// letters such as ä, ö, ü and õ are dropped before tokenizing
// ("päev" and "põev" both become "pev").
func TokenSetRatio(a, b string) int {
	ta, tb := tokenSet(Process(ASCIIOnly(a))), tokenSet(Process(ASCIIOnly(b)))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var sect, diffAB, diffBA []string
	for t := range ta {
		if _, ok := tb[t]; ok {
			sect = append(sect, t)
		} else {
			diffAB = append(diffAB, t)
		}
	}
	for t := range tb {
		if _, ok := ta[t]; !ok {
			diffBA = append(diffBA, t)
		}
	}
	if len(sect) > 0 && (len(diffAB) == 0 || len(diffBA) == 0) {
		return 100
	}

	sort.Strings(sect)
	sort.Strings(diffAB)
	sort.Strings(diffBA)

	base := strings.Join(sect, " ")
	withAB := joinNonEmpty(base, strings.Join(diffAB, " "))
	withBA := joinNonEmpty(base, strings.Join(diffBA, " "))

	best := Ratio(withAB, withBA)
	if base != "" {
		if s := Ratio(base, withAB); s > best {
			best = s
		}
		if s := Ratio(base, withBA); s > best {
			best = s
		}
	}
	return best
}

// ASCIIOnly deletes the code points U+0080 to U+00FF. Characters above
// U+00FF (š, ž) are kept.
func ASCIIOnly(s string) string {
	out, _, _ := transform.String(runes.Remove(runes.Predicate(isLatin1Supplement)), s)
	return out
}

func isLatin1Supplement(r rune) bool {
	return r >= 0x80 && r <= 0xFF
}

// Process lowercases s, replaces every rune that is neither a letter nor a
// digit with a space and trims the result.
func Process(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.TrimSpace(mapped)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, f := range strings.Fields(s) {
		set[f] = struct{}{}
	}
	return set
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + " " + b
}

// lcs returns the length of the longest common subsequence of a and b.
func lcs(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(b) > len(a) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// round rounds half to even, the way the reference scorers do.
func round(f float64) int {
	return int(math.RoundToEven(f))
}
