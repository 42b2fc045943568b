// Package textmatch compares a transcript against an expected phrase.
package textmatch

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// nearMiss is the largest per-word character edit ratio still treated as a
// partial match ("apple" for "apples"). Anything above costs a full word.
const nearMiss = 0.34

var (
	ones = []string{
		"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
		"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen",
		"seventeen", "eighteen", "nineteen",
	}
	tens = []string{"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety"}
)

// Normalize lowercases s, strips accents and punctuation, spells out numbers
// below 100 and collapses whitespace.
func Normalize(s string) string {
	return strings.Join(Words(s), " ")
}

// Words returns the normalized word sequence of s.
func Words(s string) []string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if stripped, _, err := transform.String(t, s); err == nil {
		s = stripped
	}
	s = strings.ToLower(s)

	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		case r == '\'':
			return -1
		default:
			return ' '
		}
	}, s)

	var out []string
	for _, w := range strings.Fields(s) {
		out = append(out, spellNumber(w)...)
	}
	return out
}

func spellNumber(w string) []string {
	n, err := strconv.Atoi(w)
	if err != nil || n < 0 || n > 99 {
		return []string{w}
	}
	if n < 20 {
		return []string{ones[n]}
	}
	if n%10 == 0 {
		return []string{tens[n/10]}
	}
	return []string{tens[n/10], ones[n%10]}
}

// Score returns a similarity in [0, 1] between the transcript and the
// expected phrase: one minus the word-level edit distance divided by the
// longer word count. Near-miss words cost their character edit ratio.
func Score(transcript, expected string) float64 {
	a, b := Words(transcript), Words(expected)
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	prev := make([]float64, len(b)+1)
	cur := make([]float64, len(b)+1)
	for j := range prev {
		prev[j] = float64(j)
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = float64(i)
		for j := 1; j <= len(b); j++ {
			cur[j] = min(
				prev[j]+1,
				cur[j-1]+1,
				prev[j-1]+substitutionCost(a[i-1], b[j-1]),
			)
		}
		prev, cur = cur, prev
	}

	dist := prev[len(b)]
	longest := float64(max(len(a), len(b)))
	if s := 1 - dist/longest; s > 0 {
		return s
	}
	return 0
}

// Matches reports whether Score reaches threshold.
func Matches(transcript, expected string, threshold float64) bool {
	return Score(transcript, expected) >= threshold
}

func substitutionCost(x, y string) float64 {
	if x == y {
		return 0
	}
	rx, ry := []rune(x), []rune(y)
	ratio := float64(levenshtein(rx, ry)) / float64(max(len(rx), len(ry)))
	if ratio <= nearMiss {
		return ratio
	}
	return 1
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
