package util

import (
	"math"
	"strings"
	"time"
	"unicode"
)

// Tokenize lowercases the text and splits it into word tokens, dropping
// punctuation. Shared by the router's feature extraction, memory relevance
// scoring, the world model heuristic and reflection discrepancy analysis so
// all four agree on what a "term" is.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// TokenSet returns the unique tokens of the text.
func TokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokenize(text) {
		set[tok] = struct{}{}
	}
	return set
}

// Overlap scores how much of query's vocabulary appears in text, in [0,1].
// An empty query matches everything with score 1.
func Overlap(query, text string) float64 {
	qset := TokenSet(query)
	if len(qset) == 0 {
		return 1.0
	}
	tset := TokenSet(text)
	hits := 0
	for tok := range qset {
		if _, ok := tset[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(qset))
}

// MissingTerms returns the query vocabulary absent from text, in first-seen
// order. Reflection uses it to name concrete goal/outcome discrepancies.
func MissingTerms(query, text string) []string {
	tset := TokenSet(text)
	seen := make(map[string]struct{})
	var missing []string
	for _, tok := range Tokenize(query) {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		if _, ok := tset[tok]; !ok {
			missing = append(missing, tok)
		}
	}
	return missing
}

// RecencyWeight maps an entry's age to (0,1], halving every halfLife. A zero
// half-life disables the weighting.
func RecencyWeight(at time.Time, now time.Time, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return 1.0
	}
	age := now.Sub(at)
	if age <= 0 {
		return 1.0
	}
	return math.Exp2(-float64(age) / float64(halfLife))
}
