// Package filter decides whether a candidate posting looks like a cheap or urgent
// programming gig.
package filter

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// fold lower-cases s with full Unicode case folding so "ASAP" and "asap" match.
func fold(s string) string {
	return folder.String(s)
}

// Keywords holds case-folded positive weights and negative terms.
type Keywords struct {
	weights  map[string]float64
	negative []string
}

// NewKeywords folds and de-duplicates the configured terms. Empty terms are dropped.
// When two weighted keywords fold to the same string the last one wins.
func NewKeywords(weights map[string]float64, negative []string) Keywords {
	k := Keywords{weights: make(map[string]float64, len(weights))}

	// sorted so duplicate folding is deterministic
	terms := make([]string, 0, len(weights))
	for term := range weights {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	for _, term := range terms {
		f := fold(strings.TrimSpace(term))
		if f == "" {
			continue
		}
		k.weights[f] = weights[term]
	}

	seen := make(map[string]bool, len(negative))
	for _, term := range negative {
		f := fold(strings.TrimSpace(term))
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		k.negative = append(k.negative, f)
	}
	return k
}

// NegativeMatch returns the first negative term found in text, if any.
// text must already be folded.
func (k Keywords) NegativeMatch(text string) (string, bool) {
	for _, term := range k.negative {
		if strings.Contains(text, term) {
			return term, true
		}
	}
	return "", false
}

// Score sums the weight of every distinct keyword contained in text.
// Repeated occurrences of one keyword count once. text must already be folded.
func (k Keywords) Score(text string) (float64, []string) {
	var score float64
	var matched []string
	for term, w := range k.weights {
		if strings.Contains(text, term) {
			score += w
			matched = append(matched, term)
		}
	}
	sort.Strings(matched)
	return score, matched
}

// ContainsRedFlag reports whether any negative term appears (case-insensitive)
// anywhere in the combined title + body text.
func ContainsRedFlag(title, body string, redFlags []string) bool {
	if len(redFlags) == 0 {
		return false
	}
	_, hit := NewKeywords(nil, redFlags).NegativeMatch(fold(title + " " + body))
	return hit
}
