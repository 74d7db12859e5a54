// Package similarity implements the keyword-similarity engine used for
// canon-conflict detection: a token-overlap (Jaccard) heuristic, not
// semantic NLP. It is a cheap pre-filter; contradiction judgement is
// deferred to an external deep-review agent.
package similarity

import (
	"sort"
	"strings"
	"unicode"
)

// stopWords are dropped during tokenization. English function words plus
// a few terms that appear in nearly every canon claim and carry no
// discriminating signal.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "been": true, "but": true, "by": true, "for": true,
	"from": true, "had": true, "has": true, "have": true, "he": true,
	"her": true, "his": true, "in": true, "into": true, "is": true,
	"it": true, "its": true, "not": true, "of": true, "on": true,
	"or": true, "she": true, "that": true, "the": true, "their": true,
	"them": true, "these": true, "they": true, "this": true, "to": true,
	"was": true, "were": true, "which": true, "while": true, "who": true,
	"will": true, "with": true,
	// Domain noise: present in most worldbuilding claims.
	"also": true, "known": true, "called": true, "named": true,
}

// Tokenize lower-cases text, strips non-alphanumerics, and drops stop
// words and single-character tokens. The result is a token set.
func Tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	var sb strings.Builder

	flush := func() {
		if sb.Len() == 0 {
			return
		}
		tok := sb.String()
		sb.Reset()
		if len(tok) <= 1 || stopWords[tok] {
			return
		}
		tokens[tok] = true
	}

	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// Jaccard computes set similarity: |intersection| / |union|, in [0,1].
// Two empty sets score zero.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Intersection returns the shared tokens of two sets, sorted.
func Intersection(a, b map[string]bool) []string {
	var shared []string
	for tok := range a {
		if b[tok] {
			shared = append(shared, tok)
		}
	}
	sort.Strings(shared)
	return shared
}

// Union merges token sets.
func Union(sets ...map[string]bool) map[string]bool {
	merged := make(map[string]bool)
	for _, set := range sets {
		for tok := range set {
			merged[tok] = true
		}
	}
	return merged
}
