package dedup

import (
	"sort"
	"strings"
)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "was": {}, "with": {}, "this": {},
	"that": {}, "have": {}, "from": {}, "they": {}, "will": {}, "would": {},
	"there": {}, "their": {}, "what": {}, "about": {}, "which": {}, "when": {},
	"just": {}, "into": {}, "your": {}, "some": {}, "them": {}, "then": {},
	"than": {}, "been": {}, "were": {}, "also": {}, "like": {}, "should": {},
	"could": {}, "need": {}, "needs": {}, "let": {}, "lets": {}, "got": {},
}

func stripPunctuation(word string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, strings.ToLower(word))
}

// contentWords returns the lowercased, punctuation-stripped words of text
// that are longer than two characters, preserving order.
func contentWords(text string) []string {
	var words []string
	for _, field := range strings.Fields(text) {
		w := stripPunctuation(field)
		if len(w) > 2 {
			words = append(words, w)
		}
	}
	return words
}

// Keywords extracts up to max topic keywords from text: lowercased,
// punctuation stripped, stop words and short tokens dropped, original
// order preserved.
func Keywords(text string, max int) []string {
	var keywords []string
	for _, w := range contentWords(text) {
		if _, stop := stopWords[w]; stop {
			continue
		}
		keywords = append(keywords, w)
		if len(keywords) >= max {
			break
		}
	}
	return keywords
}

// topWords returns up to n distinct content words of text in alphabetical
// order, used for stable signature keys.
func topWords(text string, n int) []string {
	seen := make(map[string]struct{})
	var words []string
	for _, w := range contentWords(text) {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		words = append(words, w)
	}
	sort.Strings(words)
	if len(words) > n {
		words = words[:n]
	}
	return words
}

// jaccard computes the Jaccard index of two word lists treated as sets.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, w := range a {
		setA[w] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, w := range b {
		setB[w] = struct{}{}
	}

	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
