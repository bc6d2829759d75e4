// Package textutil provides the text analysis primitives shared by the
// pipeline stages: sentence splitting, keyword extraction, and slug
// generation for library file names.
package textutil

import (
	"sort"
	"strings"
	"unicode"
)

// stopwords excluded from keyword extraction. Kept deliberately small; the
// goal is stable headings, not linguistic accuracy.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "has": {}, "have": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {}, "or": {},
	"that": {}, "the": {}, "this": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {},
}

// SplitSentences breaks text into trimmed sentences on terminal punctuation.
// Newlines without punctuation also terminate a sentence so list-style input
// does not collapse into one giant scene.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	flush := func() {
		s := strings.TrimSpace(current.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			current.WriteRune(r)
			flush()
		case '\n':
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return sentences
}

// CountWords counts whitespace-separated tokens.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// ExtractKeywords returns up to limit keywords ordered by frequency, ties
// broken alphabetically so results are stable across runs.
func ExtractKeywords(text string, limit int) []string {
	counts := make(map[string]int)
	for _, field := range strings.Fields(text) {
		word := normalizeWord(field)
		if len(word) < 3 {
			continue
		}
		if _, skip := stopwords[word]; skip {
			continue
		}
		counts[word]++
	}
	words := make([]string, 0, len(counts))
	for word := range counts {
		words = append(words, word)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if limit > 0 && len(words) > limit {
		words = words[:limit]
	}
	return words
}

func normalizeWord(field string) string {
	return strings.TrimFunc(strings.ToLower(field), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// Slugify reduces a title to a filesystem-safe lowercase slug.
func Slugify(title string) string {
	var out strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				out.WriteRune('-')
				lastHyphen = true
			}
		}
	}
	slug := strings.Trim(out.String(), "-")
	if slug == "" {
		return "untitled"
	}
	if len(slug) > 64 {
		slug = strings.Trim(slug[:64], "-")
	}
	return slug
}
