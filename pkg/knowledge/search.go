package knowledge

import (
	"regexp"
	"sort"
	"strings"
)

var termPattern = regexp.MustCompile(`[a-zA-Z0-9_-]+`)

//nolint:gochecknoglobals // static stop word list
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "from": true,
	"as": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true,
	"would": true, "should": true, "could": true, "may": true, "might": true,
	"must": true, "can": true, "this": true, "that": true, "these": true,
	"those": true, "i": true, "you": true, "he": true, "she": true,
	"it": true, "we": true, "they": true, "what": true, "which": true,
	"who": true, "when": true, "where": true, "why": true, "how": true,
	"and/or": true, "score": true, "unixbench": true, "enhance": true,
}

// MaxKeyTerms bounds the number of terms ExtractKeyTerms returns.
const MaxKeyTerms = 20

// ExtractKeyTerms extracts search terms from a target and the labels of a batch.
// Returns a space-separated string of the top terms by frequency, ties broken
// by first appearance.
func ExtractKeyTerms(target string, labels []string) string {
	text := target + " " + strings.Join(labels, " ")

	// Preserves snake_case and kebab-case identifiers such as LOG_BUF_SHIFT.
	tokens := termPattern.FindAllString(text, -1)

	freq := make(map[string]int)
	first := make(map[string]int)
	for i, token := range tokens {
		lower := strings.ToLower(token)
		if len(lower) < 3 {
			continue
		}
		if stopWords[lower] {
			continue
		}
		if _, seen := first[token]; !seen {
			first[token] = i
		}
		freq[token]++ // Keep original case
	}

	terms := make([]string, 0, len(freq))
	for term := range freq {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return first[terms[i]] < first[terms[j]]
	})

	if len(terms) > MaxKeyTerms {
		terms = terms[:MaxKeyTerms]
	}
	return strings.Join(terms, " ")
}

// ftsQuery turns space-separated terms into an FTS5 OR query. Each term is
// quoted so identifiers containing '-' or FTS keywords are matched literally.
func ftsQuery(terms string) string {
	fields := strings.Fields(terms)
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		quoted = append(quoted, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " OR ")
}
