package parsing

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxTerms caps the output of ExtractTerms.
const MaxTerms = 300

var termPattern = regexp.MustCompile(`\b[A-Za-z][A-Za-z0-9+.#-]+`)

var stopWords = map[string]struct{}{
	"and": {}, "or": {}, "the": {}, "in": {}, "on": {}, "at": {},
	"for": {}, "with": {}, "to": {}, "of": {}, "a": {}, "an": {},
}

// ExtractTerms returns the unique lowercase candidate terms of text in
// first-seen order.
func ExtractTerms(text string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, m := range termPattern.FindAllString(text, -1) {
		token := strings.ToLower(strings.TrimRight(m, ".-"))
		if len(token) < 2 || isNumeric(token) {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		terms = append(terms, token)
		if len(terms) == MaxTerms {
			break
		}
	}
	return terms
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
