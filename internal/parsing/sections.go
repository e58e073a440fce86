package parsing

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// FullSection labels a document in which no known heading was found.
	FullSection = "full"
	// PreambleSection labels text that precedes the first heading.
	PreambleSection = "preamble"
)

// Longer headings come first so "work experience" wins over "experience"
// at the same position.
var sectionHeadings = []string{
	"professional experience",
	"work experience",
	"technical skills",
	"experience",
	"education",
	"summary",
	"projects",
	"skills",
}

var headingPattern = buildHeadingPattern(sectionHeadings)

func buildHeadingPattern(headings []string) *regexp.Regexp {
	quoted := make([]string, len(headings))
	for i, h := range headings {
		quoted[i] = regexp.QuoteMeta(h)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// Section is a labeled span of a document.
type Section struct {
	Label string
	Text  string
}

var whitespace = regexp.MustCompile(`\s+`)

// NormalizeWhitespace collapses every whitespace run into a single space.
func NormalizeWhitespace(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// DecodeDocument turns uploaded bytes into text, dropping invalid UTF-8.
func DecodeDocument(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "")
}

// SplitSections cuts text at every heading occurrence, in source order.
// Each span runs from its heading to the next one (or the end of the text).
func SplitSections(text string) []Section {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	matches := headingPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return []Section{{Label: FullSection, Text: text}}
	}

	sections := make([]Section, 0, len(matches)+1)
	if pre := strings.TrimSpace(text[:matches[0][0]]); pre != "" {
		sections = append(sections, Section{Label: PreambleSection, Text: pre})
	}
	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		span := strings.TrimSpace(text[m[0]:end])
		if span == "" {
			continue
		}
		sections = append(sections, Section{
			Label: strings.ToLower(text[m[0]:m[1]]),
			Text:  span,
		})
	}
	return sections
}
