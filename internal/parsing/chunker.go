package parsing

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultMaxChunkChars = 1200
	DefaultMinChunkChars = 300
)

// Chunker turns sections into bounded-size chunks.
type Chunker struct {
	MaxChars int
	MinChars int
}

func NewChunker() *Chunker {
	return &Chunker{MaxChars: DefaultMaxChunkChars, MinChars: DefaultMinChunkChars}
}

// ChunkDocument segments text and chunks the resulting sections.
func (c *Chunker) ChunkDocument(text string) []string {
	return c.Chunk(SplitSections(text))
}

// Chunk accumulates sentences per section up to MaxChars, then folds every
// chunk shorter than MinChars into its neighbour. Order is preserved.
func (c *Chunker) Chunk(sections []Section) []string {
	var chunks []string
	for _, sec := range sections {
		var current string
		for _, sent := range SplitSentences(sec.Text) {
			if current != "" && runeLen(current)+runeLen(sent)+1 > c.MaxChars {
				chunks = append(chunks, strings.TrimSpace(current))
				current = sent
				continue
			}
			current += " " + sent
		}
		if s := strings.TrimSpace(current); s != "" {
			chunks = append(chunks, s)
		}
	}
	return c.mergeSmall(chunks)
}

// mergeSmall never emits a chunk under MinChars unless it is the only one.
// A short leading accumulator keeps absorbing chunks until it grows past the minimum.
func (c *Chunker) mergeSmall(chunks []string) []string {
	var merged []string
	var buf string
	for _, ch := range chunks {
		if buf != "" && (runeLen(ch) < c.MinChars || runeLen(buf) < c.MinChars) {
			buf += " " + ch
			continue
		}
		if buf != "" {
			merged = append(merged, strings.TrimSpace(buf))
		}
		buf = ch
	}
	if s := strings.TrimSpace(buf); s != "" {
		merged = append(merged, s)
	}
	return merged
}

// SplitSentences breaks text after '.', '!' or '?' when the following
// whitespace run is followed by an upper-case letter or a digit.
func SplitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		j := i
		for j < len(text) {
			ws, wsize := utf8.DecodeRuneInString(text[j:])
			if !unicode.IsSpace(ws) {
				break
			}
			j += wsize
		}
		if j == i || j >= len(text) {
			continue
		}
		next, _ := utf8.DecodeRuneInString(text[j:])
		if !unicode.IsUpper(next) && !unicode.IsDigit(next) {
			continue
		}
		if s := strings.TrimSpace(text[start:i]); s != "" {
			sentences = append(sentences, s)
		}
		start = j
		i = j
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
