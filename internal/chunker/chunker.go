// Package chunker splits raw legal text into bounded, section-tagged chunks.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// MaxChunkLength bounds chunk size in characters, roughly 400 tokens.
	MaxChunkLength = 1500
	// Overlap is the approximate character overlap carried between adjacent
	// chunks of the same section.
	Overlap = 200
)

// Chunk is one bounded span of the input text in emission order.
type Chunk struct {
	ID      string
	Index   int
	Content string
	Section string
	Page    int
}

// sectionBoundary marks the start of a legal section: Section/Article/Clause
// followed by a digit, a numbered heading, CHAPTER or SCHEDULE. Keyword forms
// are case-insensitive.
var sectionBoundary = regexp.MustCompile(`(?m)^(?:(?i:section|article|clause)\s+\d|\d+\.\s+[A-Z]|(?i:chapter|schedule)\s)`)

var (
	sectionPattern = regexp.MustCompile(`(?i)Section\s+(\d+[\w.]*)`)
	articlePattern = regexp.MustCompile(`(?i)Article\s+(\d+[\w.]*)`)
	clausePattern  = regexp.MustCompile(`(?i)Clause\s+(\d+[\w.]*)`)
)

// sentenceBoundary is whitespace following sentence-ending punctuation.
var sentenceBoundary = regexp.MustCompile(`[.!?]\s+`)

// Split chunks raw text. Sections are split out first; oversized sections are
// re-split on sentence boundaries with word overlap; text without any section
// marker falls back to a fixed sliding window. Any non-empty input yields at
// least one chunk. Whitespace-only input yields none.
func Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []Chunk

	if locs := sectionBoundary.FindAllStringIndex(text, -1); len(locs) > 0 {
		for _, section := range splitAt(text, locs) {
			chunks = appendSection(chunks, section)
		}
	}

	// No section boundary anywhere: fixed sliding window over the raw text.
	if len(chunks) == 0 {
		chunks = slidingWindow(text)
	}

	return chunks
}

// splitAt cuts text at the start offset of each boundary match, keeping any
// preamble before the first boundary, and drops empty fragments.
func splitAt(text string, locs [][]int) []string {
	var fragments []string
	prev := 0
	for _, loc := range locs {
		if loc[0] > prev {
			fragments = append(fragments, text[prev:loc[0]])
		}
		prev = loc[0]
	}
	fragments = append(fragments, text[prev:])

	kept := fragments[:0]
	for _, f := range fragments {
		if strings.TrimSpace(f) != "" {
			kept = append(kept, f)
		}
	}
	return kept
}

func appendSection(chunks []Chunk, section string) []Chunk {
	if utf8.RuneCountInString(section) <= MaxChunkLength {
		return append(chunks, newChunk(len(chunks), section))
	}

	// Oversized section: accumulate sentences greedily, flushing with a
	// ~40-word overlap seeded into the next buffer.
	var current string
	for _, sentence := range splitSentences(section) {
		if utf8.RuneCountInString(current)+1+utf8.RuneCountInString(sentence) > MaxChunkLength && len(current) > 0 {
			chunks = append(chunks, newChunk(len(chunks), current))
			words := strings.Split(current, " ")
			overlapWords := Overlap / 5
			if len(words) > overlapWords {
				words = words[len(words)-overlapWords:]
			}
			current = strings.Join(words, " ") + " " + sentence
		} else if current == "" {
			current = sentence
		} else {
			current = current + " " + sentence
		}
	}
	if strings.TrimSpace(current) != "" {
		chunks = append(chunks, newChunk(len(chunks), current))
	}
	return chunks
}

// splitSentences cuts text after sentence-ending punctuation followed by
// whitespace, keeping the punctuation with its sentence.
func splitSentences(text string) []string {
	locs := sentenceBoundary.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}

	var sentences []string
	prev := 0
	for _, loc := range locs {
		sentences = append(sentences, text[prev:loc[0]+1])
		prev = loc[1]
	}
	if prev < len(text) {
		sentences = append(sentences, text[prev:])
	}
	return sentences
}

func slidingWindow(text string) []Chunk {
	var chunks []Chunk
	runes := []rune(text)
	pos := 0
	for pos < len(runes) {
		end := pos + MaxChunkLength
		if end > len(runes) {
			end = len(runes)
		}
		content := strings.TrimSpace(string(runes[pos:end]))
		chunks = append(chunks, Chunk{
			ID:      uuid.NewString(),
			Index:   len(chunks),
			Content: content,
		})
		if end == len(runes) {
			break
		}
		pos = end - Overlap
	}
	return chunks
}

func newChunk(index int, content string) Chunk {
	return Chunk{
		ID:      uuid.NewString(),
		Index:   index,
		Content: strings.TrimSpace(content),
		Section: ExtractSectionLabel(content),
	}
}

// ExtractSectionLabel scans text for a section reference. Section, Article
// and Clause patterns are checked in that order, each overwriting the last,
// so a Clause match wins over Article which wins over Section. The label is
// the bare number for Section and the full form for Article and Clause.
func ExtractSectionLabel(text string) string {
	label := ""
	if m := sectionPattern.FindStringSubmatch(text); m != nil {
		label = m[1]
	}
	if m := articlePattern.FindStringSubmatch(text); m != nil {
		label = "Article " + m[1]
	}
	if m := clausePattern.FindStringSubmatch(text); m != nil {
		label = "Clause " + m[1]
	}
	return label
}
