package knowledge

import (
	"strings"
	"unicode/utf8"
)

var separators = []string{"\n\n", "\n", ". ", " "}

// SplitText breaks a document into chunks of roughly chunkSize characters,
// preferring paragraph and sentence boundaries, with overlap characters of
// trailing context carried into the next chunk.
func SplitText(text string, chunkSize, chunkOverlap int) []string {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= chunkSize {
		return []string{text}
	}

	pieces := split(text, chunkSize, 0)

	// Merge small pieces back up to chunkSize, carrying overlap.
	var chunks []string
	var current strings.Builder
	for _, piece := range pieces {
		if current.Len() > 0 && current.Len()+len(piece) > chunkSize {
			chunk := strings.TrimSpace(current.String())
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			current.Reset()
			if chunkOverlap > 0 && len(chunk) > chunkOverlap {
				// Advance the cut to the next rune boundary so the carry
				// never starts mid-rune.
				cut := len(chunk) - chunkOverlap
				for cut < len(chunk) && !utf8.RuneStart(chunk[cut]) {
					cut++
				}
				current.WriteString(chunk[cut:])
			}
		}
		current.WriteString(piece)
	}
	if tail := strings.TrimSpace(current.String()); tail != "" {
		chunks = append(chunks, tail)
	}
	return chunks
}

// split recursively cuts text on progressively finer separators until every
// piece fits the size budget; pieces with no separator left are cut hard.
func split(text string, size, sepIdx int) []string {
	if len(text) <= size {
		return []string{text}
	}
	if sepIdx >= len(separators) {
		// No separator left; cut on rune boundaries.
		var out []string
		runes := []rune(text)
		for len(runes) > size {
			out = append(out, string(runes[:size]))
			runes = runes[size:]
		}
		if len(runes) > 0 {
			out = append(out, string(runes))
		}
		return out
	}

	sep := separators[sepIdx]
	parts := strings.SplitAfter(text, sep)
	var out []string
	for _, part := range parts {
		if len(part) > size {
			out = append(out, split(part, size, sepIdx+1)...)
		} else if part != "" {
			out = append(out, part)
		}
	}
	return out
}
