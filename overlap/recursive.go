package overlap

import (
	"strings"
)

var defaultSeparators = []string{" ", ""}

// RecursiveCharacter splits a single piece of text that has no usable line
// breaks. It tries each separator in turn, from largest to smallest, and
// keeps every separator attached to the text before it so that joining the
// pieces gives back the input byte for byte.
type RecursiveCharacter struct {
	chunkSize  int
	separators []string
}

// NewRecursiveCharacter creates a splitter producing pieces of at most
// chunkSize bytes. With no separators, it splits on spaces and then on
// individual characters.
func NewRecursiveCharacter(chunkSize int, separators ...string) *RecursiveCharacter {
	if chunkSize < 1 {
		chunkSize = 1
	}
	if len(separators) == 0 {
		separators = defaultSeparators
	}
	return &RecursiveCharacter{
		chunkSize:  chunkSize,
		separators: separators,
	}
}

// SplitText splits text into pieces no longer than the chunk size. A piece
// can only exceed it when a single character is wider than the chunk size.
func (s *RecursiveCharacter) SplitText(text string) []string {
	if text == "" {
		return nil
	}
	return s.splitTextRecursive(text, s.separators)
}

func (s *RecursiveCharacter) splitTextRecursive(text string, separators []string) []string {
	if len(text) <= s.chunkSize || len(separators) == 0 {
		return []string{text}
	}

	separator := separators[0]
	remaining := separators[1:]

	var merged []string
	var current strings.Builder
	for _, part := range strings.SplitAfter(text, separator) {
		if part == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(part) > s.chunkSize {
			merged = append(merged, current.String())
			current.Reset()
		}
		current.WriteString(part)
	}
	if current.Len() > 0 {
		merged = append(merged, current.String())
	}

	final := make([]string, 0, len(merged))
	for _, piece := range merged {
		if len(piece) <= s.chunkSize {
			final = append(final, piece)
			continue
		}
		final = append(final, s.splitTextRecursive(piece, remaining)...)
	}
	return final
}
