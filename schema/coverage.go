package schema

import "strings"

// AttachUncovered extends each chunk back over the text between it and its
// predecessor, such as free-floating comments, so every non-blank line of
// the file belongs to a chunk. Chunks must be sorted by StartLine and be
// slices of lines. It returns the range of text after the last chunk, or
// (0, 0) when there is none, for the caller to wrap as it sees fit.
func AttachUncovered(chunks []Chunk, lines []string) (tailStart, tailEnd int) {
	covered := 0
	for i := range chunks {
		meta := chunks[i].Metadata
		if first := firstText(lines, covered+1, meta.StartLine-1); first > 0 {
			meta.StartLine = first
			if meta.Extra == nil {
				meta.Extra = make(map[string]string)
			}
			meta.Extra["leading_text"] = "true"
			chunks[i] = NewChunk(strings.Join(lines[first-1:meta.EndLine], "\n"), meta)
		}
		covered = max(covered, meta.EndLine)
	}

	first := firstText(lines, covered+1, len(lines))
	if first == 0 {
		return 0, 0
	}
	last := len(lines)
	for strings.TrimSpace(lines[last-1]) == "" {
		last--
	}
	return first, last
}

// firstText returns the first non-blank line number in [from, to], or 0.
func firstText(lines []string, from, to int) int {
	for n := max(from, 1); n <= min(to, len(lines)); n++ {
		if strings.TrimSpace(lines[n-1]) != "" {
			return n
		}
	}
	return 0
}
