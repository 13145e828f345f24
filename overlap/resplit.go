package overlap

import (
	"fmt"
	"strings"

	"github.com/sevigo/chunkguard/schema"
)

// unit is one indivisible piece of a chunk: a whole line, or a segment of a
// line that was too long to keep whole.
type unit struct {
	text string
	line int
}

func joinUnits(units []unit) string {
	var b strings.Builder
	for i, u := range units {
		if i > 0 && units[i-1].line != u.line {
			b.WriteByte('\n')
		}
		b.WriteString(u.text)
	}
	return b.String()
}

func separatorLen(current []unit, next unit) int {
	if len(current) == 0 || current[len(current)-1].line == next.line {
		return 0
	}
	return 1
}

func unitsSize(units []unit) int {
	size := 0
	for i, u := range units {
		if i > 0 && units[i-1].line != u.line {
			size++
		}
		size += len(u.text)
	}
	return size
}

// ResplitOversized cuts a chunk larger than MaxChunkSize into pieces. A cut is
// made once the projected size would exceed MaxChunkSize minus the overlap
// budget; the tail of the closed piece, up to the budget, seeds the next one.
// Pieces never exceed MaxChunkSize unless a single character does.
func ResplitOversized(chunk schema.Chunk, opts schema.ChunkingOptions) []schema.Chunk {
	opts = opts.WithDefaults()
	if len(chunk.Content) <= opts.MaxChunkSize {
		return []schema.Chunk{chunk.Clone()}
	}

	budget := opts.OverlapBudget()
	limit := max(1, opts.MaxChunkSize-budget)
	units := toUnits(chunk, limit)

	var pieces []schema.Chunk
	var current []unit
	seeded := 0

	flush := func() {
		if len(current) <= seeded {
			return
		}
		piece := chunk.Clone()
		piece.Content = joinUnits(current)
		piece.Metadata.StartLine = current[0].line
		piece.Metadata.EndLine = current[len(current)-1].line
		piece.Metadata.HasOverlap = seeded > 0
		piece.Metadata.OverlapSize = 0
		if seeded > 0 {
			piece.Metadata.OverlapSize = unitsSize(current[:seeded])
		}
		if chunk.Metadata.Identifier != "" {
			piece.Metadata.Identifier = fmt.Sprintf("%s_part_%d", chunk.Metadata.Identifier, len(pieces)+1)
		}
		piece.Refresh()
		pieces = append(pieces, piece)
	}

	size := 0
	for _, u := range units {
		if len(current) > seeded && size+separatorLen(current, u)+len(u.text) > limit {
			flush()
			current = seedFrom(current, budget)
			size = unitsSize(current)
			if size+separatorLen(current, u)+len(u.text) > opts.MaxChunkSize {
				current, size = nil, 0
			}
			seeded = len(current)
		}
		size += separatorLen(current, u) + len(u.text)
		current = append(current, u)
	}
	flush()

	if len(pieces) == 0 {
		return []schema.Chunk{chunk.Clone()}
	}
	return pieces
}

func toUnits(chunk schema.Chunk, limit int) []unit {
	lines := strings.Split(chunk.Content, "\n")
	splitter := NewRecursiveCharacter(limit)
	units := make([]unit, 0, len(lines))
	for i, line := range lines {
		lineNo := chunk.Metadata.StartLine + i
		if len(line) <= limit {
			units = append(units, unit{text: line, line: lineNo})
			continue
		}
		for _, segment := range splitter.SplitText(line) {
			units = append(units, unit{text: segment, line: lineNo})
		}
	}
	return units
}

// seedFrom returns the trailing units of closed that fit in budget. When not
// even the last unit fits, the last budget bytes of it are used instead.
func seedFrom(closed []unit, budget int) []unit {
	if budget <= 0 || len(closed) == 0 {
		return nil
	}

	start := len(closed)
	for i := len(closed) - 1; i >= 0; i-- {
		if unitsSize(closed[i:]) > budget {
			break
		}
		start = i
	}
	if start < len(closed) {
		seed := make([]unit, len(closed)-start)
		copy(seed, closed[start:])
		return seed
	}

	last := closed[len(closed)-1]
	if last.text == "" {
		return nil
	}
	cut := max(0, len(last.text)-budget)
	for cut < len(last.text) && !isRuneStart(last.text[cut]) {
		cut++
	}
	if cut >= len(last.text) {
		return nil
	}
	return []unit{{text: last.text[cut:], line: last.line}}
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
