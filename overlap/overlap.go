// Package overlap adds trailing-context overlap between chunks and re-splits
// chunks that outgrew the configured maximum size.
package overlap

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sevigo/chunkguard/schema"
)

// Calculator computes trailing-context overlap for a chunk sequence.
type Calculator interface {
	AddOverlap(ctx context.Context, chunks []schema.Chunk, original string, opts schema.ChunkingOptions) ([]schema.Chunk, error)
}

// LineCalculator is the default Calculator. Oversized chunks are re-split
// with an overlap budget; non-code chunks additionally receive a window of
// trailing lines from their predecessor.
type LineCalculator struct {
	logger *slog.Logger
}

var _ Calculator = (*LineCalculator)(nil)

func New(logger *slog.Logger) *LineCalculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &LineCalculator{logger: logger.With("component", "overlap_calculator")}
}

func (c *LineCalculator) AddOverlap(
	ctx context.Context,
	chunks []schema.Chunk,
	original string,
	opts schema.ChunkingOptions,
) ([]schema.Chunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts = opts.WithDefaults()

	resplit := make([]schema.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk.Content) > opts.MaxChunkSize {
			pieces := ResplitOversized(chunk, opts)
			c.logger.DebugContext(ctx, "Re-split oversized chunk",
				"lines", chunk.Metadata.StartLine, "size", len(chunk.Content), "pieces", len(pieces))
			resplit = append(resplit, pieces...)
			continue
		}
		resplit = append(resplit, chunk.Clone())
	}

	first := chunks[0].Metadata
	if schema.IsCodeFile(first.Language, first.FilePath) {
		return resplit, nil
	}

	totalLines := strings.Count(original, "\n") + 1
	return InjectLineOverlap(resplit, opts.OverlapSize, totalLines), nil
}

// InjectLineOverlap prefixes every chunk after the first with whole trailing
// lines of its predecessor, bounded by maxBytes. Chunks that already overlap
// their predecessor are left alone.
func InjectLineOverlap(chunks []schema.Chunk, maxBytes, totalLines int) []schema.Chunk {
	if len(chunks) < 2 || maxBytes <= 0 {
		return chunks
	}

	out := make([]schema.Chunk, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		cur := chunks[i].Clone()
		out[i] = cur

		if cur.Metadata.StartLine <= prev.Metadata.EndLine {
			continue
		}

		prevLines := strings.Split(prev.Content, "\n")
		tail := WindowTail(prevLines, maxBytes, len(prevLines)-1)
		if len(tail) == 0 {
			continue
		}

		prefix := strings.Join(tail, "\n")
		cur.Content = prefix + "\n" + cur.Content
		start := max(prev.Metadata.StartLine, prev.Metadata.EndLine-len(tail)+1)
		if totalLines > 0 {
			start = min(start, totalLines)
		}
		cur.Metadata.StartLine = min(start, cur.Metadata.StartLine)
		cur.Metadata.HasOverlap = true
		cur.Metadata.OverlapSize = len(prefix) + 1
		cur.Refresh()
		out[i] = cur
	}
	return out
}

// WindowTail walks lines backwards and returns the longest suffix whose joined
// size stays within maxBytes, holding at most maxLines lines.
func WindowTail(lines []string, maxBytes, maxLines int) []string {
	if maxBytes <= 0 || maxLines <= 0 || len(lines) == 0 {
		return nil
	}

	size := 0
	start := len(lines)
	for i := len(lines) - 1; i >= 0 && len(lines)-i <= maxLines; i-- {
		next := size + len(lines[i])
		if start < len(lines) {
			next++ // newline joining it to the following line
		}
		if next > maxBytes {
			break
		}
		size = next
		start = i
	}
	if start == len(lines) {
		return nil
	}
	return lines[start:]
}
