package textsplitter

import (
	"context"
	"slices"
	"strings"

	"github.com/sevigo/chunkguard/overlap"
	"github.com/sevigo/chunkguard/schema"
)

// postProcess runs the same three passes after every algorithm: small-chunk
// filtering, trailing-remainder rebalancing and, for code, re-splitting of
// chunks that are still above MaxChunkSize.
func (s *TextSplitter) postProcess(
	ctx context.Context,
	chunks []schema.Chunk,
	lines []string,
	opts schema.ChunkingOptions,
) []schema.Chunk {
	if len(chunks) == 0 {
		return chunks
	}
	chunks = s.filterSmall(ctx, chunks, lines, opts)
	chunks = rebalance(chunks, lines, opts)

	if len(chunks) == 0 || !schema.IsCodeFile(chunks[0].Metadata.Language, chunks[0].Metadata.FilePath) {
		return chunks
	}
	return s.resplitOversized(ctx, chunks, opts)
}

// filterSmall folds chunks under MinChunkSize into their predecessor, or into
// their successor when they come first. A lone small chunk is dropped. Merged
// code chunks that end up above MaxChunkSize are cut again by the re-split
// pass.
func (s *TextSplitter) filterSmall(
	ctx context.Context,
	chunks []schema.Chunk,
	lines []string,
	opts schema.ChunkingOptions,
) []schema.Chunk {
	if opts.MinChunkSize <= 0 {
		return chunks
	}

	pending := slices.Clone(chunks)
	out := make([]schema.Chunk, 0, len(pending))
	for i := 0; i < len(pending); i++ {
		c := pending[i]
		if len(c.Content) >= opts.MinChunkSize {
			out = append(out, c)
			continue
		}
		switch {
		case len(out) > 0:
			out[len(out)-1] = mergeRange(out[len(out)-1], c, lines)
		case i+1 < len(pending):
			pending[i+1] = mergeRange(c, pending[i+1], lines)
		default:
			s.logger.WarnContext(ctx, "Discarding orphan chunk below minimum size",
				"file", c.Metadata.FilePath, "start_line", c.Metadata.StartLine,
				"size", len(c.Content), "min_size", opts.MinChunkSize)
		}
	}
	return out
}

// rebalance folds a vanishingly small final chunk into its predecessor when
// the result stays within the tolerated size.
func rebalance(chunks []schema.Chunk, lines []string, opts schema.ChunkingOptions) []schema.Chunk {
	if len(chunks) < 2 {
		return chunks
	}
	floor := max(opts.MinChunkSize, opts.MaxChunkSize/4)
	last := chunks[len(chunks)-1]
	if len(last.Content) >= floor {
		return chunks
	}

	merged := mergeRange(chunks[len(chunks)-2], last, lines)
	if len(merged.Content) > opts.ToleratedSize() {
		return chunks
	}
	out := slices.Clone(chunks[:len(chunks)-1])
	out[len(out)-1] = merged
	return out
}

func (s *TextSplitter) resplitOversized(ctx context.Context, chunks []schema.Chunk, opts schema.ChunkingOptions) []schema.Chunk {
	out := make([]schema.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Content) <= opts.MaxChunkSize {
			out = append(out, c)
			continue
		}
		pieces := overlap.ResplitOversized(c, opts)
		for i := range pieces {
			pieces[i].Metadata.Complexity = Complexity(pieces[i].Content)
		}
		s.logger.DebugContext(ctx, "Re-split oversized code chunk",
			"file", c.Metadata.FilePath, "start_line", c.Metadata.StartLine,
			"size", len(c.Content), "pieces", len(pieces))
		out = append(out, pieces...)
	}
	return out
}

// mergeRange joins two chunks by their line ranges over the source, so text
// shared through overlap is not duplicated.
func mergeRange(a, b schema.Chunk, lines []string) schema.Chunk {
	start := min(a.Metadata.StartLine, b.Metadata.StartLine)
	end := max(a.Metadata.EndLine, b.Metadata.EndLine)
	start = max(1, start)
	end = min(len(lines), end)

	merged := a.Clone()
	if start <= end {
		merged.Content = strings.Join(lines[start-1:end], "\n")
	} else {
		merged.Content = a.Content + "\n" + b.Content
	}
	merged.Metadata.StartLine = start
	merged.Metadata.EndLine = max(start, end)
	merged.Metadata.Truncated = a.Metadata.Truncated || b.Metadata.Truncated
	if a.Metadata.StartLine > b.Metadata.StartLine {
		merged.Metadata.HasOverlap = b.Metadata.HasOverlap
		merged.Metadata.OverlapSize = b.Metadata.OverlapSize
	}
	merged.Metadata.Complexity = Complexity(merged.Content)
	merged.Refresh()
	return merged
}
