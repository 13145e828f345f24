package textsplitter

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sevigo/chunkguard/overlap"
	"github.com/sevigo/chunkguard/schema"
)

// scanner holds the per-call state shared by the three algorithms. The
// buffer is always a contiguous range of source lines [start, end); the first
// seeded lines of it were carried over from the previous chunk.
type scanner struct {
	logger   *slog.Logger
	probe    MemoryProbe
	algo     algorithm
	lines    []string
	language string
	filePath string
	opts     schema.ChunkingOptions
	isCode   bool

	chunks []schema.Chunk
	start  int
	end    int
	seeded int
	size   int
	score  float64
	stop   bool
}

func newScanner(
	s *TextSplitter,
	algo algorithm,
	lines []string,
	language, filePath string,
	opts schema.ChunkingOptions,
) *scanner {
	return &scanner{
		logger:   s.logger,
		probe:    s.probe,
		algo:     algo,
		lines:    lines,
		language: language,
		filePath: filePath,
		opts:     opts,
		isCode:   schema.IsCodeFile(language, filePath),
	}
}

// fresh is the number of buffered lines that were not seeded from the
// previous chunk. Every trigger counts fresh lines so a cut always makes
// progress.
func (sc *scanner) fresh() int {
	return sc.end - sc.start - sc.seeded
}

func (sc *scanner) buffered() int {
	return sc.end - sc.start
}

// projected is the buffer size in bytes once line i is appended.
func (sc *scanner) projected(i int) int {
	if sc.buffered() == 0 {
		return len(sc.lines[i])
	}
	return sc.size + 1 + len(sc.lines[i])
}

func (sc *scanner) push(i int, score float64) {
	if sc.buffered() == 0 {
		sc.start = i
		sc.end = i
	}
	sc.size = sc.projected(i)
	sc.end = i + 1
	sc.score += score
}

// cut finalizes the buffer as a chunk and resets it. Code files start the
// next chunk empty; other files keep a trailing window bounded by OverlapSize.
func (sc *scanner) cut() {
	if sc.fresh() <= 0 {
		return
	}

	body := sc.lines[sc.start:sc.end]
	content := strings.Join(body, "\n")
	meta := schema.ChunkMetadata{
		StartLine:  sc.start + 1,
		EndLine:    sc.end,
		Language:   sc.language,
		FilePath:   sc.filePath,
		Type:       sc.algo.chunkType(),
		Complexity: Complexity(content),
		Strategy:   string(sc.algo),
	}
	if sc.seeded > 0 {
		meta.HasOverlap = true
		meta.OverlapSize = len(strings.Join(body[:sc.seeded], "\n")) + 1
	}
	sc.chunks = append(sc.chunks, schema.NewChunk(content, meta))

	sc.seeded, sc.size, sc.score = 0, 0, 0
	if sc.isCode {
		sc.start = sc.end
		return
	}

	tail := overlap.WindowTail(body, sc.opts.OverlapSize, len(body)-1)
	if len(tail) == 0 {
		sc.start = sc.end
		return
	}
	sc.start = sc.end - len(tail)
	sc.seeded = len(tail)
	sc.size = len(strings.Join(tail, "\n"))
	if sc.algo == algorithmSemantic {
		for _, line := range tail {
			sc.score += lineScore(line)
		}
	}
}

// finish flushes whatever is buffered.
func (sc *scanner) finish() []schema.Chunk {
	sc.cut()
	return sc.chunks
}

// guard enforces the hard line ceiling and samples heap usage every
// memoryCheckEvery lines. It returns false once processing must stop.
func (sc *scanner) guard(ctx context.Context, i int) bool {
	if sc.stop {
		return false
	}

	if i >= maxProcessedLines {
		sc.logger.WarnContext(ctx, "Line ceiling reached, remaining input is not chunked",
			"file", sc.filePath, "limit", maxProcessedLines, "total_lines", len(sc.lines))
		sc.cut()
		sc.markTruncated()
		sc.stop = true
		return false
	}

	if i == 0 || i%memoryCheckEvery != 0 {
		return true
	}
	limit := sc.opts.MemoryLimitBytes()
	if limit == 0 || sc.probe == nil {
		return true
	}
	used := sc.probe()
	if used <= limit {
		return true
	}

	sc.logger.WarnContext(ctx, "Memory limit exceeded while splitting, returning partial result",
		"file", sc.filePath, "line", i, "heap_used", used, "limit", limit, "chunks", len(sc.chunks))
	if len(sc.chunks) == 0 {
		// keep at least what was read so the caller gets something back
		sc.cut()
	}
	sc.markTruncated()
	sc.start, sc.end, sc.seeded = 0, 0, 0
	sc.stop = true
	return false
}

func (sc *scanner) markTruncated() {
	if n := len(sc.chunks); n > 0 {
		sc.chunks[n-1].Metadata.Truncated = true
	}
}

func (sc *scanner) runLines(ctx context.Context) ([]schema.Chunk, error) {
	for i := range sc.lines {
		if !sc.guard(ctx, i) {
			return sc.chunks, nil
		}
		if sc.fresh() > 0 &&
			(sc.buffered() >= sc.opts.MaxLinesPerChunk || sc.projected(i) > sc.opts.MaxChunkSize) {
			sc.cut()
		}
		sc.push(i, 0)
	}
	return sc.finish(), nil
}
