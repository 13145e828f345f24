package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sevigo/chunkguard/overlap"
	"github.com/sevigo/chunkguard/schema"
)

// OverlapDecorator injects trailing-context overlap after the wrapped
// strategy ran. Non-code files always get overlap. Code files only go through
// the calculator when a chunk exceeds MaxChunkSize, since structural chunks
// already end on meaningful boundaries.
type OverlapDecorator struct {
	base       SplitStrategy
	calculator overlap.Calculator
	logger     *slog.Logger
}

var _ SplitStrategy = (*OverlapDecorator)(nil)

func NewOverlapDecorator(base SplitStrategy, calculator overlap.Calculator, logger *slog.Logger) *OverlapDecorator {
	if logger == nil {
		logger = slog.Default()
	}
	if calculator == nil {
		calculator = overlap.New(logger)
	}
	return &OverlapDecorator{
		base:       base,
		calculator: calculator,
		logger:     logger.With("component", "overlap_decorator"),
	}
}

func (d *OverlapDecorator) Split(
	ctx context.Context,
	content, language, filePath string,
	opts *schema.ChunkingOptions,
) ([]schema.Chunk, error) {
	chunks, err := d.base.Split(ctx, content, language, filePath, opts)
	if err != nil {
		return nil, err
	}
	if len(chunks) <= 1 {
		return chunks, nil
	}

	o := resolveOptions(opts)
	if schema.IsCodeFile(language, filePath) && !anyOversized(chunks, o.MaxChunkSize) {
		return chunks, nil
	}

	withOverlap, err := d.calculator.AddOverlap(ctx, chunks, content, o)
	if err != nil {
		return nil, fmt.Errorf("%s: add overlap: %w", d.Name(), err)
	}
	d.logger.DebugContext(ctx, "Applied overlap",
		"strategy", d.base.Name(), "file", filePath, "chunks_before", len(chunks), "chunks_after", len(withOverlap))
	return withOverlap, nil
}

func anyOversized(chunks []schema.Chunk, maxSize int) bool {
	for _, c := range chunks {
		if len(c.Content) > maxSize {
			return true
		}
	}
	return false
}

func (d *OverlapDecorator) Name() string {
	return d.base.Name() + "_with_overlap"
}

func (d *OverlapDecorator) SupportsLanguage(language string) bool {
	return d.base.SupportsLanguage(language)
}

func (d *OverlapDecorator) Description() string {
	return d.base.Description() + " (with overlap)"
}
