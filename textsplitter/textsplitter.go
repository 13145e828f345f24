package textsplitter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sevigo/chunkguard/memguard"
	"github.com/sevigo/chunkguard/overlap"
	"github.com/sevigo/chunkguard/schema"
)

// TextSplitter segments raw text with one of three algorithms (semantic
// boundaries, bracket/tag balance, plain line windows) and post-processes the
// result. Each call owns its buffers, so a TextSplitter can be shared.
type TextSplitter struct {
	logger   *slog.Logger
	probe    MemoryProbe
	markdown MarkdownSplitter
	overlap  overlap.Calculator

	mu   sync.RWMutex
	opts schema.ChunkingOptions
}

func New(logger *slog.Logger, opts ...Option) *TextSplitter {
	if logger == nil {
		logger = slog.Default()
	}

	o := options{
		chunking: schema.DefaultChunkingOptions(),
		probe:    func() uint64 { return memguard.RuntimeSampler().HeapUsed },
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.overlap == nil {
		o.overlap = overlap.New(logger)
	}

	return &TextSplitter{
		logger:   logger.With("component", "text_splitter"),
		probe:    o.probe,
		markdown: o.markdown,
		overlap:  o.overlap,
		opts:     o.chunking,
	}
}

// Options returns the options used when a split call passes none.
func (s *TextSplitter) Options() schema.ChunkingOptions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// SetOptions merges the non-zero fields of patch into the current options.
func (s *TextSplitter) SetOptions(patch schema.ChunkingOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged, err := s.opts.Merge(patch)
	if err != nil {
		return err
	}
	if err := merged.Validate(); err != nil {
		return err
	}
	s.opts = merged
	return nil
}

// Split picks the algorithm from the option toggles: semantic, then bracket,
// then line windows. Markdown goes to the markdown splitter when one is set.
func (s *TextSplitter) Split(
	ctx context.Context,
	content, language, filePath string,
	opts *schema.ChunkingOptions,
) ([]schema.Chunk, error) {
	o := s.resolve(opts)

	switch {
	case o.EnableSemanticDetection:
		return s.split(ctx, algorithmSemantic, content, language, filePath, o, true)
	case o.EnableBracketBalance:
		return s.split(ctx, algorithmBracket, content, language, filePath, o, true)
	default:
		return s.split(ctx, algorithmLine, content, language, filePath, o, true)
	}
}

// SplitSemantic runs the semantic-boundary algorithm regardless of toggles.
func (s *TextSplitter) SplitSemantic(
	ctx context.Context,
	content, language, filePath string,
	opts *schema.ChunkingOptions,
) ([]schema.Chunk, error) {
	return s.split(ctx, algorithmSemantic, content, language, filePath, s.resolve(opts), false)
}

// SplitBracket runs the bracket/tag-balance algorithm regardless of toggles.
func (s *TextSplitter) SplitBracket(
	ctx context.Context,
	content, language, filePath string,
	opts *schema.ChunkingOptions,
) ([]schema.Chunk, error) {
	return s.split(ctx, algorithmBracket, content, language, filePath, s.resolve(opts), false)
}

// SplitLines runs the line-window algorithm. It is also the fallback for the
// other two.
func (s *TextSplitter) SplitLines(
	ctx context.Context,
	content, language, filePath string,
	opts *schema.ChunkingOptions,
) ([]schema.Chunk, error) {
	return s.split(ctx, algorithmLine, content, language, filePath, s.resolve(opts), false)
}

func (s *TextSplitter) resolve(opts *schema.ChunkingOptions) schema.ChunkingOptions {
	if opts == nil {
		return s.Options()
	}
	return opts.WithDefaults()
}

func (s *TextSplitter) split(
	ctx context.Context,
	algo algorithm,
	content, language, filePath string,
	opts schema.ChunkingOptions,
	allowMarkdown bool,
) ([]schema.Chunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: file %s", ErrEmptyContent, filePath)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lines := splitLines(content)
	if isSmallFile(content, lines) {
		return []schema.Chunk{wholeFileChunk(content, lines, language, filePath)}, nil
	}

	if allowMarkdown && s.markdown != nil && schema.IsMarkdown(language, filePath) {
		chunks, err := s.splitMarkdown(ctx, content, lines, language, filePath, opts)
		if err == nil {
			return chunks, nil
		}
		s.logger.WarnContext(ctx, "Markdown splitter failed, falling back to line algorithm",
			"file", filePath, "error", err)
		algo = algorithmLine
	}

	chunks, err := s.runSafely(ctx, algo, lines, language, filePath, opts)
	if err != nil && algo != algorithmLine {
		s.logger.WarnContext(ctx, "Split algorithm failed, falling back to line algorithm",
			"algorithm", string(algo), "file", filePath, "error", err)
		chunks, err = s.runSafely(ctx, algorithmLine, lines, language, filePath, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("line algorithm failed for %s: %w", filePath, err)
	}

	return s.postProcess(ctx, chunks, lines, opts), nil
}

// runSafely converts a panic inside an algorithm into an error so that the
// caller can retry with the line algorithm.
func (s *TextSplitter) runSafely(
	ctx context.Context,
	algo algorithm,
	lines []string,
	language, filePath string,
	opts schema.ChunkingOptions,
) (chunks []schema.Chunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			chunks = nil
			err = fmt.Errorf("%w: %s: %v", ErrAlgorithmPanicked, algo, r)
		}
	}()

	sc := newScanner(s, algo, lines, language, filePath, opts)
	switch algo {
	case algorithmSemantic:
		return sc.runSemantic(ctx)
	case algorithmBracket:
		return sc.runBracket(ctx)
	case algorithmLine:
		return sc.runLines(ctx)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algo)
	}
}

func (s *TextSplitter) splitMarkdown(
	ctx context.Context,
	content string,
	lines []string,
	language, filePath string,
	opts schema.ChunkingOptions,
) ([]schema.Chunk, error) {
	chunks, err := s.markdown.ChunkMarkdown(content, filePath)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: markdown splitter produced no chunks", ErrEmptyContent)
	}
	if err := schema.ValidateLineRange(chunks, len(lines)); err != nil {
		return nil, err
	}

	for i := range chunks {
		if chunks[i].Metadata.Language == "" {
			chunks[i].Metadata.Language = language
		}
		chunks[i].Metadata.FilePath = filePath
		chunks[i].Metadata.Complexity = Complexity(chunks[i].Content)
		chunks[i].Refresh()
	}

	chunks = s.postProcess(ctx, chunks, lines, opts)
	withOverlap, err := s.overlap.AddOverlap(ctx, chunks, content, opts)
	if err != nil {
		return nil, fmt.Errorf("markdown overlap: %w", err)
	}
	return withOverlap, nil
}

// splitLines drops the empty element produced by a trailing newline.
func splitLines(content string) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// LineCount is the number of lines the splitter sees in content; a trailing
// newline does not start a line.
func LineCount(content string) int {
	return len(splitLines(content))
}

func isSmallFile(content string, lines []string) bool {
	return len(content) < smallFileChars || len(lines) < smallFileLines
}

func wholeFileChunk(content string, lines []string, language, filePath string) schema.Chunk {
	return schema.NewChunk(content, schema.ChunkMetadata{
		StartLine:  1,
		EndLine:    max(1, len(lines)),
		Language:   language,
		FilePath:   filePath,
		Type:       schema.ChunkTypeGeneric,
		Complexity: Complexity(content),
		Strategy:   string(schema.ChunkTypeGeneric),
	})
}
