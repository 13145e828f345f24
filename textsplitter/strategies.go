package textsplitter

import (
	"context"
	"fmt"
	"strings"

	"github.com/sevigo/chunkguard/schema"
)

// SemanticStrategy exposes SplitSemantic behind the split strategy contract.
type SemanticStrategy struct {
	splitter *TextSplitter
}

func NewSemanticStrategy(s *TextSplitter) *SemanticStrategy {
	return &SemanticStrategy{splitter: s}
}

func (st *SemanticStrategy) Split(ctx context.Context, content, language, filePath string, opts *schema.ChunkingOptions) ([]schema.Chunk, error) {
	return st.splitter.SplitSemantic(ctx, content, language, filePath, opts)
}

func (st *SemanticStrategy) Name() string { return string(algorithmSemantic) }

func (st *SemanticStrategy) SupportsLanguage(language string) bool {
	return schema.IsCodeLanguage(language) || isPlainText(language)
}

func (st *SemanticStrategy) Description() string {
	return "Splits at declaration, block and comment boundaries scored per line"
}

// BracketStrategy exposes SplitBracket behind the split strategy contract.
type BracketStrategy struct {
	splitter *TextSplitter
}

func NewBracketStrategy(s *TextSplitter) *BracketStrategy {
	return &BracketStrategy{splitter: s}
}

func (st *BracketStrategy) Split(ctx context.Context, content, language, filePath string, opts *schema.ChunkingOptions) ([]schema.Chunk, error) {
	return st.splitter.SplitBracket(ctx, content, language, filePath, opts)
}

func (st *BracketStrategy) Name() string { return string(algorithmBracket) }

func (st *BracketStrategy) SupportsLanguage(language string) bool {
	if _, ok := markupLanguages[strings.ToLower(language)]; ok {
		return true
	}
	return schema.IsCodeLanguage(language) || strings.EqualFold(language, "json")
}

func (st *BracketStrategy) Description() string {
	return "Splits where bracket and tag nesting returns to zero"
}

// LineStrategy exposes SplitLines behind the split strategy contract.
type LineStrategy struct {
	splitter *TextSplitter
}

func NewLineStrategy(s *TextSplitter) *LineStrategy {
	return &LineStrategy{splitter: s}
}

func (st *LineStrategy) Split(ctx context.Context, content, language, filePath string, opts *schema.ChunkingOptions) ([]schema.Chunk, error) {
	return st.splitter.SplitLines(ctx, content, language, filePath, opts)
}

func (st *LineStrategy) Name() string                 { return string(algorithmLine) }
func (st *LineStrategy) SupportsLanguage(string) bool { return true }
func (st *LineStrategy) Description() string          { return "Fixed line windows bounded by size" }

// GenericStrategy lets the option toggles pick the algorithm.
type GenericStrategy struct {
	splitter *TextSplitter
}

func NewGenericStrategy(s *TextSplitter) *GenericStrategy {
	return &GenericStrategy{splitter: s}
}

func (st *GenericStrategy) Split(ctx context.Context, content, language, filePath string, opts *schema.ChunkingOptions) ([]schema.Chunk, error) {
	return st.splitter.Split(ctx, content, language, filePath, opts)
}

func (st *GenericStrategy) Name() string                 { return string(schema.ChunkTypeGeneric) }
func (st *GenericStrategy) SupportsLanguage(string) bool { return true }

func (st *GenericStrategy) Description() string {
	return "Semantic, bracket or line splitting chosen by options, markdown aware"
}

func isPlainText(language string) bool {
	switch strings.ToLower(language) {
	case "", "text", "plaintext", "txt", schema.LanguageUnknown:
		return true
	}
	return false
}

// StructuredSplitter is a language-aware splitter, such as a parser plugin,
// that works on whole files.
type StructuredSplitter interface {
	Split(ctx context.Context, content, language, filePath string, opts *schema.ChunkingOptions) ([]schema.Chunk, error)
	Name() string
	SupportsLanguage(language string) bool
	Description() string
}

// StructuredStrategy holds a structure-aware splitter to the rules every text
// algorithm follows: small files stay whole and input beyond the line ceiling
// is not chunked.
type StructuredStrategy struct {
	splitter *TextSplitter
	base     StructuredSplitter
}

func NewStructuredStrategy(s *TextSplitter, base StructuredSplitter) *StructuredStrategy {
	return &StructuredStrategy{splitter: s, base: base}
}

func (st *StructuredStrategy) Split(ctx context.Context, content, language, filePath string, opts *schema.ChunkingOptions) ([]schema.Chunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: file %s", ErrEmptyContent, filePath)
	}
	lines := splitLines(content)
	if isSmallFile(content, lines) {
		return []schema.Chunk{wholeFileChunk(content, lines, language, filePath)}, nil
	}
	if len(lines) <= maxProcessedLines {
		return st.base.Split(ctx, content, language, filePath, opts)
	}

	st.splitter.logger.WarnContext(ctx, "Line ceiling reached, remaining input is not chunked",
		"file", filePath, "strategy", st.base.Name(), "limit", maxProcessedLines, "total_lines", len(lines))
	head := strings.Join(lines[:maxProcessedLines], "\n") + "\n"
	chunks, err := st.base.Split(ctx, head, language, filePath, opts)
	if err != nil {
		// the cut may land inside a construct the parser cannot read
		return st.splitter.SplitLines(ctx, content, language, filePath, opts)
	}
	if n := len(chunks); n > 0 {
		chunks[n-1].Metadata.Truncated = true
	}
	return chunks, nil
}

func (st *StructuredStrategy) Name() string { return st.base.Name() }
func (st *StructuredStrategy) SupportsLanguage(language string) bool {
	return st.base.SupportsLanguage(language)
}
func (st *StructuredStrategy) Description() string { return st.base.Description() }
