// Package markdown splits Markdown documents into heading sections using the
// goldmark parser.
package markdown

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/sevigo/chunkguard/schema"
)

const frontMatterSeparator = "---"

// MarkdownPlugin chunks Markdown files along their heading structure.
type MarkdownPlugin struct {
	logger         *slog.Logger
	markdown       goldmark.Markdown
	maxSectionSize int
}

type Option func(*MarkdownPlugin)

// WithMaxSectionSize bounds sections produced through ChunkMarkdown, which
// carries no per-call options. Zero disables the bound.
func WithMaxSectionSize(size int) Option {
	return func(p *MarkdownPlugin) {
		p.maxSectionSize = max(0, size)
	}
}

// NewMarkdownPlugin creates a new Markdown language plugin with goldmark
func NewMarkdownPlugin(logger *slog.Logger, opts ...Option) *MarkdownPlugin {
	if logger == nil {
		logger = slog.Default()
	}
	plugin := &MarkdownPlugin{
		logger:         logger,
		maxSectionSize: schema.DefaultChunkingOptions().MaxChunkSize,
	}
	for _, opt := range opts {
		opt(plugin)
	}
	plugin.markdown = goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Table,
			extension.Strikethrough,
			extension.TaskList,
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return plugin
}

func (p *MarkdownPlugin) Name() string {
	return "markdown"
}

func (p *MarkdownPlugin) Language() string {
	return "markdown"
}

func (p *MarkdownPlugin) Description() string {
	return "One chunk per heading section, oversized sections cut between top-level blocks"
}

// Extensions returns file extensions for Markdown
func (p *MarkdownPlugin) Extensions() []string {
	return []string{".md", ".markdown", ".mdx"}
}

func (p *MarkdownPlugin) SupportsLanguage(language string) bool {
	return strings.EqualFold(language, "markdown") || strings.EqualFold(language, "md")
}

// CanHandle determines if this plugin can process the given file
func (p *MarkdownPlugin) CanHandle(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".mdx":
		return true
	}
	return false
}
