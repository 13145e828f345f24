package markdown

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"

	"github.com/sevigo/chunkguard/schema"
)

var ErrNoContent = errors.New("markdown document has no content")

// section is a line range [Start, End] opened by Heading. The preamble
// before the first heading has no heading.
type section struct {
	Heading *heading
	Path    []string
	Start   int
	End     int
}

// ChunkMarkdown splits a document into heading sections bounded by the
// plugin's section size.
func (p *MarkdownPlugin) ChunkMarkdown(content, filePath string) ([]schema.Chunk, error) {
	return p.chunk(context.Background(), content, filePath, p.maxSectionSize)
}

// Split implements the split strategy contract using opts.MaxChunkSize as the
// section bound.
func (p *MarkdownPlugin) Split(
	ctx context.Context,
	content, _, filePath string,
	opts *schema.ChunkingOptions,
) ([]schema.Chunk, error) {
	maxSize := p.maxSectionSize
	if opts != nil {
		maxSize = opts.WithDefaults().MaxChunkSize
	}
	return p.chunk(ctx, content, filePath, maxSize)
}

func (p *MarkdownPlugin) chunk(ctx context.Context, content, filePath string, maxSize int) ([]schema.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrNoContent
	}

	doc := p.parseMarkdown(content, filePath)
	sections := mergeEmpty(buildSections(doc), doc.Lines)

	var chunks []schema.Chunk
	for _, sec := range sections {
		pieces := splitSection(sec, doc, maxSize)
		for i, piece := range pieces {
			chunks = append(chunks, p.toChunk(piece, doc, filePath, i, len(pieces)))
		}
	}

	p.logger.DebugContext(ctx, "Created markdown chunks", "count", len(chunks), "path", filePath, "title", doc.Title)
	return chunks, nil
}

// buildSections opens a section at every top-level heading. Sections are
// contiguous and together cover every line of the document.
func buildSections(doc *document) []section {
	total := len(doc.Lines)
	var sections []section
	var stack []heading

	if len(doc.Headings) == 0 || doc.Headings[0].Line > 1 {
		end := total
		if len(doc.Headings) > 0 {
			end = doc.Headings[0].Line - 1
		}
		sections = append(sections, section{Start: 1, End: end})
	}

	for i := range doc.Headings {
		h := doc.Headings[i]
		for len(stack) > 0 && stack[len(stack)-1].Level >= h.Level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, h)

		path := make([]string, 0, len(stack))
		for _, s := range stack {
			path = append(path, s.Text)
		}

		end := total
		if i+1 < len(doc.Headings) {
			end = doc.Headings[i+1].Line - 1
		}
		sections = append(sections, section{Heading: &doc.Headings[i], Path: path, Start: h.Line, End: end})
	}
	return sections
}

// mergeEmpty folds sections without body text into their successor, so a
// heading directly followed by a subheading travels with it. A trailing
// empty section folds back into its predecessor.
func mergeEmpty(sections []section, lines []string) []section {
	out := make([]section, 0, len(sections))
	var carry *section
	for _, sec := range sections {
		if carry != nil {
			sec.Start = carry.Start
			if carry.Heading != nil {
				sec.Heading = carry.Heading
				sec.Path = carry.Path
			}
			carry = nil
		}
		if !hasBody(sec, lines) {
			carry = &sec
			continue
		}
		out = append(out, sec)
	}
	if carry != nil {
		if len(out) == 0 {
			return []section{*carry}
		}
		out[len(out)-1].End = carry.End
	}
	return out
}

func hasBody(sec section, lines []string) bool {
	first := sec.Start
	if sec.Heading != nil {
		first = sec.Heading.Line + 1
	}
	for i := first; i <= sec.End; i++ {
		if strings.TrimSpace(lines[i-1]) != "" && !isSetextUnderline(lines[i-1], sec, i) {
			return true
		}
	}
	return false
}

func isSetextUnderline(line string, sec section, lineNo int) bool {
	if sec.Heading == nil || lineNo != sec.Heading.Line+1 {
		return false
	}
	trimmed := strings.TrimSpace(line)
	return trimmed != "" && (strings.Trim(trimmed, "=") == "" || strings.Trim(trimmed, "-") == "")
}

// splitSection cuts a section larger than maxSize between top-level blocks.
// A single block above maxSize is kept whole.
func splitSection(sec section, doc *document, maxSize int) []section {
	if maxSize <= 0 || rangeSize(doc.Lines, sec.Start, sec.End) <= maxSize {
		return []section{sec}
	}

	var cuts []int
	for _, line := range doc.Blocks {
		if line > sec.Start && line <= sec.End {
			cuts = append(cuts, line)
		}
	}
	slices.Sort(cuts)
	cuts = slices.Compact(cuts)

	var pieces []section
	start := sec.Start
	prevCut := sec.Start
	for _, cut := range cuts {
		if rangeSize(doc.Lines, start, cut-1) > maxSize && prevCut > start {
			piece := sec
			piece.Start, piece.End = start, prevCut-1
			pieces = append(pieces, piece)
			start = prevCut
		}
		prevCut = cut
	}
	if rangeSize(doc.Lines, start, sec.End) > maxSize && prevCut > start {
		piece := sec
		piece.Start, piece.End = start, prevCut-1
		pieces = append(pieces, piece)
		start = prevCut
	}
	last := sec
	last.Start = start
	return append(pieces, last)
}

func rangeSize(lines []string, start, end int) int {
	if start > end {
		return 0
	}
	size := end - start
	for i := start; i <= end; i++ {
		size += len(lines[i-1])
	}
	return size
}

func (p *MarkdownPlugin) toChunk(sec section, doc *document, filePath string, part, parts int) schema.Chunk {
	identifier := doc.Title
	level := 0
	if sec.Heading != nil {
		identifier = sec.Heading.Text
		level = sec.Heading.Level
	}

	c := schema.NewChunk(strings.Join(doc.Lines[sec.Start-1:sec.End], "\n"), schema.ChunkMetadata{
		StartLine:  sec.Start,
		EndLine:    sec.End,
		Language:   p.Language(),
		FilePath:   filePath,
		Type:       schema.ChunkTypeMarkdown,
		Identifier: identifier,
		Strategy:   p.Name(),
	})
	c.SetExtra("title", doc.Title)
	if level > 0 {
		c.SetExtra("level", strconv.Itoa(level))
		c.SetExtra("section_path", strings.Join(sec.Path, " > "))
	}
	if parts > 1 {
		c.SetExtra("part", strconv.Itoa(part+1))
		c.SetExtra("parts", strconv.Itoa(parts))
	}

	var langs []string
	for _, cb := range doc.CodeBlocks {
		if cb.Line >= sec.Start && cb.Line <= sec.End && cb.Language != "" && !slices.Contains(langs, cb.Language) {
			langs = append(langs, cb.Language)
		}
	}
	if len(langs) > 0 {
		c.SetExtra("code_languages", strings.Join(langs, ","))
	}

	if fm := doc.FrontMatter; fm != nil && sec.Start <= fm.LineEnd {
		c.SetExtra("front_matter", "true")
		for key, value := range fm.Properties {
			c.SetExtra("fm."+key, value)
		}
	}
	return c
}
