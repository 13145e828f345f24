package markdown

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// FrontMatter is the YAML block delimited by "---" at the top of a document.
type FrontMatter struct {
	Properties map[string]string
	LineStart  int
	LineEnd    int
}

type heading struct {
	Level int
	Text  string
	Line  int
}

type codeBlock struct {
	Language string
	Line     int
}

// document holds what the chunker needs from the parse. All line numbers are
// 1-based positions in the original content.
type document struct {
	Lines       []string
	FrontMatter *FrontMatter
	Headings    []heading
	Blocks      []int
	CodeBlocks  []codeBlock
	Title       string
}

func (p *MarkdownPlugin) parseMarkdown(content, path string) *document {
	lines := strings.Split(content, "\n")
	doc := &document{Lines: lines}

	offset := 0
	if fm, end := p.parseFrontMatter(lines); fm != nil {
		doc.FrontMatter = fm
		offset = end + 1
	}

	if offset < len(lines) {
		source := []byte(strings.Join(lines[offset:], "\n"))
		root := p.markdown.Parser().Parse(text.NewReader(source))
		p.collect(root, source, offset, doc)
	}

	doc.Title = deriveTitle(doc, path)
	return doc
}

// collect walks the top-level blocks. Only top-level headings open sections,
// so a "#" inside a list item or a fenced block never does.
func (p *MarkdownPlugin) collect(root ast.Node, source []byte, offset int, doc *document) {
	lineOf := func(pos int) int {
		return bytes.Count(source[:pos], []byte("\n")) + offset + 1
	}

	for child := root.FirstChild(); child != nil; child = child.NextSibling() {
		switch n := child.(type) {
		case *ast.Heading:
			if n.Lines().Len() == 0 {
				break
			}
			line := lineOf(n.Lines().At(0).Start)
			doc.Headings = append(doc.Headings, heading{
				Level: n.Level,
				Text:  segmentsText(n.Lines(), source),
				Line:  line,
			})
			doc.Blocks = append(doc.Blocks, line)
			continue
		case *ast.FencedCodeBlock:
			if n.Lines().Len() == 0 {
				break
			}
			// The opening fence sits on the line before the first content line.
			line := lineOf(n.Lines().At(0).Start) - 1
			doc.CodeBlocks = append(doc.CodeBlocks, codeBlock{
				Language: string(n.Language(source)),
				Line:     line,
			})
			doc.Blocks = append(doc.Blocks, line)
			continue
		}

		if pos, ok := firstSegment(child); ok {
			doc.Blocks = append(doc.Blocks, lineOf(pos))
		}
	}
}

// firstSegment finds the first source offset covered by a block. Container
// blocks such as lists and quotes carry no lines themselves.
func firstSegment(node ast.Node) (int, bool) {
	pos, found := 0, false
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if n.Type() == ast.TypeBlock && n.Lines().Len() > 0 {
			pos, found = n.Lines().At(0).Start, true
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return pos, found
}

func segmentsText(segments *text.Segments, source []byte) string {
	var sb strings.Builder
	for i := 0; i < segments.Len(); i++ {
		seg := segments.At(i)
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.Write(seg.Value(source))
	}
	return strings.TrimSpace(sb.String())
}

// parseFrontMatter returns the front matter and the 0-based index of its
// closing separator. Malformed YAML still counts as front matter, it just
// yields no properties.
func (p *MarkdownPlugin) parseFrontMatter(lines []string) (*FrontMatter, int) {
	if len(lines) < 3 || strings.TrimRight(lines[0], " \t\r") != frontMatterSeparator {
		return nil, -1
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], " \t\r") == frontMatterSeparator {
			end = i
			break
		}
	}
	if end <= 1 {
		return nil, -1
	}

	fm := &FrontMatter{
		Properties: make(map[string]string),
		LineStart:  1,
		LineEnd:    end + 1,
	}

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:end], "\n")), &raw); err != nil {
		p.logger.Debug("Failed to parse YAML front matter", "error", err)
		return fm, end
	}
	for key, value := range raw {
		switch value.(type) {
		case map[string]any, []any:
			continue
		}
		fm.Properties[key] = fmt.Sprint(value)
	}
	return fm, end
}

// deriveTitle prefers a front matter title, then the first H1, then the file name.
func deriveTitle(doc *document, path string) string {
	if doc.FrontMatter != nil {
		if title := doc.FrontMatter.Properties["title"]; title != "" {
			return title
		}
	}
	for _, h := range doc.Headings {
		if h.Level == 1 && h.Text != "" {
			return h.Text
		}
	}
	return titleFromFilename(path)
}

func titleFromFilename(path string) string {
	if path == "" {
		return "Untitled"
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "Untitled"
	}
	return cases.Title(language.English).String(name)
}
