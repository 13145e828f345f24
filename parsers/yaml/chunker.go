package yaml

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sevigo/chunkguard/schema"
)

var (
	ErrParse     = errors.New("failed to parse YAML")
	ErrNoEntries = errors.New("no YAML content found")
)

// sequenceGroupSize is the number of root sequence items kept in one chunk.
const sequenceGroupSize = 50

// entry is a top-level unit of a document: a mapping key with its value, a
// group of sequence items, or a lone scalar.
type entry struct {
	line       int
	identifier string
	node       *yaml.Node
	items      int
	document   int
}

// Split decodes every document in the stream and emits one chunk per entry.
// An entry runs until the next one starts; comments and document markers
// between entries go with the entry that follows them.
func (p *YamlPlugin) Split(
	ctx context.Context,
	content, language, filePath string,
	_ *schema.ChunkingOptions,
) ([]schema.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := collectEntries(content)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}
	if language == "" {
		language = p.Language()
	}

	lines := strings.Split(content, "\n")
	chunks := make([]schema.Chunk, 0, len(entries))
	for i, e := range entries {
		next := len(lines) + 1
		if i+1 < len(entries) {
			next = entries[i+1].line
		}
		end := entryEnd(lines, e.line, next-1)
		if e.line < 1 || e.line > end {
			continue
		}

		extra := map[string]string{
			"value_kind": kindName(e.node),
			"document":   strconv.Itoa(e.document),
		}
		if e.identifier != "" {
			extra["path"] = e.identifier
		}
		if e.items > 0 {
			extra["item_count"] = strconv.Itoa(e.items)
		} else if n := childCount(e.node); n > 0 {
			extra["child_count"] = strconv.Itoa(n)
		}
		chunks = append(chunks, schema.NewChunk(strings.Join(lines[e.line-1:end], "\n"), schema.ChunkMetadata{
			StartLine:  e.line,
			EndLine:    end,
			Language:   language,
			FilePath:   filePath,
			Type:       schema.ChunkTypeBlock,
			Identifier: e.identifier,
			Strategy:   p.Name(),
			Extra:      extra,
		}))
	}

	if first, last := schema.AttachUncovered(chunks, lines); first > 0 {
		chunks = append(chunks, schema.NewChunk(strings.Join(lines[first-1:last], "\n"), schema.ChunkMetadata{
			StartLine: first,
			EndLine:   last,
			Language:  language,
			FilePath:  filePath,
			Type:      schema.ChunkTypeBlock,
			Strategy:  p.Name(),
			Extra:     map[string]string{"value_kind": "trailing_text"},
		}))
	}

	p.logger.DebugContext(ctx, "Created YAML chunks", "count", len(chunks), "path", filePath)
	return chunks, nil
}

func collectEntries(content string) ([]entry, error) {
	dec := yaml.NewDecoder(strings.NewReader(content))
	var entries []entry
	for doc := 0; ; doc++ {
		var node yaml.Node
		if err := dec.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				return entries, nil
			}
			return nil, fmt.Errorf("%w: %w", ErrParse, err)
		}
		if len(node.Content) == 0 {
			continue
		}

		root := node.Content[0]
		switch root.Kind {
		case yaml.MappingNode:
			for i := 0; i+1 < len(root.Content); i += 2 {
				key := root.Content[i]
				entries = append(entries, entry{line: key.Line, identifier: key.Value, node: root.Content[i+1], document: doc})
			}
		case yaml.SequenceNode:
			for i := 0; i < len(root.Content); i += sequenceGroupSize {
				last := min(i+sequenceGroupSize, len(root.Content)) - 1
				entries = append(entries, entry{
					line:       root.Content[i].Line,
					identifier: fmt.Sprintf("[%d-%d]", i, last),
					node:       root,
					items:      last - i + 1,
					document:   doc,
				})
			}
		default:
			if root.Kind == yaml.ScalarNode && root.Tag == "!!null" && root.Value == "" {
				continue
			}
			entries = append(entries, entry{line: root.Line, node: root, document: doc})
		}
	}
}

// entryEnd walks back from limit over blank lines, comments and document
// markers so that they stay with the following entry.
func entryEnd(lines []string, start, limit int) int {
	end := min(limit, len(lines))
	for end > start {
		trimmed := strings.TrimSpace(lines[end-1])
		if trimmed != "" && !strings.HasPrefix(trimmed, "#") && trimmed != "---" && trimmed != "..." {
			break
		}
		end--
	}
	return end
}

func kindName(n *yaml.Node) string {
	switch n.Kind {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.AliasNode:
		return "alias"
	default:
		return "scalar"
	}
}

func childCount(n *yaml.Node) int {
	switch n.Kind {
	case yaml.MappingNode:
		return len(n.Content) / 2
	case yaml.SequenceNode:
		return len(n.Content)
	}
	return 0
}
