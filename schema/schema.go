package schema

import (
	"fmt"
	"maps"
)

type Document struct {
	PageContent string
	Metadata    map[string]any
}

func (d Document) String() string {
	return d.PageContent
}

func NewDocument(content string, metadata map[string]any) Document {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	return Document{
		PageContent: content,
		Metadata:    metadata,
	}
}

// ChunkType tags the algorithm or structure that produced a chunk.
type ChunkType string

const (
	ChunkTypeSemantic    ChunkType = "semantic"
	ChunkTypeBracket     ChunkType = "bracket"
	ChunkTypeLine        ChunkType = "line"
	ChunkTypeGeneric     ChunkType = "generic"
	ChunkTypeMarkdown    ChunkType = "markdown"
	ChunkTypeFunction    ChunkType = "function"
	ChunkTypeType        ChunkType = "type"
	ChunkTypeDeclaration ChunkType = "declaration"
	ChunkTypeBlock       ChunkType = "block"
	ChunkTypeFallback    ChunkType = "fallback"
)

// Chunk is a contiguous (or intentionally overlapping) slice of source text.
type Chunk struct {
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

// ChunkMetadata describes where a chunk came from. StartLine and EndLine are
// 1-based and inclusive.
type ChunkMetadata struct {
	StartLine      int               `json:"startLine"`
	EndLine        int               `json:"endLine"`
	Language       string            `json:"language"`
	FilePath       string            `json:"filePath,omitempty"`
	Type           ChunkType         `json:"type"`
	Complexity     int               `json:"complexity"`
	Size           int               `json:"size,omitempty"`
	LineCount      int               `json:"lineCount,omitempty"`
	HasOverlap     bool              `json:"hasOverlap,omitempty"`
	OverlapSize    int               `json:"overlapSize,omitempty"`
	Identifier     string            `json:"identifier,omitempty"`
	Strategy       string            `json:"strategy,omitempty"`
	FallbackReason string            `json:"fallbackReason,omitempty"`
	Truncated      bool              `json:"truncated,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}

// NewChunk builds a chunk and fills the size fields from content.
func NewChunk(content string, meta ChunkMetadata) Chunk {
	c := Chunk{Content: content, Metadata: meta}
	c.Refresh()
	return c
}

// Refresh recomputes Size and LineCount after the content changed.
func (c *Chunk) Refresh() {
	c.Metadata.Size = len(c.Content)
	c.Metadata.LineCount = c.Metadata.EndLine - c.Metadata.StartLine + 1
	if c.Metadata.LineCount < 1 {
		c.Metadata.LineCount = 1
	}
}

// SetExtra records a free-form annotation on the chunk.
func (c *Chunk) SetExtra(key, value string) {
	if c.Metadata.Extra == nil {
		c.Metadata.Extra = make(map[string]string)
	}
	c.Metadata.Extra[key] = value
}

// Clone returns a copy that shares no mutable state with c.
func (c Chunk) Clone() Chunk {
	out := c
	if c.Metadata.Extra != nil {
		out.Metadata.Extra = maps.Clone(c.Metadata.Extra)
	}
	return out
}

func (c Chunk) String() string {
	return fmt.Sprintf("%s[%d-%d] %d bytes", c.Metadata.Type, c.Metadata.StartLine, c.Metadata.EndLine, len(c.Content))
}

// ValidateLineRange reports the first chunk that violates 1 <= start <= end <= totalLines.
func ValidateLineRange(chunks []Chunk, totalLines int) error {
	for i, c := range chunks {
		if c.Metadata.StartLine < 1 || c.Metadata.StartLine > c.Metadata.EndLine || c.Metadata.EndLine > totalLines {
			return fmt.Errorf("chunk %d has invalid line range %d-%d (total %d)",
				i, c.Metadata.StartLine, c.Metadata.EndLine, totalLines)
		}
	}
	return nil
}
