package markdown_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/chunkguard/parsers/markdown"
	logger "github.com/sevigo/chunkguard/parsers/testing"
	"github.com/sevigo/chunkguard/schema"
)

func newPlugin(t *testing.T, opts ...markdown.Option) *markdown.MarkdownPlugin {
	t.Helper()
	log, _ := logger.NewTestLogger(t)
	return markdown.NewMarkdownPlugin(log, opts...)
}

func TestMarkdownPlugin_BasicInfo(t *testing.T) {
	plugin := newPlugin(t)
	assert.Equal(t, "markdown", plugin.Name())
	assert.Equal(t, "markdown", plugin.Language())
	assert.Contains(t, plugin.Extensions(), ".md")
	assert.True(t, plugin.CanHandle("docs/README.MD"))
	assert.False(t, plugin.CanHandle("main.go"))
	assert.True(t, plugin.SupportsLanguage("md"))
}

func TestChunkMarkdown_HeadingSections(t *testing.T) {
	content := strings.Join([]string{
		"---",
		"title: Test Document",
		"author: Test User",
		"---",
		"",
		"# Introduction",
		"",
		"This is a test markdown document.",
		"",
		"## Section 1",
		"",
		"Some content for section 1.",
		"",
		"### Subsection 1.1",
		"",
		"```go",
		"func Hello() {}",
		"```",
		"",
		"## Section 2",
		"",
		"Another section.",
	}, "\n")

	chunks, err := newPlugin(t).ChunkMarkdown(content, "docs/test.md")
	require.NoError(t, err)
	require.Len(t, chunks, 5)
	require.NoError(t, schema.ValidateLineRange(chunks, 22))

	tests := []struct {
		identifier string
		start, end int
	}{
		{"Test Document", 1, 5},
		{"Introduction", 6, 9},
		{"Section 1", 10, 13},
		{"Subsection 1.1", 14, 19},
		{"Section 2", 20, 22},
	}
	for i, tt := range tests {
		c := chunks[i]
		assert.Equal(t, tt.identifier, c.Metadata.Identifier, "chunk %d", i)
		assert.Equal(t, tt.start, c.Metadata.StartLine, "chunk %d", i)
		assert.Equal(t, tt.end, c.Metadata.EndLine, "chunk %d", i)
		assert.Equal(t, schema.ChunkTypeMarkdown, c.Metadata.Type)
		assert.Equal(t, "Test Document", c.Metadata.Extra["title"])
	}

	assert.Equal(t, "true", chunks[0].Metadata.Extra["front_matter"])
	assert.Equal(t, "Test User", chunks[0].Metadata.Extra["fm.author"])
	assert.Equal(t, "Introduction > Section 1 > Subsection 1.1", chunks[3].Metadata.Extra["section_path"])
	assert.Equal(t, "go", chunks[3].Metadata.Extra["code_languages"])
	assert.Equal(t, "2", chunks[4].Metadata.Extra["level"])
	assert.Equal(t, "Introduction > Section 2", chunks[4].Metadata.Extra["section_path"])
	assert.True(t, strings.HasPrefix(chunks[4].Content, "## Section 2"))
}

func TestChunkMarkdown_EmptyHeadingTravelsWithSubsection(t *testing.T) {
	chunks, err := newPlugin(t).ChunkMarkdown("# Doc\n## Intro\ntext here\n", "doc.md")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].Metadata.StartLine)
	assert.Equal(t, 4, chunks[0].Metadata.EndLine)
	assert.Equal(t, "Doc", chunks[0].Metadata.Identifier)
}

func TestChunkMarkdown_HashInsideFenceIsNotAHeading(t *testing.T) {
	content := "# Title\ntext\n```sh\n# comment\n```"
	chunks, err := newPlugin(t).ChunkMarkdown(content, "run.md")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 5, chunks[0].Metadata.EndLine)
	assert.Equal(t, "sh", chunks[0].Metadata.Extra["code_languages"])
}

func TestChunkMarkdown_OversizedSectionCutBetweenBlocks(t *testing.T) {
	para := strings.Repeat("a", 40)
	content := strings.Join([]string{"# Big", "", para, "", para, "", para}, "\n")

	chunks, err := newPlugin(t, markdown.WithMaxSectionSize(60)).ChunkMarkdown(content, "big.md")
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	ranges := [][2]int{{1, 4}, {5, 6}, {7, 7}}
	for i, c := range chunks {
		assert.Equal(t, ranges[i][0], c.Metadata.StartLine, "chunk %d", i)
		assert.Equal(t, ranges[i][1], c.Metadata.EndLine, "chunk %d", i)
		assert.Equal(t, "Big", c.Metadata.Identifier)
		assert.Equal(t, "3", c.Metadata.Extra["parts"])
		assert.LessOrEqual(t, len(c.Content), 60)
	}
}

func TestChunkMarkdown_TitleFromFilename(t *testing.T) {
	chunks, err := newPlugin(t).ChunkMarkdown("just some text\nmore text", "guides/getting-started.md")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Getting Started", chunks[0].Metadata.Identifier)
	assert.Equal(t, 2, chunks[0].Metadata.EndLine)
}

func TestMarkdownPlugin_Split(t *testing.T) {
	plugin := newPlugin(t)
	para := strings.Repeat("b", 40)
	content := strings.Join([]string{"# Big", "", para, "", para}, "\n")

	opts := schema.DefaultChunkingOptions()
	opts.MaxChunkSize = 50
	chunks, err := plugin.Split(context.Background(), content, "markdown", "x.md", &opts)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)

	_, err = plugin.Split(context.Background(), "  \n ", "markdown", "x.md", nil)
	require.ErrorIs(t, err, markdown.ErrNoContent)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = plugin.Split(ctx, content, "markdown", "x.md", nil)
	require.ErrorIs(t, err, context.Canceled)
}
