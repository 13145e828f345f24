package overlap_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/chunkguard/overlap"
	logger "github.com/sevigo/chunkguard/parsers/testing"
	"github.com/sevigo/chunkguard/schema"
)

func tinyOptions() schema.ChunkingOptions {
	opts := schema.DefaultChunkingOptions()
	opts.MaxChunkSize = 4
	opts.OverlapSize = 2
	opts.MaxOverlapRatio = 0.3
	return opts
}

func TestResplitOversized_SingleLongLine(t *testing.T) {
	line := strings.Repeat("abcdefghij", 4)
	chunk := schema.NewChunk(line, schema.ChunkMetadata{
		StartLine: 1, EndLine: 1, Language: "go", FilePath: "main.go", Type: schema.ChunkTypeSemantic,
	})

	pieces := overlap.ResplitOversized(chunk, tinyOptions())
	require.Greater(t, len(pieces), 1)

	for i, piece := range pieces {
		assert.LessOrEqual(t, len(piece.Content), 4, "piece %d too large", i)
		assert.Equal(t, 1, piece.Metadata.StartLine)
		assert.Equal(t, 1, piece.Metadata.EndLine)
		if i == 0 {
			assert.False(t, piece.Metadata.HasOverlap)
			continue
		}
		prev := pieces[i-1].Content
		assert.True(t, piece.Metadata.HasOverlap, "piece %d should carry overlap", i)
		require.Positive(t, piece.Metadata.OverlapSize)
		tail := piece.Content[:piece.Metadata.OverlapSize]
		assert.NotEmpty(t, tail)
		assert.True(t, strings.HasSuffix(prev, tail), "piece %d must start with the tail of its predecessor", i)
	}
}

func TestResplitOversized_MultiLineKeepsLineRanges(t *testing.T) {
	lines := make([]string, 0, 30)
	for i := range 30 {
		lines = append(lines, "line number "+strings.Repeat("x", i%7))
	}
	content := strings.Join(lines, "\n")
	chunk := schema.NewChunk(content, schema.ChunkMetadata{
		StartLine: 11, EndLine: 40, Language: "go", Type: schema.ChunkTypeSemantic, Identifier: "block",
	})
	opts := schema.DefaultChunkingOptions()
	opts.MaxChunkSize = 100
	opts.OverlapSize = 40

	pieces := overlap.ResplitOversized(chunk, opts)
	require.Greater(t, len(pieces), 1)

	assert.Equal(t, 11, pieces[0].Metadata.StartLine)
	assert.Equal(t, 40, pieces[len(pieces)-1].Metadata.EndLine)
	assert.Equal(t, "block_part_1", pieces[0].Metadata.Identifier)
	for i, piece := range pieces {
		assert.LessOrEqual(t, len(piece.Content), opts.MaxChunkSize)
		assert.LessOrEqual(t, piece.Metadata.StartLine, piece.Metadata.EndLine)
		if i > 0 {
			assert.LessOrEqual(t, piece.Metadata.StartLine, pieces[i-1].Metadata.EndLine+1)
		}
	}
}

func TestResplitOversized_SmallChunkUnchanged(t *testing.T) {
	chunk := schema.NewChunk("abc", schema.ChunkMetadata{StartLine: 1, EndLine: 1})
	pieces := overlap.ResplitOversized(chunk, tinyOptions())
	require.Len(t, pieces, 1)
	assert.Equal(t, "abc", pieces[0].Content)
}

func TestLineCalculator_CodeChunksOnlyResplit(t *testing.T) {
	log, _ := logger.NewTestLogger(t)
	calc := overlap.New(log)

	chunks := []schema.Chunk{
		schema.NewChunk("a=1", schema.ChunkMetadata{StartLine: 1, EndLine: 1, Language: "go", FilePath: "a.go"}),
		schema.NewChunk("b=2", schema.ChunkMetadata{StartLine: 2, EndLine: 2, Language: "go", FilePath: "a.go"}),
	}
	out, err := calc.AddOverlap(context.Background(), chunks, "a=1\nb=2", tinyOptions())
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, c := range out {
		assert.False(t, c.Metadata.HasOverlap)
	}
}

func TestLineCalculator_NonCodeGetsLineWindow(t *testing.T) {
	calc := overlap.New(nil)
	original := "alpha\nbeta\ngamma\ndelta"
	chunks := []schema.Chunk{
		schema.NewChunk("alpha\nbeta", schema.ChunkMetadata{StartLine: 1, EndLine: 2, Language: "text", FilePath: "notes.txt"}),
		schema.NewChunk("gamma\ndelta", schema.ChunkMetadata{StartLine: 3, EndLine: 4, Language: "text", FilePath: "notes.txt"}),
	}
	opts := schema.DefaultChunkingOptions()
	opts.OverlapSize = 5

	out, err := calc.AddOverlap(context.Background(), chunks, original, opts)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "alpha\nbeta", out[0].Content)
	assert.Equal(t, "beta\ngamma\ndelta", out[1].Content)
	assert.Equal(t, 2, out[1].Metadata.StartLine)
	assert.True(t, out[1].Metadata.HasOverlap)

	assert.Equal(t, "gamma\ndelta", chunks[1].Content, "input chunks must not be mutated")
}

func TestLineCalculator_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := overlap.New(nil).AddOverlap(ctx, []schema.Chunk{{Content: "x"}}, "x", schema.DefaultChunkingOptions())
	require.ErrorIs(t, err, context.Canceled)
}

func TestWindowTail(t *testing.T) {
	lines := []string{"one", "two", "three"}

	tests := []struct {
		name     string
		maxBytes int
		maxLines int
		want     []string
	}{
		{"fits last line only", 5, 3, []string{"three"}},
		{"fits two lines", 9, 3, []string{"two", "three"}},
		{"line cap", 100, 1, []string{"three"}},
		{"nothing fits", 2, 3, nil},
		{"zero budget", 0, 3, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, overlap.WindowTail(lines, tt.maxBytes, tt.maxLines))
		})
	}
}

func TestRecursiveCharacter_RoundTrip(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog"
	pieces := overlap.NewRecursiveCharacter(7).SplitText(text)
	require.NotEmpty(t, pieces)
	assert.Equal(t, text, strings.Join(pieces, ""))
	for _, p := range pieces {
		assert.LessOrEqual(t, len(p), 7)
	}
}
