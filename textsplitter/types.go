package textsplitter

import (
	"context"
	"errors"

	"github.com/sevigo/chunkguard/schema"
)

// DocumentSplitter turns whole documents into chunk documents.
type DocumentSplitter interface {
	SplitDocuments(ctx context.Context, docs []schema.Document) ([]schema.Document, error)
}

// MarkdownSplitter produces structure-aware chunks for markdown content.
type MarkdownSplitter interface {
	ChunkMarkdown(content, filePath string) ([]schema.Chunk, error)
}

// MemoryProbe reports the current heap usage in bytes.
type MemoryProbe func() uint64

const (
	smallFileChars = 300
	smallFileLines = 5

	maxProcessedLines  = 10000
	memoryCheckEvery   = 1000
	scoreBudgetRatio   = 0.8
	minLinesForClose   = 5
	minLinesForEnd     = 3
	minLinesForBlank   = 5
	minLinesForComment = 3
	minLinesForBalance = 5
)

var (
	ErrEmptyContent      = errors.New("content is empty or contains only whitespace")
	ErrUnknownAlgorithm  = errors.New("unknown split algorithm")
	ErrAlgorithmPanicked = errors.New("split algorithm panicked")
)

// algorithm names double as chunk types and strategy names.
type algorithm string

const (
	algorithmSemantic algorithm = "semantic"
	algorithmBracket  algorithm = "bracket"
	algorithmLine     algorithm = "line"
)

func (a algorithm) chunkType() schema.ChunkType {
	switch a {
	case algorithmSemantic:
		return schema.ChunkTypeSemantic
	case algorithmBracket:
		return schema.ChunkTypeBracket
	default:
		return schema.ChunkTypeLine
	}
}
