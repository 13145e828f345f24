// Package strategy defines the split strategy contract and the decorators
// that add overlap, timing and caching around any strategy.
package strategy

import (
	"context"
	"errors"

	"github.com/sevigo/chunkguard/schema"
)

// SplitStrategy turns file content into chunks. Implementations must not
// depend on hidden state so that decorators can cache and replay them.
type SplitStrategy interface {
	Split(ctx context.Context, content, language, filePath string, opts *schema.ChunkingOptions) ([]schema.Chunk, error)
	Name() string
	SupportsLanguage(language string) bool
	Description() string
}

var (
	ErrNilStrategy     = errors.New("strategy: base strategy is nil")
	ErrUnknownStrategy = errors.New("strategy: unknown strategy")
)

// resolveOptions returns the effective options for a call.
func resolveOptions(opts *schema.ChunkingOptions) schema.ChunkingOptions {
	if opts == nil {
		return schema.DefaultChunkingOptions()
	}
	return opts.WithDefaults()
}
