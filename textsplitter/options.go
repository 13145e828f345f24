package textsplitter

import (
	"github.com/sevigo/chunkguard/overlap"
	"github.com/sevigo/chunkguard/schema"
)

// options holds configuration settings for the text splitter.
type options struct {
	chunking schema.ChunkingOptions
	probe    MemoryProbe
	markdown MarkdownSplitter
	overlap  overlap.Calculator
}

// Option is a function type for configuring the splitter.
type Option func(*options)

// WithChunkingOptions sets the options used when Split is called without any.
func WithChunkingOptions(opts schema.ChunkingOptions) Option {
	return func(o *options) {
		o.chunking = opts.WithDefaults()
	}
}

// WithMemoryProbe replaces the runtime heap reader sampled during long splits.
func WithMemoryProbe(probe MemoryProbe) Option {
	return func(o *options) {
		if probe != nil {
			o.probe = probe
		}
	}
}

// WithMarkdownSplitter enables the markdown path.
func WithMarkdownSplitter(m MarkdownSplitter) Option {
	return func(o *options) {
		o.markdown = m
	}
}

func WithOverlapCalculator(c overlap.Calculator) Option {
	return func(o *options) {
		if c != nil {
			o.overlap = c
		}
	}
}
