package schema

import (
	"errors"
	"fmt"
	"math"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
)

// ErrInvalidOptions is returned when chunking options fail validation.
var ErrInvalidOptions = errors.New("invalid chunking options")

var optionsValidator = validator.New()

// ChunkingOptions is constructed once per invocation and is never mutated
// while a split is running.
type ChunkingOptions struct {
	MaxChunkSize            int     `json:"maxChunkSize" koanf:"max_chunk_size" validate:"gt=0"`
	OverlapSize             int     `json:"overlapSize" koanf:"overlap_size" validate:"gte=0"`
	MaxLinesPerChunk        int     `json:"maxLinesPerChunk" koanf:"max_lines_per_chunk" validate:"gt=0"`
	MemoryLimitMB           int     `json:"memoryLimitMB" koanf:"memory_limit_mb" validate:"gte=0"`
	ErrorThreshold          int     `json:"errorThreshold" koanf:"error_threshold" validate:"gte=0"`
	EnableBracketBalance    bool    `json:"enableBracketBalance" koanf:"enable_bracket_balance"`
	EnableSemanticDetection bool    `json:"enableSemanticDetection" koanf:"enable_semantic_detection"`
	MaxOverlapRatio         float64 `json:"maxOverlapRatio" koanf:"max_overlap_ratio" validate:"gte=0,lt=1"`
	MinChunkSize            int     `json:"minChunkSize" koanf:"min_chunk_size" validate:"gte=0"`
	SizeTolerance           float64 `json:"sizeTolerance" koanf:"size_tolerance" validate:"gte=1"`
}

const (
	DefaultMaxChunkSize     = 2000
	DefaultOverlapSize      = 200
	DefaultMaxLinesPerChunk = 100
	DefaultMemoryLimitMB    = 512
	DefaultErrorThreshold   = 10
	DefaultMaxOverlapRatio  = 0.3
	DefaultMinChunkSize     = 100
	DefaultSizeTolerance    = 1.2
)

// DefaultChunkingOptions returns the options used when a caller passes none.
func DefaultChunkingOptions() ChunkingOptions {
	return ChunkingOptions{
		MaxChunkSize:            DefaultMaxChunkSize,
		OverlapSize:             DefaultOverlapSize,
		MaxLinesPerChunk:        DefaultMaxLinesPerChunk,
		MemoryLimitMB:           DefaultMemoryLimitMB,
		ErrorThreshold:          DefaultErrorThreshold,
		EnableBracketBalance:    true,
		EnableSemanticDetection: true,
		MaxOverlapRatio:         DefaultMaxOverlapRatio,
		MinChunkSize:            DefaultMinChunkSize,
		SizeTolerance:           DefaultSizeTolerance,
	}
}

// Validate checks the struct tags and the cross-field constraints.
func (o ChunkingOptions) Validate() error {
	if err := optionsValidator.Struct(o); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	if o.OverlapSize >= o.MaxChunkSize {
		return fmt.Errorf("%w: overlap size (%d) must be smaller than max chunk size (%d)",
			ErrInvalidOptions, o.OverlapSize, o.MaxChunkSize)
	}
	return nil
}

// Merge returns a copy of o with every non-zero field of patch applied.
// Boolean toggles can only be switched on through Merge.
func (o ChunkingOptions) Merge(patch ChunkingOptions) (ChunkingOptions, error) {
	merged := o
	if err := mergo.Merge(&merged, patch, mergo.WithOverride); err != nil {
		return o, fmt.Errorf("merge chunking options: %w", err)
	}
	return merged, nil
}

// WithDefaults fills zero numeric fields from DefaultChunkingOptions.
func (o ChunkingOptions) WithDefaults() ChunkingOptions {
	d := DefaultChunkingOptions()
	if o.MaxChunkSize <= 0 {
		o.MaxChunkSize = d.MaxChunkSize
	}
	if o.MaxLinesPerChunk <= 0 {
		o.MaxLinesPerChunk = d.MaxLinesPerChunk
	}
	if o.MaxOverlapRatio <= 0 {
		o.MaxOverlapRatio = d.MaxOverlapRatio
	}
	if o.SizeTolerance < 1 {
		o.SizeTolerance = d.SizeTolerance
	}
	return o
}

// OverlapBudget is the number of bytes a re-split chunk may carry over from
// its predecessor: min(OverlapSize, MaxChunkSize*MaxOverlapRatio).
func (o ChunkingOptions) OverlapBudget() int {
	ratio := o.MaxOverlapRatio
	if ratio <= 0 {
		ratio = DefaultMaxOverlapRatio
	}
	byRatio := int(math.Floor(float64(o.MaxChunkSize) * ratio))
	return max(0, min(o.OverlapSize, byRatio))
}

// ToleratedSize is the hard ceiling used by rebalancing and the bracket algorithm.
func (o ChunkingOptions) ToleratedSize() int {
	tol := o.SizeTolerance
	if tol < 1 {
		tol = DefaultSizeTolerance
	}
	return int(float64(o.MaxChunkSize) * tol)
}

// MemoryLimitBytes converts MemoryLimitMB; zero disables the check.
func (o ChunkingOptions) MemoryLimitBytes() uint64 {
	if o.MemoryLimitMB <= 0 {
		return 0
	}
	return uint64(o.MemoryLimitMB) * 1024 * 1024
}
