package strategy

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/sevigo/chunkguard/metrics"
	"github.com/sevigo/chunkguard/overlap"
)

type OverlapConfig struct {
	Enabled    bool
	Calculator overlap.Calculator
}

type PerformanceConfig struct {
	Enabled bool
	Logger  *slog.Logger
	Metrics *metrics.Collector
}

type CacheConfig struct {
	Enabled bool
	MaxSize int
	TTL     time.Duration
	Metrics *metrics.Collector
}

// DecoratorOptions is the toggle state of a DecoratorBuilder.
type DecoratorOptions struct {
	Overlap     OverlapConfig
	Performance PerformanceConfig
	Cache       CacheConfig
}

// stage is one step of the decoration pipeline.
type stage struct {
	name    string
	enabled func(DecoratorOptions) bool
	wrap    func(SplitStrategy, DecoratorOptions, *slog.Logger) (SplitStrategy, error)
}

// pipeline is applied innermost first, so a cache hit returns before any
// overlap work or timing, and timing includes overlap injection.
var pipeline = []stage{
	{
		name:    "overlap",
		enabled: func(o DecoratorOptions) bool { return o.Overlap.Enabled },
		wrap: func(s SplitStrategy, o DecoratorOptions, l *slog.Logger) (SplitStrategy, error) {
			return NewOverlapDecorator(s, o.Overlap.Calculator, l), nil
		},
	},
	{
		name:    "performance",
		enabled: func(o DecoratorOptions) bool { return o.Performance.Enabled },
		wrap: func(s SplitStrategy, o DecoratorOptions, l *slog.Logger) (SplitStrategy, error) {
			logger := o.Performance.Logger
			if logger == nil {
				logger = l
			}
			return NewPerformanceDecorator(s, logger, o.Performance.Metrics), nil
		},
	},
	{
		name:    "cache",
		enabled: func(o DecoratorOptions) bool { return o.Cache.Enabled },
		wrap: func(s SplitStrategy, o DecoratorOptions, l *slog.Logger) (SplitStrategy, error) {
			return NewCacheDecorator(s, o.Cache.MaxSize, o.Cache.TTL, l, o.Cache.Metrics)
		},
	},
}

// DecoratorBuilder collects decorator toggles. The With methods only record
// the configuration; Build applies the fixed pipeline regardless of the
// order they were called in.
type DecoratorBuilder struct {
	base   SplitStrategy
	logger *slog.Logger
	opts   DecoratorOptions
}

func NewDecoratorBuilder(base SplitStrategy, logger *slog.Logger) *DecoratorBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &DecoratorBuilder{base: base, logger: logger}
}

func (b *DecoratorBuilder) WithOverlap(cfg OverlapConfig) *DecoratorBuilder {
	cfg.Enabled = true
	b.opts.Overlap = cfg
	return b
}

func (b *DecoratorBuilder) WithPerformanceMonitor(cfg PerformanceConfig) *DecoratorBuilder {
	cfg.Enabled = true
	b.opts.Performance = cfg
	return b
}

func (b *DecoratorBuilder) WithCache(cfg CacheConfig) *DecoratorBuilder {
	cfg.Enabled = true
	b.opts.Cache = cfg
	return b
}

// WithOptions replaces the whole toggle state, e.g. from configuration.
func (b *DecoratorBuilder) WithOptions(opts DecoratorOptions) *DecoratorBuilder {
	b.opts = opts
	return b
}

func (b *DecoratorBuilder) Build() (SplitStrategy, error) {
	if b.base == nil {
		return nil, ErrNilStrategy
	}

	current := b.base
	for _, st := range pipeline {
		if !st.enabled(b.opts) {
			continue
		}
		wrapped, err := st.wrap(current, b.opts, b.logger)
		if err != nil {
			return nil, fmt.Errorf("build %s stage for %s: %w", st.name, b.base.Name(), err)
		}
		current = wrapped
	}
	return current, nil
}

// Reset disables every decorator.
func (b *DecoratorBuilder) Reset() *DecoratorBuilder {
	b.opts = DecoratorOptions{}
	return b
}

func (b *DecoratorBuilder) Options() DecoratorOptions {
	return b.opts
}
