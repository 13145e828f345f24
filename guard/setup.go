package guard

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sevigo/chunkguard/config"
	"github.com/sevigo/chunkguard/memguard"
	"github.com/sevigo/chunkguard/metrics"
	"github.com/sevigo/chunkguard/overlap"
	"github.com/sevigo/chunkguard/parsers"
	"github.com/sevigo/chunkguard/parsers/markdown"
	"github.com/sevigo/chunkguard/protection"
	"github.com/sevigo/chunkguard/strategy"
	"github.com/sevigo/chunkguard/textsplitter"
)

type setupOptions struct {
	registerer prometheus.Registerer
	sampler    memguard.Sampler
}

type SetupOption func(*setupOptions)

// WithRegisterer enables Prometheus metrics on reg.
func WithRegisterer(reg prometheus.Registerer) SetupOption {
	return func(o *setupOptions) {
		o.registerer = reg
	}
}

// WithSampler replaces the runtime heap sampler for memory checks.
func WithSampler(s memguard.Sampler) SetupOption {
	return func(o *setupOptions) {
		if s != nil {
			o.sampler = s
		}
	}
}

// NewFromConfig wires the language plugins, splitter, strategy factory,
// memory guard and protection chain described by cfg into a Coordinator.
// The coordinator still needs Initialize.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, opts ...SetupOption) (*Coordinator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	so := setupOptions{sampler: memguard.RuntimeSampler}
	for _, opt := range opts {
		opt(&so)
	}

	var collector *metrics.Collector
	if so.registerer != nil {
		var err error
		if collector, err = metrics.New(so.registerer); err != nil {
			return nil, fmt.Errorf("failed to create metrics: %w", err)
		}
	}

	registry, err := parsers.RegisterLanguagePlugins(logger)
	if err != nil {
		return nil, err
	}

	chunking := cfg.ChunkingOptions()
	calc := overlap.New(logger)
	splitter := textsplitter.New(logger,
		textsplitter.WithChunkingOptions(chunking),
		textsplitter.WithOverlapCalculator(calc),
		textsplitter.WithMarkdownSplitter(markdown.NewMarkdownPlugin(logger,
			markdown.WithMaxSectionSize(chunking.MaxChunkSize))),
		textsplitter.WithMemoryProbe(func() uint64 { return so.sampler().HeapUsed }),
	)

	cleanup := memguard.NewCleanupManager(logger)
	factory := strategy.NewFactory(splitter, logger,
		strategy.WithRegistry(registry),
		strategy.WithDecorators(cfg.DecoratorOptions(calc, collector, logger)),
		strategy.WithCleanupManager(cleanup),
	)

	memCfg := cfg.MemoryGuardConfig()
	monitor := memguard.NewMonitor(0, logger,
		memguard.WithSampler(so.sampler),
		memguard.WithInterval(memCfg.Interval),
		memguard.WithThresholds(memCfg.Thresholds))
	memory := memguard.New(memCfg, logger,
		memguard.WithMonitor(monitor),
		memguard.WithCleaner(cleanup),
		memguard.WithCollector(collector))

	chain, err := protection.NewDefaultChain(cfg.ProtectionConfig(), so.sampler, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build protection chain: %w", err)
	}
	prot, err := protection.NewCoordinator(logger,
		protection.WithChain(chain.Chain),
		protection.WithMetrics(collector))
	if err != nil {
		return nil, err
	}

	return New(Deps{
		Factory:        factory,
		Detector:       NewDetector(registry),
		Memory:         memory,
		Protection:     prot,
		ErrorThreshold: chain.ErrorThreshold,
		Logger:         logger,
	},
		WithChunkingOptions(chunking),
		WithInitTimeout(cfg.Guard.InitTimeout),
		WithProtectionTimeout(cfg.Guard.ProtectionTimeout),
		WithMemoryMonitoring(cfg.Memory.Monitoring),
	)
}
