// Package config loads the engine configuration from defaults, an optional
// YAML file and CHUNKGUARD_ environment variables, in that order of
// precedence.
package config

import (
	"log/slog"
	"time"

	"github.com/sevigo/chunkguard/memguard"
	"github.com/sevigo/chunkguard/metrics"
	"github.com/sevigo/chunkguard/overlap"
	"github.com/sevigo/chunkguard/protection"
	"github.com/sevigo/chunkguard/schema"
	"github.com/sevigo/chunkguard/strategy"
)

// Config is the full engine configuration.
type Config struct {
	Chunking   schema.ChunkingOptions `koanf:"chunking"`
	Memory     MemoryConfig           `koanf:"memory"`
	Protection protection.Config      `koanf:"protection"`
	Decorators DecoratorConfig        `koanf:"decorators"`
	Guard      GuardConfig            `koanf:"guard"`
	Loader     LoaderConfig           `koanf:"loader"`
}

// MemoryConfig tunes the heap monitor. The limit itself is
// Chunking.MemoryLimitMB.
type MemoryConfig struct {
	Monitoring       bool          `koanf:"monitoring"`
	HistorySize      int           `koanf:"history_size" validate:"gte=0"`
	Interval         time.Duration `koanf:"interval" validate:"gte=0"`
	WarningPercent   float64       `koanf:"warning_percent" validate:"gt=0,lte=100"`
	CriticalPercent  float64       `koanf:"critical_percent" validate:"gt=0,lte=100"`
	EmergencyPercent float64       `koanf:"emergency_percent" validate:"gt=0,lte=100"`
}

type DecoratorConfig struct {
	Overlap     bool          `koanf:"overlap"`
	Performance bool          `koanf:"performance"`
	Cache       bool          `koanf:"cache"`
	CacheSize   int           `koanf:"cache_size" validate:"gte=0"`
	CacheTTL    time.Duration `koanf:"cache_ttl" validate:"gte=0"`
}

type GuardConfig struct {
	InitTimeout       time.Duration `koanf:"init_timeout" validate:"gte=0"`
	ProtectionTimeout time.Duration `koanf:"protection_timeout" validate:"gte=0"`
}

// LoaderConfig controls which repository files are read for chunking.
type LoaderConfig struct {
	Exclude     []string `koanf:"exclude"`
	MaxFileSize int64    `koanf:"max_file_size" validate:"gte=0"`
	SkipBinary  bool     `koanf:"skip_binary"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	thresholds := memguard.DefaultThresholds()
	return &Config{
		Chunking: schema.DefaultChunkingOptions(),
		Memory: MemoryConfig{
			Monitoring:       true,
			HistorySize:      memguard.DefaultHistorySize,
			Interval:         memguard.DefaultMonitorInterval,
			WarningPercent:   thresholds.Warning,
			CriticalPercent:  thresholds.Critical,
			EmergencyPercent: thresholds.Emergency,
		},
		Protection: protection.Config{
			ResetInterval: time.Minute,
			MaxFileSize:   10 * 1024 * 1024,
		},
		Decorators: DecoratorConfig{
			Overlap:   true,
			Cache:     true,
			CacheSize: strategy.DefaultCacheSize,
		},
		Guard: GuardConfig{
			InitTimeout:       5 * time.Second,
			ProtectionTimeout: protection.DefaultCheckTimeout,
		},
		Loader: LoaderConfig{
			Exclude:     []string{"**/.git/**", "**/node_modules/**", "**/vendor/**"},
			MaxFileSize: 10 * 1024 * 1024,
			SkipBinary:  true,
		},
	}
}

// ChunkingOptions returns the chunking options with zero fields defaulted.
func (c *Config) ChunkingOptions() schema.ChunkingOptions {
	return c.Chunking.WithDefaults()
}

func (c *Config) MemoryGuardConfig() memguard.Config {
	return memguard.Config{
		MemoryLimitMB: c.Chunking.MemoryLimitMB,
		HistorySize:   c.Memory.HistorySize,
		Interval:      c.Memory.Interval,
		Thresholds: memguard.Thresholds{
			Warning:   c.Memory.WarningPercent,
			Critical:  c.Memory.CriticalPercent,
			Emergency: c.Memory.EmergencyPercent,
		},
	}
}

// ProtectionConfig fills the memory limit and error budget from the chunking
// options when the protection section leaves them unset.
func (c *Config) ProtectionConfig() protection.Config {
	pc := c.Protection
	if pc.MemoryLimitMB == 0 {
		pc.MemoryLimitMB = c.Chunking.MemoryLimitMB
	}
	if pc.MaxErrors == 0 {
		pc.MaxErrors = c.Chunking.ErrorThreshold
	}
	return pc
}

// DecoratorOptions maps the toggles onto strategy decorator options.
func (c *Config) DecoratorOptions(calc overlap.Calculator, collector *metrics.Collector, logger *slog.Logger) strategy.DecoratorOptions {
	return strategy.DecoratorOptions{
		Overlap: strategy.OverlapConfig{
			Enabled:    c.Decorators.Overlap,
			Calculator: calc,
		},
		Performance: strategy.PerformanceConfig{
			Enabled: c.Decorators.Performance,
			Logger:  logger,
			Metrics: collector,
		},
		Cache: strategy.CacheConfig{
			Enabled: c.Decorators.Cache,
			MaxSize: c.Decorators.CacheSize,
			TTL:     c.Decorators.CacheTTL,
			Metrics: collector,
		},
	}
}
