package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sevigo/chunkguard/metrics"
	"github.com/sevigo/chunkguard/schema"
)

// PerformanceStats accumulates over successful calls only.
type PerformanceStats struct {
	SplitCount    int64         `json:"splitCount"`
	TotalTime     time.Duration `json:"totalTime"`
	TotalChunks   int64         `json:"totalChunks"`
	AverageTime   time.Duration `json:"averageTime"`
	AverageChunks float64       `json:"averageChunks"`
	Errors        int64         `json:"errors"`
}

// PerformanceDecorator times every call of the wrapped strategy. Failures are
// logged and returned unchanged.
type PerformanceDecorator struct {
	base    SplitStrategy
	logger  *slog.Logger
	metrics *metrics.Collector

	mu    sync.Mutex
	stats PerformanceStats
}

var _ SplitStrategy = (*PerformanceDecorator)(nil)

// NewPerformanceDecorator accepts a nil logger, in which case nothing is
// logged, and a nil collector.
func NewPerformanceDecorator(base SplitStrategy, logger *slog.Logger, collector *metrics.Collector) *PerformanceDecorator {
	if logger != nil {
		logger = logger.With("component", "performance_decorator")
	}
	return &PerformanceDecorator{
		base:    base,
		logger:  logger,
		metrics: collector,
	}
}

func (d *PerformanceDecorator) Split(
	ctx context.Context,
	content, language, filePath string,
	opts *schema.ChunkingOptions,
) ([]schema.Chunk, error) {
	start := time.Now()
	chunks, err := d.base.Split(ctx, content, language, filePath, opts)
	elapsed := time.Since(start)

	if err != nil {
		d.mu.Lock()
		d.stats.Errors++
		d.mu.Unlock()
		d.metrics.SplitFailed(d.base.Name())
		if d.logger != nil {
			d.logger.ErrorContext(ctx, "Split strategy failed",
				"strategy", d.base.Name(), "file", filePath, "elapsed", elapsed, "error", err)
		}
		return nil, err
	}

	d.mu.Lock()
	d.stats.SplitCount++
	d.stats.TotalTime += elapsed
	d.stats.TotalChunks += int64(len(chunks))
	d.mu.Unlock()
	d.metrics.ObserveSplit(d.base.Name(), elapsed, len(chunks))

	if d.logger != nil {
		avg := 0.0
		if len(chunks) > 0 {
			avg = float64(elapsed.Microseconds()) / 1000 / float64(len(chunks))
		}
		d.logger.DebugContext(ctx, "Split completed",
			"strategy", d.base.Name(),
			"language", language,
			"chunks", len(chunks),
			"elapsed", elapsed,
			"avg_ms_per_chunk", fmt.Sprintf("%.2f", avg))
	}
	return chunks, nil
}

// PerformanceStats returns a snapshot with averages derived from the totals.
func (d *PerformanceDecorator) PerformanceStats() PerformanceStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := d.stats
	if stats.SplitCount > 0 {
		stats.AverageTime = stats.TotalTime / time.Duration(stats.SplitCount)
		stats.AverageChunks = float64(stats.TotalChunks) / float64(stats.SplitCount)
	}
	return stats
}

func (d *PerformanceDecorator) ResetPerformanceStats() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats = PerformanceStats{}
}

func (d *PerformanceDecorator) Name() string {
	return d.base.Name() + "_monitored"
}

func (d *PerformanceDecorator) SupportsLanguage(language string) bool {
	return d.base.SupportsLanguage(language)
}

func (d *PerformanceDecorator) Description() string {
	return d.base.Description() + " (monitored)"
}
