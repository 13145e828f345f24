package memguard

import (
	"context"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sevigo/chunkguard/metrics"
	"github.com/sevigo/chunkguard/schema"
)

const bytesPerMB = 1024 * 1024

type Config struct {
	MemoryLimitMB int
	HistorySize   int
	Interval      time.Duration
	Thresholds    Thresholds
}

func DefaultConfig() Config {
	return Config{
		MemoryLimitMB: schema.DefaultMemoryLimitMB,
		HistorySize:   DefaultHistorySize,
		Interval:      DefaultMonitorInterval,
		Thresholds:    DefaultThresholds(),
	}
}

type Option func(*Guard)

// WithMonitor shares an existing monitor instead of creating one.
func WithMonitor(m *Monitor) Option {
	return func(g *Guard) {
		if m != nil {
			g.monitor = m
		}
	}
}

func WithCleaner(c Cleaner) Option {
	return func(g *Guard) {
		g.cleaner = c
	}
}

func WithCollector(c *metrics.Collector) Option {
	return func(g *Guard) {
		g.metrics = c
	}
}

// WithGarbageCollector replaces the runtime.GC/debug.FreeOSMemory pair run
// during graceful degradation.
func WithGarbageCollector(fn func()) Option {
	return func(g *Guard) {
		if fn != nil {
			g.collectGarbage = fn
		}
	}
}

// Guard reacts to memory pressure events: warnings are logged, critical
// pressure forces a cleanup and emergencies additionally degrade.
type Guard struct {
	logger         *slog.Logger
	monitor        *Monitor
	cleaner        Cleaner
	metrics        *metrics.Collector
	collectGarbage func()

	mu           sync.Mutex
	limit        uint64
	history      *history
	unsubscribe  func()
	degradations int
	lastCleanup  *CleanupResult
}

func New(cfg Config, logger *slog.Logger, opts ...Option) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}

	limit := uint64(max(0, cfg.MemoryLimitMB)) * bytesPerMB
	g := &Guard{
		logger:  logger.With("component", "memory_guard"),
		limit:   limit,
		history: newHistory(cfg.HistorySize),
		collectGarbage: func() {
			runtime.GC()
			debug.FreeOSMemory()
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.monitor == nil {
		g.monitor = NewMonitor(limit, logger,
			WithInterval(cfg.Interval),
			WithThresholds(cfg.Thresholds))
	} else {
		g.monitor.SetLimit(limit)
	}
	return g
}

func (g *Guard) Monitor() *Monitor {
	return g.monitor
}

// StartMonitoring subscribes to pressure events and starts the monitor.
func (g *Guard) StartMonitoring(ctx context.Context) {
	g.mu.Lock()
	if g.unsubscribe != nil {
		g.mu.Unlock()
		return
	}
	g.unsubscribe = g.monitor.Subscribe(func(ev PressureEvent) {
		g.handlePressure(ctx, ev)
	})
	g.mu.Unlock()

	g.monitor.Start(ctx)
}

func (g *Guard) StopMonitoring() {
	g.mu.Lock()
	unsubscribe := g.unsubscribe
	g.unsubscribe = nil
	g.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	g.monitor.Stop()
}

func (g *Guard) IsMonitoring() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unsubscribe != nil
}

func (g *Guard) handlePressure(ctx context.Context, ev PressureEvent) {
	g.record(ev.Status)

	switch ev.Level {
	case PressureWarning:
		g.logger.WarnContext(ctx, "Memory pressure warning",
			"usage_percent", ev.Status.UsagePercent, "heap_used", ev.Status.HeapUsed)
	case PressureCritical:
		g.logger.WarnContext(ctx, "Critical memory pressure, forcing cleanup",
			"usage_percent", ev.Status.UsagePercent)
		g.ForceCleanup(ctx, "critical memory pressure")
	case PressureEmergency:
		g.logger.ErrorContext(ctx, "Emergency memory pressure, cleaning up and degrading",
			"usage_percent", ev.Status.UsagePercent)
		g.ForceCleanup(ctx, "emergency memory pressure")
		g.GracefulDegradation(ctx, "emergency memory pressure")
	case PressureNone:
	}
}

func (g *Guard) record(status schema.MemoryStatus) {
	g.mu.Lock()
	g.history.add(schema.MemoryHistoryEntry{Timestamp: time.Now(), HeapUsed: status.HeapUsed})
	g.mu.Unlock()
	g.metrics.SetHeap(status.HeapUsed)
}

// CheckMemoryUsage samples the heap now. Over the limit it forces a cleanup
// and, if that was not enough, degrades. The returned status is the last
// sample taken.
func (g *Guard) CheckMemoryUsage(ctx context.Context) schema.MemoryStatus {
	status := g.monitor.Sample()
	g.record(status)
	if status.IsWithinLimit {
		return status
	}

	g.logger.WarnContext(ctx, "Memory limit exceeded",
		"heap_used", status.HeapUsed, "limit", g.Limit(), "usage_percent", status.UsagePercent)
	g.ForceCleanup(ctx, "memory limit exceeded")

	status = g.monitor.Sample()
	g.record(status)
	if !status.IsWithinLimit {
		g.GracefulDegradation(ctx, "memory limit still exceeded after cleanup")
	}
	return status
}

// ForceCleanup delegates to the cleanup manager.
func (g *Guard) ForceCleanup(ctx context.Context, reason string) CleanupResult {
	if g.cleaner == nil {
		g.logger.DebugContext(ctx, "Cleanup requested without a cleanup manager", "reason", reason)
		return CleanupResult{Err: ErrNoCleanupManager}
	}

	status := g.monitor.Sample()
	result := g.cleaner.PerformCleanup(ctx, CleanupContext{
		TriggerReason: reason,
		MemoryUsage:   status.Snapshot(),
		Timestamp:     time.Now(),
	})
	g.metrics.CleanupFreed(result.MemoryFreed)

	g.mu.Lock()
	g.lastCleanup = &result
	g.mu.Unlock()

	if result.Err != nil {
		g.logger.WarnContext(ctx, "Forced cleanup finished with errors",
			"reason", reason, "freed", result.MemoryFreed, "error", result.Err)
		return result
	}
	g.logger.InfoContext(ctx, "Forced cleanup finished",
		"reason", reason, "freed", result.MemoryFreed, "caches", result.CleanedCaches)
	return result
}

// GracefulDegradation notifies degradation listeners and forces a GC.
func (g *Guard) GracefulDegradation(ctx context.Context, reason string) {
	status := g.monitor.Sample()
	g.monitor.NotifyDegradation(DegradationNotice{
		Reason:    reason,
		Status:    status,
		Timestamp: time.Now(),
	})
	g.collectGarbage()

	g.mu.Lock()
	g.degradations++
	g.mu.Unlock()
	g.metrics.Degraded()

	g.logger.WarnContext(ctx, "Graceful degradation triggered",
		"reason", reason, "heap_used", status.HeapUsed)
}

func (g *Guard) Degradations() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.degradations
}

func (g *Guard) LastCleanup() (CleanupResult, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastCleanup == nil {
		return CleanupResult{}, false
	}
	return *g.lastCleanup, true
}

// Stats takes a fresh sample and combines it with the history trend.
func (g *Guard) Stats() schema.MemoryStats {
	status := g.monitor.Sample()

	g.mu.Lock()
	defer g.mu.Unlock()
	return schema.MemoryStats{
		Current:       status.Snapshot(),
		Limit:         g.limit,
		UsagePercent:  status.UsagePercent,
		IsWithinLimit: status.IsWithinLimit,
		Trend:         g.history.trend(),
		AverageUsage:  g.history.average(),
	}
}

func (g *Guard) History() []schema.MemoryHistoryEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.history.list()
}

func (g *Guard) ClearHistory() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.history.clear()
}

func (g *Guard) Limit() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limit
}

// SetMemoryLimit changes the limit; zero disables limit checks.
func (g *Guard) SetMemoryLimit(mb int) {
	limit := uint64(max(0, mb)) * bytesPerMB
	g.mu.Lock()
	g.limit = limit
	g.mu.Unlock()
	g.monitor.SetLimit(limit)
}

// Destroy stops monitoring and drops the history.
func (g *Guard) Destroy() {
	g.StopMonitoring()
	g.ClearHistory()
}
