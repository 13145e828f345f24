// Package metrics exposes Prometheus collectors for splitting, caching,
// protection checks and memory pressure. A nil *Collector is valid and
// records nothing.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chunkguard"

// Protection check outcomes.
const (
	OutcomeAllowed = "allowed"
	OutcomeBlocked = "blocked"
	OutcomeError   = "error"
)

type Collector struct {
	splitDuration    *prometheus.HistogramVec
	splitChunks      *prometheus.CounterVec
	splitErrors      *prometheus.CounterVec
	cacheRequests    *prometheus.CounterVec
	protectionChecks *prometheus.CounterVec
	heapBytes        prometheus.Gauge
	cleanupFreed     prometheus.Counter
	degradations     prometheus.Counter
}

// New creates the collectors and registers them on reg. Collectors already
// registered by an earlier New call on the same registry are reused.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{}
	var err error
	if c.splitDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "split",
		Name:      "duration_seconds",
		Help:      "Time spent in a split strategy.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
	}, []string{"strategy"})); err != nil {
		return nil, err
	}
	if c.splitChunks, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "split",
		Name:      "chunks_total",
		Help:      "Chunks produced by split strategies.",
	}, []string{"strategy"})); err != nil {
		return nil, err
	}
	if c.splitErrors, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "split",
		Name:      "errors_total",
		Help:      "Failed split calls.",
	}, []string{"strategy"})); err != nil {
		return nil, err
	}
	if c.cacheRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Chunk cache lookups by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if c.protectionChecks, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "protection",
		Name:      "checks_total",
		Help:      "Protection checks by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if c.heapBytes, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "memory",
		Name:      "heap_bytes",
		Help:      "Last sampled heap usage.",
	})); err != nil {
		return nil, err
	}
	if c.cleanupFreed, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "memory",
		Name:      "cleanup_freed_bytes_total",
		Help:      "Bytes reported freed by forced cleanups.",
	})); err != nil {
		return nil, err
	}
	if c.degradations, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "memory",
		Name:      "degradations_total",
		Help:      "Graceful degradation episodes.",
	})); err != nil {
		return nil, err
	}
	return c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register metrics collector: %w", err)
	}
	return c, nil
}

func (c *Collector) ObserveSplit(strategy string, elapsed time.Duration, chunks int) {
	if c == nil {
		return
	}
	c.splitDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
	c.splitChunks.WithLabelValues(strategy).Add(float64(chunks))
}

func (c *Collector) SplitFailed(strategy string) {
	if c == nil {
		return
	}
	c.splitErrors.WithLabelValues(strategy).Inc()
}

func (c *Collector) CacheHit() {
	if c == nil {
		return
	}
	c.cacheRequests.WithLabelValues("hit").Inc()
}

func (c *Collector) CacheMiss() {
	if c == nil {
		return
	}
	c.cacheRequests.WithLabelValues("miss").Inc()
}

func (c *Collector) ProtectionCheck(outcome string) {
	if c == nil {
		return
	}
	c.protectionChecks.WithLabelValues(outcome).Inc()
}

func (c *Collector) SetHeap(bytes uint64) {
	if c == nil {
		return
	}
	c.heapBytes.Set(float64(bytes))
}

func (c *Collector) CleanupFreed(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	c.cleanupFreed.Add(float64(bytes))
}

func (c *Collector) Degraded() {
	if c == nil {
		return
	}
	c.degradations.Inc()
}
