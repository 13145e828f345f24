package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/chunkguard/metrics"
)

func TestCollector_RecordsSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := metrics.New(reg)
	require.NoError(t, err)

	c.ObserveSplit("semantic", 3*time.Millisecond, 4)
	c.ObserveSplit("semantic", time.Millisecond, 2)
	c.SplitFailed("line")
	c.CacheHit()
	c.CacheMiss()
	c.CacheMiss()
	c.ProtectionCheck(metrics.OutcomeBlocked)
	c.SetHeap(1024)
	c.CleanupFreed(2048)
	c.CleanupFreed(-5)
	c.Degraded()

	count, err := testutil.GatherAndCount(reg, "chunkguard_split_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[mf.GetName()] = m.GetGauge().GetValue()
			}
		}
	}
	assert.InDelta(t, 6, values["chunkguard_split_chunks_total"], 0.001)
	assert.InDelta(t, 1, values["chunkguard_split_errors_total"], 0.001)
	assert.InDelta(t, 3, values["chunkguard_cache_requests_total"], 0.001)
	assert.InDelta(t, 1, values["chunkguard_protection_checks_total"], 0.001)
	assert.InDelta(t, 1024, values["chunkguard_memory_heap_bytes"], 0.001)
	assert.InDelta(t, 2048, values["chunkguard_memory_cleanup_freed_bytes_total"], 0.001)
	assert.InDelta(t, 1, values["chunkguard_memory_degradations_total"], 0.001)
}

func TestCollector_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := metrics.New(reg)
	require.NoError(t, err)
	second, err := metrics.New(reg)
	require.NoError(t, err)

	first.CacheHit()
	second.CacheHit()

	count, err := testutil.GatherAndCount(reg, "chunkguard_cache_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *metrics.Collector
	assert.NotPanics(t, func() {
		c.ObserveSplit("x", time.Second, 1)
		c.SplitFailed("x")
		c.CacheHit()
		c.CacheMiss()
		c.ProtectionCheck(metrics.OutcomeAllowed)
		c.SetHeap(1)
		c.CleanupFreed(1)
		c.Degraded()
	})
}
