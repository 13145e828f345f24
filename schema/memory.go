package schema

import "time"

type MemoryTrend string

const (
	MemoryTrendIncreasing MemoryTrend = "increasing"
	MemoryTrendDecreasing MemoryTrend = "decreasing"
	MemoryTrendStable     MemoryTrend = "stable"
)

// MemoryStatus is the result of a single memory check.
type MemoryStatus struct {
	IsWithinLimit bool    `json:"isWithinLimit"`
	UsagePercent  float64 `json:"usagePercent"`
	HeapUsed      uint64  `json:"heapUsed"`
	HeapTotal     uint64  `json:"heapTotal"`
	External      uint64  `json:"external"`
	ArrayBuffers  uint64  `json:"arrayBuffers"`
}

// Snapshot drops the derived fields.
func (s MemoryStatus) Snapshot() MemorySnapshot {
	return MemorySnapshot{
		HeapUsed:     s.HeapUsed,
		HeapTotal:    s.HeapTotal,
		External:     s.External,
		ArrayBuffers: s.ArrayBuffers,
	}
}

type MemoryStats struct {
	Current       MemorySnapshot `json:"current"`
	Limit         uint64         `json:"limit"`
	UsagePercent  float64        `json:"usagePercent"`
	IsWithinLimit bool           `json:"isWithinLimit"`
	Trend         MemoryTrend    `json:"trend"`
	AverageUsage  float64        `json:"averageUsage"`
}

type MemoryHistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	HeapUsed  uint64    `json:"heapUsed"`
}
