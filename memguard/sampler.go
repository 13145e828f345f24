// Package memguard watches process heap usage, publishes leveled pressure
// events and reacts to them with cleanup and graceful degradation.
package memguard

import (
	"runtime"

	"github.com/sevigo/chunkguard/schema"
)

// Sampler reads the current heap figures.
type Sampler func() schema.MemorySnapshot

// RuntimeSampler maps runtime.MemStats onto a MemorySnapshot: HeapAlloc is
// the used heap, HeapSys the reserved heap, stacks and other runtime memory
// count as external and span/cache structures as buffers.
func RuntimeSampler() schema.MemorySnapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return schema.MemorySnapshot{
		HeapUsed:     ms.HeapAlloc,
		HeapTotal:    ms.HeapSys,
		External:     ms.StackSys + ms.OtherSys,
		ArrayBuffers: ms.MSpanSys + ms.MCacheSys,
	}
}

// Status classifies a snapshot against a byte limit. A zero limit is never
// exceeded.
func Status(snap schema.MemorySnapshot, limit uint64) schema.MemoryStatus {
	status := schema.MemoryStatus{
		IsWithinLimit: true,
		HeapUsed:      snap.HeapUsed,
		HeapTotal:     snap.HeapTotal,
		External:      snap.External,
		ArrayBuffers:  snap.ArrayBuffers,
	}
	if limit > 0 {
		status.UsagePercent = float64(snap.HeapUsed) / float64(limit) * 100
		status.IsWithinLimit = snap.HeapUsed <= limit
	}
	return status
}
