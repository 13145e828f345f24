package memguard

import (
	"github.com/sevigo/chunkguard/schema"
)

const (
	DefaultHistorySize = 100
	trendBand          = 0.05
)

// history is a fixed-capacity ring of heap samples, oldest first.
type history struct {
	entries []schema.MemoryHistoryEntry
	next    int
	full    bool
}

func newHistory(capacity int) *history {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &history{entries: make([]schema.MemoryHistoryEntry, capacity)}
}

func (h *history) add(e schema.MemoryHistoryEntry) {
	h.entries[h.next] = e
	h.next = (h.next + 1) % len(h.entries)
	if h.next == 0 {
		h.full = true
	}
}

func (h *history) len() int {
	if h.full {
		return len(h.entries)
	}
	return h.next
}

func (h *history) list() []schema.MemoryHistoryEntry {
	n := h.len()
	out := make([]schema.MemoryHistoryEntry, 0, n)
	if h.full {
		out = append(out, h.entries[h.next:]...)
	}
	return append(out, h.entries[:h.next]...)
}

func (h *history) clear() {
	clear(h.entries)
	h.next = 0
	h.full = false
}

func (h *history) average() float64 {
	entries := h.list()
	if len(entries) == 0 {
		return 0
	}
	return averageHeap(entries)
}

// trend compares the averages of the older and the newer half. Differences
// inside ±5% of the older average count as stable.
func (h *history) trend() schema.MemoryTrend {
	entries := h.list()
	if len(entries) < 2 {
		return schema.MemoryTrendStable
	}
	mid := len(entries) / 2
	older := averageHeap(entries[:mid])
	newer := averageHeap(entries[mid:])
	switch {
	case older == 0 && newer == 0:
		return schema.MemoryTrendStable
	case newer > older*(1+trendBand):
		return schema.MemoryTrendIncreasing
	case newer < older*(1-trendBand):
		return schema.MemoryTrendDecreasing
	default:
		return schema.MemoryTrendStable
	}
}

func averageHeap(entries []schema.MemoryHistoryEntry) float64 {
	var sum float64
	for _, e := range entries {
		sum += float64(e.HeapUsed)
	}
	return sum / float64(len(entries))
}
