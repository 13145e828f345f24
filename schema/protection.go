package schema

import (
	"maps"
	"time"
)

// MemorySnapshot mirrors the heap figures a protection check reasons about.
type MemorySnapshot struct {
	HeapUsed     uint64 `json:"heapUsed"`
	HeapTotal    uint64 `json:"heapTotal"`
	External     uint64 `json:"external"`
	ArrayBuffers uint64 `json:"arrayBuffers"`
}

type ErrorStats struct {
	Count         int       `json:"count"`
	LastErrorTime time.Time `json:"lastErrorTime"`
	ErrorRate     float64   `json:"errorRate"`
}

// ProtectionContext is created per protection check and never persisted
// beyond the check or the decision cache TTL.
type ProtectionContext struct {
	OperationType string          `json:"operationType"`
	FilePath      string          `json:"filePath,omitempty"`
	Content       string          `json:"-"`
	Language      string          `json:"language,omitempty"`
	FileSize      int64           `json:"fileSize,omitempty"`
	Memory        *MemorySnapshot `json:"memory,omitempty"`
	Errors        *ErrorStats     `json:"errors,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
}

// Size returns FileSize, or the content length when no size was given.
func (pc *ProtectionContext) Size() int64 {
	if pc.FileSize > 0 {
		return pc.FileSize
	}
	return int64(len(pc.Content))
}

// ProtectionDecision is an immutable admission verdict.
type ProtectionDecision struct {
	Allow               bool           `json:"allow"`
	Reason              string         `json:"reason"`
	RecommendedStrategy string         `json:"recommendedStrategy,omitempty"`
	ShouldFallback      bool           `json:"shouldFallback"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

func Allow(reason string) ProtectionDecision {
	return ProtectionDecision{Allow: true, Reason: reason}
}

func Deny(reason, recommendedStrategy string) ProtectionDecision {
	return ProtectionDecision{
		Allow:               false,
		Reason:              reason,
		RecommendedStrategy: recommendedStrategy,
		ShouldFallback:      recommendedStrategy != "",
	}
}

// WithMetadata returns a copy of d carrying an extra metadata entry.
func (d ProtectionDecision) WithMetadata(key string, value any) ProtectionDecision {
	meta := make(map[string]any, len(d.Metadata)+1)
	maps.Copy(meta, d.Metadata)
	meta[key] = value
	d.Metadata = meta
	return d
}
