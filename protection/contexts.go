package protection

import (
	"time"

	"github.com/google/uuid"

	"github.com/sevigo/chunkguard/schema"
)

// OperationIDKey is the metadata entry holding a context's operation ID.
const OperationIDKey = "operation_id"

func newContext(operation string) *schema.ProtectionContext {
	return &schema.ProtectionContext{
		OperationType: operation,
		Timestamp:     time.Now(),
		Metadata:      map[string]any{OperationIDKey: uuid.NewString()},
	}
}

// ChunkContext describes a split of one file.
func ChunkContext(filePath, language, content string) *schema.ProtectionContext {
	pc := newContext(OperationChunk)
	pc.FilePath = filePath
	pc.Language = language
	pc.Content = content
	pc.FileSize = int64(len(content))
	return pc
}

func MemoryContext(snapshot schema.MemorySnapshot) *schema.ProtectionContext {
	pc := newContext(OperationMemoryCheck)
	pc.Memory = &snapshot
	return pc
}

func ErrorThresholdContext(stats schema.ErrorStats) *schema.ProtectionContext {
	pc := newContext(OperationErrorThreshold)
	pc.Errors = &stats
	return pc
}

func FileSizeContext(filePath string, size int64) *schema.ProtectionContext {
	pc := newContext(OperationFileSize)
	pc.FilePath = filePath
	pc.FileSize = size
	return pc
}

// RateLimitContext buckets the operation under key; an empty key falls back
// to the operation name.
func RateLimitContext(operation, key string) *schema.ProtectionContext {
	pc := newContext(OperationRateLimit)
	if operation != "" {
		pc.Metadata["operation"] = operation
	}
	if key == "" {
		key = operation
	}
	if key != "" {
		pc.Metadata[RateLimitKey] = key
	}
	return pc
}
