package protection

import (
	"context"
	"fmt"

	"github.com/sevigo/chunkguard/memguard"
	"github.com/sevigo/chunkguard/schema"
)

// Operation types carried in ProtectionContext.OperationType.
const (
	OperationChunk          = "chunk"
	OperationMemoryCheck    = "memory_check"
	OperationErrorThreshold = "error_threshold"
	OperationFileSize       = "file_size"
	OperationRateLimit      = "rate_limit"
)

// Default priorities of the built-in interceptors.
const (
	PriorityMemory         = 10
	PriorityErrorThreshold = 20
	PriorityFileSize       = 30
	PriorityRateLimit      = 40
	PriorityCustom         = 100
)

// info carries the identity every interceptor reports.
type info struct {
	name        string
	priority    int
	description string
}

func (i *info) Name() string        { return i.name }
func (i *info) Priority() int       { return i.priority }
func (i *info) Description() string { return i.description }

// Option overrides the identity of a built-in interceptor.
type Option func(*info)

func WithPriority(p int) Option {
	return func(i *info) {
		i.priority = p
	}
}

func WithName(name string) Option {
	return func(i *info) {
		if name != "" {
			i.name = name
		}
	}
}

func WithDescription(d string) Option {
	return func(i *info) {
		i.description = d
	}
}

func newInfo(name string, priority int, description string, opts []Option) info {
	i := info{name: name, priority: priority, description: description}
	for _, opt := range opts {
		opt(&i)
	}
	return i
}

// MemoryInterceptor denies work while the heap is above the limit and
// recommends the line algorithm. A snapshot in the context takes precedence
// over sampling.
type MemoryInterceptor struct {
	info
	limit  uint64
	sample memguard.Sampler
}

var _ Interceptor = (*MemoryInterceptor)(nil)

// NewMemoryInterceptor uses memguard.RuntimeSampler when sample is nil. A
// zero limit makes the interceptor unavailable.
func NewMemoryInterceptor(limitMB int, sample memguard.Sampler, opts ...Option) *MemoryInterceptor {
	if sample == nil {
		sample = memguard.RuntimeSampler
	}
	return &MemoryInterceptor{
		info:   newInfo("memory", PriorityMemory, "Denies work while heap usage is above the memory limit", opts),
		limit:  uint64(max(0, limitMB)) * 1024 * 1024,
		sample: sample,
	}
}

func (m *MemoryInterceptor) IsAvailable() bool { return m.limit > 0 }

func (m *MemoryInterceptor) IsApplicable(*schema.ProtectionContext) bool { return true }

func (m *MemoryInterceptor) Intercept(_ context.Context, pc *schema.ProtectionContext) (schema.ProtectionDecision, error) {
	snap := m.snapshot(pc)
	status := memguard.Status(snap, m.limit)
	if status.IsWithinLimit {
		return schema.Allow("memory within limit").WithMetadata("usage_percent", status.UsagePercent), nil
	}
	return schema.Deny(
		fmt.Sprintf("memory limit exceeded: %d of %d bytes", snap.HeapUsed, m.limit),
		string(schema.ChunkTypeLine),
	).WithMetadata("usage_percent", status.UsagePercent), nil
}

func (m *MemoryInterceptor) snapshot(pc *schema.ProtectionContext) schema.MemorySnapshot {
	if pc != nil && pc.Memory != nil {
		return *pc.Memory
	}
	return m.sample()
}

// FileSizeInterceptor denies files above MaxBytes.
type FileSizeInterceptor struct {
	info
	maxBytes int64
}

var _ Interceptor = (*FileSizeInterceptor)(nil)

func NewFileSizeInterceptor(maxBytes int64, opts ...Option) *FileSizeInterceptor {
	return &FileSizeInterceptor{
		info:     newInfo("file_size", PriorityFileSize, "Denies files larger than the configured size", opts),
		maxBytes: maxBytes,
	}
}

func (f *FileSizeInterceptor) IsAvailable() bool { return f.maxBytes > 0 }

func (f *FileSizeInterceptor) IsApplicable(pc *schema.ProtectionContext) bool {
	return pc != nil && pc.Size() > 0
}

func (f *FileSizeInterceptor) Intercept(_ context.Context, pc *schema.ProtectionContext) (schema.ProtectionDecision, error) {
	size := pc.Size()
	if size <= f.maxBytes {
		return schema.Allow("file size within limit"), nil
	}
	return schema.Deny(
		fmt.Sprintf("file too large: %d bytes exceeds %d", size, f.maxBytes),
		string(schema.ChunkTypeLine),
	).WithMetadata("file_size", size), nil
}

// InterceptFunc is the body of a FuncInterceptor.
type InterceptFunc func(ctx context.Context, pc *schema.ProtectionContext) (schema.ProtectionDecision, error)

// FuncInterceptor adapts a function into an Interceptor.
type FuncInterceptor struct {
	info
	fn         InterceptFunc
	applicable func(*schema.ProtectionContext) bool
}

var _ Interceptor = (*FuncInterceptor)(nil)

func NewFuncInterceptor(name string, priority int, fn InterceptFunc, opts ...Option) *FuncInterceptor {
	return &FuncInterceptor{
		info: newInfo(name, priority, "custom interceptor", opts),
		fn:   fn,
	}
}

// When restricts the interceptor to contexts matching pred.
func (f *FuncInterceptor) When(pred func(*schema.ProtectionContext) bool) *FuncInterceptor {
	f.applicable = pred
	return f
}

func (f *FuncInterceptor) IsAvailable() bool { return f.fn != nil }

func (f *FuncInterceptor) IsApplicable(pc *schema.ProtectionContext) bool {
	return f.applicable == nil || f.applicable(pc)
}

func (f *FuncInterceptor) Intercept(ctx context.Context, pc *schema.ProtectionContext) (schema.ProtectionDecision, error) {
	return f.fn(ctx, pc)
}
