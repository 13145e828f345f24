package memguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/sevigo/chunkguard/schema"
)

var ErrNoCleanupManager = errors.New("no cleanup manager configured")

// Cleanable is anything holding memory that can be released on demand,
// typically a cache. Cleanup returns an estimate of the bytes freed.
type Cleanable interface {
	Name() string
	Cleanup(ctx context.Context) (int64, error)
}

type CleanupContext struct {
	TriggerReason string
	MemoryUsage   schema.MemorySnapshot
	Timestamp     time.Time
}

type CleanupResult struct {
	Success       bool
	MemoryFreed   int64
	CleanedCaches []string
	Err           error
}

// Cleaner is the contract the guard depends on.
type Cleaner interface {
	PerformCleanup(ctx context.Context, cc CleanupContext) CleanupResult
}

// CleanupManager runs every registered Cleanable in registration order.
type CleanupManager struct {
	logger *slog.Logger

	mu        sync.RWMutex
	cleanable []Cleanable
}

var _ Cleaner = (*CleanupManager)(nil)

func NewCleanupManager(logger *slog.Logger) *CleanupManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupManager{logger: logger.With("component", "cleanup_manager")}
}

// Register adds c, replacing any earlier registration with the same name.
func (m *CleanupManager) Register(c Cleanable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanable = slices.DeleteFunc(m.cleanable, func(existing Cleanable) bool {
		return existing.Name() == c.Name()
	})
	m.cleanable = append(m.cleanable, c)
}

func (m *CleanupManager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanable = slices.DeleteFunc(m.cleanable, func(c Cleanable) bool {
		return c.Name() == name
	})
}

func (m *CleanupManager) Registered() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.cleanable))
	for _, c := range m.cleanable {
		names = append(names, c.Name())
	}
	return names
}

// PerformCleanup keeps going after a failing Cleanable; the joined errors are
// reported in the result and Success is false if any failed.
func (m *CleanupManager) PerformCleanup(ctx context.Context, cc CleanupContext) CleanupResult {
	m.mu.RLock()
	targets := slices.Clone(m.cleanable)
	m.mu.RUnlock()

	result := CleanupResult{Success: true}
	var errs []error
	for _, c := range targets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		freed, err := c.Cleanup(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("cleanup %s: %w", c.Name(), err))
			continue
		}
		result.MemoryFreed += freed
		result.CleanedCaches = append(result.CleanedCaches, c.Name())
	}
	if len(errs) > 0 {
		result.Success = false
		result.Err = errors.Join(errs...)
	}

	m.logger.DebugContext(ctx, "Cleanup finished",
		"reason", cc.TriggerReason,
		"heap_used", cc.MemoryUsage.HeapUsed,
		"freed", result.MemoryFreed,
		"caches", result.CleanedCaches,
		"success", result.Success)
	return result
}
