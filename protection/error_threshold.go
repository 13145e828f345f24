package protection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sevigo/chunkguard/schema"
)

const DefaultResetInterval = time.Minute

// ErrorThresholdStatus is a snapshot of the rolling error window.
type ErrorThresholdStatus struct {
	ErrorCount     int           `json:"errorCount"`
	MaxErrors      int           `json:"maxErrors"`
	TimeUntilReset time.Duration `json:"timeUntilReset"`
	LastErrorTime  time.Time     `json:"lastErrorTime"`
	LastError      string        `json:"lastError,omitempty"`
}

// ErrorThresholdInterceptor counts processing errors in a window that starts
// with the first error and lasts ResetInterval. Once MaxErrors is reached,
// it denies work until the window expires.
type ErrorThresholdInterceptor struct {
	info
	logger        *slog.Logger
	maxErrors     int
	resetInterval time.Duration
	now           func() time.Time

	mu          sync.Mutex
	count       int
	windowStart time.Time
	lastErrorAt time.Time
	lastError   string
}

var _ Interceptor = (*ErrorThresholdInterceptor)(nil)

func NewErrorThresholdInterceptor(maxErrors int, resetInterval time.Duration, logger *slog.Logger, opts ...Option) *ErrorThresholdInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	if maxErrors <= 0 {
		maxErrors = schema.DefaultErrorThreshold
	}
	if resetInterval <= 0 {
		resetInterval = DefaultResetInterval
	}
	return &ErrorThresholdInterceptor{
		info:          newInfo("error_threshold", PriorityErrorThreshold, "Denies work after too many recent processing errors", opts),
		logger:        logger.With("component", "error_threshold"),
		maxErrors:     maxErrors,
		resetInterval: resetInterval,
		now:           time.Now,
	}
}

// SetClock replaces time.Now, for tests.
func (e *ErrorThresholdInterceptor) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// expire resets the window once ResetInterval has passed. Callers hold mu.
func (e *ErrorThresholdInterceptor) expire(now time.Time) {
	if e.count > 0 && now.Sub(e.windowStart) >= e.resetInterval {
		e.count = 0
		e.windowStart = time.Time{}
	}
}

// RecordError counts err against the current window.
func (e *ErrorThresholdInterceptor) RecordError(err error, pc *schema.ProtectionContext) {
	e.mu.Lock()
	now := e.now()
	e.expire(now)
	if e.count == 0 {
		e.windowStart = now
	}
	e.count++
	e.lastErrorAt = now
	if err != nil {
		e.lastError = err.Error()
	}
	count := e.count
	e.mu.Unlock()

	attrs := []any{"error_count", count, "max_errors", e.maxErrors, "error", err}
	if pc != nil && pc.FilePath != "" {
		attrs = append(attrs, "file", pc.FilePath)
	}
	if count == e.maxErrors {
		e.logger.Warn("Error threshold reached, switching to fallback processing", attrs...)
		return
	}
	e.logger.Debug("Recorded processing error", attrs...)
}

// ShouldUseFallback reports whether the threshold is reached in the current
// window.
func (e *ErrorThresholdInterceptor) ShouldUseFallback() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expire(e.now())
	return e.count >= e.maxErrors
}

func (e *ErrorThresholdInterceptor) Status() ErrorThresholdStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	e.expire(now)

	status := ErrorThresholdStatus{
		ErrorCount:    e.count,
		MaxErrors:     e.maxErrors,
		LastErrorTime: e.lastErrorAt,
		LastError:     e.lastError,
	}
	if e.count > 0 {
		status.TimeUntilReset = max(0, e.resetInterval-now.Sub(e.windowStart))
	}
	return status
}

// Stats converts the window into the error stats carried by a protection
// context. ErrorRate is errors per minute of window.
func (e *ErrorThresholdInterceptor) Stats() schema.ErrorStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	e.expire(now)

	stats := schema.ErrorStats{Count: e.count, LastErrorTime: e.lastErrorAt}
	if e.count > 0 {
		elapsed := max(now.Sub(e.windowStart), time.Second)
		stats.ErrorRate = float64(e.count) / elapsed.Minutes()
	}
	return stats
}

func (e *ErrorThresholdInterceptor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count = 0
	e.windowStart = time.Time{}
	e.lastError = ""
}

func (e *ErrorThresholdInterceptor) IsAvailable() bool { return true }

func (e *ErrorThresholdInterceptor) IsApplicable(*schema.ProtectionContext) bool { return true }

func (e *ErrorThresholdInterceptor) Intercept(_ context.Context, _ *schema.ProtectionContext) (schema.ProtectionDecision, error) {
	status := e.Status()
	if status.ErrorCount < status.MaxErrors {
		return schema.Allow("error count below threshold"), nil
	}
	return schema.Deny(
		fmt.Sprintf("error threshold reached: %d errors, resets in %s", status.ErrorCount, status.TimeUntilReset.Round(time.Second)),
		string(schema.ChunkTypeGeneric),
	).WithMetadata("error_count", status.ErrorCount), nil
}
