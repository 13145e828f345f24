package memguard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sevigo/chunkguard/schema"
)

// PressureLevel grades how close heap usage is to the limit.
type PressureLevel int

const (
	PressureNone PressureLevel = iota
	PressureWarning
	PressureCritical
	PressureEmergency
)

func (l PressureLevel) String() string {
	switch l {
	case PressureWarning:
		return "warning"
	case PressureCritical:
		return "critical"
	case PressureEmergency:
		return "emergency"
	default:
		return "none"
	}
}

// Default thresholds in percent of the limit.
const (
	DefaultWarningPercent   = 70.0
	DefaultCriticalPercent  = 85.0
	DefaultEmergencyPercent = 95.0
	DefaultMonitorInterval  = 5 * time.Second
)

type PressureEvent struct {
	Level     PressureLevel
	Status    schema.MemoryStatus
	Timestamp time.Time
}

// DegradationNotice is broadcast process-wide when the guard degrades.
type DegradationNotice struct {
	Reason    string
	Status    schema.MemoryStatus
	Timestamp time.Time
}

type Thresholds struct {
	Warning   float64
	Critical  float64
	Emergency float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Warning:   DefaultWarningPercent,
		Critical:  DefaultCriticalPercent,
		Emergency: DefaultEmergencyPercent,
	}
}

// Level maps a usage percentage to a pressure level.
func (t Thresholds) Level(usagePercent float64) PressureLevel {
	switch {
	case usagePercent >= t.Emergency:
		return PressureEmergency
	case usagePercent >= t.Critical:
		return PressureCritical
	case usagePercent >= t.Warning:
		return PressureWarning
	default:
		return PressureNone
	}
}

// Monitor samples the heap on a fixed interval and publishes every sample to
// its subscribers, graded with a pressure level.
type Monitor struct {
	logger     *slog.Logger
	sampler    Sampler
	interval   time.Duration
	thresholds Thresholds

	mu          sync.RWMutex
	limit       uint64
	nextID      int
	subscribers map[int]func(PressureEvent)
	degradation map[int]func(DegradationNotice)
	stopCh      chan struct{}
	doneCh      chan struct{}
}

type MonitorOption func(*Monitor)

func WithSampler(s Sampler) MonitorOption {
	return func(m *Monitor) {
		if s != nil {
			m.sampler = s
		}
	}
}

func WithInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

func WithThresholds(t Thresholds) MonitorOption {
	return func(m *Monitor) {
		m.thresholds = t
	}
}

func NewMonitor(limit uint64, logger *slog.Logger, opts ...MonitorOption) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		logger:      logger.With("component", "memory_monitor"),
		sampler:     RuntimeSampler,
		interval:    DefaultMonitorInterval,
		thresholds:  DefaultThresholds(),
		limit:       limit,
		subscribers: make(map[int]func(PressureEvent)),
		degradation: make(map[int]func(DegradationNotice)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers fn for pressure events and returns its unsubscribe func.
func (m *Monitor) Subscribe(fn func(PressureEvent)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subscribers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}

// OnDegradation registers fn for degradation notices.
func (m *Monitor) OnDegradation(fn func(DegradationNotice)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.degradation[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.degradation, id)
	}
}

// NotifyDegradation delivers n to every degradation listener.
func (m *Monitor) NotifyDegradation(n DegradationNotice) {
	m.mu.RLock()
	listeners := make([]func(DegradationNotice), 0, len(m.degradation))
	for _, fn := range m.degradation {
		listeners = append(listeners, fn)
	}
	m.mu.RUnlock()

	for _, fn := range listeners {
		fn(n)
	}
}

func (m *Monitor) SetLimit(limit uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limit = limit
}

func (m *Monitor) Limit() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limit
}

// Sample takes one reading without publishing it.
func (m *Monitor) Sample() schema.MemoryStatus {
	return Status(m.sampler(), m.Limit())
}

// Check samples once and publishes the event.
func (m *Monitor) Check() PressureEvent {
	status := m.Sample()
	event := PressureEvent{Status: status, Timestamp: time.Now()}
	if m.Limit() > 0 {
		event.Level = m.thresholds.Level(status.UsagePercent)
	}

	m.mu.RLock()
	subs := make([]func(PressureEvent), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.RUnlock()

	for _, fn := range subs {
		fn(event)
	}
	return event
}

// Start begins periodic sampling. Calling Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.stopCh != nil {
		m.mu.Unlock()
		return
	}
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	stopCh, doneCh := m.stopCh, m.doneCh
	m.mu.Unlock()

	go m.loop(ctx, stopCh, doneCh)
	m.logger.InfoContext(ctx, "Memory monitor started", "interval", m.interval, "limit", m.Limit())
}

func (m *Monitor) loop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			m.Check()
		}
	}
}

// Stop halts sampling and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	stopCh, doneCh := m.stopCh, m.doneCh
	m.stopCh, m.doneCh = nil, nil
	m.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
	m.logger.Info("Memory monitor stopped")
}

func (m *Monitor) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stopCh != nil
}
