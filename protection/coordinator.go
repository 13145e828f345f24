package protection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/slok/goresilience"
	resilienceerrors "github.com/slok/goresilience/errors"
	"github.com/slok/goresilience/timeout"

	"github.com/sevigo/chunkguard/metrics"
	"github.com/sevigo/chunkguard/schema"
)

const (
	DefaultCheckTimeout      = time.Second
	DefaultDecisionTTL       = 5 * time.Second
	DefaultDecisionCacheSize = 1000
)

// Stats are the coordinator counters. Failed checks count as errors, not as
// allowed operations, so BlockRate is blocked over total.
type Stats struct {
	TotalChecks       int64   `json:"totalChecks"`
	BlockedOperations int64   `json:"blockedOperations"`
	AllowedOperations int64   `json:"allowedOperations"`
	Errors            int64   `json:"errors"`
	BlockRate         float64 `json:"blockRate"`
}

type cachedDecision struct {
	decision schema.ProtectionDecision
	expires  time.Time
}

type CoordinatorOption func(*Coordinator)

func WithChain(chain *Chain) CoordinatorOption {
	return func(c *Coordinator) {
		c.chain = chain
	}
}

func WithMetrics(collector *metrics.Collector) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = collector
	}
}

func WithDecisionCacheSize(size int) CoordinatorOption {
	return func(c *Coordinator) {
		if size > 0 {
			c.cacheSize = size
		}
	}
}

// WithClock replaces time.Now for decision expiry.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// Coordinator turns chain decisions into yes/no answers. A failing chain
// never blocks work: the error is logged and counted and the operation is
// allowed.
type Coordinator struct {
	logger    *slog.Logger
	metrics   *metrics.Collector
	now       func() time.Time
	cacheSize int

	chainMu sync.RWMutex
	chain   *Chain

	total   atomic.Int64
	blocked atomic.Int64
	allowed atomic.Int64
	errs    atomic.Int64

	cache *lru.Cache[string, cachedDecision]

	lastMu sync.Mutex
	last   *schema.ProtectionDecision
}

func NewCoordinator(logger *slog.Logger, opts ...CoordinatorOption) (*Coordinator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		logger:    logger.With("component", "protection_coordinator"),
		now:       time.Now,
		cacheSize: DefaultDecisionCacheSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	cache, err := lru.New[string, cachedDecision](c.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("init decision cache: %w", err)
	}
	c.cache = cache
	return c, nil
}

func (c *Coordinator) SetChain(chain *Chain) {
	c.chainMu.Lock()
	defer c.chainMu.Unlock()
	c.chain = chain
}

func (c *Coordinator) Chain() *Chain {
	c.chainMu.RLock()
	defer c.chainMu.RUnlock()
	return c.chain
}

// Check returns the full decision for pc.
func (c *Coordinator) Check(ctx context.Context, pc *schema.ProtectionContext) schema.ProtectionDecision {
	c.total.Add(1)

	chain := c.Chain()
	if chain == nil {
		c.allowed.Add(1)
		c.metrics.ProtectionCheck(metrics.OutcomeAllowed)
		return c.remember(schema.Allow("no protection chain configured"))
	}

	decision, err := c.execute(ctx, chain, pc)
	if err != nil {
		c.errs.Add(1)
		c.metrics.ProtectionCheck(metrics.OutcomeError)
		c.logger.ErrorContext(ctx, "Protection check failed, allowing operation",
			"operation", operationOf(pc), "file", fileOf(pc), "error", err)
		return c.remember(schema.Allow("protection check failed: "+err.Error()).WithMetadata("failed_open", true))
	}

	if decision.Allow {
		c.allowed.Add(1)
		c.metrics.ProtectionCheck(metrics.OutcomeAllowed)
	} else {
		c.blocked.Add(1)
		c.metrics.ProtectionCheck(metrics.OutcomeBlocked)
		c.logger.WarnContext(ctx, "Operation blocked",
			"operation", operationOf(pc), "file", fileOf(pc),
			"reason", decision.Reason, "recommended_strategy", decision.RecommendedStrategy)
	}
	return c.remember(decision)
}

func (c *Coordinator) execute(ctx context.Context, chain *Chain, pc *schema.ProtectionContext) (decision schema.ProtectionDecision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in protection chain: %v", r)
		}
	}()
	return chain.Execute(ctx, pc)
}

// CheckProtection reports whether the operation described by pc may run.
func (c *Coordinator) CheckProtection(ctx context.Context, pc *schema.ProtectionContext) bool {
	return c.Check(ctx, pc).Allow
}

func (c *Coordinator) remember(d schema.ProtectionDecision) schema.ProtectionDecision {
	c.lastMu.Lock()
	c.last = &d
	c.lastMu.Unlock()
	return d
}

// LastDecision returns the most recent decision of any check.
func (c *Coordinator) LastDecision() (schema.ProtectionDecision, bool) {
	c.lastMu.Lock()
	defer c.lastMu.Unlock()
	if c.last == nil {
		return schema.ProtectionDecision{}, false
	}
	return *c.last, true
}

// AsyncProtectionCheck bounds the check by timeout and allows the operation
// when the check does not finish in time.
func (c *Coordinator) AsyncProtectionCheck(ctx context.Context, pc *schema.ProtectionContext, d time.Duration) bool {
	return c.AsyncCheck(ctx, pc, d).Allow
}

// AsyncCheck is AsyncProtectionCheck returning the full decision.
func (c *Coordinator) AsyncCheck(ctx context.Context, pc *schema.ProtectionContext, d time.Duration) schema.ProtectionDecision {
	if d <= 0 {
		d = DefaultCheckTimeout
	}
	runner := goresilience.RunnerChain(timeout.NewMiddleware(timeout.Config{Timeout: d}))

	result := make(chan schema.ProtectionDecision, 1)
	err := runner.Run(ctx, func(ctx context.Context) error {
		result <- c.Check(ctx, pc)
		return nil
	})
	if err != nil {
		if errors.Is(err, resilienceerrors.ErrTimeout) {
			c.logger.WarnContext(ctx, "Protection check timed out, allowing operation",
				"operation", operationOf(pc), "timeout", d)
			return schema.Allow("protection check timed out").WithMetadata("timed_out", true)
		}
		c.logger.ErrorContext(ctx, "Protection check could not run, allowing operation",
			"operation", operationOf(pc), "error", err)
		return schema.Allow("protection check could not run: "+err.Error()).WithMetadata("failed_open", true)
	}
	return <-result
}

// CachedProtectionCheck reuses a decision for the same operation, file,
// language and size until ttl expires.
func (c *Coordinator) CachedProtectionCheck(ctx context.Context, pc *schema.ProtectionContext, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = DefaultDecisionTTL
	}
	key := decisionKey(pc)
	now := c.now()
	if entry, ok := c.cache.Peek(key); ok && now.Before(entry.expires) {
		return entry.decision.Allow
	}

	decision := c.Check(ctx, pc)
	c.cache.Add(key, cachedDecision{decision: decision, expires: now.Add(ttl)})
	return decision.Allow
}

func decisionKey(pc *schema.ProtectionContext) string {
	if pc == nil {
		return "|||0"
	}
	return fmt.Sprintf("%s|%s|%s|%d", pc.OperationType, pc.FilePath, pc.Language, pc.Size())
}

// BatchProtectionCheck evaluates every context in order.
func (c *Coordinator) BatchProtectionCheck(ctx context.Context, pcs []*schema.ProtectionContext) []bool {
	out := make([]bool, len(pcs))
	for i, pc := range pcs {
		out[i] = c.CheckProtection(ctx, pc)
	}
	return out
}

// ClearCache drops every cached decision.
func (c *Coordinator) ClearCache() {
	c.cache.Purge()
}

func (c *Coordinator) Stats() Stats {
	s := Stats{
		TotalChecks:       c.total.Load(),
		BlockedOperations: c.blocked.Load(),
		AllowedOperations: c.allowed.Load(),
		Errors:            c.errs.Load(),
	}
	if s.TotalChecks > 0 {
		s.BlockRate = float64(s.BlockedOperations) / float64(s.TotalChecks)
	}
	return s
}

func (c *Coordinator) ResetStats() {
	c.total.Store(0)
	c.blocked.Store(0)
	c.allowed.Store(0)
	c.errs.Store(0)
}

// ExecuteWithProtection runs fn when the check built by build allows it.
// A denied check runs fallback, or returns ErrOperationBlocked without one.
// When fn fails, fallback runs if given; otherwise fn's error is returned.
func ExecuteWithProtection[T any](
	ctx context.Context,
	c *Coordinator,
	operation string,
	build func() *schema.ProtectionContext,
	fn func(context.Context) (T, error),
	fallback func(context.Context) (T, error),
) (T, error) {
	var zero T
	pc := &schema.ProtectionContext{}
	if build != nil {
		if built := build(); built != nil {
			pc = built
		}
	}
	if pc.OperationType == "" {
		pc.OperationType = operation
	}

	decision := c.Check(ctx, pc)
	if !decision.Allow {
		if fallback != nil {
			return fallback(ctx)
		}
		return zero, fmt.Errorf("%w: %s: %s", ErrOperationBlocked, operation, decision.Reason)
	}

	result, err := fn(ctx)
	if err != nil && fallback != nil {
		c.logger.WarnContext(ctx, "Protected operation failed, running fallback",
			"operation", operation, "error", err)
		return fallback(ctx)
	}
	return result, err
}

func operationOf(pc *schema.ProtectionContext) string {
	if pc == nil {
		return ""
	}
	return pc.OperationType
}

func fileOf(pc *schema.ProtectionContext) string {
	if pc == nil {
		return ""
	}
	return pc.FilePath
}
