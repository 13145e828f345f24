// Package guard is the top-level entry point: it detects the language of a
// file, derives processing features, runs the selected strategy behind the
// protection layer and turns every failure into a fallback result.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sevigo/chunkguard/memguard"
	"github.com/sevigo/chunkguard/protection"
	"github.com/sevigo/chunkguard/schema"
	"github.com/sevigo/chunkguard/strategy"
	"github.com/sevigo/chunkguard/textsplitter"
)

const DefaultInitTimeout = 5 * time.Second

var (
	ErrInitTimeout     = errors.New("guard: initialization timed out")
	ErrMemoryPressure  = errors.New("guard: memory limit exceeded")
	ErrErrorThreshold  = errors.New("guard: error threshold reached")
	ErrMissingFactory  = errors.New("guard: strategy factory is required")
	ErrStrategyPanic   = errors.New("guard: strategy panicked")
	ErrCoordinatorDown = errors.New("guard: coordinator is closed")
)

// FallbackStrategyName is the strategy recorded on fallback results.
const FallbackStrategyName = "fallback"

// Deps are the collaborators of a Coordinator. Only Factory is required.
type Deps struct {
	Factory        *strategy.Factory
	Detector       Detector
	Memory         *memguard.Guard
	Protection     *protection.Coordinator
	ErrorThreshold *protection.ErrorThresholdInterceptor
	Fallback       FallbackEngine
	Logger         *slog.Logger
}

type Option func(*Coordinator)

func WithInitTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.initTimeout = d
		}
	}
}

// WithChunkingOptions sets the options passed to every strategy.
func WithChunkingOptions(opts schema.ChunkingOptions) Option {
	return func(c *Coordinator) {
		c.opts = &opts
	}
}

// WithMemoryMonitoring controls whether Initialize starts the background
// heap monitor. The memory guard is still sampled per file when disabled.
func WithMemoryMonitoring(enabled bool) Option {
	return func(c *Coordinator) {
		c.monitoring = enabled
	}
}

// WithProtectionTimeout bounds each protection check; an expired check
// allows the file.
func WithProtectionTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.protectionTimeout = d
	}
}

// ProcessingResult is the outcome of one file. Success is always true;
// degraded results carry FallbackReason.
type ProcessingResult struct {
	ID               string                 `json:"id"`
	FilePath         string                 `json:"filePath"`
	Language         string                 `json:"language"`
	Chunks           []schema.Chunk         `json:"chunks"`
	Strategy         string                 `json:"strategy"`
	Detection        schema.DetectionResult `json:"detection"`
	Context          ProcessingContext      `json:"context"`
	Success          bool                   `json:"success"`
	FallbackReason   string                 `json:"fallbackReason,omitempty"`
	FallbackStrategy string                 `json:"fallbackStrategy,omitempty"`
	Duration         time.Duration          `json:"duration"`
}

// Status combines the collaborators' snapshots.
type Status struct {
	Initialized    bool                            `json:"initialized"`
	Monitoring     bool                            `json:"monitoring"`
	ErrorThreshold protection.ErrorThresholdStatus `json:"errorThreshold"`
	Memory         *schema.MemoryStats             `json:"memory,omitempty"`
	Protection     *protection.Stats               `json:"protection,omitempty"`
	ProcessedFiles int64                           `json:"processedFiles"`
	Fallbacks      int64                           `json:"fallbacks"`
}

// Coordinator processes whole files and never fails a caller: every error
// ends in a single-chunk fallback result.
type Coordinator struct {
	logger            *slog.Logger
	factory           *strategy.Factory
	detector          Detector
	memory            *memguard.Guard
	protection        *protection.Coordinator
	errors            *protection.ErrorThresholdInterceptor
	fallback          FallbackEngine
	opts              *schema.ChunkingOptions
	initTimeout       time.Duration
	protectionTimeout time.Duration
	monitoring        bool

	ready     chan struct{}
	initOnce  sync.Once
	closeOnce sync.Once
	closed    atomic.Bool

	processed atomic.Int64
	fallbacks atomic.Int64
}

var _ textsplitter.DocumentSplitter = (*Coordinator)(nil)

func New(deps Deps, opts ...Option) (*Coordinator, error) {
	if deps.Factory == nil {
		return nil, ErrMissingFactory
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		logger:      logger.With("component", "guard_coordinator"),
		factory:     deps.Factory,
		detector:    deps.Detector,
		memory:      deps.Memory,
		protection:  deps.Protection,
		errors:      deps.ErrorThreshold,
		fallback:    deps.Fallback,
		initTimeout: DefaultInitTimeout,
		monitoring:  true,
		ready:       make(chan struct{}),
	}
	if c.detector == nil {
		c.detector = NewDetector(nil)
	}
	if c.fallback == nil {
		c.fallback = RuleFallbackEngine{}
	}
	if c.errors == nil {
		c.errors = protection.NewErrorThresholdInterceptor(0, 0, logger)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Initialize starts memory monitoring and marks the coordinator ready.
// Processing calls made before it wait up to the init timeout.
func (c *Coordinator) Initialize(ctx context.Context) error {
	if c.closed.Load() {
		return ErrCoordinatorDown
	}
	c.initOnce.Do(func() {
		monitoring := c.memory != nil && c.monitoring
		if monitoring {
			c.memory.StartMonitoring(ctx)
		}
		close(c.ready)
		c.logger.InfoContext(ctx, "Guard coordinator initialized", "memory_monitoring", monitoring)
	})
	return nil
}

func (c *Coordinator) initialized() bool {
	select {
	case <-c.ready:
		return true
	default:
		return false
	}
}

func (c *Coordinator) waitReady(ctx context.Context) error {
	if c.initialized() {
		return nil
	}
	timer := time.NewTimer(c.initTimeout)
	defer timer.Stop()
	select {
	case <-c.ready:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrInitTimeout, c.initTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProcessFileWithDetection detects, selects and runs a strategy for one
// file. It never returns an error; failures are recorded on the result.
func (c *Coordinator) ProcessFileWithDetection(ctx context.Context, filePath, content string) ProcessingResult {
	start := time.Now()
	c.processed.Add(1)
	result := ProcessingResult{ID: uuid.NewString(), FilePath: filePath, Success: true}
	finish := func(r ProcessingResult) ProcessingResult {
		r.Duration = time.Since(start)
		return r
	}

	if c.closed.Load() {
		return finish(c.fallbackResult(ctx, result, content, ErrCoordinatorDown, nil))
	}
	if err := c.waitReady(ctx); err != nil {
		return finish(c.fallbackResult(ctx, result, content, err, nil))
	}

	det := c.detector.Detect(filePath, content)
	pctx := NewProcessingContext(filePath, content, det)
	result.Language = det.Language
	result.Detection = det
	result.Context = pctx

	if strings.TrimSpace(content) == "" {
		result.Strategy = "none"
		return finish(result)
	}
	if det.Language == LanguageBinary {
		return finish(c.fallbackResult(ctx, result, content, errors.New("binary content"), &det))
	}

	if c.errors.ShouldUseFallback() {
		return finish(c.fallbackResult(ctx, result, content, ErrErrorThreshold, &det))
	}

	s, err := c.admit(ctx, filePath, content, det, pctx)
	if err != nil {
		return finish(c.fallbackResult(ctx, result, content, err, &det))
	}

	chunks, err := c.run(ctx, s, content, det.Language, filePath)
	if err != nil {
		c.errors.RecordError(err, protection.ChunkContext(filePath, det.Language, ""))
		return finish(c.fallbackResult(ctx, result, content, err, &det))
	}

	for i := range chunks {
		if chunks[i].Metadata.FilePath == "" {
			chunks[i].Metadata.FilePath = filePath
		}
		if chunks[i].Metadata.Strategy == "" {
			chunks[i].Metadata.Strategy = s.Name()
		}
	}
	result.Chunks = chunks
	result.Strategy = s.Name()
	c.logger.DebugContext(ctx, "File processed",
		"file", filePath, "language", det.Language, "strategy", s.Name(), "chunks", len(chunks))
	return finish(result)
}

// admit runs the protection check and returns the strategy to use. A deny
// with a recommended strategy switches to that strategy; a plain deny is an
// error.
func (c *Coordinator) admit(ctx context.Context, filePath, content string, det schema.DetectionResult, pctx ProcessingContext) (strategy.SplitStrategy, error) {
	if c.protection != nil {
		pc := protection.ChunkContext(filePath, det.Language, content)
		if c.memory != nil {
			snap := c.memory.Monitor().Sample().Snapshot()
			pc.Memory = &snap
		}
		if stats := c.errors.Stats(); stats.Count > 0 {
			pc.Errors = &stats
		}

		if decision := c.checkProtection(ctx, pc); !decision.Allow {
			if decision.RecommendedStrategy == "" {
				return nil, fmt.Errorf("%w: %s", protection.ErrOperationBlocked, decision.Reason)
			}
			c.logger.InfoContext(ctx, "Protection recommended a different strategy",
				"file", filePath, "strategy", decision.RecommendedStrategy, "reason", decision.Reason)
			return c.factory.ByName(decision.RecommendedStrategy)
		}
	}
	return c.factory.Create(det.Language, filePath, pctx.Hints())
}

func (c *Coordinator) checkProtection(ctx context.Context, pc *schema.ProtectionContext) schema.ProtectionDecision {
	if c.protectionTimeout > 0 {
		return c.protection.AsyncCheck(ctx, pc, c.protectionTimeout)
	}
	return c.protection.Check(ctx, pc)
}

func (c *Coordinator) run(ctx context.Context, s strategy.SplitStrategy, content, language, filePath string) (chunks []schema.Chunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrStrategyPanic, s.Name(), r)
		}
	}()
	chunks, err = s.Split(ctx, content, language, filePath, c.opts)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%s produced no chunks", s.Name())
	}
	return chunks, nil
}

// fallbackResult wraps the whole file in one generic chunk tagged with the
// fallback reason.
func (c *Coordinator) fallbackResult(ctx context.Context, r ProcessingResult, content string, cause error, det *schema.DetectionResult) ProcessingResult {
	c.fallbacks.Add(1)
	decision := c.fallback.DetermineFallbackStrategy(r.FilePath, cause, det)

	language := r.Language
	if language == "" {
		language = schema.LanguageUnknown
	}
	lines := textsplitter.LineCount(content)
	chunk := schema.NewChunk(content, schema.ChunkMetadata{
		StartLine:      1,
		EndLine:        lines,
		Language:       language,
		FilePath:       r.FilePath,
		Type:           schema.ChunkTypeGeneric,
		Complexity:     textsplitter.Complexity(content),
		Strategy:       FallbackStrategyName,
		FallbackReason: decision.Reason,
	})
	chunk.SetExtra("fallback_strategy", decision.Strategy)

	c.logger.WarnContext(ctx, "Falling back to whole-file chunk",
		"file", r.FilePath, "reason", decision.Reason, "recommended_strategy", decision.Strategy)

	r.Chunks = []schema.Chunk{chunk}
	r.Strategy = FallbackStrategyName
	r.FallbackReason = decision.Reason
	r.FallbackStrategy = decision.Strategy
	return r
}

// SplitDocuments processes every document whose "source" metadata names
// its path and returns one document per chunk.
func (c *Coordinator) SplitDocuments(ctx context.Context, docs []schema.Document) ([]schema.Document, error) {
	out := make([]schema.Document, 0, len(docs))
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		source, _ := doc.Metadata["source"].(string)
		result := c.ProcessFileWithDetection(ctx, source, doc.PageContent)
		for i, chunk := range result.Chunks {
			out = append(out, schema.NewDocument(chunk.Content, chunkMetadata(doc.Metadata, result, chunk, i)))
		}
	}
	return out, nil
}

func chunkMetadata(base map[string]any, r ProcessingResult, chunk schema.Chunk, index int) map[string]any {
	meta := make(map[string]any, len(base)+len(chunk.Metadata.Extra)+10)
	maps.Copy(meta, base)
	meta["processing_id"] = r.ID
	meta["language"] = chunk.Metadata.Language
	meta["identifier"] = chunk.Metadata.Identifier
	meta["chunk_type"] = string(chunk.Metadata.Type)
	meta["strategy"] = r.Strategy
	meta["line_start"] = chunk.Metadata.StartLine
	meta["line_end"] = chunk.Metadata.EndLine
	meta["chunk_index"] = index
	meta["total_chunks"] = len(r.Chunks)
	if r.FallbackReason != "" {
		meta["fallback_reason"] = r.FallbackReason
	}
	for k, v := range chunk.Metadata.Extra {
		meta[k] = v
	}
	return meta
}

func (c *Coordinator) Status() Status {
	s := Status{
		Initialized:    c.initialized(),
		ErrorThreshold: c.errors.Status(),
		ProcessedFiles: c.processed.Load(),
		Fallbacks:      c.fallbacks.Load(),
	}
	if c.memory != nil {
		stats := c.memory.Stats()
		s.Memory = &stats
		s.Monitoring = c.memory.IsMonitoring()
	}
	if c.protection != nil {
		stats := c.protection.Stats()
		s.Protection = &stats
	}
	return s
}

// Close stops monitoring and drops cached results. Later calls return
// fallback results.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.memory != nil {
			c.memory.StopMonitoring()
		}
		c.factory.ClearCaches()
		c.logger.Info("Guard coordinator closed",
			"processed_files", c.processed.Load(), "fallbacks", c.fallbacks.Load())
	})
	return nil
}
