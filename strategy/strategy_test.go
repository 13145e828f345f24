package strategy_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/chunkguard/memguard"
	"github.com/sevigo/chunkguard/parsers"
	logger "github.com/sevigo/chunkguard/parsers/testing"
	"github.com/sevigo/chunkguard/schema"
	"github.com/sevigo/chunkguard/strategy"
	"github.com/sevigo/chunkguard/textsplitter"
)

// stubStrategy returns fixed chunks and counts calls per content.
type stubStrategy struct {
	chunks []schema.Chunk
	err    error
	gate   chan struct{}

	mu    sync.Mutex
	calls map[string]int
	total atomic.Int32
}

func newStub(chunks ...schema.Chunk) *stubStrategy {
	return &stubStrategy{chunks: chunks, calls: make(map[string]int)}
}

func (s *stubStrategy) Split(_ context.Context, content, _, _ string, _ *schema.ChunkingOptions) ([]schema.Chunk, error) {
	s.total.Add(1)
	s.mu.Lock()
	s.calls[content]++
	s.mu.Unlock()
	if s.gate != nil {
		<-s.gate
	}
	if s.err != nil {
		return nil, s.err
	}
	out := make([]schema.Chunk, len(s.chunks))
	for i, c := range s.chunks {
		out[i] = c.Clone()
	}
	return out, nil
}

func (s *stubStrategy) callsFor(content string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[content]
}

func (s *stubStrategy) Name() string                 { return "stub" }
func (s *stubStrategy) SupportsLanguage(string) bool { return true }
func (s *stubStrategy) Description() string          { return "stub strategy" }

func chunk(content string, start, end int, language string) schema.Chunk {
	c := schema.NewChunk(content, schema.ChunkMetadata{StartLine: start, EndLine: end, Language: language, Type: schema.ChunkTypeSemantic})
	c.SetExtra("origin", "stub")
	return c
}

func tinyOptions() schema.ChunkingOptions {
	opts := schema.DefaultChunkingOptions()
	opts.MaxChunkSize = 4
	opts.OverlapSize = 2
	opts.MaxOverlapRatio = 0.3
	return opts
}

func newCache(t *testing.T, base strategy.SplitStrategy, size int) *strategy.CacheDecorator {
	t.Helper()
	log, _ := logger.NewTestLogger(t)
	d, err := strategy.NewCacheDecorator(base, size, 0, log, nil)
	require.NoError(t, err)
	return d
}

func TestCacheDecorator_Idempotent(t *testing.T) {
	base := newStub(chunk("hello", 1, 1, "go"))
	cache := newCache(t, base, 10)
	ctx := context.Background()

	first, err := cache.Split(ctx, "hello", "go", "a.go", nil)
	require.NoError(t, err)
	second, err := cache.Split(ctx, "hello", "go", "a.go", nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, base.callsFor("hello"))

	stats := cache.CacheStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 0.0001)
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, 10, stats.Capacity)
	assert.Equal(t, "stub_cached", cache.Name())
}

func TestCacheDecorator_ReturnsDeepClones(t *testing.T) {
	base := newStub(chunk("hello", 1, 1, "go"))
	cache := newCache(t, base, 10)
	ctx := context.Background()

	got, err := cache.Split(ctx, "hello", "go", "a.go", nil)
	require.NoError(t, err)
	got[0].Content = "mutated"
	got[0].Metadata.Extra["origin"] = "mutated"

	again, err := cache.Split(ctx, "hello", "go", "a.go", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", again[0].Content)
	assert.Equal(t, "stub", again[0].Metadata.Extra["origin"])

	again[0].Metadata.Extra["origin"] = "mutated again"
	third, err := cache.Split(ctx, "hello", "go", "a.go", nil)
	require.NoError(t, err)
	assert.Equal(t, "stub", third[0].Metadata.Extra["origin"])
}

func TestCacheDecorator_KeyIncludesEveryInput(t *testing.T) {
	base := newStub(chunk("x", 1, 1, "go"))
	cache := newCache(t, base, 10)
	ctx := context.Background()
	opts := schema.DefaultChunkingOptions()

	calls := []func() error{
		func() error { _, err := cache.Split(ctx, "x", "go", "a.go", nil); return err },
		func() error { _, err := cache.Split(ctx, "x", "go", "a.go", &opts); return err },
		func() error { _, err := cache.Split(ctx, "x", "python", "a.go", nil); return err },
		func() error { _, err := cache.Split(ctx, "x", "go", "b.go", nil); return err },
	}
	for _, call := range calls {
		require.NoError(t, call())
	}
	assert.Equal(t, 4, base.callsFor("x"))
	assert.Equal(t, 4, cache.CacheStats().Size)
}

func TestCacheDecorator_EvictsInInsertionOrder(t *testing.T) {
	base := newStub(chunk("x", 1, 1, "text"))
	cache := newCache(t, base, 2)
	ctx := context.Background()
	split := func(content string) {
		_, err := cache.Split(ctx, content, "text", "", nil)
		require.NoError(t, err)
	}

	split("a")
	split("b")
	split("a") // a hit must not refresh a
	split("c") // evicts a, the oldest insert
	require.Equal(t, 1, base.callsFor("a"))

	split("b")
	assert.Equal(t, 1, base.callsFor("b"), "b is still cached")
	split("a")
	assert.Equal(t, 2, base.callsFor("a"), "a was evicted first")
}

func TestCacheDecorator_SharesConcurrentMisses(t *testing.T) {
	base := newStub(chunk("x", 1, 1, "go"))
	base.gate = make(chan struct{})
	cache := newCache(t, base, 10)

	const callers = 5
	var wg sync.WaitGroup
	results := make([][]schema.Chunk, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			chunks, err := cache.Split(context.Background(), "same", "go", "a.go", nil)
			assert.NoError(t, err)
			results[i] = chunks
		}()
	}

	require.Eventually(t, func() bool { return base.total.Load() == 1 }, time.Second, time.Millisecond)
	close(base.gate)
	wg.Wait()

	assert.Equal(t, int32(1), base.total.Load())
	stats := cache.CacheStats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(callers-1), stats.Hits)
	for _, r := range results {
		require.Len(t, r, 1)
	}
	results[0][0].Content = "changed"
	assert.Equal(t, "x", results[1][0].Content, "waiters get their own copies")
}

func TestCacheDecorator_ErrorsAreNotCached(t *testing.T) {
	base := newStub()
	base.err = errors.New("boom")
	cache := newCache(t, base, 10)

	for range 2 {
		_, err := cache.Split(context.Background(), "x", "go", "", nil)
		require.ErrorIs(t, err, base.err)
	}
	assert.Equal(t, 2, base.callsFor("x"))
	assert.Zero(t, cache.CacheStats().Size)
}

func TestCacheDecorator_CleanupAndClear(t *testing.T) {
	base := newStub(chunk("12345", 1, 1, "go"))
	cache := newCache(t, base, 10)
	ctx := context.Background()
	_, err := cache.Split(ctx, "a", "go", "", nil)
	require.NoError(t, err)
	_, err = cache.Split(ctx, "b", "go", "", nil)
	require.NoError(t, err)

	freed, err := cache.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), freed)
	assert.Zero(t, cache.CacheStats().Size)

	_, err = cache.Split(ctx, "a", "go", "", nil)
	require.NoError(t, err)
	cache.ClearCache()
	stats := cache.CacheStats()
	assert.Zero(t, stats.Size)
	assert.Zero(t, stats.Hits)
	assert.Zero(t, stats.Misses)
}

func TestOverlapDecorator(t *testing.T) {
	log, _ := logger.NewTestLogger(t)
	ctx := context.Background()
	opts := tinyOptions()

	t.Run("small code chunks are left alone", func(t *testing.T) {
		chunks := []schema.Chunk{chunk("ab", 1, 1, "go"), chunk("cd", 2, 2, "go"), chunk("ef", 3, 3, "go")}
		d := strategy.NewOverlapDecorator(newStub(chunks...), nil, log)

		got, err := d.Split(ctx, "ab\ncd\nef", "go", "main.go", &opts)
		require.NoError(t, err)
		assert.Equal(t, chunks, got)
		for _, c := range got {
			assert.False(t, c.Metadata.HasOverlap)
		}
	})

	t.Run("oversized code chunk is re-split with overlap", func(t *testing.T) {
		long := strings.Repeat("abcdefghij", 4)
		d := strategy.NewOverlapDecorator(newStub(chunk("ab", 1, 1, "go"), chunk(long, 2, 2, "go")), nil, log)

		got, err := d.Split(ctx, "ab\n"+long, "go", "main.go", &opts)
		require.NoError(t, err)
		require.Greater(t, len(got), 2)
		assert.Equal(t, "ab", got[0].Content)

		pieces := got[1:]
		for i, piece := range pieces {
			assert.LessOrEqual(t, len(piece.Content), 4)
			if i == 0 {
				continue
			}
			require.True(t, piece.Metadata.HasOverlap, "piece %d", i)
			tail := piece.Content[:piece.Metadata.OverlapSize]
			assert.NotEmpty(t, tail)
			assert.True(t, strings.HasSuffix(pieces[i-1].Content, tail), "piece %d must start with its predecessor's tail", i)
		}
	})

	t.Run("single chunk is returned unchanged", func(t *testing.T) {
		long := strings.Repeat("x", 40)
		only := chunk(long, 1, 1, "go")
		d := strategy.NewOverlapDecorator(newStub(only), nil, log)

		got, err := d.Split(ctx, long, "go", "main.go", &opts)
		require.NoError(t, err)
		assert.Equal(t, []schema.Chunk{only}, got)
	})

	t.Run("text chunks always get overlap", func(t *testing.T) {
		chunks := []schema.Chunk{chunk("alpha\nbeta", 1, 2, "text"), chunk("gamma\ndelta", 3, 4, "text")}
		d := strategy.NewOverlapDecorator(newStub(chunks...), nil, log)
		textOpts := schema.DefaultChunkingOptions()
		textOpts.OverlapSize = 5

		got, err := d.Split(ctx, "alpha\nbeta\ngamma\ndelta", "text", "notes.txt", &textOpts)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.True(t, got[1].Metadata.HasOverlap)
		assert.Equal(t, 2, got[1].Metadata.StartLine)
		assert.Equal(t, "beta\ngamma\ndelta", got[1].Content)
		assert.Equal(t, "stub_with_overlap", d.Name())
	})

	t.Run("base errors pass through", func(t *testing.T) {
		base := newStub()
		base.err = errors.New("broken")
		d := strategy.NewOverlapDecorator(base, nil, log)
		_, err := d.Split(ctx, "x", "go", "", nil)
		require.ErrorIs(t, err, base.err)
	})
}

func TestPerformanceDecorator(t *testing.T) {
	log, buf := logger.NewTestLogger(t)
	base := newStub(chunk("a", 1, 1, "go"), chunk("b", 2, 2, "go"))
	d := strategy.NewPerformanceDecorator(base, log, nil)
	ctx := context.Background()

	for range 2 {
		_, err := d.Split(ctx, "a\nb", "go", "main.go", nil)
		require.NoError(t, err)
	}
	stats := d.PerformanceStats()
	assert.Equal(t, int64(2), stats.SplitCount)
	assert.Equal(t, int64(4), stats.TotalChunks)
	assert.InDelta(t, 2.0, stats.AverageChunks, 0.0001)
	assert.Contains(t, buf.String(), "language=go")
	assert.Equal(t, "stub_monitored", d.Name())

	d.ResetPerformanceStats()
	assert.Zero(t, d.PerformanceStats().SplitCount)

	empty := strategy.NewPerformanceDecorator(newStub(), log, nil)
	chunks, err := empty.Split(ctx, "", "go", "", nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Contains(t, buf.String(), "avg_ms_per_chunk=0.00")
}

func TestPerformanceDecorator_ReRaisesUnchanged(t *testing.T) {
	log, buf := logger.NewTestLogger(t)
	wantErr := errors.New("algorithm bug")
	base := newStub()
	base.err = wantErr
	d := strategy.NewPerformanceDecorator(base, log, nil)

	_, err := d.Split(context.Background(), "x", "go", "main.go", nil)
	require.Equal(t, wantErr, err)
	assert.Equal(t, int64(1), d.PerformanceStats().Errors)
	assert.Zero(t, d.PerformanceStats().SplitCount)
	assert.Contains(t, buf.String(), "Split strategy failed")
	assert.Contains(t, buf.String(), "strategy=stub")
}

func TestDecoratorBuilder_FixedOrder(t *testing.T) {
	log, _ := logger.NewTestLogger(t)
	base := newStub(chunk("ab", 1, 1, "go"))

	first, err := strategy.NewDecoratorBuilder(base, log).
		WithCache(strategy.CacheConfig{MaxSize: 5}).
		WithOverlap(strategy.OverlapConfig{}).
		WithPerformanceMonitor(strategy.PerformanceConfig{}).
		Build()
	require.NoError(t, err)

	second, err := strategy.NewDecoratorBuilder(base, log).
		WithOverlap(strategy.OverlapConfig{}).
		WithPerformanceMonitor(strategy.PerformanceConfig{}).
		WithCache(strategy.CacheConfig{MaxSize: 5}).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "stub_with_overlap_monitored_cached", first.Name())
	assert.Equal(t, first.Name(), second.Name())
	assert.IsType(t, &strategy.CacheDecorator{}, first)
	assert.IsType(t, &strategy.CacheDecorator{}, second)

	a, err := first.Split(context.Background(), "ab", "go", "main.go", nil)
	require.NoError(t, err)
	b, err := second.Split(context.Background(), "ab", "go", "main.go", nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDecoratorBuilder_ResetAndOptions(t *testing.T) {
	base := newStub()
	b := strategy.NewDecoratorBuilder(base, nil).
		WithOverlap(strategy.OverlapConfig{}).
		WithPerformanceMonitor(strategy.PerformanceConfig{})

	opts := b.Options()
	assert.True(t, opts.Overlap.Enabled)
	assert.True(t, opts.Performance.Enabled)
	assert.False(t, opts.Cache.Enabled)

	s, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, "stub_with_overlap_monitored", s.Name())

	s, err = b.Reset().Build()
	require.NoError(t, err)
	assert.Equal(t, "stub", s.Name())

	_, err = strategy.NewDecoratorBuilder(nil, nil).Build()
	require.ErrorIs(t, err, strategy.ErrNilStrategy)
}

func TestFactory(t *testing.T) {
	log, _ := logger.NewTestLogger(t)
	registry, err := parsers.RegisterLanguagePlugins(log)
	require.NoError(t, err)
	cleanup := memguard.NewCleanupManager(log)

	f := strategy.NewFactory(textsplitter.New(log), log,
		strategy.WithRegistry(registry),
		strategy.WithCleanupManager(cleanup),
		strategy.WithDecorators(strategy.DecoratorOptions{
			Overlap: strategy.OverlapConfig{Enabled: true},
			Cache:   strategy.CacheConfig{Enabled: true, MaxSize: 10},
		}))

	tests := []struct {
		name     string
		language string
		path     string
		hints    strategy.Hints
		want     string
	}{
		{"go plugin", "go", "main.go", strategy.Hints{IsCode: true}, "go_ast"},
		{"terraform plugin", "", "infra/main.tf", strategy.Hints{IsCode: true}, "terraform_hcl"},
		{"markdown plugin", "markdown", "README.md", strategy.Hints{IsMarkdown: true}, "markdown"},
		{"protobuf plugin", "", "api/user.proto", strategy.Hints{IsCode: true}, "protobuf_ast"},
		{"yaml plugin", "yaml", "deploy/values.yml", strategy.Hints{}, "yaml_structure"},
		{"simple code", "python", "app.py", strategy.Hints{IsCode: true, Complexity: 3}, "semantic"},
		{"complex code", "java", "App.java", strategy.Hints{IsCode: true, Complexity: 9}, "bracket"},
		{"xml", "xml", "pom.xml", strategy.Hints{IsXML: true}, "bracket"},
		{"plain text", "text", "notes.txt", strategy.Hints{}, "generic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Select(tt.language, tt.path, tt.hints).Name())
			s, err := f.Create(tt.language, tt.path, tt.hints)
			require.NoError(t, err)
			assert.Equal(t, tt.want+"_with_overlap_cached", s.Name())
		})
	}

	again, err := f.Create("python", "app.py", strategy.Hints{IsCode: true})
	require.NoError(t, err)
	byName, err := f.ByName("semantic")
	require.NoError(t, err)
	assert.Same(t, again, byName, "decorated strategies are built once per base")

	_, err = f.ByName("go_ast")
	require.NoError(t, err)
	_, err = f.ByName("nope")
	require.ErrorIs(t, err, strategy.ErrUnknownStrategy)

	assert.Contains(t, cleanup.Registered(), "semantic_with_overlap_cached")
	assert.Contains(t, cleanup.Registered(), "go_ast_with_overlap_cached")
}
