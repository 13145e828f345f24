package strategy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mohae/deepcopy"
	"golang.org/x/sync/singleflight"

	"github.com/sevigo/chunkguard/memguard"
	"github.com/sevigo/chunkguard/metrics"
	"github.com/sevigo/chunkguard/schema"
)

const DefaultCacheSize = 100

// CacheStats is a point-in-time view of a CacheDecorator.
type CacheStats struct {
	Size     int           `json:"size"`
	Hits     int64         `json:"hits"`
	Misses   int64         `json:"misses"`
	HitRate  float64       `json:"hitRate"`
	Capacity int           `json:"capacity"`
	TTL      time.Duration `json:"ttl"`
}

// CacheDecorator memoizes chunk lists by content, language, path and options.
// Entries are read with Peek so recency never changes and the oldest insert
// is evicted first. Concurrent misses on one key share a single call of the
// wrapped strategy; the callers that waited count as hits.
type CacheDecorator struct {
	base     SplitStrategy
	logger   *slog.Logger
	metrics  *metrics.Collector
	capacity int
	ttl      time.Duration

	cache  *lru.Cache[string, []schema.Chunk]
	group  singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64
}

var (
	_ SplitStrategy      = (*CacheDecorator)(nil)
	_ memguard.Cleanable = (*CacheDecorator)(nil)
)

// NewCacheDecorator creates a cache holding at most maxSize results. The ttl
// is reported through CacheStats; callers that need expiry clear the cache.
func NewCacheDecorator(
	base SplitStrategy,
	maxSize int,
	ttl time.Duration,
	logger *slog.Logger,
	collector *metrics.Collector,
) (*CacheDecorator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	cache, err := lru.New[string, []schema.Chunk](maxSize)
	if err != nil {
		return nil, fmt.Errorf("init split cache: %w", err)
	}
	return &CacheDecorator{
		base:     base,
		logger:   logger.With("component", "cache_decorator"),
		metrics:  collector,
		capacity: maxSize,
		ttl:      ttl,
		cache:    cache,
	}, nil
}

func (d *CacheDecorator) Split(
	ctx context.Context,
	content, language, filePath string,
	opts *schema.ChunkingOptions,
) ([]schema.Chunk, error) {
	key, err := cacheKey(content, language, filePath, opts)
	if err != nil {
		return nil, err
	}

	if cached, ok := d.cache.Peek(key); ok {
		d.hit()
		return cloneChunks(cached), nil
	}

	leader := false
	v, err, _ := d.group.Do(key, func() (any, error) {
		leader = true
		chunks, err := d.base.Split(ctx, content, language, filePath, opts)
		if err != nil {
			return nil, err
		}
		d.cache.Add(key, cloneChunks(chunks))
		return chunks, nil
	})
	if leader {
		d.misses.Add(1)
		d.metrics.CacheMiss()
	} else {
		d.hit()
	}
	if err != nil {
		return nil, err
	}

	chunks, ok := v.([]schema.Chunk)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected cached value %T", d.Name(), v)
	}
	return cloneChunks(chunks), nil
}

func (d *CacheDecorator) hit() {
	d.hits.Add(1)
	d.metrics.CacheHit()
}

// cacheKey is sha256(content):language:filePath:sha256(json(opts)), with
// "default" hashed in place of absent options.
func cacheKey(content, language, filePath string, opts *schema.ChunkingOptions) (string, error) {
	optsBytes := []byte("default")
	if opts != nil {
		b, err := json.Marshal(opts)
		if err != nil {
			return "", fmt.Errorf("encode options for cache key: %w", err)
		}
		optsBytes = b
	}
	contentSum := sha256.Sum256([]byte(content))
	optsSum := sha256.Sum256(optsBytes)
	return hex.EncodeToString(contentSum[:]) + ":" + language + ":" + filePath + ":" + hex.EncodeToString(optsSum[:]), nil
}

func cloneChunks(chunks []schema.Chunk) []schema.Chunk {
	if chunks == nil {
		return nil
	}
	cloned, ok := deepcopy.Copy(chunks).([]schema.Chunk)
	if !ok {
		out := make([]schema.Chunk, len(chunks))
		for i, c := range chunks {
			out[i] = c.Clone()
		}
		return out
	}
	return cloned
}

func (d *CacheDecorator) CacheStats() CacheStats {
	hits, misses := d.hits.Load(), d.misses.Load()
	rate := 0.0
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return CacheStats{
		Size:     d.cache.Len(),
		Hits:     hits,
		Misses:   misses,
		HitRate:  rate,
		Capacity: d.capacity,
		TTL:      d.ttl,
	}
}

// ClearCache drops every entry and resets the counters.
func (d *CacheDecorator) ClearCache() {
	d.cache.Purge()
	d.hits.Store(0)
	d.misses.Store(0)
}

// Cleanup releases all cached results and reports the content bytes held.
func (d *CacheDecorator) Cleanup(ctx context.Context) (int64, error) {
	var freed int64
	for _, key := range d.cache.Keys() {
		if chunks, ok := d.cache.Peek(key); ok {
			for _, c := range chunks {
				freed += int64(len(c.Content))
			}
		}
	}
	entries := d.cache.Len()
	d.cache.Purge()
	d.logger.DebugContext(ctx, "Split cache released", "strategy", d.base.Name(), "entries", entries, "bytes", freed)
	return freed, nil
}

func (d *CacheDecorator) Name() string {
	return d.base.Name() + "_cached"
}

func (d *CacheDecorator) SupportsLanguage(language string) bool {
	return d.base.SupportsLanguage(language)
}

func (d *CacheDecorator) Description() string {
	return d.base.Description() + " (cached)"
}
