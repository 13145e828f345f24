package strategy

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sevigo/chunkguard/memguard"
	"github.com/sevigo/chunkguard/parsers"
	"github.com/sevigo/chunkguard/textsplitter"
)

// complexBracketThreshold is the complexity above which code is split on
// bracket balance instead of semantic boundaries.
const complexBracketThreshold = 7

// Hints is the content classification a Factory selects on.
type Hints struct {
	IsCode     bool
	IsMarkdown bool
	IsXML      bool
	Complexity int
	Size       int
}

type FactoryOption func(*Factory)

// WithRegistry lets language plugins take precedence over text algorithms.
func WithRegistry(r parsers.ParserRegistry) FactoryOption {
	return func(f *Factory) {
		f.registry = r
	}
}

// WithDecorators sets the decorators applied to every strategy handed out.
func WithDecorators(opts DecoratorOptions) FactoryOption {
	return func(f *Factory) {
		f.decorators = opts
	}
}

// WithCleanupManager registers every cache decorator so memory pressure can
// release it.
func WithCleanupManager(m *memguard.CleanupManager) FactoryOption {
	return func(f *Factory) {
		f.cleanup = m
	}
}

// Factory selects a base strategy for a file and hands out decorated
// strategies, built once per base strategy name.
type Factory struct {
	logger     *slog.Logger
	splitter   *textsplitter.TextSplitter
	registry   parsers.ParserRegistry
	decorators DecoratorOptions
	cleanup    *memguard.CleanupManager
	builtins   map[string]SplitStrategy

	mu    sync.Mutex
	built map[string]SplitStrategy
}

func NewFactory(splitter *textsplitter.TextSplitter, logger *slog.Logger, opts ...FactoryOption) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Factory{
		logger:   logger.With("component", "strategy_factory"),
		splitter: splitter,
		built:    make(map[string]SplitStrategy),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.builtins = make(map[string]SplitStrategy)
	for _, s := range []SplitStrategy{
		textsplitter.NewSemanticStrategy(splitter),
		textsplitter.NewBracketStrategy(splitter),
		textsplitter.NewLineStrategy(splitter),
		textsplitter.NewGenericStrategy(splitter),
	} {
		f.builtins[s.Name()] = s
	}
	return f
}

// Select returns the undecorated strategy for a file: a registered language
// plugin first, then a text algorithm chosen from the hints. Plugins are held
// to the small-file rule and the line ceiling of the text algorithms.
func (f *Factory) Select(language, filePath string, hints Hints) SplitStrategy {
	if plugin := f.plugin(language, filePath); plugin != nil {
		return textsplitter.NewStructuredStrategy(f.splitter, plugin)
	}

	switch {
	case hints.IsMarkdown:
		return f.builtins["generic"]
	case hints.IsXML:
		return f.builtins["bracket"]
	case hints.IsCode && hints.Complexity >= complexBracketThreshold:
		return f.builtins["bracket"]
	case hints.IsCode:
		return f.builtins["semantic"]
	default:
		return f.builtins["generic"]
	}
}

func (f *Factory) plugin(language, filePath string) parsers.Plugin {
	if f.registry == nil {
		return nil
	}
	if language != "" {
		if p, err := f.registry.GetParser(language); err == nil {
			return p
		}
	}
	if filePath != "" {
		if p, err := f.registry.GetParserForFile(filePath); err == nil {
			return p
		}
	}
	return nil
}

// Create returns the decorated strategy for a file.
func (f *Factory) Create(language, filePath string, hints Hints) (SplitStrategy, error) {
	base := f.Select(language, filePath, hints)
	f.logger.Debug("Selected split strategy",
		"language", language, "file", filePath, "strategy", base.Name())
	return f.decorate(base)
}

// ByName returns the decorated strategy with the given base name: one of
// semantic, bracket, line, generic or a registered plugin name.
func (f *Factory) ByName(name string) (SplitStrategy, error) {
	if s, ok := f.builtins[strings.ToLower(name)]; ok {
		return f.decorate(s)
	}
	if f.registry != nil {
		for _, p := range f.registry.GetAllParsers() {
			if p.Name() == name {
				return f.decorate(textsplitter.NewStructuredStrategy(f.splitter, p))
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
}

// Names lists the built-in strategy names.
func (f *Factory) Names() []string {
	return []string{"semantic", "bracket", "line", "generic"}
}

func (f *Factory) decorate(base SplitStrategy) (SplitStrategy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.built[base.Name()]; ok {
		return s, nil
	}

	s, err := NewDecoratorBuilder(base, f.logger).WithOptions(f.decorators).Build()
	if err != nil {
		return nil, err
	}
	if cache, ok := s.(*CacheDecorator); ok && f.cleanup != nil {
		f.cleanup.Register(cache)
	}
	f.built[base.Name()] = s
	return s, nil
}

// ClearCaches empties the cache of every decorated strategy built so far.
func (f *Factory) ClearCaches() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.built {
		if cache, ok := s.(*CacheDecorator); ok {
			cache.ClearCache()
		}
	}
}
