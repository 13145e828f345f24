package parsers

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrPluginNotFound is returned when a plugin is not found
var ErrPluginNotFound = errors.New("language plugin not found")

// registry implements the ParserRegistry interface
type registry struct {
	plugins    map[string]Plugin // Map of language name to plugin
	extensions map[string]Plugin // Map of file extension to plugin
	logger     *slog.Logger
	mu         sync.RWMutex
}

// NewRegistry creates a new language plugin registry
func NewRegistry(logger *slog.Logger) ParserRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &registry{
		plugins:    make(map[string]Plugin),
		extensions: make(map[string]Plugin),
		logger:     logger,
	}
}

// RegisterParser adds a language plugin to the registry
func (r *registry) RegisterParser(plugin Plugin) error {
	if plugin == nil {
		return errors.New("cannot register nil plugin")
	}

	language := strings.ToLower(plugin.Language())
	if language == "" {
		return errors.New("plugin must have a non-empty language")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[language]; exists {
		return fmt.Errorf("plugin for language %q already registered", language)
	}

	r.plugins[language] = plugin
	for _, ext := range plugin.Extensions() {
		if ext = normalizeExt(ext); ext != "" {
			r.extensions[ext] = plugin
		}
	}

	r.logger.Debug("Registered language plugin", "language", language, "plugin", plugin.Name(), "extensions", plugin.Extensions())
	return nil
}

// GetParser retrieves a plugin by language name, falling back to any plugin
// that declares support for it.
func (r *registry) GetParser(language string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if plugin, ok := r.plugins[strings.ToLower(language)]; ok {
		return plugin, nil
	}
	for _, plugin := range r.plugins {
		if plugin.SupportsLanguage(language) {
			return plugin, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, language)
}

// GetParserForFile returns the appropriate plugin for a file
func (r *registry) GetParserForFile(path string) (Plugin, error) {
	if ext := filepath.Ext(path); ext != "" {
		if plugin, err := r.GetParserForExtension(ext); err == nil {
			return plugin, nil
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, plugin := range r.sortedLocked() {
		if plugin.CanHandle(path) {
			return plugin, nil
		}
	}
	return nil, fmt.Errorf("%w for file %s", ErrPluginNotFound, path)
}

// GetParserForExtension returns a plugin for a file extension
func (r *registry) GetParserForExtension(ext string) (Plugin, error) {
	ext = normalizeExt(ext)
	if ext == "" {
		return nil, fmt.Errorf("%w: empty extension", ErrPluginNotFound)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	plugin, ok := r.extensions[ext]
	if !ok {
		return nil, fmt.Errorf("%w for extension %s", ErrPluginNotFound, ext)
	}
	return plugin, nil
}

// GetAllParsers returns all registered plugins sorted by language.
func (r *registry) GetAllParsers() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked()
}

func (r *registry) sortedLocked() []Plugin {
	plugins := make([]Plugin, 0, len(r.plugins))
	for _, plugin := range r.plugins {
		plugins = append(plugins, plugin)
	}
	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].Language() < plugins[j].Language()
	})
	return plugins
}

// LanguageForFile prefers a registered plugin and then the static table.
func (r *registry) LanguageForFile(path string) string {
	if plugin, err := r.GetParserForFile(path); err == nil {
		return plugin.Language()
	}
	return LanguageForFile(path)
}

func normalizeExt(ext string) string {
	if ext == "" {
		return ""
	}
	if ext[0] != '.' {
		ext = "." + ext
	}
	return strings.ToLower(ext)
}
