package parsers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sevigo/chunkguard/parsers/golang"
	"github.com/sevigo/chunkguard/parsers/markdown"
	"github.com/sevigo/chunkguard/parsers/protobuf"
	"github.com/sevigo/chunkguard/parsers/terraform"
	yamlparser "github.com/sevigo/chunkguard/parsers/yaml"
	"github.com/sevigo/chunkguard/schema"
)

// Plugin is a structure-aware split strategy for one language.
type Plugin interface {
	Split(ctx context.Context, content, language, filePath string, opts *schema.ChunkingOptions) ([]schema.Chunk, error)
	Name() string
	Language() string
	Description() string
	SupportsLanguage(language string) bool
	Extensions() []string
	CanHandle(path string) bool
}

// ParserRegistry tracks registered language plugins
type ParserRegistry interface {
	RegisterParser(plugin Plugin) error
	GetParser(language string) (Plugin, error)
	GetParserForFile(path string) (Plugin, error)
	GetParserForExtension(ext string) (Plugin, error)
	GetAllParsers() []Plugin
	LanguageForFile(path string) string
}

// RegisterLanguagePlugins initializes and populates a language registry
func RegisterLanguagePlugins(logger *slog.Logger) (ParserRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	registry := NewRegistry(logger)

	pluginFactories := []struct {
		name    string
		factory func(*slog.Logger) Plugin
	}{
		{"go", func(l *slog.Logger) Plugin { return golang.NewGoPlugin(l) }},
		{"markdown", func(l *slog.Logger) Plugin { return markdown.NewMarkdownPlugin(l) }},
		{"terraform", func(l *slog.Logger) Plugin { return terraform.NewTerraformPlugin(l) }},
		{"protobuf", func(l *slog.Logger) Plugin { return protobuf.NewProtobufPlugin(l) }},
		{"yaml", func(l *slog.Logger) Plugin { return yamlparser.NewYamlPlugin(l) }},
	}

	for _, pf := range pluginFactories {
		plugin := pf.factory(logger.With("plugin", pf.name))
		if err := registry.RegisterParser(plugin); err != nil {
			return registry, fmt.Errorf("failed to register plugin %s: %w", pf.name, err)
		}
	}

	logger.Info("Language plugins registered", "count", len(registry.GetAllParsers()))
	return registry, nil
}
