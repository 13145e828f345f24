package yaml

import (
	"log/slog"
	"path/filepath"
	"strings"
)

// YamlPlugin chunks YAML documents along their top-level keys or sequence
// items.
type YamlPlugin struct {
	logger *slog.Logger
}

func NewYamlPlugin(logger *slog.Logger) *YamlPlugin {
	if logger == nil {
		logger = slog.Default()
	}
	return &YamlPlugin{logger: logger}
}

func (p *YamlPlugin) Name() string {
	return "yaml_structure"
}

func (p *YamlPlugin) Language() string {
	return "yaml"
}

func (p *YamlPlugin) Description() string {
	return "One chunk per top-level key, or per group of sequence items, in every document"
}

func (p *YamlPlugin) Extensions() []string {
	return []string{".yaml", ".yml"}
}

func (p *YamlPlugin) SupportsLanguage(language string) bool {
	return strings.EqualFold(language, "yaml") || strings.EqualFold(language, "yml")
}

func (p *YamlPlugin) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
