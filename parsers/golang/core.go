package golang

import (
	"go/ast"
	"log/slog"
	"path/filepath"
	"strings"
)

// GoPlugin chunks Go source along its top-level declarations using go/ast.
type GoPlugin struct {
	logger *slog.Logger
}

func NewGoPlugin(logger *slog.Logger) *GoPlugin {
	if logger == nil {
		logger = slog.Default()
	}
	return &GoPlugin{
		logger: logger,
	}
}

func (p *GoPlugin) Name() string {
	return "go_ast"
}

func (p *GoPlugin) Language() string {
	return "go"
}

func (p *GoPlugin) Description() string {
	return "One chunk per Go function, method, type and var/const group, doc comments included"
}

func (p *GoPlugin) Extensions() []string {
	return []string{".go"}
}

func (p *GoPlugin) SupportsLanguage(language string) bool {
	return strings.EqualFold(language, "go") || strings.EqualFold(language, "golang")
}

func (p *GoPlugin) CanHandle(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".go")
}

// getVisibility determines if a Go identifier is public or private
func (p *GoPlugin) getVisibility(name string) string {
	if ast.IsExported(name) {
		return "public"
	}
	return "private"
}
