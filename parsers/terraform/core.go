package terraform

import (
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
)

// TerraformPlugin chunks HCL configuration along its top-level blocks.
type TerraformPlugin struct {
	logger *slog.Logger
}

func NewTerraformPlugin(logger *slog.Logger) *TerraformPlugin {
	if logger == nil {
		logger = slog.Default()
	}
	return &TerraformPlugin{
		logger: logger,
	}
}

func (p *TerraformPlugin) Name() string {
	return "terraform_hcl"
}

func (p *TerraformPlugin) Language() string {
	return "terraform"
}

func (p *TerraformPlugin) Description() string {
	return "One chunk per top-level HCL block identified as type.label"
}

func (p *TerraformPlugin) Extensions() []string {
	return []string{".tf", ".tfvars", ".hcl"}
}

func (p *TerraformPlugin) SupportsLanguage(language string) bool {
	switch strings.ToLower(language) {
	case "terraform", "hcl", "tf":
		return true
	}
	return false
}

func (p *TerraformPlugin) CanHandle(path string) bool {
	return slices.Contains(p.Extensions(), strings.ToLower(filepath.Ext(path)))
}
