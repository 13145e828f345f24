package protobuf

import (
	"log/slog"
	"path/filepath"
	"strings"
)

// ProtobufPlugin chunks .proto files along their top-level definitions.
type ProtobufPlugin struct {
	logger *slog.Logger
}

func NewProtobufPlugin(logger *slog.Logger) *ProtobufPlugin {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProtobufPlugin{logger: logger}
}

func (p *ProtobufPlugin) Name() string {
	return "protobuf_ast"
}

func (p *ProtobufPlugin) Language() string {
	return "protobuf"
}

func (p *ProtobufPlugin) Description() string {
	return "One chunk per message, enum and service, with the syntax, package and imports as a header"
}

func (p *ProtobufPlugin) Extensions() []string {
	return []string{".proto"}
}

func (p *ProtobufPlugin) SupportsLanguage(language string) bool {
	switch strings.ToLower(language) {
	case "protobuf", "proto", "proto3":
		return true
	}
	return false
}

func (p *ProtobufPlugin) CanHandle(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".proto")
}
