package parsers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/chunkguard/parsers"
	"github.com/sevigo/chunkguard/parsers/golang"
	logger "github.com/sevigo/chunkguard/parsers/testing"
	"github.com/sevigo/chunkguard/schema"
)

func TestRegisterLanguagePlugins(t *testing.T) {
	log, _ := logger.NewTestLogger(t)
	registry, err := parsers.RegisterLanguagePlugins(log)
	require.NoError(t, err)
	require.Len(t, registry.GetAllParsers(), 5)

	tests := []struct {
		path     string
		language string
	}{
		{"cmd/main.go", "go"},
		{"docs/README.md", "markdown"},
		{"infra/main.tf", "terraform"},
		{"api/v1/user.proto", "protobuf"},
		{"deploy/values.yml", "yaml"},
	}
	for _, tt := range tests {
		plugin, err := registry.GetParserForFile(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.language, plugin.Language())
	}

	plugin, err := registry.GetParser("golang")
	require.NoError(t, err)
	assert.Equal(t, "go", plugin.Language())

	_, err = registry.GetParser("cobol")
	require.ErrorIs(t, err, parsers.ErrPluginNotFound)

	_, err = registry.GetParserForExtension("tfvars")
	require.NoError(t, err)

	_, err = registry.GetParserForFile("script.py")
	require.ErrorIs(t, err, parsers.ErrPluginNotFound)
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	log, _ := logger.NewTestLogger(t)
	registry := parsers.NewRegistry(log)
	require.NoError(t, registry.RegisterParser(golang.NewGoPlugin(log)))
	require.Error(t, registry.RegisterParser(golang.NewGoPlugin(log)))
	require.Error(t, registry.RegisterParser(nil))
}

func TestLanguageForFile(t *testing.T) {
	log, _ := logger.NewTestLogger(t)
	registry, err := parsers.RegisterLanguagePlugins(log)
	require.NoError(t, err)

	assert.Equal(t, "python", registry.LanguageForFile("app/main.py"))
	assert.Equal(t, "terraform", registry.LanguageForFile("vars.tfvars"))
	assert.Equal(t, "protobuf", registry.LanguageForFile("api/user.proto"))
	assert.Equal(t, "make", parsers.LanguageForFile("Makefile"))
	assert.Equal(t, "typescript", parsers.LanguageForFile("src/index.TS"))
	assert.Equal(t, schema.LanguageUnknown, parsers.LanguageForFile("data.bin"))
}
