package terraform_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/chunkguard/parsers/terraform"
	logger "github.com/sevigo/chunkguard/parsers/testing"
	"github.com/sevigo/chunkguard/schema"
)

var basicConfig = strings.Join([]string{
	`# Web server`,
	`resource "aws_instance" "web" {`,
	`  ami           = "ami-123"`,
	`  instance_type = "t2.micro"`,
	`}`,
	``,
	`variable "instance_count" {`,
	`  description = "Number of instances"`,
	`  type        = number`,
	`  default     = 1`,
	`}`,
	``,
	`module "vpc" {`,
	`  source  = "terraform-aws-modules/vpc/aws"`,
	`  version = "~> 3.0"`,
	`}`,
}, "\n")

func newPlugin(t *testing.T) *terraform.TerraformPlugin {
	t.Helper()
	log, _ := logger.NewTestLogger(t)
	return terraform.NewTerraformPlugin(log)
}

func TestTerraformPlugin_BasicInfo(t *testing.T) {
	plugin := newPlugin(t)
	assert.Equal(t, "terraform", plugin.Language())
	assert.True(t, plugin.CanHandle("infra/main.TF"))
	assert.True(t, plugin.CanHandle("prod.tfvars"))
	assert.False(t, plugin.CanHandle("main.go"))
	assert.True(t, plugin.SupportsLanguage("hcl"))
}

func TestTerraformPlugin_SplitBlocks(t *testing.T) {
	chunks, err := newPlugin(t).Split(context.Background(), basicConfig, "terraform", "main.tf", nil)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	require.NoError(t, schema.ValidateLineRange(chunks, 16))

	tests := []struct {
		identifier string
		blockType  string
		start, end int
	}{
		{"aws_instance.web", "resource", 1, 5},
		{"variable.instance_count", "variable", 7, 11},
		{"module.vpc", "module", 13, 16},
	}
	for i, tt := range tests {
		c := chunks[i]
		assert.Equal(t, tt.identifier, c.Metadata.Identifier)
		assert.Equal(t, tt.blockType, c.Metadata.Extra["block_type"])
		assert.Equal(t, tt.start, c.Metadata.StartLine, tt.identifier)
		assert.Equal(t, tt.end, c.Metadata.EndLine, tt.identifier)
		assert.Equal(t, schema.ChunkTypeBlock, c.Metadata.Type)
	}

	assert.True(t, strings.HasPrefix(chunks[0].Content, "# Web server"))
	assert.Equal(t, "aws_instance,web", chunks[0].Metadata.Extra["labels"])
	assert.Equal(t, "Number of instances", chunks[1].Metadata.Extra["attr.description"])
	assert.Equal(t, "1", chunks[1].Metadata.Extra["attr.default"])
	assert.NotContains(t, chunks[1].Metadata.Extra, "attr.type", "references are not literal values")
	assert.Equal(t, "terraform-aws-modules/vpc/aws", chunks[2].Metadata.Extra["attr.source"])
}

func TestTerraformPlugin_AttributesOnly(t *testing.T) {
	chunks, err := newPlugin(t).Split(context.Background(), "region = \"us-west-2\"\ncount  = 3\n", "", "prod.tfvars", nil)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "attributes", chunks[0].Metadata.Identifier)
	assert.Equal(t, 1, chunks[0].Metadata.StartLine)
	assert.Equal(t, 2, chunks[0].Metadata.EndLine)
	assert.Equal(t, "terraform", chunks[0].Metadata.Language)
}

func TestTerraformPlugin_InvalidConfig(t *testing.T) {
	invalid := "resource \"aws_instance\" \"web\" {\n  ami = \"ami-123\"\n"
	chunks, err := newPlugin(t).Split(context.Background(), invalid, "terraform", "broken.tf", nil)
	if err != nil {
		require.ErrorIs(t, err, terraform.ErrParse)
		return
	}
	for _, c := range chunks {
		assert.Equal(t, "true", c.Metadata.Extra["parse_error"])
	}
}

func TestTerraformPlugin_NoBlocks(t *testing.T) {
	_, err := newPlugin(t).Split(context.Background(), "# only a comment\n", "terraform", "empty.tf", nil)
	require.ErrorIs(t, err, terraform.ErrNoBlocks)
}
