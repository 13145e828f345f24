package terraform

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"

	"github.com/sevigo/chunkguard/schema"
)

var (
	ErrParse    = errors.New("failed to parse HCL")
	ErrNoBlocks = errors.New("no blocks found in HCL file")
)

// summaryAttributes are evaluated and recorded on the chunk when they hold
// literal values.
var summaryAttributes = []string{"source", "version", "type", "description", "region", "alias", "required_version", "sensitive", "default"}

// Split emits one chunk per top-level block, comment lines directly above a
// block included. Files that fail to parse without yielding a body are
// returned as errors so the caller can fall back to a text algorithm.
func (p *TerraformPlugin) Split(
	ctx context.Context,
	content, language, filePath string,
	_ *schema.ChunkingOptions,
) ([]schema.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if language == "" {
		language = p.Language()
	}

	file, diags := hclsyntax.ParseConfig([]byte(content), filePath, hcl.Pos{Line: 1, Column: 1})
	parseErrors := diags.HasErrors()
	if parseErrors {
		p.logger.WarnContext(ctx, "Parse errors during chunking", "path", filePath, "errors", diags.Error())
	}
	if file == nil {
		return nil, fmt.Errorf("%w: %s", ErrParse, diags.Error())
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("%w: HCL file %s has an invalid body type", ErrParse, filePath)
	}

	lines := strings.Split(content, "\n")
	var chunks []schema.Chunk
	prevEnd := 0

	if len(body.Blocks) == 0 && len(body.Attributes) > 0 {
		if c, ok := attributesChunk(body, lines, language, filePath); ok {
			chunks = append(chunks, c)
		}
	}

	for _, block := range body.Blocks {
		rng := block.Range()
		if rng.Start.Line < 1 || rng.End.Line > len(lines) || rng.Start.Line > rng.End.Line {
			p.logger.WarnContext(ctx, "Skipping HCL block with invalid range",
				"path", filePath, "block_type", block.Type, "start", rng.Start.Line, "end", rng.End.Line)
			continue
		}

		start := leadingComments(lines, rng.Start.Line, prevEnd)
		prevEnd = rng.End.Line

		c := schema.NewChunk(strings.Join(lines[start-1:rng.End.Line], "\n"), schema.ChunkMetadata{
			StartLine:  start,
			EndLine:    rng.End.Line,
			Language:   language,
			FilePath:   filePath,
			Type:       schema.ChunkTypeBlock,
			Identifier: buildIdentifier(block),
			Strategy:   p.Name(),
		})
		c.SetExtra("block_type", block.Type)
		if len(block.Labels) > 0 {
			c.SetExtra("labels", strings.Join(block.Labels, ","))
		}
		c.SetExtra("attribute_count", strconv.Itoa(len(block.Body.Attributes)))
		c.SetExtra("nested_block_count", strconv.Itoa(len(block.Body.Blocks)))
		for _, name := range summaryAttributes {
			if attr, exists := block.Body.Attributes[name]; exists {
				if val, ok := literalValue(attr); ok {
					c.SetExtra("attr."+name, val)
				}
			}
		}
		if parseErrors {
			c.SetExtra("parse_error", "true")
		}
		chunks = append(chunks, c)
	}

	if len(chunks) == 0 {
		if parseErrors {
			return nil, fmt.Errorf("%w: %s", ErrParse, diags.Error())
		}
		return nil, ErrNoBlocks
	}

	p.logger.DebugContext(ctx, "Created chunks for HCL file", "count", len(chunks), "path", filePath)
	return chunks, nil
}

// leadingComments walks upward from a block start over contiguous comment
// lines, never crossing the previous block.
func leadingComments(lines []string, start, prevEnd int) int {
	for start-1 > prevEnd {
		trimmed := strings.TrimSpace(lines[start-2])
		if !strings.HasPrefix(trimmed, "#") && !strings.HasPrefix(trimmed, "//") {
			break
		}
		start--
	}
	return start
}

// attributesChunk covers a body made only of attributes, as in .tfvars files.
func attributesChunk(body *hclsyntax.Body, lines []string, language, filePath string) (schema.Chunk, bool) {
	first, last := 0, 0
	for _, attr := range body.Attributes {
		rng := attr.SrcRange
		if first == 0 || rng.Start.Line < first {
			first = rng.Start.Line
		}
		if rng.End.Line > last {
			last = rng.End.Line
		}
	}
	if first < 1 || last > len(lines) || first > last {
		return schema.Chunk{}, false
	}

	c := schema.NewChunk(strings.Join(lines[first-1:last], "\n"), schema.ChunkMetadata{
		StartLine:  first,
		EndLine:    last,
		Language:   language,
		FilePath:   filePath,
		Type:       schema.ChunkTypeDeclaration,
		Identifier: "attributes",
		Strategy:   "terraform_hcl",
	})
	c.SetExtra("attribute_count", strconv.Itoa(len(body.Attributes)))
	return c, true
}

// buildIdentifier names a block as type.label[.label].
func buildIdentifier(block *hclsyntax.Block) string {
	switch block.Type {
	case "resource", "data":
		if len(block.Labels) >= 2 {
			return fmt.Sprintf("%s.%s", block.Labels[0], block.Labels[1])
		} else if len(block.Labels) >= 1 {
			return fmt.Sprintf("%s.unnamed", block.Labels[0])
		}
		return fmt.Sprintf("%s.invalid", block.Type)
	case "module", "variable", "output":
		if len(block.Labels) >= 1 {
			return fmt.Sprintf("%s.%s", block.Type, block.Labels[0])
		}
		return fmt.Sprintf("%s.unnamed", block.Type)
	case "provider":
		if len(block.Labels) >= 1 {
			if _, exists := block.Body.Attributes["alias"]; exists {
				return fmt.Sprintf("provider.%s.alias", block.Labels[0])
			}
			return fmt.Sprintf("provider.%s", block.Labels[0])
		}
		return "provider.unnamed"
	default:
		if len(block.Labels) > 0 {
			return strings.Join(append([]string{block.Type}, block.Labels...), ".")
		}
		return block.Type
	}
}
