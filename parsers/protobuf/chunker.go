package protobuf

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	protoparser "github.com/yoheimuta/go-protoparser/v4"
	"github.com/yoheimuta/go-protoparser/v4/parser"
	"github.com/yoheimuta/go-protoparser/v4/parser/meta"

	"github.com/sevigo/chunkguard/schema"
)

var ErrNoDefinitions = errors.New("no messages, enums or services found in proto file")

// Split parses the file and emits a header chunk plus one chunk per top-level
// message, enum, service and extend block. Nested definitions stay inside
// their parent and are listed in its metadata.
func (p *ProtobufPlugin) Split(
	ctx context.Context,
	content, language, filePath string,
	_ *schema.ChunkingOptions,
) ([]schema.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parsed, err := protoparser.Parse(strings.NewReader(content),
		protoparser.WithDebug(false),
		protoparser.WithPermissive(true),
		protoparser.WithFilename(filePath),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse protobuf file: %w", err)
	}

	if language == "" {
		language = p.Language()
	}
	b := &builder{
		plugin:   p,
		lines:    strings.Split(content, "\n"),
		language: language,
		filePath: filePath,
	}

	for _, element := range parsed.ProtoBody {
		switch v := element.(type) {
		case *parser.Message:
			b.addMessage(v)
		case *parser.Enum:
			b.addEnum(v)
		case *parser.Service:
			b.addService(v)
		case *parser.Extend:
			b.add(v.Meta, schema.ChunkTypeBlock, "extend "+v.MessageType, map[string]string{"kind": "extend"})
		}
	}
	if len(b.chunks) == 0 {
		return nil, ErrNoDefinitions
	}
	b.addHeader(parsed)
	b.coverGaps()

	p.logger.DebugContext(ctx, "Created chunks for proto file", "count", len(b.chunks), "path", filePath)
	return b.chunks, nil
}

type builder struct {
	plugin   *ProtobufPlugin
	lines    []string
	language string
	filePath string
	chunks   []schema.Chunk
}

func (b *builder) add(m meta.Meta, typ schema.ChunkType, identifier string, extra map[string]string) {
	start, end := m.Pos.Line, min(m.LastPos.Line, len(b.lines))
	if start < 1 || start > end {
		return
	}
	b.chunks = append(b.chunks, schema.NewChunk(strings.Join(b.lines[start-1:end], "\n"), schema.ChunkMetadata{
		StartLine:  start,
		EndLine:    end,
		Language:   b.language,
		FilePath:   b.filePath,
		Type:       typ,
		Identifier: identifier,
		Strategy:   b.plugin.Name(),
		Extra:      extra,
	}))
}

func (b *builder) addMessage(msg *parser.Message) {
	fields := 0
	var nested, oneofs []string
	for _, element := range msg.MessageBody {
		switch v := element.(type) {
		case *parser.Field, *parser.MapField:
			fields++
		case *parser.Oneof:
			fields += len(v.OneofFields)
			oneofs = append(oneofs, v.OneofName)
		case *parser.Message:
			nested = append(nested, msg.MessageName+"."+v.MessageName)
		case *parser.Enum:
			nested = append(nested, msg.MessageName+"."+v.EnumName)
		}
	}

	extra := map[string]string{
		"kind":        "message",
		"field_count": strconv.Itoa(fields),
		"has_doc":     strconv.FormatBool(len(msg.Comments) > 0),
	}
	if len(nested) > 0 {
		extra["nested"] = strings.Join(nested, ",")
	}
	if len(oneofs) > 0 {
		extra["oneofs"] = strings.Join(oneofs, ",")
	}
	b.add(msg.Meta, schema.ChunkTypeType, msg.MessageName, extra)
}

func (b *builder) addEnum(enum *parser.Enum) {
	values := 0
	for _, element := range enum.EnumBody {
		if _, ok := element.(*parser.EnumField); ok {
			values++
		}
	}
	b.add(enum.Meta, schema.ChunkTypeType, enum.EnumName, map[string]string{
		"kind":        "enum",
		"value_count": strconv.Itoa(values),
		"has_doc":     strconv.FormatBool(len(enum.Comments) > 0),
	})
}

func (b *builder) addService(svc *parser.Service) {
	var rpcs []string
	for _, element := range svc.ServiceBody {
		if rpc, ok := element.(*parser.RPC); ok {
			rpcs = append(rpcs, rpcSignature(rpc))
		}
	}
	extra := map[string]string{
		"kind":      "service",
		"rpc_count": strconv.Itoa(len(rpcs)),
		"has_doc":   strconv.FormatBool(len(svc.Comments) > 0),
	}
	if len(rpcs) > 0 {
		extra["rpcs"] = strings.Join(rpcs, "; ")
	}
	b.add(svc.Meta, schema.ChunkTypeBlock, svc.ServiceName, extra)
}

// addHeader covers the syntax, package, import and option statements that
// precede the first definition.
func (b *builder) addHeader(parsed *parser.Proto) {
	firstDef := b.chunks[0].Metadata.StartLine
	start, end := 0, 0
	extra := map[string]string{"kind": "header"}
	var imports []string

	include := func(m meta.Meta) bool {
		if m.Pos.Line < 1 || m.LastPos.Line >= firstDef {
			return false
		}
		if start == 0 || m.Pos.Line < start {
			start = m.Pos.Line
		}
		end = max(end, m.LastPos.Line)
		return true
	}

	if parsed.Syntax != nil && include(parsed.Syntax.Meta) {
		extra["syntax"] = parsed.Syntax.ProtobufVersion
	}
	for _, element := range parsed.ProtoBody {
		switch v := element.(type) {
		case *parser.Package:
			if include(v.Meta) {
				extra["package"] = v.Name
			}
		case *parser.Import:
			if include(v.Meta) {
				imports = append(imports, strings.Trim(v.Location, `"'`))
			}
		case *parser.Option:
			include(v.Meta)
		}
	}
	if start == 0 {
		return
	}
	if len(imports) > 0 {
		extra["imports"] = strings.Join(imports, ",")
	}

	identifier := "header"
	if pkg, ok := extra["package"]; ok {
		identifier = "package " + pkg
	}
	header := schema.NewChunk(strings.Join(b.lines[start-1:end], "\n"), schema.ChunkMetadata{
		StartLine:  start,
		EndLine:    end,
		Language:   b.language,
		FilePath:   b.filePath,
		Type:       schema.ChunkTypeDeclaration,
		Identifier: identifier,
		Strategy:   b.plugin.Name(),
		Extra:      extra,
	})
	b.chunks = append([]schema.Chunk{header}, b.chunks...)
}

// coverGaps keeps comments and statements outside any definition.
func (b *builder) coverGaps() {
	first, last := schema.AttachUncovered(b.chunks, b.lines)
	if first == 0 {
		return
	}
	b.chunks = append(b.chunks, schema.NewChunk(strings.Join(b.lines[first-1:last], "\n"), schema.ChunkMetadata{
		StartLine: first,
		EndLine:   last,
		Language:  b.language,
		FilePath:  b.filePath,
		Type:      schema.ChunkTypeDeclaration,
		Strategy:  b.plugin.Name(),
		Extra:     map[string]string{"kind": "trailing_text"},
	}))
}

func rpcSignature(rpc *parser.RPC) string {
	return fmt.Sprintf("rpc %s(%s%s) returns (%s%s)",
		rpc.RPCName,
		streamPrefix(rpc.RPCRequest.IsStream), rpc.RPCRequest.MessageType,
		streamPrefix(rpc.RPCResponse.IsStream), rpc.RPCResponse.MessageType)
}

func streamPrefix(stream bool) string {
	if stream {
		return "stream "
	}
	return ""
}
