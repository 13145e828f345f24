package golang

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"sort"
	"strconv"
	"strings"

	"github.com/sevigo/chunkguard/schema"
)

var ErrNoDeclarations = errors.New("no declarations found in Go file")

// Split parses the file and emits one chunk per top-level declaration plus a
// header chunk for the package clause and imports. Parse failures are
// returned so the caller can fall back to a text algorithm.
func (p *GoPlugin) Split(
	ctx context.Context,
	content, language, filePath string,
	_ *schema.ChunkingOptions,
) ([]schema.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filePath, content, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Go file: %w", err)
	}

	if language == "" {
		language = p.Language()
	}
	b := &chunkBuilder{
		plugin:   p,
		fset:     fset,
		lines:    strings.Split(content, "\n"),
		language: language,
		filePath: filePath,
	}

	b.addHeader(file)
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			b.addFunc(content, d)
		case *ast.GenDecl:
			switch d.Tok {
			case token.TYPE:
				b.addTypes(d)
			case token.VAR, token.CONST:
				b.addValues(d)
			case token.IMPORT:
			}
		}
	}

	if len(b.chunks) == 0 {
		return nil, ErrNoDeclarations
	}
	sort.SliceStable(b.chunks, func(i, j int) bool {
		return b.chunks[i].Metadata.StartLine < b.chunks[j].Metadata.StartLine
	})
	b.coverGaps()

	p.logger.DebugContext(ctx, "Created chunks for Go file", "count", len(b.chunks), "path", filePath)
	return b.chunks, nil
}

type chunkBuilder struct {
	plugin   *GoPlugin
	fset     *token.FileSet
	lines    []string
	language string
	filePath string
	chunks   []schema.Chunk
}

// add slices the source from the doc comment (if any) to the end of node.
func (b *chunkBuilder) add(doc *ast.CommentGroup, node ast.Node, typ schema.ChunkType, identifier string, extra map[string]string) {
	start := b.fset.Position(node.Pos()).Line
	if doc != nil {
		start = b.fset.Position(doc.Pos()).Line
	}
	end := min(b.fset.Position(node.End()).Line, len(b.lines))
	if start < 1 || start > end {
		return
	}

	if doc != nil {
		extra["has_doc"] = "true"
	}
	chunk := schema.NewChunk(strings.Join(b.lines[start-1:end], "\n"), schema.ChunkMetadata{
		StartLine:  start,
		EndLine:    end,
		Language:   b.language,
		FilePath:   b.filePath,
		Type:       typ,
		Identifier: identifier,
		Strategy:   b.plugin.Name(),
		Extra:      extra,
	})
	b.chunks = append(b.chunks, chunk)
}

// coverGaps keeps text between declarations, such as free-floating comments
// or build constraints. Text after the last declaration becomes a chunk of
// its own.
func (b *chunkBuilder) coverGaps() {
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

func (b *chunkBuilder) addHeader(file *ast.File) {
	if file.Name == nil {
		return
	}
	var last ast.Node = file.Name
	imports := make([]string, 0, len(file.Imports))
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.IMPORT {
			continue
		}
		last = gen
	}
	for _, imp := range file.Imports {
		imports = append(imports, strings.Trim(imp.Path.Value, `"`))
	}

	extra := map[string]string{"package": file.Name.Name}
	if len(imports) > 0 {
		extra["imports"] = strings.Join(imports, ",")
	}
	header := &ast.BadDecl{From: file.Package, To: last.End()}
	b.add(file.Doc, header, schema.ChunkTypeDeclaration, "package "+file.Name.Name, extra)
}

func (b *chunkBuilder) addFunc(content string, fn *ast.FuncDecl) {
	identifier := fn.Name.Name
	extra := map[string]string{
		"name":       fn.Name.Name,
		"is_method":  "false",
		"signature":  b.plugin.getFunctionSignature(fn),
		"visibility": b.plugin.getVisibility(fn.Name.Name),
	}
	if fn.Recv != nil && len(fn.Recv.List) > 0 {
		recv := b.plugin.getReceiverType(fn.Recv.List[0].Type)
		extra["receiver"] = recv
		extra["is_method"] = "true"
		if text := b.plugin.getExactReceiverText(content, b.fset, fn.Recv); text != "" {
			identifier = text + " " + fn.Name.Name
		} else {
			identifier = fmt.Sprintf("(%s) %s", recv, fn.Name.Name)
		}
	}
	b.add(fn.Doc, fn, schema.ChunkTypeFunction, identifier, extra)
}

func (b *chunkBuilder) addTypes(decl *ast.GenDecl) {
	names := make([]string, 0, len(decl.Specs))
	extra := map[string]string{}
	for _, spec := range decl.Specs {
		ts, ok := spec.(*ast.TypeSpec)
		if !ok {
			continue
		}
		names = append(names, ts.Name.Name)
		switch t := ts.Type.(type) {
		case *ast.StructType:
			extra["structure_type"] = "struct"
			if t.Fields != nil {
				extra["field_count"] = strconv.Itoa(len(t.Fields.List))
			}
		case *ast.InterfaceType:
			extra["structure_type"] = "interface"
			if t.Methods != nil {
				extra["method_count"] = strconv.Itoa(len(t.Methods.List))
			}
		case *ast.Ident:
			extra["structure_type"] = "alias"
		}
	}
	if len(names) == 0 {
		return
	}
	extra["visibility"] = b.visibility(names)
	b.add(decl.Doc, decl, schema.ChunkTypeType, strings.Join(names, ", "), extra)
}

func (b *chunkBuilder) addValues(decl *ast.GenDecl) {
	var names []string
	for _, spec := range decl.Specs {
		if vs, ok := spec.(*ast.ValueSpec); ok {
			for _, name := range vs.Names {
				names = append(names, name.Name)
			}
		}
	}
	if len(names) == 0 {
		return
	}

	kind := "variable"
	if decl.Tok == token.CONST {
		kind = "constant"
	}
	extra := map[string]string{
		"kind":       kind,
		"count":      strconv.Itoa(len(names)),
		"visibility": b.visibility(names),
	}
	b.add(decl.Doc, decl, schema.ChunkTypeDeclaration, strings.Join(names, ", "), extra)
}

func (b *chunkBuilder) visibility(names []string) string {
	public, private := 0, 0
	for _, name := range names {
		if ast.IsExported(name) {
			public++
		} else {
			private++
		}
	}
	switch {
	case private == 0:
		return "public"
	case public == 0:
		return "private"
	default:
		return "mixed"
	}
}
