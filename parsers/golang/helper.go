package golang

import (
	"go/ast"
	"go/token"
	"go/types"
	"strings"
)

// getReceiverType renders the receiver type, e.g. "*Server" or "List[T]".
func (p *GoPlugin) getReceiverType(expr ast.Expr) string {
	if expr == nil {
		return "unknown"
	}
	return types.ExprString(expr)
}

// getFunctionSignature renders "func (<recv>) Name(params) results".
func (p *GoPlugin) getFunctionSignature(fn *ast.FuncDecl) string {
	var sb strings.Builder
	sb.WriteString("func ")
	if fn.Recv != nil && len(fn.Recv.List) > 0 {
		sb.WriteString("(" + p.getReceiverType(fn.Recv.List[0].Type) + ") ")
	}
	sb.WriteString(fn.Name.Name)
	sb.WriteString(strings.TrimPrefix(types.ExprString(fn.Type), "func"))
	return sb.String()
}

// getExactReceiverText returns the receiver list as written in the source,
// including the receiver name.
func (p *GoPlugin) getExactReceiverText(content string, fset *token.FileSet, recv *ast.FieldList) string {
	if recv == nil || len(recv.List) == 0 {
		return ""
	}
	start := fset.Position(recv.Pos()).Offset
	end := fset.Position(recv.End()).Offset
	if start < 0 || end > len(content) || start >= end {
		return ""
	}
	text := strings.TrimSpace(content[start:end])
	if !strings.HasPrefix(text, "(") {
		text = "(" + text + ")"
	}
	return text
}
