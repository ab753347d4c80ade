// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package extract

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"golang.org/x/tools/go/ast/astutil"

	"github.com/petar-djukic/go-repomap/pkg/types"
)

// Go extracts symbols from Go source with the standard parser. Functions,
// methods and type declarations become symbols; calls and composite literals
// become call references; embedded fields and receivers become inherit
// references.
type Go struct{}

// Language returns "go".
func (Go) Language() string { return "go" }

// Extract parses src. Any syntax error is a ParseError.
func (Go) Extract(ctx context.Context, path string, src []byte) (*types.FileResult, error) {
	if err := checkSource(path, src); err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, src, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return nil, types.NewError(types.KindParse, err, "%s", path)
	}

	g := &goFile{fset: fset, b: newFileBuilder(path, "go", src), isMain: file.Name.Name == "main"}
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			g.funcDecl(d)
		case *ast.GenDecl:
			g.genDecl(d)
		}
	}
	return g.b.finish(), nil
}

type goFile struct {
	fset   *token.FileSet
	b      *fileBuilder
	isMain bool
}

func (g *goFile) line(p token.Pos) int { return g.fset.Position(p).Line }

func (g *goFile) funcDecl(fn *ast.FuncDecl) {
	name := fn.Name.Name
	sym := types.Symbol{
		Name:      name,
		Kind:      types.Function,
		StartLine: g.line(fn.Pos()),
		EndLine:   g.line(fn.End()),
		Exported:  ast.IsExported(name),
		Signature: funcSignature(fn),
		Doc:       firstSentence(fn.Doc.Text()),
	}
	local := name
	recv := ""
	if fn.Recv != nil && len(fn.Recv.List) > 0 {
		recv = receiverTypeName(fn.Recv.List[0].Type)
		sym.Kind = types.Method
		local = recv + "." + name
	} else {
		sym.EntryPoint = name == "init" || (g.isMain && name == "main")
	}

	id := g.b.add(sym, local)
	if recv != "" {
		g.b.ref(id, recv, types.Inherit, sym.StartLine)
	}
	if fn.Body != nil {
		g.collectCalls(id, fn.Body)
	}
}

func (g *goFile) genDecl(gd *ast.GenDecl) {
	for _, spec := range gd.Specs {
		switch s := spec.(type) {
		case *ast.TypeSpec:
			g.typeSpec(gd, s)
		case *ast.ValueSpec:
			// Package-level initializers run in the module scope.
			for _, v := range s.Values {
				g.collectCalls("", v)
			}
		}
	}
}

func (g *goFile) typeSpec(gd *ast.GenDecl, ts *ast.TypeSpec) {
	var sig string
	var embedded []ast.Expr
	switch t := ts.Type.(type) {
	case *ast.StructType:
		sig = "type " + ts.Name.Name + " " + structSignature(t)
		for _, f := range t.Fields.List {
			if len(f.Names) == 0 {
				embedded = append(embedded, f.Type)
			}
		}
	case *ast.InterfaceType:
		sig = "type " + ts.Name.Name + " " + interfaceSignature(t)
		for _, m := range t.Methods.List {
			if len(m.Names) == 0 {
				embedded = append(embedded, m.Type)
			}
		}
	default:
		sig = fmt.Sprintf("type %s %s", ts.Name.Name, exprString(ts.Type))
	}

	// Prefer the TypeSpec doc comment; fall back to the GenDecl doc.
	doc := ts.Doc.Text()
	if doc == "" {
		doc = gd.Doc.Text()
	}

	start := g.line(ts.Pos())
	id := g.b.add(types.Symbol{
		Name:      ts.Name.Name,
		Kind:      types.Class,
		StartLine: start,
		EndLine:   g.line(ts.End()),
		Exported:  ast.IsExported(ts.Name.Name),
		Signature: sig,
		Doc:       firstSentence(doc),
	}, ts.Name.Name)

	for _, e := range embedded {
		g.b.ref(id, receiverTypeName(e), types.Inherit, g.line(e.Pos()))
	}
}

// collectCalls records a call reference for every call expression and typed
// composite literal under n.
func (g *goFile) collectCalls(from string, n ast.Node) {
	astutil.Apply(n, func(c *astutil.Cursor) bool {
		switch x := c.Node().(type) {
		case *ast.CallExpr:
			g.b.ref(from, calleeName(x.Fun), types.Call, g.line(x.Pos()))
		case *ast.CompositeLit:
			if x.Type != nil {
				g.b.ref(from, calleeName(x.Type), types.Call, g.line(x.Pos()))
			}
		}
		return true
	}, nil)
}

// calleeName returns the unqualified name a call or literal refers to, or ""
// for expressions without one (closures, conversions to literal types).
func calleeName(e ast.Expr) string {
	switch x := e.(type) {
	case *ast.Ident:
		if builtinNames[x.Name] {
			return ""
		}
		return x.Name
	case *ast.SelectorExpr:
		return x.Sel.Name
	case *ast.IndexExpr:
		return calleeName(x.X)
	case *ast.IndexListExpr:
		return calleeName(x.X)
	case *ast.ParenExpr:
		return calleeName(x.X)
	case *ast.StarExpr:
		return calleeName(x.X)
	}
	return ""
}

// receiverTypeName strips pointers, type parameters and package qualifiers.
func receiverTypeName(e ast.Expr) string {
	switch x := e.(type) {
	case *ast.StarExpr:
		return receiverTypeName(x.X)
	case *ast.IndexExpr:
		return receiverTypeName(x.X)
	case *ast.IndexListExpr:
		return receiverTypeName(x.X)
	case *ast.SelectorExpr:
		return x.Sel.Name
	case *ast.Ident:
		return x.Name
	}
	return ""
}

var builtinNames = map[string]bool{
	"append": true, "cap": true, "clear": true, "close": true, "complex": true,
	"copy": true, "delete": true, "imag": true, "len": true, "make": true,
	"max": true, "min": true, "new": true, "panic": true, "print": true,
	"println": true, "real": true, "recover": true,
	"string": true, "int": true, "int64": true, "int32": true, "uint": true,
	"uint64": true, "uint32": true, "byte": true, "rune": true, "float64": true,
	"float32": true, "bool": true, "error": true, "any": true,
}

// funcSignature builds the declaration header of a function or method.
func funcSignature(fn *ast.FuncDecl) string {
	var b strings.Builder
	b.WriteString("func ")

	if fn.Recv != nil && len(fn.Recv.List) > 0 {
		b.WriteString("(")
		b.WriteString(fieldListString(fn.Recv))
		b.WriteString(") ")
	}
	b.WriteString(fn.Name.Name)
	if fn.Type.TypeParams != nil && len(fn.Type.TypeParams.List) > 0 {
		b.WriteString("[" + fieldListString(fn.Type.TypeParams) + "]")
	}

	b.WriteString("(")
	b.WriteString(fieldListString(fn.Type.Params))
	b.WriteString(")")
	b.WriteString(resultsString(fn.Type.Results))
	return b.String()
}

func resultsString(results *ast.FieldList) string {
	if results == nil || len(results.List) == 0 {
		return ""
	}
	s := fieldListString(results)
	if len(results.List) == 1 && len(results.List[0].Names) == 0 {
		return " " + s
	}
	return " (" + s + ")"
}

// structSignature lists field names and types.
func structSignature(st *ast.StructType) string {
	if st.Fields == nil || len(st.Fields.List) == 0 {
		return "struct{}"
	}

	var parts []string
	for _, field := range st.Fields.List {
		typeStr := exprString(field.Type)
		if len(field.Names) == 0 {
			parts = append(parts, typeStr)
			continue
		}
		for _, name := range field.Names {
			parts = append(parts, name.Name+" "+typeStr)
		}
	}
	return "struct { " + strings.Join(parts, "; ") + " }"
}

// interfaceSignature lists method signatures and embedded interfaces.
func interfaceSignature(iface *ast.InterfaceType) string {
	if iface.Methods == nil || len(iface.Methods.List) == 0 {
		return "interface{}"
	}

	var parts []string
	for _, method := range iface.Methods.List {
		if len(method.Names) == 0 {
			parts = append(parts, exprString(method.Type))
			continue
		}
		if ft, ok := method.Type.(*ast.FuncType); ok {
			parts = append(parts, method.Names[0].Name+"("+fieldListString(ft.Params)+")"+resultsString(ft.Results))
		}
	}
	return "interface { " + strings.Join(parts, "; ") + " }"
}

// fieldListString renders a field list as a comma-separated string.
func fieldListString(fl *ast.FieldList) string {
	if fl == nil || len(fl.List) == 0 {
		return ""
	}

	var parts []string
	for _, field := range fl.List {
		typeStr := exprString(field.Type)
		if len(field.Names) == 0 {
			parts = append(parts, typeStr)
			continue
		}
		names := make([]string, len(field.Names))
		for i, n := range field.Names {
			names[i] = n.Name
		}
		parts = append(parts, strings.Join(names, ", ")+" "+typeStr)
	}
	return strings.Join(parts, ", ")
}

// exprString renders a type expression.
func exprString(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.Ident:
		return e.Name
	case *ast.SelectorExpr:
		return exprString(e.X) + "." + e.Sel.Name
	case *ast.StarExpr:
		return "*" + exprString(e.X)
	case *ast.ArrayType:
		if e.Len == nil {
			return "[]" + exprString(e.Elt)
		}
		return "[" + exprString(e.Len) + "]" + exprString(e.Elt)
	case *ast.MapType:
		return "map[" + exprString(e.Key) + "]" + exprString(e.Value)
	case *ast.InterfaceType:
		if e.Methods == nil || len(e.Methods.List) == 0 {
			return "any"
		}
		return "interface{...}"
	case *ast.StructType:
		return "struct{...}"
	case *ast.FuncType:
		return "func(" + fieldListString(e.Params) + ")" + resultsString(e.Results)
	case *ast.Ellipsis:
		return "..." + exprString(e.Elt)
	case *ast.ChanType:
		switch e.Dir {
		case ast.SEND:
			return "chan<- " + exprString(e.Value)
		case ast.RECV:
			return "<-chan " + exprString(e.Value)
		default:
			return "chan " + exprString(e.Value)
		}
	case *ast.BasicLit:
		return e.Value
	case *ast.ParenExpr:
		return "(" + exprString(e.X) + ")"
	case *ast.IndexExpr:
		return exprString(e.X) + "[" + exprString(e.Index) + "]"
	case *ast.IndexListExpr:
		args := make([]string, len(e.Indices))
		for i, ix := range e.Indices {
			args[i] = exprString(ix)
		}
		return exprString(e.X) + "[" + strings.Join(args, ", ") + "]"
	case *ast.UnaryExpr:
		return e.Op.String() + exprString(e.X)
	case *ast.BinaryExpr:
		return exprString(e.X) + " " + e.Op.String() + " " + exprString(e.Y)
	default:
		return fmt.Sprintf("%T", expr)
	}
}
