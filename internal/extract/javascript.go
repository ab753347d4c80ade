// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package extract

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/petar-djukic/go-repomap/pkg/types"
)

// Imports bind by the exported name, not the local alias, so resolution
// finds the definition in the other file.
const jsImportQuery = `
(import_clause (identifier) @name)
(import_specifier name: (identifier) @name)
`

// JavaScript returns the JavaScript extractor.
func JavaScript() *TreeSitter {
	return &TreeSitter{name: "javascript", lang: javascript.GetLanguage(), visit: visitJS, importQuery: jsImportQuery}
}

// TypeScript returns the TypeScript extractor.
func TypeScript() *TreeSitter {
	return &TreeSitter{name: "typescript", lang: typescript.GetLanguage(), visit: visitJS, importQuery: jsImportQuery}
}

// TSX returns the extractor for TypeScript with JSX.
func TSX() *TreeSitter {
	return &TreeSitter{name: "tsx", lang: tsx.GetLanguage(), visit: visitJS, importQuery: jsImportQuery}
}

func visitJS(w *tsWalker, n *sitter.Node, sc scope) {
	switch n.Type() {
	case "export_statement":
		inner := sc
		inner.exported = true
		inner.dflt = hasChildType(n, "default")
		w.walkChildren(visitJS, n, inner)

	case "export_clause":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if spec := n.NamedChild(i); spec != nil && spec.Type() == "export_specifier" {
				w.exportNames[w.field(spec, "name")] = true
			}
		}

	case "function_declaration", "generator_function_declaration":
		if sc.fn != "" {
			w.walkChildren(visitJS, n, sc)
			return
		}
		name := w.field(n, "name")
		id := w.b.add(types.Symbol{
			Name:       name,
			Kind:       types.Function,
			StartLine:  startLine(n),
			EndLine:    endLine(n),
			Exported:   sc.exported,
			EntryPoint: sc.dflt || isEntryPointName(name),
			Signature:  w.header(n, "body"),
			Doc:        firstSentence(w.leadingComment(n)),
		}, name)
		w.walkBody(n, scope{fn: id})

	case "class_declaration", "abstract_class_declaration":
		if sc.fn != "" {
			w.walkChildren(visitJS, n, sc)
			return
		}
		name := w.field(n, "name")
		id := w.b.add(types.Symbol{
			Name:       name,
			Kind:       types.Class,
			StartLine:  startLine(n),
			EndLine:    endLine(n),
			Exported:   sc.exported,
			EntryPoint: sc.dflt,
			Signature:  w.header(n, "body"),
			Doc:        firstSentence(w.leadingComment(n)),
		}, name)
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if c := n.NamedChild(i); c != nil && c.Type() == "class_heritage" {
				for _, base := range w.typeNames(c) {
					w.b.ref(id, base, types.Inherit, startLine(c))
				}
			}
		}
		if body := n.ChildByFieldName("body"); body != nil {
			w.walkChildren(visitJS, body, scope{fn: id, class: id, className: name, exported: sc.exported})
		}

	case "interface_declaration", "type_alias_declaration", "enum_declaration":
		if sc.fn != "" {
			return
		}
		name := w.field(n, "name")
		sig := w.header(n, "body")
		if n.Type() == "type_alias_declaration" {
			sig = collapseSpace(w.text(n))
		}
		id := w.b.add(types.Symbol{
			Name:      name,
			Kind:      types.Class,
			StartLine: startLine(n),
			EndLine:   endLine(n),
			Exported:  sc.exported,
			Signature: sig,
			Doc:       firstSentence(w.leadingComment(n)),
		}, name)
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if c := n.NamedChild(i); c != nil && (c.Type() == "extends_type_clause" || c.Type() == "extends_clause") {
				for _, base := range w.typeNames(c) {
					w.b.ref(id, base, types.Inherit, startLine(c))
				}
			}
		}

	case "method_definition":
		if sc.class == "" {
			w.walkChildren(visitJS, n, sc)
			return
		}
		w.method(n, w.field(n, "name"), n, sc)

	case "public_field_definition", "field_definition":
		value := n.ChildByFieldName("value")
		if sc.class == "" || !isFunctionValue(value) {
			w.walkChildren(visitJS, n, sc)
			return
		}
		name := w.field(n, "name")
		if name == "" {
			name = w.field(n, "property")
		}
		w.method(n, name, value, sc)

	case "lexical_declaration", "variable_declaration":
		if sc.fn != "" {
			w.walkChildren(visitJS, n, sc)
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			decl := n.NamedChild(i)
			if decl == nil || decl.Type() != "variable_declarator" {
				continue
			}
			value := decl.ChildByFieldName("value")
			if !isFunctionValue(value) {
				visitJS(w, decl, sc)
				continue
			}
			name := w.field(decl, "name")
			id := w.b.add(types.Symbol{
				Name:       name,
				Kind:       types.Function,
				StartLine:  startLine(n),
				EndLine:    endLine(n),
				Exported:   sc.exported,
				EntryPoint: isEntryPointName(name),
				Signature:  w.arrowHeader(n, value),
				Doc:        firstSentence(w.leadingComment(n)),
			}, name)
			w.walkBody(value, scope{fn: id})
		}

	case "call_expression":
		w.b.ref(sc.fn, w.calleeName(n.ChildByFieldName("function")), types.Call, startLine(n))
		w.walkChildren(visitJS, n, sc)

	case "new_expression":
		w.b.ref(sc.fn, w.calleeName(n.ChildByFieldName("constructor")), types.Call, startLine(n))
		w.walkChildren(visitJS, n, sc)

	case "import_statement", "comment":
		// Imports are captured by query.

	default:
		w.walkChildren(visitJS, n, sc)
	}
}

// method records a class member whose body is fn.
func (w *tsWalker) method(n *sitter.Node, name string, fn *sitter.Node, sc scope) {
	private := strings.HasPrefix(name, "#")
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c != nil && c.Type() == "accessibility_modifier" {
			mod := w.text(c)
			private = private || mod == "private" || mod == "protected"
		}
	}
	sig := w.header(n, "body")
	if fn != n {
		sig = w.arrowHeader(n, fn)
	}
	id := w.b.add(types.Symbol{
		Name:      name,
		Kind:      types.Method,
		StartLine: startLine(n),
		EndLine:   endLine(n),
		Exported:  sc.exported && !private,
		Signature: sig,
		Doc:       firstSentence(w.leadingComment(n)),
	}, sc.className+"."+name)
	w.b.link(id, sc.class, types.Inherit, startLine(n))
	w.walkBody(fn, scope{fn: id})
}

// walkBody visits the body of a function-like node, or the node's children
// when it has no body field.
func (w *tsWalker) walkBody(n *sitter.Node, sc scope) {
	if n == nil {
		return
	}
	if body := n.ChildByFieldName("body"); body != nil {
		visitJS(w, body, sc)
		return
	}
	w.walkChildren(visitJS, n, sc)
}

// arrowHeader renders a declaration bound to a function value up to the
// value's body, e.g. "const handler = async (req) =>".
func (w *tsWalker) arrowHeader(decl, value *sitter.Node) string {
	end := decl.EndByte()
	if body := value.ChildByFieldName("body"); body != nil {
		end = body.StartByte()
	}
	s := collapseSpace(string(w.src[decl.StartByte():end]))
	return strings.TrimSpace(strings.TrimSuffix(s, "{"))
}

// leadingComment returns the comment directly above n (or above the export
// statement wrapping it), stripped of comment markers and JSDoc tags.
func (w *tsWalker) leadingComment(n *sitter.Node) string {
	target := n
	if p := n.Parent(); p != nil && p.Type() == "export_statement" {
		target = p
	}
	prev := target.PrevSibling()
	if prev == nil || prev.Type() != "comment" || endLine(prev)+1 < startLine(target) {
		return ""
	}

	var lines []string
	for _, line := range strings.Split(w.text(prev), "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "/**")
		line = strings.TrimPrefix(line, "/*")
		line = strings.TrimSuffix(line, "*/")
		line = strings.TrimPrefix(line, "//")
		line = strings.TrimPrefix(line, "*")
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "@") {
			break
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func isFunctionValue(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "arrow_function", "function", "function_expression", "generator_function":
		return true
	}
	return false
}

func hasChildType(n *sitter.Node, typ string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c != nil && c.Type() == typ {
			return true
		}
	}
	return false
}
