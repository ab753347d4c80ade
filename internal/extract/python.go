// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package extract

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/petar-djukic/go-repomap/pkg/types"
)

const pythonImportQuery = `
(import_statement name: (dotted_name) @name)
(import_statement name: (aliased_import name: (dotted_name) @name))
(import_from_statement name: (dotted_name) @name)
(import_from_statement name: (aliased_import name: (dotted_name) @name))
`

// Python returns the Python extractor. Names starting with an underscore are
// private unless they are dunder methods.
func Python() *TreeSitter {
	return &TreeSitter{
		name:        "python",
		lang:        python.GetLanguage(),
		visit:       visitPython,
		importQuery: pythonImportQuery,
	}
}

func visitPython(w *tsWalker, n *sitter.Node, sc scope) {
	switch n.Type() {
	case "function_definition":
		if sc.fn != "" && sc.class == "" {
			// Nested functions belong to their enclosing symbol.
			w.walkChildren(visitPython, n, sc)
			return
		}
		name := w.field(n, "name")
		sym := types.Symbol{
			Name:       name,
			Kind:       types.Function,
			StartLine:  startLine(n),
			EndLine:    endLine(n),
			Exported:   pythonExported(name),
			EntryPoint: isEntryPointName(name),
			Signature:  w.header(n, "body"),
			Doc:        firstSentence(w.pyDocstring(n.ChildByFieldName("body"))),
		}
		local := name
		if sc.class != "" {
			sym.Kind = types.Method
			local = sc.className + "." + name
		}
		id := w.b.add(sym, local)
		w.b.link(id, sc.class, types.Inherit, sym.StartLine)
		if body := n.ChildByFieldName("body"); body != nil {
			visitPython(w, body, scope{fn: id})
		}

	case "class_definition":
		if sc.fn != "" && sc.class == "" {
			w.walkChildren(visitPython, n, sc)
			return
		}
		name := w.field(n, "name")
		local := name
		if sc.className != "" {
			local = sc.className + "." + name
		}
		id := w.b.add(types.Symbol{
			Name:      name,
			Kind:      types.Class,
			StartLine: startLine(n),
			EndLine:   endLine(n),
			Exported:  pythonExported(name),
			Signature: w.header(n, "body"),
			Doc:       firstSentence(w.pyDocstring(n.ChildByFieldName("body"))),
		}, local)
		for _, base := range w.typeNames(n.ChildByFieldName("superclasses")) {
			if base != "object" {
				w.b.ref(id, base, types.Inherit, startLine(n))
			}
		}
		if body := n.ChildByFieldName("body"); body != nil {
			visitPython(w, body, scope{fn: id, class: id, className: local})
		}

	case "call":
		w.b.ref(sc.fn, w.calleeName(n.ChildByFieldName("function")), types.Call, startLine(n))
		w.walkChildren(visitPython, n, sc)

	case "import_statement", "import_from_statement", "comment":
		// Imports are captured by query.

	default:
		w.walkChildren(visitPython, n, sc)
	}
}

func pythonExported(name string) bool {
	if strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__") {
		return true
	}
	return !strings.HasPrefix(name, "_")
}

// pyDocstring returns the docstring that opens a block, without quotes.
func (w *tsWalker) pyDocstring(body *sitter.Node) string {
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first == nil || first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str == nil || str.Type() != "string" {
		return ""
	}
	s := w.text(str)
	s = strings.TrimLeft(s, "rRuUbBfF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return strings.TrimSpace(s[len(q) : len(s)-len(q)])
		}
	}
	return ""
}
