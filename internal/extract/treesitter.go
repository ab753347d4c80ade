// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package extract

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/petar-djukic/go-repomap/pkg/types"
)

// scope is the syntactic context of a node during a walk.
type scope struct {
	fn        string // symbol that owns calls made here ("" = module)
	class     string // set only directly inside a class body
	className string // local identifier of that class
	exported  bool   // under an export statement
	dflt      bool   // under an export default statement
}

// tsWalker carries the state of one tree-sitter extraction.
type tsWalker struct {
	src []byte
	b   *fileBuilder
	// exportNames collects names listed in export clauses.
	exportNames map[string]bool
}

type visitFunc func(w *tsWalker, n *sitter.Node, sc scope)

// TreeSitter is an Extractor driven by a tree-sitter grammar. The visit
// function walks the syntax tree for definitions and calls; the import query
// captures imported names as @name.
type TreeSitter struct {
	name        string
	lang        *sitter.Language
	visit       visitFunc
	importQuery string

	once  sync.Once
	query *sitter.Query
	qerr  error
}

// Language returns the grammar's language name.
func (e *TreeSitter) Language() string { return e.name }

// Extract parses src and walks the tree.
func (e *TreeSitter) Extract(ctx context.Context, path string, src []byte) (*types.FileResult, error) {
	if err := checkSource(path, src); err != nil {
		return nil, err
	}
	root, err := sitter.ParseCtx(ctx, src, e.lang)
	if err != nil {
		return nil, types.NewError(types.KindParse, err, "%s", path)
	}
	if root == nil {
		return nil, types.NewError(types.KindParse, nil, "%s: empty syntax tree", path)
	}

	w := &tsWalker{src: src, b: newFileBuilder(path, e.name, src), exportNames: make(map[string]bool)}
	e.visit(w, root, scope{})

	imports, err := e.imports(root, src)
	if err != nil {
		return nil, err
	}
	for _, imp := range imports {
		w.b.ref("", lastSegment(imp.name), types.Import, imp.line)
	}
	w.b.markExported(w.exportNames)
	return w.b.finish(), nil
}

func (e *TreeSitter) imports(root *sitter.Node, src []byte) ([]queryResult, error) {
	if e.importQuery == "" {
		return nil, nil
	}
	e.once.Do(func() {
		e.query, e.qerr = sitter.NewQuery([]byte(e.importQuery), e.lang)
	})
	if e.qerr != nil {
		return nil, fmt.Errorf("compiling %s import query: %w", e.name, e.qerr)
	}
	return runQuery(e.query, root, src), nil
}

type queryResult struct {
	name string
	line int
}

// runQuery executes a compiled query and returns the captured names with
// their 1-based lines, de-duplicated by name and line.
func runQuery(q *sitter.Query, root *sitter.Node, content []byte) []queryResult {
	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, root)

	seen := make(map[string]bool)
	var results []queryResult
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, c := range m.Captures {
			name := c.Node.Content(content)
			line := int(c.Node.StartPoint().Row) + 1
			key := name + ":" + strconv.Itoa(line)
			if name == "" || seen[key] {
				continue
			}
			seen[key] = true
			results = append(results, queryResult{name: name, line: line})
		}
	}
	return results
}

// walkChildren visits every named child with the same scope.
func (w *tsWalker) walkChildren(visit visitFunc, n *sitter.Node, sc scope) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c != nil {
			visit(w, c, sc)
		}
	}
}

func (w *tsWalker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(w.src)
}

func (w *tsWalker) field(n *sitter.Node, name string) string {
	return w.text(n.ChildByFieldName(name))
}

func startLine(n *sitter.Node) int { return int(n.StartPoint().Row) + 1 }
func endLine(n *sitter.Node) int   { return int(n.EndPoint().Row) + 1 }

// header returns the source of n up to the start of its body field, with
// whitespace collapsed and a trailing ':' or '{' removed.
func (w *tsWalker) header(n *sitter.Node, bodyField string) string {
	end := n.EndByte()
	if body := n.ChildByFieldName(bodyField); body != nil {
		end = body.StartByte()
	}
	s := collapseSpace(string(w.src[n.StartByte():end]))
	s = strings.TrimSuffix(s, "{")
	s = strings.TrimSuffix(s, ":")
	return strings.TrimSpace(s)
}

// typeNames collects the base names referenced by a heritage or superclass
// list, skipping type arguments and keyword arguments.
func (w *tsWalker) typeNames(n *sitter.Node) []string {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "identifier", "type_identifier":
		return []string{w.text(n)}
	case "member_expression":
		return []string{w.field(n, "property")}
	case "attribute":
		return []string{w.field(n, "attribute")}
	case "nested_type_identifier":
		return []string{w.field(n, "name")}
	case "subscript":
		return w.typeNames(n.ChildByFieldName("value"))
	case "type_arguments", "keyword_argument", "arguments":
		return nil
	}
	var names []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		names = append(names, w.typeNames(n.NamedChild(i))...)
	}
	return names
}

// calleeName returns the name a call target refers to: the identifier
// itself, or the last member of a member access.
func (w *tsWalker) calleeName(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "identifier", "type_identifier":
		return w.text(n)
	case "member_expression":
		return w.field(n, "property")
	case "attribute":
		return w.field(n, "attribute")
	case "parenthesized_expression":
		if n.NamedChildCount() > 0 {
			return w.calleeName(n.NamedChild(0))
		}
	}
	return ""
}
