// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package extract

import (
	"context"
	"path"
	"regexp"
	"strings"

	"github.com/petar-djukic/go-repomap/pkg/types"
)

// Heuristic is the fallback extractor for languages without a grammar. It
// recognizes function and class headers by line patterns, approximates each
// symbol's extent by indentation, and records name( tokens as calls. Every
// symbol it produces is marked degraded. It never returns an error.
type Heuristic struct{}

// Language returns "heuristic".
func (Heuristic) Language() string { return "heuristic" }

var (
	modifiers = `(?:(?:pub(?:\([^)]*\))?|public|private|protected|internal|static|async|export|override|final|abstract|inline|extern|unsafe|suspend|open|sealed|data|partial|virtual|synchronized)\s+)*`

	funcHeaderRe  = regexp.MustCompile(`^\s*` + modifiers + `(?:fn|func|def|function|fun|sub|proc)\s+([A-Za-z_]\w*)`)
	classHeaderRe = regexp.MustCompile(`^\s*` + modifiers + `(?:class|struct|interface|trait|module|enum|object|protocol|impl)\s+([A-Za-z_]\w*)`)
	// C-family method: a return type, a name and a parameter list ending the line.
	cMethodRe = regexp.MustCompile(`^\s*` + modifiers + `[A-Za-z_][\w<>\[\],:.*&]*(?:\s+[\w<>\[\],:.*&]+)*[\s*&]+([A-Za-z_]\w*)\s*\([^;{}]*\)\s*(?:const\s*)?(?:throws\s+[\w.,\s]+)?\{?\s*$`)
	callRe    = regexp.MustCompile(`\b([A-Za-z_]\w*)\s*\(`)

	privateRe = regexp.MustCompile(`\b(?:private|protected)\b`)
	publicRe  = regexp.MustCompile(`\b(?:pub|public|export)\b`)
)

var keywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true,
	"return": true, "elif": true, "else": true, "foreach": true, "until": true,
	"unless": true, "match": true, "when": true, "sizeof": true, "typeof": true,
	"new": true, "function": true, "fn": true, "def": true, "func": true,
	"print": true, "println": true, "and": true, "or": true, "not": true,
	"do": true, "case": true, "throw": true, "yield": true, "await": true,
	"super": true, "this": true, "self": true, "assert": true, "defined": true,
}

type header struct {
	line   int // 0-based
	indent int
	name   string
	class  bool
	text   string
}

// Extract never fails; unreadable content yields an empty degraded result.
func (Heuristic) Extract(ctx context.Context, p string, src []byte) (*types.FileResult, error) {
	lang := fallbackLanguages[strings.ToLower(path.Ext(p))]
	if lang == "" {
		lang = "unknown"
	}
	b := newFileBuilder(p, lang, src)
	b.res.Degraded = true
	if !validSource(src) || ctx.Err() != nil {
		return b.res, nil
	}

	lines := strings.Split(string(src), "\n")
	headers := findHeaders(lines)
	ids := make([]string, len(headers))
	ends := make([]int, len(headers))

	var classStack []int // indices into headers
	for i, h := range headers {
		ends[i] = blockEnd(lines, headers, i)

		for len(classStack) > 0 && ends[classStack[len(classStack)-1]] < h.line {
			classStack = classStack[:len(classStack)-1]
		}

		sym := types.Symbol{
			Name:       h.name,
			Kind:       types.Function,
			StartLine:  h.line + 1,
			EndLine:    ends[i] + 1,
			Exported:   heuristicExported(h),
			EntryPoint: isEntryPointName(h.name),
			Signature:  strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(h.text), "{")),
			Doc:        firstSentence(commentAbove(lines, h.line)),
			Degraded:   true,
		}
		local := h.name
		owner := -1
		if len(classStack) > 0 {
			owner = classStack[len(classStack)-1]
			local = headers[owner].name + "." + h.name
		}
		if h.class {
			sym.Kind = types.Class
			sym.EntryPoint = false
		} else if owner >= 0 {
			sym.Kind = types.Method
		}
		ids[i] = b.add(sym, local)
		if owner >= 0 && !h.class {
			b.link(ids[i], ids[owner], types.Inherit, sym.StartLine)
		}
		if h.class {
			classStack = append(classStack, i)
		}
	}

	// Attribute each call to the innermost symbol whose extent covers it.
	for ln, text := range lines {
		owner := ""
		for i := len(headers) - 1; i >= 0; i-- {
			if headers[i].line <= ln && ln <= ends[i] {
				owner = ids[i]
				break
			}
		}
		isHeader := false
		for _, h := range headers {
			if h.line == ln {
				isHeader = true
				break
			}
		}
		if isHeader || isCommentLine(text) {
			continue
		}
		for _, m := range callRe.FindAllStringSubmatch(text, -1) {
			if name := m[1]; !keywords[name] {
				b.ref(owner, name, types.Call, ln+1)
			}
		}
	}
	return b.finish(), nil
}

func findHeaders(lines []string) []header {
	var headers []header
	for i, line := range lines {
		if isCommentLine(line) {
			continue
		}
		h := header{line: i, indent: indentOf(line), text: line}
		if m := classHeaderRe.FindStringSubmatch(line); m != nil {
			h.name, h.class = m[1], true
		} else if m := funcHeaderRe.FindStringSubmatch(line); m != nil {
			h.name = m[1]
		} else if m := cMethodRe.FindStringSubmatch(line); m != nil && !keywords[m[1]] && !strings.HasPrefix(strings.TrimSpace(line), "return") {
			h.name = m[1]
		} else {
			continue
		}
		headers = append(headers, h)
	}
	return headers
}

// blockEnd returns the last line of header i: the line before the next
// non-blank line indented at or left of the header, ignoring lone closers
// such as "}" or "end" that belong to the block.
func blockEnd(lines []string, headers []header, i int) int {
	h := headers[i]
	last := h.line
	for ln := h.line + 1; ln < len(lines); ln++ {
		t := strings.TrimSpace(lines[ln])
		if t == "" {
			continue
		}
		if indentOf(lines[ln]) <= h.indent {
			if isCloser(t) {
				last = ln
			}
			break
		}
		last = ln
	}
	return last
}

func isCloser(t string) bool {
	switch strings.TrimRight(t, ";") {
	case "}", "end", "};", "})", "esac", "fi", "done":
		return true
	}
	return false
}

func indentOf(line string) int {
	n := 0
	for _, r := range line {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n
		}
	}
	return n
}

func isCommentLine(line string) bool {
	t := strings.TrimSpace(line)
	for _, p := range []string{"//", "#", "/*", "*", "--", ";"} {
		if strings.HasPrefix(t, p) {
			return true
		}
	}
	return false
}

// commentAbove returns the contiguous comment block directly above line.
func commentAbove(lines []string, line int) string {
	var block []string
	for ln := line - 1; ln >= 0 && isCommentLine(lines[ln]); ln-- {
		t := strings.TrimSpace(lines[ln])
		t = strings.TrimLeft(t, "/#*-;!")
		t = strings.TrimSuffix(t, "*/")
		block = append([]string{strings.TrimSpace(t)}, block...)
	}
	return strings.Join(block, "\n")
}

func heuristicExported(h header) bool {
	switch {
	case privateRe.MatchString(h.text):
		return false
	case publicRe.MatchString(h.text):
		return true
	default:
		return !strings.HasPrefix(h.name, "_")
	}
}
