// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petar-djukic/go-repomap/pkg/types"
)

const pythonSource = `import os
from pkg.util import helper, other as alias


class Base:
    pass


class Child(Base):
    """A child class.

    More text."""

    def method(self):
        return helper()

    def _private(self):
        pass


def main():
    c = Child()
    c.method()
`

func TestPython_Extract(t *testing.T) {
	res, err := Python().Extract(context.Background(), "app/a.py", []byte(pythonSource))
	require.NoError(t, err)
	assert.Equal(t, "python", res.Language)

	base := symbolByID(t, res, "app/a.py#Base")
	assert.Equal(t, types.Class, base.Kind)

	child := symbolByID(t, res, "app/a.py#Child")
	assert.Equal(t, types.Class, child.Kind)
	assert.Equal(t, "class Child(Base)", child.Signature)
	assert.Equal(t, "A child class.", child.Doc)
	assert.Equal(t, 9, child.StartLine)

	method := symbolByID(t, res, "app/a.py#Child.method")
	assert.Equal(t, types.Method, method.Kind)
	assert.Equal(t, "method", method.Name)
	assert.True(t, method.Exported)
	assert.Equal(t, "def method(self)", method.Signature)

	private := symbolByID(t, res, "app/a.py#Child._private")
	assert.False(t, private.Exported)

	entry := symbolByID(t, res, "app/a.py#main")
	assert.Equal(t, types.Function, entry.Kind)
	assert.True(t, entry.EntryPoint)

	assert.True(t, hasLink(res, child.ID, base.ID, types.Inherit))
	assert.True(t, hasLink(res, method.ID, child.ID, types.Inherit))
	assert.True(t, hasNameRef(res, method.ID, "helper", types.Call))
	assert.True(t, hasLink(res, entry.ID, child.ID, types.Call))
	assert.True(t, hasLink(res, entry.ID, method.ID, types.Call))

	module := symbolByID(t, res, "app/a.py#<module>")
	assert.True(t, module.Synthetic)
	for _, name := range []string{"os", "helper", "other"} {
		assert.True(t, hasNameRef(res, module.ID, name, types.Import), name)
	}
	assert.False(t, hasNameRef(res, module.ID, "alias", types.Import), "aliases are not imported names")
}

func TestPython_NestedFunctionsBelongToParent(t *testing.T) {
	src := "def outer():\n    def inner():\n        work()\n    return inner()\n"
	res, err := Python().Extract(context.Background(), "n.py", []byte(src))
	require.NoError(t, err)

	var names []string
	for _, s := range res.Symbols {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"outer"}, names)
	assert.True(t, hasNameRef(res, "n.py#outer", "work", types.Call))
}

func TestPython_Dunder(t *testing.T) {
	assert.True(t, pythonExported("__init__"))
	assert.True(t, pythonExported("public"))
	assert.False(t, pythonExported("_hidden"))
	assert.False(t, pythonExported("__mangled"))
}

func TestPython_BinaryIsParseError(t *testing.T) {
	_, err := Python().Extract(context.Background(), "x.py", []byte("def f():\x00"))
	assert.ErrorIs(t, err, types.ErrParse)
}
