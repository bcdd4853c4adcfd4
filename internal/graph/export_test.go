package graph

import (
	"testing"

	"github.com/ohler55/ojg/oj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exportTree() *Tree {
	tree := NewTree("/ws/proj")
	tree.AddFile("Src", &File{Rel: "src/x.cpp", Location: "/ws/proj/src/x.cpp"})
	tree.Ensure(`Src\Empty`)
	tree.AddFile("", &File{Rel: "y.cpp", Location: "/ws/proj/y.cpp"})
	tree.Sort()
	return tree
}

func TestFlatten(t *testing.T) {
	got := Flatten(exportTree().Root)
	require.Len(t, got, 2)
	assert.Equal(t, "Src", got[0].Filter)
	assert.Equal(t, "src/x.cpp", got[0].File.Rel)
	assert.Equal(t, "", got[1].Filter)
}

func TestJSON_ParsesBack(t *testing.T) {
	out := JSON(exportTree().Root, 2)
	v, err := oj.ParseString(out)
	require.NoError(t, err)
	m, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "proj", m["name"])
	assert.Len(t, m["children"], 2)
}

func TestSelect(t *testing.T) {
	got, err := Select(exportTree().Root, `$..children[?(@.type == 'file')].rel`)
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"src/x.cpp", "y.cpp"}, got)

	_, err = Select(exportTree().Root, `$[`)
	assert.Error(t, err)
}
