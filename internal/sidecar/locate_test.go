package sidecar

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type prefixExcluder []string

func (p prefixExcluder) Excluded(rel string, _ bool) bool {
	for _, pre := range p {
		if rel == pre || strings.HasPrefix(rel, pre+"/") {
			return true
		}
	}
	return false
}

func writeFiles(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, n := range names {
		full := filepath.Join(root, filepath.FromSlash(n))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("x"), 0o644))
	}
}

func TestLocate(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a/nested.vcxproj.filters", "z.vcxproj.filters", "main.cpp")

	got, err := Locate(osfs.New(root), "*.vcxproj.filters", nil)
	require.NoError(t, err)
	assert.Equal(t, "z.vcxproj.filters", got)
}

func TestLocate_DescendsAndHonorsExcludes(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "build/gen.vcxproj.filters", "proj/app.vcxproj.filters")

	got, err := Locate(osfs.New(root), "*.vcxproj.filters", prefixExcluder{"build"})
	require.NoError(t, err)
	assert.Equal(t, "proj/app.vcxproj.filters", got)
}

func TestLocate_Missing(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "main.cpp")

	got, err := Locate(osfs.New(root), "*.vcxproj.filters", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDefaultName(t *testing.T) {
	root := t.TempDir()
	assert.Equal(t, "ws.vcxproj.filters", DefaultName(osfs.New(root), "ws"))

	writeFiles(t, root, "Game.vcxproj")
	assert.Equal(t, "Game.vcxproj.filters", DefaultName(osfs.New(root), "ws"))

	writeFiles(t, root, "Tools.vcxproj")
	assert.Equal(t, "ws.vcxproj.filters", DefaultName(osfs.New(root), "ws"))
}
