package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/filtertree/api"
	"github.com/agentic-research/filtertree/internal/graph"
	"github.com/agentic-research/filtertree/internal/sidecar"
	"github.com/agentic-research/filtertree/internal/writeback"
)

const header = `<?xml version="1.0" encoding="utf-8"?>
<Project ToolsVersion="4.0" xmlns="http://schemas.microsoft.com/developer/msbuild/2003">
`

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func newEngine(t *testing.T, cfg api.Config) *Engine {
	t.Helper()
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	return e
}

func reconcile(t *testing.T, e *Engine, root string) *Result {
	t.Helper()
	res, err := e.Reconcile(osfs.New(root), root)
	require.NoError(t, err)
	return res
}

func childNames(f *graph.Filter) []string {
	var out []string
	for _, c := range f.Children {
		out = append(out, c.Name())
	}
	return out
}

func TestReconcile_UnfilteredSurfacing(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "p.vcxproj.filters", header+`  <ItemGroup>
    <ClCompile Include="x.cpp">
      <Filter>Src</Filter>
    </ClCompile>
  </ItemGroup>
</Project>
`)
	writeFile(t, root, "x.cpp", "")
	writeFile(t, root, "y.cpp", "")

	res := reconcile(t, newEngine(t, api.DefaultConfig()), root)
	assert.Equal(t, "p.vcxproj.filters", res.Sidecar)
	assert.Equal(t, []string{"Src", "y.cpp"}, childNames(res.Tree.Root))

	src, err := res.Tree.Lookup("Src")
	require.NoError(t, err)
	assert.Equal(t, []string{"x.cpp"}, childNames(src))
	assert.Equal(t, filepath.Join(root, "x.cpp"), src.Files()[0].Location)
}

func TestReconcile_StalePruningIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "p.vcxproj.filters", header+`  <ItemGroup>
    <ClCompile Include="x.cpp">
      <Filter>Src</Filter>
    </ClCompile>
    <ClCompile Include="z.cpp">
      <Filter>Src</Filter>
    </ClCompile>
  </ItemGroup>
</Project>
`)
	writeFile(t, root, "x.cpp", "")
	e := newEngine(t, api.DefaultConfig())

	res := reconcile(t, e, root)
	assert.Equal(t, []string{"z.cpp"}, res.Stale)
	assert.True(t, res.Healed)
	src, err := res.Tree.Lookup("Src")
	require.NoError(t, err)
	assert.Equal(t, []string{"x.cpp"}, childNames(src))

	sidecarPath := filepath.Join(root, "p.vcxproj.filters")
	first, err := os.ReadFile(sidecarPath)
	require.NoError(t, err)
	assert.NotContains(t, string(first), "z.cpp")
	assert.Contains(t, string(first), "x.cpp")
	stat1, err := os.Stat(sidecarPath)
	require.NoError(t, err)

	res = reconcile(t, e, root)
	assert.Empty(t, res.Stale)
	assert.False(t, res.Healed)
	second, err := os.ReadFile(sidecarPath)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	stat2, err := os.Stat(sidecarPath)
	require.NoError(t, err)
	assert.True(t, os.SameFile(stat1, stat2), "second build must not rewrite the sidecar")
}

func TestReconcileWith_CleanupKeepsConcurrentMutations(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "p.vcxproj.filters", header+`  <ItemGroup>
    <ClCompile Include="x.cpp" />
  </ItemGroup>
</Project>
`)
	writeFile(t, root, "x.cpp", "")
	e := newEngine(t, api.DefaultConfig())
	ed := writeback.NewEditor(osfs.New(root), root, e.Config, e.Excluder)

	for i := 0; i < 20; i++ {
		gone := fmt.Sprintf("gone%d.cpp", i)
		require.NoError(t, ed.MoveFile(gone, "Src"))

		var wg sync.WaitGroup
		var res *Result
		var buildErr, mutErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			res, buildErr = e.ReconcileWith(ed)
		}()
		go func() {
			defer wg.Done()
			_, mutErr = ed.CreateFilter("", fmt.Sprintf("F%d", i))
		}()
		wg.Wait()
		require.NoError(t, buildErr)
		require.NoError(t, mutErr)
		assert.True(t, res.Healed)

		got, err := os.ReadFile(filepath.Join(root, "p.vcxproj.filters"))
		require.NoError(t, err)
		assert.NotContains(t, string(got), gone)
		assert.Contains(t, string(got), fmt.Sprintf(`Include="F%d"`, i), "mutation lost to cleanup write")
	}
}

func TestReconcile_ReadOnlyLeavesStaleEntries(t *testing.T) {
	root := t.TempDir()
	content := header + `  <ItemGroup>
    <ClCompile Include="gone.cpp" />
  </ItemGroup>
</Project>
`
	writeFile(t, root, "p.vcxproj.filters", content)
	e := newEngine(t, api.DefaultConfig())
	e.ReadOnly = true

	res := reconcile(t, e, root)
	assert.Equal(t, []string{"gone.cpp"}, res.Stale)
	assert.False(t, res.Healed)
	got, err := os.ReadFile(filepath.Join(root, "p.vcxproj.filters"))
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
}

func TestReconcile_SynthesizedAncestors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "p.vcxproj.filters", header+`  <ItemGroup>
    <Filter Include="A\B\C">
      <UniqueIdentifier>{00000000-0000-4000-8000-000000000000}</UniqueIdentifier>
    </Filter>
  </ItemGroup>
</Project>
`)
	res := reconcile(t, newEngine(t, api.DefaultConfig()), root)

	a, err := graph.Find(res.Tree.Root, "A")
	require.NoError(t, err)
	b, err := graph.Find(a, `A\B`)
	require.NoError(t, err)
	c, err := graph.Find(res.Tree.Root, `A\B\C`)
	require.NoError(t, err)

	assert.Equal(t, []string{"A"}, childNames(res.Tree.Root))
	assert.Equal(t, []string{"B"}, childNames(a))
	assert.Equal(t, []string{"C"}, childNames(b))
	assert.Empty(t, c.Children)
	assert.True(t, c.Populated)
}

func TestReconcile_UndefinedFilterReference(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "p.vcxproj.filters", header+`  <ItemGroup>
    <ClInclude Include="inc\a.h">
      <Filter>Headers\Public</Filter>
    </ClInclude>
  </ItemGroup>
</Project>
`)
	writeFile(t, root, "inc/a.h", "")

	res := reconcile(t, newEngine(t, api.DefaultConfig()), root)
	pub, err := res.Tree.Lookup(`Headers\Public`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.h"}, childNames(pub))
	assert.Equal(t, []string{"Headers"}, childNames(res.Tree.Root))
}

func TestReconcile_CaseInsensitiveInclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "p.vcxproj.filters", header+`  <ItemGroup>
    <ClCompile Include="SRC\Main.CPP">
      <Filter>Src</Filter>
    </ClCompile>
  </ItemGroup>
</Project>
`)
	writeFile(t, root, "src/main.cpp", "")

	res := reconcile(t, newEngine(t, api.DefaultConfig()), root)
	assert.Empty(t, res.Stale)
	assert.Equal(t, []string{"Src"}, childNames(res.Tree.Root))
	src, err := res.Tree.Lookup("Src")
	require.NoError(t, err)
	assert.Equal(t, "src/main.cpp", src.Files()[0].Rel)
}

func TestReconcile_MaxFilesCeiling(t *testing.T) {
	root := t.TempDir()
	for _, n := range []string{"a.cpp", "b.cpp", "c.cpp", "d.cpp", "e.cpp"} {
		writeFile(t, root, n, "")
	}
	cfg := api.DefaultConfig()
	cfg.MaxFiles = 2

	res := reconcile(t, newEngine(t, cfg), root)
	assert.Equal(t, []string{"a.cpp", "b.cpp"}, childNames(res.Tree.Root))
	assert.True(t, res.Truncated)
	assert.Equal(t, 2, res.Scanned)
}

func TestReconcile_Excludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.cpp", "")
	writeFile(t, root, "bin/out.exe", "")
	writeFile(t, root, "sub/.git/HEAD", "")
	writeFile(t, root, "sub/keep.h", "")
	writeFile(t, root, "bin/stray.vcxproj.filters", header+"</Project>\n")

	res := reconcile(t, newEngine(t, api.DefaultConfig()), root)
	assert.Empty(t, res.Sidecar)
	assert.ElementsMatch(t, []string{"main.cpp", "keep.h"}, childNames(res.Tree.Root))
}

func TestReconcile_NoSidecar(t *testing.T) {
	root := t.TempDir()
	res := reconcile(t, newEngine(t, api.DefaultConfig()), root)
	assert.Empty(t, res.Sidecar)
	assert.Empty(t, res.Tree.Root.Children)
	assert.True(t, res.Tree.Root.Populated)
}

func TestReconcile_SidecarNotListedAsFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "p.vcxproj.filters", sidecar.Skeleton)
	writeFile(t, root, "p.vcxproj", "")

	res := reconcile(t, newEngine(t, api.DefaultConfig()), root)
	assert.Equal(t, []string{"p.vcxproj"}, childNames(res.Tree.Root))
}

func TestReconcile_Malformed(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "p.vcxproj.filters", "<Project><ItemGroup>")

	_, err := newEngine(t, api.DefaultConfig()).Reconcile(osfs.New(root), root)
	var pe *sidecar.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "p.vcxproj.filters", pe.Path)
}

func TestBuild(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b/z.txt", "")
	writeFile(t, root, "a.txt", "")

	e := newEngine(t, api.DefaultConfig())
	got, err := e.Build(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "z.txt"}, childNames(got))
	assert.Equal(t, "", got.Path)
}

func TestNewEngine_InvalidPattern(t *testing.T) {
	cfg := api.DefaultConfig()
	cfg.ExcludePatterns = []string{"[unterminated"}
	_, err := NewEngine(cfg)
	assert.Error(t, err)
}
