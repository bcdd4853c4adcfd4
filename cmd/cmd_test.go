package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sidecarXML = `<?xml version="1.0" encoding="utf-8"?>
<Project ToolsVersion="4.0" xmlns="http://schemas.microsoft.com/developer/msbuild/2003">
  <ItemGroup>
    <Filter Include="Src">
      <UniqueIdentifier>{55555555-5555-4555-8555-555555555555}</UniqueIdentifier>
    </Filter>
  </ItemGroup>
  <ItemGroup>
    <ClCompile Include="x.cpp">
      <Filter>Src</Filter>
    </ClCompile>
    <ClCompile Include="gone.cpp">
      <Filter>Src</Filter>
    </ClCompile>
  </ItemGroup>
</Project>
`

func fixture(t *testing.T) string {
	t.Helper()
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "p.vcxproj.filters"), []byte(sidecarXML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "x.cpp"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "y.cpp"), nil, 0o644))
	return ws
}

func resetFlags() {
	configPath, rootDirs, logLevel, maxFiles, excludes, workspace = "", nil, "error", 0, nil, ""
	treeFormat, treeSelect, treeNoHeal = "text", "", false
	whichCopy, watchPrint = false, false
}

// run executes the CLI with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append(args, "--log-level", "error"))
	err := rootCmd.Execute()
	return out.String(), err
}

func sidecarText(t *testing.T, ws string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(ws, "p.vcxproj.filters"))
	require.NoError(t, err)
	return string(data)
}

func TestTreeText(t *testing.T) {
	ws := fixture(t)
	out, err := run(t, "tree", "--root", ws, "--no-heal")
	require.NoError(t, err)
	assert.Contains(t, out, "Src")
	assert.Contains(t, out, "└── x.cpp")
	assert.Contains(t, out, "y.cpp")
	assert.NotContains(t, out, "gone.cpp")
	assert.Contains(t, sidecarText(t, ws), "gone.cpp", "--no-heal must leave the sidecar alone")
}

func TestTreeHealsByDefault(t *testing.T) {
	ws := fixture(t)
	_, err := run(t, "tree", "--root", ws)
	require.NoError(t, err)
	assert.NotContains(t, sidecarText(t, ws), "gone.cpp")
}

func TestTreeJSONAndSelect(t *testing.T) {
	ws := fixture(t)
	out, err := run(t, "tree", "--root", ws, "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"filter"`)
	assert.Contains(t, out, `"x.cpp"`)

	out, err = run(t, "tree", "--root", ws, "--select", "$.children[?(@.type == 'file')].name")
	require.NoError(t, err)
	assert.Contains(t, out, "y.cpp")
	assert.NotContains(t, out, "x.cpp")
}

func TestTreeRejectsUnknownFormat(t *testing.T) {
	ws := fixture(t)
	_, err := run(t, "tree", "--root", ws, "--format", "yaml")
	assert.Error(t, err)
}

func TestTreeReportsFailedRoot(t *testing.T) {
	good := fixture(t)
	bad := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(bad, "b.vcxproj.filters"), []byte("<Project><ItemGroup>"), 0o644))

	out, err := run(t, "tree", "--root", bad, "--root", good)
	assert.Error(t, err)
	assert.Contains(t, out, "x.cpp", "healthy root still renders")
}

func TestFilterCommands(t *testing.T) {
	ws := fixture(t)

	out, err := run(t, "filter", "create", "Src/Net", "--root", ws)
	require.NoError(t, err)
	assert.Equal(t, "Src\\Net\n", out)

	out, err = run(t, "filter", "mv", "Src/Net", "/", "--root", ws)
	require.NoError(t, err)
	assert.Equal(t, "Net\n", out)

	_, err = run(t, "filter", "mv", "Src", "Src", "--root", ws)
	assert.Error(t, err)

	_, err = run(t, "filter", "rm", "Src", "--root", ws)
	require.NoError(t, err)
	out, err = run(t, "file", "which", filepath.Join(ws, "x.cpp"), "--root", ws)
	require.NoError(t, err)
	assert.Equal(t, "(unfiltered)\n", out)

	_, err = run(t, "filter", "rm", "Missing", "--root", ws)
	assert.Error(t, err)
}

func TestFileCommands(t *testing.T) {
	ws := fixture(t)
	y := filepath.Join(ws, "y.cpp")

	_, err := run(t, "file", "mv", y, "Src", "--root", ws)
	require.NoError(t, err)
	out, err := run(t, "file", "which", y, "--root", ws)
	require.NoError(t, err)
	assert.Equal(t, "Src\n", out)

	z := filepath.Join(ws, "z.cpp")
	require.NoError(t, os.Rename(y, z))
	_, err = run(t, "file", "rename", y, z, "--root", ws)
	require.NoError(t, err)
	out, err = run(t, "file", "which", z, "--root", ws)
	require.NoError(t, err)
	assert.Equal(t, "Src\n", out)

	_, err = run(t, "file", "mv", z, "--root", ws)
	require.NoError(t, err)
	out, err = run(t, "file", "which", z, "--root", ws)
	require.NoError(t, err)
	assert.Equal(t, "(unfiltered)\n", out)

	_, err = run(t, "file", "rm", filepath.Join(ws, "x.cpp"), "--root", ws)
	require.NoError(t, err)
	assert.NotContains(t, sidecarText(t, ws), "x.cpp")
}

func TestClean(t *testing.T) {
	ws := fixture(t)
	out, err := run(t, "clean", "--root", ws)
	require.NoError(t, err)
	assert.Contains(t, out, "removed 1 stale entries")

	out, err = run(t, "clean", "--root", ws)
	require.NoError(t, err)
	assert.Contains(t, out, "removed 0 stale entries")
}

func TestConfigFileAndOverrides(t *testing.T) {
	ws := fixture(t)
	require.NoError(t, os.MkdirAll(filepath.Join(ws, "gen"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "gen", "a.cpp"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "filtertree.hcl"), []byte(`exclude_patterns = ["**/gen/**", "filtertree.hcl"]`+"\n"), 0o644))

	out, err := run(t, "tree", "--root", ws, "--no-heal")
	require.NoError(t, err)
	assert.NotContains(t, out, "a.cpp")
	assert.NotContains(t, out, "filtertree.hcl")

	out, err = run(t, "tree", "--root", ws, "--no-heal", "--config", filepath.Join(ws, "none.hcl"), "--exclude", "y.cpp")
	require.NoError(t, err)
	assert.Contains(t, out, "a.cpp")
	assert.NotContains(t, out, "y.cpp")
}
