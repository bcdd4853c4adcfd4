package mcptools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/filtertree/api"
	"github.com/agentic-research/filtertree/internal/ingest"
	"github.com/agentic-research/filtertree/internal/provider"
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
  </ItemGroup>
</Project>
`

func setup(t *testing.T) (string, map[string]server.ToolHandlerFunc) {
	t.Helper()
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "p.vcxproj.filters"), []byte(sidecarXML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "x.cpp"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "y.cpp"), nil, 0o644))

	engine, err := ingest.NewEngine(api.DefaultConfig())
	require.NoError(t, err)
	p, err := provider.New(engine, ws)
	require.NoError(t, err)
	t.Cleanup(p.Close)

	s := server.NewMCPServer("filtertree-test", "0.0.0", server.WithToolCapabilities(false))
	return p.Roots()[0].Workspace, Register(s, p)
}

func call(t *testing.T, h map[string]server.ToolHandlerFunc, name string, args map[string]any) (string, bool) {
	t.Helper()
	fn, ok := h[name]
	require.True(t, ok, "tool %s not registered", name)
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := fn(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text, res.IsError
}

func TestRegisterAllTools(t *testing.T) {
	_, h := setup(t)
	for _, name := range []string{
		"filter_tree", "filter_create", "filter_delete", "filter_move",
		"file_move", "file_filter", "file_rename", "file_delete", "filter_prune",
	} {
		assert.Contains(t, h, name)
	}
}

func TestFilterTree(t *testing.T) {
	_, h := setup(t)
	out, isErr := call(t, h, "filter_tree", map[string]any{})
	require.False(t, isErr, out)
	assert.Contains(t, out, `"Src"`)
	assert.Contains(t, out, `"x.cpp"`)

	out, isErr = call(t, h, "filter_tree", map[string]any{"select": "$..children[?(@.type == 'filter')].name"})
	require.False(t, isErr, out)
	assert.Contains(t, out, "Src")
	assert.NotContains(t, out, "x.cpp")
}

func TestFilterLifecycle(t *testing.T) {
	ws, h := setup(t)

	out, isErr := call(t, h, "filter_create", map[string]any{"parent": "Src", "name": "Net"})
	require.False(t, isErr, out)
	assert.Equal(t, `Src\Net`, out)

	out, isErr = call(t, h, "filter_move", map[string]any{"path": `Src\Net`})
	require.False(t, isErr, out)
	assert.Equal(t, "Net", out)

	out, isErr = call(t, h, "file_move", map[string]any{"location": filepath.Join(ws, "y.cpp"), "filter": "Net"})
	require.False(t, isErr, out)
	out, _ = call(t, h, "file_filter", map[string]any{"location": filepath.Join(ws, "y.cpp")})
	assert.Equal(t, "Net", out)

	out, isErr = call(t, h, "filter_delete", map[string]any{"path": "Net"})
	require.False(t, isErr, out)
	out, _ = call(t, h, "file_filter", map[string]any{"location": filepath.Join(ws, "y.cpp")})
	assert.Equal(t, "(unfiltered)", out)
}

func TestFilterErrorsAreToolErrors(t *testing.T) {
	ws, h := setup(t)

	_, isErr := call(t, h, "filter_create", map[string]any{})
	assert.True(t, isErr)

	_, isErr = call(t, h, "filter_delete", map[string]any{"path": "Nope"})
	assert.True(t, isErr)

	_, isErr = call(t, h, "file_move", map[string]any{"location": "/elsewhere/z.cpp", "filter": "Src"})
	assert.True(t, isErr)

	_, isErr = call(t, h, "filter_tree", map[string]any{"workspace": filepath.Join(ws, "missing")})
	assert.True(t, isErr)
}

func TestFileRenameDeletePrune(t *testing.T) {
	ws, h := setup(t)
	oldLoc, newLoc := filepath.Join(ws, "x.cpp"), filepath.Join(ws, "z.cpp")
	require.NoError(t, os.Rename(oldLoc, newLoc))

	out, isErr := call(t, h, "file_rename", map[string]any{"old": oldLoc, "new": newLoc})
	require.False(t, isErr, out)
	out, _ = call(t, h, "file_filter", map[string]any{"location": newLoc})
	assert.Equal(t, "Src", out)

	out, isErr = call(t, h, "file_delete", map[string]any{"location": newLoc})
	require.False(t, isErr, out)
	out, _ = call(t, h, "file_filter", map[string]any{"location": newLoc})
	assert.Equal(t, "(unfiltered)", out)

	out, isErr = call(t, h, "filter_prune", map[string]any{})
	require.False(t, isErr, out)
	assert.Equal(t, "removed 0 stale entries", out)
}
