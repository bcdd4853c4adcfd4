// Package mcptools exposes the filter tree host interface as MCP tools.
package mcptools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ohler55/ojg/oj"

	"github.com/agentic-research/filtertree/internal/graph"
	"github.com/agentic-research/filtertree/internal/provider"
)

// NewServer returns an MCP server with every filter tool registered.
func NewServer(p *provider.Provider, version string) *server.MCPServer {
	s := server.NewMCPServer("filtertree", version, server.WithToolCapabilities(false))
	Register(s, p)
	return s
}

// Register adds the filter tools to s and returns their handlers by name.
func Register(s *server.MCPServer, p *provider.Provider) map[string]server.ToolHandlerFunc {
	h := &handlers{p: p}
	out := make(map[string]server.ToolHandlerFunc)
	add := func(tool mcp.Tool, fn server.ToolHandlerFunc) {
		s.AddTool(tool, fn)
		out[tool.Name] = fn
	}
	workspace := mcp.WithString("workspace", mcp.Description("Workspace root; defaults to the first root"))

	add(mcp.NewTool("filter_tree",
		mcp.WithDescription("Show the filter tree of a workspace as JSON"),
		workspace,
		mcp.WithString("select", mcp.Description("Optional JSONPath applied to the tree, e.g. $..children[?(@.type == 'file')].rel")),
	), h.tree)
	add(mcp.NewTool("filter_create",
		mcp.WithDescription("Create a filter under a parent filter"),
		workspace,
		mcp.WithString("parent", mcp.Description(`Parent filter path using \ as separator; empty for the root`)),
		mcp.WithString("name", mcp.Required(), mcp.Description("New filter name")),
	), h.createFilter)
	add(mcp.NewTool("filter_delete",
		mcp.WithDescription("Delete a filter and its sub-filters; files become unfiltered"),
		workspace,
		mcp.WithString("path", mcp.Required(), mcp.Description("Filter path")),
	), h.deleteFilter)
	add(mcp.NewTool("filter_move",
		mcp.WithDescription("Move a filter under another parent filter"),
		workspace,
		mcp.WithString("path", mcp.Required(), mcp.Description("Filter to move")),
		mcp.WithString("parent", mcp.Description("Destination parent; empty for the root")),
	), h.moveFilter)
	add(mcp.NewTool("file_move",
		mcp.WithDescription("Associate a file with a filter"),
		mcp.WithString("location", mcp.Required(), mcp.Description("Absolute path of the file")),
		mcp.WithString("filter", mcp.Description("Destination filter; empty makes the file unfiltered")),
	), h.moveFile)
	add(mcp.NewTool("file_filter",
		mcp.WithDescription("Show the filter a file belongs to"),
		mcp.WithString("location", mcp.Required(), mcp.Description("Absolute path of the file")),
	), h.fileFilter)
	add(mcp.NewTool("file_rename",
		mcp.WithDescription("Update filter entries after a file or directory was renamed"),
		mcp.WithString("old", mcp.Required(), mcp.Description("Previous absolute path")),
		mcp.WithString("new", mcp.Required(), mcp.Description("New absolute path")),
	), h.renameFile)
	add(mcp.NewTool("file_delete",
		mcp.WithDescription("Remove filter entries for a deleted file or directory"),
		mcp.WithString("location", mcp.Required(), mcp.Description("Absolute path of the file")),
	), h.deleteFile)
	add(mcp.NewTool("filter_prune",
		mcp.WithDescription("Remove sidecar entries whose files no longer exist"),
		workspace,
	), h.prune)
	return out
}

type handlers struct {
	p *provider.Provider
}

func (h *handlers) workspace(req mcp.CallToolRequest) (string, error) {
	if ws := req.GetString("workspace", ""); ws != "" {
		return ws, nil
	}
	roots := h.p.Roots()
	if len(roots) == 0 {
		return "", fmt.Errorf("no workspace roots configured")
	}
	return roots[0].Workspace, nil
}

// filter resolves p in the current tree of ws.
func (h *handlers) filter(ws, p string) (*graph.Filter, error) {
	tree, err := h.p.Tree(ws)
	if err != nil {
		return nil, err
	}
	return tree.Lookup(p)
}

func (h *handlers) tree(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ws, err := h.workspace(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tree, err := h.p.Tree(ws)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if sel := req.GetString("select", ""); sel != "" {
		res, err := graph.Select(tree.Root, sel)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(oj.JSON(res, &oj.Options{Indent: 2})), nil
	}
	return mcp.NewToolResultText(graph.JSON(tree.Root, 2)), nil
}

func (h *handlers) createFilter(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ws, err := h.workspace(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	parent := &graph.Filter{Path: req.GetString("parent", ""), Workspace: ws}
	newPath, err := h.p.CreateFilter(parent, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(newPath), nil
}

func (h *handlers) deleteFilter(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ws, err := h.workspace(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := h.filter(ws, p)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("filter %q: %v", p, err)), nil
	}
	if err := h.p.DeleteFilter(f); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("deleted " + p), nil
}

func (h *handlers) moveFilter(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ws, err := h.workspace(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	src, err := h.filter(ws, p)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("filter %q: %v", p, err)), nil
	}
	dest := &graph.Filter{Path: req.GetString("parent", ""), Workspace: ws}
	newPath, err := h.p.MoveFilterToParent(src, dest)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(newPath), nil
}

func (h *handlers) moveFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	loc, err := req.RequireString("location")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var dest *graph.Filter
	if f := req.GetString("filter", ""); f != "" {
		ws, err := h.p.WorkspaceOf(loc)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		dest = &graph.Filter{Path: f, Workspace: ws}
	}
	if err := h.p.MoveFileToFilter(loc, dest); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("ok"), nil
}

func (h *handlers) fileFilter(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	loc, err := req.RequireString("location")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, ok, err := h.p.FilterOf(loc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return mcp.NewToolResultText("(unfiltered)"), nil
	}
	return mcp.NewToolResultText(p), nil
}

func (h *handlers) renameFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	oldLoc, err := req.RequireString("old")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	newLoc, err := req.RequireString("new")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := h.p.RenameFileInFilters(oldLoc, newLoc); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("ok"), nil
}

func (h *handlers) deleteFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	loc, err := req.RequireString("location")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := h.p.DeleteFileFromFilters(loc); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("ok"), nil
}

func (h *handlers) prune(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ws, err := h.workspace(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := h.p.Prune(ws)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("removed %d stale entries", n)), nil
}
