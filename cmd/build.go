package cmd

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/agentic-research/filtertree/internal/graph"
)

var (
	treeFormat string
	treeSelect string
	treeNoHeal bool
)

var (
	rootStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	filterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

var treeCmd = &cobra.Command{
	Use:     "tree",
	Aliases: []string{"build"},
	Short:   "Build and print the filter tree of every root",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if treeFormat != "text" && treeFormat != "json" {
			return fmt.Errorf("unknown format %q (want text or json)", treeFormat)
		}
		p, err := openProvider(treeNoHeal)
		if err != nil {
			return err
		}
		defer p.Close()

		out := cmd.OutOrStdout()
		roots := p.Roots()
		failed := 0
		for _, r := range roots {
			tree, err := p.Tree(r.Workspace)
			if err != nil {
				// Other roots still render.
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", r.Workspace, err)
				failed++
				continue
			}
			switch {
			case treeSelect != "":
				res, err := graph.Select(tree.Root, treeSelect)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, oj.JSON(res, &oj.Options{Indent: 2}))
			case treeFormat == "json":
				fmt.Fprintln(out, graph.JSON(tree.Root, 2))
			default:
				renderTree(out, tree.Root)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d roots failed to build", failed, len(roots))
		}
		return nil
	},
}

func init() {
	treeCmd.Flags().StringVarP(&treeFormat, "format", "f", "text", "Output format: text or json")
	treeCmd.Flags().StringVar(&treeSelect, "select", "", "JSONPath applied to each tree, printed as JSON")
	treeCmd.Flags().BoolVar(&treeNoHeal, "no-heal", false, "Do not remove stale entries from the sidecar")
	rootCmd.AddCommand(treeCmd)
}

func renderTree(w io.Writer, root *graph.Filter) {
	fmt.Fprintln(w, rootStyle.Render(root.Name()))
	renderChildren(w, root, "")
}

func renderChildren(w io.Writer, f *graph.Filter, prefix string) {
	for i, c := range f.Children {
		branch, indent := "├── ", "│   "
		if i == len(f.Children)-1 {
			branch, indent = "└── ", "    "
		}
		if sub, ok := c.(*graph.Filter); ok {
			fmt.Fprintln(w, prefix+branch+filterStyle.Render(sub.Name()))
			renderChildren(w, sub, prefix+indent)
			continue
		}
		fmt.Fprintln(w, prefix+branch+c.Name())
	}
}
