package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentic-research/filtertree/internal/graph"
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Create, delete and move filters",
}

var filterCreateCmd = &cobra.Command{
	Use:   "create <path>",
	Short: `Create a filter, e.g. "Source Files/Net"`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProvider(false)
		if err != nil {
			return err
		}
		defer p.Close()
		ws, err := targetRoot(p)
		if err != nil {
			return err
		}
		path := filterArg(args[0])
		parent := &graph.Filter{Path: graph.Parent(path), Workspace: ws}
		newPath, err := p.CreateFilter(parent, graph.Base(path))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), newPath)
		return nil
	},
}

var filterRmCmd = &cobra.Command{
	Use:     "rm <path>",
	Aliases: []string{"delete"},
	Short:   "Delete a filter and its sub-filters; its files become unfiltered",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProvider(false)
		if err != nil {
			return err
		}
		defer p.Close()
		ws, err := targetRoot(p)
		if err != nil {
			return err
		}
		f, err := lookupFilter(p, ws, filterArg(args[0]))
		if err != nil {
			return err
		}
		return p.DeleteFilter(f)
	},
}

var filterMvCmd = &cobra.Command{
	Use:     "mv <path> <parent>",
	Aliases: []string{"move"},
	Short:   `Move a filter under another parent ("/" for the root)`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProvider(false)
		if err != nil {
			return err
		}
		defer p.Close()
		ws, err := targetRoot(p)
		if err != nil {
			return err
		}
		src, err := lookupFilter(p, ws, filterArg(args[0]))
		if err != nil {
			return err
		}
		dest := &graph.Filter{Path: filterArg(args[1]), Workspace: ws}
		newPath, err := p.MoveFilterToParent(src, dest)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), newPath)
		return nil
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove sidecar entries whose files no longer exist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProvider(true)
		if err != nil {
			return err
		}
		defer p.Close()
		for _, r := range p.Roots() {
			n, err := p.Prune(r.Workspace)
			if err != nil {
				return fmt.Errorf("clean %s: %w", r.Workspace, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: removed %d stale entries\n", r.Workspace, n)
		}
		return nil
	},
}

func init() {
	filterCmd.AddCommand(filterCreateCmd, filterRmCmd, filterMvCmd)
	rootCmd.AddCommand(filterCmd, cleanCmd)
}
