package cmd

import (
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/agentic-research/filtertree/internal/graph"
)

var whichCopy bool

var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Change which filter files belong to",
}

var fileMvCmd = &cobra.Command{
	Use:     "mv <file> [filter]",
	Aliases: []string{"move"},
	Short:   "Put a file in a filter; without a filter the file becomes unfiltered",
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProvider(false)
		if err != nil {
			return err
		}
		defer p.Close()
		var dest *graph.Filter
		if len(args) == 2 && filterArg(args[1]) != "" {
			ws, err := p.WorkspaceOf(args[0])
			if err != nil {
				return err
			}
			dest = &graph.Filter{Path: filterArg(args[1]), Workspace: ws}
		}
		return p.MoveFileToFilter(args[0], dest)
	},
}

var fileWhichCmd = &cobra.Command{
	Use:   "which <file>",
	Short: "Print the filter a file belongs to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProvider(true)
		if err != nil {
			return err
		}
		defer p.Close()
		path, ok, err := p.FilterOf(args[0])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "(unfiltered)")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		if whichCopy {
			if err := clipboard.WriteAll(path); err != nil {
				return fmt.Errorf("copy to clipboard: %w", err)
			}
		}
		return nil
	},
}

var fileRenameCmd = &cobra.Command{
	Use:   "rename <old> <new>",
	Short: "Update the sidecar after a file or directory was renamed on disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProvider(false)
		if err != nil {
			return err
		}
		defer p.Close()
		return p.RenameFileInFilters(args[0], args[1])
	},
}

var fileRmCmd = &cobra.Command{
	Use:     "rm <file>",
	Aliases: []string{"delete"},
	Short:   "Remove the sidecar entries of a deleted file or directory",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProvider(false)
		if err != nil {
			return err
		}
		defer p.Close()
		return p.DeleteFileFromFilters(args[0])
	},
}

func init() {
	fileWhichCmd.Flags().BoolVarP(&whichCopy, "copy", "c", false, "Also copy the filter path to the clipboard")
	fileCmd.AddCommand(fileMvCmd, fileWhichCmd, fileRenameCmd, fileRmCmd)
	rootCmd.AddCommand(fileCmd)
}
