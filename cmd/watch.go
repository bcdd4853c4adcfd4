package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentic-research/filtertree/internal/graph"
	"github.com/agentic-research/filtertree/internal/logging"
	"github.com/agentic-research/filtertree/internal/provider"
)

var watchPrint bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuild the filter trees whenever the sidecar or the workspace changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProvider(false)
		if err != nil {
			return err
		}
		defer p.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		updates, unsubscribe := p.Subscribe()
		defer unsubscribe()
		errc := make(chan error, 1)
		go func() { errc <- p.Watch(ctx) }()

		out := cmd.OutOrStdout()
		for _, r := range p.Roots() {
			report(out, p, r.Workspace)
		}
		for {
			select {
			case <-ctx.Done():
				return <-errc
			case err := <-errc:
				return err
			case ws := <-updates:
				report(out, p, ws)
			}
		}
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchPrint, "print", false, "Print the whole tree after each rebuild")
	rootCmd.AddCommand(watchCmd)
}

// report rebuilds ws and prints a one-line summary.
func report(w io.Writer, p *provider.Provider, ws string) {
	tree, err := p.Tree(ws)
	if err != nil {
		fmt.Fprintf(w, "%s: %v\n", ws, err)
		return
	}
	files := len(graph.Flatten(tree.Root))
	fmt.Fprintf(w, "%s: %d filters, %d files\n", ws, tree.Len()-1, files)
	if watchPrint {
		renderTree(w, tree.Root)
	}
}

// watchInBackground keeps the provider's trees fresh until ctx is done.
func watchInBackground(ctx context.Context, p *provider.Provider) {
	go func() {
		if err := p.Watch(ctx); err != nil {
			logging.Warn("watcher stopped", zap.Error(err))
		}
	}()
}
