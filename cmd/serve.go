package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/agentic-research/filtertree/internal/mcptools"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose filter operations as MCP tools on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProvider(false)
		if err != nil {
			return err
		}
		defer p.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		watchInBackground(ctx, p)

		return server.ServeStdio(mcptools.NewServer(p, version))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
