package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentic-research/filtertree/internal/logging"
	"github.com/agentic-research/filtertree/internal/nfsmount"
)

var (
	mountAddr     string
	mountReadOnly bool
)

var mountCmd = &cobra.Command{
	Use:   "mount [mountpoint]",
	Short: "Serve a root's filter tree over NFS, mounting it when a mountpoint is given",
	Long: `Serves the filter tree of one root as a directory hierarchy over NFSv3.
Filters are directories and files appear inside the filter they belong to.
mkdir creates a filter, rmdir deletes one and mv moves files or filters.
File contents are read-only.`,
	Args: cobra.MaximumNArgs(1),
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

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		watchInBackground(ctx, p)

		srv, err := nfsmount.NewServer(nfsmount.NewFilterFS(p, ws, !mountReadOnly), mountAddr)
		if err != nil {
			return err
		}
		defer func() { _ = srv.Close() }()
		fmt.Fprintf(cmd.OutOrStdout(), "Serving %s over NFS on port %d\n", ws, srv.Port())

		if len(args) == 1 {
			mountPoint := args[0]
			if err := os.MkdirAll(mountPoint, 0o755); err != nil {
				return fmt.Errorf("create mountpoint: %w", err)
			}
			if err := srv.Mount(mountPoint); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Mounted at %s, press Ctrl-C to unmount\n", mountPoint)
			defer func() {
				if err := nfsmount.Unmount(mountPoint); err != nil {
					logging.Error("unmount failed", zap.String("mountpoint", mountPoint), zap.Error(err))
				}
			}()
		}

		<-ctx.Done()
		return nil
	},
}

func init() {
	mountCmd.Flags().StringVar(&mountAddr, "addr", "127.0.0.1:0", "NFS listen address")
	mountCmd.Flags().BoolVar(&mountReadOnly, "read-only", false, "Mount without filter editing")
	rootCmd.AddCommand(mountCmd)
}
