package main

import (
	"errors"
	"fmt"
	"os"

	"boardsync/internal/reconcile"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	var opts globalOptions
	rootCmd := &cobra.Command{
		Use:           "boardsync",
		Short:         "Reconcile task records across git branches",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.repoDir, "repo", "", "repository directory (overrides BOARDSYNC_REPO_DIR)")
	rootCmd.PersistentFlags().StringVar(&opts.recordRoot, "root", "", "record root inside the repository (overrides BOARDSYNC_RECORD_ROOT)")
	rootCmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "suppress progress and log output")

	rootCmd.AddCommand(boardCmd(&opts))
	rootCmd.AddCommand(searchCmd(&opts))
	rootCmd.AddCommand(watchCmd(&opts))

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, reconcile.ErrCancelled) {
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
