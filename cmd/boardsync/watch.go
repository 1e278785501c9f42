package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"boardsync/internal/reconcile"
	"github.com/spf13/cobra"
)

func watchCmd(opts *globalOptions) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the board reconciled and reprint it when it changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive, got %s", interval)
			}
			rt, err := openRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, stop := rt.cancelOnSignal()
			defer stop()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			lastRun := ""
			for {
				board, err := rt.result(ctx)
				switch {
				case errors.Is(err, reconcile.ErrCancelled):
					return err
				case err != nil:
					rt.logger.Printf("watch: %v", err)
				case board.RunID != lastRun:
					lastRun = board.RunID
					fmt.Fprintf(os.Stdout, "\n== %s ==\n", time.Now().Format("15:04:05"))
					if err := writeBoard(os.Stdout, board); err != nil {
						return err
					}
				}

				select {
				case <-ctx.Done():
					return reconcile.ErrCancelled
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "how often to check for a newer board")
	return cmd
}
