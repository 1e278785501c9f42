package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"boardsync/internal/store"
	"github.com/spf13/cobra"
)

func boardCmd(opts *globalOptions) *cobra.Command {
	var (
		asJSON bool
		cached bool
	)
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Print the reconciled board grouped by status",
		Long: `Reconcile local task records with every branch and print the result.

With --cached a board restored from the Redis snapshot is printed without
waiting for a new reconciliation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, stop := rt.cancelOnSignal()
			defer stop()

			if !cached {
				rt.cache.Invalidate()
			}
			board, err := rt.result(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(os.Stdout, board)
			}
			return writeBoard(os.Stdout, board)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&cached, "cached", false, "accept a stored snapshot without reconciling first")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// writeBoard prints one section per configured status, then any tasks whose
// status is not configured.
func writeBoard(w io.Writer, board store.Board) error {
	groups := map[string][]store.Task{}
	var unknown []string
	known := map[string]string{}
	for _, status := range board.Statuses {
		known[strings.ToLower(status)] = status
	}
	for _, task := range board.Tasks {
		key, ok := known[strings.ToLower(task.Status)]
		if !ok {
			key = task.Status
			if _, seen := groups[key]; !seen {
				unknown = append(unknown, key)
			}
		}
		groups[key] = append(groups[key], task)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, status := range append(append([]string(nil), board.Statuses...), unknown...) {
		tasks := groups[status]
		fmt.Fprintf(tw, "%s (%d)\n", status, len(tasks))
		for _, task := range tasks {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", task.ID, task.Title, task.Origin)
		}
		fmt.Fprintln(tw)
	}
	if !board.ComputedAt.IsZero() {
		fmt.Fprintf(tw, "%d tasks, computed %s\n", len(board.Tasks), board.ComputedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}
