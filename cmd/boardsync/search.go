package main

import (
	"fmt"
	"os"
	"strings"

	"boardsync/internal/search"
	"github.com/spf13/cobra"
)

func searchCmd(opts *globalOptions) *cobra.Command {
	var (
		q      search.Query
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the reconciled board",
		Long: `Search task titles, ids and labels on the reconciled board.

Meilisearch is used when MEILI_URL is set and reachable; otherwise the board
is scanned in process.

Examples:
  boardsync search login
  boardsync search --status "In Progress" --branch origin/feature
  boardsync search export --label api --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				q.Text = args[0]
			}
			rt, err := openRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, stop := rt.cancelOnSignal()
			defer stop()

			// Result publishes new boards to the search service.
			rt.cache.Invalidate()
			if _, err := rt.result(ctx); err != nil {
				return err
			}
			resp := rt.search.Search(q)
			if asJSON {
				return writeJSON(os.Stdout, resp)
			}
			return writeResults(resp)
		},
	}
	cmd.Flags().StringVar(&q.FilterStatus, "status", "", "filter by status")
	cmd.Flags().StringVar(&q.FilterLabel, "label", "", "filter by label")
	cmd.Flags().StringVar(&q.FilterBranch, "branch", "", `filter by origin branch ("local" for the working tree)`)
	cmd.Flags().IntVarP(&q.Limit, "limit", "l", 20, "maximum results")
	cmd.Flags().IntVar(&q.Offset, "offset", 0, "skip this many results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func writeResults(resp search.Response) error {
	if len(resp.Results) == 0 {
		fmt.Printf("No results for %q\n", resp.Query)
		return nil
	}
	fmt.Printf("Results for %q (%d of %d)\n\n", resp.Query, len(resp.Results), resp.Total)
	for i, r := range resp.Results {
		fmt.Printf("%d. %s  %s  [%s]\n", i+1, r.ID, r.Title, r.Status)
		var meta []string
		if r.Branch != "" {
			meta = append(meta, r.Branch)
		}
		if len(r.Labels) > 0 {
			meta = append(meta, "labels: "+strings.Join(r.Labels, ", "))
		}
		if len(meta) > 0 {
			fmt.Printf("   %s\n", strings.Join(meta, " | "))
		}
	}
	return nil
}
