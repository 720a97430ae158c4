package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dyike/stella/internal/storage"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		limit    int
		cursor   int64
		jsonMode bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently answered queries",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.cfg.HistoryDB == "" {
				return fmt.Errorf("query history is disabled (history_db is empty)")
			}
			store, err := storage.Open(opts.cfg.HistoryDB)
			if err != nil {
				return err
			}
			defer store.Close()

			recs, err := store.List(cmd.Context(), cursor, limit)
			if err != nil {
				return err
			}
			return writeHistory(cmd.OutOrStdout(), recs, jsonMode)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	cmd.Flags().Int64Var(&cursor, "cursor", 0, "Show entries older than this cursor")
	cmd.Flags().BoolVar(&jsonMode, "json", false, "Print entries as JSON")
	return cmd
}

func writeHistory(w io.Writer, recs []storage.QueryWithMeta, jsonMode bool) error {
	if jsonMode {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}
	if len(recs) == 0 {
		displayInfo(w, "No queries recorded yet.")
		return nil
	}
	for _, r := range recs {
		status := successStyle.Render(r.Status)
		if r.Status != storage.StatusDone {
			status = errorStyle.Render(r.Status)
		}
		fmt.Fprintf(w, "%s %s %s %s %s\n",
			labelStyle.Render(fmt.Sprintf("#%d", r.RowID)),
			labelStyle.Render(r.CreatedAt),
			status,
			infoStyle.Render(fmt.Sprintf("%-12s", r.Task)),
			truncate(r.Query, 60),
		)
	}
	last := recs[len(recs)-1].RowID
	fmt.Fprintln(w, labelStyle.Render(fmt.Sprintf("next page: --cursor %d", last)))
	return nil
}
