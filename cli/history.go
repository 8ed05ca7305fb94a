package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"zr/internal/historystore"
)

func newHistoryCmd(cfg *Config) *cobra.Command {
	var (
		since   string
		status  string
		limit   int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query execution history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var sinceDur time.Duration
			if since != "" {
				d, err := time.ParseDuration(since)
				if err != nil {
					return fmt.Errorf("invalid --since duration %q: %w", since, err)
				}
				sinceDur = d
			}

			records, err := cfg.History.Query(historystore.Filter{
				Since:  sinceDur,
				Status: status,
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TS\tTASK\tEXIT\tCACHE\tRUN")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\n", r.Ts.Format(time.RFC3339), r.Task, r.ExitCode, r.CacheHit, r.RunID)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "only records newer than this duration ago, e.g. 24h")
	cmd.Flags().StringVar(&status, "status", "", "filter by status: success|failed")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of records to print")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print machine-readable output")
	return cmd
}
