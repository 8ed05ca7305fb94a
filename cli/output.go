package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"zr/internal/scheduler"
)

func printRunResultText(cmd *cobra.Command, summary scheduler.Summary) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tSTATUS\tEXIT\tCACHE")
	for _, name := range sortedResultNames(summary.Results) {
		r := summary.Results[name]
		status := "ok"
		switch {
		case r.Skipped:
			status = "skipped"
		case r.Err != nil:
			status = "failed"
		}
		cache := "-"
		if r.FromCache {
			cache = "hit"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", name, status, r.ExitCode, cache)
	}
	w.Flush()
}

func printRunResultJSON(cmd *cobra.Command, summary scheduler.Summary) {
	type taskOut struct {
		Task      string `json:"task"`
		ExitCode  int    `json:"exit_code"`
		FromCache bool   `json:"from_cache"`
		Skipped   bool   `json:"skipped"`
		Error     string `json:"error,omitempty"`
	}
	out := struct {
		RunID    string    `json:"run_id"`
		ExitCode int       `json:"exit_code"`
		Tasks    []taskOut `json:"tasks"`
	}{RunID: summary.RunID, ExitCode: summary.ExitCode}

	for _, name := range sortedResultNames(summary.Results) {
		r := summary.Results[name]
		t := taskOut{Task: name, ExitCode: r.ExitCode, FromCache: r.FromCache, Skipped: r.Skipped}
		if r.Err != nil {
			t.Error = r.Err.Error()
		}
		out.Tasks = append(out.Tasks, t)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

func sortedResultNames(results map[string]scheduler.TaskResult) []string {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
