package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"zr/internal/graphio"
	"zr/internal/taskrunner"
)

func newBenchCmd(cfg *Config) *cobra.Command {
	var (
		n       int
		warmup  int
		format  string
	)

	cmd := &cobra.Command{
		Use:   "bench <task>",
		Short: "Repeatedly run a task and aggregate timings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]

			g, err := graphio.Load(cfg.GraphPath)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				os.Exit(1)
			}
			node, ok := g.Node(target)
			if !ok {
				fmt.Fprintf(cmd.ErrOrStderr(), "unknown task: %s\n", target)
				os.Exit(1)
			}

			workDir, _ := os.Getwd()
			runner := taskrunner.New(workDir, cfg.Cache, runtime.GOOS+"/"+runtime.GOARCH, "zr-dev", cfg.logger())
			runner.NoCache = true // benchmarking measures real execution cost, not cache replay

			var samples []time.Duration
			for i := 0; i < warmup+n; i++ {
				start := time.Now()
				_, _ = runner.Run(context.Background(), node.Task, nil, nil)
				elapsed := time.Since(start)
				if i >= warmup {
					samples = append(samples, elapsed)
				}
			}

			printBenchResults(cmd, target, samples, format)
			return nil
		},
	}

	cmd.Flags().IntVarP(&n, "n", "n", 10, "number of measured iterations")
	cmd.Flags().IntVar(&warmup, "warmup", 0, "number of unmeasured warmup iterations")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text|json|csv")
	return cmd
}

func printBenchResults(cmd *cobra.Command, task string, samples []time.Duration, format string) {
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, s := range sorted {
		total += s
	}
	mean := time.Duration(0)
	if len(sorted) > 0 {
		mean = total / time.Duration(len(sorted))
	}
	p50 := percentile(sorted, 0.50)
	p95 := percentile(sorted, 0.95)

	switch format {
	case "json":
		out := struct {
			Task    string `json:"task"`
			Samples int    `json:"samples"`
			MeanNs  int64  `json:"mean_ns"`
			P50Ns   int64  `json:"p50_ns"`
			P95Ns   int64  `json:"p95_ns"`
		}{task, len(sorted), mean.Nanoseconds(), p50.Nanoseconds(), p95.Nanoseconds()}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	case "csv":
		w := csv.NewWriter(cmd.OutOrStdout())
		_ = w.Write([]string{"task", "samples", "mean_ns", "p50_ns", "p95_ns"})
		_ = w.Write([]string{task, fmt.Sprint(len(sorted)), fmt.Sprint(mean.Nanoseconds()), fmt.Sprint(p50.Nanoseconds()), fmt.Sprint(p95.Nanoseconds())})
		w.Flush()
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "%s: n=%d mean=%s p50=%s p95=%s\n", task, len(sorted), mean, p50, p95)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
