package cli

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"zr/internal/graphio"
	"zr/internal/historystore"
	"zr/internal/scheduler"
	"zr/internal/taskrunner"
	"zr/internal/zrerr"
)

func newRunCmd(cfg *Config) *cobra.Command {
	var (
		parallel int
		noCache  bool
		failFast bool
		profile  string
	)

	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Execute a task and its dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]
			logger := cfg.logger()
			// profile selection depends on the config-file parser, which is
			// out of scope; the flag is accepted for command-surface parity
			// and threaded through to logging only.
			if profile != "" {
				logger.WithField("profile", profile).Debug("profile flag accepted (config-file profiles are out of scope)")
			}

			g, err := graphio.Load(cfg.GraphPath)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				os.Exit(1)
			}
			if _, ok := g.Node(target); !ok {
				fmt.Fprintf(cmd.ErrOrStderr(), "unknown task: %s\n", target)
				os.Exit(zrerr.ExitCode(&zrerr.Error{Kind: zrerr.UnknownTask, Task: target}, 0))
			}

			workDir, _ := os.Getwd()
			runner := taskrunner.New(workDir, cfg.Cache, runtime.GOOS+"/"+runtime.GOARCH, "zr-dev", logger)
			runner.NoCache = noCache

			effectiveParallel := cfg.Parallel
			if parallel > 0 {
				effectiveParallel = parallel
			}

			sched := scheduler.New(g, runner, cfg.History, scheduler.Policy{MaxParallel: effectiveParallel, FailFast: failFast}, logger)

			runID := newRunID()
			start := time.Now()
			_ = cfg.History.SaveRun(historystore.Run{RunID: runID, GraphHash: string(g.Hash()), StartTime: start, Status: "running"})

			// SIGINT latches cancel on every task's ControlHandle; the
			// scheduler polls these cooperatively (spec §4.6 step 6) and
			// signals whatever's running through the ProcessController.
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt)
			go func() {
				if _, ok := <-sigCh; !ok {
					return
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "\ninterrupted — cancelling running tasks...")
				for _, h := range sched.Control {
					h.Cancel()
				}
			}()

			summary := sched.Run(context.Background(), runID)
			signal.Stop(sigCh)
			close(sigCh)

			status := "success"
			if summary.ExitCode != 0 {
				status = "failed"
			}
			_ = cfg.History.SaveRun(historystore.Run{RunID: runID, GraphHash: string(g.Hash()), StartTime: start, Status: status})

			if cfg.JSONOutput {
				printRunResultJSON(cmd, summary)
			} else {
				printRunResultText(cmd, summary)
			}

			os.Exit(summary.ExitCode)
			return nil
		},
	}

	cmd.Flags().StringVar(&profile, "profile", "", "named execution profile (config-file profiles are out of scope)")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "override max concurrent tasks for this run")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the result cache for this run")
	cmd.Flags().BoolVar(&failFast, "fail-fast", true, "cancel remaining work on the first task failure")
	cmd.Flags().BoolVar(&cfg.JSONOutput, "json", false, "print machine-readable output")

	return cmd
}

func newRunID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	sum := sha256.Sum256(append(b[:], []byte(time.Now().Format(time.RFC3339Nano))...))
	return hex.EncodeToString(sum[:8])
}
