// Package scheduler implements the level-wise dispatcher (spec §4.6) that
// walks a dag.TaskGraph, runs ready tasks up to a parallelism bound via
// errgroup, and applies the configured failure policy.
package scheduler

import (
	"context"
	"sort"
	"sync"

	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"zr/internal/control"
	"zr/internal/dag"
	"zr/internal/fingerprint"
	"zr/internal/historystore"
	"zr/internal/taskrunner"
	"zr/internal/trace"
	"zr/internal/zrerr"
)

// FailFast, when true, cancels all pending work on the first failure and
// reports that failure's exit code. When false, unaffected branches run to
// completion and tasks whose dependencies failed are marked Skipped (exit
// 125 if that's the worst outcome).
type Policy struct {
	MaxParallel int
	FailFast    bool
}

// TaskResult is the durable per-task outcome folded into the run summary
// and appended to history.
type TaskResult struct {
	Task      string
	Fingerprint fingerprint.Fingerprint
	ExitCode  int
	FromCache bool
	Skipped   bool
	Err       error
}

// Summary is the outcome of one Scheduler.Run invocation.
type Summary struct {
	RunID    string
	Results  map[string]TaskResult
	ExitCode int
	// Trace is populated iff Scheduler.Trace was set; it is the canonical,
	// timing-independent record of what the scheduler decided.
	Trace *trace.ExecutionTrace
}

// Scheduler drives one graph execution to completion.
type Scheduler struct {
	Graph   *dag.TaskGraph
	Runner  *taskrunner.Runner
	History *historystore.Store
	Control map[string]*control.Handle
	Logger  logrus.FieldLogger
	Policy  Policy

	// Trace, when set, collects a deterministic record of scheduling
	// decisions (cache hits, executions, failures, skips) independent of
	// goroutine interleaving — used to assert the scheduler's ordering
	// invariants without depending on wall-clock timing.
	Trace *trace.Recorder
}

// New constructs a Scheduler with one control.Handle per task, ready for Run.
func New(g *dag.TaskGraph, runner *taskrunner.Runner, history *historystore.Store, policy Policy, logger logrus.FieldLogger) *Scheduler {
	handles := make(map[string]*control.Handle, len(g.Nodes()))
	for _, n := range g.Nodes() {
		handles[n.Name] = control.New()
	}
	if policy.MaxParallel <= 0 {
		policy.MaxParallel = 1
	}
	return &Scheduler{Graph: g, Runner: runner, History: history, Control: handles, Logger: logger, Policy: policy}
}

// controlPollInterval is how often Run polls its tasks' ControlHandles for
// a cancellation request while a level is in flight (spec §4.6 step 6).
const controlPollInterval = 20 * time.Millisecond

// Run executes every task in the graph, dispatching each topological level
// as an errgroup bounded by Policy.MaxParallel, and returns the run summary.
func (s *Scheduler) Run(ctx context.Context, runID string) Summary {
	state := make(dag.ExecutionState, len(s.Graph.Nodes()))
	for _, n := range s.Graph.Nodes() {
		state[n.Name] = dag.TaskPending
	}

	results := make(map[string]TaskResult, len(s.Graph.Nodes()))
	fingerprints := make(map[string]fingerprint.Fingerprint, len(s.Graph.Nodes()))
	var mu sync.Mutex

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Cancellation via ControlHandle is cooperative (spec §4.6 step 6): any
	// task's handle latching cancel turns into ctx cancellation, which both
	// stops new dispatches and, via TaskRunner/ProcessController, signals
	// whatever is currently running.
	watchDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(controlPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-watchDone:
				return
			case <-ticker.C:
				if s.anyCancelled() {
					cancel()
					return
				}
			}
		}
	}()
	defer close(watchDone)

	firstFailure := error(nil)
	firstFailureExit := 0

	for {
		ready := dag.GetReadyTasks(s.Graph, state)
		if len(ready) == 0 {
			break
		}
		if err := runCtx.Err(); err != nil {
			break
		}

		for _, name := range ready {
			if err := dag.Transition(state, name, dag.TaskPending, dag.TaskRunning); err != nil {
				s.log().WithError(err).Error("unexpected state transition failure")
			}
		}

		eg, egCtx := errgroup.WithContext(runCtx)
		eg.SetLimit(s.Policy.MaxParallel)

		for _, name := range ready {
			name := name
			eg.Go(func() error {
				// Re-check right before dispatch: a cancel requested while
				// this level was being set up must stop tasks that haven't
				// started yet, not just ones already running.
				if egCtx.Err() != nil || s.Control[name].Cancelled() {
					err := &zrerr.Error{Kind: zrerr.Cancelled, Task: name, Msg: "cancelled before dispatch"}

					mu.Lock()
					defer mu.Unlock()
					if transErr := dag.Transition(state, name, dag.TaskRunning, dag.TaskFailed); transErr != nil {
						s.log().WithError(transErr).Error("transition to failed rejected")
					}
					if propErr := dag.FailAndPropagate(s.Graph, state, name); propErr != nil {
						s.log().WithError(propErr).Error("failure propagation invariant violated")
					}
					results[name] = TaskResult{Task: name, ExitCode: zrerr.ExitCode(err, 0), Err: err}
					if firstFailure == nil {
						firstFailure = err
						firstFailureExit = results[name].ExitCode
					}
					trace.SafeRecord(s.Trace, trace.TraceEvent{Kind: trace.EventTaskFailed, TaskID: name, Reason: string(zrerr.Cancelled)})
					s.appendHistory(runID, name, nil, err, false)
					return err
				}

				node, _ := s.Graph.Node(name)
				depFps := s.depFingerprints(name, fingerprints)

				result, err := s.Runner.Run(egCtx, node.Task, depFps, s.Control[name])

				mu.Lock()
				defer mu.Unlock()

				if err != nil {
					if transErr := dag.Transition(state, name, dag.TaskRunning, dag.TaskFailed); transErr != nil {
						s.log().WithError(transErr).Error("transition to failed rejected")
					}
					if propErr := dag.FailAndPropagate(s.Graph, state, name); propErr != nil {
						s.log().WithError(propErr).Error("failure propagation invariant violated")
					}
					childExit := 0
					if result != nil {
						childExit = result.ExitCode
					}
					results[name] = TaskResult{Task: name, ExitCode: zrerr.ExitCode(err, childExit), Err: err}
					if firstFailure == nil {
						firstFailure = err
						firstFailureExit = results[name].ExitCode
					}
					kind, _ := zrerr.KindOf(err)
					trace.SafeRecord(s.Trace, trace.TraceEvent{Kind: trace.EventTaskFailed, TaskID: name, Reason: string(kind)})
					s.appendHistory(runID, name, result, err, false)
					if s.Policy.FailFast {
						return err
					}
					return nil
				}

				finalState := dag.TaskCompleted
				eventKind := trace.EventTaskExecuted
				if result.FromCache {
					finalState = dag.TaskCached
					eventKind = trace.EventTaskCached
				}
				if transErr := dag.Transition(state, name, dag.TaskRunning, finalState); transErr != nil {
					s.log().WithError(transErr).Error("transition to completed rejected")
				}
				fingerprints[name] = result.Fingerprint
				results[name] = TaskResult{Task: name, Fingerprint: result.Fingerprint, ExitCode: 0, FromCache: result.FromCache}
				trace.SafeRecord(s.Trace, trace.TraceEvent{Kind: eventKind, TaskID: name})
				s.appendHistory(runID, name, result, nil, false)
				return nil
			})
		}

		if err := eg.Wait(); err != nil && (s.Policy.FailFast || s.anyCancelled()) {
			cancel()
			break
		}
	}

	for name, st := range state {
		if st == dag.TaskSkipped {
			if _, already := results[name]; !already {
				results[name] = TaskResult{Task: name, ExitCode: 125, Skipped: true}
				trace.SafeRecord(s.Trace, trace.TraceEvent{Kind: trace.EventTaskSkipped, TaskID: name})
				s.appendHistory(runID, name, nil, nil, true)
			}
		}
	}

	exitCode := 0
	if firstFailure != nil {
		exitCode = firstFailureExit
	} else if anySkipped(results) {
		exitCode = 125
	}

	summary := Summary{RunID: runID, Results: results, ExitCode: exitCode}
	if s.Trace != nil {
		tr := s.Trace.Trace(string(s.Graph.Hash()))
		summary.Trace = &tr
	}
	return summary
}

// anyCancelled reports whether any task's ControlHandle has latched cancel.
// A single cancelled handle cancels the whole run: callers (the CLI's
// signal handler) are expected to call Cancel on every handle in s.Control
// together, since ControlHandle is conceptually one control plane per
// invocation (spec §4.8) even though it's represented here per task.
func (s *Scheduler) anyCancelled() bool {
	for _, h := range s.Control {
		if h.Cancelled() {
			return true
		}
	}
	return false
}

func (s *Scheduler) depFingerprints(name string, known map[string]fingerprint.Fingerprint) []fingerprint.Fingerprint {
	node, ok := s.Graph.Node(name)
	if !ok {
		return nil
	}
	out := make([]fingerprint.Fingerprint, 0, len(node.Task.Deps))
	deps := append([]string(nil), node.Task.Deps...)
	sort.Strings(deps)
	for _, dep := range deps {
		if fp, ok := known[dep]; ok {
			out = append(out, fp)
		}
	}
	return out
}

func (s *Scheduler) appendHistory(runID, task string, result *taskrunner.Result, taskErr error, skipped bool) {
	if s.History == nil {
		return
	}
	rec := historystore.Record{
		Ts:    time.Now(),
		RunID: runID,
		Task:  task,
	}
	switch {
	case skipped:
		rec.ErrorKind = "Skipped"
		rec.ExitCode = 125
	case taskErr != nil:
		kind, _ := zrerr.KindOf(taskErr)
		rec.ErrorKind = string(kind)
		rec.ExitCode = zrerr.ExitCode(taskErr, 0)
	default:
		rec.Fp = result.Fingerprint.String()
		rec.ExitCode = result.ExitCode
		rec.CacheHit = result.FromCache
		rec.StdoutBytes = len(result.Stdout)
		rec.StderrBytes = len(result.Stderr)
	}
	if err := s.History.Append(rec); err != nil {
		s.log().WithError(err).Warn("appending history record failed")
	}
}

func anySkipped(results map[string]TaskResult) bool {
	for _, r := range results {
		if r.Skipped {
			return true
		}
	}
	return false
}

func (s *Scheduler) log() logrus.FieldLogger {
	if s.Logger == nil {
		return logrus.New()
	}
	return s.Logger
}
