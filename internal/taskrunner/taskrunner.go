// Package taskrunner implements TaskRunner (spec §4.7): the glue that
// fingerprints one task, consults the cache, spawns the child process when
// necessary, and records the outcome.
//
// State machine: Pending -> Fingerprinting -> (CacheHit | Building) ->
// (Spawning -> Running -> Captured) -> Storing -> Done{success|failure|skipped}.
package taskrunner

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"zr/internal/cachestore"
	"zr/internal/control"
	"zr/internal/fingerprint"
	"zr/internal/process"
	"zr/internal/task"
	"zr/internal/zrerr"
)

// controlPollInterval is how often a running task's control.Handle is
// polled for pending pause/resume requests (spec §4.8).
const controlPollInterval = 20 * time.Millisecond

// Result is the outcome of running (or replaying) one task.
type Result struct {
	Fingerprint       fingerprint.Fingerprint
	Stdout            []byte
	Stderr            []byte
	ExitCode          int
	FromCache         bool
	ArtifactsRestored int
}

// Runner wires the Fingerprinter, CacheStore and ProcessController
// together for one workspace.
type Runner struct {
	WorkingDir  string
	Cache       *cachestore.Store
	PlatformTag string
	ToolVersion string
	Logger      logrus.FieldLogger
	// NoCache bypasses both cache lookup and cache commit; every task is
	// rebuilt and the cache is left untouched.
	NoCache bool

	resolver *fingerprint.Resolver
}

// New constructs a Runner rooted at workingDir, backed by cache.
func New(workingDir string, cache *cachestore.Store, platformTag, toolVersion string, logger logrus.FieldLogger) *Runner {
	return &Runner{
		WorkingDir:  workingDir,
		Cache:       cache,
		PlatformTag: platformTag,
		ToolVersion: toolVersion,
		Logger:      logger,
		resolver:    fingerprint.NewResolver(workingDir),
	}
}

// Run executes t (or replays it from cache), honouring t.TimeoutMs and
// t.Retries. depFingerprints are the already-computed fingerprints of t's
// dependencies, folded into t's own fingerprint per spec §3. ctrl, if
// non-nil, is the task's ControlHandle: its PID is published for the
// duration of the spawn, and pause/resume requests are applied to the
// running process group. The caller (Scheduler) is responsible for turning
// ctrl.Cancelled() into ctx cancellation.
func (r *Runner) Run(ctx context.Context, t task.Task, depFingerprints []fingerprint.Fingerprint, ctrl *control.Handle) (*Result, error) {
	if ctrl != nil {
		defer ctrl.Finish()
	}

	cwd := t.Cwd
	if cwd == "" {
		cwd = r.WorkingDir
	} else if !isAbs(cwd) {
		cwd = r.WorkingDir + string(pathSeparator) + cwd
	}

	resolved, err := r.resolver.Resolve(t.Inputs)
	if err != nil {
		return nil, &zrerr.Error{Kind: zrerr.InputMissing, Task: t.Name, Err: err}
	}

	fp := fingerprint.Compute(fingerprint.Input{
		Cmd:             t.Run,
		Env:             t.Env,
		Cwd:             cwd,
		Inputs:          resolved,
		DepFingerprints: depFingerprints,
		PlatformTag:     r.PlatformTag,
		ToolVersion:     r.ToolVersion,
	})

	if entry, err := r.lookupCache(fp); err != nil {
		r.log(t.Name).WithError(err).Warn("cache lookup failed; treating as miss")
	} else if entry != nil {
		restored, err := restoreOutputs(r.WorkingDir, blobsByLogicalPath(entry))
		if err != nil {
			return nil, zrerr.ForTask(zrerr.CacheIoError, t.Name, "restoring cached outputs", err)
		}
		return &Result{
			Fingerprint:       fp,
			Stdout:            entry.Stdout,
			Stderr:            entry.Stderr,
			ExitCode:          entry.Manifest.ExitCode,
			FromCache:         true,
			ArtifactsRestored: restored,
		}, nil
	}

	var handle *cachestore.WriteHandle
	if !r.NoCache {
		handle, err = r.beginWriteWithBackoff(ctx, fp)
		if err != nil {
			return nil, err
		}
	}
	if handle == nil && !r.NoCache {
		// Another builder committed an entry while we were waiting:
		// degrade to a cache hit.
		entry, err := r.Cache.Lookup(fp)
		if err != nil || entry == nil {
			return nil, zrerr.ForTask(zrerr.CacheIoError, t.Name, "expected cache entry after contended build settled", err)
		}
		restored, err := restoreOutputs(r.WorkingDir, blobsByLogicalPath(entry))
		if err != nil {
			return nil, zrerr.ForTask(zrerr.CacheIoError, t.Name, "restoring cached outputs", err)
		}
		return &Result{
			Fingerprint:       fp,
			Stdout:            entry.Stdout,
			Stderr:            entry.Stderr,
			ExitCode:          entry.Manifest.ExitCode,
			FromCache:         true,
			ArtifactsRestored: restored,
		}, nil
	}

	var status process.ExitStatus
	attempts := t.Retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		h, err := process.Spawn(t.Run, t.Env, cwd, process.DefaultCaptureCap)
		if err != nil {
			_ = handle.Release()
			return nil, &zrerr.Error{Kind: zrerr.SpawnError, Task: t.Name, Err: err}
		}
		if ctrl != nil {
			ctrl.SetPID(h.PID())
		}

		var timeout time.Duration
		if t.TimeoutMs > 0 {
			timeout = time.Duration(t.TimeoutMs) * time.Millisecond
		}

		var watchDone chan struct{}
		if ctrl != nil {
			watchDone = make(chan struct{})
			go watchControl(ctrl, h, watchDone)
		}
		status, err = h.Wait(ctx, timeout)
		if ctrl != nil {
			close(watchDone)
			ctrl.SetPID(0)
		}
		if err != nil {
			kind, _ := zrerr.KindOf(err)
			if kind == zrerr.TimedOut || kind == zrerr.Cancelled {
				// ctx firing only stopped us from waiting on the child; it
				// does not itself signal it, so without this the process
				// (and its process group) would be orphaned.
				h.Cancel()
			}
			_ = handle.Release()
			return nil, &zrerr.Error{Kind: kind, Task: t.Name, Err: err}
		}
		if status.ExitCode == 0 || attempt == attempts-1 {
			break
		}
		r.log(t.Name).WithField("attempt", attempt+1).Info("retrying after non-zero exit")
	}

	result := &Result{
		Fingerprint: fp,
		Stdout:      status.Stdout,
		Stderr:      status.Stderr,
		ExitCode:    status.ExitCode,
	}

	if status.ExitCode != 0 {
		_ = handle.Release()
		return result, &zrerr.Error{Kind: zrerr.NonZeroExit, Task: t.Name, Msg: "non-zero exit"}
	}

	// Cache only the final successful run; intermediate failed attempts
	// are never committed (spec §9, "Retries vs. caching").
	if t.Cacheable() && !r.NoCache {
		outputs, err := harvest(r.WorkingDir, t.Outputs)
		if err != nil {
			_ = handle.Release()
			return result, zrerr.ForTask(zrerr.CacheIoError, t.Name, "harvesting declared outputs", err)
		}
		manifest := cachestore.Manifest{ExitCode: status.ExitCode}
		for path := range outputs {
			manifest.Outputs = append(manifest.Outputs, cachestore.OutputBlob{LogicalPath: path, Mode: 0o644})
		}
		manifest.TruncatedStdout = status.StdoutTruncated
		manifest.TruncatedStderr = status.StderrTruncated
		if err := handle.Commit(manifest, status.Stdout, status.Stderr, outputs); err != nil {
			// Commit failure degrades the caching step only; the task's
			// own success/failure is reported based on its exit code.
			r.log(t.Name).WithError(err).Warn("committing cache entry failed")
		}
	} else {
		_ = handle.Release()
	}

	return result, nil
}

func (r *Runner) lookupCache(fp fingerprint.Fingerprint) (*cachestore.Entry, error) {
	if r.NoCache {
		return nil, nil
	}
	return r.Cache.Lookup(fp)
}

func (r *Runner) beginWriteWithBackoff(ctx context.Context, fp fingerprint.Fingerprint) (*cachestore.WriteHandle, error) {
	for attempt := 0; ; attempt++ {
		h, err := r.Cache.BeginWrite(fp)
		if err == nil {
			return h, nil
		}
		if err != cachestore.ErrContended {
			return nil, zrerr.Wrap(zrerr.CacheIoError, err)
		}
		if entry, lookupErr := r.Cache.Lookup(fp); lookupErr == nil && entry != nil {
			return nil, nil // signal: caller should degrade to cache hit
		}
		select {
		case <-ctx.Done():
			return nil, zrerr.Wrap(zrerr.Cancelled, ctx.Err())
		case <-time.After(cachestore.Backoff(attempt)):
		}
	}
}

// watchControl applies pause/resume requests from ctrl to h's process group
// while the task is running, acknowledging each as it's applied. It returns
// once done is closed by the caller.
func watchControl(ctrl *control.Handle, h *process.Handle, done <-chan struct{}) {
	ticker := time.NewTicker(controlPollInterval)
	defer ticker.Stop()
	paused := false
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if ctrl.PausePending() {
				if !paused {
					_ = h.Pause()
					paused = true
				}
				ctrl.AckPause()
			}
			if ctrl.ResumePending() {
				if paused {
					_ = h.Resume()
					paused = false
				}
				ctrl.AckResume()
			}
		}
	}
}

func blobsByLogicalPath(entry *cachestore.Entry) map[string][]byte {
	out := make(map[string][]byte, len(entry.Manifest.Outputs))
	for _, o := range entry.Manifest.Outputs {
		out[o.LogicalPath] = entry.Blobs[o.BlobSha]
	}
	return out
}

func (r *Runner) log(taskName string) logrus.FieldLogger {
	if r.Logger == nil {
		return logrus.New().WithField("task", taskName)
	}
	return r.Logger.WithField("task", taskName)
}

const pathSeparator = '/'

func isAbs(p string) bool { return len(p) > 0 && p[0] == '/' }
