// Package process implements the ProcessController (spec §4.4): spawning a
// child in its own process group so the whole subtree can be signalled,
// capturing stdout/stderr into bounded ring buffers, and translating
// cancel/pause/resume requests into the appropriate POSIX signals.
package process

import (
	"context"
	"errors"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"

	"zr/internal/zrerr"
)

// DefaultCaptureCap is the default ring-buffer capacity per stream.
const DefaultCaptureCap = 1 << 20 // 1 MiB

// GraceAfterCancel is how long Cancel waits after the interrupt signal
// before escalating to a hard terminate.
const GraceAfterCancel = 250 * time.Millisecond

// Handle is a running (or exited) child process.
type Handle struct {
	cmd    *exec.Cmd
	stdout *RingBuffer
	stderr *RingBuffer
	done   chan error
	pid    int
}

// ExitStatus is the terminal outcome of Wait.
type ExitStatus struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	StdoutTruncated bool
	StderrTruncated bool
}

// Spawn starts cmdline under "sh -c" with an allowlist environment (only
// the variables in env are visible — the host environment is never
// inherited), its own process group, and ring-buffered output capture.
func Spawn(cmdline string, env map[string]string, cwd string, captureCap int) (*Handle, error) {
	if cmdline == "" {
		return nil, zrerr.New(zrerr.SpawnError, "empty command")
	}

	cmd := exec.Command("sh", "-c", cmdline)
	cmd.Dir = cwd
	cmd.Env = buildIsolatedEnv(env)
	cmd.SysProcAttr = sysProcAttr()

	stdout := NewRingBuffer(captureCap)
	stderr := NewRingBuffer(captureCap)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, zrerr.Wrap(zrerr.SpawnError, err)
	}

	h := &Handle{cmd: cmd, stdout: stdout, stderr: stderr, done: make(chan error, 1), pid: cmd.Process.Pid}
	go func() { h.done <- cmd.Wait() }()
	return h, nil
}

// PID exposes the child process id, for surfacing through ControlHandle.
func (h *Handle) PID() int { return h.pid }

// Wait blocks until the process exits or, if timeout is non-zero, the
// timeout elapses first — in which case it returns zrerr.TimedOut without
// killing the process; the caller decides whether to Cancel it.
func (h *Handle) Wait(ctx context.Context, timeout time.Duration) (ExitStatus, error) {
	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case err := <-h.done:
		return h.exitStatus(err), nil
	case <-timeoutCh:
		return ExitStatus{}, zrerr.New(zrerr.TimedOut, "task exceeded timeout")
	case <-ctx.Done():
		return ExitStatus{}, zrerr.Wrap(zrerr.Cancelled, ctx.Err())
	}
}

func (h *Handle) exitStatus(err error) ExitStatus {
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}
	return ExitStatus{
		ExitCode:        exitCode,
		Stdout:          h.stdout.Bytes(),
		Stderr:          h.stderr.Bytes(),
		StdoutTruncated: h.stdout.Truncated(),
		StderrTruncated: h.stderr.Truncated(),
	}
}

// Cancel sends an interrupt (SIGINT) to the process group; if the process
// is still alive after GraceAfterCancel it escalates to a hard terminate
// (SIGKILL).
func (h *Handle) Cancel() {
	if h.cmd.Process == nil {
		return
	}
	pgid := -h.pid
	_ = unix.Kill(pgid, unix.SIGINT)

	select {
	case err := <-h.done:
		h.done <- err // leave the exit result for Wait
		return
	case <-time.After(GraceAfterCancel):
	}
	_ = unix.Kill(pgid, unix.SIGKILL)
}

// Pause suspends the process group (SIGSTOP). Once the group has exited,
// the signal fails and its error (ESRCH) is returned.
func (h *Handle) Pause() error {
	if h.cmd.Process == nil {
		return nil
	}
	return unix.Kill(-h.pid, unix.SIGSTOP)
}

// Resume continues a paused process group (SIGCONT).
func (h *Handle) Resume() error {
	if h.cmd.Process == nil {
		return nil
	}
	return unix.Kill(-h.pid, unix.SIGCONT)
}

// buildIsolatedEnv constructs an allowlist-only environment: it starts
// empty and only variables declared in env are added, so host variables
// (HOME, USER, PATH, ...) are never visible to the child unless the task
// re-declares them explicitly.
func buildIsolatedEnv(env map[string]string) []string {
	if len(env) == 0 {
		return []string{}
	}
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, k+"="+v)
	}
	return result
}
