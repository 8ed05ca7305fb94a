// Package control implements ControlHandle (spec §4.8): a per-invocation
// control plane of atomic flags shared between the scheduler and a UI
// thread. The handle is created per invocation and threaded explicitly —
// there is no hidden singleton (spec §9, "Global terminal state").
package control

import "sync/atomic"

// Handle exposes cancel/pause/resume/finished as lock-free atomic flags
// plus the PID of whatever process is currently attributed to it.
type Handle struct {
	cancel   atomic.Bool
	pause    atomic.Bool
	resume   atomic.Bool
	finished atomic.Bool
	pid      atomic.Int64
}

// New constructs a fresh, unset Handle.
func New() *Handle { return &Handle{} }

// Cancel latches the cancel flag. It never resets once set.
func (h *Handle) Cancel() { h.cancel.Store(true) }

// Cancelled reports whether Cancel has been called.
func (h *Handle) Cancelled() bool { return h.cancel.Load() }

// RequestPause sets a pending pause request; the runner clears it once
// applied via AckPause.
func (h *Handle) RequestPause() {
	h.pause.Store(true)
	h.resume.Store(false)
}

// RequestResume sets a pending resume request; the runner clears it once
// applied via AckResume.
func (h *Handle) RequestResume() {
	h.resume.Store(true)
	h.pause.Store(false)
}

// PausePending reports an unacknowledged pause request.
func (h *Handle) PausePending() bool { return h.pause.Load() }

// ResumePending reports an unacknowledged resume request.
func (h *Handle) ResumePending() bool { return h.resume.Load() }

// AckPause clears the pause request once the runner has applied it.
func (h *Handle) AckPause() { h.pause.Store(false) }

// AckResume clears the resume request once the runner has applied it.
func (h *Handle) AckResume() { h.resume.Store(false) }

// Finish marks the handle as terminal. Set by the runner, never reset.
func (h *Handle) Finish() { h.finished.Store(true) }

// Finished reports whether the invocation has reached a terminal state.
func (h *Handle) Finished() bool { return h.finished.Load() }

// SetPID records the PID of the process currently attributed to this
// handle, so a UI can display it. 0 means no process is currently
// attached.
func (h *Handle) SetPID(pid int) { h.pid.Store(int64(pid)) }

// PID returns the most recently recorded PID, or 0.
func (h *Handle) PID() int { return int(h.pid.Load()) }
