// Package zrerr defines the tagged error kinds propagated through the
// execution engine. Errors are always returned as values and classified
// by Kind; callers use KindOf, which walks the Unwrap chain to the first
// *Error, to recover the Kind.
package zrerr

import "fmt"

// Kind classifies an error for the purposes of exit-code translation and
// failure-policy bookkeeping.
type Kind string

const (
	ConfigError       Kind = "ConfigError"
	UnknownTask       Kind = "UnknownTask"
	UnknownDependency Kind = "UnknownDependency"
	CycleDetected     Kind = "CycleDetected"
	InputMissing      Kind = "InputMissing"
	SpawnError        Kind = "SpawnError"
	TimedOut          Kind = "TimedOut"
	Cancelled         Kind = "Cancelled"
	NonZeroExit       Kind = "NonZeroExit"
	CacheIoError      Kind = "CacheIoError"
	HistoryIoError    Kind = "HistoryIoError"
	Internal          Kind = "Internal"
)

// Error is the tagged error value threaded through the engine. Task is set
// whenever the error is attributable to a single task invocation.
type Error struct {
	Kind Kind
	Task string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Task != "" && e.Msg != "":
		return fmt.Sprintf("%s: task %q: %s", e.Kind, e.Task, e.Msg)
	case e.Task != "":
		return fmt.Sprintf("%s: task %q", e.Kind, e.Task)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error of the given kind with a free-form message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf constructs an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// ForTask attaches a task name to a new Error of the given kind, wrapping
// cause if non-nil.
func ForTask(kind Kind, task, msg string, cause error) *Error {
	return &Error{Kind: kind, Task: task, Msg: msg, Err: cause}
}

// Wrap tags an existing error with a Kind, preserving it as the cause.
func Wrap(kind Kind, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: cause.Error(), Err: cause}
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, and false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind, true
	}
	return "", false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// ExitCode maps a terminal error (or nil, for success) to the process exit
// code scheme from the command surface: 0 success; 1 user/config error;
// 2 cycle; 124 timed out; 130 cancelled; 70 Internal or unclassified; for
// NonZeroExit/SpawnError/InputMissing the failing child's exit code (1 if
// childExit is 0); 1 for any other kind. The 125 "skipped" code is set by
// the scheduler, not here.
func ExitCode(err error, childExit int) int {
	if err == nil {
		return 0
	}
	kind, ok := KindOf(err)
	if !ok {
		return 70 // Internal, unclassified
	}
	switch kind {
	case CycleDetected:
		return 2
	case Cancelled:
		return 130
	case ConfigError, UnknownTask, UnknownDependency:
		return 1
	case Internal:
		return 70
	case TimedOut:
		return 124
	case NonZeroExit, SpawnError, InputMissing:
		if childExit != 0 {
			return childExit
		}
		return 1
	default:
		return 1
	}
}
