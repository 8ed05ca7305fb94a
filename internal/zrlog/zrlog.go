// Package zrlog configures the process-wide structured logger used for
// operational detail (cache misses, retries, signal delivery, history I/O
// errors) — never for a task's own stdout/stderr, which belongs to the
// task and is captured separately by internal/process.
package zrlog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logger honouring NO_COLOR and the given verbosity. Tests
// construct their own logger (typically logrus.New() with a buffer output)
// rather than calling New, so library code should accept logrus.FieldLogger
// rather than reaching for a package-level singleton.
func New(verbose bool, noColor bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   noColor,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	l.SetLevel(logrus.InfoLevel)
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// Discard returns a logger that drops everything, for use in tests and
// library call sites that were not given one explicitly.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
