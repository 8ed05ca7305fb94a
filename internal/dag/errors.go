package dag

import (
	"strings"

	"zr/internal/zrerr"
)

func invalidf(format string, args ...any) error {
	return zrerr.Newf(zrerr.ConfigError, format, args...)
}

func unknownDependency(taskName, dep string) error {
	return &zrerr.Error{Kind: zrerr.UnknownDependency, Task: taskName, Msg: "unknown dependency " + dep}
}

func cycleError(path []string) error {
	msg := "cycle"
	if len(path) > 0 {
		msg = "cycle: " + strings.Join(path, " -> ")
	}
	return zrerr.New(zrerr.CycleDetected, msg)
}
