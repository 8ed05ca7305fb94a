// Command zr is the polyglot task runner and build orchestrator's CLI
// entrypoint.
package main

import (
	"fmt"
	"os"

	"zr/cli"
	"zr/internal/zrerr"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			err := zrerr.Newf(zrerr.Internal, "panic: %v", r)
			fmt.Fprintln(os.Stderr, err)
			os.Exit(zrerr.ExitCode(err, 0))
		}
	}()
	root := cli.NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
