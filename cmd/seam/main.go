// Package main provides the seam CLI entrypoint.
//
// Usage:
//
//	seam <command> [options]
//
// Exit codes for `merge`:
//   - 0: every segment merged
//   - 1: usage or config error
//   - 2: storage or source failure
//   - 3: incomplete or interrupted (rerun to resume)
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/seam/cli/cmd"
	"github.com/pithecene-io/seam/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func newApp() *cli.App {
	return &cli.App{
		Name:           "seam",
		Usage:          "Reassemble out-of-order segments with resumable persistence",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.MergeCommand(),
			cmd.StateCommand(),
			cmd.PackCommand(),
			cmd.VersionCommand(commit),
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors.
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	os.Exit(reportError(os.Stderr, err))
}

// reportError prints err to w and returns the process exit code.
func reportError(w io.Writer, err error) int {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		// cli.Exit("", N).Error() returns "exit status N"; skip those.
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			_, _ = fmt.Fprintln(w, msg)
		}
		return code
	}

	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}
