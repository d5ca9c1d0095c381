package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/urfave/cli/v2"
)

// runApp runs the seam commands with args and returns stdout and the
// command error. Exit codes are returned rather than exiting.
func runApp(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	stdout, _, err := runAppStderr(t, stdin, args...)
	return stdout, err
}

// runAppStderr is runApp that also captures the error writer.
func runAppStderr(t *testing.T, stdin io.Reader, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := &cli.App{
		Name:           "seam",
		Writer:         &out,
		ErrWriter:      &errOut,
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			MergeCommand(),
			StateCommand(),
			PackCommand(),
			VersionCommand("test"),
		},
	}
	if stdin != nil {
		app.Reader = stdin
	}
	err := app.Run(append([]string{"seam"}, args...))
	return out.String(), errOut.String(), err
}

// exitCode returns the exit code carried by err, 0 for nil.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return -1
}

// segmentData returns distinct, index-dependent bytes for a segment.
func segmentData(index uint64) []byte {
	return bytes.Repeat([]byte{byte('a' + index%26)}, int(10+index*5))
}

// writeSegments writes "<index>" files for indices into a new directory.
func writeSegments(t *testing.T, indices ...uint64) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "segs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, idx := range indices {
		addSegment(t, dir, idx)
	}
	return dir
}

func addSegment(t *testing.T, dir string, index uint64) {
	t.Helper()
	p := filepath.Join(dir, strconv.FormatUint(index, 10))
	if err := os.WriteFile(p, segmentData(index), 0o644); err != nil {
		t.Fatalf("write segment: %v", err)
	}
}

// concat returns the expected merged bytes for 0..total-1.
func concat(total uint64) []byte {
	var b []byte
	for i := range total {
		b = append(b, segmentData(i)...)
	}
	return b
}

func decodeJSON[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("decode %q: %v", s, err)
	}
	return v
}
