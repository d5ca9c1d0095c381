// Package cmd provides CLI commands for the seam binary.
package cmd

import (
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/seam/cli/config"
)

// Exit codes.
const (
	exitSuccess    = 0
	exitUsage      = 1 // bad flags or config
	exitIO         = 2 // storage or source failure
	exitIncomplete = 3 // source exhausted before every segment arrived
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// TUIFlag enables Bubble Tea interactive mode (state only).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (state only)",
	}
)

// ReadOnlyFlags returns the shared flags for read-only commands.
// --tui is included everywhere so unsupported commands can reject it
// explicitly instead of failing on an unknown flag.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{FormatFlag, TUIFlag}
}

// resolveString returns the flag value when set on the command line, the
// config value when non-empty, and the flag default otherwise.
func resolveString(c *cli.Context, name, cfgVal string) string {
	if c.IsSet(name) || cfgVal == "" {
		return c.String(name)
	}
	return cfgVal
}

// resolveInt is resolveString for ints; a zero config value means unset.
func resolveInt(c *cli.Context, name string, cfgVal int) int {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Int(name)
	}
	return cfgVal
}

// resolveBool lets an explicit flag override the config in both
// directions.
func resolveBool(c *cli.Context, name string, cfgVal bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return cfgVal || c.Bool(name)
}

// resolveDuration is resolveString for durations.
func resolveDuration(c *cli.Context, name string, cfgVal time.Duration) time.Duration {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Duration(name)
	}
	return cfgVal
}

// configVal reads a field from a possibly nil config.
func configVal[T any](cfg *config.Config, get func(*config.Config) T) T {
	if cfg == nil {
		var zero T
		return zero
	}
	return get(cfg)
}

// isStderrTTY returns true if stderr is a terminal.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
