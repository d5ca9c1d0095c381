package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/seam/cli/reader"
	"github.com/pithecene-io/seam/cli/render"
	"github.com/pithecene-io/seam/cli/tui"
)

// StateCommand returns the state command.
func StateCommand() *cli.Command {
	return &cli.Command{
		Name:      "state",
		Usage:     "Inspect the resume state of a merge output",
		ArgsUsage: "<path>",
		Flags: append(ReadOnlyFlags(),
			&cli.Uint64Flag{
				Name:  "total",
				Usage: "Expected segment count (enables progress and missing indices)",
			},
			&cli.StringFlag{
				Name:  "ext",
				Usage: "Segment file extension for directory outputs",
			},
		),
		Action: stateAction,
	}
}

func stateAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("state requires exactly one <path> argument", exitUsage)
	}
	path := c.Args().First()
	total := c.Uint64("total")
	ext := c.String("ext")

	view, err := reader.Inspect(path, total, ext)
	if err != nil {
		return cli.Exit(fmt.Sprintf("inspect %s: %v", path, err), exitIO)
	}

	r, err := render.NewRenderer(c, "")
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	if c.Bool("tui") {
		refresh := func() (any, error) { return reader.Inspect(path, total, ext) }
		return r.RenderTUI(tui.ViewState, view, refresh)
	}
	return r.Render(view)
}
