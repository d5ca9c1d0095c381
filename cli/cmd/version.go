package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/seam/cli/render"
	"github.com/pithecene-io/seam/merger"
	"github.com/pithecene-io/seam/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version       string `json:"version"`
	FrameContract string `json:"frame_contract"`
	StateFormat   string `json:"state_format"`
	Commit        string `json:"commit"`
}

// VersionCommand returns the version command.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", exitUsage)
		}

		r, err := render.NewRenderer(c, "")
		if err != nil {
			return cli.Exit(err.Error(), exitUsage)
		}

		return r.Render(VersionResponse{
			Version:       types.Version,
			FrameContract: types.FrameContractVersion,
			StateFormat:   merger.StateFormat,
			Commit:        commit,
		})
	}
}
