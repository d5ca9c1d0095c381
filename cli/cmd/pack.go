package cmd

import (
	"bufio"
	"fmt"
	"math/rand/v2"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/seam/feed"
	"github.com/pithecene-io/seam/ipc"
	"github.com/pithecene-io/seam/types"
)

// PackCommand returns the pack command.
func PackCommand() *cli.Command {
	return &cli.Command{
		Name:      "pack",
		Usage:     "Write segment files as a frame stream to stdout",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "from",
				Usage:    "Directory of segment files named <index>[.<ext>]",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "ext",
				Usage: "Segment file extension (default: from the directory name)",
			},
			&cli.Uint64Flag{
				Name:  "total",
				Usage: "Total announced in the end frame (default: highest index + 1)",
			},
			&cli.BoolFlag{
				Name:  "shuffle",
				Usage: "Emit segments in random order",
			},
			&cli.Uint64Flag{
				Name:  "seed",
				Usage: "Seed for --shuffle (0 picks a random seed)",
			},
			&cli.BoolFlag{
				Name:  "no-end",
				Usage: "Omit the end frame",
			},
		},
		Action: packAction,
	}
}

func packAction(c *cli.Context) error {
	if c.NArg() > 0 {
		return cli.Exit("pack takes no arguments", exitUsage)
	}

	src := feed.NewDirSource(c.String("from"), c.String("ext"))
	indices, err := src.Scan()
	if err != nil {
		return cli.Exit(err.Error(), exitIO)
	}

	total := c.Uint64("total")
	if total == 0 && len(indices) > 0 {
		total = indices[len(indices)-1] + 1
	}

	if c.Bool("shuffle") {
		seed := c.Uint64("seed")
		if seed == 0 {
			seed = rand.Uint64()
		}
		rng := rand.New(rand.NewPCG(seed, seed))
		rng.Shuffle(len(indices), func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })
	}

	w := bufio.NewWriter(c.App.Writer)
	enc := ipc.NewFrameEncoder(w)
	for _, idx := range indices {
		data, err := src.Read(idx)
		if err != nil {
			return cli.Exit(fmt.Sprintf("read segment %d: %v", idx, err), exitIO)
		}
		if err := enc.WriteSegment(types.Segment{Index: idx, Data: data}); err != nil {
			return cli.Exit(err.Error(), exitIO)
		}
	}
	if !c.Bool("no-end") {
		if err := enc.WriteEnd(total); err != nil {
			return cli.Exit(err.Error(), exitIO)
		}
	}
	if err := w.Flush(); err != nil {
		return cli.Exit(fmt.Sprintf("write frame stream: %v", err), exitIO)
	}
	return nil
}
