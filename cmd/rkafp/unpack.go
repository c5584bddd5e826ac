package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rkafp/internal/logger"
	"github.com/samcharles93/rkafp/pkg/rkaf"
)

func unpackCmd() *cli.Command {
	var strict bool

	return &cli.Command{
		Name:      "unpack",
		Usage:     "Extract every partition of an RKAF update image",
		ArgsUsage: "<input_file> <output_dir>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "strict",
				Usage:       "exit non-zero when any partition could not be extracted in full",
				Destination: &strict,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := args(cmd, 2)
			if err != nil {
				return err
			}
			log := logger.FromContext(ctx).With("cmd", "unpack")
			w := cmd.Root().Writer

			rep, err := rkaf.Unpack(rkaf.UnpackOptions{
				InputPath: a[0],
				OutputDir: a[1],
				Progress:  w,
				Logger:    log,
			})
			if err != nil {
				return fail(err)
			}

			fmt.Fprintf(w, "%d extracted, %d skipped, %d problem(s)\n",
				len(rep.Extracted), len(rep.Sentinels), len(rep.Problems))
			if strict && len(rep.Problems) > 0 {
				return cli.Exit(fmt.Sprintf("error: %d partition(s) not extracted in full", len(rep.Problems)), exitGeneric)
			}
			return nil
		},
	}
}
