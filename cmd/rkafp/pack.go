package main

import (
	"context"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rkafp/internal/logger"
	"github.com/samcharles93/rkafp/pkg/param"
	"github.com/samcharles93/rkafp/pkg/rkaf"
)

func packCmd() *cli.Command {
	return &cli.Command{
		Name:      "pack",
		Usage:     "Build an RKAF update image from a source directory",
		ArgsUsage: "<source_dir> <output_file>",
		Description: "The source directory holds a \"parameter\" file, a \"package-file\"\n" +
			"listing one \"name path\" pair per line, and every file the list names.",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := args(cmd, 2)
			if err != nil {
				return err
			}
			log := logger.FromContext(ctx).With("cmd", "pack")
			out, err := outputPath(a[1])
			if err != nil {
				return fail(err)
			}

			hdr, err := rkaf.Pack(rkaf.PackOptions{
				SourceDir:  a[0],
				OutputPath: out,
				Progress:   cmd.Root().Writer,
				Logger:     log,
			})
			if err != nil {
				return fail(err)
			}

			size := int64(hdr.Length) + rkaf.CRCSize
			if st, err := os.Stat(out); err == nil {
				size = st.Size()
			}
			log.Info("update image written",
				"path", out,
				"size", humanize.IBytes(uint64(size)),
				"parts", len(hdr.Records),
				"version", param.FormatVersion(hdr.Version))
			return nil
		},
	}
}
