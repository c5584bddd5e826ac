package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rkafp/internal/logger"
	"github.com/samcharles93/rkafp/pkg/param"
	"github.com/samcharles93/rkafp/pkg/rkfw"
)

func romCmd() *cli.Command {
	return &cli.Command{
		Name:  "rom",
		Usage: "Wrap or unwrap the RKFW ROM container around an update image",
		Commands: []*cli.Command{
			romPackCmd(),
			romUnpackCmd(),
			romChipsCmd(),
		},
	}
}

func romPackCmd() *cli.Command {
	var (
		chipName string
		ver      string
	)

	return &cli.Command{
		Name:      "pack",
		Usage:     "Combine a boot loader and an update image into a ROM image",
		ArgsUsage: "<loader> <update_image> <output_file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "chip", Usage: "target chip (see \"rom chips\")", Required: true, Destination: &chipName},
			&cli.StringFlag{Name: "version", Usage: "ROM version as major.minor.patch", Value: "1.0.0", Destination: &ver},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := args(cmd, 3)
			if err != nil {
				return err
			}
			log := logger.FromContext(ctx).With("cmd", "rom pack")
			out, err := outputPath(a[2])
			if err != nil {
				return fail(err)
			}

			chip, err := rkfw.ChipByName(chipName)
			if err != nil {
				return fail(err)
			}
			v, err := param.ParseVersion(ver)
			if err != nil {
				return fail(err)
			}

			hdr, err := rkfw.Pack(rkfw.PackOptions{
				Chip:       chip,
				Version:    v,
				LoaderPath: a[0],
				ImagePath:  a[1],
				OutputPath: out,
				Progress:   cmd.Root().Writer,
				Logger:     log,
			})
			if err != nil {
				return fail(err)
			}

			size := int64(hdr.ImageOffset) + int64(hdr.ImageLength) + rkfw.TrailerSize
			if st, err := os.Stat(out); err == nil {
				size = st.Size()
			}
			log.Info("rom image written",
				"path", out,
				"size", humanize.IBytes(uint64(size)),
				"chip", chip.Name,
				"backup_endpos", hdr.BackupEndPos)
			return nil
		},
	}
}

func romUnpackCmd() *cli.Command {
	var loaderPath string

	return &cli.Command{
		Name:      "unpack",
		Usage:     "Verify a ROM image and export its update image",
		ArgsUsage: "<rom_file> <update_image>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "loader", Usage: "also export the boot loader to `FILE`", Destination: &loaderPath},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := args(cmd, 2)
			if err != nil {
				return err
			}
			log := logger.FromContext(ctx).With("cmd", "rom unpack")
			image, err := outputPath(a[1])
			if err != nil {
				return fail(err)
			}
			loader := loaderPath
			if loader != "" {
				if loader, err = outputPath(loader); err != nil {
					return fail(err)
				}
			}

			hdr, err := rkfw.Unpack(rkfw.UnpackOptions{
				InputPath:  a[0],
				ImagePath:  image,
				LoaderPath: loader,
				Progress:   cmd.Root().Writer,
				Logger:     log,
			})
			if err != nil {
				return fail(err)
			}
			log.Info("rom image unpacked",
				"image", image,
				"image_size", humanize.IBytes(uint64(hdr.ImageLength)),
				"chip", hdr.ChipName())
			return nil
		},
	}
}

func romChipsCmd() *cli.Command {
	return &cli.Command{
		Name:  "chips",
		Usage: "List the chips a ROM image can be built for",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			w := cmd.Root().Writer
			for _, c := range rkfw.Chips() {
				fmt.Fprintf(w, "%-8s 0x%02x  code 0x%08x\n", c.Name, c.ID, c.Code)
			}
			return nil
		},
	}
}
