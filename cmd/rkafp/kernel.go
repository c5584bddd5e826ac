package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rkafp/internal/logger"
	"github.com/samcharles93/rkafp/pkg/krnl"
)

func kernelCmd() *cli.Command {
	return &cli.Command{
		Name:  "kernel",
		Usage: "Wrap or unwrap a kernel blob in the KRNL container",
		Commands: []*cli.Command{
			kernelPackCmd(),
			kernelUnpackCmd(),
		},
	}
}

func kernelPackCmd() *cli.Command {
	return &cli.Command{
		Name:      "pack",
		Usage:     "Wrap a raw kernel in a KRNL header and checksum",
		ArgsUsage: "<input_file> <output_file>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := args(cmd, 2)
			if err != nil {
				return err
			}
			log := logger.FromContext(ctx).With("cmd", "kernel pack")
			dst, err := outputPath(a[1])
			if err != nil {
				return fail(err)
			}

			in, err := os.Open(a[0])
			if err != nil {
				return fail(fmt.Errorf("%w: %w", errOpenInput, err))
			}
			defer func() { _ = in.Close() }()
			out, err := os.Create(dst)
			if err != nil {
				return fail(fmt.Errorf("%w: %w", errCreateOutput, err))
			}

			n, crc, err := krnl.Pack(out, in)
			if cerr := out.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(dst)
				return fail(err)
			}

			fmt.Fprintf(cmd.Root().Writer, "crc: %08X\n", crc)
			log.Info("kernel wrapped", "path", dst, "size", humanize.IBytes(uint64(n)))
			return nil
		},
	}
}

func kernelUnpackCmd() *cli.Command {
	return &cli.Command{
		Name:      "unpack",
		Usage:     "Extract the raw kernel from a KRNL blob",
		ArgsUsage: "<input_file> <output_file>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := args(cmd, 2)
			if err != nil {
				return err
			}
			log := logger.FromContext(ctx).With("cmd", "kernel unpack")
			dst, err := outputPath(a[1])
			if err != nil {
				return fail(err)
			}

			in, err := os.Open(a[0])
			if err != nil {
				return fail(fmt.Errorf("%w: %w", errOpenInput, err))
			}
			defer func() { _ = in.Close() }()
			out, err := os.Create(dst)
			if err != nil {
				return fail(fmt.Errorf("%w: %w", errCreateOutput, err))
			}

			res, err := krnl.Unpack(out, in)
			if cerr := out.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(dst)
				return fail(err)
			}

			if !res.Valid() {
				log.Warn("kernel checksum mismatch",
					"stored", fmt.Sprintf("%08X", res.Stored),
					"computed", fmt.Sprintf("%08X", res.Computed))
			}
			log.Info("kernel extracted", "path", dst, "size", humanize.IBytes(uint64(res.Length)))
			return nil
		},
	}
}
