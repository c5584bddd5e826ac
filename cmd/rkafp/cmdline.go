package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rkafp/internal/logger"
	"github.com/samcharles93/rkafp/pkg/cmdline"
	"github.com/samcharles93/rkafp/pkg/rkaf"
)

func cmdlineCmd() *cli.Command {
	var (
		policyPath  string
		packageFile string
		device      string
		baseSector  uint64
		verbose     bool
	)

	return &cli.Command{
		Name:      "cmdline",
		Usage:     "Print an mtdparts fragment sized after the files of a source directory",
		ArgsUsage: "<source_dir>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "policy", Usage: "YAML sector policy replacing the built-in one", Destination: &policyPath},
			&cli.StringFlag{Name: "package-file", Usage: "package list inside the source directory", Value: rkaf.PackageFile, Destination: &packageFile},
			&cli.StringFlag{Name: "device", Usage: "override the mtd device name", Destination: &device},
			&cli.Uint64Flag{Name: "base", Usage: "override the first partition's sector", Destination: &baseSector},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "list every partition with its source size", Destination: &verbose},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := args(cmd, 1)
			if err != nil {
				return err
			}
			log := logger.FromContext(ctx).With("cmd", "cmdline")

			pol, err := resolvePolicy(configFrom(ctx), policyPath)
			if err != nil {
				return fail(err)
			}
			if device != "" {
				pol.Device = device
			}
			if cmd.IsSet("base") {
				if baseSector > 0xFFFFFFFF {
					return cli.Exit("error: --base exceeds 32 bits", exitUsage)
				}
				pol.BaseSector = uint32(baseSector)
			}

			line, entries, err := cmdline.Generate(a[0], packageFile, pol)
			if err != nil {
				return fail(err)
			}
			w := cmd.Root().Writer
			for _, e := range entries {
				if e.Missing {
					log.Warn("optional source missing, sized from policy", "name", e.Name)
				}
				if verbose {
					size := "-"
					if !e.Grow {
						size = fmt.Sprintf("0x%08x", e.Size)
					}
					fmt.Fprintf(w, "# %-16s start 0x%08x size %-10s source %s\n",
						e.Name, e.Start, size, humanize.IBytes(uint64(e.Bytes)))
				}
			}
			fmt.Fprintln(w, line)
			return nil
		},
	}
}

// resolvePolicy picks the --policy file, then the config file block, then
// the built-in table.
func resolvePolicy(cfg Config, path string) (*cmdline.Policy, error) {
	if path != "" {
		return cmdline.LoadPolicy(path)
	}
	if cfg.Cmdline != nil {
		pol := *cfg.Cmdline
		pol.Rules = append([]cmdline.Rule(nil), cfg.Cmdline.Rules...)
		return &pol, nil
	}
	return cmdline.DefaultPolicy(), nil
}
