package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rkafp/internal/logger"
	"github.com/samcharles93/rkafp/internal/version"
)

func main() {
	app := newApp()
	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func newApp() *cli.Command {
	g := &globalOptions{}
	return &cli.Command{
		Name:    "rkafp",
		Usage:   "Pack and unpack Rockchip firmware images",
		Version: version.String(),
		Flags:   g.flags(),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			return g.setup(ctx, cmd)
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			packCmd(),
			unpackCmd(),
			cmdlineCmd(),
			inspectCmd(),
			romCmd(),
			kernelCmd(),
			versionCmd(),
		},
	}
}

// setup loads the config file and installs the logger in the context.
func (g *globalOptions) setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := loadConfig(g.configPath, cmd.IsSet("config"))
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), exitUsage)
	}
	g.config = cfg
	applyLogConfig(cmd, cfg, &g.logLevel, &g.logFormat)
	if g.debug {
		g.logLevel = "debug"
	}

	log, err := logger.Setup(cmd.Root().ErrWriter, g.logFormat, g.logLevel)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), exitUsage)
	}
	log = log.With("run", uuid.NewString())
	ctx = logger.WithContext(ctx, log)
	ctx = withConfig(ctx, cfg)
	return ctx, nil
}

// args returns exactly n positional arguments or a usage error.
func args(cmd *cli.Command, n int) ([]string, error) {
	if cmd.NArg() != n {
		return nil, cli.Exit(fmt.Sprintf("error: %s expects %d argument(s): %s", cmd.Name, n, cmd.ArgsUsage), exitUsage)
	}
	return cmd.Args().Slice(), nil
}
