package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	cfg "reduction.dev/ckptsink/config"
	"reduction.dev/ckptsink/jobrun"
	"reduction.dev/ckptsink/logging"
)

func main() {
	app := &cli.App{
		Name:  "ckptsink",
		Usage: "Deliver records to external stores in step with checkpoints",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "minimum level to log: debug, info, warn or error",
			},
		},
		Before: func(ctx *cli.Context) error {
			if err := logging.SetLevelText(ctx.String("log-level")); err != nil {
				return fmt.Errorf("--log-level: %w", err)
			}
			slog.SetDefault(slog.New(logging.NewTextHandler()))
			return nil
		},
		Commands: []*cli.Command{{
			Name:      "run",
			Usage:     "Run a job, reading newline-delimited records",
			Args:      true,
			ArgsUsage: "<config.yaml>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "input",
					Usage: "file to read records from instead of stdin",
				},
				&cli.StringSliceFlag{
					Name:  "param",
					Usage: "set a config parameter as NAME=value",
				},
				&cli.StringFlag{
					Name:  "metrics-addr",
					Usage: "serve metrics on this address, like 127.0.0.1:9090",
				},
			},
			Action: func(ctx *cli.Context) error {
				configPath := ctx.Args().First()
				if configPath == "" {
					return fmt.Errorf("config path is required")
				}
				err := runJob(ctx.Context, configPath, ctx.String("input"), ctx.StringSlice("param"), ctx.String("metrics-addr"))
				if err != nil {
					slog.Error("terminated with error", "error", err)
				}
				return err
			},
		}, {
			Name:      "inspect",
			Usage:     "Print a checkpoint and the writer state it carries",
			Args:      true,
			ArgsUsage: "<checkpoint-uri>",
			Action: func(ctx *cli.Context) error {
				uri := ctx.Args().First()
				if uri == "" {
					return fmt.Errorf("checkpoint URI is required")
				}
				return jobrun.Inspect(ctx.Context, uri, os.Stdout)
			},
		}},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runJob(ctx context.Context, configPath, inputPath string, paramArgs []string, metricsAddr string) error {
	// Stop everything on ctrl-c
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	params := cfg.NewParams()
	for _, p := range paramArgs {
		name, value, ok := strings.Cut(p, "=")
		if !ok {
			return fmt.Errorf("param %q must be NAME=value", p)
		}
		params.Set(name, value)
	}

	c, err := cfg.ReadFile(configPath, params)
	if err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("job definition validation error: %v", err)
	}

	var input io.Reader = os.Stdin
	if inputPath != "" {
		f, err := os.Open(inputPath)
		if err != nil {
			return err
		}
		defer f.Close()
		input = f
	}

	return jobrun.Run(ctx, jobrun.RunParams{
		Config:      c,
		Input:       input,
		MetricsAddr: metricsAddr,
	})
}
