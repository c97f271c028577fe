// Package command builds the tracker command line.
package command

import (
	"context"
	"errors"

	"github.com/urfave/cli/v2"

	"tracker/internal/config"
)

// Deps holds the runners each command dispatches to.
type Deps struct {
	LoadConfig func(path string) (config.Config, error)
	RunServe   func(context.Context, config.Config) error
	RunSweep   func(context.Context, config.Config) error
	RunMigrate func(context.Context, config.Config) error
}

// BuildApp returns the CLI. Running it without a command starts the server.
func BuildApp(deps Deps) *cli.App {
	return &cli.App{
		Name:  "tracker",
		Usage: "task tracker with automations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a TOML config file",
				EnvVars: []string{"TRACKER_CONFIG"},
			},
		},
		Action: func(ctx *cli.Context) error {
			return run(ctx, deps, deps.RunServe, "serve")
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "start the HTTP API and the automation sweeper",
				Action: func(ctx *cli.Context) error {
					return run(ctx, deps, deps.RunServe, "serve")
				},
			},
			{
				Name:  "sweep",
				Usage: "run due recurring rules and due date checks once",
				Action: func(ctx *cli.Context) error {
					return run(ctx, deps, deps.RunSweep, "sweep")
				},
			},
			{
				Name:  "migrate",
				Usage: "create or upgrade the database schema",
				Action: func(ctx *cli.Context) error {
					return run(ctx, deps, deps.RunMigrate, "migrate")
				},
			},
		},
	}
}

func run(ctx *cli.Context, deps Deps, runner func(context.Context, config.Config) error, name string) error {
	if runner == nil {
		return errors.New(name + " runner is not configured")
	}
	load := deps.LoadConfig
	if load == nil {
		load = config.Load
	}
	cfg, err := load(ctx.String("config"))
	if err != nil {
		return err
	}
	return runner(ctx.Context, cfg)
}
