package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dmaguire/sigenflux/internal/app"
	"github.com/dmaguire/sigenflux/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "sigenflux",
		Usage: "Sigen station and weather collector for InfluxDB",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "path to dotenv file",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
		},
		Commands: []*cli.Command{
			collectCommand(),
			tokenCommand(),
			opmodeCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

func collectCommand() *cli.Command {
	return &cli.Command{
		Name:  "collect",
		Usage: "run one collection cycle",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "all",
				Usage: "run every fetch regardless of the schedule gates",
			},
			&cli.StringFlag{
				Name:  "sigen--station-id",
				Usage: "station identifier",
			},
			&cli.StringFlag{
				Name:  "influx--url",
				Usage: "InfluxDB URL",
			},
		},
		Action: collectAction,
	}
}

func collectAction(ctx context.Context, cmd *cli.Command) error {
	application, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	plan := app.PlanAt(time.Now().In(application.Location()))
	if cmd.Bool("all") {
		plan = app.FullPlan()
	}

	if err := application.RunCycle(ctx, plan); err != nil {
		return fmt.Errorf("collection cycle finished with errors: %w", err)
	}
	return nil
}

func opmodeCommand() *cli.Command {
	return &cli.Command{
		Name:  "opmode",
		Usage: "query or set the station operational mode",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "query",
				Aliases: []string{"q"},
				Usage:   "query the current operational mode",
			},
			&cli.IntFlag{
				Name:    "set",
				Aliases: []string{"s"},
				Usage:   "set the operational mode (0 = self consumption, 2 = time based schedule)",
				Value:   -1,
			},
		},
		Action: opmodeAction,
	}
}

func opmodeAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	manager, err := app.NewTokenManager(cfg)
	if err != nil {
		return err
	}
	client, err := app.NewStationClient(cfg, manager)
	if err != nil {
		return err
	}

	if cmd.IsSet("set") {
		mode := int(cmd.Int("set"))
		if mode != 0 && mode != 2 {
			return fmt.Errorf("invalid operational mode %d (0 = self consumption, 2 = time based schedule)", mode)
		}
		if err := client.SetOperationalMode(ctx, mode); err != nil {
			return err
		}
		fmt.Fprintf(cmd.Writer, "operational mode set to %d\n", mode)
	}

	if cmd.Bool("query") || !cmd.IsSet("set") {
		mode, err := client.OperationalMode(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.Writer, "operational mode: %d\n", mode)
	}
	return nil
}

// buildConfig loads configuration and installs logging.
func buildConfig(cmd *cli.Command) (*app.Config, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd.String("env-file"), cmd, os.Environ)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := observability.Instrument(cfg.LogLevel, string(cfg.LogFormat)); err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return cfg, nil
}

// buildApp additionally constructs the full App (collect subcommand).
func buildApp(cmd *cli.Command) (*app.App, error) {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return nil, err
	}

	application, err := app.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create app: %w", err)
	}
	return application, nil
}
