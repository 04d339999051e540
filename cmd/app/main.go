package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/daewon/plantops/internal"
	pkgconfig "github.com/daewon/plantops/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found {
		slog.Warn("config file not found, using defaults", slog.String("path", configPath))
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// stdout carries the protocol.
	return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func addUser(ctx context.Context, cmd *cli.Command) error {
	identifier := cmd.Args().First()
	if identifier == "" {
		return errors.New("usage: user add <id-or-email> --password <secret>")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	email, err := internal.AddUser(ctx, identifier, cmd.String("password"),
		internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return err
	}
	fmt.Println(email)
	return nil
}

func exportSeeds(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	collections := cmd.StringSlice("collection")
	written, err := internal.ExportSeeds(ctx, collections,
		internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return err
	}
	parts := make([]string, 0, len(collections))
	for _, c := range collections {
		parts = append(parts, fmt.Sprintf("%s=%d", c, written[c]))
	}
	fmt.Println(strings.Join(parts, " "))
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "plantops",
		Usage:  "Manufacturing operations back end: master vocabularies, item catalog and guarded web front end",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP service (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdin/stdout",
				Action: serveMCP,
			},
			{
				Name:  "user",
				Usage: "Manage sign-in users",
				Commands: []*cli.Command{
					{
						Name:      "add",
						Usage:     "Create a user; bare ids get the configured domain",
						ArgsUsage: "<id-or-email>",
						Action:    addUser,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "password",
								Usage:    "Secret for the new user",
								Required: true,
								Sources:  cli.EnvVars("PLANTOPS_USER_PASSWORD"),
							},
						},
					},
				},
			},
			{
				Name:  "seed",
				Usage: "Work with the seed directory",
				Commands: []*cli.Command{
					{
						Name:   "export",
						Usage:  "Write stored documents to seed files",
						Action: exportSeeds,
						Flags: []cli.Flag{
							&cli.StringSliceFlag{
								Name:  "collection",
								Usage: "Collection to export (repeatable)",
								Value: []string{"masters"},
							},
						},
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
