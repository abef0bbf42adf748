package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/pelletier/go-toml"
	"github.com/urfave/cli/v2"
)

func configCmd() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration management commands",
		Subcommands: []*cli.Command{
			{
				Name:      "validate",
				Usage:     "Validate a configuration file",
				ArgsUsage: "[dir]",
				Action:    runConfigValidate,
			},
			{
				Name:      "show",
				Usage:     "Show the effective configuration",
				ArgsUsage: "[dir]",
				Action:    runConfigShow,
			},
		},
	}
}

func runConfigValidate(c *cli.Context) error {
	dir, err := rootPath(c)
	if err != nil {
		return err
	}
	res, err := loadConfig(c, dir)
	if err != nil {
		color.New(color.FgRed).Fprintln(c.App.ErrWriter, "Configuration validation failed:")
		fmt.Fprintf(c.App.ErrWriter, "  - %s\n", err)
		return err
	}

	if res.Source != "" {
		color.New(color.FgGreen).Fprintf(c.App.Writer, "Configuration valid: %s\n", res.Source)
	} else {
		color.New(color.FgYellow).Fprintln(c.App.Writer, "No config file found. Default configuration is valid.")
	}
	return nil
}

func runConfigShow(c *cli.Context) error {
	dir, err := rootPath(c)
	if err != nil {
		return err
	}
	res, err := loadConfig(c, dir)
	if err != nil {
		return err
	}

	if res.Source != "" {
		fmt.Fprintf(c.App.Writer, "# Configuration from: %s\n\n", res.Source)
	} else {
		fmt.Fprintln(c.App.Writer, "# Default configuration (no config file found)")
	}

	content, err := toml.Marshal(res.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = c.App.Writer.Write(content)
	return err
}
