// Package cli implements the collector command tree. It is a thin front-end:
// argument parsing and human-readable output around the core packages
// (config, collector, scheduler, sender, daemon).
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/kioskops/collector-agent/internal/config"
)

// New builds the root command. The version string is injected from main
// (set at build time via -ldflags).
func New(version string) *cli.Command {
	return &cli.Command{
		Name:    "collector",
		Usage:   "System metrics collector agent for kiosk machines",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to configuration file",
				Value: config.DefaultPath,
			},
		},
		Commands: []*cli.Command{
			startCmd(),
			stopCmd(),
			statusCmd(),
			metricsCmd(),
			configCmd(),
			testCmd(),
			versionCmd(version),
		},
	}
}

// Run executes the CLI and returns the process exit code.
func Run(ctx context.Context, version string, args []string) int {
	if err := New(version).Run(ctx, args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// versionCmd prints the semantic version in the form parsed by the update
// tooling.
func versionCmd(version string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Printf("collector-agent %s\n", version)
			return nil
		},
	}
}

// store builds the configuration store from the global --config flag.
func store(cmd *cli.Command) *config.Store {
	return config.NewStore(cmd.String("config"))
}
