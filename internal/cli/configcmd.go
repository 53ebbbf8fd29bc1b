// Configuration commands: show, set, reset.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/kioskops/collector-agent/internal/config"
)

func configCmd() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show current configuration",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					rendered, err := store(cmd).Render()
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					fmt.Print(rendered)
					return nil
				},
			},
			{
				Name:      "set",
				Usage:     "Set a configuration value",
				ArgsUsage: "KEY VALUE",
				Description: `Available keys:
  endpoint                               Target endpoint URL
  interval                               Collection interval in seconds
  exporters.node_exporter.enabled        Enable Node Exporter (true/false)
  exporters.node_exporter.url            Node Exporter URL
  exporters.node_exporter.timeout        Node Exporter timeout in seconds
  exporters.nvidia_smi.enabled           Enable nvidia-smi (true/false)
  exporters.nvidia_smi.nvidia_smi_path   Path to nvidia-smi binary
  logging.level                          Log level (debug, info, warn, error)
  logging.file                           Log file path
  daemon.pid_file                        PID file path`,
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 2 {
						return cli.Exit("usage: collector config set KEY VALUE", 1)
					}
					key, value := cmd.Args().Get(0), cmd.Args().Get(1)

					if _, err := store(cmd).Set(key, value); err != nil {
						if errors.Is(err, config.ErrUnknownKey) {
							return cli.Exit(err.Error(), 1)
						}
						return cli.Exit(fmt.Sprintf("failed to set %s: %v", key, err), 1)
					}
					fmt.Printf("%s = %s\n", key, value)
					return nil
				},
			},
			{
				Name:  "reset",
				Usage: "Reset configuration to defaults",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if _, err := store(cmd).Reset(); err != nil {
						return cli.Exit(fmt.Sprintf("failed to reset configuration: %v", err), 1)
					}
					fmt.Println("Configuration reset to defaults")
					return nil
				},
			},
		},
	}
}
