// Metrics and test commands: one-shot or continuous aggregation passes,
// payload dry-runs, and endpoint delivery tests.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/kioskops/collector-agent/internal/collector"
	"github.com/kioskops/collector-agent/internal/logging"
	"github.com/kioskops/collector-agent/internal/models"
	"github.com/kioskops/collector-agent/internal/sender"
)

// metric categories accepted by the metrics command.
var metricCategories = map[string]bool{
	"cpu":    true,
	"gpu":    true,
	"memory": true,
	"disk":   true,
}

func metricsCmd() *cli.Command {
	return &cli.Command{
		Name:      "metrics",
		Usage:     "Show current metrics",
		ArgsUsage: "[cpu|gpu|memory|disk]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "follow",
				Aliases: []string{"f"},
				Usage:   "Continuously monitor metrics",
			},
			&cli.IntFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "Update interval in seconds (with --follow)",
				Value:   2,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			category := strings.ToLower(cmd.Args().First())
			if category != "" && !metricCategories[category] {
				return cli.Exit(fmt.Sprintf("unknown metric category %q (want cpu, gpu, memory, or disk)", category), 1)
			}

			cfg, err := store(cmd).Load()
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			logger := logging.New("error", "")
			defer logger.Sync()
			agg := collector.New(logger)

			if !cmd.Bool("follow") {
				printSnapshot(agg.Collect(ctx, cfg), category)
				return nil
			}

			every := cmd.Int("interval")
			if every < 1 {
				return cli.Exit("interval must be a positive number of seconds", 1)
			}

			watchCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ticker := time.NewTicker(time.Duration(every) * time.Second)
			defer ticker.Stop()

			printSnapshot(agg.Collect(watchCtx, cfg), category)
			for {
				select {
				case <-watchCtx.Done():
					fmt.Println("Monitoring stopped.")
					return nil
				case <-ticker.C:
					printSnapshot(agg.Collect(watchCtx, cfg), category)
				}
			}
		},
	}
}

func testCmd() *cli.Command {
	return &cli.Command{
		Name:  "test",
		Usage: "Test endpoint connection",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"n"},
				Usage:   "Show JSON output without sending",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := store(cmd).Load()
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			logger := logging.New("error", "")
			defer logger.Sync()

			snap := collector.New(logger).Collect(ctx, cfg)

			if cmd.Bool("dry-run") {
				payload, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return cli.Exit(fmt.Sprintf("failed to encode snapshot: %v", err), 1)
				}
				fmt.Println(string(payload))
				return nil
			}

			snd := sender.New(logger)
			fmt.Printf("Testing connection to %s...\n", cfg.Endpoint)
			ok, message := snd.TestConnection(ctx, cfg)
			fmt.Println(message)
			if !ok {
				return cli.Exit("connection test failed", 1)
			}

			fmt.Println("Sending metrics...")
			result := snd.Send(ctx, cfg, snap)
			if !result.Success {
				return cli.Exit(fmt.Sprintf("failed to send metrics: %v", result.Err), 1)
			}
			fmt.Println("Metrics sent successfully")
			return nil
		},
	}
}

// printSnapshot renders a snapshot as plain text, optionally filtered to
// one category.
func printSnapshot(snap *models.Snapshot, category string) {
	fmt.Printf("[%s] %s\n", snap.Timestamp.Local().Format("15:04:05"), snap.Hostname)

	if category == "" || category == "cpu" {
		if cpu := snap.CPU; cpu != nil {
			fmt.Printf("  CPU:    %.1f%% (load %.2f/%.2f/%.2f, %d cores)\n",
				cpu.UsagePercent, cpu.Load1m, cpu.Load5m, cpu.Load15m, cpu.Cores)
			if cpu.TempCelsius != nil {
				fmt.Printf("          %.1f°C\n", *cpu.TempCelsius)
			}
		} else {
			fmt.Println("  CPU:    unavailable")
		}
	}

	if category == "" || category == "memory" {
		if mem := snap.Memory; mem != nil {
			fmt.Printf("  Memory: %.1f%% of %s (%s available)\n",
				mem.UsagePercent, formatBytes(mem.TotalBytes), formatBytes(mem.AvailableBytes))
		} else {
			fmt.Println("  Memory: unavailable")
		}
	}

	if category == "" || category == "disk" {
		for _, d := range snap.Disks {
			fmt.Printf("  Disk:   %-20s %.1f%% of %s (%s)\n",
				d.Mountpoint, d.UsagePercent, formatBytes(d.TotalBytes), d.Device)
		}
		if len(snap.Disks) == 0 {
			fmt.Println("  Disk:   unavailable")
		}
	}

	if category == "" || category == "gpu" {
		if gpu := snap.GPU; gpu != nil {
			fmt.Printf("  GPU:    %.1f%%, memory %.1f%% of %s, %.1f°C, %.1fW\n",
				gpu.UtilizationPercent, gpu.MemoryUsagePercent,
				formatBytes(gpu.MemoryTotalBytes), gpu.TempCelsius, gpu.PowerWatts)
		} else if category == "gpu" {
			fmt.Println("  GPU:    unavailable")
		}
	}
}

// formatBytes renders a byte count using binary units.
func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
