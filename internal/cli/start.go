// Lifecycle commands: start (foreground or detached), stop, status.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/kioskops/collector-agent/internal/collector"
	"github.com/kioskops/collector-agent/internal/daemon"
	"github.com/kioskops/collector-agent/internal/logging"
	"github.com/kioskops/collector-agent/internal/scheduler"
	"github.com/kioskops/collector-agent/internal/sender"
	"github.com/kioskops/collector-agent/internal/spool"
)

func startCmd() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Start the collector",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "daemon",
				Aliases: []string{"d"},
				Usage:   "Run as daemon",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			st := store(cmd)
			cfg, err := st.Load()
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			logger := logging.New(cfg.Logging.Level, cfg.Logging.File)
			defer logger.Sync()

			mgr := daemon.NewManager(cfg.Daemon.PIDFile, logger)

			if cmd.Bool("daemon") {
				if pid, ok := mgr.PID(); ok {
					return cli.Exit(fmt.Sprintf("collector is already running (PID %d)", pid), 1)
				}
				args := []string{"--config", st.Path(), "start"}
				pid, err := daemon.Detach(args, cfg.Logging.File)
				if err != nil {
					return cli.Exit(fmt.Sprintf("failed to start daemon: %v", err), 1)
				}
				fmt.Printf("Collector started as daemon (PID %d)\n", pid)
				return nil
			}

			// Foreground mode: this process owns the PID file and the loop.
			if err := mgr.WritePID(); err != nil {
				if errors.Is(err, daemon.ErrAlreadyRunning) {
					return cli.Exit(err.Error(), 1)
				}
				return cli.Exit(fmt.Sprintf("cannot write PID file: %v", err), 1)
			}
			defer mgr.RemovePID()

			runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info("starting collector",
				zap.Int("interval_s", cfg.Interval),
				zap.String("endpoint", cfg.Endpoint))

			// Spooling is best effort: without write access to the spool
			// directory the collector still runs, it just cannot replay
			// snapshots across endpoint outages.
			sp, err := spool.New(spool.DefaultDir, logger)
			if err != nil {
				logger.Warn("spool unavailable, undelivered snapshots will be dropped",
					zap.String("dir", spool.DefaultDir),
					zap.Error(err))
			}

			sched := scheduler.New(st, collector.New(logger), sender.New(logger), sp, logger)
			if err := sched.Run(runCtx); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			logger.Info("collector stopped")
			return nil
		},
	}
}

func stopCmd() *cli.Command {
	return &cli.Command{
		Name:  "stop",
		Usage: "Stop the running daemon",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := store(cmd).Load()
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			logger := logging.New("error", "")
			defer logger.Sync()

			mgr := daemon.NewManager(cfg.Daemon.PIDFile, logger)
			pid, ok := mgr.PID()
			if !ok {
				return cli.Exit("collector is not running", 1)
			}

			fmt.Printf("Stopping collector (PID %d)...\n", pid)
			if err := mgr.Stop(); err != nil {
				return cli.Exit(fmt.Sprintf("failed to stop collector: %v", err), 1)
			}
			fmt.Println("Collector stopped")
			return nil
		},
	}
}

func statusCmd() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show collector status",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := store(cmd).Load()
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			logger := logging.New("error", "")
			defer logger.Sync()

			mgr := daemon.NewManager(cfg.Daemon.PIDFile, logger)

			if pid, ok := mgr.PID(); ok {
				fmt.Printf("Status:   RUNNING (PID %d)\n", pid)
				if uptime, ok := mgr.Uptime(); ok {
					fmt.Printf("Uptime:   %s\n", formatUptime(uptime))
				}
			} else {
				fmt.Println("Status:   STOPPED")
			}
			fmt.Printf("Endpoint: %s\n", cfg.Endpoint)
			fmt.Printf("Interval: %ds\n", cfg.Interval)

			health := collector.New(logger).ExporterHealth(ctx, cfg)
			fmt.Printf("Node Exporter: %s\n", healthWord(health["node_exporter"]))
			fmt.Printf("nvidia-smi:    %s\n", healthWord(health["nvidia_smi"]))
			return nil
		},
	}
}

func healthWord(ok bool) string {
	if ok {
		return "available"
	}
	return "unavailable"
}

func formatUptime(d time.Duration) string {
	total := int(d.Seconds())
	hours, rest := total/3600, total%3600
	minutes, seconds := rest/60, rest%60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
