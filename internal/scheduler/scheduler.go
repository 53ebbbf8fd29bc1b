// Package scheduler implements the tick-based collection loop. Every
// interval it runs one aggregation pass and hands the snapshot to the
// delivery client. The interval is measured from the start of the previous
// tick; a tick that overruns causes missed ticks to be dropped, never
// queued as backlog.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kioskops/collector-agent/internal/collector"
	"github.com/kioskops/collector-agent/internal/config"
	"github.com/kioskops/collector-agent/internal/sender"
	"github.com/kioskops/collector-agent/internal/spool"
)

// tickTimeout bounds a single aggregation pass. Individual sources carry
// their own tighter timeouts; this is the backstop.
const tickTimeout = 30 * time.Second

// Scheduler drives the collect-then-deliver loop.
type Scheduler struct {
	store  *config.Store
	agg    *collector.Aggregator
	snd    *sender.Sender
	spool  *spool.Spool
	logger *zap.Logger
}

// New creates a scheduler. The spool may be nil, in which case undelivered
// snapshots are dropped instead of replayed.
func New(store *config.Store, agg *collector.Aggregator, snd *sender.Sender, sp *spool.Spool, logger *zap.Logger) *Scheduler {
	return &Scheduler{store: store, agg: agg, snd: snd, spool: sp, logger: logger}
}

// Run executes the collection loop until the context is cancelled. An
// in-flight tick always completes, including its delivery, before Run
// returns; no new tick starts after cancellation.
//
// The effective configuration is re-read from the store at every tick, so a
// config set of interval or endpoint takes effect on the next tick without
// a restart.
func (s *Scheduler) Run(ctx context.Context) error {
	cfg, err := s.store.Load()
	if err != nil {
		return err
	}

	interval := cfg.CollectInterval()
	s.logger.Info("scheduler started",
		zap.Duration("interval", interval),
		zap.String("endpoint", cfg.Endpoint))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First tick fires immediately rather than one interval in.
	s.tick(ctx, cfg)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return nil
		case <-ticker.C:
			// Both channels can be ready at once; cancellation wins.
			if ctx.Err() != nil {
				s.logger.Info("scheduler stopping")
				return nil
			}
			fresh, err := s.store.Load()
			if err != nil {
				// A config made unreadable mid-run is not fatal; keep
				// running on the last known good values.
				s.logger.Error("config reload failed, keeping previous", zap.Error(err))
			} else {
				if next := fresh.CollectInterval(); next != interval {
					s.logger.Info("interval changed", zap.Duration("interval", next))
					ticker.Reset(next)
					interval = next
				}
				cfg = fresh
			}
			s.tick(ctx, cfg)
		}
	}
}

// tick runs one collect-then-deliver pass. The tick context is detached
// from the loop context so shutdown never aborts a delivery mid-flight;
// the loop simply does not start another tick after cancellation.
func (s *Scheduler) tick(_ context.Context, cfg *config.Config) {
	tickCtx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()

	snap := s.agg.Collect(tickCtx, cfg)

	result := s.snd.Send(tickCtx, cfg, snap)
	if result.Success {
		s.logger.Info("metrics collected and sent",
			zap.Time("timestamp", snap.Timestamp),
			zap.Int("status", result.StatusCode))
		s.replaySpooled(tickCtx, cfg)
		return
	}

	s.logger.Error("failed to send metrics",
		zap.Time("timestamp", snap.Timestamp),
		zap.Error(result.Err))
	if s.spool != nil {
		if err := s.spool.Put(snap); err != nil {
			s.logger.Error("failed to spool snapshot", zap.Error(err))
		}
	}
}

// replaySpooled delivers snapshots held over from failed ticks. Runs only
// after a successful delivery, so a down endpoint is probed once per tick,
// not once per backlog entry. Snapshots that fail again go back to the spool.
func (s *Scheduler) replaySpooled(ctx context.Context, cfg *config.Config) {
	if s.spool == nil || s.spool.Count() == 0 {
		return
	}

	backlog := s.spool.Drain()
	s.logger.Info("replaying spooled snapshots", zap.Int("count", len(backlog)))
	for i, old := range backlog {
		if result := s.snd.Send(ctx, cfg, old); !result.Success {
			for _, rest := range backlog[i:] {
				s.spool.Put(rest)
			}
			s.logger.Warn("spool replay interrupted",
				zap.Int("delivered", i),
				zap.Int("remaining", len(backlog)-i))
			return
		}
	}
}
