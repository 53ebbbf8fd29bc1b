package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kioskops/collector-agent/internal/collector"
	"github.com/kioskops/collector-agent/internal/config"
	"github.com/kioskops/collector-agent/internal/models"
	"github.com/kioskops/collector-agent/internal/probe"
	"github.com/kioskops/collector-agent/internal/sender"
	"github.com/kioskops/collector-agent/internal/spool"
)

type instantProbe struct {
	delay time.Duration
}

func (p *instantProbe) Name() string { return "memory" }
func (p *instantProbe) Collect(ctx context.Context) (*models.Fragment, bool) {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	return &models.Fragment{
		Memory: &models.MemoryMetrics{TotalBytes: 1 << 30, AvailableBytes: 1 << 29, UsagePercent: 50},
	}, true
}

// testSetup builds a store, a fake aggregator, and a delivery counter
// pointed at a local endpoint.
func testSetup(t *testing.T, intervalSec int, probeDelay time.Duration) (*Scheduler, *atomic.Int64) {
	t.Helper()

	var deliveries atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deliveries.Add(1)
	}))
	t.Cleanup(srv.Close)

	st := config.NewStore(filepath.Join(t.TempDir(), "config.yaml"))
	cfg := config.Default()
	cfg.Endpoint = srv.URL
	cfg.Interval = intervalSec
	cfg.Exporters.NodeExporter.Enabled = false
	cfg.Exporters.NvidiaSMI.Enabled = false
	require.NoError(t, st.Save(cfg))

	agg := collector.NewWithSources([]probe.Probe{&instantProbe{delay: probeDelay}}, nil, zap.NewNop())
	return New(st, agg, sender.New(zap.NewNop()), nil, zap.NewNop()), &deliveries
}

func TestRun_TickCadence(t *testing.T) {
	sched, deliveries := testSetup(t, 1, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()

	require.NoError(t, sched.Run(ctx))

	// Immediate tick plus one per second: expect 3, allow scheduling slack.
	n := deliveries.Load()
	assert.GreaterOrEqual(t, n, int64(2))
	assert.LessOrEqual(t, n, int64(4))
}

func TestRun_SlowTickDropsMissedTicksWithoutBacklog(t *testing.T) {
	// Each tick takes ~1.5 intervals; the ticker must drop missed ticks
	// rather than queueing a burst afterwards.
	sched, deliveries := testSetup(t, 1, 1500*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 3200*time.Millisecond)
	defer cancel()

	require.NoError(t, sched.Run(ctx))

	// ~3.2s with ~1.5s ticks: at most 3 completed ticks, never a backlog burst.
	n := deliveries.Load()
	assert.GreaterOrEqual(t, n, int64(2))
	assert.LessOrEqual(t, n, int64(3))
}

func TestRun_FinishesInFlightTickOnCancel(t *testing.T) {
	sched, deliveries := testSetup(t, 1, 300*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	// Cancel while the first tick is still collecting.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
	assert.Equal(t, int64(1), deliveries.Load(), "in-flight tick must complete its delivery")
}

func TestReplaySpooled_DeliversBacklogAfterSuccess(t *testing.T) {
	var deliveries atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deliveries.Add(1)
	}))
	defer srv.Close()

	sp, err := spool.New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, sp.Put(&models.Snapshot{Timestamp: base, Hostname: "kiosk-01"}))
	require.NoError(t, sp.Put(&models.Snapshot{Timestamp: base.Add(time.Minute), Hostname: "kiosk-01"}))

	cfg := config.Default()
	cfg.Endpoint = srv.URL

	sched := New(nil, collector.NewWithSources(nil, nil, zap.NewNop()), sender.New(zap.NewNop()), sp, zap.NewNop())
	sched.replaySpooled(context.Background(), cfg)

	assert.Equal(t, int64(2), deliveries.Load())
	assert.Zero(t, sp.Count(), "replayed snapshots must leave the spool")
}

func TestRun_InvalidConfigFailsFast(t *testing.T) {
	st := config.NewStore(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, os.WriteFile(st.Path(), []byte("interval: -5\n"), 0o644))

	sched := New(st, collector.NewWithSources(nil, nil, zap.NewNop()), sender.New(zap.NewNop()), nil, zap.NewNop())
	assert.Error(t, sched.Run(context.Background()))
}
