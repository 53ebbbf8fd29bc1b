// Package collector implements the snapshot aggregator. It runs all local
// probes and enabled exporters concurrently per tick and merges their
// fragments into one timestamped Snapshot, applying the partial-failure
// policy: an unavailable source leaves its section out, it never aborts
// the tick.
package collector

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kioskops/collector-agent/internal/config"
	"github.com/kioskops/collector-agent/internal/exporter"
	"github.com/kioskops/collector-agent/internal/models"
	"github.com/kioskops/collector-agent/internal/probe"
)

// Aggregator combines probe and exporter outputs into snapshots.
type Aggregator struct {
	probes    []probe.Probe
	exporters []exporter.Exporter
	logger    *zap.Logger
}

// New creates an aggregator with the default probe and exporter set.
func New(logger *zap.Logger) *Aggregator {
	return &Aggregator{
		probes: []probe.Probe{
			probe.NewCPU(logger),
			probe.NewMemory(logger),
			probe.NewDisk(logger),
		},
		exporters: []exporter.Exporter{
			exporter.NewNodeExporter(logger),
			exporter.NewNvidiaSMI(logger),
		},
		logger: logger,
	}
}

// NewWithSources creates an aggregator with explicit sources, used by tests.
func NewWithSources(probes []probe.Probe, exporters []exporter.Exporter, logger *zap.Logger) *Aggregator {
	return &Aggregator{probes: probes, exporters: exporters, logger: logger}
}

// Collect runs one aggregation pass and assembles a Snapshot. The timestamp
// is fixed at tick start. Sources run concurrently so tick latency is bound
// by the slowest enabled source's own timeout, not the sum of all sources.
// Disabled exporters are skipped deterministically.
func (a *Aggregator) Collect(ctx context.Context, cfg *config.Config) *models.Snapshot {
	snap := &models.Snapshot{
		Timestamp: time.Now().UTC(),
		Hostname:  hostname(),
	}

	var mu sync.Mutex
	probeFrags := make(map[string]*models.Fragment)
	exporterFrags := make(map[string]*models.Fragment)

	g, gctx := errgroup.WithContext(ctx)

	for _, p := range a.probes {
		p := p
		g.Go(func() error {
			frag, ok := p.Collect(gctx)
			if !ok {
				a.logger.Warn("probe unavailable", zap.String("probe", p.Name()))
				return nil
			}
			mu.Lock()
			probeFrags[p.Name()] = frag
			mu.Unlock()
			return nil
		})
	}

	for _, e := range a.exporters {
		e := e
		if !e.Enabled(cfg) {
			a.logger.Debug("exporter disabled, skipping", zap.String("exporter", e.Name()))
			continue
		}
		g.Go(func() error {
			frag, ok := e.Collect(gctx, cfg)
			if !ok {
				a.logger.Info("exporter unavailable", zap.String("exporter", e.Name()))
				return nil
			}
			mu.Lock()
			exporterFrags[e.Name()] = frag
			mu.Unlock()
			return nil
		})
	}

	// Sources report unavailability via the bool, never an error.
	_ = g.Wait()

	// Probes fill the base; exporter fragments take precedence as the
	// configured authoritative source, with probe data backfilling what
	// the exporter lacks.
	for _, p := range a.probes {
		if frag, ok := probeFrags[p.Name()]; ok {
			applyFragment(snap, frag, false)
		}
	}
	for _, e := range a.exporters {
		if frag, ok := exporterFrags[e.Name()]; ok {
			applyFragment(snap, frag, true)
		}
	}

	return snap
}

// ExporterHealth reports per-exporter reachability for the status command.
// Disabled exporters are reported as false without being probed.
func (a *Aggregator) ExporterHealth(ctx context.Context, cfg *config.Config) map[string]bool {
	health := make(map[string]bool, len(a.exporters))
	for _, e := range a.exporters {
		if !e.Enabled(cfg) {
			health[e.Name()] = false
			continue
		}
		_, ok := e.Collect(ctx, cfg)
		health[e.Name()] = ok
	}
	return health
}

// applyFragment merges one fragment into the snapshot. With override set,
// the fragment replaces existing sections; an existing CPU temperature is
// kept when the overriding fragment has none.
func applyFragment(snap *models.Snapshot, frag *models.Fragment, override bool) {
	if frag.CPU != nil {
		if snap.CPU == nil || override {
			cpu := *frag.CPU
			if cpu.TempCelsius == nil && snap.CPU != nil {
				cpu.TempCelsius = snap.CPU.TempCelsius
			}
			snap.CPU = &cpu
		}
	}
	if frag.Memory != nil && (snap.Memory == nil || override) {
		snap.Memory = frag.Memory
	}
	if len(frag.Disks) > 0 && (len(snap.Disks) == 0 || override) {
		snap.Disks = frag.Disks
	}
	if frag.GPU != nil && (snap.GPU == nil || override) {
		snap.GPU = frag.GPU
	}
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}
