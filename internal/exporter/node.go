// Node Exporter client — scrapes the Prometheus text exposition endpoint and
// maps node_* metric families onto CPU, memory, and disk fragments.
package exporter

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"

	"github.com/kioskops/collector-agent/internal/config"
	"github.com/kioskops/collector-agent/internal/models"
)

// Filesystem types reported by node_filesystem_* that do not represent real
// local storage.
var nodePseudoFSTypes = map[string]bool{
	"tmpfs":    true,
	"devtmpfs": true,
	"squashfs": true,
	"overlay":  true,
	"devfs":    true,
	"nullfs":   true,
}

// Mount prefixes for OS-internal paths excluded from disk metrics.
var nodeSystemMountPrefixes = []string{"/sys", "/proc", "/dev", "/run", "/snap"}

// NodeExporter scrapes a Prometheus Node Exporter endpoint.
// CPU usage is computed as a delta between consecutive scrapes of
// node_cpu_seconds_total; the first scrape after startup reports 0.
type NodeExporter struct {
	client *http.Client
	logger *zap.Logger

	prevTotal map[string]float64
	prevIdle  map[string]float64
}

// NewNodeExporter creates a Node Exporter client.
func NewNodeExporter(logger *zap.Logger) *NodeExporter {
	return &NodeExporter{
		client: &http.Client{},
		logger: logger,
	}
}

// Name returns the exporter identifier.
func (e *NodeExporter) Name() string { return "node_exporter" }

// Enabled reports whether the Node Exporter scrape is configured on.
func (e *NodeExporter) Enabled(cfg *config.Config) bool {
	return cfg.Exporters.NodeExporter.Enabled
}

// Collect scrapes the configured URL and extracts CPU, memory, and disk
// metrics. Connection failures, timeouts, and malformed responses log a
// warning and report unavailable.
func (e *NodeExporter) Collect(ctx context.Context, cfg *config.Config) (*models.Fragment, bool) {
	families, err := e.scrape(ctx, cfg)
	if err != nil {
		e.logger.Warn("Node Exporter scrape failed",
			zap.String("url", cfg.Exporters.NodeExporter.URL),
			zap.Error(err))
		return nil, false
	}

	return &models.Fragment{
		CPU:    e.cpuMetrics(families),
		Memory: memoryMetrics(families),
		Disks:  diskMetrics(families),
	}, true
}

// scrape fetches and parses the exposition endpoint.
func (e *NodeExporter) scrape(ctx context.Context, cfg *config.Config) (map[string]*dto.MetricFamily, error) {
	scrapeCtx, cancel := context.WithTimeout(ctx, cfg.NodeExporterTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(scrapeCtx, http.MethodGet, cfg.Exporters.NodeExporter.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scrape: status %d", resp.StatusCode)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse exposition format: %w", err)
	}
	return families, nil
}

// cpuMetrics extracts load averages, core count, delta-based usage, and
// hwmon temperature.
func (e *NodeExporter) cpuMetrics(families map[string]*dto.MetricFamily) *models.CpuMetrics {
	cpu := &models.CpuMetrics{
		Load1m:  singleValue(families, "node_load1"),
		Load5m:  singleValue(families, "node_load5"),
		Load15m: singleValue(families, "node_load15"),
	}

	seconds := families["node_cpu_seconds_total"]
	cpu.Cores = countCores(seconds)
	cpu.UsagePercent = e.usageDelta(seconds)

	if temp, ok := hwmonCPUTemp(families); ok {
		cpu.TempCelsius = &temp
	}
	return cpu
}

// countCores counts distinct cpu labels on node_cpu_seconds_total.
func countCores(seconds *dto.MetricFamily) int {
	if seconds == nil {
		return 1
	}
	ids := make(map[string]bool)
	for _, m := range seconds.GetMetric() {
		if id := labelValue(m, "cpu"); id != "" {
			ids[id] = true
		}
	}
	if len(ids) == 0 {
		return 1
	}
	return len(ids)
}

// usageDelta computes CPU usage percent from the change in cumulative
// node_cpu_seconds_total counters since the previous scrape.
func (e *NodeExporter) usageDelta(seconds *dto.MetricFamily) float64 {
	if seconds == nil {
		return 0
	}

	total := make(map[string]float64)
	idle := make(map[string]float64)
	for _, m := range seconds.GetMetric() {
		id := labelValue(m, "cpu")
		v := sampleValue(m)
		total[id] += v
		if labelValue(m, "mode") == "idle" {
			idle[id] += v
		}
	}

	prevTotal, prevIdle := e.prevTotal, e.prevIdle
	e.prevTotal, e.prevIdle = total, idle

	if prevTotal == nil {
		return 0
	}

	var totalDelta, idleDelta float64
	for id, v := range total {
		if pv, ok := prevTotal[id]; ok {
			totalDelta += v - pv
			idleDelta += idle[id] - prevIdle[id]
		}
	}
	if totalDelta <= 0 {
		return 0
	}

	usage := (totalDelta - idleDelta) / totalDelta * 100.0
	if usage < 0 {
		return 0
	}
	if usage > 100 {
		return 100
	}
	return usage
}

// hwmonCPUTemp picks a CPU temperature from node_hwmon_temp_celsius,
// preferring coretemp/k10temp chips, falling back to the first sensor.
func hwmonCPUTemp(families map[string]*dto.MetricFamily) (float64, bool) {
	family := families["node_hwmon_temp_celsius"]
	if family == nil || len(family.GetMetric()) == 0 {
		return 0, false
	}
	for _, m := range family.GetMetric() {
		chip := labelValue(m, "chip")
		sensor := strings.ToLower(labelValue(m, "sensor"))
		if strings.Contains(chip, "coretemp") || strings.Contains(chip, "k10temp") || strings.Contains(sensor, "cpu") {
			return sampleValue(m), true
		}
	}
	return sampleValue(family.GetMetric()[0]), true
}

// memoryMetrics extracts total/available memory counters.
func memoryMetrics(families map[string]*dto.MetricFamily) *models.MemoryMetrics {
	total := singleValue(families, "node_memory_MemTotal_bytes")
	available := singleValue(families, "node_memory_MemAvailable_bytes")
	if total <= 0 {
		return nil
	}
	mem := &models.MemoryMetrics{
		TotalBytes:     uint64(total),
		AvailableBytes: uint64(available),
	}
	mem.UsagePercent = models.UsagePercent(mem.TotalBytes, mem.AvailableBytes)
	return mem
}

// diskMetrics extracts per-mountpoint filesystem usage, excluding pseudo
// filesystems and OS-internal mounts. Output is sorted by mountpoint.
func diskMetrics(families map[string]*dto.MetricFamily) []models.DiskMetrics {
	sizes := families["node_filesystem_size_bytes"]
	if sizes == nil {
		return nil
	}

	byMount := make(map[string]*models.DiskMetrics)
	for _, m := range sizes.GetMetric() {
		mount := labelValue(m, "mountpoint")
		fstype := labelValue(m, "fstype")
		size := sampleValue(m)

		if mount == "" || size <= 0 || nodePseudoFSTypes[fstype] || isNodeSystemMount(mount) {
			continue
		}
		byMount[mount] = &models.DiskMetrics{
			Mountpoint: mount,
			Device:     labelValue(m, "device"),
			TotalBytes: uint64(size),
		}
	}

	if avail := families["node_filesystem_avail_bytes"]; avail != nil {
		for _, m := range avail.GetMetric() {
			if d, ok := byMount[labelValue(m, "mountpoint")]; ok {
				d.AvailableBytes = uint64(sampleValue(m))
			}
		}
	}

	disks := make([]models.DiskMetrics, 0, len(byMount))
	for _, d := range byMount {
		d.UsagePercent = models.UsagePercent(d.TotalBytes, d.AvailableBytes)
		disks = append(disks, *d)
	}
	sort.Slice(disks, func(i, j int) bool { return disks[i].Mountpoint < disks[j].Mountpoint })
	return disks
}

func isNodeSystemMount(mount string) bool {
	for _, prefix := range nodeSystemMountPrefixes {
		if strings.HasPrefix(mount, prefix) {
			return true
		}
	}
	return false
}

// singleValue returns the value of the first sample in a family, or 0.
func singleValue(families map[string]*dto.MetricFamily, name string) float64 {
	family := families[name]
	if family == nil || len(family.GetMetric()) == 0 {
		return 0
	}
	return sampleValue(family.GetMetric()[0])
}

// sampleValue reads a gauge, counter, or untyped sample value.
func sampleValue(m *dto.Metric) float64 {
	switch {
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetUntyped() != nil:
		return m.GetUntyped().GetValue()
	}
	return 0
}

// labelValue returns the named label's value, or "".
func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
