// Package models defines the metric data structures used throughout the agent.
// A Snapshot is assembled once per collection tick and serialized to JSON for
// transmission to the configured endpoint.
package models

import "time"

// Snapshot represents a single point-in-time collection of all system metrics.
// Optional sections are nil when the corresponding source was unavailable;
// they are never encoded as zero-filled placeholders.
type Snapshot struct {
	Timestamp time.Time      `json:"timestamp"`
	Hostname  string         `json:"hostname"`
	CPU       *CpuMetrics    `json:"cpu,omitempty"`
	Memory    *MemoryMetrics `json:"memory,omitempty"`
	Disks     []DiskMetrics  `json:"disks"`
	GPU       *GpuMetrics    `json:"gpu,omitempty"`
}

// CpuMetrics holds processor utilization, load averages, and core count.
type CpuMetrics struct {
	UsagePercent float64  `json:"usage_percent"`
	Load1m       float64  `json:"load_1m"`
	Load5m       float64  `json:"load_5m"`
	Load15m      float64  `json:"load_15m"`
	Cores        int      `json:"cores"`
	TempCelsius  *float64 `json:"temperature_celsius,omitempty"`
}

// MemoryMetrics holds RAM counters. UsagePercent is derived as
// (total-available)/total*100.
type MemoryMetrics struct {
	TotalBytes     uint64  `json:"total_bytes"`
	AvailableBytes uint64  `json:"available_bytes"`
	UsagePercent   float64 `json:"usage_percent"`
}

// DiskMetrics holds usage for a single mounted filesystem.
type DiskMetrics struct {
	Mountpoint     string  `json:"mountpoint"`
	Device         string  `json:"device"`
	TotalBytes     uint64  `json:"total_bytes"`
	AvailableBytes uint64  `json:"available_bytes"`
	UsagePercent   float64 `json:"usage_percent"`
}

// GpuMetrics holds metrics for the first GPU reported by nvidia-smi.
// Multi-GPU hosts report GPU 0 only.
type GpuMetrics struct {
	UtilizationPercent float64 `json:"utilization_percent"`
	MemoryUsedBytes    uint64  `json:"memory_used_bytes"`
	MemoryTotalBytes   uint64  `json:"memory_total_bytes"`
	MemoryUsagePercent float64 `json:"memory_usage_percent"`
	TempCelsius        float64 `json:"temperature_celsius"`
	PowerWatts         float64 `json:"power_watts"`
}

// Fragment is the partial result produced by one metric source before
// aggregation. A source fills only the sections it knows about.
type Fragment struct {
	CPU    *CpuMetrics
	Memory *MemoryMetrics
	Disks  []DiskMetrics
	GPU    *GpuMetrics
}

// DeliveryResult records the outcome of one snapshot delivery attempt.
type DeliveryResult struct {
	Success    bool
	StatusCode int
	Err        error
}

// UsagePercent derives a usage percentage from total/available counters.
// Returns 0 when total is 0.
func UsagePercent(total, available uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(total-available) / float64(total) * 100.0
}
