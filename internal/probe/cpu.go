// CPU probe — usage percent, load averages, core count, and thermal reading.
package probe

import (
	"context"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"go.uber.org/zap"

	"github.com/kioskops/collector-agent/internal/models"
)

// cpuSampleWindow is the fixed delta window for computing CPU usage percent.
// Two samples this far apart yield the utilization over the window.
const cpuSampleWindow = 500 * time.Millisecond

// Sensor name substrings used to identify CPU temperature sensors.
// Linux: coretemp_core_0_input, k10temp_tctl_input, acpitz_temp1_input.
var cpuSensorKeys = []string{
	"cpu", "core", "package",
	"tctl", "tdie", "k10temp", "coretemp",
	"acpitz", "zenpower",
}

// Temperatures outside this range (°C) are treated as sensor errors.
const (
	minValidTemp = 0.0
	maxValidTemp = 150.0
)

// CPU collects processor metrics via gopsutil.
type CPU struct {
	logger *zap.Logger
}

// NewCPU creates a CPU probe.
func NewCPU(logger *zap.Logger) *CPU {
	return &CPU{logger: logger}
}

// Name returns the probe identifier.
func (p *CPU) Name() string { return "cpu" }

// Collect gathers CPU usage (blocking for the sample window), load averages,
// core count, and temperature. Temperature failures are non-fatal; the field
// is simply omitted.
func (p *CPU) Collect(ctx context.Context) (*models.Fragment, bool) {
	usage, err := cpu.PercentWithContext(ctx, cpuSampleWindow, false)
	if err != nil {
		p.logger.Warn("CPU usage probe failed", zap.Error(err))
		return nil, false
	}

	result := &models.CpuMetrics{Cores: 1}
	if len(usage) > 0 {
		result.UsagePercent = usage[0]
	}

	if cores, err := cpu.CountsWithContext(ctx, true); err == nil && cores > 0 {
		result.Cores = cores
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		result.Load1m = avg.Load1
		result.Load5m = avg.Load5
		result.Load15m = avg.Load15
	} else {
		p.logger.Debug("load average probe failed", zap.Error(err))
	}

	if temp, ok := p.temperature(ctx); ok {
		result.TempCelsius = &temp
	}

	return &models.Fragment{CPU: result}, true
}

// temperature returns the hottest valid CPU sensor reading, if any.
func (p *CPU) temperature(ctx context.Context) (float64, bool) {
	temps, err := host.SensorsTemperaturesWithContext(ctx)
	if err != nil {
		p.logger.Debug("temperature sensors not available", zap.Error(err))
		return 0, false
	}

	var max float64
	found := false
	for _, t := range temps {
		if t.Temperature <= minValidTemp || t.Temperature > maxValidTemp {
			continue
		}
		if !matchesSensor(strings.ToLower(t.SensorKey), cpuSensorKeys) {
			continue
		}
		if !found || t.Temperature > max {
			max = t.Temperature
			found = true
		}
	}
	return max, found
}

// matchesSensor checks if the sensor name contains any of the key substrings.
func matchesSensor(name string, keys []string) bool {
	for _, key := range keys {
		if strings.Contains(name, key) {
			return true
		}
	}
	return false
}
