package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_OmitsAbsentSections(t *testing.T) {
	snap := Snapshot{
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Hostname:  "kiosk-01",
		Memory:    &MemoryMetrics{TotalBytes: 8 << 30, AvailableBytes: 2 << 30, UsagePercent: 75},
	}

	data, err := json.Marshal(&snap)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Contains(t, raw, "timestamp")
	assert.Contains(t, raw, "hostname")
	assert.Contains(t, raw, "memory")
	assert.NotContains(t, raw, "cpu")
	assert.NotContains(t, raw, "gpu")
}

func TestCpuMetrics_TemperatureOmittedWhenUnknown(t *testing.T) {
	data, err := json.Marshal(&CpuMetrics{UsagePercent: 10, Cores: 4})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "temperature_celsius")

	temp := 51.0
	data, err = json.Marshal(&CpuMetrics{UsagePercent: 10, Cores: 4, TempCelsius: &temp})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"temperature_celsius":51`)
}

func TestSnapshot_FieldNames(t *testing.T) {
	temp := 47.0
	snap := Snapshot{
		Timestamp: time.Now().UTC(),
		Hostname:  "kiosk-01",
		CPU:       &CpuMetrics{UsagePercent: 20, Load1m: 0.5, Load5m: 0.4, Load15m: 0.3, Cores: 8, TempCelsius: &temp},
		Memory:    &MemoryMetrics{TotalBytes: 1, AvailableBytes: 1, UsagePercent: 0},
		Disks:     []DiskMetrics{{Mountpoint: "/", Device: "/dev/sda1", TotalBytes: 1, AvailableBytes: 1}},
		GPU:       &GpuMetrics{UtilizationPercent: 1, MemoryUsedBytes: 1, MemoryTotalBytes: 1},
	}

	data, err := json.Marshal(&snap)
	require.NoError(t, err)
	body := string(data)

	for _, field := range []string{
		`"usage_percent"`, `"load_1m"`, `"load_5m"`, `"load_15m"`, `"cores"`,
		`"total_bytes"`, `"available_bytes"`, `"mountpoint"`, `"device"`,
		`"utilization_percent"`, `"memory_used_bytes"`, `"memory_total_bytes"`,
		`"memory_usage_percent"`, `"power_watts"`,
	} {
		assert.Contains(t, body, field)
	}
}

func TestUsagePercent(t *testing.T) {
	assert.InDelta(t, 50.0, UsagePercent(100, 50), 0.001)
	assert.InDelta(t, 100.0, UsagePercent(100, 0), 0.001)
	assert.Zero(t, UsagePercent(100, 100))
	assert.Zero(t, UsagePercent(0, 0), "zero total must not divide by zero")
}
