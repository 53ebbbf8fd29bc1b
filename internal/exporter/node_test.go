package exporter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kioskops/collector-agent/internal/config"
)

const expositionFirst = `# HELP node_load1 1m load average.
# TYPE node_load1 gauge
node_load1 0.52
node_load5 0.48
node_load15 0.35
# TYPE node_cpu_seconds_total counter
node_cpu_seconds_total{cpu="0",mode="idle"} 1000
node_cpu_seconds_total{cpu="0",mode="user"} 100
node_cpu_seconds_total{cpu="0",mode="system"} 50
node_cpu_seconds_total{cpu="1",mode="idle"} 900
node_cpu_seconds_total{cpu="1",mode="user"} 200
node_cpu_seconds_total{cpu="1",mode="system"} 50
# TYPE node_memory_MemTotal_bytes gauge
node_memory_MemTotal_bytes 8.589934592e+09
node_memory_MemAvailable_bytes 4.294967296e+09
# TYPE node_filesystem_size_bytes gauge
node_filesystem_size_bytes{device="/dev/sda1",fstype="ext4",mountpoint="/"} 1.073741824e+11
node_filesystem_size_bytes{device="/dev/sdb1",fstype="ext4",mountpoint="/data"} 2.147483648e+11
node_filesystem_size_bytes{device="tmpfs",fstype="tmpfs",mountpoint="/run/lock"} 5.24288e+06
node_filesystem_avail_bytes{device="/dev/sda1",fstype="ext4",mountpoint="/"} 5.36870912e+10
node_filesystem_avail_bytes{device="/dev/sdb1",fstype="ext4",mountpoint="/data"} 1.073741824e+11
# TYPE node_hwmon_temp_celsius gauge
node_hwmon_temp_celsius{chip="platform_coretemp_0",sensor="temp1"} 54.0
`

// Same counters 10 CPU-seconds later per core: 4s idle, 6s busy on cpu0;
// 8s idle, 2s busy on cpu1.
const expositionSecond = `node_load1 0.60
node_load5 0.50
node_load15 0.36
node_cpu_seconds_total{cpu="0",mode="idle"} 1004
node_cpu_seconds_total{cpu="0",mode="user"} 104
node_cpu_seconds_total{cpu="0",mode="system"} 52
node_cpu_seconds_total{cpu="1",mode="idle"} 908
node_cpu_seconds_total{cpu="1",mode="user"} 201
node_cpu_seconds_total{cpu="1",mode="system"} 51
node_memory_MemTotal_bytes 8.589934592e+09
node_memory_MemAvailable_bytes 4.294967296e+09
`

func nodeTestConfig(url string) *config.Config {
	cfg := config.Default()
	cfg.Exporters.NodeExporter.URL = url
	return cfg
}

func TestNodeExporter_CollectExtractsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(expositionFirst))
	}))
	defer srv.Close()

	e := NewNodeExporter(zap.NewNop())
	frag, ok := e.Collect(context.Background(), nodeTestConfig(srv.URL))
	require.True(t, ok)

	require.NotNil(t, frag.CPU)
	assert.InDelta(t, 0.52, frag.CPU.Load1m, 0.001)
	assert.InDelta(t, 0.48, frag.CPU.Load5m, 0.001)
	assert.InDelta(t, 0.35, frag.CPU.Load15m, 0.001)
	assert.Equal(t, 2, frag.CPU.Cores)
	// First scrape has no previous sample to delta against.
	assert.Zero(t, frag.CPU.UsagePercent)
	require.NotNil(t, frag.CPU.TempCelsius)
	assert.InDelta(t, 54.0, *frag.CPU.TempCelsius, 0.001)

	require.NotNil(t, frag.Memory)
	assert.Equal(t, uint64(8589934592), frag.Memory.TotalBytes)
	assert.Equal(t, uint64(4294967296), frag.Memory.AvailableBytes)
	assert.InDelta(t, 50.0, frag.Memory.UsagePercent, 0.01)

	require.Len(t, frag.Disks, 2) // tmpfs mount excluded
	assert.Equal(t, "/", frag.Disks[0].Mountpoint)
	assert.Equal(t, "/dev/sda1", frag.Disks[0].Device)
	assert.Equal(t, uint64(107374182400), frag.Disks[0].TotalBytes)
	assert.InDelta(t, 50.0, frag.Disks[0].UsagePercent, 0.01)
	assert.Equal(t, "/data", frag.Disks[1].Mountpoint)
}

func TestNodeExporter_UsageDeltaAcrossScrapes(t *testing.T) {
	responses := []string{expositionFirst, expositionSecond}
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(responses[calls]))
		calls++
	}))
	defer srv.Close()

	e := NewNodeExporter(zap.NewNop())
	cfg := nodeTestConfig(srv.URL)

	_, ok := e.Collect(context.Background(), cfg)
	require.True(t, ok)

	frag, ok := e.Collect(context.Background(), cfg)
	require.True(t, ok)
	require.NotNil(t, frag.CPU)
	// 20 CPU-seconds elapsed, 12 idle: 40% busy.
	assert.InDelta(t, 40.0, frag.CPU.UsagePercent, 0.5)
}

func TestNodeExporter_UnreachableIsUnavailable(t *testing.T) {
	e := NewNodeExporter(zap.NewNop())
	// Port 1 on loopback: connection refused immediately.
	cfg := nodeTestConfig("http://127.0.0.1:1/metrics")
	cfg.Exporters.NodeExporter.Timeout = 1

	frag, ok := e.Collect(context.Background(), cfg)
	assert.False(t, ok)
	assert.Nil(t, frag)
}

func TestNodeExporter_NonOKStatusIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewNodeExporter(zap.NewNop())
	_, ok := e.Collect(context.Background(), nodeTestConfig(srv.URL))
	assert.False(t, ok)
}

func TestNodeExporter_DisabledByConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Exporters.NodeExporter.Enabled = false
	assert.False(t, NewNodeExporter(zap.NewNop()).Enabled(cfg))
}
