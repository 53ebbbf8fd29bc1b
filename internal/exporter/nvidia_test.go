package exporter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kioskops/collector-agent/internal/config"
)

func TestParseNvidiaCSV_SingleGPU(t *testing.T) {
	gpu, ok := parseNvidiaCSV("45, 2048, 8192, 62, 115.5\n")
	require.True(t, ok)

	assert.InDelta(t, 45.0, gpu.UtilizationPercent, 0.001)
	assert.Equal(t, uint64(2048*1024*1024), gpu.MemoryUsedBytes)
	assert.Equal(t, uint64(8192*1024*1024), gpu.MemoryTotalBytes)
	assert.InDelta(t, 25.0, gpu.MemoryUsagePercent, 0.001)
	assert.InDelta(t, 62.0, gpu.TempCelsius, 0.001)
	assert.InDelta(t, 115.5, gpu.PowerWatts, 0.001)
}

func TestParseNvidiaCSV_FirstGPUOnMultiGPUHost(t *testing.T) {
	out := "10, 1024, 4096, 50, 75\n90, 3072, 4096, 80, 250\n"
	gpu, ok := parseNvidiaCSV(out)
	require.True(t, ok)
	assert.InDelta(t, 10.0, gpu.UtilizationPercent, 0.001)
	assert.Equal(t, uint64(1024*1024*1024), gpu.MemoryUsedBytes)
}

func TestParseNvidiaCSV_NAFieldsDefaultToZero(t *testing.T) {
	gpu, ok := parseNvidiaCSV("[N/A], 512, 2048, [N/A], [N/A]\n")
	require.True(t, ok)
	assert.Zero(t, gpu.UtilizationPercent)
	assert.Zero(t, gpu.TempCelsius)
	assert.Zero(t, gpu.PowerWatts)
	assert.InDelta(t, 25.0, gpu.MemoryUsagePercent, 0.001)
}

func TestParseNvidiaCSV_Malformed(t *testing.T) {
	for name, out := range map[string]string{
		"empty":      "",
		"whitespace": "  \n",
		"short row":  "45, 2048, 8192\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, ok := parseNvidiaCSV(out)
			assert.False(t, ok)
		})
	}
}

func TestNvidiaSMI_MissingBinaryIsUnavailable(t *testing.T) {
	cfg := config.Default()
	cfg.Exporters.NvidiaSMI.NvidiaSMIPath = "/nonexistent/nvidia-smi"

	e := NewNvidiaSMI(zap.NewNop())
	frag, ok := e.Collect(context.Background(), cfg)
	assert.False(t, ok)
	assert.Nil(t, frag)
}

func TestNvidiaSMI_DisabledByConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Exporters.NvidiaSMI.Enabled = false
	assert.False(t, NewNvidiaSMI(zap.NewNop()).Enabled(cfg))
}
