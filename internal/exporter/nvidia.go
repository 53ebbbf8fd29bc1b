// NVIDIA GPU reader — invokes nvidia-smi with a fixed CSV query and parses
// the first GPU's row. Works with all NVIDIA GPU families, unlike DCGM which
// only covers datacenter parts. Missing binary or a failed run is the normal
// case on non-GPU hosts and is reported quietly as unavailable.
package exporter

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kioskops/collector-agent/internal/config"
	"github.com/kioskops/collector-agent/internal/models"
)

// nvidiaQueryFields is the fixed --query-gpu field set, in output order.
const nvidiaQueryFields = "utilization.gpu,memory.used,memory.total,temperature.gpu,power.draw"

// nvidiaSMITimeout bounds the subprocess so a wedged driver cannot hang a tick.
const nvidiaSMITimeout = 10 * time.Second

// NvidiaSMI collects GPU metrics by running the nvidia-smi binary.
// On multi-GPU hosts only the first GPU (index 0) is reported.
type NvidiaSMI struct {
	logger *zap.Logger
}

// NewNvidiaSMI creates an nvidia-smi exporter.
func NewNvidiaSMI(logger *zap.Logger) *NvidiaSMI {
	return &NvidiaSMI{logger: logger}
}

// Name returns the exporter identifier.
func (e *NvidiaSMI) Name() string { return "nvidia_smi" }

// Enabled reports whether GPU collection is configured on.
func (e *NvidiaSMI) Enabled(cfg *config.Config) bool {
	return cfg.Exporters.NvidiaSMI.Enabled
}

// Collect runs nvidia-smi and parses its CSV output into a GPU fragment.
func (e *NvidiaSMI) Collect(ctx context.Context, cfg *config.Config) (*models.Fragment, bool) {
	binary, err := e.resolveBinary(cfg)
	if err != nil {
		e.logger.Debug("nvidia-smi not found", zap.Error(err))
		return nil, false
	}

	runCtx, cancel := context.WithTimeout(ctx, nvidiaSMITimeout)
	defer cancel()

	out, err := exec.CommandContext(runCtx, binary,
		"--query-gpu="+nvidiaQueryFields,
		"--format=csv,noheader,nounits",
	).Output()
	if err != nil {
		e.logger.Info("nvidia-smi failed", zap.String("binary", binary), zap.Error(err))
		return nil, false
	}

	gpu, ok := parseNvidiaCSV(string(out))
	if !ok {
		e.logger.Warn("unexpected nvidia-smi output", zap.String("binary", binary))
		return nil, false
	}
	return &models.Fragment{GPU: gpu}, true
}

// resolveBinary returns the configured nvidia-smi path or a PATH lookup.
func (e *NvidiaSMI) resolveBinary(cfg *config.Config) (string, error) {
	if path := cfg.Exporters.NvidiaSMI.NvidiaSMIPath; path != "" {
		return path, nil
	}
	return exec.LookPath("nvidia-smi")
}

// parseNvidiaCSV parses the first row of nvidia-smi CSV output.
// Fields reading [N/A] default to 0; memory comes back in MiB.
func parseNvidiaCSV(out string) (*models.GpuMetrics, bool) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, false
	}

	fields := strings.Split(lines[0], ",")
	if len(fields) < 5 {
		return nil, false
	}

	utilization := csvValue(fields[0])
	memUsedMiB := csvValue(fields[1])
	memTotalMiB := csvValue(fields[2])
	temperature := csvValue(fields[3])
	power := csvValue(fields[4])

	gpu := &models.GpuMetrics{
		UtilizationPercent: utilization,
		MemoryUsedBytes:    uint64(memUsedMiB * 1024 * 1024),
		MemoryTotalBytes:   uint64(memTotalMiB * 1024 * 1024),
		TempCelsius:        temperature,
		PowerWatts:         power,
	}
	if gpu.MemoryTotalBytes > 0 {
		gpu.MemoryUsagePercent = float64(gpu.MemoryUsedBytes) / float64(gpu.MemoryTotalBytes) * 100.0
	}
	return gpu, true
}

// csvValue parses one nvidia-smi field, treating [N/A] and garbage as 0.
func csvValue(field string) float64 {
	field = strings.TrimSpace(field)
	if field == "" || field == "[N/A]" || field == "N/A" {
		return 0
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0
	}
	return v
}
