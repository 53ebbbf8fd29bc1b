// Memory probe — total and available RAM counters.
package probe

import (
	"context"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/kioskops/collector-agent/internal/models"
)

// Memory collects RAM metrics via gopsutil.
type Memory struct {
	logger *zap.Logger
}

// NewMemory creates a memory probe.
func NewMemory(logger *zap.Logger) *Memory {
	return &Memory{logger: logger}
}

// Name returns the probe identifier.
func (p *Memory) Name() string { return "memory" }

// Collect gathers total and available bytes with the derived usage percent.
func (p *Memory) Collect(ctx context.Context) (*models.Fragment, bool) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		p.logger.Warn("memory probe failed", zap.Error(err))
		return nil, false
	}

	result := &models.MemoryMetrics{
		TotalBytes:     v.Total,
		AvailableBytes: v.Available,
	}
	result.UsagePercent = models.UsagePercent(result.TotalBytes, result.AvailableBytes)

	return &models.Fragment{Memory: result}, true
}
