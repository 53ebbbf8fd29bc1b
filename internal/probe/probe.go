// Package probe implements local OS metric probes backed by gopsutil.
// Probes need no external process or network dependency; a failed probe
// reports unavailable and the snapshot proceeds without it.
package probe

import (
	"context"

	"github.com/kioskops/collector-agent/internal/models"
)

// Probe is a local metric source.
type Probe interface {
	// Name returns the unique identifier for this probe.
	Name() string

	// Collect gathers a metrics fragment. The second return value is false
	// when the probe could not produce data.
	Collect(ctx context.Context) (*models.Fragment, bool)
}
