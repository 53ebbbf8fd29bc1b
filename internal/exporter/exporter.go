// Package exporter implements clients for external metric sources: a Node
// Exporter scraper and an nvidia-smi reader. Exporters degrade gracefully —
// an unreachable source reports unavailable instead of failing the snapshot.
package exporter

import (
	"context"

	"github.com/kioskops/collector-agent/internal/config"
	"github.com/kioskops/collector-agent/internal/models"
)

// Exporter is a pluggable external metric source.
type Exporter interface {
	// Name returns the unique identifier for this exporter.
	Name() string

	// Enabled reports whether this exporter should run under the given
	// configuration. Disabled exporters are skipped deterministically.
	Enabled(cfg *config.Config) bool

	// Collect gathers a metrics fragment. The second return value is false
	// when the source is unavailable; unavailability is never an error that
	// aborts the snapshot.
	Collect(ctx context.Context, cfg *config.Config) (*models.Fragment, bool)
}
