// Package spool persists snapshots that could not be delivered. Each
// undelivered snapshot is written as a timestamped JSON file and replayed
// after the next successful delivery, so a flapping endpoint loses no data.
// The spool survives crashes and reboots; a size cap drops the oldest
// snapshots first.
package spool

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/kioskops/collector-agent/internal/models"
)

// DefaultDir is where the daemon spools undelivered snapshots.
const DefaultDir = "/var/lib/collector-agent/spool"

// maxSpoolBytes caps the on-disk footprint. Snapshots are small (~1 KiB),
// so this holds days of outage at the default interval.
const maxSpoolBytes = 16 << 20

// Spool is a directory of one-snapshot-per-file JSON documents.
type Spool struct {
	dir    string
	logger *zap.Logger
}

// New opens a spool at dir, creating the directory if needed.
func New(dir string, logger *zap.Logger) (*Spool, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, err
	}
	return &Spool{dir: dir, logger: logger}, nil
}

// Put stores one undelivered snapshot. When the cap is exceeded the oldest
// spooled snapshot is dropped to make room.
func (s *Spool) Put(snap *models.Snapshot) error {
	if s.size() >= maxSpoolBytes {
		s.logger.Warn("spool full, dropping oldest snapshot")
		s.dropOldest()
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	name := snap.Timestamp.UTC().Format("20060102T150405.000000000") + ".json"
	return os.WriteFile(filepath.Join(s.dir, name), data, 0640)
}

// Drain removes and returns all spooled snapshots in chronological order.
// Unreadable files are skipped; corrupted ones are deleted.
func (s *Spool) Drain() []*models.Snapshot {
	var snaps []*models.Snapshot
	for _, name := range s.files() {
		path := filepath.Join(s.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("unreadable spool file", zap.String("file", path), zap.Error(err))
			continue
		}

		var snap models.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			s.logger.Warn("removing corrupted spool file", zap.String("file", path), zap.Error(err))
			os.Remove(path)
			continue
		}

		snaps = append(snaps, &snap)
		os.Remove(path)
	}
	return snaps
}

// Count returns the number of spooled snapshots.
func (s *Spool) Count() int {
	return len(s.files())
}

// files lists spool entries sorted by name, which sorts chronologically
// because names are fixed-width UTC timestamps.
func (s *Spool) files() []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func (s *Spool) size() int64 {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}
	var total int64
	for _, e := range entries {
		if info, err := e.Info(); err == nil {
			total += info.Size()
		}
	}
	return total
}

func (s *Spool) dropOldest() {
	names := s.files()
	if len(names) == 0 {
		return
	}
	path := filepath.Join(s.dir, names[0])
	if err := os.Remove(path); err != nil {
		s.logger.Warn("could not drop oldest spool file",
			zap.String("file", path), zap.Error(err))
	}
}
