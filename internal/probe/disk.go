// Disk probe — per-mountpoint usage for real mounted filesystems.
package probe

import (
	"context"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"go.uber.org/zap"

	"github.com/kioskops/collector-agent/internal/models"
)

// pseudoFSTypes contains filesystem types excluded from disk metrics:
// virtual/system filesystems and network/remote filesystems that don't
// represent local storage devices.
var pseudoFSTypes = map[string]bool{
	// Virtual / system filesystems
	"devfs":       true,
	"autofs":      true,
	"nullfs":      true,
	"tmpfs":       true,
	"sysfs":       true,
	"proc":        true,
	"procfs":      true,
	"devtmpfs":    true,
	"cgroup":      true,
	"cgroup2":     true,
	"overlay":     true,
	"squashfs":    true,
	"nsfs":        true,
	"pstore":      true,
	"debugfs":     true,
	"tracefs":     true,
	"securityfs":  true,
	"configfs":    true,
	"fusectl":     true,
	"mqueue":      true,
	"hugetlbfs":   true,
	"binfmt_misc": true,
	"efivarfs":    true,
	"bpf":         true,
	"ramfs":       true,

	// Network / remote filesystems
	"nfs":        true,
	"nfs4":       true,
	"cifs":       true,
	"smbfs":      true,
	"fuse.sshfs": true,
	"9p":         true,
	"glusterfs":  true,
	"lustre":     true,
	"ceph":       true,
	"fuse.ceph":  true,
}

// systemMountPrefixes are OS-internal mount paths excluded from metrics.
var systemMountPrefixes = []string{"/sys", "/proc", "/dev", "/run", "/snap", "/System/Volumes/"}

// Disk collects filesystem usage metrics per mount point.
type Disk struct {
	logger *zap.Logger
}

// NewDisk creates a disk probe.
func NewDisk(logger *zap.Logger) *Disk {
	return &Disk{logger: logger}
}

// Name returns the probe identifier.
func (p *Disk) Name() string { return "disk" }

// Collect gathers usage for all real mounted partitions, sorted by
// mountpoint. Inaccessible partitions are skipped.
func (p *Disk) Collect(ctx context.Context) (*models.Fragment, bool) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		p.logger.Warn("disk partitions probe failed", zap.Error(err))
		return nil, false
	}

	var disks []models.DiskMetrics
	for _, part := range partitions {
		if pseudoFSTypes[part.Fstype] || isSystemMount(part.Mountpoint) {
			p.logger.Debug("skipping pseudo/system filesystem",
				zap.String("mount", part.Mountpoint),
				zap.String("fstype", part.Fstype))
			continue
		}

		usage, err := disk.UsageWithContext(ctx, part.Mountpoint)
		if err != nil || usage.Total == 0 {
			continue
		}

		d := models.DiskMetrics{
			Mountpoint:     part.Mountpoint,
			Device:         part.Device,
			TotalBytes:     usage.Total,
			AvailableBytes: usage.Free,
		}
		d.UsagePercent = models.UsagePercent(d.TotalBytes, d.AvailableBytes)
		disks = append(disks, d)
	}

	sort.Slice(disks, func(i, j int) bool { return disks[i].Mountpoint < disks[j].Mountpoint })
	return &models.Fragment{Disks: disks}, true
}

func isSystemMount(mount string) bool {
	for _, prefix := range systemMountPrefixes {
		if strings.HasPrefix(mount, prefix) {
			return true
		}
	}
	return false
}
