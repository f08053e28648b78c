package device

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"
)

// Volume describes a mounted filesystem a copy can target.
type Volume struct {
	MountPath  string
	Device     string
	Label      string
	FSType     string
	TotalBytes uint64
	FreeBytes  uint64
	Removable  bool
}

// removableMountPrefixes are where desktop automounters and manual mounts
// place removable media.
var removableMountPrefixes = []string{"/media/", "/run/media/", "/mnt/"}

// removableFSTypes are filesystems typical of SD cards and USB drives.
var removableFSTypes = map[string]bool{
	"vfat":  true,
	"exfat": true,
	"fat32": true,
	"ntfs":  true,
}

type partitionsFunc func(ctx context.Context, all bool) ([]disk.PartitionStat, error)
type usageFunc func(ctx context.Context, path string) (*disk.UsageStat, error)

// Lister enumerates mounted volumes. The partition and usage probes are
// injectable for tests.
type Lister struct {
	partitions partitionsFunc
	usage      usageFunc
}

// NewLister returns a Lister backed by the host's mount table.
func NewLister() *Lister {
	return &Lister{
		partitions: disk.PartitionsWithContext,
		usage:      disk.UsageWithContext,
	}
}

// NewListerWith builds a Lister from explicit probes.
func NewListerWith(partitions partitionsFunc, usage usageFunc) *Lister {
	return &Lister{partitions: partitions, usage: usage}
}

// List returns candidate volumes sorted by mount path. Only removable-looking
// mounts are returned; system mounts are skipped.
func (l *Lister) List(ctx context.Context) ([]Volume, error) {
	parts, err := l.partitions(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("enumerate partitions: %w", err)
	}

	var volumes []Volume
	for _, p := range parts {
		if !looksRemovable(p.Mountpoint, p.Fstype) {
			continue
		}
		vol := Volume{
			MountPath: p.Mountpoint,
			Device:    p.Device,
			Label:     volumeLabel(p.Mountpoint),
			FSType:    p.Fstype,
			Removable: true,
		}
		if usage, err := l.usage(ctx, p.Mountpoint); err == nil && usage != nil {
			vol.TotalBytes = usage.Total
			vol.FreeBytes = usage.Free
		}
		volumes = append(volumes, vol)
	}

	sort.Slice(volumes, func(i, j int) bool { return volumes[i].MountPath < volumes[j].MountPath })
	return volumes, nil
}

// Stat resolves a single mount path into a Volume regardless of whether it
// looks removable, for explicit copy targets.
func (l *Lister) Stat(ctx context.Context, mountPath string) (Volume, error) {
	usage, err := l.usage(ctx, mountPath)
	if err != nil {
		return Volume{}, fmt.Errorf("stat volume %s: %w", mountPath, err)
	}
	vol := Volume{
		MountPath:  mountPath,
		Label:      volumeLabel(mountPath),
		TotalBytes: usage.Total,
		FreeBytes:  usage.Free,
		Removable:  looksRemovable(mountPath, ""),
	}
	if parts, err := l.partitions(ctx, false); err == nil {
		for _, p := range parts {
			if p.Mountpoint == mountPath {
				vol.Device = p.Device
				vol.FSType = p.Fstype
				break
			}
		}
	}
	return vol, nil
}

func looksRemovable(mountPath, fstype string) bool {
	for _, prefix := range removableMountPrefixes {
		if strings.HasPrefix(mountPath, prefix) {
			return true
		}
	}
	return removableFSTypes[strings.ToLower(fstype)]
}

func volumeLabel(mountPath string) string {
	trimmed := strings.TrimRight(mountPath, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}
