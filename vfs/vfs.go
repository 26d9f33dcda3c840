// Package vfs is the minimal mount-table shim sitting above the
// filesystem drivers: an ordered set of mount points, longest-prefix
// lookup, and a tagged filesystem-type variant.
package vfs

import (
	"io"
	"sort"
	"strings"
	"sync"

	"riscvkernel/ext2"
	"riscvkernel/kerrors"
)

// FSKind tags which filesystem backend a MountPoint resolves to.
type FSKind int

const (
	Unknown FSKind = iota
	Memory
	Ext3
)

/// FilesystemType is the tagged variant named in the data model:
/// Memory, Ext3{DeviceID, PartitionID}, or Unknown.
type FilesystemType struct {
	Kind        FSKind
	DeviceID    int
	PartitionID int
}

/// MountPoint associates a path prefix with a filesystem type.
type MountPoint struct {
	Path string
	Type FilesystemType
}

/// FileDescriptor is the result of a successful Open.
type FileDescriptor struct {
	Path    string
	FilePos int64
	EOF     bool
}

/// DeviceResolver maps a (deviceID) to the io.ReaderAt backing it; wired
/// by boot.Init once Virtio probing completes.
type DeviceResolver func(deviceID int) (io.ReaderAt, error)

/// Manager is process-wide mount-table state.
type Manager struct {
	mu          sync.Mutex
	mountPoints []MountPoint
	resolve     DeviceResolver
	readers     map[int]*ext2.Reader
}

/// NewManager constructs an empty mount table backed by resolve for
/// locating the block device behind an Ext3 mount.
func NewManager(resolve DeviceResolver) *Manager {
	return &Manager{resolve: resolve, readers: make(map[int]*ext2.Reader)}
}

/// PushMountPoint inserts mp and keeps the table sorted ascending by
/// path, matching the original's push_mount_point.
func (m *Manager) PushMountPoint(mp MountPoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mountPoints = append(m.mountPoints, mp)
	sort.Slice(m.mountPoints, func(i, j int) bool {
		return m.mountPoints[i].Path < m.mountPoints[j].Path
	})
}

// getMountPoint finds the longest prefix of path present in the table,
// mirroring the original's rfind-based longest-match-by-last-occurrence
// lookup.
func (m *Manager) getMountPoint(path string) (MountPoint, bool) {
	best := -1
	var bestMP MountPoint
	for _, mp := range m.mountPoints {
		if strings.HasPrefix(path, mp.Path) && len(mp.Path) > best {
			best = len(mp.Path)
			bestMP = mp
		}
	}
	if best < 0 {
		return MountPoint{}, false
	}
	return bestMP, true
}

/// Open resolves path against the mount table and dispatches to the
/// backing filesystem driver; only Ext3 is implemented, Memory and
/// Unknown fail explicitly rather than silently (base spec §9).
func (m *Manager) Open(path string) (*FileDescriptor, error) {
	mp, ok := m.getMountPoint(path)
	if !ok {
		return nil, kerrors.EFILENOTEXISTS
	}
	switch mp.Type.Kind {
	case Ext3:
		r, err := m.ext2Reader(mp.Type.DeviceID, mp.Type.PartitionID)
		if err != nil {
			return nil, err
		}
		rel := strings.TrimPrefix(path, mp.Path)
		if _, err := r.Stat(rel); err != nil {
			return nil, err
		}
		return &FileDescriptor{Path: path}, nil
	case Memory:
		return nil, kerrors.EFILENOTEXISTS
	default:
		return nil, kerrors.EFILENOTEXISTS
	}
}

/// Reader returns the underlying ext2.Reader for an Ext3-mounted path,
/// used by ReadFile/ListDir callers that already resolved a mount.
func (m *Manager) Reader(path string) (*ext2.Reader, string, error) {
	mp, ok := m.getMountPoint(path)
	if !ok || mp.Type.Kind != Ext3 {
		return nil, "", kerrors.EFILENOTEXISTS
	}
	r, err := m.ext2Reader(mp.Type.DeviceID, mp.Type.PartitionID)
	if err != nil {
		return nil, "", err
	}
	return r, strings.TrimPrefix(path, mp.Path), nil
}

func (m *Manager) ext2Reader(deviceID, partitionID int) (*ext2.Reader, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.readers[deviceID]; ok {
		return r, nil
	}
	dev, err := m.resolve(deviceID)
	if err != nil {
		return nil, err
	}
	r, err := ext2.Open(dev)
	if err != nil {
		return nil, err
	}
	m.readers[deviceID] = r
	return r, nil
}
