package virtio

import "unsafe"

/// queueSize is the split-queue descriptor count this driver builds (Q in
/// the data model).
const queueSize = 128

// Descriptor flag bits.
const (
	descFNext  = 1
	descFWrite = 2
)

/// descriptor is one Virtio split-queue descriptor table entry.
type descriptor struct {
	Addr  uint64
	Len   uint32
	Flags uint16
	Next  uint16
}

/// availRing is the driver->device available ring.
type availRing struct {
	Flags uint16
	Idx   uint16
	Ring  [queueSize]uint16
	Event uint16
}

/// usedElem/usedRing is the device->driver used ring.
type usedElem struct {
	ID  uint32
	Len uint32
}

type usedRing struct {
	Flags uint16
	Idx   uint16
	Ring  [queueSize]usedElem
	Event uint16
}

// splitQueuePadding rounds the available ring up to the next page
// boundary so the used ring starts on its own page, matching the
// original driver's layout.
const splitQueuePadding = 4096 - (unsafe.Sizeof(descriptor{})*queueSize+unsafe.Sizeof(availRing{}))%4096

/// splitQueue is the single contiguous, page-aligned region backing a
/// block device's queue 0: descriptor table, available ring, padding,
/// used ring, in that order (data model §3).
type splitQueue struct {
	Descriptors [queueSize]descriptor
	Available   availRing
	_pad        [splitQueuePadding]byte
	Used        usedRing
}
