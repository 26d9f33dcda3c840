// Package plic wraps the platform-level interrupt controller's MMIO
// register window: priority, enable, threshold, and claim/complete.
package plic

import (
	"sync/atomic"
	"unsafe"
)

/// Base is the PLIC's documented MMIO base address (RISC-V "virt" board).
const Base uintptr = 0x0C00_0000

const (
	priorityOffset  = 0x0
	enableOffset    = 0x2000
	thresholdOffset = 0x20_0000
	claimOffset     = 0x20_0004
)

/// WindowSize is the span of the PLIC register window boot.Init identity
/// maps: past claimOffset, rounded up to a page.
const WindowSize = 0x20_1000

func reg32(offset uintptr) *uint32 {
	return (*uint32)(unsafe.Pointer(Base + offset))
}

// MMIO registers are never safe to let the compiler reorder or elide;
// these two helpers are the *only* place that touches the PLIC's memory,
// per the base spec's "Unsafe MMIO" design note, and every access here is
// a sync/atomic (volatile-equivalent) load/store via a pointer into the device's
// physical window (assumed identity-mapped, per boot.Init's RangeMap
// call over the PLIC window).

func readVolatile(addr *uint32) uint32 {
	return atomic.LoadUint32(addr)
}

func writeVolatile(addr *uint32, v uint32) {
	atomic.StoreUint32(addr, v)
}

/// SetPriority sets interrupt source id's priority (0..=7).
func SetPriority(id int, priority uint32) {
	if priority > 7 {
		panic("plic: priority out of range")
	}
	writeVolatile(reg32(priorityOffset+uintptr(id)*4), priority)
}

/// Enable turns on delivery of interrupt source id.
func Enable(id int) {
	addr := reg32(enableOffset + uintptr(id/32)*4)
	bit := uint32(1) << uint(id%32)
	writeVolatile(addr, readVolatile(addr)|bit)
}

/// SetThreshold sets the minimum priority (0..=7) that reaches this hart.
func SetThreshold(threshold uint32) {
	if threshold > 7 {
		panic("plic: threshold out of range")
	}
	writeVolatile(reg32(thresholdOffset), threshold)
}

/// Next claims the highest-priority pending interrupt, returning
/// (id, true), or (0, false) if none is pending.
func Next() (int, bool) {
	id := readVolatile(reg32(claimOffset))
	if id == 0 {
		return 0, false
	}
	return int(id), true
}

/// Complete signals completion of handling interrupt source id.
func Complete(id int) {
	writeVolatile(reg32(claimOffset), uint32(id))
}
