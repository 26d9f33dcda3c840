// Package mem implements the physical frame allocator (PFA): a bitmap
// style first-fit allocator carved directly out of a linker-provided heap
// range, with no coalescing and no suspension.
package mem

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/google/pprof/profile"
)

/// PGSHIFT/PGSIZE/PGMASK describe the fixed 4 KiB frame geometry.
const (
	PGSHIFT = 12
	PGSIZE  = 1 << PGSHIFT
	PGMASK  = PGSIZE - 1
)

/// Pa_t is a physical address.
type Pa_t uintptr

/// descriptor bits. A frame with both bits clear is free.
const (
	dUSED uint8 = 1 << 0
	dLAST uint8 = 1 << 1
)

/// Stats exposes a lock-free view of allocator state, read without
/// acquiring Allocator's mutex, mirroring limits.Sysatomic_t.
type Stats struct {
	FreeFrames int64
}

/// Allocator is one kernel's physical frame allocator. It owns the
/// descriptor byte array and the usable frame pool that follows it.
type Allocator struct {
	sync.Mutex

	heapStart Pa_t
	heapEnd   Pa_t
	descs     []uint8 /// one byte per usable frame; a Go slice, not stored in the reserved R frames
	allocBase Pa_t    /// first usable frame, page-aligned

	stats Stats
}

/// Init carves [heapStart, heapEnd) into a descriptor region and a usable
/// pool: the first R = ceil(N/(P+1)) frames are reserved and never handed
/// out, and allocation starts after them. The descriptor bytes (one per
/// usable frame) are kept in a Go slice; they are not written into the
/// reserved frames.
func (a *Allocator) Init(heapStart, heapEnd Pa_t) {
	if heapEnd <= heapStart {
		panic("bad heap range")
	}
	a.Lock()
	defer a.Unlock()

	a.heapStart = heapStart
	a.heapEnd = heapEnd
	n := int((heapEnd - heapStart) / PGSIZE)
	r := (n + PGSIZE) / (PGSIZE + 1)
	if r < 1 {
		r = 1
	}
	usable := n - r
	if usable <= 0 {
		panic("heap too small for its own descriptor table")
	}
	a.descs = make([]uint8, usable)
	a.allocBase = heapStart + Pa_t(r*PGSIZE)
	atomic.StoreInt64(&a.stats.FreeFrames, int64(usable))
}

/// PagesNeeded returns ((roundup(end)-roundup(start))/P)+1, the data
/// model's pages_needed formula. The result is never less than the number
/// of P-sized pages [start, end) touches and can be one more (for
/// example, PagesNeeded(0, P) is 2).
func PagesNeeded(start, end Pa_t) int {
	if end < start {
		panic("bad range")
	}
	ru := func(x Pa_t) Pa_t { return (x + PGMASK) &^ PGMASK }
	return int((ru(end)-ru(start))/PGSIZE) + 1
}

/// Alloc performs a first-fit linear scan for n consecutive free
/// descriptors, marking [first, first+n) USED with LAST set on the final
/// index. It returns (0, false) if no run of that length is free —
/// exhaustion is reported, never panicked, so callers can propagate OOM.
func (a *Allocator) Alloc(n int) (Pa_t, bool) {
	if n <= 0 {
		panic("bad alloc size")
	}
	a.Lock()
	defer a.Unlock()

	run := 0
	start := -1
	for i, d := range a.descs {
		if d == 0 {
			if run == 0 {
				start = i
			}
			run++
			if run == n {
				for j := start; j < start+n-1; j++ {
					a.descs[j] = dUSED
				}
				a.descs[start+n-1] = dUSED | dLAST
				atomic.AddInt64(&a.stats.FreeFrames, -int64(n))
				return a.allocBase + Pa_t(start*PGSIZE), true
			}
			continue
		}
		run = 0
		start = -1
	}
	return 0, false
}

/// Zalloc allocates n frames and zeroes them before returning.
func (a *Allocator) Zalloc(n int) (Pa_t, bool) {
	pa, ok := a.Alloc(n)
	if !ok {
		return 0, false
	}
	zeroFrames(pa, n)
	return pa, true
}

/// Dealloc frees the allocation beginning at ptr. It walks forward
/// clearing USED until the LAST-marked descriptor, asserting that the
/// terminal descriptor actually carries LAST — this is what catches
/// double-free and mid-run frees.
func (a *Allocator) Dealloc(ptr Pa_t) {
	a.Lock()
	defer a.Unlock()

	if ptr < a.allocBase {
		panic("dealloc: address below pool")
	}
	idx := int((ptr - a.allocBase) / PGSIZE)
	if idx >= len(a.descs) {
		panic("dealloc: address above pool")
	}
	if a.descs[idx]&dUSED == 0 {
		panic("double free")
	}
	freed := 0
	i := idx
	for {
		if i >= len(a.descs) {
			panic("dealloc: ran off end of pool without LAST")
		}
		d := a.descs[i]
		if d&dUSED == 0 {
			panic("dealloc: hole in allocation run")
		}
		last := d&dLAST != 0
		a.descs[i] = 0
		freed++
		if last {
			break
		}
		i++
	}
	atomic.AddInt64(&a.stats.FreeFrames, int64(freed))
}

/// Stat returns a snapshot of lock-free allocator counters.
func (a *Allocator) Stat() Stats {
	return Stats{FreeFrames: atomic.LoadInt64(&a.stats.FreeFrames)}
}

/// Profile renders the descriptor table as a pprof heap-style profile:
/// one sample per live allocation run, with run length (in frames) as
/// its value. It exists for cmd/pfaprofile to consume.
func (a *Allocator) Profile() *profile.Profile {
	a.Lock()
	defer a.Unlock()

	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "frames", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "frames", Unit: "count"},
		Period:     1,
	}
	run := 0
	start := -1
	for i, d := range a.descs {
		if d&dUSED != 0 {
			if run == 0 {
				start = i
			}
			run++
		}
		if d&dLAST != 0 {
			addr := a.allocBase + Pa_t(start*PGSIZE)
			p.Sample = append(p.Sample, &profile.Sample{
				Value: []int64{int64(run)},
				Label: map[string][]string{"addr": {hexAddr(addr)}},
			})
			run = 0
			start = -1
		}
	}
	return p
}

// zeroFrames zeroes n pages beginning at pa. Physical addresses are
// directly dereferenceable: before boot.Init writes satp there is no
// translation, and afterwards the whole RAM range is identity-mapped.
func zeroFrames(pa Pa_t, n int) {
	b := (*[1 << 30]byte)(unsafe.Pointer(uintptr(pa)))[: n*PGSIZE : n*PGSIZE]
	for i := range b {
		b[i] = 0
	}
}

/// Pg2bytes reinterprets a physical frame address as a PGSIZE byte slice,
/// used by callers (e.g. elf's section copy) that need a raw view of an
/// allocated frame. Mirrors mem.Pg2bytes in the teacher's package.
func Pg2bytes(pa Pa_t) *[PGSIZE]byte {
	return (*[PGSIZE]byte)(unsafe.Pointer(uintptr(pa)))
}

func hexAddr(pa Pa_t) string {
	const digits = "0123456789abcdef"
	if pa == 0 {
		return "0x0"
	}
	var buf [2 + 16]byte
	i := len(buf)
	x := uint64(pa)
	for x > 0 {
		i--
		buf[i] = digits[x&0xf]
		x >>= 4
	}
	i--
	buf[i] = 'x'
	i--
	buf[i] = '0'
	return string(buf[i:])
}
