package virtio

import (
	"context"
	"sync"
	"unsafe"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"riscvkernel/kerrors"
	"riscvkernel/mem"
)

const (
	blkTypeIn  = 0 /// read
	blkTypeOut = 1 /// write

	statusPending = 0x7F /// sentinel no device writes; completion flips it
	sectorSize    = 512
	headerSize    = 16 /// type(4) + reserved(4) + sector(8)
)

/// BlockRequest is one in-flight Virtio block request: a 16-byte header,
/// the caller's data buffer, and a one-byte status the device writes on
/// completion.
type BlockRequest struct {
	Type     uint32
	Reserved uint32
	Sector   uint64
	data     []byte
	Status   uint8
}

/// Finished reports whether the device has completed this request. The
/// status byte is the sole synchronization point (base spec §5); it must
/// be read with a volatile-equivalent load since the device writes it
/// from outside the Go memory model's view.
func (r *BlockRequest) Finished() bool {
	return *(*uint8)(unsafe.Pointer(&r.Status)) != statusPending
}

/// inflight tracks the head descriptor index of an outstanding request,
/// recorded explicitly rather than recomputed as driver_idx-3 — the base
/// spec flags that derivation as an assumption tied to exactly-3
/// descriptor chains (SPEC_FULL.md §9 decision).
type inflight struct {
	head uint16
	req  *BlockRequest
}

/// BlockDevice is a discovered, initialized Virtio block device.
type BlockDevice struct {
	sync.Mutex

	addr      DeviceAddress
	queue     *splitQueue
	driverIdx uint16
	inflight  map[uint16]*inflight

	sem *semaphore.Weighted /// bounds outstanding request chains
}

/// newBlockDevice runs the full init handshake (§4.5 steps 2-7) against
/// addr, which must already have passed DeviceAddress.valid() and report
/// DeviceId == 2.
func newBlockDevice(addr DeviceAddress, a *mem.Allocator) (*BlockDevice, error) {
	addr.writeReg(regStatus, 0)
	addr.writeReg(regStatus, statusAcknowledge|statusDriver)

	features := addr.readReg(regHostFeatures)
	features &^= blkFeatureReadOnly
	addr.writeReg(regGuestFeatures, features)
	addr.writeReg(regStatus, statusAcknowledge|statusDriver|statusFeaturesOK)
	if addr.readReg(regStatus)&statusFeaturesOK == 0 {
		return nil, kerrors.EINITIALIZATION
	}

	addr.writeReg(regQueueSel, 0)
	_ = addr.readReg(regQueueNumMax) // must be >= queueSize; not enforced further here
	addr.writeReg(regQueueNum, queueSize)
	addr.writeReg(regGuestPageSize, mem.PGSIZE)

	pages := (int(unsafe.Sizeof(splitQueue{})) + mem.PGSIZE - 1) / mem.PGSIZE
	qpa, ok := a.Zalloc(pages)
	if !ok {
		return nil, kerrors.ENOMEM
	}
	addr.writeReg(regQueuePFN, uint32(uint64(qpa)>>mem.PGSHIFT))

	addr.writeReg(regStatus, statusAcknowledge|statusDriver|statusFeaturesOK|statusDriverOK)

	bd := &BlockDevice{
		addr:     addr,
		queue:    (*splitQueue)(unsafe.Pointer(uintptr(qpa))),
		inflight: make(map[uint16]*inflight),
		sem:      semaphore.NewWeighted(int64(queueSize / 3)),
	}
	return bd, nil
}

/// Probe scans the fixed 8 MMIO slots, firing the register reads through
/// an errgroup (SPEC_FULL.md §2.2) rather than a serial loop, and returns
/// every slot that resolves to an initialized block device.
func Probe(ctx context.Context, a *mem.Allocator) ([]*BlockDevice, error) {
	var mu sync.Mutex
	var found []*BlockDevice

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(mmioDevs)
	for slot := 0; slot < mmioDevs; slot++ {
		slot := slot
		g.Go(func() error {
			addr := DeviceAddress{base: uintptr(mmioStart + slot*mmioStride)}
			if !addr.valid() {
				return nil
			}
			switch addr.readReg(regDeviceID) {
			case blockDeviceID:
				bd, err := newBlockDevice(addr, a)
				if err != nil {
					return nil // a slot failing init is not fatal to the probe
				}
				mu.Lock()
				found = append(found, bd)
				mu.Unlock()
			case 0:
				// reserved/no device present at this slot
			default:
				// recognized transport, unhandled device type: not fatal,
				// just not ours (base spec: UnsupportedDevice(id))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return found, nil
}

/// NewRequest submits a request: byte_offset is translated to a sector,
/// three descriptors are chained (header/data/status), and
/// available.idx/QueueNotify are published per the ordering guarantees in
/// base spec §5. The caller polls req.Finished(); buf must not be reused
/// until it returns true.
func (bd *BlockDevice) NewRequest(ctx context.Context, buf []byte, byteOffset int64, write bool) (*BlockRequest, error) {
	if err := bd.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	bd.Lock()
	defer bd.Unlock()

	req := &BlockRequest{
		Sector: uint64(byteOffset / sectorSize),
		data:   buf,
		Status: statusPending,
	}
	if write {
		req.Type = blkTypeOut
	} else {
		req.Type = blkTypeIn
	}

	head := bd.driverIdx % queueSize
	bd.queueDescriptor(unsafe.Pointer(req), headerSize, descFNext)
	dataFlags := uint16(descFNext)
	if !write {
		dataFlags |= descFWrite
	}
	bd.queueDescriptor(unsafe.Pointer(&buf[0]), len(buf), dataFlags)
	bd.queueDescriptor(unsafe.Pointer(&req.Status), 1, descFWrite)

	bd.inflight[head] = &inflight{head: head, req: req}

	bd.queue.Available.Ring[bd.queue.Available.Idx%queueSize] = head
	bd.queue.Available.Idx++
	bd.addr.writeReg(regQueueNotify, 0)

	return req, nil
}

// Release must be called once Finished() observes completion, to return
// the request's slot to the semaphore and drop its inflight bookkeeping.
func (bd *BlockDevice) Release(req *BlockRequest) {
	bd.Lock()
	for head, inf := range bd.inflight {
		if inf.req == req {
			delete(bd.inflight, head)
			break
		}
	}
	bd.Unlock()
	bd.sem.Release(1)
}

/// ReadAt implements io.ReaderAt over the block device so vfs/ext2 can
/// treat it as an ordinary backing store: it submits one request sized
/// to a whole number of sectors and polls Finished() to completion.
func (bd *BlockDevice) ReadAt(p []byte, off int64) (int, error) {
	ctx := context.Background()
	ss := int64(sectorSize)
	start := off / ss * ss
	end := (off + int64(len(p)) + ss - 1) / ss * ss
	buf := make([]byte, end-start)
	req, err := bd.NewRequest(ctx, buf, start, false)
	if err != nil {
		return 0, err
	}
	for !req.Finished() {
	}
	defer bd.Release(req)
	if req.Status != 0 {
		return 0, kerrors.EIO
	}
	copy(p, buf[off-start:])
	return len(p), nil
}

func (bd *BlockDevice) queueDescriptor(addr unsafe.Pointer, length int, flags uint16) uint16 {
	idx := bd.driverIdx % queueSize
	bd.queue.Descriptors[idx] = descriptor{
		Addr:  uint64(uintptr(addr)),
		Len:   uint32(length),
		Flags: flags,
		Next:  (bd.driverIdx + 1) % queueSize,
	}
	bd.driverIdx++
	return idx
}
