package virtio

import (
	"context"
	"testing"
	"unsafe"

	"golang.org/x/sync/semaphore"
)

func newTestSemaphore() *semaphore.Weighted {
	return semaphore.NewWeighted(int64(queueSize / 3))
}

// fakeDevice allocates a byte-backed splitQueue and a BlockDevice wired
// directly to it, bypassing the MMIO register handshake in
// newBlockDevice so descriptor chaining logic can be exercised without a
// real device window.
func fakeDevice(t *testing.T) *BlockDevice {
	t.Helper()
	backing := make([]byte, unsafe.Sizeof(splitQueue{})+4096)
	qpa := (uintptr(unsafe.Pointer(&backing[0])) + 4095) &^ 4095

	regs := make([]byte, 0x100)
	addr := DeviceAddress{base: uintptr(unsafe.Pointer(&regs[0]))}

	return &BlockDevice{
		addr:     addr,
		queue:    (*splitQueue)(unsafe.Pointer(qpa)),
		inflight: make(map[uint16]*inflight),
		sem:      newTestSemaphore(),
	}
}

func TestDescriptorChainHeadTracking(t *testing.T) {
	bd := fakeDevice(t)
	buf := make([]byte, sectorSize)

	req1, err := bd.NewRequest(context.Background(), buf, 0, false)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	if len(bd.inflight) != 1 {
		t.Fatalf("expected 1 inflight request, got %d", len(bd.inflight))
	}

	// Three descriptors per request (header/data/status): driverIdx
	// should have advanced by exactly 3.
	if bd.driverIdx != 3 {
		t.Fatalf("driverIdx after one request = %d, want 3", bd.driverIdx)
	}

	req2, err := bd.NewRequest(context.Background(), buf, sectorSize, true)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if bd.driverIdx != 6 {
		t.Fatalf("driverIdx after two requests = %d, want 6", bd.driverIdx)
	}
	if len(bd.inflight) != 2 {
		t.Fatalf("expected 2 inflight requests, got %d", len(bd.inflight))
	}

	bd.Release(req1)
	if len(bd.inflight) != 1 {
		t.Fatalf("expected 1 inflight request after release, got %d", len(bd.inflight))
	}
	bd.Release(req2)
	if len(bd.inflight) != 0 {
		t.Fatalf("expected 0 inflight requests after releasing both, got %d", len(bd.inflight))
	}
}

func TestFinishedObservesStatusTransition(t *testing.T) {
	req := &BlockRequest{Status: statusPending}
	if req.Finished() {
		t.Fatal("fresh request should not be finished")
	}
	req.Status = 0
	if !req.Finished() {
		t.Fatal("request with status != 0x7F should be finished")
	}
}

func TestAvailableRingAdvancesPastHeadIndex(t *testing.T) {
	bd := fakeDevice(t)
	buf := make([]byte, sectorSize)
	if _, err := bd.NewRequest(context.Background(), buf, 0, false); err != nil {
		t.Fatal(err)
	}
	if bd.queue.Available.Idx != 1 {
		t.Fatalf("available.idx = %d, want 1", bd.queue.Available.Idx)
	}
	if bd.queue.Available.Ring[0] != 0 {
		t.Fatalf("available.ring[0] = %d, want 0 (head index of first request)", bd.queue.Available.Ring[0])
	}
}
