package boot

import (
	"unsafe"

	"riscvkernel/internal/arch"
	"riscvkernel/trap"
	"riscvkernel/uart"
)

// CLINT register addresses (RISC-V "virt" board, base spec §6).
const (
	clintMtimecmp uintptr = 0x0200_4000
	clintMtime    uintptr = 0x0200_BFF8
)

// readCode reads n bytes at a kernel-identity-mapped epc for trap's
// fatal-fault disassembly path; it returns nil rather than faulting
// again if epc falls outside the mapped kernel range.
func readCode(epc uint64, n int) []byte {
	if epc < uint64(physMemLow) || epc+uint64(n) > uint64(physMemHigh) {
		return nil
	}
	b := (*[16]byte)(unsafe.Pointer(uintptr(epc)))
	return b[:n:n]
}

// physMemLow/physMemHigh bound the range readCode considers safe to
// dereference; boot.Init narrows them once the heap extent is known.
var physMemLow, physMemHigh uintptr

func scheduleTimer(cpu arch.CPU) {
	mtime := *(*uint64)(unsafe.Pointer(clintMtime))
	*(*uint64)(unsafe.Pointer(clintMtimecmp)) = mtime + trap.NextTimerDelta()
}

// virtioIRQ is invoked when the PLIC claims an external interrupt in the
// Virtio device ID range. This driver's completion path is a synchronous
// poll of BlockRequest.Status (base spec §5's single byte synchronization
// point), so the interrupt itself carries no additional work — it is
// only acknowledged via the PLIC claim/complete protocol in trap.Dispatch.
func virtioIRQ(id int) {}

// uartIRQ drains pending received bytes off the line status register.
// Text I/O (echo, line discipline) is out of scope (base spec §1); this
// only prevents the receive FIFO from backing up.
func uartIRQ() {
	for {
		if _, ok := uart.ReadByte(); !ok {
			return
		}
	}
}
