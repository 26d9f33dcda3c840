// Package syscall implements the minimal system-call dispatcher:
// SYS_WRITE and SYS_REBOOT, decoded from the trap frame's a0..a3
// registers.
package syscall

import (
	"io"
	"unsafe"

	"riscvkernel/mem"
	"riscvkernel/proc"
	"riscvkernel/shutdown"
	"riscvkernel/trap"
)

// Calling convention registers (RISC-V integer ABI): a0 is x10.
const (
	regA0 = 10
	regA1 = 11
	regA2 = 12
	regA3 = 13
)

// Supported syscall numbers.
const (
	SysWrite  = 1
	SysReboot = 48
)

const (
	rebootMagic1 = 0x13011990
	rebootMagic2 = 0xCACAFEAA
)

/// Writer is where SYS_WRITE copies bytes to; boot.Init installs the
/// UART writer here.
var Writer io.Writer = discard{}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

/// Register installs this package's Dispatch as trap's synchronous
/// ecall-from-U handler, avoiding a trap -> syscall import cycle.
func Register() {
	trap.SyscallHandler = Dispatch
}

/// Dispatch decodes a0 as the syscall code and services it against the
/// calling process's address space (currently proc.Current, per
/// SPEC_FULL.md §9's decided Open Question). Any other code is a fatal
/// programming error (base spec §4.10).
func Dispatch(frame *trap.TrapFrame) {
	code := frame.Regs[regA0]
	switch code {
	case SysWrite:
		sysWrite(frame.Regs[regA1], frame.Regs[regA2], frame.Regs[regA3])
	case SysReboot:
		sysReboot(frame.Regs[regA1], frame.Regs[regA2])
	default:
		panic("syscall: unknown code")
	}
}

// sysWrite translates the user buffer pointer through the caller's map
// table and copies len bytes to Writer. fd is not validated, matching
// the base spec's documented scope.
func sysWrite(fd, bufVirt, length uint64) {
	if proc.Current == nil {
		return
	}
	for i := uint64(0); i < length; i++ {
		pa, ok := proc.Current.Root.VirtToPhys(mem.Pa_t(bufVirt + i))
		if !ok {
			return
		}
		b := *(*byte)(unsafe.Pointer(uintptr(pa)))
		Writer.Write([]byte{b})
	}
}

func sysReboot(magic1, magic2 uint64) {
	if magic1 == rebootMagic1 && magic2 == rebootMagic2 {
		shutdown.Now()
	}
}
