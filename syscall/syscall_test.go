package syscall

import (
	"bytes"
	"testing"
	"unsafe"

	"riscvkernel/mem"
	"riscvkernel/proc"
	"riscvkernel/trap"
	"riscvkernel/vm"
)

func newAllocator(t *testing.T, frames int) *mem.Allocator {
	t.Helper()
	n := frames + frames/mem.PGSIZE + 8
	backing := make([]byte, (n+1)*mem.PGSIZE)
	base := mem.Pa_t(uintptr(unsafe.Pointer(&backing[0])))
	a := &mem.Allocator{}
	a.Init(base, base+mem.Pa_t(n*mem.PGSIZE))
	return a
}

// TestSysWriteEmitsExactBytes covers the concrete scenario of a user
// process issuing SYS_WRITE against a 2-byte "Hi" buffer: exactly those
// two bytes, in order, must reach the installed Writer.
func TestSysWriteEmitsExactBytes(t *testing.T) {
	a := newAllocator(t, 16)
	root := vm.New(a)

	bufPhys, ok := a.Zalloc(1)
	if !ok {
		t.Fatal("alloc buffer page")
	}
	copy(mem.Pg2bytes(bufPhys)[:], []byte("Hi"))
	if !root.Map(bufPhys, bufPhys, vm.PteU|vm.PteR|vm.PteW, 0) {
		t.Fatal("identity-map buffer page")
	}

	proc.Current = &proc.Process{Root: root}
	defer func() { proc.Current = nil }()

	var out bytes.Buffer
	Writer = &out

	frame := &trap.TrapFrame{}
	frame.Regs[regA0] = SysWrite
	frame.Regs[regA1] = 0 // fd, unvalidated
	frame.Regs[regA2] = uint64(bufPhys)
	frame.Regs[regA3] = 2

	Dispatch(frame)

	if got := out.String(); got != "Hi" {
		t.Fatalf("wrote %q, want %q", got, "Hi")
	}
}

// TestSysRebootWrongMagicIsNoop covers the paired concrete scenarios:
// the correct magic pair halts (observed indirectly, since shutdown.Now
// never returns on real hardware — here we only check that a wrong pair
// is a no-op and does not panic or otherwise disturb the dispatcher).
func TestSysRebootWrongMagicIsNoop(t *testing.T) {
	frame := &trap.TrapFrame{}
	frame.Regs[regA0] = SysReboot
	frame.Regs[regA1] = 1
	frame.Regs[regA2] = 2

	Dispatch(frame) // must return, not call shutdown.Now
}

func TestDispatchPanicsOnUnknownCode(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown syscall code")
		}
	}()
	frame := &trap.TrapFrame{}
	frame.Regs[regA0] = 0xffff
	Dispatch(frame)
}
