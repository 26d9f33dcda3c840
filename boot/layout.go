package boot

import (
	_ "unsafe" // for go:linkname

	"riscvkernel/dtb"
	"riscvkernel/kerrors"
	"riscvkernel/mem"
	"riscvkernel/plic"
	"riscvkernel/shutdown"
	"riscvkernel/uart"
	"riscvkernel/vm"
)

// Kernel image boundaries, provided by the linker script this kernel is
// built with (extending the teacher's single __end symbol to every
// region the boot-time identity map needs its own permission bits for).
//
//go:linkname kernelTextStart kernelTextStart
var kernelTextStart uintptr

//go:linkname kernelTextEnd kernelTextEnd
var kernelTextEnd uintptr

//go:linkname kernelRodataStart kernelRodataStart
var kernelRodataStart uintptr

//go:linkname kernelRodataEnd kernelRodataEnd
var kernelRodataEnd uintptr

//go:linkname kernelDataStart kernelDataStart
var kernelDataStart uintptr

//go:linkname kernelBSSEnd kernelBSSEnd
var kernelBSSEnd uintptr

//go:linkname kernelStackBottom kernelStackBottom
var kernelStackBottom uintptr

//go:linkname kernelStackTop kernelStackTop
var kernelStackTop uintptr

// identityMapKernel builds the one-time boot identity map: every region a
// trap handler, the PFA, or a device driver dereferences directly while
// running with paging on. Order matters — the PFA heap RangeMap call
// below is RW over the whole RAM range (it has to be, since PFA hands
// that memory out for anything), so the narrower TEXT/RODATA mappings
// are applied afterward to tighten their permissions back down; Map
// silently overwrites whatever PTE was there before.
func identityMapKernel(root *vm.MapTable, info dtb.MemInfo) error {
	if !root.RangeMap(mem.Pa_t(info.Base), mem.Pa_t(info.Base+info.Size), vm.PteR|vm.PteW) {
		return kerrors.ENOMEM
	}

	type region struct {
		start, end uintptr
		bits       vm.PTEBits
	}
	regions := []region{
		{kernelTextStart, kernelTextEnd, vm.PteR | vm.PteX},
		{kernelRodataStart, kernelRodataEnd, vm.PteR},
		{kernelDataStart, kernelBSSEnd, vm.PteR | vm.PteW},
		{kernelStackBottom, kernelStackTop, vm.PteR | vm.PteW},
		{clintMtime, clintMtime + 8, vm.PteR},
		{clintMtimecmp, clintMtimecmp + 8, vm.PteR | vm.PteW},
		{uart.BaseAddress, uart.BaseAddress + uart.WindowSize, vm.PteR | vm.PteW},
		{shutdown.MailboxAddress, shutdown.MailboxAddress + shutdown.WindowSize, vm.PteR | vm.PteW},
		{plic.Base, plic.Base + plic.WindowSize, vm.PteR | vm.PteW},
	}
	for _, r := range regions {
		if !root.RangeMap(mem.Pa_t(r.start), mem.Pa_t(r.end), r.bits) {
			return kerrors.ENOMEM
		}
	}

	// The table's own entries array. Once satp is live, a later walk
	// (VirtToPhys, or the allocator growing a branch table) dereferences
	// this page through translated addressing too; omitting this self-map
	// is the classic way to build a page table that can never find itself.
	if !root.RangeMap(root.PA(), root.PA()+mem.PGSIZE, vm.PteR|vm.PteW) {
		return kerrors.ENOMEM
	}

	return nil
}
