// Package proc implements the user-mode process model: address-space
// construction, stack setup, and ownership-respecting teardown.
package proc

import (
	"sync/atomic"

	"riscvkernel/elf"
	"riscvkernel/mem"
	"riscvkernel/trap"
	"riscvkernel/vm"
)

// State is one of the four process lifecycle states named in the data
// model.
type State int

const (
	Running State = iota
	Sleeping
	Waiting
	Dead
)

const (
	spRegister = 2
	stackPages = 2
	stackAddr  = mem.Pa_t(0x1_0000_0000)
)

var nextPid int64 = 1

/// Process is the kernel's user-mode process abstraction. A process owns
/// its root map table and, transitively, every physical frame reachable
/// through it (base spec §3's ownership invariant).
type Process struct {
	Frame trap.TrapFrame
	Root  *vm.MapTable
	PC    mem.Pa_t
	Pid   int64
	State State

	parent *mem.Allocator

	stackPhys    mem.Pa_t
	sectionPhys  mem.Pa_t
	sectionPages int
	heapPhys     mem.Pa_t
	heapPages    int
}

/// Current is the lone "currently running process" slot. The base spec
/// flags a single-process design as insufficient once more than one
/// process exists (SPEC_FULL.md §9 decision); this kernel never runs more
/// than one process at a time (base spec §5), so the slot is sufficient
/// here and is the only place that needs revisiting for SMP/scheduling.
var Current *Process

/// Create builds a fresh process: a zeroed root map table, a mapped user
/// stack, and a freshly assigned pid. It does not load any code; callers
/// combine Create with elf.Load (see Init).
func Create(parentPFA *mem.Allocator) (*Process, bool) {
	root := vm.New(parentPFA)
	if root == nil {
		return nil, false
	}
	stackPhys, ok := parentPFA.Zalloc(stackPages)
	if !ok {
		root.Unmap()
		parentPFA.Dealloc(root.PA())
		return nil, false
	}
	mapped := true
	for i := 0; i < stackPages && mapped; i++ {
		off := mem.Pa_t(i * mem.PGSIZE)
		mapped = root.Map(stackAddr+off, stackPhys+off, vm.PteU|vm.PteR|vm.PteW, 0)
	}
	if !mapped {
		parentPFA.Dealloc(stackPhys)
		root.Unmap()
		parentPFA.Dealloc(root.PA())
		return nil, false
	}

	p := &Process{
		Root:      root,
		Pid:       atomic.AddInt64(&nextPid, 1) - 1,
		State:     Running,
		parent:    parentPFA,
		stackPhys: stackPhys,
	}
	p.Frame.Regs[spRegister] = uint64(stackAddr) + uint64(stackPages*mem.PGSIZE) - 8
	p.Frame.Satp = root.InitialSATP(uint64(p.Pid))
	return p, true
}

/// Init loads image via the ELF loader into a freshly created process's
/// address space and sets its program counter to the entry point,
/// mirroring the original's Process::init / ELF-loader handoff.
func Init(parentPFA *mem.Allocator, image []byte) (*Process, bool) {
	p, ok := Create(parentPFA)
	if !ok {
		return nil, false
	}
	loaded, err := elf.Load(image, p.Root, parentPFA)
	if err != nil {
		Destroy(p)
		return nil, false
	}
	p.PC = loaded.Entry
	p.sectionPhys = loaded.BasePhys
	p.sectionPages = loaded.NumPages
	Current = p
	return p, true
}

/// Destroy deallocates a process's stack, optional heap and ELF section
/// runs, then recursively unmaps and frees every non-leaf page of its
/// map table, then frees the root — the full ownership chain named in
/// the data model.
func Destroy(p *Process) {
	p.parent.Dealloc(p.stackPhys)
	if p.sectionPages > 0 {
		p.parent.Dealloc(p.sectionPhys)
	}
	if p.heapPages > 0 {
		p.parent.Dealloc(p.heapPhys)
	}
	p.Root.Unmap()
	p.parent.Dealloc(p.Root.PA())
	p.State = Dead
}
