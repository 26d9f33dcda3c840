// Package boot sequences every subsystem's initialization in the
// documented order. It is the one package allowed to import everything
// else, and it implements no algorithm of its own beyond that sequence.
package boot

import (
	"context"
	"fmt"
	"io"
	"unsafe"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"riscvkernel/diag"
	"riscvkernel/dtb"
	"riscvkernel/internal/arch"
	"riscvkernel/internal/arch/riscv64"
	"riscvkernel/kerrors"
	"riscvkernel/mem"
	"riscvkernel/plic"
	"riscvkernel/proc"
	"riscvkernel/syscall"
	"riscvkernel/trap"
	"riscvkernel/uart"
	"riscvkernel/vfs"
	"riscvkernel/virtio"
	"riscvkernel/vm"
)

const (
	rootDeviceID    = 0
	rootPartitionID = 0
	plicFirstID     = 1
	plicLastID      = 10
	plicPriority    = 1
)

/// Kernel holds every subsystem handle Init assembles, so tests (and a
/// future reboot path) can inspect the result without re-running Init.
type Kernel struct {
	CPU       arch.CPU
	Allocator *mem.Allocator
	Root      *vm.MapTable
	Trap      *trap.TrapFrame
	VFS       *vfs.Manager
	Disks     []*virtio.BlockDevice
	Process   *proc.Process
}

/// Init performs the full boot sequence: UART init, DTB print, heap
/// sizing, PFA init, map-table construction, trap-frame init, satp load,
/// PLIC enable ids 1..=10 priority 1, Virtio probe, mount "/" as EXT3
/// device 0/partition 0, ELF load, enter user.
func Init(dtbBlob []byte, hartid uint64, elfImage []byte) (*Kernel, error) {
	uart.Init()
	syscall.Writer = uart.Writer
	trap.SetLogWriter(uart.Writer)

	p := message.NewPrinter(language.English)

	info, err := dtb.Read(dtbBlob)
	if err != nil {
		return nil, err
	}
	p.Fprintf(uart.Writer, "booting: %d bytes of RAM at %#x\n", info.Size, info.Base)

	a := &mem.Allocator{}
	a.Init(mem.Pa_t(info.Base), mem.Pa_t(info.Base+info.Size))
	physMemLow, physMemHigh = uintptr(info.Base), uintptr(info.Base+info.Size)

	root := vm.New(a)
	if root == nil {
		return nil, kerrors.ENOMEM
	}
	if err := identityMapKernel(root, info); err != nil {
		return nil, err
	}

	cpu := riscv64.CPU{}
	frame := trap.Init(root, a, hartid)
	cpu.WriteCSR("mscratch", uint64(uintptr(unsafe.Pointer(frame))))

	cpu.WriteCSR("satp", root.InitialSATP(0))
	cpu.SfenceVMA(0)
	cpu.InstallTrapVector()

	trap.SetHooks(readCode, func() { scheduleTimer(cpu) }, virtioIRQ, uartIRQ)

	for id := plicFirstID; id <= plicLastID; id++ {
		plic.SetPriority(id, plicPriority)
		plic.Enable(id)
	}
	plic.SetThreshold(0)

	diag.InstallPanicHandler(uart.Writer)

	syscall.Register()

	disks, err := virtio.Probe(context.Background(), a)
	if err != nil {
		return nil, err
	}
	if len(disks) == 0 {
		return nil, kerrors.EINVALIDDEVICE
	}

	vfsMgr := vfs.NewManager(func(deviceID int) (io.ReaderAt, error) {
		if deviceID < 0 || deviceID >= len(disks) {
			return nil, kerrors.EINVALIDDEVICE
		}
		return disks[deviceID], nil
	})
	vfsMgr.PushMountPoint(vfs.MountPoint{
		Path: "/",
		Type: vfs.FilesystemType{Kind: vfs.Ext3, DeviceID: rootDeviceID, PartitionID: rootPartitionID},
	})

	userProc, ok := proc.Init(a, elfImage)
	if !ok {
		return nil, fmt.Errorf("boot: failed to load init process image")
	}

	k := &Kernel{
		CPU:       cpu,
		Allocator: a,
		Root:      root,
		Trap:      frame,
		VFS:       vfsMgr,
		Disks:     disks,
		Process:   userProc,
	}

	cpu.WriteCSR("mepc", uint64(userProc.PC))
	cpu.Mret()

	return k, nil
}
