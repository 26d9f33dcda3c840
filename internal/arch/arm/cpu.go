// Package arm is the secondary-target backend: a thin ARMv7-A proof
// that arch.CPU is a real interface rather than RISC-V wearing a thin
// disguise. It targets the analogous Cortex-A system registers (CPSR
// mode bits instead of mstatus, VBAR/exception vector table instead of
// mtvec, two-level short-descriptor paging instead of Sv39) and is
// deliberately not wired to vm.MapTable or any Sv39-specific path —
// the base design scopes Sv39 paging only, so this backend exists to
// exercise the interface boundary, not to run the EXT2/Virtio flow.
package arm

// Named pseudo-CSRs this backend understands; everything else panics,
// mirroring riscv64.CPU's unknown-name behavior.
const (
	csrCPSR = "cpsr"
	csrVBAR = "vbar"
	csrTTBR = "ttbr0"
)

func readCPSR() uint32
func writeCPSR(v uint32)
func readVBAR() uint32
func writeVBAR(v uint32)
func readTTBR0() uint32
func writeTTBR0(v uint32)
func dsbISB()
func wfiARM()

/// CPU implements arch.CPU for the ARMv7-A target.
type CPU struct{}

func (CPU) WriteCSR(name string, value uint64) {
	switch name {
	case csrCPSR:
		writeCPSR(uint32(value))
	case csrVBAR:
		writeVBAR(uint32(value))
	case csrTTBR:
		writeTTBR0(uint32(value))
	default:
		panic("arm: unknown register " + name)
	}
}

func (CPU) ReadCSR(name string) uint64 {
	switch name {
	case csrCPSR:
		return uint64(readCPSR())
	case csrVBAR:
		return uint64(readVBAR())
	case csrTTBR:
		return uint64(readTTBR0())
	default:
		panic("arm: unknown register " + name)
	}
}

// SfenceVMA has no exact ARMv7-A analogue; the nearest equivalent is a
// TLB invalidate by VA followed by a barrier. vaddr is ignored because
// this backend never populates a TTBR0 table to invalidate against.
func (CPU) SfenceVMA(vaddr uint64) { dsbISB() }

// Mret has no ARMv7-A equivalent (there is no M-mode); an exception
// return here would be "subs pc, lr, #4" from an exception handler,
// which this thin backend does not implement.
func (CPU) Mret() { panic("arm: Mret not implemented, no M-mode analogue") }

func (CPU) Wfi() { wfiARM() }

func (CPU) InstallTrapVector() { writeVBAR(vectorTableAddr()) }

func vectorTableAddr() uint32
