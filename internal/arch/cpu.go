// Package arch defines the machine interface the portable kernel core
// depends on, so that everything above internal/arch/* never mentions a
// CSR name or an assembly mnemonic directly.
package arch

// CPU is the minimal set of operations a backend must provide. Only
// riscv64 is a complete implementation; arm exists to prove this
// interface is not accidentally RISC-V-shaped.
type CPU interface {
	// WriteCSR/ReadCSR name a control-and-status register abstractly
	// (e.g. "satp", "mstatus") so callers never inline CSR numbers.
	WriteCSR(name string, value uint64)
	ReadCSR(name string) uint64

	// SfenceVMA flushes the TLB for the given address (0 flushes all).
	SfenceVMA(vaddr uint64)

	// Mret performs a machine-mode return using the CSRs already
	// written (mepc, mstatus, mtvec).
	Mret()

	// Wfi issues the wait-for-interrupt instruction.
	Wfi()

	// InstallTrapVector points the CPU's trap vector CSR at the
	// backend's hand-written assembly entry point.
	InstallTrapVector()
}
