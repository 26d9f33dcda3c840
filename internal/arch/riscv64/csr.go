// Package riscv64 is the primary, fully implemented arch.CPU backend:
// hand-written assembly CSR accessors and trap vector, kept as the only
// machine-specific surface the rest of the kernel touches.
package riscv64

// Each of these is implemented in csr_asm.s as a single CSRRW/CSRRS
// instruction — the CSR address is part of the instruction's immediate
// field on real hardware, so it cannot be a runtime parameter; one
// function per named register is the only faithful shape.

func readSatp() uint64
func writeSatp(v uint64)

func readMstatus() uint64
func writeMstatus(v uint64)

func readMepc() uint64
func writeMepc(v uint64)

func readMtvec() uint64
func writeMtvec(v uint64)

func readMie() uint64
func writeMie(v uint64)

func readMedeleg() uint64
func writeMedeleg(v uint64)

func readMscratch() uint64
func writeMscratch(v uint64)

func sfenceVMA(vaddr uint64)
func mret()
func wfi()

/// CPU implements arch.CPU for the riscv64 target.
type CPU struct{}

func (CPU) WriteCSR(name string, value uint64) {
	switch name {
	case "satp":
		writeSatp(value)
	case "mstatus":
		writeMstatus(value)
	case "mepc":
		writeMepc(value)
	case "mtvec":
		writeMtvec(value)
	case "mie":
		writeMie(value)
	case "medeleg":
		writeMedeleg(value)
	case "mscratch":
		writeMscratch(value)
	default:
		panic("riscv64: unknown CSR " + name)
	}
}

func (CPU) ReadCSR(name string) uint64 {
	switch name {
	case "satp":
		return readSatp()
	case "mstatus":
		return readMstatus()
	case "mepc":
		return readMepc()
	case "mtvec":
		return readMtvec()
	case "mie":
		return readMie()
	case "medeleg":
		return readMedeleg()
	case "mscratch":
		return readMscratch()
	default:
		panic("riscv64: unknown CSR " + name)
	}
}

func (CPU) SfenceVMA(vaddr uint64) { sfenceVMA(vaddr) }
func (CPU) Mret()                 { mret() }
func (CPU) Wfi()                  { wfi() }

/// InstallTrapVector points mtvec at trapEntry, the assembly vector in
/// trap.s, in direct mode (low 2 bits clear).
func (CPU) InstallTrapVector() {
	writeMtvec(trapEntryAddr())
}

func trapEntryAddr() uint64
