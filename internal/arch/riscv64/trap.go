package riscv64

import "riscvkernel/trap"

// dispatchFromAsm is called by trapvec (trap.s) once it has saved the
// interrupted context into *trap.TrapFrame. It exists only so the
// assembly vector has a single, fixed Go entry point to CALL — all
// cause decoding happens in trap.Dispatch.
//
//go:nosplit
func dispatchFromAsm(epc, tval, cause, hart, status uint64, frame *trap.TrapFrame) uint64 {
	return trap.Dispatch(epc, tval, cause, hart, status, frame)
}
