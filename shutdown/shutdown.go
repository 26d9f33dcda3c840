// Package shutdown implements the single documented QEMU "virt" board
// shutdown mailbox write.
package shutdown

import "unsafe"

/// testDeviceAddr is the SiFive test device's MMIO address on the
/// "virt" machine.
const testDeviceAddr uintptr = 0x0010_0000

/// MailboxAddress exports testDeviceAddr for boot.Init's kernel identity
/// map.
const MailboxAddress = testDeviceAddr

/// WindowSize rounds the single mailbox register up to a page, the
/// granularity RangeMap works at.
const WindowSize = 0x1000

/// haltCode, written to testDeviceAddr, requests a clean QEMU exit.
const haltCode uint32 = 0x5555

/// Now writes the halt code to the SiFive test device, halting the
/// emulator. QEMU tears the machine down on this write; the loop below
/// only covers the case of running against real hardware lacking the
/// test device, where the write is a no-op.
func Now() {
	*(*uint32)(unsafe.Pointer(testDeviceAddr)) = haltCode
	for {
	}
}
