// Package cpu exposes the privileged x86 instructions used by the kernel.
// Every function in this package is implemented in assembly; callers that
// need to run in user-mode (tests, host tools) must route their calls through
// function variables that can be swapped out.
package cpu

const (
	// CR0Paging is the CR0.PG bit that enables paging.
	CR0Paging = uint32(1 << 31)

	// CR0WriteProtect is the CR0.WP bit that makes read-only pages
	// read-only for supervisor code too.
	CR0WriteProtect = uint32(1 << 16)
)

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt disables interrupts and stops instruction execution. Halt never
// returns.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr

// ReadCR0 returns the value stored in the CR0 register.
func ReadCR0() uint32

// WriteCR0 stores value to the CR0 register.
func WriteCR0(value uint32)

// ReadCR2 returns the value stored in the CR2 register; after a page fault it
// holds the linear address that caused the fault.
func ReadCR2() uintptr

// PortWriteByte writes a uint8 value to the requested port.
func PortWriteByte(port uint16, val uint8)

// PortReadByte reads a uint8 value from the requested port.
func PortReadByte(port uint16) uint8
