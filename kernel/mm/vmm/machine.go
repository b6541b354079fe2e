package vmm

import (
	"unsafe"

	"github.com/SFYMMIK/Cygnus/kernel/cpu"
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	flushTLBEntryFn = cpu.FlushTLBEntry
	switchPDTFn     = cpu.SwitchPDT
	readCR0Fn       = cpu.ReadCR0
	writeCR0Fn      = cpu.WriteCR0
	readCR2Fn       = cpu.ReadCR2
)

// Machine abstracts the privileged operations and the memory accesses that
// an AddressSpace performs. The kernel uses CPUMachine; tests and host tools
// supply an implementation that emulates the MMU in software.
type Machine interface {
	// FlushTLBEntry invalidates the cached translation for virtAddr.
	FlushTLBEntry(virtAddr uintptr)

	// SwitchPDT loads the physical address of a page directory into CR3.
	SwitchPDT(pdtPhysAddr uintptr)

	// ReadCR0 returns the value of the CR0 register.
	ReadCR0() uint32

	// WriteCR0 stores value to the CR0 register.
	WriteCR0(value uint32)

	// Pointer returns a pointer through which the CPU can access addr.
	// Before paging is enabled addr is a physical address; afterwards it
	// is a virtual address that goes through the active page tables.
	Pointer(addr uintptr) unsafe.Pointer
}

// CPUMachine is the Machine implementation used by the kernel. It forwards
// every call to the cpu package.
type CPUMachine struct{}

// FlushTLBEntry executes INVLPG for virtAddr.
func (CPUMachine) FlushTLBEntry(virtAddr uintptr) { flushTLBEntryFn(virtAddr) }

// SwitchPDT loads CR3.
func (CPUMachine) SwitchPDT(pdtPhysAddr uintptr) { switchPDTFn(pdtPhysAddr) }

// ReadCR0 returns CR0.
func (CPUMachine) ReadCR0() uint32 { return readCR0Fn() }

// WriteCR0 stores CR0.
func (CPUMachine) WriteCR0(value uint32) { writeCR0Fn(value) }

// Pointer converts addr to a pointer. The kernel is identity mapped so the
// same conversion serves both physical and virtual addresses.
func (CPUMachine) Pointer(addr uintptr) unsafe.Pointer {
	return unsafe.Pointer(addr)
}
