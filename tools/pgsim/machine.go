package main

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/SFYMMIK/Cygnus/kernel/cpu"
	"github.com/SFYMMIK/Cygnus/kernel/mm"
	"github.com/SFYMMIK/Cygnus/kernel/mm/vmm"
	"golang.org/x/sys/unix"
)

const (
	// initialCR0 has PE and ET set, matching the state in which the boot
	// loader hands over control.
	initialCR0 = uint32(0x11)

	pdeShift  = 22
	indexMask = 1023
	frameMask = uint32(0xfffff000)
)

var _ vmm.Machine = (*machine)(nil)

// machine emulates a 32-bit x86 CPU's paging unit on top of an anonymous
// memory mapping that plays the role of physical RAM.
type machine struct {
	ram []byte

	cr0     uint32
	cr3     uintptr
	flushes int
}

// newMachine allocates size bytes of simulated RAM.
func newMachine(size uint64) (*machine, error) {
	ram, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("unable to allocate %d bytes of simulated RAM: %w", size, err)
	}

	return &machine{
		ram: ram,
		cr0: initialCR0,
	}, nil
}

// Close releases the simulated RAM.
func (m *machine) Close() error {
	return unix.Munmap(m.ram)
}

func (m *machine) FlushTLBEntry(uintptr)         { m.flushes++ }
func (m *machine) SwitchPDT(pdtPhysAddr uintptr) { m.cr3 = pdtPhysAddr }
func (m *machine) ReadCR0() uint32               { return m.cr0 }
func (m *machine) WriteCR0(value uint32)         { m.cr0 = value }

func (m *machine) pagingEnabled() bool {
	return m.cr0&cpu.CR0Paging != 0
}

// Pointer returns a pointer into simulated RAM. While paging is enabled,
// addr is translated through the page directory loaded in CR3.
func (m *machine) Pointer(addr uintptr) unsafe.Pointer {
	physAddr := addr
	if m.pagingEnabled() {
		var ok bool
		if physAddr, ok = m.walk(addr); !ok {
			panic(fmt.Sprintf("page fault while accessing 0x%x", addr))
		}
	}

	if uint64(physAddr) >= uint64(len(m.ram)) {
		panic(fmt.Sprintf("physical address 0x%x is beyond the end of RAM (0x%x)", physAddr, len(m.ram)))
	}

	return unsafe.Pointer(&m.ram[physAddr])
}

// walk performs the two-level table walk that the MMU would do for virtAddr.
func (m *machine) walk(virtAddr uintptr) (uintptr, bool) {
	pde, ok := m.readPhys32(m.cr3 + ((virtAddr>>pdeShift)&indexMask)<<2)
	if !ok || pde&uint32(vmm.FlagPresent) == 0 {
		return 0, false
	}

	pte, ok := m.readPhys32(uintptr(pde&frameMask) + ((virtAddr>>mm.PageShift)&indexMask)<<2)
	if !ok || pte&uint32(vmm.FlagPresent) == 0 {
		return 0, false
	}

	return uintptr(pte&frameMask) | mm.PageOffset(virtAddr), true
}

func (m *machine) readPhys32(physAddr uintptr) (uint32, bool) {
	if uint64(physAddr)+4 > uint64(len(m.ram)) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.ram[physAddr:]), true
}
