package vmm

import (
	"fmt"
	"unsafe"

	"github.com/SFYMMIK/Cygnus/kernel/cpu"
	"github.com/SFYMMIK/Cygnus/kernel/mm"
	"github.com/SFYMMIK/Cygnus/kernel/mm/pmm"
)

// fakeMachine emulates the MMU in software. Physical memory is a sparse set
// of 4 KiB pages that are allocated on first access. Once CR0.PG is set,
// Pointer resolves addresses through the page directory loaded in CR3 which
// exercises the recursive mapping exactly like the hardware would.
type fakeMachine struct {
	mem     map[uintptr]*[tableEntries]uint32
	cr0     uint32
	cr3     uintptr
	flushed []uintptr
}

func newFakeMachine() *fakeMachine {
	return &fakeMachine{
		mem: make(map[uintptr]*[tableEntries]uint32),
		cr0: 0x11,
	}
}

func (m *fakeMachine) FlushTLBEntry(virtAddr uintptr) { m.flushed = append(m.flushed, virtAddr) }
func (m *fakeMachine) SwitchPDT(pdtPhysAddr uintptr)  { m.cr3 = pdtPhysAddr }
func (m *fakeMachine) ReadCR0() uint32                { return m.cr0 }
func (m *fakeMachine) WriteCR0(value uint32)          { m.cr0 = value }

func (m *fakeMachine) Pointer(addr uintptr) unsafe.Pointer {
	physAddr := addr
	if m.cr0&cpu.CR0Paging != 0 {
		var ok bool
		if physAddr, ok = m.translate(addr); !ok {
			panic(fmt.Sprintf("fake MMU: page fault while accessing 0x%x", addr))
		}
	}

	return unsafe.Add(unsafe.Pointer(m.physPage(physAddr)), mm.PageOffset(physAddr))
}

// translate walks the tables loaded in CR3.
func (m *fakeMachine) translate(virtAddr uintptr) (uintptr, bool) {
	pde := m.physPage(m.cr3)[pdIndex(virtAddr)]
	if pde&uint32(FlagPresent) == 0 {
		return 0, false
	}

	pte := m.physPage(uintptr(pde & ptePhysPageMask))[ptIndex(virtAddr)]
	if pte&uint32(FlagPresent) == 0 {
		return 0, false
	}

	return uintptr(pte&ptePhysPageMask) | mm.PageOffset(virtAddr), true
}

// physPage returns the backing storage for the page containing physAddr.
func (m *fakeMachine) physPage(physAddr uintptr) *[tableEntries]uint32 {
	key := physAddr &^ (mm.PageSize - 1)
	page, exists := m.mem[key]
	if !exists {
		page = new([tableEntries]uint32)
		m.mem[key] = page
	}
	return page
}

// physBytes returns the contents of the page containing physAddr.
func (m *fakeMachine) physBytes(physAddr uintptr) *[mm.PageSize]byte {
	return (*[mm.PageSize]byte)(unsafe.Pointer(m.physPage(physAddr)))
}

func (m *fakeMachine) wasFlushed(virtAddr uintptr) bool {
	for _, addr := range m.flushed {
		if addr == virtAddr {
			return true
		}
	}
	return false
}

const (
	testPhysMemTop  = uint64(0x2000000)
	testKernelStart = uintptr(0x100000)
	testKernelEnd   = uintptr(0x180000)
	testPDTAddr     = uintptr(0x120000)
)

// newTestAddressSpace returns an address space for a 32 MiB machine whose
// kernel image occupies [1 MiB, 1.5 MiB). If enable is true, paging is
// turned on after Setup.
func newTestAddressSpace(enable bool) (*AddressSpace, *fakeMachine, *pmm.BitmapAllocator) {
	var (
		m      = newFakeMachine()
		frames = new(pmm.BitmapAllocator)
		as     = NewAddressSpace(frames, testPDTAddr, m)
	)

	if err := as.Setup(testKernelStart, testKernelEnd, testPhysMemTop); err != nil {
		panic(err)
	}

	if enable {
		if err := as.Enable(); err != nil {
			panic(err)
		}
	}

	m.flushed = m.flushed[:0]
	return as, m, frames
}
