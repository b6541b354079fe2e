// Package vmm implements the kernel's two-level paging manager: it builds the
// identity mapping for the kernel image, creates page tables on demand,
// maps, unmaps and translates pages and dispatches page faults.
package vmm

import (
	"unsafe"

	"github.com/SFYMMIK/Cygnus/kernel"
	"github.com/SFYMMIK/Cygnus/kernel/cpu"
	"github.com/SFYMMIK/Cygnus/kernel/mm"
	"github.com/SFYMMIK/Cygnus/kernel/mm/pmm"
)

var (
	// ErrOutOfMemory is returned when a page table cannot be allocated.
	ErrOutOfMemory = &kernel.Error{Module: "vmm", Message: "out of memory while allocating a page table"}

	// ErrInvalidArgument is returned when an operation receives arguments
	// that would corrupt the paging structures.
	ErrInvalidArgument = &kernel.Error{Module: "vmm", Message: "invalid argument"}

	// ErrInvalidMapping is returned when trying to lookup a virtual memory
	// address that is not yet mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	// ErrReservedAddress is returned by Map when the target page lies in
	// the window used by the temporary mapping and the recursive mapping.
	ErrReservedAddress = &kernel.Error{Module: "vmm", Message: "virtual address is reserved for the page table window"}

	// ErrNoHugePageSupport is returned when a mapping requests FlagHugePage.
	ErrNoHugePageSupport = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}

	errSetupRequired = &kernel.Error{Module: "vmm", Message: "paging cannot be enabled before Setup"}

	// kernelPDTStorage reserves enough space for a page-aligned page
	// directory anywhere inside it. The directory lives in the kernel
	// image so it is covered by the identity mapping.
	kernelPDTStorage [2 * tableEntries]pageTableEntry

	kernelAddressSpace AddressSpace
)

// FaultPolicy selects how HandlePageFault reacts to a fault that
// ClassifyFault deems recoverable.
type FaultPolicy uint8

const (
	// HaltPolicy treats every page fault as fatal.
	HaltPolicy FaultPolicy = iota

	// RecoverPolicy services demand-zero and copy-on-write faults and
	// treats everything else as fatal.
	RecoverPolicy
)

// Config holds the tunables of an AddressSpace.
type Config struct {
	// MaxPhysMemory is the ceiling of the physical memory tracked by the
	// frame allocator.
	MaxPhysMemory uint64

	// FaultPolicy selects the page-fault policy.
	FaultPolicy FaultPolicy
}

// DefaultConfig returns the configuration used when the boot command line
// does not override anything.
func DefaultConfig() Config {
	return Config{
		MaxPhysMemory: pmm.MaxPhysMemory,
		FaultPolicy:   HaltPolicy,
	}
}

// AddressSpace owns a page directory together with the frame allocator that
// backs its page tables. All paging operations go through an AddressSpace;
// the kernel's instance is returned by KernelAddressSpace.
//
// AddressSpace is not safe for concurrent use.
type AddressSpace struct {
	frames  *pmm.BitmapAllocator
	machine Machine

	// pdtAddr is the physical address of the page directory.
	pdtAddr uintptr

	cfg Config

	// setupDone is set once Setup succeeds; pagingEnabled once Enable
	// turns on CR0.PG. From then on page tables are reached through the
	// recursive mapping.
	setupDone     bool
	pagingEnabled bool

	// liveEntries tracks the number of non-zero entries in the page table
	// installed at each directory slot.
	liveEntries [tableEntries]uint16
}

// NewAddressSpace returns an AddressSpace that manages the page directory at
// physical address pdtAddr, allocates page tables from frames and performs
// privileged operations through m.
func NewAddressSpace(frames *pmm.BitmapAllocator, pdtAddr uintptr, m Machine) *AddressSpace {
	as := new(AddressSpace)
	as.init(frames, pdtAddr, m)
	return as
}

func (as *AddressSpace) init(frames *pmm.BitmapAllocator, pdtAddr uintptr, m Machine) {
	*as = AddressSpace{
		frames:  frames,
		machine: m,
		pdtAddr: pdtAddr &^ (mm.PageSize - 1),
		cfg:     DefaultConfig(),
	}
}

// KernelAddressSpace returns the address space that manages the kernel's
// static page directory using pmm.FrameAllocator.
func KernelAddressSpace() *AddressSpace {
	if kernelAddressSpace.machine == nil {
		kernelAddressSpace.init(&pmm.FrameAllocator, kernelPDTAddr(), CPUMachine{})
	}
	return &kernelAddressSpace
}

// kernelPDTAddr returns the first page-aligned address inside
// kernelPDTStorage.
func kernelPDTAddr() uintptr {
	addr := uintptr(unsafe.Pointer(&kernelPDTStorage[0]))
	return (addr + mm.PageSize - 1) &^ (mm.PageSize - 1)
}

// ApplyConfig replaces the configuration of the address space. The physical
// memory ceiling takes effect on the next call to Setup.
func (as *AddressSpace) ApplyConfig(cfg Config) {
	as.cfg = cfg
}

// SetFaultPolicy selects the policy used by HandlePageFault.
func (as *AddressSpace) SetFaultPolicy(policy FaultPolicy) {
	as.cfg.FaultPolicy = policy
}

// Config returns the active configuration.
func (as *AddressSpace) Config() Config {
	return as.cfg
}

// PDTAddr returns the physical address of the page directory.
func (as *AddressSpace) PDTAddr() uintptr {
	return as.pdtAddr
}

// PagingEnabled returns true after a successful call to Enable.
func (as *AddressSpace) PagingEnabled() bool {
	return as.pagingEnabled
}

// Setup initializes the frame allocator and the page directory:
//   - the allocator tracks [0, physMemTop) capped by the configured ceiling;
//     frame 0, the kernel image [kernelStart, kernelEnd), the page directory
//     frame and every reserved region are flagged as used.
//   - the directory is cleared and its last slot is pointed back at the
//     directory itself.
//   - [0, kernelEnd) is identity mapped with supervisor RW permissions.
//   - allocations are steered to the frames that follow the kernel image.
//   - the directory is loaded into CR3.
//
// Setup does not enable paging; see Enable.
func (as *AddressSpace) Setup(kernelStart, kernelEnd uintptr, physMemTop uint64, reserved ...mm.Region) *kernel.Error {
	if kernelStart > kernelEnd || uint64(kernelEnd) > physMemTop {
		return ErrInvalidArgument
	}

	frames := as.frames
	frames.Init(physMemTop, as.cfg.MaxPhysMemory)
	frames.MarkRegionFree(0, physMemTop)
	frames.MarkRegionUsed(0, uint64(mm.PageSize))
	frames.MarkRegionUsed(uint64(kernelStart), uint64(kernelEnd))
	frames.MarkRegionUsed(uint64(as.pdtAddr), uint64(as.pdtAddr+mm.PageSize))
	for _, region := range reserved {
		frames.MarkRegionUsed(region.Start, region.End)
	}

	as.pagingEnabled = false
	as.setupDone = false
	as.liveEntries = [tableEntries]uint16{}

	pdt := as.directory()
	*pdt = pageTable{}
	pdt[recursiveSlot].SetFrame(mm.FrameFromAddress(as.pdtAddr))
	pdt[recursiveSlot].SetFlags(FlagPresent | FlagRW)

	// The tables for the identity range are carved out of low memory; the
	// allocation hint still points at frame 0 at this stage.
	if err := as.MapRange(0, 0, uint64(kernelEnd), FlagRW); err != nil {
		return err
	}

	frames.SetFirstUsable(mm.Frame(mm.AlignUp(uint64(kernelEnd)) >> mm.PageShift))
	as.machine.SwitchPDT(as.pdtAddr)
	as.setupDone = true
	return nil
}

// Enable turns on paging and supervisor write protection. Execution
// continues seamlessly because Setup identity mapped the kernel image.
func (as *AddressSpace) Enable() *kernel.Error {
	if !as.setupDone {
		return errSetupRequired
	}

	as.machine.WriteCR0(as.machine.ReadCR0() | cpu.CR0Paging | cpu.CR0WriteProtect)
	as.pagingEnabled = true
	return nil
}

// directory returns a pointer to the page directory.
func (as *AddressSpace) directory() *pageTable {
	if as.pagingEnabled {
		return (*pageTable)(as.machine.Pointer(pdtVirtualAddr))
	}
	return (*pageTable)(as.machine.Pointer(as.pdtAddr))
}

// table returns a pointer to the page table referenced by the directory
// entry at pdIndex. Once paging is enabled the table is reached through the
// recursive mapping so its frame does not need to be identity mapped.
func (as *AddressSpace) table(pdIndex uintptr, pde pageTableEntry) *pageTable {
	if as.pagingEnabled {
		return (*pageTable)(as.machine.Pointer(tableWindowAddr(pdIndex)))
	}
	return (*pageTable)(as.machine.Pointer(pde.Frame().Address()))
}

// tableWindowAddr returns the virtual address where the recursive mapping
// exposes the page table for directory slot pdIndex.
func tableWindowAddr(pdIndex uintptr) uintptr {
	return pageTablesVirtualAddr + pdIndex<<mm.PageShift
}
