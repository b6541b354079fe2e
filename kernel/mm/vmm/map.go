package vmm

import (
	"github.com/SFYMMIK/Cygnus/kernel"
	"github.com/SFYMMIK/Cygnus/kernel/mm"
)

// Map establishes a mapping between the page containing virtAddr and the
// frame containing physAddr. The page table covering virtAddr is allocated
// and cleared if it does not exist yet. The TLB entry for virtAddr is always
// flushed.
//
// Map returns ErrOutOfMemory without modifying any entry if a page table
// cannot be allocated and ErrInvalidArgument if flags overlaps the frame
// address bits.
func (as *AddressSpace) Map(physAddr, virtAddr uintptr, flags PageTableEntryFlag) *kernel.Error {
	switch {
	case flags&^pteFlagsMask != 0:
		return ErrInvalidArgument
	case flags&FlagHugePage != 0:
		return ErrNoHugePageSupport
	}

	virtAddr &^= mm.PageSize - 1
	if virtAddr >= tempMappingAddr {
		return ErrReservedAddress
	}

	entry := pageTableEntry(0)
	entry.SetFrame(mm.FrameFromAddress(physAddr))
	entry.SetFlags(flags | FlagPresent)
	return as.installEntry(virtAddr, entry)
}

// Unmap removes the mapping for the page containing virtAddr. If ownFrame is
// true, the frame that backed the page is returned to the frame allocator.
// Unmapping an address that is not mapped is a no-op.
//
// When the last entry of a page table is removed the table itself is
// released and its directory entry cleared.
func (as *AddressSpace) Unmap(virtAddr uintptr, ownFrame bool) {
	virtAddr &^= mm.PageSize - 1
	if virtAddr >= pageTablesVirtualAddr {
		return
	}

	var (
		pdIdx = pdIndex(virtAddr)
		pde   = as.directory()[pdIdx]
	)

	if !pde.HasFlags(FlagPresent) {
		return
	}

	var (
		table = as.table(pdIdx, pde)
		entry = table[ptIndex(virtAddr)]
	)

	if entry == 0 {
		return
	}

	table[ptIndex(virtAddr)] = 0
	as.machine.FlushTLBEntry(virtAddr)

	if ownFrame && entry.HasFlags(FlagPresent) {
		as.frames.FreeFrame(entry.Frame())
	}

	as.releaseEntry(pdIdx)
}

// MapRange maps the pages spanning [virtAddr, virtAddr+size) to consecutive
// frames starting at the frame containing physAddr. Both start addresses are
// rounded down and the end is rounded up to a page boundary. MapRange stops
// at the first page that cannot be mapped; pages mapped before the failure
// stay mapped.
func (as *AddressSpace) MapRange(physAddr, virtAddr uintptr, size uint64, flags PageTableEntryFlag) *kernel.Error {
	pageCount := spanPages(virtAddr, size)
	physStart := uint64(physAddr &^ (mm.PageSize - 1))
	if physStart+pageCount<<mm.PageShift > addressSpaceTop {
		return ErrInvalidArgument
	}

	var (
		virt = virtAddr &^ (mm.PageSize - 1)
		phys = uintptr(physStart)
	)
	for ; pageCount > 0; pageCount, virt, phys = pageCount-1, virt+mm.PageSize, phys+mm.PageSize {
		if err := as.Map(phys, virt, flags); err != nil {
			return err
		}
	}

	return nil
}

// UnmapRange unmaps every page spanning [virtAddr, virtAddr+size). If
// ownFrames is true the backing frames are returned to the frame allocator.
func (as *AddressSpace) UnmapRange(virtAddr uintptr, size uint64, ownFrames bool) {
	virt := virtAddr &^ (mm.PageSize - 1)
	for pageCount := spanPages(virtAddr, size); pageCount > 0; pageCount, virt = pageCount-1, virt+mm.PageSize {
		as.Unmap(virt, ownFrames)
	}
}

// ReserveOnDemand installs non-present entries for the pages spanning
// [virtAddr, virtAddr+size). With RecoverPolicy, the first access to any of
// these pages allocates a zeroed frame and maps it using flags.
//
// Pages that already carry an entry and flags that overlap the frame address
// bits are rejected with ErrInvalidArgument.
func (as *AddressSpace) ReserveOnDemand(virtAddr uintptr, size uint64, flags PageTableEntryFlag) *kernel.Error {
	switch {
	case flags&^pteFlagsMask != 0:
		return ErrInvalidArgument
	case flags&FlagHugePage != 0:
		return ErrNoHugePageSupport
	}

	virt := virtAddr &^ (mm.PageSize - 1)
	for pageCount := spanPages(virtAddr, size); pageCount > 0; pageCount, virt = pageCount-1, virt+mm.PageSize {
		if virt >= tempMappingAddr {
			return ErrReservedAddress
		}

		if as.entry(virt) != 0 {
			return ErrInvalidArgument
		}

		entry := pageTableEntry(0)
		entry.SetFlags((flags &^ (FlagPresent | FlagCopyOnWrite)) | FlagOnDemand)
		if err := as.installEntry(virt, entry); err != nil {
			return err
		}
	}

	return nil
}

// Invalidate flushes the TLB entry for the page containing virtAddr.
func (as *AddressSpace) Invalidate(virtAddr uintptr) {
	as.machine.FlushTLBEntry(virtAddr)
}

// installEntry stores entry in the page table slot for virtAddr, creating the
// page table if needed, and flushes the TLB entry for virtAddr.
func (as *AddressSpace) installEntry(virtAddr uintptr, entry pageTableEntry) *kernel.Error {
	var (
		pdIdx = pdIndex(virtAddr)
		pdt   = as.directory()
	)

	if !pdt[pdIdx].HasFlags(FlagPresent) {
		if err := as.createTable(pdIdx); err != nil {
			return err
		}
	}

	table := as.table(pdIdx, pdt[pdIdx])
	if table[ptIndex(virtAddr)] == 0 {
		as.liveEntries[pdIdx]++
	}

	table[ptIndex(virtAddr)] = entry
	as.machine.FlushTLBEntry(virtAddr)
	return nil
}

// createTable allocates and clears a page table and installs it in directory
// slot pdIdx.
func (as *AddressSpace) createTable(pdIdx uintptr) *kernel.Error {
	frame, err := as.frames.AllocFrame()
	if err != nil {
		return ErrOutOfMemory
	}

	pdt := as.directory()
	pdt[pdIdx] = 0
	pdt[pdIdx].SetFrame(frame)
	pdt[pdIdx].SetFlags(FlagPresent | FlagRW)
	as.liveEntries[pdIdx] = 0

	// The recursive window may still cache a translation for a table that
	// previously occupied this slot.
	if as.pagingEnabled {
		as.machine.FlushTLBEntry(tableWindowAddr(pdIdx))
	}

	*as.table(pdIdx, pdt[pdIdx]) = pageTable{}
	return nil
}

// releaseEntry decrements the live-entry count of the page table at slot
// pdIdx and frees the table once it becomes empty.
func (as *AddressSpace) releaseEntry(pdIdx uintptr) {
	if as.liveEntries[pdIdx] > 0 {
		as.liveEntries[pdIdx]--
	}

	if as.liveEntries[pdIdx] != 0 {
		return
	}

	pdt := as.directory()
	tableFrame := pdt[pdIdx].Frame()
	pdt[pdIdx] = 0
	as.machine.FlushTLBEntry(tableWindowAddr(pdIdx))
	as.frames.FreeFrame(tableFrame)
}

// entry returns the page table entry for virtAddr or 0 if the covering page
// table does not exist.
func (as *AddressSpace) entry(virtAddr uintptr) pageTableEntry {
	if ptr := as.entryPtr(virtAddr); ptr != nil {
		return *ptr
	}
	return 0
}

// entryPtr returns a pointer to the page table entry for virtAddr or nil if
// the covering page table does not exist.
func (as *AddressSpace) entryPtr(virtAddr uintptr) *pageTableEntry {
	var (
		pdIdx = pdIndex(virtAddr)
		pde   = as.directory()[pdIdx]
	)

	if !pde.HasFlags(FlagPresent) || pdIdx == recursiveSlot {
		return nil
	}

	return &as.table(pdIdx, pde)[ptIndex(virtAddr)]
}

// spanPages returns the number of pages touched by [virtAddr, virtAddr+size)
// clipped to the end of the 32-bit address space.
func spanPages(virtAddr uintptr, size uint64) uint64 {
	if size == 0 {
		return 0
	}

	start := mm.AlignDown(uint64(virtAddr))
	if start >= addressSpaceTop {
		return 0
	}

	end := addressSpaceTop
	if size < addressSpaceTop-uint64(virtAddr) {
		end = mm.AlignUp(uint64(virtAddr) + size)
	}

	return (end - start) >> mm.PageShift
}
