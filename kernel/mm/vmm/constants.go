package vmm

const (
	// pageLevels indicates the number of page levels supported by the
	// 32-bit x86 paging scheme (directory and table).
	pageLevels = 2

	// tableEntries is the number of entries in a page directory or a page
	// table.
	tableEntries = 1024

	// pageLevelBits is the number of virtual address bits that select an
	// entry at each paging level.
	pageLevelBits = 10

	// ptePhysPageMask extracts the physical frame address from an entry
	// (bits 12-31).
	ptePhysPageMask = uint32(0xfffff000)

	// pteFlagsMask covers the entry bits that callers may set as flags.
	pteFlagsMask = PageTableEntryFlag(^ptePhysPageMask)

	// recursiveSlot is the directory entry that points back to the
	// directory itself.
	recursiveSlot = tableEntries - 1

	// pageTablesVirtualAddr is the start of the 4 MiB window where the
	// recursive mapping exposes every page table once paging is enabled.
	// The table for directory index i lives at pageTablesVirtualAddr +
	// i*4096.
	pageTablesVirtualAddr = uintptr(0xffc00000)

	// pdtVirtualAddr is the virtual address where the page directory
	// becomes visible through the recursive mapping. By setting both index
	// fields to 1023 the MMU follows the last directory entry twice and
	// lands on the directory.
	pdtVirtualAddr = uintptr(0xfffff000)

	// tempMappingAddr is a reserved virtual page used for short-lived
	// mappings of arbitrary frames (e.g. when duplicating a copy-on-write
	// page). It is the last page below the recursive window and every
	// address at or above it is off-limits to Map.
	tempMappingAddr = uintptr(0xffbff000)

	// addressSpaceTop is the size of the 32-bit virtual address space.
	addressSpaceTop = uint64(1) << 32
)

// pdIndex returns the page directory index for a virtual address.
func pdIndex(virtAddr uintptr) uintptr {
	return (virtAddr >> 22) & (tableEntries - 1)
}

// ptIndex returns the page table index for a virtual address.
func ptIndex(virtAddr uintptr) uintptr {
	return (virtAddr >> 12) & (tableEntries - 1)
}
